// SPDX-License-Identifier: AGPL-3.0-or-later
// vbus2mqtt - Bridge RESOL VBus devices to MQTT
// Copyright (C) 2024-2026 Chris Heo
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// The source code is available at <https://github.com/chris-heo/vbus2mqtt>

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/USA-RedDragon/configulator"
	"github.com/go-co-op/gocron/v2"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chris-heo/vbus2mqtt/internal/config"
	"github.com/chris-heo/vbus2mqtt/internal/dispatcher"
	"github.com/chris-heo/vbus2mqtt/internal/metrics"
	"github.com/chris-heo/vbus2mqtt/internal/mqtt"
	"github.com/chris-heo/vbus2mqtt/internal/pipeline"
	"github.com/chris-heo/vbus2mqtt/internal/plugins"
	"github.com/chris-heo/vbus2mqtt/internal/pprof"
	"github.com/chris-heo/vbus2mqtt/internal/vbus"
	"github.com/chris-heo/vbus2mqtt/internal/vsf"
)

func NewCommand(version, commit string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "vbus2mqtt",
		Version: fmt.Sprintf("%s - %s", version, commit),
		Annotations: map[string]string{
			"version": version,
			"commit":  commit,
		},
		RunE:              runRoot,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
	}
	return cmd
}

func runRoot(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	fmt.Printf("vbus2mqtt - %s (%s)\n", cmd.Annotations["version"], cmd.Annotations["commit"])

	c, err := configulator.FromContext[config.Config](ctx)
	if err != nil {
		return fmt.Errorf("failed to get config from context: %w", err)
	}
	cfg, err := c.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	setupLogger(cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	m := metrics.NewMetrics()
	startBackgroundServices(cfg)

	spec, err := vsf.Load(cfg.VBus.VSF)
	if err != nil {
		return fmt.Errorf("failed to load VBus specification: %w", err)
	}
	slog.Info("VBus specification loaded",
		"datecode", spec.Datecode,
		"packetTemplates", len(spec.PacketTemplates),
		"deviceTemplates", len(spec.DeviceTemplates))

	pl, err := pipeline.Load(cfg.VBus.Pipeline)
	if err != nil {
		return fmt.Errorf("failed to load pipeline definition: %w", err)
	}

	client := mqtt.MakeClient(cfg)
	if err := client.Connect(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	disp, err := buildDispatcher(cfg, pl, client, m)
	if err != nil {
		return err
	}

	stats := &vbus.Stats{}
	registerCommMetafields(disp, stats)

	scheduler, err := setupStatsJob(stats)
	if err != nil {
		return err
	}

	reader := vbus.NewReader(cfg.VBus.SerialPort, cfg.VBus.Baud, spec, disp, stats, m)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return reader.Run(gctx)
	})
	g.Go(func() error {
		return tickLoop(gctx, disp)
	})
	g.Go(func() error {
		waitForSignal(gctx, cancel)
		return nil
	})

	slog.Info("vbus2mqtt ready",
		"serialPort", cfg.VBus.SerialPort,
		"fields", len(disp.Fields()),
		"transfers", len(pl.Transfers))

	runErr := g.Wait()
	shutdown(scheduler, client)
	return runErr
}

// shutdown tears down the scheduler and the broker session. The teardown
// races a timeout so a hung disconnect cannot wedge the process forever.
func shutdown(scheduler gocron.Scheduler, client mqtt.Client) {
	const timeout = 10 * time.Second

	wg := new(sync.WaitGroup)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := scheduler.StopJobs(); err != nil {
			slog.Error("Failed to stop scheduler jobs", "error", err)
		}
		if err := scheduler.Shutdown(); err != nil {
			slog.Error("Failed to stop scheduler", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		client.Disconnect()
	}()

	c := make(chan struct{})
	go func() {
		defer close(c)
		wg.Wait()
	}()
	select {
	case <-c:
		slog.Info("Shutdown safely completed")
	case <-time.After(timeout):
		slog.Error("Shutdown timed out, forcing exit")
		os.Exit(1)
	}
}

// setupLogger configures the structured logger
func setupLogger(cfg *config.Config) {
	var logger *slog.Logger
	switch cfg.LogLevel {
	case config.LogLevelDebug:
		logger = slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: slog.LevelDebug}))
	case config.LogLevelInfo:
		logger = slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: slog.LevelInfo}))
	case config.LogLevelWarn:
		logger = slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelWarn}))
	case config.LogLevelError:
		logger = slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelError}))
	default:
		// Fall back to info level for unrecognized log levels to prevent nil logger panic
		logger = slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: slog.LevelInfo}))
	}
	slog.SetDefault(logger)
}

// startBackgroundServices starts metrics and pprof servers
func startBackgroundServices(cfg *config.Config) {
	go func() {
		if err := metrics.CreateMetricsServer(cfg); err != nil {
			slog.Error("Failed to start metrics server", "error", err)
		}
	}()
	go func() {
		if err := pprof.CreatePProfServer(cfg); err != nil {
			slog.Error("Failed to start pprof server", "error", err)
		}
	}()
}

// buildDispatcher wires plugins and transfers from the pipeline definition.
// Any unresolved reference is fatal.
func buildDispatcher(cfg *config.Config, pl *pipeline.Pipeline, client mqtt.Client, m *metrics.Metrics) (*dispatcher.Dispatcher, error) {
	disp := dispatcher.New(client, cfg.MQTT.TopicPrefix, m)
	for _, spec := range pl.Plugins {
		plugin, err := plugins.New(spec, disp)
		if err != nil {
			return nil, fmt.Errorf("failed to create plugin: %w", err)
		}
		if err := disp.AddPlugin(spec.Name, plugin); err != nil {
			return nil, fmt.Errorf("failed to register plugin: %w", err)
		}
	}
	for _, spec := range pl.Transfers {
		if err := disp.AddTransfer(spec); err != nil {
			return nil, fmt.Errorf("failed to create transfer: %w", err)
		}
	}
	return disp, nil
}

// registerCommMetafields exposes the reader statistics to content templates.
func registerCommMetafields(d *dispatcher.Dispatcher, stats *vbus.Stats) {
	d.RegisterMetafield("comm:rxmsg_cnt", func() dispatcher.Value {
		return dispatcher.Int(int64(stats.Snapshot().MsgCount))
	})
	d.RegisterMetafield("comm:rxmsg_last", func() dispatcher.Value {
		return dispatcher.ISOTime(stats.Snapshot().MsgLast)
	})
	d.RegisterMetafield("comm:rxerr_cnt", func() dispatcher.Value {
		return dispatcher.Int(int64(stats.Snapshot().ErrCount))
	})
	d.RegisterMetafield("comm:rxerr_last", func() dispatcher.Value {
		return dispatcher.ISOTime(stats.Snapshot().ErrLast)
	})
}

// setupStatsJob schedules a daily receiver statistics summary.
func setupStatsJob(stats *vbus.Stats) (gocron.Scheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	_, err = scheduler.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(
			gocron.NewAtTime(0, 0, 0),
		)),
		gocron.NewTask(func() {
			s := stats.Snapshot()
			slog.Info("Receiver statistics",
				"rxmsgCount", s.MsgCount, "rxerrCount", s.ErrCount)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule statistics job: %w", err)
	}
	scheduler.Start()
	return scheduler, nil
}

// tickLoop drives the dispatcher: sleep until the earliest pending wakeup,
// capped so configuration-less deployments still poll for signals.
func tickLoop(ctx context.Context, d *dispatcher.Dispatcher) error {
	const maxSleep = time.Second
	for {
		next, ok := d.Tick()
		sleep := maxSleep
		if ok {
			if until := time.Until(next); until < sleep {
				sleep = until
			}
			if sleep < 0 {
				sleep = 0
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(sleep):
		}
	}
}

// waitForSignal blocks until an interrupt arrives, then cancels the run
// context. In-flight transfers are not flushed; the MQTT last will covers
// the offline notification.
func waitForSignal(ctx context.Context, cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		slog.Error("Shutting down due to signal", "signal", sig)
		cancel()
	case <-ctx.Done():
	}
}
