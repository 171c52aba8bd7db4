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
	"testing"
	"time"

	"github.com/chris-heo/vbus2mqtt/internal/dispatcher"
	"github.com/chris-heo/vbus2mqtt/internal/mqtt"
	"github.com/chris-heo/vbus2mqtt/internal/pipeline"
	"github.com/chris-heo/vbus2mqtt/internal/vbus"
	"github.com/go-co-op/gocron/v2"
)

func testMetaTransfer() pipeline.TransferSpec {
	return pipeline.TransferSpec{
		MQTT:    pipeline.MQTTSpec{Topic: "stats"},
		Trigger: pipeline.TriggerSpec{Type: pipeline.TriggerInterval, Interval: 60},
		Type:    pipeline.ContentJSON,
		Fields: []pipeline.ItemSpec{
			{Name: "rxmsg", Meta: "comm:rxmsg_cnt"},
			{Name: "rxerr", Meta: "comm:rxerr_cnt"},
		},
	}
}

func TestNewCommandMetadata(t *testing.T) {
	t.Parallel()
	cmd := NewCommand("1.2.3", "abcdef")
	if cmd.Use != "vbus2mqtt" {
		t.Errorf("Use = %q", cmd.Use)
	}
	if cmd.Annotations["version"] != "1.2.3" || cmd.Annotations["commit"] != "abcdef" {
		t.Errorf("annotations = %v", cmd.Annotations)
	}
}

func TestTickLoopStopsOnCancel(t *testing.T) {
	t.Parallel()
	d := dispatcher.New(mqtt.NewMemoryClient(), "", nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- tickLoop(ctx, d)
	}()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("tickLoop returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("tickLoop did not stop on context cancellation")
	}
}

func TestShutdownCompletes(t *testing.T) {
	t.Parallel()
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	scheduler.Start()

	// Both teardown tasks finish immediately here, so shutdown must
	// return well before its forced-exit timeout.
	done := make(chan struct{})
	go func() {
		defer close(done)
		shutdown(scheduler, mqtt.NewMemoryClient())
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not complete")
	}
}

func TestRegisterCommMetafields(t *testing.T) {
	t.Parallel()
	client := mqtt.NewMemoryClient()
	d := dispatcher.New(client, "", nil)
	stats := &vbus.Stats{}
	registerCommMetafields(d, stats)

	ts := time.Now()
	stats.RecordMessage(ts)
	stats.RecordMessage(ts)
	stats.RecordError(ts)

	spec := testMetaTransfer()
	if err := d.AddTransfer(spec); err != nil {
		t.Fatalf("AddTransfer: %v", err)
	}
	if _, ok := d.Tick(); !ok {
		t.Fatal("expected a pending wakeup from the interval transfer")
	}
	msgs := client.Published()
	if len(msgs) != 1 {
		t.Fatalf("got %d publishes, want 1", len(msgs))
	}
	want := `{"rxmsg":2,"rxerr":1}`
	if msgs[0].Payload != want {
		t.Errorf("payload = %s, want %s", msgs[0].Payload, want)
	}
}
