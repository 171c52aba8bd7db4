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

package mqtt

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/chris-heo/vbus2mqtt/internal/config"
)

const (
	keepAlive         = 60 * time.Second
	connectTimeout    = 10 * time.Second
	disconnectQuiesce = 250 // milliseconds granted to in-flight messages
)

type pahoClient struct {
	client pahomqtt.Client
}

func makePahoClient(cfg *config.Config) *pahoClient {
	mcfg := cfg.MQTT
	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", mcfg.Host, mcfg.Port)).
		SetClientID(fmt.Sprintf("vbus2mqtt-%d", os.Getpid())).
		SetKeepAlive(keepAlive).
		SetAutoReconnect(true)
	if mcfg.User != "" {
		opts.SetUsername(mcfg.User)
		opts.SetPassword(mcfg.Pass)
	}
	if mcfg.LastWill.Enabled {
		willTopic := mcfg.TopicPrefix + mcfg.LastWill.Topic
		opts.SetWill(willTopic, mcfg.LastWill.Offline, 0, true)
		opts.SetOnConnectHandler(func(c pahomqtt.Client) {
			slog.Info("MQTT connected", "broker", mcfg.Host)
			c.Publish(willTopic, 0, true, mcfg.LastWill.Online)
		})
	} else {
		opts.SetOnConnectHandler(func(pahomqtt.Client) {
			slog.Info("MQTT connected", "broker", mcfg.Host)
		})
	}
	return &pahoClient{client: pahomqtt.NewClient(opts)}
}

func (c *pahoClient) Connect() error {
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return ErrConnectTimeout
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}
	return nil
}

func (c *pahoClient) Publish(topic string, qos byte, retain bool, payload string) error {
	token := c.client.Publish(topic, qos, retain, payload)
	// Delivery is the broker session's concern; surface failures without
	// blocking the dispatcher.
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			slog.Error("MQTT publish failed", "topic", topic, "error", err)
		}
	}()
	return nil
}

func (c *pahoClient) Disconnect() {
	c.client.Disconnect(disconnectQuiesce)
}
