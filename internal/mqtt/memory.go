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

import "sync"

// Message is a published message captured by the memory client.
type Message struct {
	Topic   string
	QoS     byte
	Retain  bool
	Payload string
}

// MemoryClient is a Client that records published messages. Tests use it in
// place of a broker session.
type MemoryClient struct {
	mu       sync.Mutex
	messages []Message
}

// NewMemoryClient creates an empty capture client.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{}
}

func (c *MemoryClient) Connect() error { return nil }

func (c *MemoryClient) Publish(topic string, qos byte, retain bool, payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, Message{Topic: topic, QoS: qos, Retain: retain, Payload: payload})
	return nil
}

func (c *MemoryClient) Disconnect() {}

// Published returns a copy of all captured messages in publish order.
func (c *MemoryClient) Published() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Reset drops all captured messages.
func (c *MemoryClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}
