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
	"errors"

	"github.com/chris-heo/vbus2mqtt/internal/config"
)

// ErrConnectTimeout indicates the broker did not answer the connect attempt
// in time.
var ErrConnectTimeout = errors.New("mqtt connect timed out")

// Client is the message bus surface the dispatcher publishes to.
type Client interface {
	// Connect establishes the broker session and arms the last will.
	Connect() error
	// Publish hands a message to the bus. Delivery is not awaited.
	Publish(topic string, qos byte, retain bool, payload string) error
	// Disconnect closes the session. The broker delivers the last will for
	// unclean disconnects only.
	Disconnect()
}

// MakeClient creates the broker client for the given configuration.
func MakeClient(cfg *config.Config) Client {
	return makePahoClient(cfg)
}
