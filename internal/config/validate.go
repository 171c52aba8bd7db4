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

package config

import "errors"

var (
	// ErrInvalidLogLevel indicates that the provided log level is not valid.
	ErrInvalidLogLevel = errors.New("invalid log level provided")
	// ErrSerialPortRequired indicates that no serial port was configured.
	ErrSerialPortRequired = errors.New("serial port is required")
	// ErrInvalidBaudRate indicates that the provided baud rate is not valid.
	ErrInvalidBaudRate = errors.New("invalid baud rate provided")
	// ErrVSFPathRequired indicates that no VBus specification file was configured.
	ErrVSFPathRequired = errors.New("path to the VBus specification file is required")
	// ErrPipelineRequired indicates that no pipeline definition was configured.
	ErrPipelineRequired = errors.New("path to the pipeline definition is required")
	// ErrInvalidMQTTHost indicates that the provided MQTT host is not valid.
	ErrInvalidMQTTHost = errors.New("invalid MQTT host provided")
	// ErrInvalidMQTTPort indicates that the provided MQTT port is not valid.
	ErrInvalidMQTTPort = errors.New("invalid MQTT port provided")
	// ErrLastWillTopicRequired indicates that the last will is enabled without a topic.
	ErrLastWillTopicRequired = errors.New("last will topic is required when the last will is enabled")
	// ErrInvalidMetricsBindAddress indicates that the provided metrics server bind address is not valid.
	ErrInvalidMetricsBindAddress = errors.New("invalid metrics server bind address provided")
	// ErrInvalidMetricsPort indicates that the provided metrics server port is not valid.
	ErrInvalidMetricsPort = errors.New("invalid metrics server port provided")
	// ErrInvalidPProfBindAddress indicates that the provided PProf server bind address is not valid.
	ErrInvalidPProfBindAddress = errors.New("invalid PProf server bind address provided")
	// ErrInvalidPProfPort indicates that the provided PProf server port is not valid.
	ErrInvalidPProfPort = errors.New("invalid PProf server port provided")
)

// Validate validates the VBus configuration.
func (v VBus) Validate() error {
	if v.SerialPort == "" {
		return ErrSerialPortRequired
	}
	if v.Baud <= 0 {
		return ErrInvalidBaudRate
	}
	if v.VSF == "" {
		return ErrVSFPathRequired
	}
	if v.Pipeline == "" {
		return ErrPipelineRequired
	}
	return nil
}

// Validate validates the MQTT configuration.
func (m MQTT) Validate() error {
	if m.Host == "" {
		return ErrInvalidMQTTHost
	}
	if m.Port <= 0 || m.Port > 65535 {
		return ErrInvalidMQTTPort
	}
	if m.LastWill.Enabled && m.LastWill.Topic == "" {
		return ErrLastWillTopicRequired
	}
	return nil
}

// Validate validates the Metrics configuration.
func (m Metrics) Validate() error {
	if !m.Enabled {
		return nil
	}

	if m.Bind == "" {
		return ErrInvalidMetricsBindAddress
	}
	if m.Port <= 0 || m.Port > 65535 {
		return ErrInvalidMetricsPort
	}

	return nil
}

// Validate validates the PProf configuration.
func (p PProf) Validate() error {
	if !p.Enabled {
		return nil
	}

	if p.Bind == "" {
		return ErrInvalidPProfBindAddress
	}
	if p.Port <= 0 || p.Port > 65535 {
		return ErrInvalidPProfPort
	}

	return nil
}

func (c Config) Validate() error {
	if c.LogLevel != LogLevelDebug &&
		c.LogLevel != LogLevelInfo &&
		c.LogLevel != LogLevelWarn &&
		c.LogLevel != LogLevelError {
		return ErrInvalidLogLevel
	}

	if err := c.VBus.Validate(); err != nil {
		return err
	}

	if err := c.MQTT.Validate(); err != nil {
		return err
	}

	if err := c.Metrics.Validate(); err != nil {
		return err
	}

	if err := c.PProf.Validate(); err != nil {
		return err
	}

	return nil
}
