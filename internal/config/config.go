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

// Config stores the application configuration.
type Config struct {
	LogLevel LogLevel `name:"log-level" description:"Logging level. One of debug, info, warn, error" default:"info"`
	VBus     VBus     `name:"vbus"`
	MQTT     MQTT     `name:"mqtt"`
	Metrics  Metrics  `name:"metrics"`
	PProf    PProf    `name:"pprof"`
}

// VBus configures the serial link and the specification files.
type VBus struct {
	SerialPort string `name:"serial-port" description:"Serial port the VBus adapter is attached to"`
	Baud       int    `name:"baud" description:"Serial baud rate" default:"9600"`
	VSF        string `name:"vsf" description:"Path to the VBus specification file (VSF)"`
	Pipeline   string `name:"pipeline" description:"Path to the JSON5 pipeline definition (plugins and transfers)"`
}

// MQTT configures the broker session.
type MQTT struct {
	Host        string   `name:"host" description:"MQTT broker host" default:"localhost"`
	Port        int      `name:"port" description:"MQTT broker port" default:"1883"`
	User        string   `name:"user" description:"MQTT username"`
	Pass        string   `name:"pass" description:"MQTT password"`
	TopicPrefix string   `name:"topic-prefix" description:"Prefix prepended to every published topic"`
	LastWill    LastWill `name:"last-will"`
}

// LastWill configures the broker-side offline marker and its online
// counterpart published after each connect.
type LastWill struct {
	Enabled bool   `name:"enabled" description:"Publish online/offline markers" default:"false"`
	Topic   string `name:"topic" description:"Status topic, relative to the topic prefix" default:"status"`
	Online  string `name:"online" description:"Payload published after connecting" default:"online"`
	Offline string `name:"offline" description:"Payload the broker publishes when the session dies" default:"offline"`
}

// Metrics configures the prometheus endpoint.
type Metrics struct {
	Enabled bool   `name:"enabled" description:"Enable the metrics server" default:"false"`
	Bind    string `name:"bind" description:"Address to bind the metrics server to" default:"[::]"`
	Port    int    `name:"port" description:"Port to bind the metrics server to" default:"9000"`
}

// PProf configures the debug profiling endpoint.
type PProf struct {
	Enabled bool   `name:"enabled" description:"Enable the pprof server" default:"false"`
	Bind    string `name:"bind" description:"Address to bind the pprof server to" default:"[::]"`
	Port    int    `name:"port" description:"Port to bind the pprof server to" default:"6060"`
}
