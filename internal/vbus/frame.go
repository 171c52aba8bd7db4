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

package vbus

import (
	"fmt"
	"time"
)

// Protocol version bytes as they appear in byte 5 of the base header.
const (
	ProtocolPacket     = 0x10
	ProtocolDatagram   = 0x20
	ProtocolTelegram30 = 0x30
	ProtocolTelegram31 = 0x31
)

// Frame is a reassembled VBus message. Concrete types are *Packet,
// *Datagram, *Telegram and *Garbage.
type Frame interface {
	Start() time.Time
	End() time.Time
	Raw() []byte
}

type frameTimes struct {
	StartTime time.Time
	EndTime   time.Time
	Buf       []byte
}

func (f *frameTimes) Start() time.Time { return f.StartTime }
func (f *frameTimes) End() time.Time   { return f.EndTime }
func (f *frameTimes) Raw() []byte      { return f.Buf }

// Packet is a protocol v1.0 message: a header followed by 6-byte payload
// frames of 4 septet-encoded payload bytes, a septet and a checksum each.
type Packet struct {
	frameTimes
	Dst        uint16
	Src        uint16
	Command    uint16
	Payload    []byte
	ChecksumOK bool
}

// FullID returns the stable packet identifier used by the VSF tables and the
// dispatcher field keys.
func (p *Packet) FullID() string {
	return fmt.Sprintf("00_%04X_%04X_10_%04X", p.Dst, p.Src, p.Command)
}

// DatagramCommand is the command field of a protocol v2.0 datagram.
type DatagramCommand uint16

const (
	DatagramModuleAnswer      DatagramCommand = 0x0100
	DatagramWriteValueAckReq  DatagramCommand = 0x0200
	DatagramReadValueAckReq   DatagramCommand = 0x0300
	DatagramWriteValueAckReq2 DatagramCommand = 0x0400
	DatagramBusClearMaster    DatagramCommand = 0x0500
	DatagramBusClearSlave     DatagramCommand = 0x0600
	DatagramUnknown           DatagramCommand = 0xFFFF
)

// ParseDatagramCommand maps a raw command word onto the known commands,
// falling back to DatagramUnknown.
func ParseDatagramCommand(v uint16) DatagramCommand {
	switch c := DatagramCommand(v); c {
	case DatagramModuleAnswer, DatagramWriteValueAckReq, DatagramReadValueAckReq,
		DatagramWriteValueAckReq2, DatagramBusClearMaster, DatagramBusClearSlave:
		return c
	default:
		return DatagramUnknown
	}
}

func (c DatagramCommand) String() string {
	switch c {
	case DatagramModuleAnswer:
		return "ModuleAnswer"
	case DatagramWriteValueAckReq:
		return "WriteValueAckReq"
	case DatagramReadValueAckReq:
		return "ReadValueAckReq"
	case DatagramWriteValueAckReq2:
		return "WriteValueAckReq2"
	case DatagramBusClearMaster:
		return "BusClearMaster"
	case DatagramBusClearSlave:
		return "BusClearSlave"
	default:
		return "Unknown"
	}
}

// Datagram is a protocol v2.0 message carrying a single id/value pair.
type Datagram struct {
	frameTimes
	Dst        uint16
	Src        uint16
	Command    DatagramCommand
	ID         uint16
	Value      uint32
	ChecksumOK bool
}

// Telegram is a protocol v3.0 or v3.1 message. Only the addresses are
// parsed; the body stays opaque.
type Telegram struct {
	frameTimes
	Dst     uint16
	Src     uint16
	Version byte
}

// Garbage is any run of bytes that could not be framed.
type Garbage struct {
	frameTimes
}
