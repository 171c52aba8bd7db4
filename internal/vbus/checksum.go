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

// Checksum calculates the VBus checksum over data. The checksum byte itself
// and the sync byte are never part of the input.
func Checksum(data []byte) byte {
	c := byte(0x7F)
	for _, b := range data {
		c = (c - b) & 0x7F
	}
	return c
}

// SeptetDeflate injects the septet bits carried by the last byte of data into
// the preceding bytes and strips the septet byte. The input is limited to 7
// payload bytes plus the septet.
func SeptetDeflate(data []byte) []byte {
	if len(data) == 0 || len(data) > 8 {
		return nil
	}
	out := make([]byte, len(data)-1)
	septet := data[len(data)-1]
	for i := range out {
		out[i] = data[i]
		if septet&(1<<i) != 0 {
			out[i] |= 0x80
		}
	}
	return out
}

// SeptetInflate extracts the high bits of up to 7 bytes into a septet byte,
// masks the payload down to 7 bits and appends the septet. It is the inverse
// of SeptetDeflate.
func SeptetInflate(data []byte) []byte {
	if len(data) > 7 {
		return nil
	}
	out := make([]byte, len(data)+1)
	var septet byte
	for i, b := range data {
		if b&0x80 != 0 {
			septet |= 1 << i
		}
		out[i] = b & 0x7F
	}
	out[len(data)] = septet
	return out
}
