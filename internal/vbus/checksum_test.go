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
	"bytes"
	"testing"
)

func TestChecksum(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data []byte
		want byte
	}{
		{"empty", nil, 0x7F},
		{"single zero", []byte{0x00}, 0x7F},
		{"header", []byte{0x10, 0x00, 0x20, 0x00, 0x7E, 0x10, 0x00, 0x01}, 0x40},
		{"wraps", []byte{0x7F, 0x7F, 0x7F}, 0x02},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Checksum(tt.data); got != tt.want {
				t.Errorf("Checksum(%v) = 0x%02X, want 0x%02X", tt.data, got, tt.want)
			}
		})
	}
}

func TestChecksumStaysSevenBit(t *testing.T) {
	t.Parallel()
	data := []byte{0xFF, 0x80, 0x13, 0x37}
	if got := Checksum(data); got > 0x7F {
		t.Errorf("Checksum(%v) = 0x%02X exceeds 7 bits", data, got)
	}
}

func TestSeptetDeflate(t *testing.T) {
	t.Parallel()
	got := SeptetDeflate([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x05})
	want := []byte{0x81, 0x02, 0x83, 0x04, 0x05}
	if !bytes.Equal(got, want) {
		t.Errorf("SeptetDeflate = %X, want %X", got, want)
	}
}

func TestSeptetInflate(t *testing.T) {
	t.Parallel()
	got := SeptetInflate([]byte{0x81, 0x02, 0x83, 0x04})
	want := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	if !bytes.Equal(got, want) {
		t.Errorf("SeptetInflate = %X, want %X", got, want)
	}
}

func TestSeptetRoundTrip(t *testing.T) {
	t.Parallel()
	inputs := [][]byte{
		{},
		{0x00},
		{0xFF},
		{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80},
		{0x12, 0xF4, 0x00, 0x7F, 0x80, 0xAA, 0x55},
		{0x81, 0x02, 0x83, 0x04},
	}
	for _, in := range inputs {
		inflated := SeptetInflate(append([]byte(nil), in...))
		for _, b := range inflated[:len(in)] {
			if b > 0x7F {
				t.Errorf("SeptetInflate(%X) left high bit set: %X", in, inflated)
			}
		}
		if got := SeptetDeflate(inflated); !bytes.Equal(got, in) && !(len(in) == 0 && len(got) == 0) {
			t.Errorf("round trip of %X = %X", in, got)
		}
	}
}

func TestSeptetLimits(t *testing.T) {
	t.Parallel()
	if SeptetDeflate(make([]byte, 9)) != nil {
		t.Error("SeptetDeflate should reject more than 8 bytes")
	}
	if SeptetInflate(make([]byte, 8)) != nil {
		t.Error("SeptetInflate should reject more than 7 bytes")
	}
}
