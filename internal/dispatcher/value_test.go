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

package dispatcher

import (
	"encoding/json"
	"testing"
	"time"
)

func TestValueEqual(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"null null", Null(), Null(), true},
		{"int same", Int(5), Int(5), true},
		{"int differs", Int(5), Int(6), false},
		{"float same", Float(1.5), Float(1.5), true},
		{"text same", Text("x"), Text("x"), true},
		{"text differs", Text("x"), Text("y"), false},
		// A tag change is always a change, even between numerically
		// equal payloads.
		{"int vs float", Int(5), Float(5), false},
		{"null vs int", Null(), Int(0), false},
		{"text vs null", Text(""), Null(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("Equal = %t, want %t", got, tt.want)
			}
			if got := tt.b.Equal(tt.a); got != tt.want {
				t.Errorf("Equal (flipped) = %t, want %t", got, tt.want)
			}
		})
	}
}

func TestValueScalar(t *testing.T) {
	t.Parallel()
	tests := []struct {
		v    Value
		want string
	}{
		{Null(), ""},
		{Int(-5), "-5"},
		{Float(21.5), "21.5"},
		{Text("online"), "online"},
	}
	for _, tt := range tests {
		if got := tt.v.Scalar(); got != tt.want {
			t.Errorf("Scalar(%v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestValueMarshalJSON(t *testing.T) {
	t.Parallel()
	tests := []struct {
		v    Value
		want string
	}{
		{Null(), "null"},
		{Int(7), "7"},
		{Float(-0.5), "-0.5"},
		{Text("a\"b"), `"a\"b"`},
	}
	for _, tt := range tests {
		got, err := json.Marshal(tt.v)
		if err != nil {
			t.Fatalf("Marshal(%v): %v", tt.v, err)
		}
		if string(got) != tt.want {
			t.Errorf("Marshal(%v) = %s, want %s", tt.v, got, tt.want)
		}
	}
}

func TestValueFloat64(t *testing.T) {
	t.Parallel()
	if _, ok := Null().Float64(); ok {
		t.Error("Null should not be numeric")
	}
	if _, ok := Text("5").Float64(); ok {
		t.Error("Text should not be numeric")
	}
	if f, ok := Int(5).Float64(); !ok || f != 5 {
		t.Errorf("Int(5).Float64() = %v, %t", f, ok)
	}
}

func TestISOTime(t *testing.T) {
	t.Parallel()
	if !ISOTime(time.Time{}).IsNull() {
		t.Error("zero time should render as null")
	}
	ts := time.Date(2024, 6, 1, 12, 30, 45, 987654321, time.FixedZone("CEST", 2*3600))
	got := ISOTime(ts.In(time.Local))
	if got.Kind() != KindText {
		t.Fatalf("kind = %v", got.Kind())
	}
	// Seconds precision with a zone offset, no fractional seconds.
	if len(got.Scalar()) != len("2024-06-01T12:30:45+02:00") {
		t.Errorf("unexpected format: %q", got.Scalar())
	}
}
