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
	"strconv"
	"time"
)

// Kind tags a Value's variant.
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindText
)

// Value is a dynamically typed field value. Change detection compares
// within the same tag only; a tag change always counts as a change.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
}

func Null() Value           { return Value{} }
func Int(i int64) Value     { return Value{kind: KindInt, i: i} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }
func Text(s string) Value   { return Value{kind: KindText, s: s} }

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Equal reports whether two values carry the same tag and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindText:
		return v.s == o.s
	default:
		return true
	}
}

// Float64 returns the numeric payload, converting integers. The second
// return is false for null and text values.
func (v Value) Float64() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	default:
		return 0, false
	}
}

// Scalar renders the value for a direct (non-JSON) publish. Null renders as
// the empty string.
func (v Value) Scalar() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindText:
		return v.s
	default:
		return ""
	}
}

// MarshalJSON renders the value inside JSON content.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindInt:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case KindFloat:
		return json.Marshal(v.f)
	case KindText:
		return json.Marshal(v.s)
	default:
		return []byte("null"), nil
	}
}

// ISOTime renders a timestamp as ISO 8601 with seconds precision and the
// local offset, or null for the zero time.
func ISOTime(t time.Time) Value {
	if t.IsZero() {
		return Null()
	}
	return Text(t.Local().Format("2006-01-02T15:04:05-07:00"))
}
