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

package vsf

import (
	"errors"
	"fmt"
	"math"
)

// ErrShortPayload indicates a payload shorter than a field part's offset.
var ErrShortPayload = errors.New("payload too short")

// DecodedField is one field's decoded value. Fields with a non-zero
// precision scale to a float; everything else stays an integer.
type DecodedField struct {
	Field    *PacketField
	Int      int64
	Float    float64
	Floating bool
}

// Decode decodes every field of the template from the packet payload, in
// template order.
func (p *PacketTemplate) Decode(payload []byte) ([]DecodedField, error) {
	result := make([]DecodedField, 0, len(p.Fields))
	for _, field := range p.Fields {
		dv, err := field.decode(payload)
		if err != nil {
			return nil, err
		}
		result = append(result, dv)
	}
	return result, nil
}

func (f *PacketField) decode(payload []byte) (DecodedField, error) {
	var sum int64
	for _, part := range f.Parts {
		if part.Offset < 0 || int(part.Offset) >= len(payload) {
			return DecodedField{}, fmt.Errorf("%w: field %q needs byte %d of %d",
				ErrShortPayload, f.IDText, part.Offset, len(payload))
		}
		raw := (payload[part.Offset] & part.Mask) >> part.BitPos
		var v int64
		if part.IsSigned {
			v = int64(int8(raw))
		} else {
			v = int64(raw)
		}
		sum += v * part.Factor
	}

	dv := DecodedField{Field: f, Int: sum}
	if f.Precision != 0 {
		dv.Float = float64(sum) * math.Pow(10, -float64(f.Precision))
		dv.Floating = true
	}
	return dv, nil
}
