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

package plugins

import (
	"fmt"

	"github.com/chris-heo/vbus2mqtt/internal/pipeline"
)

// Accessors for the free-form plugin configuration objects. Numbers decode
// from JSON5 as float64.

func cfgString(cfg map[string]any, key string) (string, error) {
	v, ok := cfg[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", pipeline.ErrMissingKey, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %q must be a string", pipeline.ErrInvalidValue, key)
	}
	return s, nil
}

func cfgFloat(cfg map[string]any, key string) (float64, error) {
	v, ok := cfg[key]
	if !ok {
		return 0, fmt.Errorf("%w: %q", pipeline.ErrMissingKey, key)
	}
	return asFloat(v, key)
}

func cfgFloatOr(cfg map[string]any, key string, def float64) (float64, error) {
	v, ok := cfg[key]
	if !ok {
		return def, nil
	}
	return asFloat(v, key)
}

func asFloat(v any, key string) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("%w: %q must be a number", pipeline.ErrInvalidValue, key)
	}
}
