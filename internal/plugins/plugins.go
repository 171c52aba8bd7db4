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

// Package plugins hosts the built-in computation modules. The pipeline's
// module reference resolves against a registry of constructors populated at
// program start.
package plugins

import (
	"fmt"

	"github.com/chris-heo/vbus2mqtt/internal/dispatcher"
	"github.com/chris-heo/vbus2mqtt/internal/pipeline"
)

// FieldReader is the plugin's view of the field store. The dispatcher
// implements it.
type FieldReader interface {
	FieldValue(key string, maxAge *float64) dispatcher.Value
}

type constructor func(cfg map[string]any, store FieldReader) (dispatcher.Plugin, error)

// registry maps pipeline module references onto constructors.
var registry = map[string]constructor{
	"vbus2mqtt:solarpower": newSolarPower,
}

// New instantiates the plugin named by the spec's module reference.
func New(spec pipeline.PluginSpec, store FieldReader) (dispatcher.Plugin, error) {
	ctor, ok := registry[spec.Module]
	if !ok {
		return nil, fmt.Errorf("%w: module %q", dispatcher.ErrUnknownPlugin, spec.Module)
	}
	p, err := ctor(spec.Config, store)
	if err != nil {
		return nil, fmt.Errorf("plugin %q: %w", spec.Name, err)
	}
	return p, nil
}

// Modules lists the registered module references.
func Modules() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
