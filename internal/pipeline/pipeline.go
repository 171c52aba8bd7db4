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

// Package pipeline loads the JSON5 pipeline definition: the plugins to
// instantiate and the transfers that publish field values to MQTT.
package pipeline

import (
	"errors"
	"fmt"
	"os"

	"github.com/yosuke-furukawa/json5/encoding/json5"
)

var (
	// ErrMissingKey indicates a required configuration key is absent.
	ErrMissingKey = errors.New("missing configuration key")
	// ErrInvalidValue indicates a configuration value is out of range or of
	// an unknown kind.
	ErrInvalidValue = errors.New("invalid configuration value")
)

// Pipeline is the parsed pipeline definition.
type Pipeline struct {
	Plugins   []PluginSpec   `json:"plugins"`
	Transfers []TransferSpec `json:"transfers"`
}

// PluginSpec instantiates a plugin from the registry.
type PluginSpec struct {
	Name   string         `json:"name"`
	Module string         `json:"module"`
	Config map[string]any `json:"config"`
}

// MQTTSpec is the publish target of a transfer.
type MQTTSpec struct {
	Topic  string `json:"topic"`
	Retain bool   `json:"retain"`
	QoS    byte   `json:"qos"`
}

// TriggerSpec selects when a transfer transmits.
type TriggerSpec struct {
	Type     string   `json:"type"`
	Item     string   `json:"item"`
	Interval float64  `json:"interval"`
	MaxAge   *float64 `json:"max_age"`
}

// Trigger types.
const (
	TriggerUpdate   = "update"
	TriggerInterval = "interval"
)

// Content types.
const (
	ContentDirect = "direct"
	ContentJSON   = "json"
)

// ItemKind discriminates content items by which key is present.
type ItemKind int

const (
	ItemInvalid ItemKind = iota
	ItemGroup
	ItemValue
	ItemMeta
	ItemPlugin
)

// ItemSpec is one content item; the populated key decides its kind.
type ItemSpec struct {
	Group    string     `json:"group"`
	Fields   []ItemSpec `json:"fields"`
	Name     string     `json:"name"`
	Item     string     `json:"item"`
	MaxAge   *float64   `json:"max_age"`
	Meta     string     `json:"meta"`
	Plugin   string     `json:"plugin"`
	Function string     `json:"function"`
}

// Kind reports the item's kind, probing the discriminating keys in the
// same order the configuration format defines them.
func (s *ItemSpec) Kind() ItemKind {
	switch {
	case s.Group != "":
		return ItemGroup
	case s.Item != "":
		return ItemValue
	case s.Meta != "":
		return ItemMeta
	case s.Plugin != "":
		return ItemPlugin
	default:
		return ItemInvalid
	}
}

// TransferSpec is one publish job.
type TransferSpec struct {
	MQTT    MQTTSpec    `json:"mqtt"`
	Trigger TriggerSpec `json:"trigger"`
	Type    string      `json:"type"`
	Field   *ItemSpec   `json:"field"`
	Fields  []ItemSpec  `json:"fields"`
}

// Load reads and validates the pipeline file at path.
func Load(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pipeline file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a JSON5 pipeline definition.
func Parse(data []byte) (*Pipeline, error) {
	var p Pipeline
	if err := json5.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing pipeline file: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the pipeline definition for structural errors.
func (p *Pipeline) Validate() error {
	for i, plugin := range p.Plugins {
		if plugin.Name == "" {
			return fmt.Errorf("%w: plugins[%d].name", ErrMissingKey, i)
		}
		if plugin.Module == "" {
			return fmt.Errorf("%w: plugins[%d].module", ErrMissingKey, i)
		}
	}
	for i, t := range p.Transfers {
		if err := t.validate(); err != nil {
			return fmt.Errorf("transfers[%d]: %w", i, err)
		}
	}
	return nil
}

func (t *TransferSpec) validate() error {
	if t.MQTT.Topic == "" {
		return fmt.Errorf("%w: mqtt.topic", ErrMissingKey)
	}
	if t.MQTT.QoS > 2 {
		return fmt.Errorf("%w: mqtt.qos %d", ErrInvalidValue, t.MQTT.QoS)
	}

	switch t.Trigger.Type {
	case TriggerUpdate:
	case TriggerInterval:
		if t.Trigger.Interval <= 0 {
			return fmt.Errorf("%w: trigger.interval must be positive", ErrInvalidValue)
		}
	case "":
		return fmt.Errorf("%w: trigger.type", ErrMissingKey)
	default:
		return fmt.Errorf("%w: trigger.type %q", ErrInvalidValue, t.Trigger.Type)
	}

	switch t.Type {
	case ContentDirect:
		if t.Field == nil {
			return fmt.Errorf("%w: field", ErrMissingKey)
		}
		return t.Field.validate(true)
	case ContentJSON:
		if t.Fields == nil {
			return fmt.Errorf("%w: fields", ErrMissingKey)
		}
		return validateItems(t.Fields)
	case "":
		return fmt.Errorf("%w: type", ErrMissingKey)
	default:
		return fmt.Errorf("%w: type %q", ErrInvalidValue, t.Type)
	}
}

func validateItems(items []ItemSpec) error {
	for i := range items {
		if err := items[i].validate(false); err != nil {
			return err
		}
	}
	return nil
}

func (s *ItemSpec) validate(direct bool) error {
	switch s.Kind() {
	case ItemGroup:
		// The group key doubles as the item name.
		if s.Fields == nil {
			return fmt.Errorf("%w: fields of group %q", ErrMissingKey, s.Group)
		}
		return validateItems(s.Fields)
	case ItemValue, ItemMeta:
	case ItemPlugin:
		if s.Function == "" {
			return fmt.Errorf("%w: function of plugin item %q", ErrMissingKey, s.Plugin)
		}
	default:
		return fmt.Errorf("%w: content item needs one of group, item, meta or plugin", ErrMissingKey)
	}
	// The direct content's single item publishes without a surrounding
	// object, so only there the name is optional.
	if !direct && s.Name == "" {
		return fmt.Errorf("%w: name", ErrMissingKey)
	}
	return nil
}
