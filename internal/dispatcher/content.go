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
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/chris-heo/vbus2mqtt/internal/pipeline"
)

// object is a JSON mapping that keeps its configuration order. Go maps
// would serialize with sorted keys; the bus payload should mirror the
// pipeline definition instead.
type object struct {
	keys []string
	vals []any
}

func (o *object) set(key string, val any) {
	o.keys = append(o.keys, key)
	o.vals = append(o.vals, val)
}

func (o *object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(o.vals[i])
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// content is a transfer's payload template.
type content interface {
	// render produces either a Value or an *object.
	render() any
	// subscriptions lists the field keys the content reads.
	subscriptions() []string
}

type directContent struct {
	item contentItem
}

func (c *directContent) render() any { return c.item.render() }

func (c *directContent) subscriptions() []string { return c.item.subscriptions(nil) }

type jsonContent struct {
	items []contentItem
}

func (c *jsonContent) render() any {
	o := &object{}
	for _, item := range c.items {
		o.set(item.name(), item.render())
	}
	return o
}

func (c *jsonContent) subscriptions() []string {
	var keys []string
	for _, item := range c.items {
		keys = item.subscriptions(keys)
	}
	return keys
}

// contentItem is one node of the content template.
type contentItem interface {
	name() string
	// render produces a Value or, for groups, an *object.
	render() any
	subscriptions(keys []string) []string
}

// buildItems converts item specs into content items.
func (t *Transfer) buildItems(specs []pipeline.ItemSpec) ([]contentItem, error) {
	items := make([]contentItem, 0, len(specs))
	for i := range specs {
		item, err := t.buildItem(specs[i])
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (t *Transfer) buildItem(spec pipeline.ItemSpec) (contentItem, error) {
	switch spec.Kind() {
	case pipeline.ItemGroup:
		children, err := t.buildItems(spec.Fields)
		if err != nil {
			return nil, err
		}
		return &groupItem{nm: spec.Group, children: children}, nil
	case pipeline.ItemValue:
		return &valueItem{t: t, nm: spec.Name, key: spec.Item, maxAge: spec.MaxAge}, nil
	case pipeline.ItemMeta:
		return &metaItem{t: t, nm: spec.Name, metaKey: spec.Meta}, nil
	case pipeline.ItemPlugin:
		plugin, ok := t.d.plugins[spec.Plugin]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPlugin, spec.Plugin)
		}
		if !plugin.HasFunction(spec.Function) {
			return nil, fmt.Errorf("%w: %q of plugin %q", ErrUnknownPluginFunction, spec.Function, spec.Plugin)
		}
		return &pluginItem{nm: spec.Name, plugin: plugin, pluginName: spec.Plugin, fn: spec.Function}, nil
	default:
		return nil, fmt.Errorf("content item needs one of group, item, meta or plugin")
	}
}

// groupItem renders its children into a nested mapping.
type groupItem struct {
	nm       string
	children []contentItem
}

func (g *groupItem) name() string { return g.nm }

func (g *groupItem) render() any {
	o := &object{}
	for _, child := range g.children {
		o.set(child.name(), child.render())
	}
	return o
}

func (g *groupItem) subscriptions(keys []string) []string {
	for _, child := range g.children {
		keys = child.subscriptions(keys)
	}
	return keys
}

// valueItem reads a field from the store, optionally rejecting stale
// values.
type valueItem struct {
	t      *Transfer
	nm     string
	key    string
	maxAge *float64
}

func (v *valueItem) name() string { return v.nm }

func (v *valueItem) render() any { return v.t.d.FieldValue(v.key, v.maxAge) }

func (v *valueItem) subscriptions(keys []string) []string { return append(keys, v.key) }

// metaItem reads a metafield.
type metaItem struct {
	t       *Transfer
	nm      string
	metaKey string
}

func (m *metaItem) name() string { return m.nm }

func (m *metaItem) render() any { return m.t.d.metafield(m.metaKey, m.t) }

func (m *metaItem) subscriptions(keys []string) []string { return keys }

// pluginItem invokes a plugin capability.
type pluginItem struct {
	nm         string
	plugin     Plugin
	pluginName string
	fn         string
}

func (p *pluginItem) name() string { return p.nm }

func (p *pluginItem) render() any {
	v, err := p.plugin.Call(p.fn)
	if err != nil {
		slog.Warn("Plugin call failed", "plugin", p.pluginName, "function", p.fn, "error", err)
		return Null()
	}
	return v
}

func (p *pluginItem) subscriptions(keys []string) []string {
	return append(keys, p.plugin.Subscriptions()...)
}
