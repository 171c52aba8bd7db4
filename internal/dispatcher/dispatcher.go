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

// Package dispatcher routes decoded field values to MQTT transfers. It owns
// the field store, the transfer list, the plugin instances and the
// metafield tables. All mutation goes through one mutex: the serial reader
// pushes batches in via UpdateFields while the main loop drives Tick.
package dispatcher

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/chris-heo/vbus2mqtt/internal/metrics"
	"github.com/chris-heo/vbus2mqtt/internal/mqtt"
)

var (
	// ErrUnknownPlugin indicates a transfer references a plugin name that
	// was never instantiated.
	ErrUnknownPlugin = errors.New("unknown plugin")
	// ErrUnknownPluginFunction indicates a plugin does not expose the
	// requested capability.
	ErrUnknownPluginFunction = errors.New("unknown plugin function")
)

// MetaFunc computes a metafield value on demand.
type MetaFunc func() Value

// Plugin is a computation module supplying derived values to transfers.
// Tick and Call run under the dispatcher's serialization; field access from
// inside them must go through FieldValue, not GetFieldValue.
type Plugin interface {
	// Tick is called once per dispatcher tick and returns the earliest
	// time the plugin wants to be polled again, if any.
	Tick(now time.Time) (time.Time, bool)
	// Subscriptions are the field keys the plugin reads on demand. They
	// are installed into the field store so the values are retained.
	Subscriptions() []string
	// HasFunction reports whether the capability exists.
	HasFunction(name string) bool
	// Call invokes a capability and returns its scalar result.
	Call(name string) (Value, error)
}

type field struct {
	value   Value
	ts      time.Time
	updated bool
	changed bool
	// Transfers subscribed to this key, as indices into the dispatcher's
	// transfer list. Fields reference transfers by index and transfers
	// reference fields by key, so there are no ownership cycles.
	transfers []int
}

// Dispatcher is the field store plus transfer engine.
type Dispatcher struct {
	mu        sync.Mutex
	client    mqtt.Client
	prefix    string
	fields    map[string]*field
	transfers []*Transfer
	plugins   map[string]Plugin
	// Plugin names in registration order, for deterministic ticks.
	pluginOrder []string
	meta        map[string]MetaFunc
	metrics     *metrics.Metrics
	start       time.Time

	now func() time.Time
}

// New creates an empty dispatcher publishing through client. Plugins and
// transfers are added afterwards with AddPlugin and AddTransfer.
func New(client mqtt.Client, topicPrefix string, m *metrics.Metrics) *Dispatcher {
	d := &Dispatcher{
		client:  client,
		prefix:  topicPrefix,
		fields:  make(map[string]*field),
		plugins: make(map[string]Plugin),
		meta:    make(map[string]MetaFunc),
		metrics: m,
		start:   time.Now(),
		now:     time.Now,
	}
	d.meta["sw:ramuse"] = func() Value {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		return Int(int64(ms.Alloc))
	}
	d.meta["sw:pid"] = func() Value { return Int(int64(os.Getpid())) }
	d.meta["sw:uptime"] = func() Value {
		return Int(int64(d.now().Sub(d.start).Round(time.Second) / time.Second))
	}
	d.meta["time:now"] = func() Value { return ISOTime(d.now()) }
	return d
}

// RegisterMetafield adds or replaces a process-wide metafield.
func (d *Dispatcher) RegisterMetafield(name string, fn MetaFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.meta[name] = fn
}

// AddPlugin registers a plugin instance under its configured name.
func (d *Dispatcher) AddPlugin(name string, p Plugin) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.plugins[name]; ok {
		return fmt.Errorf("plugin %q registered twice", name)
	}
	d.plugins[name] = p
	d.pluginOrder = append(d.pluginOrder, name)
	return nil
}

// subscribe installs a field for key and attaches the transfer to it.
func (d *Dispatcher) subscribe(key string, transferIdx int) {
	f, ok := d.fields[key]
	if !ok {
		f = &field{}
		d.fields[key] = f
	}
	for _, ti := range f.transfers {
		if ti == transferIdx {
			return
		}
	}
	f.transfers = append(f.transfers, transferIdx)
}

// UpdateFields applies a batch of decoded values. Values for keys no
// transfer subscribes to are skipped. Affected transfers are notified in
// transfer-list order, first about the update, then (where a value really
// changed) about the change; all updated/changed flags are cleared before
// the call returns.
func (d *Dispatcher) UpdateFields(values map[string]Value, ts time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	touched := make(map[string]struct{}, len(values))
	updatedTransfers := make(map[int]struct{})
	changedTransfers := make(map[int]struct{})

	for key, value := range values {
		f, ok := d.fields[key]
		if !ok {
			continue
		}
		f.updated = true
		f.ts = ts
		changed := false
		if !f.value.Equal(value) {
			f.value = value
			f.changed = true
			changed = true
		}
		touched[key] = struct{}{}
		for _, ti := range f.transfers {
			updatedTransfers[ti] = struct{}{}
			if changed {
				changedTransfers[ti] = struct{}{}
			}
		}
	}
	d.metrics.AddFieldUpdates(len(touched))

	for i, t := range d.transfers {
		if _, ok := updatedTransfers[i]; ok {
			t.updated(touched, ts)
		}
	}
	for i, t := range d.transfers {
		if _, ok := changedTransfers[i]; ok {
			t.changed(touched, ts)
		}
	}

	for _, f := range d.fields {
		f.updated = false
		f.changed = false
	}
}

// FieldValue reads a field's current value without taking the dispatcher
// lock. It exists for plugins and content rendering, which always run
// under the dispatcher's serialization already.
func (d *Dispatcher) FieldValue(key string, maxAge *float64) Value {
	f, ok := d.fields[key]
	if !ok {
		return Null()
	}
	if maxAge != nil {
		if f.ts.IsZero() || d.now().Sub(f.ts).Seconds() > *maxAge {
			return Null()
		}
	}
	return f.value
}

// GetFieldValue is the externally safe variant of FieldValue.
func (d *Dispatcher) GetFieldValue(key string, maxAge *float64) Value {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.FieldValue(key, maxAge)
}

// metafield resolves a metafield name, trying the transfer's own table
// before the process-wide one.
func (d *Dispatcher) metafield(name string, t *Transfer) Value {
	if t != nil {
		if fn, ok := t.meta[name]; ok {
			return fn()
		}
	}
	if fn, ok := d.meta[name]; ok {
		return fn()
	}
	return Text(fmt.Sprintf("unknown meta field '%s'", name))
}

// Tick drives interval transfers and plugin wakeups. It returns the
// earliest future instant at which anything wants to run again.
func (d *Dispatcher) Tick() (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	var next time.Time
	has := false
	merge := func(t time.Time, ok bool) {
		if !ok {
			return
		}
		if !has || t.Before(next) {
			next = t
			has = true
		}
	}

	for _, name := range d.pluginOrder {
		merge(d.plugins[name].Tick(now))
	}
	for _, t := range d.transfers {
		merge(t.tick(now))
	}
	return next, has
}

// Fields returns the currently installed field keys, for diagnostics.
func (d *Dispatcher) Fields() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	keys := make([]string, 0, len(d.fields))
	for k := range d.fields {
		keys = append(keys, k)
	}
	return keys
}

func (d *Dispatcher) publish(topic string, qos byte, retain bool, payload string) {
	if err := d.client.Publish(d.prefix+topic, qos, retain, payload); err != nil {
		slog.Error("Failed to publish transfer", "topic", topic, "error", err)
		d.metrics.RecordPublish("error")
		return
	}
	d.metrics.RecordPublish("ok")
}
