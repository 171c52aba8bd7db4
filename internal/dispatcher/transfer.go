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
	"fmt"
	"log/slog"
	"time"

	"github.com/chris-heo/vbus2mqtt/internal/pipeline"
)

// Transfer is one publish job: a trigger deciding when to transmit and a
// content template deciding what.
type Transfer struct {
	d       *Dispatcher
	topic   string
	retain  bool
	qos     byte
	trigger trigger
	content content
	// Transfer-scoped metafields shadow the dispatcher's table. None are
	// predefined.
	meta map[string]MetaFunc
}

// AddTransfer builds a transfer from its spec, resolves plugin references
// and installs its field subscriptions into the store.
func (d *Dispatcher) AddTransfer(spec pipeline.TransferSpec) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	t := &Transfer{
		d:      d,
		topic:  spec.MQTT.Topic,
		retain: spec.MQTT.Retain,
		qos:    spec.MQTT.QoS,
		meta:   make(map[string]MetaFunc),
	}

	switch spec.Trigger.Type {
	case pipeline.TriggerUpdate:
		t.trigger = &updateTrigger{item: spec.Trigger.Item}
	case pipeline.TriggerInterval:
		t.trigger = &intervalTrigger{
			period: time.Duration(spec.Trigger.Interval * float64(time.Second)),
			maxAge: spec.Trigger.MaxAge,
			next:   d.now(),
		}
	default:
		return fmt.Errorf("transfer %q: unknown trigger type %q", spec.MQTT.Topic, spec.Trigger.Type)
	}

	var err error
	switch spec.Type {
	case pipeline.ContentDirect:
		var item contentItem
		item, err = t.buildItem(*spec.Field)
		t.content = &directContent{item: item}
	case pipeline.ContentJSON:
		var items []contentItem
		items, err = t.buildItems(spec.Fields)
		t.content = &jsonContent{items: items}
	default:
		err = fmt.Errorf("unknown content type %q", spec.Type)
	}
	if err != nil {
		return fmt.Errorf("transfer %q: %w", spec.MQTT.Topic, err)
	}

	idx := len(d.transfers)
	d.transfers = append(d.transfers, t)
	for _, key := range t.content.subscriptions() {
		d.subscribe(key, idx)
	}
	return nil
}

// updated forwards a batch notification to the trigger and transmits when
// it fires.
func (t *Transfer) updated(keys map[string]struct{}, ts time.Time) {
	if t.trigger.updated(keys, ts) {
		t.transmit()
	}
}

func (t *Transfer) changed(keys map[string]struct{}, ts time.Time) {
	if t.trigger.changed(keys, ts) {
		t.transmit()
	}
}

func (t *Transfer) tick(now time.Time) (time.Time, bool) {
	fire, next, ok := t.trigger.tick(now)
	if fire {
		t.transmit()
	}
	return next, ok
}

// transmit renders the content template and hands it to the bus. A mapping
// serializes as JSON, a scalar publishes as-is, null as the empty string.
func (t *Transfer) transmit() {
	var payload string
	switch c := t.content.render().(type) {
	case *object:
		b, err := json.Marshal(c)
		if err != nil {
			slog.Error("Failed to serialize transfer content", "topic", t.topic, "error", err)
			return
		}
		payload = string(b)
	case Value:
		payload = c.Scalar()
	}
	t.d.publish(t.topic, t.qos, t.retain, payload)
}

// trigger decides when its transfer transmits. The updated/changed
// notifications carry the touched field keys of one ingestion batch.
type trigger interface {
	updated(keys map[string]struct{}, ts time.Time) bool
	changed(keys map[string]struct{}, ts time.Time) bool
	tick(now time.Time) (fire bool, next time.Time, ok bool)
}

// updateTrigger transmits whenever its item (or, without an item, any
// subscribed field) was part of an ingestion batch.
type updateTrigger struct {
	item string
}

func (u *updateTrigger) updated(keys map[string]struct{}, _ time.Time) bool {
	if u.item == "" {
		return true
	}
	_, ok := keys[u.item]
	return ok
}

func (u *updateTrigger) changed(map[string]struct{}, time.Time) bool { return false }

func (u *updateTrigger) tick(time.Time) (bool, time.Time, bool) { return false, time.Time{}, false }

// intervalTrigger transmits on a fixed period. Missed beats are dropped:
// when the schedule lags behind the clock, the next transmit re-anchors at
// now plus one period.
type intervalTrigger struct {
	period time.Duration
	maxAge *float64
	next   time.Time
}

func (i *intervalTrigger) updated(map[string]struct{}, time.Time) bool { return false }
func (i *intervalTrigger) changed(map[string]struct{}, time.Time) bool { return false }

func (i *intervalTrigger) tick(now time.Time) (bool, time.Time, bool) {
	fire := false
	if !now.Before(i.next) {
		fire = true
		i.next = i.next.Add(i.period)
		if !i.next.After(now) {
			i.next = now.Add(i.period)
		}
	}
	return fire, i.next, true
}
