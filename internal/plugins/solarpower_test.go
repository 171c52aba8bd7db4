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
	"testing"
	"time"

	"github.com/chris-heo/vbus2mqtt/internal/dispatcher"
	"github.com/chris-heo/vbus2mqtt/internal/pipeline"
	"github.com/stretchr/testify/require"
)

// mapStore is a FieldReader over a plain map.
type mapStore map[string]dispatcher.Value

func (s mapStore) FieldValue(key string, _ *float64) dispatcher.Value {
	if v, ok := s[key]; ok {
		return v
	}
	return dispatcher.Null()
}

func solarConfig() map[string]any {
	flow := make([]any, 11)
	for i := range flow {
		flow[i] = float64(i) // l/min per 10% pump level
	}
	flow[1] = nil // unknown slot
	return map[string]any{
		"field_tin":  "f/tin",
		"field_tout": "f/tout",
		"field_pump": "f/pump",
		"pump_flow":  flow,
		"medium":     "tyfoclor_g-ls",
	}
}

func newSolar(t *testing.T, cfg map[string]any, store FieldReader) dispatcher.Plugin {
	t.Helper()
	p, err := New(pipeline.PluginSpec{Name: "solar", Module: "vbus2mqtt:solarpower", Config: cfg}, store)
	require.NoError(t, err)
	return p
}

func TestSolarPowerComputation(t *testing.T) {
	t.Parallel()
	store := mapStore{
		"f/tin":  dispatcher.Float(60),
		"f/tout": dispatcher.Float(40),
		"f/pump": dispatcher.Int(100),
	}
	p := newSolar(t, solarConfig(), store)

	v, err := p.Call("power")
	require.NoError(t, err)
	got, ok := v.Float64()
	require.True(t, ok)

	// tAvg = 50: c = 0.004*50 + 3.52 = 3.72, rho = -0.86*50 + 1062.2 = 1019.2
	// flow slot 10 carries 10 l/min; power = 3.72 * 1019.2 * 10/60 * 20
	require.InDelta(t, 3.72*1019.2*10.0/60.0*20.0, got, 1e-6)
}

func TestSolarPowerNullInputs(t *testing.T) {
	t.Parallel()
	for _, missing := range []string{"f/tin", "f/tout", "f/pump"} {
		store := mapStore{
			"f/tin":  dispatcher.Float(60),
			"f/tout": dispatcher.Float(40),
			"f/pump": dispatcher.Int(100),
		}
		delete(store, missing)
		p := newSolar(t, solarConfig(), store)
		v, err := p.Call("power")
		require.NoError(t, err)
		require.True(t, v.IsNull(), "power should be null without %s", missing)
	}
}

func TestSolarPowerUnknownFlowSlot(t *testing.T) {
	t.Parallel()
	store := mapStore{
		"f/tin":  dispatcher.Float(60),
		"f/tout": dispatcher.Float(40),
		"f/pump": dispatcher.Int(15), // slot 1 is null in the fixture
	}
	p := newSolar(t, solarConfig(), store)
	v, err := p.Call("power")
	require.NoError(t, err)
	require.True(t, v.IsNull())
}

func TestSolarPowerPumpLevelOutOfRange(t *testing.T) {
	t.Parallel()
	store := mapStore{
		"f/tin":  dispatcher.Float(60),
		"f/tout": dispatcher.Float(40),
		"f/pump": dispatcher.Int(400),
	}
	p := newSolar(t, solarConfig(), store)
	v, err := p.Call("power")
	require.NoError(t, err)
	require.True(t, v.IsNull())
}

func TestSolarPowerInlineMedium(t *testing.T) {
	t.Parallel()
	cfg := solarConfig()
	cfg["medium"] = map[string]any{"c_t": 4.18, "rho_t": 998.0}
	store := mapStore{
		"f/tin":  dispatcher.Float(50),
		"f/tout": dispatcher.Float(30),
		"f/pump": dispatcher.Int(100),
	}
	p := newSolar(t, cfg, store)
	v, err := p.Call("power")
	require.NoError(t, err)
	got, ok := v.Float64()
	require.True(t, ok)
	require.InDelta(t, 4.18*998.0*10.0/60.0*20.0, got, 1e-6)
}

func TestSolarPowerConfigErrors(t *testing.T) {
	t.Parallel()

	t.Run("unknown module", func(t *testing.T) {
		t.Parallel()
		_, err := New(pipeline.PluginSpec{Name: "x", Module: "nope"}, mapStore{})
		require.ErrorIs(t, err, dispatcher.ErrUnknownPlugin)
	})

	t.Run("unknown medium", func(t *testing.T) {
		t.Parallel()
		cfg := solarConfig()
		cfg["medium"] = "unobtainium"
		_, err := New(pipeline.PluginSpec{Name: "x", Module: "vbus2mqtt:solarpower", Config: cfg}, mapStore{})
		require.ErrorIs(t, err, ErrUnknownMedium)
	})

	t.Run("missing field key", func(t *testing.T) {
		t.Parallel()
		cfg := solarConfig()
		delete(cfg, "field_tin")
		_, err := New(pipeline.PluginSpec{Name: "x", Module: "vbus2mqtt:solarpower", Config: cfg}, mapStore{})
		require.ErrorIs(t, err, pipeline.ErrMissingKey)
	})

	t.Run("wrong flow table size", func(t *testing.T) {
		t.Parallel()
		cfg := solarConfig()
		cfg["pump_flow"] = []any{1.0, 2.0}
		_, err := New(pipeline.PluginSpec{Name: "x", Module: "vbus2mqtt:solarpower", Config: cfg}, mapStore{})
		require.ErrorIs(t, err, pipeline.ErrInvalidValue)
	})

	t.Run("missing medium coefficient", func(t *testing.T) {
		t.Parallel()
		cfg := solarConfig()
		cfg["medium"] = map[string]any{"c_t": 4.18}
		_, err := New(pipeline.PluginSpec{Name: "x", Module: "vbus2mqtt:solarpower", Config: cfg}, mapStore{})
		require.ErrorIs(t, err, pipeline.ErrMissingKey)
	})
}

func TestSolarPowerPluginSurface(t *testing.T) {
	t.Parallel()
	p := newSolar(t, solarConfig(), mapStore{})

	require.ElementsMatch(t, []string{"f/tin", "f/tout", "f/pump"}, p.Subscriptions())
	require.True(t, p.HasFunction("power"))
	require.False(t, p.HasFunction("energy"))

	_, err := p.Call("energy")
	require.ErrorIs(t, err, dispatcher.ErrUnknownPluginFunction)

	_, ok := p.Tick(time.Now())
	require.False(t, ok, "solar power plugin needs no wakeups")
}
