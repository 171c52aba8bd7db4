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
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/chris-heo/vbus2mqtt/internal/dispatcher"
	"github.com/chris-heo/vbus2mqtt/internal/pipeline"
)

// ErrUnknownMedium indicates a heat-transfer medium preset that is not in
// the table.
var ErrUnknownMedium = errors.New("unknown medium")

const pumpFlowSlots = 11

// medium models the heat capacity and density of the transfer fluid as
// affine functions of temperature: c(T) = cM*T + cT, rho(T) = rhoM*T + rhoT.
type medium struct {
	cM, cT     float64
	rhoM, rhoT float64
}

// Presets for common fluids. Reference data:
// pure water:                c = 4.18 kJ/(kg*K), rho =  998 kg/m³
// pure 1,2-propylene glycol: c = 2.5,            rho = 1040
// pure ethylene glycol:      c = 2.4,            rho = 1110
var mediumPresets = map[string]medium{
	// Tyfocor(R) G-LS, a 1,2-propylene glycol mix
	"tyfoclor_g-ls": {cM: 0.004, cT: 3.52, rhoM: -0.86, rhoT: 1062.2},
}

// SolarPower derives the collector circuit's thermal power from the heat
// exchanger inlet/outlet temperatures and the pump level.
type SolarPower struct {
	store FieldReader

	fieldTIn  string
	fieldTOut string
	fieldPump string
	// Flow rate in l/min per 10% pump level. A nil slot means the flow is
	// unknown at that level.
	pumpFlow [pumpFlowSlots]*float64
	medium   medium
}

func newSolarPower(cfg map[string]any, store FieldReader) (dispatcher.Plugin, error) {
	p := &SolarPower{store: store}

	var err error
	if p.fieldTIn, err = cfgString(cfg, "field_tin"); err != nil {
		return nil, err
	}
	if p.fieldTOut, err = cfgString(cfg, "field_tout"); err != nil {
		return nil, err
	}
	if p.fieldPump, err = cfgString(cfg, "field_pump"); err != nil {
		return nil, err
	}

	rawFlow, ok := cfg["pump_flow"]
	if !ok {
		return nil, fmt.Errorf("%w: %q", pipeline.ErrMissingKey, "pump_flow")
	}
	flow, ok := rawFlow.([]any)
	if !ok || len(flow) != pumpFlowSlots {
		return nil, fmt.Errorf("%w: %q must have %d elements", pipeline.ErrInvalidValue, "pump_flow", pumpFlowSlots)
	}
	for i, slot := range flow {
		if slot == nil {
			continue
		}
		f, err := asFloat(slot, "pump_flow")
		if err != nil {
			return nil, err
		}
		p.pumpFlow[i] = &f
	}

	if err := p.configureMedium(cfg); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *SolarPower) configureMedium(cfg map[string]any) error {
	raw, ok := cfg["medium"]
	if !ok {
		return fmt.Errorf("%w: %q", pipeline.ErrMissingKey, "medium")
	}
	switch m := raw.(type) {
	case string:
		preset, ok := mediumPresets[m]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownMedium, m)
		}
		p.medium = preset
		return nil
	case map[string]any:
		var err error
		if p.medium.cM, err = cfgFloatOr(m, "c_m", 0); err != nil {
			return err
		}
		if p.medium.cT, err = cfgFloat(m, "c_t"); err != nil {
			return err
		}
		if p.medium.rhoM, err = cfgFloatOr(m, "rho_m", 0); err != nil {
			return err
		}
		if p.medium.rhoT, err = cfgFloat(m, "rho_t"); err != nil {
			return err
		}
		return nil
	default:
		return fmt.Errorf("%w: %q must be a preset name or a coefficient object", pipeline.ErrInvalidValue, "medium")
	}
}

// Tick implements dispatcher.Plugin; the plugin computes on demand only.
func (p *SolarPower) Tick(time.Time) (time.Time, bool) { return time.Time{}, false }

// Subscriptions implements dispatcher.Plugin. The values are not pushed to
// the plugin; subscribing makes the store retain them for the on-demand
// reads.
func (p *SolarPower) Subscriptions() []string {
	return []string{p.fieldTIn, p.fieldTOut, p.fieldPump}
}

func (p *SolarPower) HasFunction(name string) bool { return name == "power" }

func (p *SolarPower) Call(name string) (dispatcher.Value, error) {
	if name != "power" {
		return dispatcher.Null(), fmt.Errorf("%w: %q", dispatcher.ErrUnknownPluginFunction, name)
	}
	return p.power(), nil
}

// power returns the thermal power in watts, or null while any input is
// missing or the pump level has no flow-rate entry.
func (p *SolarPower) power() dispatcher.Value {
	tIn, ok := p.store.FieldValue(p.fieldTIn, nil).Float64()
	if !ok {
		return dispatcher.Null()
	}
	tOut, ok := p.store.FieldValue(p.fieldTOut, nil).Float64()
	if !ok {
		return dispatcher.Null()
	}
	pump, ok := p.store.FieldValue(p.fieldPump, nil).Float64()
	if !ok {
		return dispatcher.Null()
	}

	slot := int(math.Floor(pump / 10))
	if slot < 0 || slot >= pumpFlowSlots || p.pumpFlow[slot] == nil {
		return dispatcher.Null()
	}
	flow := *p.pumpFlow[slot]

	tDiff := tIn - tOut
	tAvg := (tIn + tOut) / 2

	c := p.medium.cM*tAvg + p.medium.cT       // kJ/(kg*K)
	rho := p.medium.rhoM*tAvg + p.medium.rhoT // kg/m³

	return dispatcher.Float(c * rho * flow / 60 * tDiff)
}
