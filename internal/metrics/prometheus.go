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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the receiver and publisher instrumentation. A nil
// *Metrics is a valid no-op receiver so tests don't have to touch the
// global prometheus registry.
type Metrics struct {
	// VBus receiver metrics
	RxBytesTotal  prometheus.Counter
	RxFramesTotal *prometheus.CounterVec
	RxErrorsTotal *prometheus.CounterVec

	// Dispatcher metrics
	PublishesTotal *prometheus.CounterVec
	FieldUpdates   prometheus.Counter
}

func NewMetrics() *Metrics {
	metrics := &Metrics{
		RxBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vbus_rx_bytes_total",
			Help: "The total number of bytes read from the serial port",
		}),
		RxFramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vbus_rx_frames_total",
			Help: "The total number of valid frames reassembled",
		}, []string{"kind"}),
		RxErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vbus_rx_errors_total",
			Help: "The total number of frames dropped as garbage or invalid",
		}, []string{"cause"}),
		PublishesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mqtt_publishes_total",
			Help: "The total number of transfer publishes handed to the broker session",
		}, []string{"status"}),
		FieldUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatcher_field_updates_total",
			Help: "The total number of field values installed into the field store",
		}),
	}
	metrics.register()
	return metrics
}

func (m *Metrics) register() {
	prometheus.MustRegister(m.RxBytesTotal)
	prometheus.MustRegister(m.RxFramesTotal)
	prometheus.MustRegister(m.RxErrorsTotal)
	prometheus.MustRegister(m.PublishesTotal)
	prometheus.MustRegister(m.FieldUpdates)
}

func (m *Metrics) AddRxBytes(n int) {
	if m == nil {
		return
	}
	m.RxBytesTotal.Add(float64(n))
}

func (m *Metrics) RecordFrame(kind string) {
	if m == nil {
		return
	}
	m.RxFramesTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordRxError(cause string) {
	if m == nil {
		return
	}
	m.RxErrorsTotal.WithLabelValues(cause).Inc()
}

func (m *Metrics) RecordPublish(status string) {
	if m == nil {
		return
	}
	m.PublishesTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) AddFieldUpdates(n int) {
	if m == nil {
		return
	}
	m.FieldUpdates.Add(float64(n))
}
