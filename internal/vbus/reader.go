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

package vbus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/chris-heo/vbus2mqtt/internal/dispatcher"
	"github.com/chris-heo/vbus2mqtt/internal/metrics"
	"github.com/chris-heo/vbus2mqtt/internal/vsf"
	"github.com/tarm/serial"
)

// ErrSerialUnavailable indicates the serial port could not be opened or
// re-opened.
var ErrSerialUnavailable = errors.New("serial port unavailable")

const (
	readTimeout   = 5 * time.Second
	reopenBackoff = 1 * time.Second
)

// FieldSink receives decoded field batches. The dispatcher implements it.
type FieldSink interface {
	UpdateFields(values map[string]dispatcher.Value, ts time.Time)
}

// Reader drains the serial port, reassembles frames, decodes v1.0 packets
// against the VSF and forwards the values to the field sink.
type Reader struct {
	spec    *vsf.Spec
	sink    FieldSink
	stats   *Stats
	metrics *metrics.Metrics
	asm     *Reassembler

	// open is swapped out by tests to avoid a real serial port.
	open func() (io.ReadCloser, error)
}

// NewReader creates a reader for the given serial port.
func NewReader(port string, baud int, spec *vsf.Spec, sink FieldSink, stats *Stats, m *metrics.Metrics) *Reader {
	return &Reader{
		spec:    spec,
		sink:    sink,
		stats:   stats,
		metrics: m,
		asm:     NewReassembler(),
		open: func() (io.ReadCloser, error) {
			return serial.OpenPort(&serial.Config{
				Name:        port,
				Baud:        baud,
				ReadTimeout: readTimeout,
			})
		},
	}
}

// Run drains the port until the context is cancelled. Transient read errors
// trigger a re-open with backoff; a failed re-open terminates the reader.
func (r *Reader) Run(ctx context.Context) error {
	port, err := r.open()
	if err != nil {
		slog.Error("Failed to open serial port", "error", err)
		return errors.Join(ErrSerialUnavailable, err)
	}
	defer func() {
		if port != nil {
			port.Close()
		}
	}()
	slog.Info("VBus reader started")

	buf := make([]byte, 256)
	for {
		select {
		case <-ctx.Done():
			slog.Info("VBus reader stopped")
			return nil
		default:
		}

		n, err := port.Read(buf)
		if n > 0 {
			r.metrics.AddRxBytes(n)
			for _, f := range r.asm.FeedBytes(buf[:n]) {
				r.handleFrame(f)
			}
		}
		if err != nil && !errors.Is(err, io.EOF) {
			slog.Warn("Serial port read failed, re-opening", "error", err)
			port.Close()
			port = nil

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(reopenBackoff):
			}

			port, err = r.open()
			if err != nil {
				slog.Error("Failed to re-open serial port", "error", err)
				return errors.Join(ErrSerialUnavailable, err)
			}
		}
	}
}

func (r *Reader) handleFrame(f Frame) {
	switch f := f.(type) {
	case *Garbage:
		r.stats.RecordError(f.End())
		r.metrics.RecordRxError("garbage")
	case *Packet:
		r.stats.RecordMessage(f.End())
		r.metrics.RecordFrame("packet")
		r.decodePacket(f)
	case *Datagram:
		if !f.ChecksumOK {
			r.stats.RecordError(f.End())
			r.metrics.RecordRxError("checksum")
			return
		}
		r.stats.RecordMessage(f.End())
		r.metrics.RecordFrame("datagram")
		slog.Debug("Datagram received",
			"src", f.Src, "dst", f.Dst, "command", f.Command.String(),
			"id", f.ID, "value", f.Value)
	case *Telegram:
		r.stats.RecordMessage(f.End())
		r.metrics.RecordFrame("telegram")
	}
}

func (r *Reader) decodePacket(p *Packet) {
	tmpl := r.spec.Packet(p.Src, p.Dst, p.Command)
	if tmpl == nil {
		slog.Debug("No packet template for message",
			"src", p.Src, "dst", p.Dst, "command", p.Command)
		return
	}
	decoded, err := tmpl.Decode(p.Payload)
	if err != nil {
		slog.Warn("Failed to decode packet payload",
			"id", p.FullID(), "error", err)
		r.stats.RecordError(p.End())
		r.metrics.RecordRxError("decode")
		return
	}

	values := make(map[string]dispatcher.Value, len(decoded))
	for _, dv := range decoded {
		var v dispatcher.Value
		if dv.Floating {
			f := dv.Float
			if dv.Field.Type == vsf.FieldTypeNumber {
				// Round to the field's precision so artifacts of the
				// base-10 scaling don't end up on the bus.
				scale := math.Pow(10, float64(dv.Field.Precision))
				f = math.Round(f*scale) / scale
			}
			v = dispatcher.Float(f)
		} else {
			v = dispatcher.Int(dv.Int)
		}
		values[dv.Field.FullID()] = v
	}
	r.sink.UpdateFields(values, p.End())
}
