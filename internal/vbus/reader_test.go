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
	"sync"
	"testing"
	"time"

	"github.com/chris-heo/vbus2mqtt/internal/dispatcher"
	"github.com/chris-heo/vbus2mqtt/internal/vsf"
	"github.com/stretchr/testify/require"
)

// fakePort replays a byte stream in one chunk; every later read calls onIdle
// and reports an idle read (io.EOF).
type fakePort struct {
	data   []byte
	onIdle func()
	closed bool
}

func (p *fakePort) Read(buf []byte) (int, error) {
	if len(p.data) == 0 {
		p.onIdle()
		return 0, io.EOF
	}
	n := copy(buf, p.data)
	p.data = p.data[n:]
	return n, nil
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

type captureSink struct {
	mu      sync.Mutex
	batches []map[string]dispatcher.Value
}

func (s *captureSink) UpdateFields(values map[string]dispatcher.Value, _ time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, values)
}

func (s *captureSink) all() []map[string]dispatcher.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]dispatcher.Value(nil), s.batches...)
}

// testSpec builds a minimal in-memory specification: one packet template
// for src 0x4211 → dst 0x0010, command 0x0100, with a signed temperature
// field at payload offset 0 and precision 1.
func testSpec() *vsf.Spec {
	field := &vsf.PacketField{
		IDText:    "000_1_0",
		Precision: 1,
		Type:      vsf.FieldTypeNumber,
		Parts: []vsf.FieldPart{
			{Offset: 0, BitPos: 0, Mask: 0xFF, IsSigned: true, Factor: 1},
		},
	}
	pkt := &vsf.PacketTemplate{
		DstAddr: 0x0010,
		DstMask: 0xFFF0,
		SrcAddr: 0x4211,
		SrcMask: 0xFFFF,
		Command: 0x0100,
		Fields:  []*vsf.PacketField{field},
	}
	vsf.BindFieldIDs(pkt)
	return &vsf.Spec{PacketTemplates: []*vsf.PacketTemplate{pkt}}
}

func runReader(t *testing.T, stream []byte) (*captureSink, *Stats, error) {
	t.Helper()
	sink := &captureSink{}
	stats := &Stats{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &Reader{
		spec:  testSpec(),
		sink:  sink,
		stats: stats,
		asm:   NewReassembler(),
	}
	r.open = func() (io.ReadCloser, error) {
		return &fakePort{data: stream, onIdle: cancel}, nil
	}
	err := r.Run(ctx)
	return sink, stats, err
}

func TestReaderDecodesPacketIntoSink(t *testing.T) {
	t.Parallel()
	// Payload byte 0xFB is -5 signed; precision 1 scales it to -0.5.
	stream := buildPacket(t, 0x0010, 0x4211, 0x0100, []byte{0xFB, 0x00, 0x00, 0x00})
	sink, stats, err := runReader(t, stream)
	require.NoError(t, err)

	batches := sink.all()
	require.Len(t, batches, 1)
	v, ok := batches[0]["00_0010_4211_10_0100_000_1_0"]
	require.True(t, ok, "field key missing, got %v", batches[0])
	f, isNum := v.Float64()
	require.True(t, isNum)
	require.InDelta(t, -0.5, f, 1e-9)

	s := stats.Snapshot()
	require.Equal(t, uint64(1), s.MsgCount)
	require.Equal(t, uint64(0), s.ErrCount)
	require.False(t, s.MsgLast.IsZero())
}

func TestReaderCountsGarbage(t *testing.T) {
	t.Parallel()
	_, stats, err := runReader(t, []byte{SOF, 0x01, 0xFF})
	require.NoError(t, err)

	s := stats.Snapshot()
	require.Equal(t, uint64(0), s.MsgCount)
	require.Equal(t, uint64(1), s.ErrCount)
	require.False(t, s.ErrLast.IsZero())
}

func TestReaderUnknownTemplateSkipped(t *testing.T) {
	t.Parallel()
	stream := buildPacket(t, 0x0010, 0x1111, 0x0100, []byte{1, 2, 3, 4})
	sink, stats, err := runReader(t, stream)
	require.NoError(t, err)

	require.Empty(t, sink.all())
	// Still a valid message, just nothing to decode it against.
	require.Equal(t, uint64(1), stats.Snapshot().MsgCount)
}

func TestReaderOpenFailure(t *testing.T) {
	t.Parallel()
	r := &Reader{
		spec:  testSpec(),
		sink:  &captureSink{},
		stats: &Stats{},
		asm:   NewReassembler(),
	}
	r.open = func() (io.ReadCloser, error) {
		return nil, errors.New("no such device")
	}
	err := r.Run(context.Background())
	require.ErrorIs(t, err, ErrSerialUnavailable)
}

func TestReaderReopensAfterReadError(t *testing.T) {
	t.Parallel()
	sink := &captureSink{}
	stats := &Stats{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := buildPacket(t, 0x0010, 0x4211, 0x0100, []byte{0x10, 0x00, 0x00, 0x00})
	opens := 0
	r := &Reader{
		spec:  testSpec(),
		sink:  sink,
		stats: stats,
		asm:   NewReassembler(),
	}
	r.open = func() (io.ReadCloser, error) {
		opens++
		if opens == 1 {
			return &brokenPort{}, nil
		}
		return &fakePort{data: stream, onIdle: cancel}, nil
	}

	err := r.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, opens)
	require.Len(t, sink.all(), 1)
}

type brokenPort struct{}

func (p *brokenPort) Read([]byte) (int, error) { return 0, errors.New("device unplugged") }
func (p *brokenPort) Close() error             { return nil }
