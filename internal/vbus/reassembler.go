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
	"encoding/binary"
	"log/slog"
	"time"
)

// SOF is the VBus start-of-frame sync byte. It is the only byte on the wire
// with the high bit set; everything else is septet-encoded.
const SOF = 0xAA

const (
	baseHeaderLen   = 6
	packetHeaderLen = 10
	packetFrameLen  = 6
	datagramLen     = 16
	// One 8-byte telegram header plus a single 9-byte telegram body. The
	// header carries no length field, so chained telegrams cannot be
	// delimited; only the single-body case is framed.
	telegramLen = baseHeaderLen + 8 + 9
)

// Reassembler turns a VBus byte stream back into frames. It is a
// single-threaded byte sink: each Feed call consumes one byte and yields at
// most one frame. It never blocks and tolerates arbitrary input.
type Reassembler struct {
	buf       []byte
	start     time.Time
	receiving bool
	protocol  byte
	expected  int

	now func() time.Time
}

// NewReassembler returns a Reassembler using the wall clock for frame
// timestamps.
func NewReassembler() *Reassembler {
	return &Reassembler{now: time.Now}
}

func (r *Reassembler) reset() {
	r.buf = nil
	r.receiving = false
	r.protocol = 0
	r.expected = 0
}

// Feed consumes a single byte and returns the frame it completed, or nil.
func (r *Reassembler) Feed(b byte) Frame {
	now := r.now()
	if len(r.buf) == 0 {
		r.start = now
	}

	switch {
	case b == SOF:
		var out Frame
		if len(r.buf) > 0 {
			// An unfinished message truncated by the next sync byte.
			out = &Garbage{frameTimes{StartTime: r.start, EndTime: now, Buf: r.buf}}
		}
		r.buf = []byte{b}
		r.start = now
		r.receiving = true
		r.protocol = 0
		r.expected = 0
		return out
	case b > 0x7F:
		// Payload bytes are 7-bit; a high bit outside SOF is line noise.
		buf := append(r.buf, b)
		start := r.start
		r.reset()
		return &Garbage{frameTimes{StartTime: start, EndTime: now, Buf: buf}}
	case !r.receiving:
		return nil
	}

	r.buf = append(r.buf, b)

	if len(r.buf) == baseHeaderLen {
		r.protocol = r.buf[5]
		switch r.protocol {
		case ProtocolPacket:
			// Length known only after the full header.
		case ProtocolDatagram:
			r.expected = datagramLen
		case ProtocolTelegram30:
			r.expected = telegramLen
		case ProtocolTelegram31:
			// v3.1 lengths are unknown; the base header is all we frame.
			r.expected = baseHeaderLen
		default:
			// Unknown protocol: accumulate until the next SOF or noise
			// byte flushes the buffer as garbage.
			r.expected = 0
		}
	}

	if r.protocol == ProtocolPacket && len(r.buf) == packetHeaderLen {
		if Checksum(r.buf[1:packetHeaderLen-1]) != r.buf[packetHeaderLen-1] {
			slog.Debug("vbus: header checksum mismatch, dropping message",
				"dst", binary.LittleEndian.Uint16(r.buf[1:3]),
				"src", binary.LittleEndian.Uint16(r.buf[3:5]))
			// The buffer is kept so the drop still surfaces as garbage on
			// the next sync byte.
			r.receiving = false
			return nil
		}
		r.expected = packetHeaderLen + int(r.buf[8])*packetFrameLen
	}

	if r.expected >= baseHeaderLen && len(r.buf) == r.expected {
		f := r.complete(now)
		r.reset()
		return f
	}
	return nil
}

// FeedBytes feeds a chunk of bytes and collects the completed frames.
func (r *Reassembler) FeedBytes(p []byte) []Frame {
	var frames []Frame
	for _, b := range p {
		if f := r.Feed(b); f != nil {
			frames = append(frames, f)
		}
	}
	return frames
}

func (r *Reassembler) complete(now time.Time) Frame {
	ft := frameTimes{StartTime: r.start, EndTime: now, Buf: r.buf}
	dst := binary.LittleEndian.Uint16(r.buf[1:3])
	src := binary.LittleEndian.Uint16(r.buf[3:5])

	switch r.protocol {
	case ProtocolPacket:
		p := &Packet{
			frameTimes: ft,
			Dst:        dst,
			Src:        src,
			Command:    binary.LittleEndian.Uint16(r.buf[6:8]),
			ChecksumOK: true,
		}
		frames := int(r.buf[8])
		p.Payload = make([]byte, 0, frames*(packetFrameLen-2))
		for i := 0; i < frames; i++ {
			raw := r.buf[packetHeaderLen+i*packetFrameLen:]
			raw = raw[:packetFrameLen]
			if Checksum(raw[:packetFrameLen-1]) != raw[packetFrameLen-1] {
				p.ChecksumOK = false
			}
			p.Payload = append(p.Payload, SeptetDeflate(raw[:packetFrameLen-1])...)
		}
		if !p.ChecksumOK {
			slog.Debug("vbus: payload frame checksum mismatch",
				"src", src, "dst", dst, "command", p.Command)
			return &Garbage{ft}
		}
		return p
	case ProtocolDatagram:
		d := &Datagram{
			frameTimes: ft,
			Dst:        dst,
			Src:        src,
			Command:    ParseDatagramCommand(binary.LittleEndian.Uint16(r.buf[6:8])),
			ID:         binary.LittleEndian.Uint16(r.buf[8:10]),
			ChecksumOK: Checksum(r.buf[1:datagramLen-1]) == r.buf[datagramLen-1],
		}
		val := SeptetDeflate(r.buf[10:15])
		for i, v := range val {
			d.Value |= uint32(v) << (i * 8)
		}
		return d
	case ProtocolTelegram30, ProtocolTelegram31:
		return &Telegram{frameTimes: ft, Dst: dst, Src: src, Version: r.protocol}
	default:
		return &Garbage{ft}
	}
}
