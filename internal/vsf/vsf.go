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

// Package vsf reads the binary VBus Specification File: string tables,
// localized texts, units, device templates and packet templates with their
// field and part descriptors. The file is loaded once at startup; the
// resulting Spec is read-only.
package vsf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

// ErrInvalidVsf indicates a corrupt or unsupported specification file.
var ErrInvalidVsf = errors.New("invalid vsf file")

// FieldType classifies how a packet field's value is meant to be displayed.
type FieldType int32

const (
	FieldTypeNumber   FieldType = 1
	FieldTypeReserved FieldType = 2
	FieldTypeTime     FieldType = 3
	FieldTypeWeekTime FieldType = 4
	FieldTypeDateTime FieldType = 5
)

// LocalizedText is an English/German/French translation triple.
type LocalizedText struct {
	EN string
	DE string
	FR string
}

// Unit describes a measurement unit, e.g. "°C" / "Degrees Celsius".
type Unit struct {
	ID       int32
	FamilyID int32
	Code     string
	Text     string
}

// DeviceTemplate matches a bus device by masked self and peer address.
type DeviceTemplate struct {
	SelfAddr uint16
	SelfMask uint16
	PeerAddr uint16
	PeerMask uint16
	Name     LocalizedText
}

// FieldPart is a sub-byte slice contributing to a field's integer sum.
type FieldPart struct {
	Offset   int32
	BitPos   uint8
	Mask     uint8
	IsSigned bool
	Factor   int64
}

// PacketField describes one named value inside a packet payload.
type PacketField struct {
	IDText    string
	Name      LocalizedText
	UnitID    int32
	Precision int32
	Type      FieldType
	Parts     []FieldPart

	fullID string
}

// FullID returns the stable field key: the owning packet's id plus the
// field's id text.
func (f *PacketField) FullID() string { return f.fullID }

// PacketTemplate matches an addressable v1.0 packet and enumerates its
// fields.
type PacketTemplate struct {
	DstAddr uint16
	DstMask uint16
	SrcAddr uint16
	SrcMask uint16
	Command uint16
	Fields  []*PacketField
}

// ID returns the stable packet identifier.
func (p *PacketTemplate) ID() string {
	return fmt.Sprintf("00_%04X_%04X_10_%04X", p.DstAddr, p.SrcAddr, p.Command)
}

// BindFieldIDs assigns every field its stable full id derived from the
// packet id. Parse does this automatically; hand-built templates call it
// explicitly.
func BindFieldIDs(p *PacketTemplate) {
	for _, f := range p.Fields {
		f.fullID = p.ID() + "_" + f.IDText
	}
}

// Spec holds all tables of a loaded specification file.
type Spec struct {
	Datecode        int32
	Texts           []string
	LocalizedTexts  []LocalizedText
	Units           []Unit
	DeviceTemplates []DeviceTemplate
	PacketTemplates []*PacketTemplate
}

// Record sizes in the file, in bytes.
const (
	localizedTextLen  = 12
	unitLen           = 16
	deviceTemplateLen = 12
	packetTemplateLen = 20
	packetFieldLen    = 28
	fieldPartLen      = 16
)

// Load reads and parses the specification file at path.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading vsf file: %w", err)
	}
	return Parse(data)
}

// fileReader is a bounds-checked random-access view of the file with a
// sticky error, matching how the tables reference each other by absolute
// offset.
type fileReader struct {
	data []byte
	err  error
}

func (r *fileReader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s", ErrInvalidVsf, fmt.Sprintf(format, args...))
	}
}

func (r *fileReader) bytes(off, n int32) []byte {
	if off < 0 || n < 0 || int(off)+int(n) > len(r.data) {
		r.fail("read of %d bytes at offset %d beyond file end (%d)", n, off, len(r.data))
		return make([]byte, n)
	}
	return r.data[off : off+n]
}

func (r *fileReader) u8(off int32) uint8 { return r.bytes(off, 1)[0] }

func (r *fileReader) u16(off int32) uint16 {
	return binary.LittleEndian.Uint16(r.bytes(off, 2))
}

func (r *fileReader) i32(off int32) int32 {
	return int32(binary.LittleEndian.Uint32(r.bytes(off, 4)))
}

func (r *fileReader) i64(off int32) int64 {
	return int64(binary.LittleEndian.Uint64(r.bytes(off, 8)))
}

func (r *fileReader) cstring(off int32) string {
	if off < 0 || int(off) >= len(r.data) {
		r.fail("string offset %d beyond file end (%d)", off, len(r.data))
		return ""
	}
	end := bytes.IndexByte(r.data[off:], 0)
	if end < 0 {
		r.fail("unterminated string at offset %d", off)
		return ""
	}
	return string(r.data[off : int(off)+end])
}

type tableRef struct {
	count  int32
	offset int32
}

func (r *fileReader) tableRef(off int32) tableRef {
	return tableRef{count: r.i32(off), offset: r.i32(off + 4)}
}

// Parse decodes a specification file image.
func Parse(data []byte) (*Spec, error) {
	r := &fileReader{data: data}

	checksumA := r.u16(0)
	checksumB := r.u16(2)
	if r.err == nil && checksumA != checksumB {
		return nil, fmt.Errorf("%w: checksum A (0x%04X) and B (0x%04X) differ", ErrInvalidVsf, checksumA, checksumB)
	}
	_ = r.i32(4) // total length
	if version := r.i32(8); r.err == nil && version != 1 {
		return nil, fmt.Errorf("%w: unsupported data version %d", ErrInvalidVsf, version)
	}
	specOffset := r.i32(12)

	spec := &Spec{Datecode: r.i32(specOffset)}
	textRef := r.tableRef(specOffset + 4)
	locRef := r.tableRef(specOffset + 12)
	unitRef := r.tableRef(specOffset + 20)
	devRef := r.tableRef(specOffset + 28)
	pktRef := r.tableRef(specOffset + 36)

	spec.Texts = make([]string, 0, max(textRef.count, 0))
	for i := int32(0); i < textRef.count; i++ {
		addr := r.i32(textRef.offset + i*4)
		spec.Texts = append(spec.Texts, r.cstring(addr))
	}

	text := func(idx int32) string {
		if idx < 0 || int(idx) >= len(spec.Texts) {
			r.fail("text index %d out of range (%d texts)", idx, len(spec.Texts))
			return ""
		}
		return spec.Texts[idx]
	}

	spec.LocalizedTexts = make([]LocalizedText, 0, max(locRef.count, 0))
	for i := int32(0); i < locRef.count; i++ {
		off := locRef.offset + i*localizedTextLen
		spec.LocalizedTexts = append(spec.LocalizedTexts, LocalizedText{
			EN: text(r.i32(off)),
			DE: text(r.i32(off + 4)),
			FR: text(r.i32(off + 8)),
		})
	}

	locText := func(idx int32) LocalizedText {
		if idx < 0 || int(idx) >= len(spec.LocalizedTexts) {
			r.fail("localized text index %d out of range (%d entries)", idx, len(spec.LocalizedTexts))
			return LocalizedText{}
		}
		return spec.LocalizedTexts[idx]
	}

	spec.Units = make([]Unit, 0, max(unitRef.count, 0))
	for i := int32(0); i < unitRef.count; i++ {
		off := unitRef.offset + i*unitLen
		spec.Units = append(spec.Units, Unit{
			ID:       r.i32(off),
			FamilyID: r.i32(off + 4),
			Code:     text(r.i32(off + 8)),
			Text:     text(r.i32(off + 12)),
		})
	}

	spec.DeviceTemplates = make([]DeviceTemplate, 0, max(devRef.count, 0))
	for i := int32(0); i < devRef.count; i++ {
		off := devRef.offset + i*deviceTemplateLen
		spec.DeviceTemplates = append(spec.DeviceTemplates, DeviceTemplate{
			SelfAddr: r.u16(off),
			SelfMask: r.u16(off + 2),
			PeerAddr: r.u16(off + 4),
			PeerMask: r.u16(off + 6),
			Name:     locText(r.i32(off + 8)),
		})
	}

	spec.PacketTemplates = make([]*PacketTemplate, 0, max(pktRef.count, 0))
	for i := int32(0); i < pktRef.count; i++ {
		off := pktRef.offset + i*packetTemplateLen
		pkt := &PacketTemplate{
			DstAddr: r.u16(off),
			DstMask: r.u16(off + 2),
			SrcAddr: r.u16(off + 4),
			SrcMask: r.u16(off + 6),
			Command: r.u16(off + 8),
			// off+10 is reserved
		}
		fieldRef := r.tableRef(off + 12)
		pkt.Fields = make([]*PacketField, 0, max(fieldRef.count, 0))
		for j := int32(0); j < fieldRef.count; j++ {
			foff := fieldRef.offset + j*packetFieldLen
			field := &PacketField{
				IDText:    text(r.i32(foff)),
				Name:      locText(r.i32(foff + 4)),
				UnitID:    r.i32(foff + 8),
				Precision: r.i32(foff + 12),
				Type:      FieldType(r.i32(foff + 16)),
			}
			if field.Type < FieldTypeNumber || field.Type > FieldTypeDateTime {
				r.fail("field %q has unknown type %d", field.IDText, field.Type)
			}
			partRef := r.tableRef(foff + 20)
			field.Parts = make([]FieldPart, 0, max(partRef.count, 0))
			for k := int32(0); k < partRef.count; k++ {
				poff := partRef.offset + k*fieldPartLen
				field.Parts = append(field.Parts, FieldPart{
					Offset:   r.i32(poff),
					BitPos:   r.u8(poff + 4),
					Mask:     r.u8(poff + 5),
					IsSigned: r.u8(poff+6) == 1,
					// poff+7 is reserved
					Factor: r.i64(poff + 8),
				})
			}
			pkt.Fields = append(pkt.Fields, field)
		}
		BindFieldIDs(pkt)
		spec.PacketTemplates = append(spec.PacketTemplates, pkt)
	}

	if r.err != nil {
		return nil, r.err
	}
	return spec, nil
}
