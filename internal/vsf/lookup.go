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

package vsf

// The packet id prefix "00_DDDD_SSSS_10_CCCC" is 20 characters; the field
// id text follows after a separating underscore.
const packetIDLen = 20

// UnitByID returns the unit with the given id, or nil.
func (s *Spec) UnitByID(id int32) *Unit {
	for i := range s.Units {
		if s.Units[i].ID == id {
			return &s.Units[i]
		}
	}
	return nil
}

// Device returns the first device template matching the masked self
// address, or nil.
func (s *Spec) Device(selfAddr uint16) *DeviceTemplate {
	for i := range s.DeviceTemplates {
		if d := &s.DeviceTemplates[i]; selfAddr&d.SelfMask == d.SelfAddr {
			return d
		}
	}
	return nil
}

// DeviceWithPeer returns the first device template matching both the masked
// self and peer addresses, or nil.
func (s *Spec) DeviceWithPeer(selfAddr, peerAddr uint16) *DeviceTemplate {
	for i := range s.DeviceTemplates {
		d := &s.DeviceTemplates[i]
		if selfAddr&d.SelfMask == d.SelfAddr && peerAddr&d.PeerMask == d.PeerAddr {
			return d
		}
	}
	return nil
}

// Packet returns the first packet template matching the masked source and
// destination addresses and the command, or nil.
func (s *Spec) Packet(src, dst, command uint16) *PacketTemplate {
	for _, p := range s.PacketTemplates {
		if src&p.SrcMask == p.SrcAddr && dst&p.DstMask == p.DstAddr && p.Command == command {
			return p
		}
	}
	return nil
}

// PacketByAddresses is Packet without the command constraint.
func (s *Spec) PacketByAddresses(src, dst uint16) *PacketTemplate {
	for _, p := range s.PacketTemplates {
		if src&p.SrcMask == p.SrcAddr && dst&p.DstMask == p.DstAddr {
			return p
		}
	}
	return nil
}

// PacketByID returns the packet template with the given stable id, or nil.
func (s *Spec) PacketByID(id string) *PacketTemplate {
	for _, p := range s.PacketTemplates {
		if p.ID() == id {
			return p
		}
	}
	return nil
}

// FieldByID resolves a full field id. The fast path splits the id into its
// packet prefix and field id text; ids that don't follow the hierarchical
// format fall back to a full scan.
func (s *Spec) FieldByID(id string) *PacketField {
	if len(id) > packetIDLen+1 {
		if pkt := s.PacketByID(id[:packetIDLen]); pkt != nil {
			short := id[packetIDLen+1:]
			for _, f := range pkt.Fields {
				if f.IDText == short {
					return f
				}
			}
			return nil
		}
	}
	for _, pkt := range s.PacketTemplates {
		for _, f := range pkt.Fields {
			if f.FullID() == id {
				return f
			}
		}
	}
	return nil
}
