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
	"sync"
	"time"
)

// Stats counts frames seen by the reader. It is written from the reader
// goroutine and read from the dispatcher context via metafields, so access
// is serialized.
type Stats struct {
	mu       sync.Mutex
	msgCount uint64
	msgLast  time.Time
	errCount uint64
	errLast  time.Time
}

// StatsSnapshot is a consistent copy of the reader statistics. Zero
// timestamps mean "never".
type StatsSnapshot struct {
	MsgCount uint64
	MsgLast  time.Time
	ErrCount uint64
	ErrLast  time.Time
}

func (s *Stats) RecordMessage(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgCount++
	s.msgLast = t
}

func (s *Stats) RecordError(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errCount++
	s.errLast = t
}

func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		MsgCount: s.msgCount,
		MsgLast:  s.msgLast,
		ErrCount: s.errCount,
		ErrLast:  s.errLast,
	}
}
