// This file is part of swarmnet, a peer-to-peer connection fabric.
// Copyright (C) 2019-2022 Bernd Fix  >Y<
//
// swarmnet is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License,
// or (at your option) any later version.
//
// swarmnet is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL3.0-or-later

// Package relay implements the routing envelope carried by every message
// on the overlay: a push-only path stack with a reverse cursor for return
// paths, and the next-hop inference rules used to walk it. It is a pure
// value type -- no I/O, no locking.
package relay

import (
	"errors"

	"swarmnet/did"
)

// Method distinguishes a forward-travelling message from its reply.
type Method string

const (
	// SEND messages travel from origin towards destination, appending
	// to path at every hop.
	SEND Method = "SEND"
	// REPORT messages travel back along path towards origin.
	REPORT Method = "REPORT"
)

// Boundary errors, named exactly as spec.md's error taxonomy.
var (
	ErrInvalidNextHop           = errors.New("relay: next_hop does not match current handler")
	ErrCannotInferNextHop       = errors.New("relay: cannot infer next hop")
	ErrReportNeedSend           = errors.New("relay: report() requires a SEND envelope")
	ErrResetDestinationNeedSend = errors.New("relay: reset_destination() requires a SEND envelope")
	ErrInvalidRelayPath         = errors.New("relay: path contains adjacent duplicate DIDs")
	ErrInvalidRelayDestination  = errors.New("relay: REPORT envelope destination must be path[0]")
)

// Envelope carries the routing metadata attached to every message:
// method, the ordered path it has traversed, a tail-counting cursor used
// while reporting, the next hop a handler should forward to, and the
// ultimate destination.
type Envelope struct {
	Method        Method    `json:"method"`
	Path          []did.DID `json:"path"`
	PathEndCursor int       `json:"path_end_cursor"`
	NextHop       *did.DID  `json:"next_hop"`
	Destination   did.DID   `json:"destination"`
}

// New builds an Envelope, defaulting PathEndCursor to 0.
func New(method Method, path []did.DID, cursor *int, nextHop *did.DID, destination did.DID) *Envelope {
	c := 0
	if cursor != nil {
		c = *cursor
	}
	return &Envelope{
		Method:        method,
		Path:          append([]did.DID(nil), path...),
		PathEndCursor: c,
		NextHop:       nextHop,
		Destination:   destination,
	}
}

// Validate rejects adjacent duplicate path entries and, for REPORT
// envelopes, a destination that does not equal the origin (path[0]).
func (e *Envelope) Validate() error {
	for i := 1; i < len(e.Path); i++ {
		if e.Path[i] == e.Path[i-1] {
			return ErrInvalidRelayPath
		}
	}
	if e.Method == REPORT && (len(e.Path) == 0 || e.Path[0] != e.Destination) {
		return ErrInvalidRelayDestination
	}
	return nil
}

// Origin returns the original sender: path[0].
func (e *Envelope) Origin() did.DID {
	return e.Path[0]
}

// Sender returns origin() under SEND, or the last path element under
// REPORT.
func (e *Envelope) Sender() did.DID {
	if e.Method == SEND {
		return e.Origin()
	}
	return e.Path[len(e.Path)-1]
}

// PathPrev returns the element immediately before the current cursor
// position, or nil if the cursor has nothing before it.
func (e *Envelope) PathPrev() *did.DID {
	if len(e.Path) < e.PathEndCursor+2 {
		return nil
	}
	d := e.Path[len(e.Path)-2-e.PathEndCursor]
	return &d
}

// Relay checks the current handler against envelope state, updates path
// and cursor, and infers the next hop.
//
// SEND: appends current to path and sets next_hop := nextHop.
//
// REPORT: if next_hop was the destination, this is the final return hop
// -- the cursor snaps to len(path)-1 and next_hop clears. Otherwise the
// position of current is located by scanning path from the tail, skipping
// path_end_cursor entries; the cursor advances by that offset and
// next_hop becomes nextHop or, failing that, path_prev().
func (e *Envelope) Relay(current did.DID, nextHop *did.DID) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.NextHop != nil && *e.NextHop != current {
		return ErrInvalidNextHop
	}

	switch e.Method {
	case SEND:
		e.Path = append(e.Path, current)
		e.NextHop = nextHop
		return nil

	case REPORT:
		if e.NextHop != nil && *e.NextHop == e.Destination {
			e.PathEndCursor = len(e.Path) - 1
			e.NextHop = nil
			return nil
		}

		pos := -1
		for i, skipped := len(e.Path)-1-e.PathEndCursor, 0; i >= 0; i, skipped = i-1, skipped+1 {
			if e.Path[i] == current {
				pos = skipped
				break
			}
		}

		if pos < 0 && nextHop == nil {
			return ErrCannotInferNextHop
		}
		if pos >= 0 {
			e.PathEndCursor += pos
		}

		if nextHop != nil {
			e.NextHop = nextHop
		} else {
			e.NextHop = e.PathPrev()
		}
		return nil
	}
	return nil
}

// Report converts a SEND envelope into a REPORT envelope travelling back
// along the same path towards the origin. Requires len(path) >= 2.
func (e *Envelope) Report() (*Envelope, error) {
	if e.Method != SEND {
		return nil, ErrReportNeedSend
	}
	if len(e.Path) < 2 {
		return nil, ErrCannotInferNextHop
	}
	return &Envelope{
		Method:        REPORT,
		Path:          append([]did.DID(nil), e.Path...),
		PathEndCursor: 0,
		NextHop:       e.PathPrev(),
		Destination:   e.Sender(),
	}, nil
}

// ResetDestination changes a SEND envelope's destination; rejected for
// REPORT envelopes, whose destination is fixed to the original origin.
func (e *Envelope) ResetDestination(d did.DID) error {
	if e.Method != SEND {
		return ErrResetDestinationNeedSend
	}
	e.Destination = d
	return nil
}

// Clone returns a deep copy, useful for building derived envelopes
// (e.g. the session package's signed-payload construction).
func (e *Envelope) Clone() *Envelope {
	c := *e
	c.Path = append([]did.DID(nil), e.Path...)
	if e.NextHop != nil {
		nh := *e.NextHop
		c.NextHop = &nh
	}
	return &c
}
