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

// Package judgement provides the advisory should_connect gate the swarm
// consults before dialing a peer, backed by a pluggable behaviour Counter.
// Absent a Counter, every peer is judged good -- the hook is a decoration,
// never a hard requirement (generalizes the teacher's KeyValueStore
// pluggable-backend pattern, util/key_value_store.go, to a behaviour
// counter keyed by DID instead of a generic string store).
package judgement

import "swarmnet/did"

// Kind distinguishes the behaviours a Counter tracks per DID.
type Kind int

const (
	Connect Kind = iota
	Disconnected
	Sent
	FailedToSend
)

// Counter is a pluggable, DID-keyed behaviour tally. Implementations never
// need to be exact: should_connect is advisory, not a safety boundary.
type Counter interface {
	// Incr increments the tally for (did, kind).
	Incr(did did.DID, kind Kind) error
	// Good reports whether did's recorded behaviour allows connecting.
	Good(did did.DID) (bool, error)
}

// Judge is the should_connect gate plus the recording hooks the swarm
// calls on every connect/disconnect/send outcome.
type Judge struct {
	counter Counter
}

// New wraps a Counter. A nil counter makes every DID judged good, so the
// hook can be omitted entirely without special-casing call sites.
func New(counter Counter) *Judge {
	return &Judge{counter: counter}
}

// ShouldConnect reports whether a connection attempt to peer should proceed.
func (j *Judge) ShouldConnect(peer did.DID) bool {
	if j.counter == nil {
		return true
	}
	good, err := j.counter.Good(peer)
	if err != nil {
		return true
	}
	return good
}

func (j *Judge) record(peer did.DID, kind Kind) {
	if j.counter == nil {
		return
	}
	_ = j.counter.Incr(peer, kind)
}

// RecordConnect records a successful connection to peer.
func (j *Judge) RecordConnect(peer did.DID) { j.record(peer, Connect) }

// RecordDisconnected records peer going offline.
func (j *Judge) RecordDisconnected(peer did.DID) { j.record(peer, Disconnected) }

// RecordSent records a successfully sent message to peer.
func (j *Judge) RecordSent(peer did.DID) { j.record(peer, Sent) }

// RecordFailedToSend records a send failure to peer.
func (j *Judge) RecordFailedToSend(peer did.DID) { j.record(peer, FailedToSend) }
