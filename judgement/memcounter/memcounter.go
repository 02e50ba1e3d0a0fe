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

// Package memcounter is a process-local judgement.Counter, the default
// backend for single-node deployments and tests.
package memcounter

import (
	"sync"

	"swarmnet/did"
	"swarmnet/judgement"
)

type tally struct {
	connect, disconnected, sent, failedToSend int
}

// Counter tallies behaviour counts per DID in a plain Go map.
type Counter struct {
	mu    sync.Mutex
	tally map[did.DID]*tally
}

// New creates an empty in-memory counter.
func New() *Counter {
	return &Counter{tally: make(map[did.DID]*tally)}
}

func (c *Counter) Incr(peer did.DID, kind judgement.Kind) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tally[peer]
	if !ok {
		t = &tally{}
		c.tally[peer] = t
	}
	switch kind {
	case judgement.Connect:
		t.connect++
	case judgement.Disconnected:
		t.disconnected++
	case judgement.Sent:
		t.sent++
	case judgement.FailedToSend:
		t.failedToSend++
	}
	return nil
}

// Good judges a DID with no prior history as good, and otherwise requires
// send failures to not outnumber successful sends.
func (c *Counter) Good(peer did.DID) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tally[peer]
	if !ok {
		return true, nil
	}
	return t.failedToSend <= t.sent, nil
}
