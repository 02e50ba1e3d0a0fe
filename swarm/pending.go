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

package swarm

import (
	"sync"

	"github.com/google/uuid"

	"swarmnet/transport"
)

// pendingList is a mutex-guarded sequence of in-flight connections,
// bounded by the number of concurrent handshakes (typically small).
type pendingList struct {
	mu   sync.Mutex
	list []transport.Connection
}

func newPendingList() *pendingList {
	return &pendingList{}
}

func (p *pendingList) push(c transport.Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.list = append(p.list, c)
}

// pop removes and returns the connection with the given id, if present.
func (p *pendingList) pop(id uuid.UUID) (transport.Connection, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, c := range p.list {
		if c.ID() == id {
			p.list = append(p.list[:i], p.list[i+1:]...)
			return c, true
		}
	}
	return nil, false
}

func (p *pendingList) find(id uuid.UUID) (transport.Connection, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.list {
		if c.ID() == id {
			return c, true
		}
	}
	return nil, false
}
