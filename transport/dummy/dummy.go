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

// Package dummy implements a synchronous, in-memory transport.Backend,
// standing in for both test fixtures and the "browser runtime" deployment
// path that has no native ICE stack available to it.
package dummy

import (
	"sync"

	"github.com/bfix/gospel/logger"
	"github.com/google/uuid"

	"swarmnet/did"
	"swarmnet/transport"
)

// Connection is wired directly to a peer Connection in the same process
// (Send hands data synchronously to the peer's event sink), skipping
// SDP/ICE entirely: CreateOffer/AnswerOffer/
// AcceptAnswer just flip the state machine so handshake-level tests exercise
// the same call sequence a real backend would see.
type Connection struct {
	mu   sync.Mutex
	id   uuid.UUID
	peer did.DID
	sink transport.EventSink
	self did.DID

	state transport.State
	peerC *Connection // the other side, set once both ends are linked

	openCh   chan struct{}
	openOnce sync.Once
}

func newConnection(self, peer did.DID, sink transport.EventSink) *Connection {
	return &Connection{
		id:     uuid.New(),
		peer:   peer,
		self:   self,
		sink:   sink,
		state:  transport.New,
		openCh: make(chan struct{}),
	}
}

func (c *Connection) ID() uuid.UUID      { return c.id }
func (c *Connection) PeerDID() did.DID   { return c.peer }
func (c *Connection) State() transport.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CreateOffer marks this end as the offerer; the "SDP" is a trivial token
// since there is no real negotiation to perform.
func (c *Connection) CreateOffer() (string, error) {
	c.mu.Lock()
	c.state = transport.OfferSent
	c.mu.Unlock()
	return "dummy-offer:" + c.self.String(), nil
}

// AnswerOffer marks this end as having received an offer and answers it.
func (c *Connection) AnswerOffer(remoteSDP string) (string, error) {
	c.mu.Lock()
	c.state = transport.AnswerSent
	c.mu.Unlock()
	return "dummy-answer:" + c.self.String(), nil
}

// AcceptAnswer completes the offerer side and opens the channel on both
// ends. The peer side never called CreateOffer/AnswerOffer from its own
// Connect, so it learns its transport is ready via EventRegisterTransport,
// mirroring the webrtc backend's OnDataChannel callback.
func (c *Connection) AcceptAnswer(remoteSDP string) error {
	c.mu.Lock()
	c.state = transport.Connected
	c.mu.Unlock()
	c.markOpen()
	if peerC := c.peerC; peerC != nil {
		peerC.mu.Lock()
		peerC.state = transport.Connected
		sink := peerC.sink
		peerPeer := peerC.peer
		peerC.mu.Unlock()
		peerC.markOpen()
		if sink != nil {
			sink.Emit(transport.Event{Kind: transport.EventRegisterTransport, Peer: peerPeer, Conn: peerC})
		}
	}
	return nil
}

func (c *Connection) markOpen() {
	c.openOnce.Do(func() { close(c.openCh) })
}

// Send delivers data synchronously to the peer's event sink.
func (c *Connection) Send(data []byte) error {
	c.mu.Lock()
	state := c.state
	peerC := c.peerC
	mySelf := c.self
	c.mu.Unlock()
	if state != transport.Connected {
		return transport.ErrNotOpen
	}
	if peerC == nil {
		return transport.ErrTransNoEndpoint
	}
	if peerC.sink != nil {
		peerC.sink.Emit(transport.Event{
			Kind:    transport.EventReceiveMessage,
			Peer:    mySelf,
			Conn:    peerC,
			Message: append([]byte(nil), data...),
		})
	}
	return nil
}

// WaitOpen returns nil once the connection has opened (at once if it is
// already open), or ErrNotOpen if cancel fires first. Closing the
// connection does not release a waiting caller.
func (c *Connection) WaitOpen(cancel <-chan struct{}) error {
	select {
	case <-c.openCh:
		return nil
	default:
	}
	select {
	case <-c.openCh:
		return nil
	case <-cancel:
		return transport.ErrNotOpen
	}
}

// Close transitions to Closed and notifies the sink.
func (c *Connection) Close() error {
	c.mu.Lock()
	already := c.state == transport.Closed
	c.state = transport.Closed
	peer := c.peer
	sink := c.sink
	c.mu.Unlock()
	if !already && sink != nil {
		sink.Emit(transport.Event{Kind: transport.EventConnectClosed, Peer: peer, Conn: c})
	}
	return nil
}

// Backend is a process-local registry of linked dummy connection pairs,
// keyed by peer DID, used to simulate a fully in-memory overlay in tests.
type Backend struct {
	mu    sync.Mutex
	self  did.DID
	conns map[did.DID]*Connection
	peers *Registry
}

// Registry links two Backends so connections created against each other
// are wired together, simulating a two-node handshake without any real
// network I/O.
type Registry struct {
	mu       sync.Mutex
	backends map[did.DID]*Backend
}

// NewRegistry creates an empty link registry shared by a test's set of
// dummy backends.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[did.DID]*Backend)}
}

// NewBackend creates a Backend for self, registering it with reg so peer
// backends can find and link against it.
func NewBackend(self did.DID, reg *Registry) *Backend {
	b := &Backend{self: self, conns: make(map[did.DID]*Connection), peers: reg}
	reg.mu.Lock()
	reg.backends[self] = b
	reg.mu.Unlock()
	return b
}

func (b *Backend) NewConnection(peer did.DID, sink transport.EventSink) (transport.Connection, error) {
	c := newConnection(b.self, peer, sink)
	b.mu.Lock()
	b.conns[peer] = c
	b.mu.Unlock()

	b.peers.mu.Lock()
	peerBackend, ok := b.peers.backends[peer]
	b.peers.mu.Unlock()
	if ok {
		peerBackend.mu.Lock()
		peerC, exists := peerBackend.conns[b.self]
		peerBackend.mu.Unlock()
		if exists {
			c.peerC = peerC
			peerC.peerC = c
		}
	}

	logger.Printf(logger.DBG, "[dummy] new connection %s -> %s", b.self, peer)
	return c, nil
}

func (b *Backend) Connection(peer did.DID) (transport.Connection, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.conns[peer]
	if !ok {
		return nil, false
	}
	return c, true
}

func (b *Backend) GetAndCheckConnection(peer did.DID) (transport.Connection, bool) {
	c, ok := b.Connection(peer)
	if !ok || c.State() != transport.Connected {
		return nil, false
	}
	return c, true
}

func (b *Backend) Disconnect(peer did.DID) error {
	b.mu.Lock()
	c, ok := b.conns[peer]
	delete(b.conns, peer)
	b.mu.Unlock()
	if !ok {
		return nil
	}
	return c.Close()
}
