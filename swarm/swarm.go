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

// Package swarm is the connection registry and dispatch core: a DID to
// Connection map, a pending-connection list for in-flight handshakes, and
// a single goroutine consuming transport events, generalizing the
// teacher's Core (core/core.go, core.pump/connected map) from a GNUnet
// peer registry to this overlay's DID-keyed registry.
package swarm

import (
	"context"
	"errors"

	"github.com/bfix/gospel/logger"
	"github.com/google/uuid"

	"swarmnet/config"
	"swarmnet/did"
	"swarmnet/judgement"
	"swarmnet/message"
	"swarmnet/session"
	"swarmnet/transport"
	"swarmnet/util"
)

// Errors surfaced at the swarm boundary, named per spec.md's error list.
var (
	ErrAlreadyConnected   = errors.New("swarm: already connected")
	ErrMissDidInTable     = errors.New("swarm: no connection registered for DID")
	ErrMissingTransport   = errors.New("swarm: transport neither pending nor registered")
	ErrConnectionNotFound = errors.New("swarm: connection not found")
	ErrBehaviourBad       = errors.New("swarm: peer failed judgement check")
)

// Swarm holds the registry, pending list, and event channel driving one
// node's connection lifecycle.
type Swarm struct {
	self    did.DID
	key     *session.Keypair
	cfg     *config.Config
	backend transport.Backend
	judge   *judgement.Judge

	registry *util.Map[did.DID, transport.Connection]
	pending  *pendingList
	events   chan transport.Event
}

// New builds a Swarm for key's identity, fronting backend for connection
// creation and judge (may be nil) for should_connect gating.
func New(key *session.Keypair, backend transport.Backend, cfg *config.Config, judge *judgement.Judge) *Swarm {
	if judge == nil {
		judge = judgement.New(nil)
	}
	return &Swarm{
		self:     key.DID(),
		key:      key,
		cfg:      cfg,
		backend:  backend,
		judge:    judge,
		registry: util.NewMap[did.DID, transport.Connection](),
		pending:  newPendingList(),
		events:   make(chan transport.Event, 1),
	}
}

// DID is this node's own peer address.
func (s *Swarm) DID() did.DID { return s.self }

// Emit implements transport.EventSink: backends feed events here. The
// channel has capacity 1 and producers block until the dispatch loop
// drains it -- events are never dropped (spec.md section 5).
func (s *Swarm) Emit(e transport.Event) {
	s.events <- e
}

// NewTransport builds a fresh Connection via the backend, wired to this
// Swarm's event sink. It does not register the connection; callers must
// call Register after the connection is confirmed.
func (s *Swarm) NewTransport(peer did.DID) (transport.Connection, error) {
	return s.backend.NewConnection(peer, s)
}

// Register atomically replaces the registry entry for peer. The read of
// the prior entry and the write of the new one run as a single critical
// section via registry.Process, so a concurrent Register/disconnect for
// the same peer can never interleave between the two. A displaced prior
// connection is closed asynchronously, never blocking the caller,
// satisfying "at-most-once close" even under overwrite storms (S5/invariant 5).
func (s *Swarm) Register(peer did.DID, conn transport.Connection) error {
	var prior transport.Connection
	var had bool
	err := s.registry.Process(func(pid int) error {
		prior, had = s.registry.Get(peer, pid)
		s.registry.Put(peer, conn, pid)
		return nil
	}, false)
	if err != nil {
		return err
	}
	if had && prior.ID() != conn.ID() {
		go func() {
			if err := prior.Close(); err != nil {
				logger.Printf(logger.WARN, "[swarm] closing displaced connection for %s: %s", peer, err)
			}
		}()
	}
	return nil
}

// deregisterIfCurrent removes peer's registry entry only if it still points
// at id, as a single critical section via registry.Process. This guards
// against a ConnectClosed event for an already-displaced connection racing
// a concurrent Register for the same peer and deleting the wrong entry.
func (s *Swarm) deregisterIfCurrent(peer did.DID, id uuid.UUID) bool {
	var deleted bool
	_ = s.registry.Process(func(pid int) error {
		if cur, ok := s.registry.Get(peer, pid); ok && cur.ID() == id {
			s.registry.Delete(peer, pid)
			deleted = true
		}
		return nil
	}, false)
	return deleted
}

// GetTransport looks up the registered connection for peer, regardless of
// its state.
func (s *Swarm) GetTransport(peer did.DID) (transport.Connection, bool) {
	return s.registry.Get(peer, 0)
}

// GetAndCheckTransport looks up the registered connection for peer and
// additionally requires it to be State Connected.
func (s *Swarm) GetAndCheckTransport(peer did.DID) (transport.Connection, bool) {
	conn, ok := s.registry.Get(peer, 0)
	if !ok || conn.State() != transport.Connected {
		return nil, false
	}
	return conn, true
}

// PushPending adds conn to the in-flight handshake list.
func (s *Swarm) PushPending(conn transport.Connection) {
	s.pending.push(conn)
}

// PopPending removes and returns the pending connection with the given id.
func (s *Swarm) PopPending(id uuid.UUID) (transport.Connection, bool) {
	return s.pending.pop(id)
}

// FindPending looks up a pending connection by id without removing it.
func (s *Swarm) FindPending(id uuid.UUID) (transport.Connection, bool) {
	return s.pending.find(id)
}

// SendPayload writes payload to the connection registered for its
// envelope's next_hop, recording the outcome with the judgement hook.
func (s *Swarm) SendPayload(payload *session.Payload) error {
	if payload.Envelope.NextHop == nil {
		return ErrMissDidInTable
	}
	nextHop := *payload.Envelope.NextHop

	conn, ok := s.GetAndCheckTransport(nextHop)
	if !ok {
		return ErrMissDidInTable
	}
	raw, err := payload.Encode()
	if err != nil {
		return err
	}
	if err := conn.Send(raw); err != nil {
		s.judge.RecordFailedToSend(nextHop)
		return err
	}
	s.judge.RecordSent(nextHop)
	return nil
}

// PollMessage drains one event from the channel and turns it into an
// actionable Signed Payload, or (nil, nil) when the event was consumed
// internally (registry bookkeeping) with nothing to report upward.
func (s *Swarm) PollMessage(ctx context.Context) (*session.Payload, error) {
	select {
	case ev := <-s.events:
		return s.loadMessage(ev)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// IterMessages calls fn for every actionable payload until ctx is done.
func (s *Swarm) IterMessages(ctx context.Context, fn func(*session.Payload)) {
	for {
		p, err := s.PollMessage(ctx)
		if err != nil {
			return
		}
		if p != nil {
			fn(p)
		}
	}
}

func (s *Swarm) loadMessage(ev transport.Event) (*session.Payload, error) {
	switch ev.Kind {
	case transport.EventReceiveMessage:
		payload, err := session.Decode(ev.Message)
		if err != nil {
			logger.Printf(logger.WARN, "[swarm] dropping undecodable payload from %s: %s", ev.Peer, err)
			return nil, nil
		}
		if !payload.Verify() {
			logger.Printf(logger.WARN, "[swarm] dropping payload failing verification from %s", ev.Peer)
			return nil, nil
		}
		return payload, nil

	case transport.EventRegisterTransport:
		if pending, ok := s.pending.pop(ev.Conn.ID()); ok {
			logger.Printf(logger.DBG, "[swarm] moving pending connection %s for %s into registry", ev.Conn.ID(), ev.Peer)
			_ = s.Register(ev.Peer, pending)
		}
		if _, ok := s.registry.Get(ev.Peer, 0); !ok {
			logger.Printf(logger.WARN, "[swarm] %s: %s", ErrMissingTransport, ev.Peer)
			return nil, nil
		}
		return s.synthesizeJoin(ev.Peer)

	case transport.EventConnectClosed:
		if _, ok := s.pending.pop(ev.Conn.ID()); ok {
			logger.Printf(logger.INFO, "[swarm] pending connection %s dropped", ev.Conn.ID())
			return nil, nil
		}
		if s.deregisterIfCurrent(ev.Peer, ev.Conn.ID()) {
			logger.Printf(logger.INFO, "[swarm] connection %s for %s closed", ev.Conn.ID(), ev.Peer)
			s.judge.RecordDisconnected(ev.Peer)
			return s.synthesizeLeave(ev.Peer)
		}
		return nil, nil

	default:
		return nil, nil
	}
}

func (s *Swarm) synthesizeJoin(peer did.DID) (*session.Payload, error) {
	raw, err := message.Encode(message.JoinDHT{ID: peer})
	if err != nil {
		return nil, err
	}
	return s.synthesize(raw)
}

func (s *Swarm) synthesizeLeave(peer did.DID) (*session.Payload, error) {
	raw, err := message.Encode(message.LeaveDHT{ID: peer})
	if err != nil {
		return nil, err
	}
	return s.synthesize(raw)
}

// synthesize wraps a swarm-internal notification in a signed, self-addressed
// payload -- there is no real transmission, only the shared envelope
// machinery lets routing-layer consumers treat it like any other payload.
func (s *Swarm) synthesize(body any) (*session.Payload, error) {
	ttl := session.DefaultTTL
	if s.cfg != nil {
		ttl = s.cfg.SessionTTL()
	}
	return session.NewSend(body, s.key, s.self, s.self, ttl)
}
