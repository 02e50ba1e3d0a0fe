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

// Package transport defines the Connection and Backend abstractions the
// swarm registry drives, generalizing the teacher's endpoint/session split
// (transport/transport.go, connection.go, endpoint.go) to a single ordered
// data-channel connection per peer, with concrete backends provided by
// transport/webrtc (pion) and transport/dummy (in-memory).
package transport

import (
	"errors"

	"github.com/google/uuid"

	"swarmnet/did"
)

// State is the connection lifecycle state, updated by a backend as ICE
// and data-channel events arrive.
type State int

const (
	New State = iota
	OfferSent
	OfferReceived
	AnswerSent
	AnswerReceived
	Connected
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case New:
		return "New"
	case OfferSent:
		return "OfferSent"
	case OfferReceived:
		return "OfferReceived"
	case AnswerSent:
		return "AnswerSent"
	case AnswerReceived:
		return "AnswerReceived"
	case Connected:
		return "Connected"
	case Closed:
		return "Closed"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// ErrTransNoEndpoint is returned when a backend has no connection for a
// requested peer.
var ErrTransNoEndpoint = errors.New("transport: no connection for peer")

// ErrNotOpen is returned by Send when the data channel is not yet open.
var ErrNotOpen = errors.New("transport: connection is not open")

// Connection is a single ordered data channel to one peer, driven through
// the three-phase SDP handshake (CreateOffer/AnswerOffer/AcceptAnswer).
type Connection interface {
	// ID is this connection's unique handle, independent of peer DID so
	// a superseded connection to the same peer remains distinguishable.
	ID() uuid.UUID
	// PeerDID is the remote party this connection is (or will be) bound to.
	PeerDID() did.DID
	// CreateOffer generates a local SDP offer to send to the peer.
	CreateOffer() (string, error)
	// AnswerOffer consumes a remote SDP offer and returns a local answer.
	AnswerOffer(remoteSDP string) (string, error)
	// AcceptAnswer consumes a remote SDP answer, completing the offerer side.
	AcceptAnswer(remoteSDP string) error
	// Send writes a message onto the data channel. Returns ErrNotOpen if
	// the channel has not reached State Connected.
	Send(data []byte) error
	// WaitOpen blocks until the data channel opens (returning nil) or the
	// given signal is closed (returning ErrNotOpen). Reaching Closed or
	// Failed does not release it.
	WaitOpen(cancel <-chan struct{}) error
	// State returns the current lifecycle state.
	State() State
	// Close releases the underlying transport resources.
	Close() error
}

// EventKind distinguishes the three events a Backend reports to the Swarm.
type EventKind int

const (
	// EventReceiveMessage: data arrived on a connection.
	EventReceiveMessage EventKind = iota
	// EventRegisterTransport: a new inbound connection was created and
	// should be registered against its peer DID.
	EventRegisterTransport
	// EventConnectClosed: a connection transitioned to Closed or Failed.
	EventConnectClosed
)

// Event is a single item flowing from a Backend into the Swarm's single
// dispatching consumer, mirroring the teacher's core.pump input shape.
type Event struct {
	Kind    EventKind
	Peer    did.DID
	Conn    Connection
	Message []byte
}

// EventSink receives Events from a Backend. The Swarm's dispatch loop
// implements this by feeding its buffered channel.
type EventSink interface {
	Emit(Event)
}

// EventSinkFunc adapts a plain function to EventSink.
type EventSinkFunc func(Event)

func (f EventSinkFunc) Emit(e Event) { f(e) }

// Backend creates and tracks Connections for one node, fronting whichever
// concrete transport (WebRTC, in-memory) is configured.
type Backend interface {
	// NewConnection allocates a fresh Connection for peer, wired to emit
	// Events to sink as its state changes or messages arrive.
	NewConnection(peer did.DID, sink EventSink) (Connection, error)
	// Connection looks up an existing connection for peer, regardless of
	// its state.
	Connection(peer did.DID) (Connection, bool)
	// GetAndCheckConnection looks up an existing connection for peer and
	// additionally requires it to be in State Connected.
	GetAndCheckConnection(peer did.DID) (Connection, bool)
	// Disconnect closes and forgets the connection for peer, if any.
	Disconnect(peer did.DID) error
}
