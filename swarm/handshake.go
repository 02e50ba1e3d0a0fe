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
	"fmt"
	"time"

	"github.com/bfix/gospel/logger"

	"swarmnet/did"
	"swarmnet/message"
	"swarmnet/session"
	"swarmnet/transport"
)

func (s *Swarm) sessionTTL() time.Duration {
	if s.cfg != nil {
		return s.cfg.SessionTTL()
	}
	return session.DefaultTTL
}

// PrepareOffer creates a fresh Connection to peer, generates its SDP offer,
// and places the Connection on the pending list. Fails ErrAlreadyConnected
// if a live connection to peer already exists.
func (s *Swarm) PrepareOffer(peer did.DID) (transport.Connection, message.ConnectNodeSend, error) {
	if _, ok := s.GetAndCheckTransport(peer); ok {
		return nil, message.ConnectNodeSend{}, ErrAlreadyConnected
	}
	conn, err := s.NewTransport(peer)
	if err != nil {
		return nil, message.ConnectNodeSend{}, err
	}
	sdp, err := conn.CreateOffer()
	if err != nil {
		return nil, message.ConnectNodeSend{}, err
	}
	s.PushPending(conn)
	return conn, message.ConnectNodeSend{SDP: sdp}, nil
}

// CreateOffer wraps PrepareOffer's ConnectNodeSend in a signed SEND payload
// addressed to peer. The payload's next_hop is set to peer as a
// placeholder; callers routing via an intermediate hop must overwrite it
// with the true next hop before transmission.
func (s *Swarm) CreateOffer(peer did.DID) (transport.Connection, *session.Payload, error) {
	conn, offerMsg, err := s.PrepareOffer(peer)
	if err != nil {
		return nil, nil, err
	}
	raw, err := message.Encode(offerMsg)
	if err != nil {
		return nil, nil, err
	}
	payload, err := session.NewSend(raw, s.key, s.self, peer, s.sessionTTL())
	if err != nil {
		return nil, nil, err
	}
	payload.Envelope.NextHop = &peer
	return conn, payload, nil
}

// AnswerOffer verifies offerPayload, unpacks its ConnectNodeSend, and
// answers it with a fresh Connection, wrapping the SDP answer in a signed
// payload destined for the offer's origin.
func (s *Swarm) AnswerOffer(offerPayload *session.Payload) (transport.Connection, *session.Payload, error) {
	if !offerPayload.Verify() {
		return nil, nil, session.ErrVerifySignatureFailed
	}
	body, err := message.Decode(offerPayload.Body)
	if err != nil {
		return nil, nil, err
	}
	offerMsg, ok := body.(message.ConnectNodeSend)
	if !ok {
		return nil, nil, fmt.Errorf("swarm: expected ConnectNodeSend, got %T", body)
	}

	peer := offerPayload.Envelope.Origin()
	if _, ok := s.GetAndCheckTransport(peer); ok {
		return nil, nil, ErrAlreadyConnected
	}
	conn, err := s.NewTransport(peer)
	if err != nil {
		return nil, nil, err
	}
	answerSDP, err := conn.AnswerOffer(offerMsg.SDP)
	if err != nil {
		return nil, nil, err
	}
	s.PushPending(conn)

	raw, err := message.Encode(message.ConnectNodeReport{SDP: answerSDP})
	if err != nil {
		return nil, nil, err
	}
	answerPayload, err := session.NewSend(raw, s.key, s.self, peer, s.sessionTTL())
	if err != nil {
		return nil, nil, err
	}
	answerPayload.Envelope.NextHop = &peer
	return conn, answerPayload, nil
}

// AcceptAnswer verifies answerPayload, unpacks its ConnectNodeReport, and
// completes the offerer side of the connection identified by the answer's
// origin DID.
func (s *Swarm) AcceptAnswer(answerPayload *session.Payload) (did.DID, transport.Connection, error) {
	var zero did.DID
	if !answerPayload.Verify() {
		return zero, nil, session.ErrVerifySignatureFailed
	}
	body, err := message.Decode(answerPayload.Body)
	if err != nil {
		return zero, nil, err
	}
	answerMsg, ok := body.(message.ConnectNodeReport)
	if !ok {
		return zero, nil, fmt.Errorf("swarm: expected ConnectNodeReport, got %T", body)
	}

	peer := answerPayload.Envelope.Origin()
	conn, ok := s.backend.Connection(peer)
	if !ok {
		return zero, nil, ErrConnectionNotFound
	}
	if err := conn.AcceptAnswer(answerMsg.SDP); err != nil {
		return zero, nil, err
	}
	// This side initiated the handshake and already holds conn directly,
	// so it registers it here rather than waiting on EventRegisterTransport
	// (which only the answering peer needs, per PrepareOffer/PushPending).
	s.PopPending(conn.ID())
	if err := s.Register(peer, conn); err != nil {
		return zero, nil, err
	}
	return peer, conn, nil
}

// Connect establishes (or returns an existing) connection to did, sending
// the SDP offer directly (did is its own next hop).
func (s *Swarm) Connect(peer did.DID) (transport.Connection, error) {
	if conn, ok := s.GetAndCheckTransport(peer); ok {
		return conn, nil
	}
	if !s.judge.ShouldConnect(peer) {
		return nil, ErrBehaviourBad
	}
	conn, payload, err := s.CreateOffer(peer)
	if err != nil {
		return nil, err
	}
	payload.Envelope.NextHop = &peer
	s.judge.RecordConnect(peer)
	if err := s.SendPayload(payload); err != nil {
		logger.Printf(logger.WARN, "[swarm] connect: sending offer to %s: %s", peer, err)
		return nil, err
	}
	return conn, nil
}

// ConnectVia is like Connect but routes the offer through an intermediate
// hop rather than directly to peer.
func (s *Swarm) ConnectVia(peer, nextHop did.DID) (transport.Connection, error) {
	if conn, ok := s.GetAndCheckTransport(peer); ok {
		return conn, nil
	}
	if !s.judge.ShouldConnect(peer) {
		return nil, ErrBehaviourBad
	}
	conn, payload, err := s.CreateOffer(peer)
	if err != nil {
		return nil, err
	}
	payload.Envelope.NextHop = &nextHop
	s.judge.RecordConnect(peer)
	if err := s.SendPayload(payload); err != nil {
		logger.Printf(logger.WARN, "[swarm] connect_via: sending offer to %s via %s: %s", peer, nextHop, err)
		return nil, err
	}
	return conn, nil
}

// Disconnect removes and closes the connection registered for peer.
func (s *Swarm) Disconnect(peer did.DID) error {
	s.judge.RecordDisconnected(peer)
	return s.backend.Disconnect(peer)
}
