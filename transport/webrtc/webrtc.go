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

// Package webrtc implements transport.Connection and transport.Backend on
// top of pion/webrtc, generalizing the pack's WebRTC Peer wrapper (offer/
// answer exchange, ICE connection-state callbacks, a single ordered data
// channel) to the transport.Connection/Backend shape the swarm registry
// drives.
package webrtc

import (
	"fmt"
	"sync"

	"github.com/bfix/gospel/logger"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"swarmnet/config"
	"swarmnet/did"
	"swarmnet/transport"
)

const dataChannelLabel = "swarmnet"

// Connection wraps a single pion PeerConnection and its one ordered data
// channel, translating ICE/data-channel callbacks into transport.Events.
type Connection struct {
	id   uuid.UUID
	peer did.DID
	sink transport.EventSink

	pc *webrtc.PeerConnection

	mu     sync.Mutex
	state  transport.State
	dc     *webrtc.DataChannel
	openCh chan struct{}
	opened bool
}

func newConnection(peer did.DID, sink transport.EventSink, pc *webrtc.PeerConnection) *Connection {
	c := &Connection{
		id:     uuid.New(),
		peer:   peer,
		sink:   sink,
		pc:     pc,
		state:  transport.New,
		openCh: make(chan struct{}),
	}

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		logger.Printf(logger.DBG, "[webrtc] %s ICE state -> %s", peer, s.String())
		switch s {
		case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
			c.setState(transport.Connected)
		case webrtc.ICEConnectionStateFailed:
			c.setState(transport.Failed)
			c.notifyClosed()
		case webrtc.ICEConnectionStateClosed, webrtc.ICEConnectionStateDisconnected:
			c.setState(transport.Closed)
			c.notifyClosed()
		}
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		c.attachDataChannel(dc)
		if sink != nil {
			sink.Emit(transport.Event{Kind: transport.EventRegisterTransport, Peer: peer, Conn: c})
		}
	})

	return c
}

func (c *Connection) attachDataChannel(dc *webrtc.DataChannel) {
	c.mu.Lock()
	c.dc = dc
	c.mu.Unlock()

	dc.OnOpen(func() {
		c.mu.Lock()
		c.opened = true
		if c.state != transport.Connected {
			c.state = transport.Connected
		}
		ch := c.openCh
		c.mu.Unlock()
		select {
		case <-ch:
		default:
			close(ch)
		}
	})
	dc.OnClose(func() {
		c.setState(transport.Closed)
		c.notifyClosed()
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if c.sink != nil {
			c.sink.Emit(transport.Event{
				Kind:    transport.EventReceiveMessage,
				Peer:    c.peer,
				Conn:    c,
				Message: append([]byte(nil), msg.Data...),
			})
		}
	})
}

func (c *Connection) setState(s transport.State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Connection) notifyClosed() {
	if c.sink != nil {
		c.sink.Emit(transport.Event{Kind: transport.EventConnectClosed, Peer: c.peer, Conn: c})
	}
}

func (c *Connection) ID() uuid.UUID    { return c.id }
func (c *Connection) PeerDID() did.DID { return c.peer }
func (c *Connection) State() transport.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CreateOffer creates the data channel and a local SDP offer (offerer side).
func (c *Connection) CreateOffer() (string, error) {
	dc, err := c.pc.CreateDataChannel(dataChannelLabel, nil)
	if err != nil {
		return "", fmt.Errorf("webrtc: create data channel: %w", err)
	}
	c.attachDataChannel(dc)

	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("webrtc: create offer: %w", err)
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("webrtc: set local description: %w", err)
	}
	c.setState(transport.OfferSent)
	return offer.SDP, nil
}

// AnswerOffer consumes a remote offer and returns a local answer (answerer side).
func (c *Connection) AnswerOffer(remoteSDP string) (string, error) {
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: remoteSDP}
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return "", fmt.Errorf("webrtc: set remote offer: %w", err)
	}
	c.setState(transport.OfferReceived)

	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("webrtc: create answer: %w", err)
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("webrtc: set local description: %w", err)
	}
	c.setState(transport.AnswerSent)
	return answer.SDP, nil
}

// AcceptAnswer consumes a remote answer, completing the offerer side.
func (c *Connection) AcceptAnswer(remoteSDP string) error {
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: remoteSDP}
	if err := c.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("webrtc: set remote answer: %w", err)
	}
	c.setState(transport.AnswerReceived)
	return nil
}

// Send writes data onto the data channel.
func (c *Connection) Send(data []byte) error {
	c.mu.Lock()
	dc := c.dc
	opened := c.opened
	c.mu.Unlock()
	if dc == nil || !opened {
		return transport.ErrNotOpen
	}
	return dc.Send(data)
}

// WaitOpen blocks until the data channel opens or cancel fires.
func (c *Connection) WaitOpen(cancel <-chan struct{}) error {
	c.mu.Lock()
	ch := c.openCh
	c.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-cancel:
		return transport.ErrNotOpen
	}
}

// Close tears down the peer connection.
func (c *Connection) Close() error {
	c.setState(transport.Closed)
	return c.pc.Close()
}

// Backend fronts pion/webrtc, holding one Connection per peer DID.
type Backend struct {
	api        *webrtc.API
	iceServers []webrtc.ICEServer

	mu    sync.Mutex
	conns map[did.DID]*Connection
}

// NewBackend builds a Backend from a node's ICE configuration.
func NewBackend(cfg *config.Config) (*Backend, error) {
	servers, err := cfg.IceServers()
	if err != nil {
		return nil, err
	}
	var ice []webrtc.ICEServer
	for _, s := range servers {
		entry := webrtc.ICEServer{URLs: []string{s.URL}}
		if s.Username != "" {
			entry.Username = s.Username
			entry.Credential = s.Password
		}
		ice = append(ice, entry)
	}
	return &Backend{
		api:        webrtc.NewAPI(),
		iceServers: ice,
		conns:      make(map[did.DID]*Connection),
	}, nil
}

func (b *Backend) NewConnection(peer did.DID, sink transport.EventSink) (transport.Connection, error) {
	pc, err := b.api.NewPeerConnection(webrtc.Configuration{ICEServers: b.iceServers})
	if err != nil {
		return nil, fmt.Errorf("webrtc: new peer connection: %w", err)
	}
	c := newConnection(peer, sink, pc)

	b.mu.Lock()
	b.conns[peer] = c
	b.mu.Unlock()
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
