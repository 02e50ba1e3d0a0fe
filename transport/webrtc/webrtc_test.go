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

package webrtc

import (
	"testing"

	"swarmnet/config"
	"swarmnet/did"
	"swarmnet/transport"
)

func TestNewBackendParsesIceServers(t *testing.T) {
	cfg := config.Default()
	cfg.IceServersRaw = "stun:stun.l.google.com:19302;turn:turn.example.com:3478#alice:secret"

	b, err := NewBackend(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(b.iceServers) != 2 {
		t.Fatalf("expected 2 ICE servers, got %d", len(b.iceServers))
	}
	if b.iceServers[1].Username != "alice" || b.iceServers[1].Credential != "secret" {
		t.Fatalf("TURN credentials not wired: %+v", b.iceServers[1])
	}
}

func TestNewConnectionRegistersAndStartsNew(t *testing.T) {
	cfg := config.Default()
	b, err := NewBackend(cfg)
	if err != nil {
		t.Fatal(err)
	}
	peer := did.DID{0x01}

	conn, err := b.NewConnection(peer, nil)
	if err != nil {
		t.Fatal(err)
	}
	if conn.PeerDID() != peer {
		t.Fatalf("peer DID mismatch")
	}
	if conn.State() != transport.New {
		t.Fatalf("expected fresh connection in State New, got %s", conn.State())
	}

	got, ok := b.Connection(peer)
	if !ok || got.ID() != conn.ID() {
		t.Fatalf("backend did not register the new connection")
	}
	if _, ok := b.GetAndCheckConnection(peer); ok {
		t.Fatalf("unconnected connection should fail GetAndCheckConnection")
	}

	if err := conn.Close(); err != nil {
		t.Fatal(err)
	}
}
