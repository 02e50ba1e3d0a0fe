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

package dummy

import (
	"testing"
	"time"

	"swarmnet/did"
	"swarmnet/transport"
)

func TestLinkedConnectionsHandshakeAndSend(t *testing.T) {
	reg := NewRegistry()
	alice, bob := did.DID{0x01}, did.DID{0x02}

	var bobReceived []byte
	bobSink := transport.EventSinkFunc(func(e transport.Event) {
		if e.Kind == transport.EventReceiveMessage {
			bobReceived = e.Message
		}
	})
	var aliceClosed bool
	aliceSink := transport.EventSinkFunc(func(e transport.Event) {
		if e.Kind == transport.EventConnectClosed {
			aliceClosed = true
		}
	})

	backA := NewBackend(alice, reg)
	backB := NewBackend(bob, reg)

	connA, err := backA.NewConnection(bob, aliceSink)
	if err != nil {
		t.Fatal(err)
	}
	connB, err := backB.NewConnection(alice, bobSink)
	if err != nil {
		t.Fatal(err)
	}

	offer, err := connA.CreateOffer()
	if err != nil {
		t.Fatal(err)
	}
	answer, err := connB.AnswerOffer(offer)
	if err != nil {
		t.Fatal(err)
	}
	if err := connA.AcceptAnswer(answer); err != nil {
		t.Fatal(err)
	}

	cancel := make(chan struct{})
	close(cancel)
	if err := connA.WaitOpen(cancel); err != nil {
		t.Fatalf("connA should already be open: %v", err)
	}
	if connB.State() != transport.Connected {
		t.Fatalf("expected connB Connected, got %s", connB.State())
	}

	if err := connA.Send([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if string(bobReceived) != "hello" {
		t.Fatalf("bob did not receive message, got %q", bobReceived)
	}

	if err := connA.Close(); err != nil {
		t.Fatal(err)
	}
	if !aliceClosed {
		t.Fatalf("expected alice's sink to observe EventConnectClosed")
	}
}

func TestSendBeforeOpenFails(t *testing.T) {
	reg := NewRegistry()
	alice, bob := did.DID{0x03}, did.DID{0x04}
	backA := NewBackend(alice, reg)
	_ = NewBackend(bob, reg)

	connA, err := backA.NewConnection(bob, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := connA.Send([]byte("nope")); err != transport.ErrNotOpen {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
}

func TestGetAndCheckConnectionRequiresConnected(t *testing.T) {
	reg := NewRegistry()
	alice, bob := did.DID{0x05}, did.DID{0x06}
	backA := NewBackend(alice, reg)
	backB := NewBackend(bob, reg)

	connA, _ := backA.NewConnection(bob, nil)
	connB, _ := backB.NewConnection(alice, nil)

	if _, ok := backA.GetAndCheckConnection(bob); ok {
		t.Fatalf("should not be connected yet")
	}

	offer, _ := connA.CreateOffer()
	answer, _ := connB.AnswerOffer(offer)
	_ = connA.AcceptAnswer(answer)

	time.Sleep(time.Millisecond)
	if _, ok := backA.GetAndCheckConnection(bob); !ok {
		t.Fatalf("expected connected connection to be found")
	}
}
