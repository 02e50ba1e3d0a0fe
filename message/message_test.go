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

package message

import (
	"testing"

	"swarmnet/did"
)

func TestEncodeDecodeConnectNodeSend(t *testing.T) {
	raw, err := Encode(ConnectNodeSend{SDP: "v=0\r\n..."})
	if err != nil {
		t.Fatal(err)
	}
	m, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := m.(ConnectNodeSend)
	if !ok {
		t.Fatalf("expected ConnectNodeSend, got %T", m)
	}
	if got.SDP != "v=0\r\n..." {
		t.Fatalf("sdp mismatch: %q", got.SDP)
	}
}

func TestEncodeDecodeConnectNodeReport(t *testing.T) {
	raw, err := Encode(ConnectNodeReport{SDP: "v=0\r\nanswer"})
	if err != nil {
		t.Fatal(err)
	}
	m, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := m.(ConnectNodeReport); !ok {
		t.Fatalf("expected ConnectNodeReport, got %T", m)
	}
}

func TestEncodeDecodeJoinLeaveDHT(t *testing.T) {
	d := did.DID{0x09}

	raw, err := Encode(JoinDHT{ID: d})
	if err != nil {
		t.Fatal(err)
	}
	m, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	j, ok := m.(JoinDHT)
	if !ok || j.ID != d {
		t.Fatalf("JoinDHT round trip mismatch: %#v", m)
	}

	raw, err = Encode(LeaveDHT{ID: d})
	if err != nil {
		t.Fatal(err)
	}
	m, err = Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	l, ok := m.(LeaveDHT)
	if !ok || l.ID != d {
		t.Fatalf("LeaveDHT round trip mismatch: %#v", m)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"Bogus","data":{}}`))
	if err == nil {
		t.Fatalf("expected error for unknown type")
	}
}
