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

package memcounter

import (
	"testing"

	"swarmnet/did"
	"swarmnet/judgement"
)

func TestUnknownDIDIsGood(t *testing.T) {
	c := New()
	good, err := c.Good(did.DID{0x01})
	if err != nil || !good {
		t.Fatalf("expected unknown DID to be judged good")
	}
}

func TestFailuresOutnumberingSendsIsBad(t *testing.T) {
	c := New()
	d := did.DID{0x02}
	if err := c.Incr(d, judgement.Sent); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := c.Incr(d, judgement.FailedToSend); err != nil {
			t.Fatal(err)
		}
	}
	good, err := c.Good(d)
	if err != nil {
		t.Fatal(err)
	}
	if good {
		t.Fatalf("expected DID with more failures than sends to be judged bad")
	}
}

func TestJudgeWrapsCounter(t *testing.T) {
	c := New()
	j := judgement.New(c)
	d := did.DID{0x03}

	if !j.ShouldConnect(d) {
		t.Fatalf("expected fresh DID to pass should_connect")
	}
	j.RecordSent(d)
	j.RecordFailedToSend(d)
	j.RecordFailedToSend(d)
	if j.ShouldConnect(d) {
		t.Fatalf("expected should_connect to reflect recorded failures")
	}
}

func TestNilCounterAlwaysGood(t *testing.T) {
	j := judgement.New(nil)
	if !j.ShouldConnect(did.DID{0x09}) {
		t.Fatalf("nil counter should default to always-good")
	}
	j.RecordFailedToSend(did.DID{0x09}) // must not panic
}
