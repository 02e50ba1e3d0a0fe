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

package session

import (
	"encoding/base64"
	"testing"
)

func TestKeypairFromSeedIsDeterministic(t *testing.T) {
	raw := make([]byte, 32)
	raw[31] = 0x01
	seed := base64.StdEncoding.EncodeToString(raw)

	k1, err := KeypairFromSeed(seed)
	if err != nil {
		t.Fatal(err)
	}
	k2, err := KeypairFromSeed(seed)
	if err != nil {
		t.Fatal(err)
	}
	if k1.DID() != k2.DID() {
		t.Fatalf("expected the same seed to derive the same DID twice")
	}
}

func TestKeypairFromSeedRejectsWrongLength(t *testing.T) {
	short := base64.StdEncoding.EncodeToString([]byte("too short"))
	if _, err := KeypairFromSeed(short); err != ErrInvalidSeed {
		t.Fatalf("expected ErrInvalidSeed, got %v", err)
	}
}

func TestKeypairFromSeedRejectsInvalidBase64(t *testing.T) {
	if _, err := KeypairFromSeed("not-base64!!"); err != ErrInvalidSeed {
		t.Fatalf("expected ErrInvalidSeed, got %v", err)
	}
}
