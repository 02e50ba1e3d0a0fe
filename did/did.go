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

// Package did implements the overlay's peer identity: a 20-byte address
// derived from a secp256k1-family public key, in the same spirit as an
// Ethereum/Bitcoin account address.
package did

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // address derivation, not a security hash of sensitive data
)

// Size is the length of a DID in bytes.
const Size = 20

// ErrInvalidDID signals a malformed "0x"-prefixed hex string.
var ErrInvalidDID = errors.New("invalid DID string")

// DID is a 20-byte peer address.
type DID [Size]byte

// Zero is the empty DID, used as a "not set" sentinel.
var Zero = DID{}

// FromPublicKey derives the DID owned by a secp256k1 public key: the low
// 20 bytes of RIPEMD160(SHA256(pubkey)).
func FromPublicKey(pub *btcec.PublicKey) DID {
	sum := sha256.Sum256(pub.SerializeUncompressed())
	h := ripemd160.New()
	h.Write(sum[:])
	digest := h.Sum(nil)

	var d DID
	copy(d[:], digest[len(digest)-Size:])
	return d
}

// Parse decodes a "0x"-prefixed lowercase 20-byte hex string.
func Parse(s string) (DID, error) {
	if len(s) != 2+2*Size || s[0] != '0' || s[1] != 'x' {
		return Zero, ErrInvalidDID
	}
	raw, err := hex.DecodeString(s[2:])
	if err != nil {
		return Zero, ErrInvalidDID
	}
	var d DID
	copy(d[:], raw)
	return d, nil
}

// String renders the canonical "0x"-prefixed lowercase hex form used on
// the wire (see the Signed Payload encoding).
func (d DID) String() string {
	return "0x" + hex.EncodeToString(d[:])
}

// Less gives DID a total order so it can be sorted deterministically.
func (d DID) Less(o DID) bool {
	return bytes.Compare(d[:], o[:]) < 0
}

// Equal reports whether two DIDs are the same address.
func (d DID) Equal(o DID) bool {
	return d == o
}

// IsZero reports whether d is the zero DID.
func (d DID) IsZero() bool {
	return d == Zero
}

// MarshalJSON renders the DID the way the wire format requires it.
func (d DID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON parses the "0x..." hex form back into a DID.
func (d *DID) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return ErrInvalidDID
	}
	parsed, err := Parse(string(b[1 : len(b)-1]))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
