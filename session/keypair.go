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

// Package session provides the signed-payload envelope that binds a typed
// message body to a relay.Envelope with origin/destination signatures,
// standing in for the "session/signature machinery" spec.md treats as an
// external collaborator while still giving it a concrete, testable
// implementation (secp256k1 ECDSA over a canonical byte form).
package session

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"swarmnet/did"
)

// ErrInvalidSeed is returned when a configured private key seed does not
// decode to a 32-byte secp256k1 scalar.
var ErrInvalidSeed = errors.New("session: invalid private key seed")

// ErrVerifySignatureFailed is returned when a signature does not match
// the claimed session public key, or the public key does not derive the
// claimed DID.
var ErrVerifySignatureFailed = errors.New("session: signature verification failed")

// Keypair is this node's signing identity: a secp256k1 private key and
// the DID it derives.
type Keypair struct {
	priv *btcec.PrivateKey
	did  did.DID
}

// GenerateKeypair creates a fresh random keypair.
func GenerateKeypair() (*Keypair, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return NewKeypair(priv), nil
}

// NewKeypair wraps an existing secp256k1 private key.
func NewKeypair(priv *btcec.PrivateKey) *Keypair {
	return &Keypair{
		priv: priv,
		did:  did.FromPublicKey(priv.PubKey()),
	}
}

// KeypairFromSeed rebuilds a node's persistent identity from a
// base64-encoded 32-byte seed, the same "private_key_seed" configuration
// shape the teacher's peer_mockup uses for its ed25519 identity.
func KeypairFromSeed(seed string) (*Keypair, error) {
	raw, err := base64.StdEncoding.DecodeString(seed)
	if err != nil || len(raw) != 32 {
		return nil, ErrInvalidSeed
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	return NewKeypair(priv), nil
}

// DID returns the identity's peer address.
func (k *Keypair) DID() did.DID {
	return k.did
}

// PublicKeyHex renders the compressed public key as the "session_pubkey"
// wire value.
func (k *Keypair) PublicKeyHex() string {
	return hex.EncodeToString(k.priv.PubKey().SerializeCompressed())
}

// Sign produces a compact-form ECDSA signature (hex-encoded) over the
// SHA256 digest of data, matching the hashing verifySignature performs
// on the other side.
func (k *Keypair) Sign(data []byte) (string, error) {
	sig := ecdsa.SignCompact(k.priv, digest(data), true)
	return hex.EncodeToString(sig), nil
}

// digest hashes the bytes a signature is computed over.
func digest(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// verifySignature checks a hex-encoded compact signature over data
// against a hex-encoded compressed public key, and that the public key
// derives claimedDID.
func verifySignature(pubkeyHex, sigHex string, data []byte, claimedDID did.DID) bool {
	pubBytes, err := hex.DecodeString(pubkeyHex)
	if err != nil {
		return false
	}
	pub, err := btcec.ParsePubKey(pubBytes)
	if err != nil {
		return false
	}
	if did.FromPublicKey(pub) != claimedDID {
		return false
	}

	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	recovered, _, err := ecdsa.RecoverCompact(sigBytes, digest(data))
	if err != nil {
		return false
	}
	return recovered.IsEqual(pub)
}
