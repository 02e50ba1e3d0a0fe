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
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"swarmnet/did"
	"swarmnet/relay"
)

// DefaultTTL is spec's default validity window for signed payloads.
const DefaultTTL = 3 * 24 * time.Hour

// Payload binds a typed message body to a relay.Envelope with
// origin/destination signatures. Encoding is canonical JSON, byte-exact
// for interop (see spec.md section 6).
type Payload struct {
	Body                 json.RawMessage `json:"body"`
	Envelope             *relay.Envelope `json:"envelope"`
	SessionPublicKey     string          `json:"session_pubkey"`
	TimestampMs          int64           `json:"timestamp_ms"`
	TTLMs                int64           `json:"ttl_ms"`
	OriginSignature      string          `json:"origin_signature"`
	DestinationSignature string          `json:"destination_signature,omitempty"`
}

// signedFields is the exact byte form a signature is computed over:
// (body, envelope, timestamp, ttl). The envelope's next_hop is signed as
// null, since senders set it after the payload has been signed.
type signedFields struct {
	Body        json.RawMessage `json:"body"`
	Envelope    *relay.Envelope `json:"envelope"`
	TimestampMs int64           `json:"timestamp_ms"`
	TTLMs       int64           `json:"ttl_ms"`
}

func (p *Payload) signedBytes() ([]byte, error) {
	env := p.Envelope
	if env != nil && env.NextHop != nil {
		env = env.Clone()
		env.NextHop = nil
	}
	return json.Marshal(signedFields{
		Body:        p.Body,
		Envelope:    env,
		TimestampMs: p.TimestampMs,
		TTLMs:       p.TTLMs,
	})
}

// NewSend builds a fresh SEND-method signed payload: envelope
// {method: SEND, path: [origin], cursor: 0, next_hop: nil}, signed by
// key.
func NewSend(body any, key *Keypair, origin, destination did.DID, ttl time.Duration) (*Payload, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("session: encode body: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	env := relay.New(relay.SEND, []did.DID{origin}, nil, nil, destination)

	p := &Payload{
		Body:             raw,
		Envelope:         env,
		SessionPublicKey: key.PublicKeyHex(),
		TimestampMs:      nowMillis(),
		TTLMs:            ttl.Milliseconds(),
	}
	sig, err := p.sign(key)
	if err != nil {
		return nil, err
	}
	p.OriginSignature = sig
	return p, nil
}

func (p *Payload) sign(key *Keypair) (string, error) {
	data, err := p.signedBytes()
	if err != nil {
		return "", err
	}
	return key.Sign(data)
}

// SignAsDestination adds this payload's destination_signature, used when
// a hop answers a SEND message (e.g. the responder side of the
// handshake).
func (p *Payload) SignAsDestination(key *Keypair) error {
	sig, err := p.sign(key)
	if err != nil {
		return err
	}
	p.DestinationSignature = sig
	return nil
}

// Verify checks the origin signature over (body, envelope, timestamp,
// ttl) against session_pubkey, and that the payload has not gone stale.
// The envelope's next_hop is not covered by the signature.
// A failing verification must never have side effects (spec.md
// invariant 6) -- callers simply drop the payload.
func (p *Payload) Verify() bool {
	if p.isStale() {
		return false
	}
	data, err := p.signedBytes()
	if err != nil {
		return false
	}
	return verifySignature(p.SessionPublicKey, p.OriginSignature, data, p.Envelope.Sender())
}

func (p *Payload) isStale() bool {
	return nowMillis() > p.TimestampMs+p.TTLMs
}

// Encode renders the canonical JSON wire form.
func (p *Payload) Encode() ([]byte, error) {
	return json.Marshal(p)
}

// Decode parses the canonical JSON wire form.
func Decode(b []byte) (*Payload, error) {
	p := new(Payload)
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(p); err != nil {
		return nil, fmt.Errorf("session: decode payload: %w", err)
	}
	return p, nil
}

// nowMillis is overridable in tests to exercise staleness deterministically.
var nowMillis = func() int64 {
	return time.Now().UnixMilli()
}
