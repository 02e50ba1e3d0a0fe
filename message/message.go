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

// Package message defines the typed bodies carried inside a session
// Payload, and a small typed-union registry to encode/decode them,
// following the shape of the teacher's message type registry
// (gnunet's message/factory.go) generalized to this overlay's body set.
package message

import (
	"encoding/json"
	"errors"
	"fmt"

	"swarmnet/did"
)

// ErrUnknownType is returned by Decode for an unregistered "type" tag.
var ErrUnknownType = errors.New("message: unknown type")

// Message is implemented by every typed body minimally supported by the
// relay core.
type Message interface {
	// Type returns the wire discriminator for this body.
	Type() string
}

// ConnectNodeSend carries an SDP offer.
type ConnectNodeSend struct {
	SDP string `json:"sdp"`
}

func (ConnectNodeSend) Type() string { return "ConnectNodeSend" }

// ConnectNodeReport carries an SDP answer.
type ConnectNodeReport struct {
	SDP string `json:"sdp"`
}

func (ConnectNodeReport) Type() string { return "ConnectNodeReport" }

// JoinDHT is a synthetic, swarm-internal notification that a neighbour
// was admitted to the registry.
type JoinDHT struct {
	ID did.DID `json:"id"`
}

func (JoinDHT) Type() string { return "JoinDHT" }

// LeaveDHT is a synthetic, swarm-internal notification that a neighbour
// was removed from the registry.
type LeaveDHT struct {
	ID did.DID `json:"id"`
}

func (LeaveDHT) Type() string { return "LeaveDHT" }

// envelope is the tagged-union wire shape used for the opaque "body"
// field of a session.Payload.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Encode wraps a typed body into the tagged-union JSON form suitable for
// a session.Payload's Body field.
func Encode(m Message) (json.RawMessage, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("message: encode %s: %w", m.Type(), err)
	}
	return json.Marshal(envelope{Type: m.Type(), Data: data})
}

// Decode unwraps a tagged-union body back into its concrete Message type.
func Decode(raw json.RawMessage) (Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("message: decode envelope: %w", err)
	}
	switch env.Type {
	case "ConnectNodeSend":
		var m ConnectNodeSend
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case "ConnectNodeReport":
		var m ConnectNodeReport
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case "JoinDHT":
		var m JoinDHT
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case "LeaveDHT":
		var m LeaveDHT
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}
