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

// Package rediscounter is a judgement.Counter backed by Redis hash
// counters, for multi-node deployments sharing behaviour history,
// generalizing the teacher's KvsRedis (util/key_value_store.go) from a
// plain string store to per-DID integer tallies via HINCRBY.
package rediscounter

import (
	"context"
	"fmt"
	"strconv"

	redis "github.com/go-redis/redis/v8"

	"swarmnet/did"
	"swarmnet/judgement"
)

const (
	fieldConnect      = "connect"
	fieldDisconnected = "disconnected"
	fieldSent         = "sent"
	fieldFailed       = "failed_to_send"
)

// Counter stores per-DID tallies in a Redis hash keyed by the DID string.
type Counter struct {
	client *redis.Client
}

// New dials a Redis server at addr (e.g. "localhost:6379") using db index db.
func New(addr, password string, db int) *Counter {
	return &Counter{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func key(peer did.DID) string {
	return fmt.Sprintf("swarmnet:judgement:%s", peer.String())
}

func fieldFor(kind judgement.Kind) string {
	switch kind {
	case judgement.Connect:
		return fieldConnect
	case judgement.Disconnected:
		return fieldDisconnected
	case judgement.Sent:
		return fieldSent
	case judgement.FailedToSend:
		return fieldFailed
	default:
		return fieldSent
	}
}

func (c *Counter) Incr(peer did.DID, kind judgement.Kind) error {
	return c.client.HIncrBy(context.Background(), key(peer), fieldFor(kind), 1).Err()
}

// Good requires recorded send failures to not outnumber successful sends.
func (c *Counter) Good(peer did.DID) (bool, error) {
	vals, err := c.client.HMGet(context.Background(), key(peer), fieldSent, fieldFailed).Result()
	if err != nil {
		return true, err
	}
	sent := toInt(vals[0])
	failed := toInt(vals[1])
	return failed <= sent, nil
}

func toInt(v interface{}) int {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
