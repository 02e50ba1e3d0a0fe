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

// Package sqlcounter is a judgement.Counter backed by a SQL table, for
// deployments that already run a relational store. Connection handling
// follows the teacher's ConnectSqlDatabase (util/database.go): a "type:dsn"
// spec string selects sqlite3 or mysql.
package sqlcounter

import (
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"swarmnet/did"
	"swarmnet/judgement"
)

var (
	ErrInvalidSpec = fmt.Errorf("sqlcounter: invalid database specification")
	ErrNoDatabase  = fmt.Errorf("sqlcounter: database not found")
)

const schema = `create table if not exists judgement_counter (
	did text primary key,
	connect integer not null default 0,
	disconnected integer not null default 0,
	sent integer not null default 0,
	failed_to_send integer not null default 0
)`

// Counter stores per-DID tallies in a single SQL table.
type Counter struct {
	db *sql.DB
}

// Open connects to an SQL database per a "type:dsn" spec ("sqlite3:/path/to.db"
// or "mysql:user:pass@tcp(host)/db") and ensures the counter table exists.
func Open(spec string) (*Counter, error) {
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) < 2 {
		return nil, ErrInvalidSpec
	}
	var db *sql.DB
	var err error
	switch parts[0] {
	case "sqlite3":
		if fi, statErr := os.Stat(parts[1]); statErr != nil || fi.IsDir() {
			return nil, ErrNoDatabase
		}
		db, err = sql.Open("sqlite3", parts[1])
	case "mysql":
		db, err = sql.Open("mysql", parts[1])
	default:
		return nil, ErrInvalidSpec
	}
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	return &Counter{db: db}, nil
}

func (c *Counter) column(kind judgement.Kind) string {
	switch kind {
	case judgement.Connect:
		return "connect"
	case judgement.Disconnected:
		return "disconnected"
	case judgement.Sent:
		return "sent"
	case judgement.FailedToSend:
		return "failed_to_send"
	default:
		return "sent"
	}
}

func (c *Counter) Incr(peer did.DID, kind judgement.Kind) error {
	col := c.column(kind)
	_, err := c.db.Exec(
		`insert into judgement_counter(did, `+col+`) values(?, 1)
		 on conflict(did) do update set `+col+` = `+col+` + 1`,
		peer.String(),
	)
	return err
}

// Good requires recorded send failures to not outnumber successful sends.
func (c *Counter) Good(peer did.DID) (bool, error) {
	row := c.db.QueryRow(`select sent, failed_to_send from judgement_counter where did = ?`, peer.String())
	var sent, failed int
	if err := row.Scan(&sent, &failed); err != nil {
		if err == sql.ErrNoRows {
			return true, nil
		}
		return true, err
	}
	return failed <= sent, nil
}
