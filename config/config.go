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

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/bfix/gospel/logger"
)

///////////////////////////////////////////////////////////////////////
// ICE configuration

// IceServer is a single STUN/TURN endpoint, optionally with credentials
// ("stun:host:port" or "turn:host:port#user:pass").
type IceServer struct {
	URL      string `json:"url"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// ParseIceServer parses one semicolon-separated entry of the
// "ice_servers" configuration option.
func ParseIceServer(spec string) (*IceServer, error) {
	s := &IceServer{}
	rest := spec
	if idx := strings.Index(spec, "#"); idx >= 0 {
		rest = spec[:idx]
		cred := strings.SplitN(spec[idx+1:], ":", 2)
		s.Username = cred[0]
		if len(cred) == 2 {
			s.Password = cred[1]
		}
	}
	if !strings.HasPrefix(rest, "stun:") && !strings.HasPrefix(rest, "turn:") {
		return nil, fmt.Errorf("invalid ICE server URI: %q", spec)
	}
	s.URL = rest
	return s, nil
}

///////////////////////////////////////////////////////////////////////

// Environ holds environment-style substitutions applied to string fields
// of the configuration (e.g. "${HOME}/.swarmnet").
type Environ map[string]string

// JudgementBackend selects the persistence used by an optional behaviour
// counter attached to the Judgement hook.
type JudgementBackend string

const (
	JudgementMemory JudgementBackend = "memory"
	JudgementRedis  JudgementBackend = "redis"
	JudgementSQL    JudgementBackend = "sql"
)

// Config is the aggregated configuration for a swarm node.
type Config struct {
	Env Environ `json:"environ"`

	// own identity
	PrivateKeySeed string `json:"private_key_seed"`

	// Swarm / transport
	IceServersRaw     string `json:"ice_servers"`
	ExternalAddress   string `json:"external_address,omitempty"`
	SessionTTLMs      int64  `json:"session_ttl"`
	DHTSuccMax        int    `json:"dht_succ_max"`
	HiddenServicePort int    `json:"hidden_service_port,omitempty"`

	// ambient
	LogLevel string `json:"log_level"`

	// judgement hook (optional decoration, see package judgement)
	JudgementBackend JudgementBackend `json:"judgement_backend"`
	JudgementDSN     string           `json:"judgement_dsn,omitempty"`
}

// defaultSessionTTL is spec's default validity window for signed payloads.
const defaultSessionTTL = 3 * 24 * time.Hour

// Default returns a Config with spec-mandated defaults applied.
func Default() *Config {
	return &Config{
		Env:              Environ{},
		IceServersRaw:    "stun:stun.l.google.com:19302",
		SessionTTLMs:     defaultSessionTTL.Milliseconds(),
		DHTSuccMax:       3,
		LogLevel:         "INFO",
		JudgementBackend: JudgementMemory,
	}
}

// IceServers splits the semicolon-separated "ice_servers" option.
func (c *Config) IceServers() ([]*IceServer, error) {
	var out []*IceServer
	for _, part := range strings.Split(c.IceServersRaw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		s, err := ParseIceServer(part)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// SessionTTL returns the configured signed-payload validity window.
func (c *Config) SessionTTL() time.Duration {
	if c.SessionTTLMs <= 0 {
		return defaultSessionTTL
	}
	return time.Duration(c.SessionTTLMs) * time.Millisecond
}

// Parse reads a JSON-encoded configuration file, applying "${VAR}"
// substitutions from its own "environ" section afterwards.
func Parse(fileName string) (cfg *Config, err error) {
	file, err := os.ReadFile(fileName)
	if err != nil {
		return nil, err
	}
	cfg = Default()
	if err = json.Unmarshal(file, cfg); err != nil {
		return nil, err
	}
	applySubstitutions(cfg, cfg.Env)
	return cfg, nil
}

var rx = regexp.MustCompile(`\$\{([^\}]*)\}`)

// substString replaces "${name}" occurrences with values from env.
func substString(s string, env map[string]string) string {
	matches := rx.FindAllStringSubmatch(s, -1)
	for _, m := range matches {
		if len(m[1]) != 0 {
			subst, ok := env[m[1]]
			if !ok {
				continue
			}
			s = strings.ReplaceAll(s, "${"+m[1]+"}", subst)
		}
	}
	return s
}

// applySubstitutions traverses the configuration data structure
// and applies string substitutions to all string values.
func applySubstitutions(x interface{}, env map[string]string) {
	var process func(v reflect.Value)
	process = func(v reflect.Value) {
		for i := 0; i < v.NumField(); i++ {
			fld := v.Field(i)
			if !fld.CanSet() {
				continue
			}
			switch fld.Kind() {
			case reflect.String:
				s := fld.Interface().(string)
				for {
					s1 := substString(s, env)
					if s1 == s {
						break
					}
					logger.Printf(logger.DBG, "[config] %s --> %s", s, s1)
					fld.SetString(s1)
					s = s1
				}
			case reflect.Struct:
				process(fld)
			case reflect.Ptr:
				if e := fld.Elem(); e.IsValid() {
					process(e)
				}
			}
		}
	}
	v := reflect.ValueOf(x)
	switch v.Kind() {
	case reflect.Ptr:
		if e := v.Elem(); e.IsValid() {
			process(e)
		}
	case reflect.Struct:
		process(v)
	}
}
