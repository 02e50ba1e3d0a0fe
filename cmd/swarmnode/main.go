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

// Command swarmnode runs one node of the connection fabric: it loads a
// configuration, brings up a WebRTC transport backend and the swarm
// registry, and exposes a minimal status endpoint alongside a dial
// command for manual testing, in the shape of the teacher's
// cmd/peer_mockup (ctx/signal/heartbeat loop) and
// service/zonemaster (gorilla/mux status page).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bfix/gospel/logger"
	"github.com/gorilla/mux"

	"swarmnet/config"
	"swarmnet/did"
	"swarmnet/judgement"
	"swarmnet/judgement/memcounter"
	"swarmnet/judgement/rediscounter"
	"swarmnet/judgement/sqlcounter"
	"swarmnet/session"
	"swarmnet/swarm"
	"swarmnet/transport/webrtc"
)

func main() {
	cfgFile := flag.String("c", "", "configuration file (JSON)")
	listen := flag.String("listen", "127.0.0.1:8686", "status endpoint address")
	dial := flag.String("dial", "", "DID to connect to on startup (0x...)")
	flag.Parse()

	cfg := config.Default()
	if *cfgFile != "" {
		var err error
		if cfg, err = config.Parse(*cfgFile); err != nil {
			logger.Printf(logger.ERROR, "[swarmnode] config: %s", err)
			os.Exit(1)
		}
	}
	logger.SetLogLevel(logLevelFromString(cfg.LogLevel))

	key, err := nodeIdentity(cfg)
	if err != nil {
		logger.Printf(logger.ERROR, "[swarmnode] identity: %s", err)
		os.Exit(1)
	}

	backend, err := webrtc.NewBackend(cfg)
	if err != nil {
		logger.Printf(logger.ERROR, "[swarmnode] webrtc backend: %s", err)
		os.Exit(1)
	}

	judge, err := nodeJudge(cfg)
	if err != nil {
		logger.Printf(logger.ERROR, "[swarmnode] judgement backend: %s", err)
		os.Exit(1)
	}

	s := swarm.New(key, backend, cfg, judge)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Println("======================================================================")
	fmt.Println("swarmnet node (EXPERIMENTAL)")
	fmt.Printf("    Identity %s\n", s.DID())
	fmt.Println("======================================================================")

	go s.IterMessages(ctx, func(p *session.Payload) {
		logger.Printf(logger.DBG, "<<< payload from %s", p.Envelope.Sender())
	})

	startStatusServer(ctx, s, *listen)

	if *dial != "" {
		peer, err := did.Parse(*dial)
		if err != nil {
			logger.Printf(logger.ERROR, "[swarmnode] -dial: %s", err)
		} else if _, err := s.Connect(peer); err != nil {
			logger.Printf(logger.ERROR, "[swarmnode] connect to %s: %s", peer, err)
		}
	}

	sigCh := make(chan os.Signal, 5)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	tick := time.NewTicker(5 * time.Minute)
	defer tick.Stop()

loop:
	for {
		select {
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGINT, syscall.SIGTERM:
				logger.Printf(logger.INFO, "[swarmnode] terminating on signal %s", sig)
				break loop
			case syscall.SIGHUP:
				logger.Println(logger.INFO, "[swarmnode] SIGHUP")
			}
		case now := <-tick.C:
			logger.Println(logger.INFO, "[swarmnode] heartbeat at "+now.String())
		}
	}
	cancel()
}

// logLevelFromString maps the configuration's textual log level onto the
// teacher's logger package constants, defaulting to INFO.
func logLevelFromString(s string) int {
	switch s {
	case "DBG", "DEBUG":
		return logger.DBG
	case "WARN":
		return logger.WARN
	case "ERROR":
		return logger.ERROR
	default:
		return logger.INFO
	}
}

// nodeIdentity loads this node's keypair from the configured seed, or
// generates and logs a fresh one for an unconfigured node.
func nodeIdentity(cfg *config.Config) (*session.Keypair, error) {
	if cfg.PrivateKeySeed != "" {
		return session.KeypairFromSeed(cfg.PrivateKeySeed)
	}
	key, err := session.GenerateKeypair()
	if err != nil {
		return nil, err
	}
	logger.Printf(logger.WARN, "[swarmnode] no private_key_seed configured, using ephemeral identity %s", key.DID())
	return key, nil
}

// nodeJudge builds the judgement hook from the configured counter
// backend, defaulting to an in-process counter.
func nodeJudge(cfg *config.Config) (*judgement.Judge, error) {
	switch cfg.JudgementBackend {
	case config.JudgementRedis:
		return judgement.New(rediscounter.New(cfg.JudgementDSN, "", 0)), nil
	case config.JudgementSQL:
		counter, err := sqlcounter.Open(cfg.JudgementDSN)
		if err != nil {
			return nil, err
		}
		return judgement.New(counter), nil
	default:
		return judgement.New(memcounter.New()), nil
	}
}

// status is the JSON body served at "/".
type status struct {
	DID string `json:"did"`
}

// startStatusServer runs a minimal gorilla/mux status endpoint in the
// background, following service/zonemaster's router-plus-http.Server shape.
func startStatusServer(ctx context.Context, s *swarm.Swarm, addr string) {
	router := mux.NewRouter()
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(status{DID: s.DID().String()})
	})
	srv := &http.Server{
		Addr:              addr,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           router,
	}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf(logger.ERROR, "[swarmnode] status server: %s", err)
		}
	}()
}
