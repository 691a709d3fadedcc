// Copyright (c) 2023 The KBase Project and its Contributors
// Copyright (c) 2023 Cohere Consulting, LLC
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package services carries submeta's process lifecycle shell: the
// constructor/Start/Shutdown/Close quartet that the (out-of-scope, per
// spec.md §1) HTTP routing layer would attach to. It owns the publish
// journal's lifetime and the background recovery/poll loop that keeps
// RecoverIncomplete current; it registers no HTTP routes of its own.
// Grounded on prototype.go's NewDTSPrototype/Start/Shutdown/Close shape.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/net/netutil"
	"zombiezen.com/go/sqlite"

	"github.com/kbase/submeta/access"
	"github.com/kbase/submeta/config"
	"github.com/kbase/submeta/journal"
	"github.com/kbase/submeta/publish"
	"github.com/kbase/submeta/store"
)

// Version identifies this build of submeta.
const Version = "0.1.0"

// Service is submeta's process lifecycle shell.
type Service struct {
	// descriptive name of the service
	Name string
	// service version identifier
	Version string
	// time at which the service was started
	StartTime time.Time
	// port on which the service currently runs (0 if HTTP serving is disabled)
	Port int
	// router for REST endpoints; kept so an out-of-scope HTTP layer has
	// somewhere to attach routes, but submeta itself registers none
	Router *mux.Router
	// HTTP server, non-nil only once Start has been called with a port
	Server *http.Server

	// Store is the metadata repository used for the recovery scan below.
	Store *store.Store
	// Publish is the publish orchestrator whose RecoverIncomplete this
	// shell invokes at startup and on every poll tick.
	Publish *publish.Service
	// Access validates bearer tokens and API keys for the (out-of-scope)
	// HTTP layer; the lifecycle shell itself never calls it.
	Access *access.Service

	stopPolling chan struct{}
	pollDone    chan struct{}
}

// NewService constructs submeta's lifecycle shell around an
// already-wired store, publish orchestrator, and access service.
func NewService(st *store.Store, pub *publish.Service, acc *access.Service) *Service {
	return &Service{
		Name:    "submeta",
		Version: Version,
		Router:  mux.NewRouter(),
		Store:   st,
		Publish: pub,
		Access:  acc,
	}
}

// returns the uptime for the service in seconds
func (service *Service) uptime() float64 {
	return time.Since(service.StartTime).Seconds()
}

// recoverIncomplete runs the publish orchestrator's startup recovery
// sweep (spec.md §5): it lists incomplete publishes in one transaction,
// then re-invokes Publish for each in a transaction of its own, logging
// (rather than propagating) any submission that still fails to resume —
// the next poll tick gets another chance.
func (service *Service) recoverIncomplete(ctx context.Context) {
	var incomplete []string
	err := service.Store.WithTx(func(conn *sqlite.Conn) error {
		var err error
		incomplete, err = service.Publish.RecoverIncomplete(ctx, conn)
		return err
	})
	if err != nil {
		slog.Error("recovery scan failed", "error", err)
		return
	}
	var resumed []string
	for _, id := range incomplete {
		err := service.Store.WithTx(func(conn *sqlite.Conn) error {
			return service.Publish.Publish(ctx, conn, id)
		})
		if err != nil {
			slog.Error("resuming incomplete publish failed", "submission", id, "error", err)
			continue
		}
		resumed = append(resumed, id)
	}
	if len(resumed) > 0 {
		slog.Info("resumed incomplete publishes", "count", len(resumed), "submissions", resumed)
	}
}

// pollLoop re-runs the recovery scan on config.Service.PollInterval
// until stopPolling is closed, mirroring tasks.go's polling idiom
// without its transfer-staging state machine.
func (service *Service) pollLoop() {
	defer close(service.pollDone)
	interval := time.Duration(config.Service.PollInterval) * time.Millisecond
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			service.recoverIncomplete(context.Background())
		case <-service.stopPolling:
			return
		}
	}
}

// Start opens the publish journal, runs the recovery scan once
// immediately, begins the background poll loop, and — if port is
// positive — serves HTTP on service.Router until the server is shut
// down or closed. A non-positive port skips HTTP serving entirely,
// which is how tests and non-networked deployments drive the service.
func (service *Service) Start(port int) error {
	slog.Info("starting service", "name", service.Name, "max_connections", config.Service.MaxConnections)
	service.StartTime = time.Now()
	service.Port = port

	if err := journal.Init(); err != nil {
		return fmt.Errorf("opening publish journal: %w", err)
	}

	service.recoverIncomplete(context.Background())

	service.stopPolling = make(chan struct{})
	service.pollDone = make(chan struct{})
	go service.pollLoop()

	if port <= 0 {
		return nil
	}

	listener, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return err
	}
	defer listener.Close()
	listener = netutil.LimitListener(listener, config.Service.MaxConnections)

	service.Server = &http.Server{Handler: service.Router}
	err = service.Server.Serve(listener)
	if err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the service without interrupting active
// connections, closing the publish journal once polling has stopped.
func (service *Service) Shutdown(ctx context.Context) error {
	if service.stopPolling != nil {
		close(service.stopPolling)
		<-service.pollDone
	}
	journal.Finalize()
	if service.Server != nil {
		return service.Server.Shutdown(ctx)
	}
	return nil
}

// Close shuts the service down abruptly, freeing all resources.
func (service *Service) Close() {
	if service.stopPolling != nil {
		close(service.stopPolling)
		<-service.pollDone
	}
	journal.Finalize()
	if service.Server != nil {
		service.Server.Close()
	}
}
