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

// Package health aggregates the status of the local database and every
// configured external service into one report, grounded on
// original_source/metadata_backend/api/health.py's get_health_status():
// the report always returns (never surfaces a 5xx itself) and carries a
// per-service status map alongside one overall status.
package health

import (
	"context"
	"time"

	"github.com/kbase/submeta/store"
)

// Status is one service's reported health.
type Status string

const (
	StatusOk       Status = "Ok"
	StatusDegraded Status = "Degraded"
	StatusDown     Status = "Down"
)

// degradedThreshold mirrors the original's "load status" cutoff: a
// database round trip slower than this is reported Degraded rather
// than Ok, even though the connection itself succeeded.
const degradedThreshold = 1 * time.Second

// Checker is satisfied by every external service client built on
// extclient.Client.
type Checker interface {
	HealthCheck(ctx context.Context, path string) bool
}

// Endpoint names one external service to probe and the path its
// HealthCheck should hit.
type Endpoint struct {
	Name    string
	Path    string
	Checker Checker
}

// Report is the aggregated health document: Overall is "Ok" unless any
// Services entry is non-Ok, in which case it is "Partially down" —
// matching the original's two-valued overall status exactly.
type Report struct {
	Overall  string            `json:"status"`
	Services map[string]Status `json:"services"`
}

// Collect probes the local store and every endpoint, never returning an
// error itself — an unreachable service is reflected as StatusDown in
// the resulting report, not as a Go error, so callers can always render
// a 200 response the way the original handler does.
func Collect(ctx context.Context, st *store.Store, endpoints []Endpoint) Report {
	services := make(map[string]Status, len(endpoints)+1)

	elapsed, err := st.Ping()
	switch {
	case err != nil:
		services["database"] = StatusDown
	case elapsed > degradedThreshold:
		services["database"] = StatusDegraded
	default:
		services["database"] = StatusOk
	}

	for _, ep := range endpoints {
		if ep.Checker.HealthCheck(ctx, ep.Path) {
			services[ep.Name] = StatusOk
		} else {
			services[ep.Name] = StatusDown
		}
	}

	overall := "Ok"
	for _, status := range services {
		if status != StatusOk {
			overall = "Partially down"
			break
		}
	}
	return Report{Overall: overall, Services: services}
}
