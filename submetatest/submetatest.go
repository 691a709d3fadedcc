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

// This package contains testing utilities shared across submeta's
// package tests: an in-memory store constructor, canned external-service
// fixtures for the DOI/catalog/access-management clients, and a single
// named workflow lookup. Adapted from dtstest's endpoint/database test
// fixtures (transfer-staging simulation has no counterpart here; what's
// kept is the same "register a fixture, hand back something satisfying
// the real interface" shape, now over submeta's own external clients).
package submetatest

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/kbase/submeta/clock"
	"github.com/kbase/submeta/extclient"
	"github.com/kbase/submeta/store"
	"github.com/kbase/submeta/workflow"
)

// Enables DEBUG log messages for submeta's structured log (slog).
func EnableDebugLogging() {
	logLevel := new(slog.LevelVar)
	logLevel.Set(slog.LevelDebug)
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(h))
}

// NewStore opens an in-memory store for the duration of the test,
// closing it automatically on cleanup.
func NewStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:", clock.RealClock{})
	if err != nil {
		t.Fatalf("opening test store: %s", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// SingleWorkflowLookup returns a workflow.Lookup that resolves exactly
// one name to wf and reports every other name as not found — the
// fixture shape most package tests need; multi-workflow tests build
// their own map-based lookup instead of reaching for this.
func SingleWorkflowLookup(name string, wf *workflow.Workflow) func(string) (*workflow.Workflow, bool) {
	return func(n string) (*workflow.Workflow, bool) {
		if n == name {
			return wf, true
		}
		return nil, false
	}
}

// DOIServer registers a fixture DOI registration-agency endpoint:
// /heartbeat for health checks, POST /dois to mint a draft, and
// DELETE/PUT on /dois/{doi} for updates and draft deletion. The minted
// identifier is always mintedDOI.
func DOIServer(t *testing.T, mintedDOI string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/heartbeat", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/dois", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.api+json")
		_, _ = w.Write([]byte(`{"data":{"attributes":{"doi":"` + mintedDOI + `","url":"https://doi.org/` + mintedDOI + `"}}}`))
	})
	mux.HandleFunc("/dois/"+mintedDOI, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// CatalogServer registers a fixture metadata-catalog endpoint: /healthz
// for health checks, POST /datasets to create a draft (always returning
// draftId), POST /datasets/bulk_update, and POST
// /datasets/{draftId}/publish returning preferredIdentifier.
func CatalogServer(t *testing.T, draftId, preferredIdentifier string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/datasets", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"identifier":"` + draftId + `"}`))
	})
	mux.HandleFunc("/datasets/bulk_update", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/datasets/"+draftId+"/publish", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"preferred_identifier":"` + preferredIdentifier + `"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// AccessServer registers a fixture access-management endpoint (REMS
// shape): /api/health, a workflow/license listing pair used by
// ValidateWorkflowLicenses, and resource/catalogue-item creation
// endpoints.
func AccessServer(t *testing.T, workflowId int, licenseIds []int, resourceId, catalogueItemId int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/api/workflows", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":` + itoa(workflowId) + `,"title":"test workflow"}]`))
	})
	mux.HandleFunc("/api/licenses", func(w http.ResponseWriter, r *http.Request) {
		body := `[`
		for i, id := range licenseIds {
			if i > 0 {
				body += ","
			}
			body += `{"id":` + itoa(id) + `,"title":"test license"}`
		}
		body += `]`
		_, _ = w.Write([]byte(body))
	})
	mux.HandleFunc("/api/resources/create", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"id":` + itoa(resourceId) + `}`))
	})
	mux.HandleFunc("/api/catalogue-items/create", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"id":` + itoa(catalogueItemId) + `}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// NewDOIClient is a convenience wrapper around extclient.NewDOIClient
// pointed at srv, using the given DOI prefix.
func NewDOIClient(srv *httptest.Server, prefix string) *extclient.DOIClient {
	return extclient.NewDOIClient(srv.URL, "", "", prefix, 5)
}
