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

package services

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbase/submeta/access"
	"github.com/kbase/submeta/clock"
	"github.com/kbase/submeta/config"
	"github.com/kbase/submeta/idgen"
	"github.com/kbase/submeta/publish"
	"github.com/kbase/submeta/submetatest"
	"github.com/kbase/submeta/workflow"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	submetatest.EnableDebugLogging()

	dir, err := os.MkdirTemp(os.TempDir(), "submeta-services-tests-")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg := strings.ReplaceAll(testServiceConfig, "TESTING_DIR", dir)
	require.NoError(t, config.Init([]byte(cfg)))
	require.NoError(t, os.MkdirAll(config.Service.DataDirectory, 0755))

	st := submetatest.NewStore(t)
	pub := &publish.Service{
		Store: st,
		Clock: clock.RealClock{},
		IDGen: idgen.NewGenerator(),
		Workflows: func(string) (*workflow.Workflow, bool) { return nil, false },
	}
	acc := &access.Service{
		Store: st,
		IDGen: idgen.NewGenerator(),
		Clock: clock.RealClock{},
		Hasher: access.Sha256Hasher{},
	}
	return NewService(st, pub, acc)
}

// TestStartAndShutdownWithoutHTTP exercises the lifecycle shell with no
// port bound: Start must open the journal and run a recovery scan, and
// Shutdown must stop the poll loop and close the journal cleanly.
func TestStartAndShutdownWithoutHTTP(t *testing.T) {
	svc := newTestService(t)

	errCh := make(chan error, 1)
	go func() { errCh <- svc.Start(0) }()

	// give the Start goroutine time to open the journal and launch polling
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(ctx))

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start never returned after Shutdown")
	}
}

// TestUptimeGrowsAfterStart confirms the uptime clock starts ticking
// once Start has set StartTime.
func TestUptimeGrowsAfterStart(t *testing.T) {
	svc := newTestService(t)
	go svc.Start(0)
	time.Sleep(20 * time.Millisecond)
	defer svc.Close()

	assert.Greater(t, svc.uptime(), 0.0)
}

// TestRouterHasNoRegisteredRoutes documents that the lifecycle shell's
// router is left for an out-of-scope HTTP layer to populate: submeta
// itself never calls Router.HandleFunc.
func TestRouterHasNoRegisteredRoutes(t *testing.T) {
	svc := newTestService(t)
	assert.NotNil(t, svc.Router)

	var count int
	err := svc.Router.Walk(func(route *mux.Route, router *mux.Router, ancestors []*mux.Route) error {
		count++
		return nil
	})
	assert.NoError(t, err)
	assert.Zero(t, count)
}

const testServiceConfig string = `
service:
  name: submeta-test
  port: 0
  poll_interval: 50
  data_dir: TESTING_DIR/data
`
