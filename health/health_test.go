package health

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbase/submeta/clock"
	"github.com/kbase/submeta/store"
)

type fakeChecker struct{ up bool }

func (f fakeChecker) HealthCheck(ctx context.Context, path string) bool { return f.up }

func TestCollectAllOk(t *testing.T) {
	st, err := store.Open(":memory:", clock.RealClock{})
	require.NoError(t, err)
	defer st.Close()

	report := Collect(context.Background(), st, []Endpoint{
		{Name: "datacite", Path: "/heartbeat", Checker: fakeChecker{up: true}},
		{Name: "catalog", Path: "/healthz", Checker: fakeChecker{up: true}},
	})
	assert.Equal(t, "Ok", report.Overall)
	assert.Equal(t, StatusOk, report.Services["database"])
	assert.Equal(t, StatusOk, report.Services["datacite"])
	assert.Equal(t, StatusOk, report.Services["catalog"])
}

func TestCollectPartiallyDownWhenAnEndpointFails(t *testing.T) {
	st, err := store.Open(":memory:", clock.RealClock{})
	require.NoError(t, err)
	defer st.Close()

	report := Collect(context.Background(), st, []Endpoint{
		{Name: "datacite", Path: "/heartbeat", Checker: fakeChecker{up: true}},
		{Name: "access", Path: "/api/health", Checker: fakeChecker{up: false}},
	})
	assert.Equal(t, "Partially down", report.Overall)
	assert.Equal(t, StatusOk, report.Services["datacite"])
	assert.Equal(t, StatusDown, report.Services["access"])
}

func TestCollectWithNoEndpointsReflectsDatabaseOnly(t *testing.T) {
	st, err := store.Open(":memory:", clock.RealClock{})
	require.NoError(t, err)
	defer st.Close()

	report := Collect(context.Background(), st, nil)
	assert.Equal(t, "Ok", report.Overall)
	assert.Len(t, report.Services, 1)
}
