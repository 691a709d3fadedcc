package access

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fernet/fernet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"zombiezen.com/go/sqlite"

	"github.com/kbase/submeta/clock"
	"github.com/kbase/submeta/errs"
	"github.com/kbase/submeta/idgen"
	"github.com/kbase/submeta/store"
)

func newTestService(t *testing.T, oidcServer *httptest.Server) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:", clock.RealClock{})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	var key fernet.Key
	require.NoError(t, key.Generate())

	svc := &Service{
		Store:      st,
		IDGen:      idgen.NewGenerator(),
		Clock:      clock.RealClock{},
		Hasher:     Sha256Hasher{},
		FernetKeys: []*fernet.Key{&key},
	}
	if oidcServer != nil {
		svc.OIDC = NewOIDCClient(oidcServer.URL, 5)
	}
	return svc, st
}

func TestValidateSessionCreatesUserAndProjects(t *testing.T) {
	oidcServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sub":"user-abc","preferred_username":"jdoe","name":"Jane Doe"}`))
	}))
	defer oidcServer.Close()

	svc, st := newTestService(t, oidcServer)
	ctx := context.Background()

	var session Session
	err := st.WithTx(func(conn *sqlite.Conn) error {
		var err error
		session, err = svc.ValidateSession(ctx, conn, "tok-123", []string{"proj-claim-1"})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", session.UserName)
	assert.NotEmpty(t, session.UserId)

	err = st.WithTx(func(conn *sqlite.Conn) error {
		user, err := st.GetUserById(conn, session.UserId)
		require.NoError(t, err)
		assert.Equal(t, "Jane Doe", user.Name)
		require.Len(t, user.Projects, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestValidateSessionRejectsEmptyToken(t *testing.T) {
	svc, st := newTestService(t, nil)
	err := st.WithTx(func(conn *sqlite.Conn) error {
		_, err := svc.ValidateSession(context.Background(), conn, "", nil)
		return err
	})
	require.Error(t, err)
	var unauthorized errs.UnauthorizedError
	assert.ErrorAs(t, err, &unauthorized)
}

func TestIssueAndValidateApiKeyRoundTrip(t *testing.T) {
	svc, st := newTestService(t, nil)

	var rawKey string
	err := st.WithTx(func(conn *sqlite.Conn) error {
		user, err := st.UpsertUser(conn, "ext-1", "Test User", nil, func() (string, error) { return svc.IDGen.NewAccession() })
		if err != nil {
			return err
		}
		rawKey, err = svc.IssueApiKey(conn, user.UserId, "my-laptop")
		return err
	})
	require.NoError(t, err)
	require.NotEmpty(t, rawKey)

	var session Session
	err = st.WithTx(func(conn *sqlite.Conn) error {
		var err error
		session, err = svc.ValidateApiKey(conn, rawKey)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "Test User", session.UserName)
}

func TestValidateApiKeyRejectsTamperedSecret(t *testing.T) {
	svc, st := newTestService(t, nil)

	var rawKey string
	err := st.WithTx(func(conn *sqlite.Conn) error {
		user, err := st.UpsertUser(conn, "ext-2", "Tamper Target", nil, func() (string, error) { return svc.IDGen.NewAccession() })
		if err != nil {
			return err
		}
		rawKey, err = svc.IssueApiKey(conn, user.UserId, "key-1")
		return err
	})
	require.NoError(t, err)

	tampered := rawKey + "x"
	err = st.WithTx(func(conn *sqlite.Conn) error {
		_, err := svc.ValidateApiKey(conn, tampered)
		return err
	})
	require.Error(t, err)
	var unauthorized errs.UnauthorizedError
	assert.ErrorAs(t, err, &unauthorized)
}

func TestValidateApiKeyRejectsMalformedKey(t *testing.T) {
	svc, st := newTestService(t, nil)
	err := st.WithTx(func(conn *sqlite.Conn) error {
		_, err := svc.ValidateApiKey(conn, "no-separator-here")
		return err
	})
	require.Error(t, err)
	var unauthorized errs.UnauthorizedError
	assert.ErrorAs(t, err, &unauthorized)
}

func TestRevokeApiKey(t *testing.T) {
	svc, st := newTestService(t, nil)
	err := st.WithTx(func(conn *sqlite.Conn) error {
		user, err := st.UpsertUser(conn, "ext-3", "Revoke Target", nil, func() (string, error) { return svc.IDGen.NewAccession() })
		if err != nil {
			return err
		}
		if _, err := svc.IssueApiKey(conn, user.UserId, "doomed-key"); err != nil {
			return err
		}
		return svc.RevokeApiKey(conn, user.UserId, "doomed-key")
	})
	require.NoError(t, err)

	err = st.WithTx(func(conn *sqlite.Conn) error {
		return svc.RevokeApiKey(conn, "whoever", "doomed-key")
	})
	require.Error(t, err)
	var notFound errs.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}
