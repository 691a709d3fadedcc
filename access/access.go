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

// Package access implements the access service (spec.md §4.K): OIDC
// session validation and API-key issuance/validation, surfacing only
// (user_id, user_name). The OIDC authentication flow itself and the
// API-key hash function are explicit non-goals (spec.md §1) — this
// package consumes an already-issued bearer token and treats hashing as
// a pluggable contract, grounded on auth/kbase_auth_server.go's
// token-to-userinfo exchange and auth/authenticator_test.go's
// fernet-go envelope.
package access

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fernet/fernet-go"
	"zombiezen.com/go/sqlite"

	"github.com/kbase/submeta/clock"
	"github.com/kbase/submeta/errs"
	"github.com/kbase/submeta/extclient"
	"github.com/kbase/submeta/idgen"
	"github.com/kbase/submeta/model"
	"github.com/kbase/submeta/store"
)

// Session is the normalized identity the access service ever exposes to
// the rest of the system — nothing else from the identity provider's
// claims is surfaced (spec.md §4.K).
type Session struct {
	UserId   string
	UserName string
}

// Hasher is the API-key hashing contract (spec.md §1 Non-goals: "the
// API-key hashing primitive ... is a contract, not a design concern").
// Any implementation satisfying this interface may be plugged in.
type Hasher interface {
	Hash(secret, salt string) string
}

// Sha256Hasher is the default Hasher: plain salted SHA-256. It's the
// compiled-in default referenced above, not a recommendation for a
// production deployment's own hash choice.
type Sha256Hasher struct{}

func (Sha256Hasher) Hash(secret, salt string) string {
	sum := sha256.Sum256([]byte(salt + secret))
	return hex.EncodeToString(sum[:])
}

// OIDCClient exchanges a bearer token for userinfo claims at the
// configured provider, mirroring KBaseAuthServer.kbaseUser()'s
// token-to-identity exchange but generalized to any OIDC-compliant
// userinfo endpoint.
type OIDCClient struct {
	*extclient.Client
}

// NewOIDCClient constructs an OIDC userinfo client.
func NewOIDCClient(oidcURL string, timeoutSeconds int64) *OIDCClient {
	return &OIDCClient{Client: extclient.New("oidc", oidcURL, time.Duration(timeoutSeconds)*time.Second)}
}

type userinfoResponse struct {
	Subject           string `json:"sub"`
	PreferredUsername string `json:"preferred_username"`
	Name              string `json:"name"`
}

// Userinfo calls the provider's userinfo endpoint with bearerToken and
// returns the subject identifier and display name.
func (c *OIDCClient) Userinfo(ctx context.Context, bearerToken string) (subject, name string, err error) {
	req := *c.Client
	req.Headers = map[string]string{"Authorization": "Bearer " + bearerToken}
	body, err := req.Do(ctx, "GET", "/userinfo", nil, "")
	if err != nil {
		return "", "", err
	}
	var info userinfoResponse
	if err := json.Unmarshal(body, &info); err != nil {
		return "", "", errs.InternalError{Reason: fmt.Sprintf("decoding OIDC userinfo response: %s", err)}
	}
	if info.Subject == "" {
		return "", "", errs.UnauthorizedError{Reason: "OIDC userinfo response carried no subject claim"}
	}
	displayName := info.Name
	if displayName == "" {
		displayName = info.PreferredUsername
	}
	return info.Subject, displayName, nil
}

// Service implements session validation and API-key lifecycle
// management.
type Service struct {
	Store      *store.Store
	IDGen      *idgen.Generator
	Clock      clock.Clock
	Hasher     Hasher
	OIDC       *OIDCClient
	FernetKeys []*fernet.Key
}

// ValidateSession exchanges bearerToken for the caller's identity via
// the OIDC provider and upserts the corresponding local user record
// (spec.md §3: users and their project memberships are created/
// refreshed on every successful login).
func (s *Service) ValidateSession(ctx context.Context, conn *sqlite.Conn, bearerToken string, projectClaims []string) (Session, error) {
	if bearerToken == "" {
		return Session{}, errs.UnauthorizedError{Reason: "missing bearer token"}
	}
	subject, name, err := s.OIDC.Userinfo(ctx, bearerToken)
	if err != nil {
		return Session{}, err
	}

	projectIds := make([]string, 0, len(projectClaims))
	for _, claim := range projectClaims {
		proj, err := s.Store.UpsertProject(conn, claim, func() (string, error) { return s.IDGen.NewAccession() })
		if err != nil {
			return Session{}, err
		}
		projectIds = append(projectIds, proj.ProjectId)
	}

	user, err := s.Store.UpsertUser(conn, subject, name, projectIds, func() (string, error) { return s.IDGen.NewAccession() })
	if err != nil {
		return Session{}, err
	}
	return Session{UserId: user.UserId, UserName: user.Name}, nil
}

// apiKeySeparator joins the public key id to the secret in every
// issued key, so a presented key carries its own lookup index instead
// of requiring a table scan to find the salt it was hashed with.
const apiKeySeparator = "."

// IssueApiKey mints a new API key for userId under the client-chosen
// label userKeyId. The raw key is returned exactly once — only its salt
// and hash (via Hasher) are persisted. The secret half is wrapped as a
// fernet token so a client holding the key can neither forge nor
// silently extend it (grounded on authenticator_test.go's
// fernet.EncryptAndSign envelope); the key id half is a plain accession
// so ValidateApiKey can look up the salt directly instead of scanning.
func (s *Service) IssueApiKey(conn *sqlite.Conn, userId, userKeyId string) (string, error) {
	if len(s.FernetKeys) == 0 {
		return "", errs.InternalError{Reason: "no fernet keys configured for API-key issuance"}
	}
	secret, err := randomSecret()
	if err != nil {
		return "", errs.InternalError{Reason: err.Error()}
	}
	token, err := fernet.EncryptAndSign([]byte(secret), s.FernetKeys[0])
	if err != nil {
		return "", errs.InternalError{Reason: fmt.Sprintf("encrypting API key: %s", err)}
	}

	keyId, err := s.IDGen.NewAccession()
	if err != nil {
		return "", errs.InternalError{Reason: err.Error()}
	}
	salt, err := randomSecret()
	if err != nil {
		return "", errs.InternalError{Reason: err.Error()}
	}
	hash := s.Hasher.Hash(string(token), salt)

	now := s.Clock.Now()
	err = s.Store.AddApiKey(conn, model.ApiKey{
		KeyId:      keyId,
		UserId:     userId,
		UserKeyId:  userKeyId,
		ApiKeyHash: hash,
		Salt:       salt,
		CreatedAt:  now,
	})
	if err != nil {
		return "", err
	}
	return keyId + apiKeySeparator + string(token), nil
}

// ValidateApiKey verifies a presented raw key, returning the owning
// user's identity. The key id prefix resolves the stored salt and hash
// directly; fernet.VerifyAndDecrypt additionally rejects a secret whose
// envelope was altered or was signed with a key no longer in
// FernetKeys. It is called with a zero TTL, so envelopes never expire.
func (s *Service) ValidateApiKey(conn *sqlite.Conn, rawKey string) (Session, error) {
	keyId, secret, ok := splitApiKey(rawKey)
	if !ok {
		return Session{}, errs.UnauthorizedError{Reason: "malformed API key"}
	}

	apiKey, found, err := s.Store.GetApiKeyById(conn, keyId)
	if err != nil {
		return Session{}, err
	}
	if !found {
		return Session{}, errs.UnauthorizedError{Reason: "invalid API key"}
	}

	if s.Hasher.Hash(secret, apiKey.Salt) != apiKey.ApiKeyHash {
		return Session{}, errs.UnauthorizedError{Reason: "invalid API key"}
	}

	valid := false
	for _, k := range s.FernetKeys {
		if fernet.VerifyAndDecrypt([]byte(secret), 0, []*fernet.Key{k}) != nil {
			valid = true
			break
		}
	}
	if !valid {
		return Session{}, errs.UnauthorizedError{Reason: "API key failed fernet verification"}
	}

	user, err := s.Store.GetUserById(conn, apiKey.UserId)
	if err != nil {
		return Session{}, errs.UnauthorizedError{Reason: "API key refers to an unknown user"}
	}
	return Session{UserId: user.UserId, UserName: user.Name}, nil
}

func splitApiKey(rawKey string) (keyId, secret string, ok bool) {
	idx := -1
	for i := 0; i < len(rawKey); i++ {
		if rawKey[i] == apiKeySeparator[0] {
			idx = i
			break
		}
	}
	if idx <= 0 || idx == len(rawKey)-1 {
		return "", "", false
	}
	return rawKey[:idx], rawKey[idx+1:], true
}

// RevokeApiKey deletes a user's key, identified by its client-chosen
// label.
func (s *Service) RevokeApiKey(conn *sqlite.Conn, userId, userKeyId string) error {
	ok, err := s.Store.DeleteApiKey(conn, userId, userKeyId)
	if err != nil {
		return err
	}
	if !ok {
		return errs.NotFoundError{Kind: "api_key", Id: userKeyId}
	}
	return nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}
