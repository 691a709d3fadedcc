package store

import (
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/kbase/submeta/errs"
	"github.com/kbase/submeta/model"
)

// AddApiKey inserts a new API key credential. userKeyId must be unique
// per user (spec.md §4.K) — a collision reports a ConflictError rather
// than an opaque InternalError.
func (s *Store) AddApiKey(conn *sqlite.Conn, k model.ApiKey) error {
	err := sqlitex.Execute(conn,
		`INSERT INTO api_keys (key_id, user_id, user_key_id, api_key_hash, salt, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			k.KeyId, k.UserId, k.UserKeyId, k.ApiKeyHash, k.Salt, k.CreatedAt.Format(time.RFC3339Nano),
		}})
	if isUniqueConstraintErr(err) {
		return errs.ConflictError{Reason: fmt.Sprintf("key id '%s' already in use for this user", k.UserKeyId)}
	}
	if err != nil {
		return errs.InternalError{Reason: err.Error()}
	}
	return nil
}

// ListApiKeysByUser returns every key issued to userId, newest first.
func (s *Store) ListApiKeysByUser(conn *sqlite.Conn, userId string) ([]model.ApiKey, error) {
	var out []model.ApiKey
	err := sqlitex.Execute(conn,
		`SELECT key_id, user_id, user_key_id, api_key_hash, salt, created_at
		 FROM api_keys WHERE user_id = ? ORDER BY created_at DESC`,
		&sqlitex.ExecOptions{
			Args: []any{userId},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, scanApiKey(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, errs.InternalError{Reason: err.Error()}
	}
	return out, nil
}

// GetApiKeyByHash returns the key whose stored hash equals hash, and
// whether one was found, resolving a presented key to its owning user
// without a plaintext-keyed lookup.
func (s *Store) GetApiKeyByHash(conn *sqlite.Conn, hash string) (model.ApiKey, bool, error) {
	var out model.ApiKey
	var found bool
	err := sqlitex.Execute(conn,
		`SELECT key_id, user_id, user_key_id, api_key_hash, salt, created_at FROM api_keys WHERE api_key_hash = ?`,
		&sqlitex.ExecOptions{
			Args: []any{hash},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = scanApiKey(stmt)
				found = true
				return nil
			},
		})
	if err != nil {
		return out, false, errs.InternalError{Reason: err.Error()}
	}
	return out, found, nil
}

// GetApiKeyById returns the key record for keyId, the public prefix
// carried alongside the secret in every presented API key so the salt
// needed to verify it can be looked up without scanning the table.
func (s *Store) GetApiKeyById(conn *sqlite.Conn, keyId string) (model.ApiKey, bool, error) {
	var out model.ApiKey
	var found bool
	err := sqlitex.Execute(conn,
		`SELECT key_id, user_id, user_key_id, api_key_hash, salt, created_at FROM api_keys WHERE key_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{keyId},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = scanApiKey(stmt)
				found = true
				return nil
			},
		})
	if err != nil {
		return out, false, errs.InternalError{Reason: err.Error()}
	}
	return out, found, nil
}

// DeleteApiKey revokes a key owned by userId, identified by its
// caller-chosen userKeyId. Returns false if no such key existed.
func (s *Store) DeleteApiKey(conn *sqlite.Conn, userId, userKeyId string) (bool, error) {
	err := sqlitex.Execute(conn,
		`DELETE FROM api_keys WHERE user_id = ? AND user_key_id = ?`,
		&sqlitex.ExecOptions{Args: []any{userId, userKeyId}})
	if err != nil {
		return false, errs.InternalError{Reason: err.Error()}
	}
	return conn.Changes() > 0, nil
}

func scanApiKey(stmt *sqlite.Stmt) model.ApiKey {
	return model.ApiKey{
		KeyId:      stmt.ColumnText(0),
		UserId:     stmt.ColumnText(1),
		UserKeyId:  stmt.ColumnText(2),
		ApiKeyHash: stmt.ColumnText(3),
		Salt:       stmt.ColumnText(4),
		CreatedAt:  parseTime(stmt.ColumnText(5)),
	}
}
