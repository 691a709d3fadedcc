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

// Package store is the metadata repository (spec.md §4.F): a thin port
// over a relational store providing CRUD, paginated filtered listings,
// and ownership lookups for submissions, objects, files, registrations,
// users and projects.
//
// All database work for one request is expected to run inside a single
// transaction (spec.md §5); Store exposes WithTx for that purpose and
// every entity-family method takes an explicit *sqlite.Conn for use
// inside WithTx callbacks.
package store

import (
	"fmt"
	"sync"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/kbase/submeta/clock"
	"github.com/kbase/submeta/errs"
)

// Store owns a pool of SQLite connections backing the metadata
// repository. A single-writer SQLite database is adequate at the scale
// this spec targets (single-process, many in-flight requests); the
// pool exists to let read-only listing queries run concurrently with
// an in-flight write transaction.
type Store struct {
	pool  *sqlitex.Pool
	clock clock.Clock
	mu    sync.Mutex // serializes schema migrations at startup only
}

// Open creates (or reopens) a Store at path, applying the schema if
// this is a fresh database. Use ":memory:" for tests.
func Open(path string, clk clock.Clock) (*Store, error) {
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize: 8,
		Flags:    sqlite.OpenReadWrite | sqlite.OpenCreate | sqlite.OpenWAL,
	})
	if err != nil {
		return nil, errs.InternalError{Reason: fmt.Sprintf("opening store at %s: %s", path, err)}
	}
	s := &Store{pool: pool, clock: clk}
	if err := s.migrate(); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases all pooled connections.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Ping checks connectivity by taking a pooled connection and running a
// trivial query, returning the elapsed time — the health surface's
// local-database probe, grounded on the original's
// try_db_connection()'s "time a round trip, Down on failure" shape.
func (s *Store) Ping() (time.Duration, error) {
	start := s.clock.Now()
	conn, err := s.pool.Take(nil)
	if err != nil {
		return 0, errs.InternalError{Reason: err.Error()}
	}
	defer s.pool.Put(conn)
	if err := sqlitex.Execute(conn, "SELECT 1", nil); err != nil {
		return 0, errs.InternalError{Reason: err.Error()}
	}
	return s.clock.Now().Sub(start), nil
}

// WithTx runs fn inside a single SQLite transaction, committing on
// success and rolling back if fn returns an error or panics. This is
// the "single session per transactional scope" that spec.md §5
// requires for a request's DB work.
func (s *Store) WithTx(fn func(conn *sqlite.Conn) error) (err error) {
	conn, err := s.pool.Take(nil)
	if err != nil {
		return errs.InternalError{Reason: err.Error()}
	}
	defer s.pool.Put(conn)

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return errs.InternalError{Reason: err.Error()}
	}
	defer endFn(&err)

	return fn(conn)
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS projects (
	project_id TEXT PRIMARY KEY,
	external_id TEXT NOT NULL UNIQUE,
	templates_json TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS users (
	user_id TEXT PRIMARY KEY,
	external_id TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	projects_json TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS submissions (
	submission_id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	project_id TEXT NOT NULL,
	workflow_name TEXT NOT NULL,
	folder TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	document_json TEXT NOT NULL,
	is_published INTEGER NOT NULL DEFAULT 0,
	is_ingested INTEGER NOT NULL DEFAULT 0,
	published_at TEXT,
	ingested_at TEXT,
	created_at TEXT NOT NULL,
	modified_at TEXT NOT NULL,
	UNIQUE (project_id, name)
);
CREATE INDEX IF NOT EXISTS idx_submissions_project ON submissions(project_id);

CREATE TABLE IF NOT EXISTS objects (
	object_id TEXT PRIMARY KEY,
	submission_id TEXT NOT NULL REFERENCES submissions(submission_id) ON DELETE CASCADE,
	project_id TEXT NOT NULL,
	object_type TEXT NOT NULL,
	name TEXT,
	title TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	document_json TEXT NOT NULL,
	xml_document TEXT,
	created_at TEXT NOT NULL,
	modified_at TEXT NOT NULL,
	UNIQUE (project_id, object_type, name)
);
CREATE INDEX IF NOT EXISTS idx_objects_submission ON objects(submission_id);

CREATE TABLE IF NOT EXISTS files (
	file_id TEXT PRIMARY KEY,
	submission_id TEXT NOT NULL REFERENCES submissions(submission_id) ON DELETE CASCADE,
	object_id TEXT REFERENCES objects(object_id) ON DELETE CASCADE,
	path TEXT NOT NULL,
	bytes INTEGER NOT NULL DEFAULT 0,
	unencrypted_checksum TEXT NOT NULL DEFAULT '',
	encrypted_checksum TEXT NOT NULL DEFAULT '',
	checksum_method TEXT NOT NULL DEFAULT '',
	ingest_status TEXT NOT NULL DEFAULT 'added',
	ingest_error TEXT NOT NULL DEFAULT '',
	ingest_error_type TEXT NOT NULL DEFAULT '',
	ingest_error_count INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	modified_at TEXT NOT NULL,
	UNIQUE (submission_id, path)
);

CREATE TABLE IF NOT EXISTS registrations (
	registration_id TEXT PRIMARY KEY,
	submission_id TEXT NOT NULL REFERENCES submissions(submission_id) ON DELETE CASCADE,
	object_id TEXT REFERENCES objects(object_id) ON DELETE CASCADE,
	object_type TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	doi TEXT NOT NULL DEFAULT '',
	metax_id TEXT NOT NULL DEFAULT '',
	datacite_url TEXT NOT NULL DEFAULT '',
	rems_url TEXT NOT NULL DEFAULT '',
	rems_resource_id TEXT NOT NULL DEFAULT '',
	rems_catalogue_id TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	modified_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_registrations_submission ON registrations(submission_id);

CREATE TABLE IF NOT EXISTS api_keys (
	key_id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	user_key_id TEXT NOT NULL,
	api_key_hash TEXT NOT NULL,
	salt TEXT NOT NULL,
	created_at TEXT NOT NULL,
	UNIQUE (user_id, user_key_id)
);
`

func (s *Store) migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, err := s.pool.Take(nil)
	if err != nil {
		return errs.InternalError{Reason: err.Error()}
	}
	defer s.pool.Put(conn)
	if err := sqlitex.ExecuteScript(conn, schemaDDL, nil); err != nil {
		return errs.InternalError{Reason: fmt.Sprintf("applying schema: %s", err)}
	}
	return nil
}

// Page describes pagination parameters common to every listing query.
type Page struct {
	PageNum  int // 1-based
	PageSize int
}

func (p Page) normalized() Page {
	if p.PageNum < 1 {
		p.PageNum = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 20
	}
	return p
}

func (p Page) offset() int {
	return (p.PageNum - 1) * p.PageSize
}

// TotalPages computes ceil(total/pageSize), returning 0 when total is 0.
func (p Page) TotalPages(total int) int {
	p = p.normalized()
	if total == 0 {
		return 0
	}
	return (total + p.PageSize - 1) / p.PageSize
}
