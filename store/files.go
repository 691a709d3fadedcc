package store

import (
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/kbase/submeta/errs"
	"github.com/kbase/submeta/model"
)

// AddFile inserts a new file row.
func (s *Store) AddFile(conn *sqlite.Conn, f model.File) error {
	var objId any
	if f.ObjectId != "" {
		objId = f.ObjectId
	}
	err := sqlitex.Execute(conn,
		`INSERT INTO files (file_id, submission_id, object_id, path, bytes, unencrypted_checksum,
			encrypted_checksum, checksum_method, ingest_status, ingest_error, ingest_error_type,
			ingest_error_count, created_at, modified_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			f.FileId, f.SubmissionId, objId, f.Path, f.Bytes, f.UnencryptedChecksum,
			f.EncryptedChecksum, f.ChecksumMethod, string(f.IngestStatus), f.IngestError, f.IngestErrorType,
			f.IngestErrorCount, f.CreatedAt.Format(time.RFC3339Nano), f.ModifiedAt.Format(time.RFC3339Nano),
		}})
	if isUniqueConstraintErr(err) {
		return errs.ConflictError{Reason: fmt.Sprintf("file '%s' already attached to submission '%s'", f.Path, f.SubmissionId)}
	}
	if err != nil {
		return errs.InternalError{Reason: err.Error()}
	}
	return nil
}

// ListFilesByProject returns every file belonging to a submission owned
// by projectId, matching the GET /files?projectId=… contract (spec.md §6).
func (s *Store) ListFilesByProject(conn *sqlite.Conn, projectId string) ([]model.File, error) {
	var out []model.File
	err := sqlitex.Execute(conn,
		`SELECT f.file_id, f.submission_id, COALESCE(f.object_id,''), f.path, f.bytes,
			f.unencrypted_checksum, f.encrypted_checksum, f.checksum_method, f.ingest_status,
			f.ingest_error, f.ingest_error_type, f.ingest_error_count, f.created_at, f.modified_at
		 FROM files f JOIN submissions s ON s.submission_id = f.submission_id
		 WHERE s.project_id = ? ORDER BY f.created_at ASC`,
		&sqlitex.ExecOptions{
			Args: []any{projectId},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, scanFile(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, errs.InternalError{Reason: err.Error()}
	}
	return out, nil
}

// ListFilesBySubmission returns every file attached to a submission,
// the input to the publish orchestrator's step-6 ingestion trigger
// (spec.md §4.J).
func (s *Store) ListFilesBySubmission(conn *sqlite.Conn, submissionId string) ([]model.File, error) {
	var out []model.File
	err := sqlitex.Execute(conn,
		`SELECT file_id, submission_id, COALESCE(object_id,''), path, bytes, unencrypted_checksum,
			encrypted_checksum, checksum_method, ingest_status, ingest_error, ingest_error_type,
			ingest_error_count, created_at, modified_at
		 FROM files WHERE submission_id = ? ORDER BY created_at ASC`,
		&sqlitex.ExecOptions{
			Args: []any{submissionId},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, scanFile(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, errs.InternalError{Reason: err.Error()}
	}
	return out, nil
}

// UpdateFile fetches the file, hands it to mutator, and flushes the
// result, enforcing the ingest-status partial order via mutator's own
// logic (model.IngestStatus.CanTransition).
func (s *Store) UpdateFile(conn *sqlite.Conn, id string, mutator func(*model.File) error) error {
	f, err := s.getFileById(conn, id)
	if err != nil {
		return err
	}
	if err := mutator(&f); err != nil {
		return err
	}
	err = sqlitex.Execute(conn,
		`UPDATE files SET ingest_status=?, ingest_error=?, ingest_error_type=?, ingest_error_count=?,
			modified_at=? WHERE file_id=?`,
		&sqlitex.ExecOptions{Args: []any{
			string(f.IngestStatus), f.IngestError, f.IngestErrorType, f.IngestErrorCount,
			f.ModifiedAt.Format(time.RFC3339Nano), id,
		}})
	if err != nil {
		return errs.InternalError{Reason: err.Error()}
	}
	return nil
}

func (s *Store) getFileById(conn *sqlite.Conn, id string) (model.File, error) {
	var out model.File
	var found bool
	err := sqlitex.Execute(conn,
		`SELECT file_id, submission_id, COALESCE(object_id,''), path, bytes, unencrypted_checksum,
			encrypted_checksum, checksum_method, ingest_status, ingest_error, ingest_error_type,
			ingest_error_count, created_at, modified_at
		 FROM files WHERE file_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = scanFile(stmt)
				found = true
				return nil
			},
		})
	if err != nil {
		return out, errs.InternalError{Reason: err.Error()}
	}
	if !found {
		return out, errs.NotFoundError{Kind: "file", Id: id}
	}
	return out, nil
}

func scanFile(stmt *sqlite.Stmt) model.File {
	return model.File{
		FileId:              stmt.ColumnText(0),
		SubmissionId:        stmt.ColumnText(1),
		ObjectId:            stmt.ColumnText(2),
		Path:                stmt.ColumnText(3),
		Bytes:               stmt.ColumnInt64(4),
		UnencryptedChecksum: stmt.ColumnText(5),
		EncryptedChecksum:   stmt.ColumnText(6),
		ChecksumMethod:      stmt.ColumnText(7),
		IngestStatus:        model.IngestStatus(stmt.ColumnText(8)),
		IngestError:         stmt.ColumnText(9),
		IngestErrorType:     stmt.ColumnText(10),
		IngestErrorCount:    int(stmt.ColumnInt64(11)),
		CreatedAt:           parseTime(stmt.ColumnText(12)),
		ModifiedAt:          parseTime(stmt.ColumnText(13)),
	}
}
