package store

import (
	"encoding/json"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/kbase/submeta/errs"
	"github.com/kbase/submeta/model"
)

// AddSubmission inserts a new submission row. The caller is responsible
// for having already minted SubmissionId and populated CreatedAt /
// ModifiedAt (the submission service, not the repository, owns those
// policies per spec.md §4.G).
func (s *Store) AddSubmission(conn *sqlite.Conn, sub model.Submission) error {
	doc, err := marshalDoc(sub.Document)
	if err != nil {
		return err
	}
	err = sqlitex.Execute(conn,
		`INSERT INTO submissions (submission_id, name, project_id, workflow_name, folder, title,
			description, document_json, is_published, is_ingested, published_at, ingested_at,
			created_at, modified_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			sub.SubmissionId, sub.Name, sub.ProjectId, sub.WorkflowName, sub.Folder, sub.Title,
			sub.Description, doc, boolToInt(sub.IsPublished), boolToInt(sub.IsIngested),
			timePtrString(sub.PublishedAt), timePtrString(sub.IngestedAt),
			sub.CreatedAt.Format(time.RFC3339Nano), sub.ModifiedAt.Format(time.RFC3339Nano),
		}})
	if isUniqueConstraintErr(err) {
		return errs.ConflictError{Reason: fmt.Sprintf("submission '%s' already exists for project '%s'", sub.Name, sub.ProjectId)}
	}
	if err != nil {
		return errs.InternalError{Reason: err.Error()}
	}
	return nil
}

// GetSubmissionById returns the submission with the given id.
func (s *Store) GetSubmissionById(conn *sqlite.Conn, id string) (model.Submission, error) {
	var out model.Submission
	var found bool
	err := sqlitex.Execute(conn,
		`SELECT submission_id, name, project_id, workflow_name, folder, title, description,
			document_json, is_published, is_ingested, published_at, ingested_at, created_at, modified_at
		 FROM submissions WHERE submission_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = scanSubmission(stmt)
				found = true
				return nil
			},
		})
	if err != nil {
		return out, errs.InternalError{Reason: err.Error()}
	}
	if !found {
		return out, errs.NotFoundError{Kind: "submission", Id: id}
	}
	return out, nil
}

// GetSubmissionByName returns the submission uniquely identified by
// (projectId, name).
func (s *Store) GetSubmissionByName(conn *sqlite.Conn, projectId, name string) (model.Submission, error) {
	var out model.Submission
	var found bool
	err := sqlitex.Execute(conn,
		`SELECT submission_id, name, project_id, workflow_name, folder, title, description,
			document_json, is_published, is_ingested, published_at, ingested_at, created_at, modified_at
		 FROM submissions WHERE project_id = ? AND name = ?`,
		&sqlitex.ExecOptions{
			Args: []any{projectId, name},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = scanSubmission(stmt)
				found = true
				return nil
			},
		})
	if err != nil {
		return out, errs.InternalError{Reason: err.Error()}
	}
	if !found {
		return out, errs.NotFoundError{Kind: "submission", Id: name}
	}
	return out, nil
}

// SubmissionFilter is the query contract for submission listing
// (spec.md §4.F): name substring, is_published, is_ingested, created/
// modified date ranges, sort order and pagination.
type SubmissionFilter struct {
	ProjectId        string
	NameSubstring    string
	IsPublished      *bool
	IsIngested       *bool
	CreatedStart     *time.Time
	CreatedEnd       *time.Time
	ModifiedStart    *time.Time
	ModifiedEnd      *time.Time
	SortByModified   bool // false sorts by created_at desc (the default)
	Page             Page
}

// ListSubmissions returns the page of submissions matching filter and
// the total count of matches across all pages.
func (s *Store) ListSubmissions(conn *sqlite.Conn, filter SubmissionFilter) ([]model.Submission, int, error) {
	page := filter.Page.normalized()
	where, args := submissionWhere(filter)

	var total int
	countQuery := "SELECT COUNT(*) FROM submissions " + where
	err := sqlitex.Execute(conn, countQuery, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			total = int(stmt.ColumnInt64(0))
			return nil
		},
	})
	if err != nil {
		return nil, 0, errs.InternalError{Reason: err.Error()}
	}

	order := "created_at DESC"
	if filter.SortByModified {
		order = "modified_at DESC"
	}
	listQuery := fmt.Sprintf(
		`SELECT submission_id, name, project_id, workflow_name, folder, title, description,
			document_json, is_published, is_ingested, published_at, ingested_at, created_at, modified_at
		 FROM submissions %s ORDER BY %s LIMIT ? OFFSET ?`, where, order)

	var out []model.Submission
	err = sqlitex.Execute(conn, listQuery, &sqlitex.ExecOptions{
		Args: append(append([]any{}, args...), page.PageSize, page.offset()),
		ResultFunc: func(stmt *sqlite.Stmt) error {
			out = append(out, scanSubmission(stmt))
			return nil
		},
	})
	if err != nil {
		return nil, 0, errs.InternalError{Reason: err.Error()}
	}
	return out, total, nil
}

func submissionWhere(f SubmissionFilter) (string, []any) {
	clauses := []string{"1=1"}
	var args []any
	if f.ProjectId != "" {
		clauses = append(clauses, "project_id = ?")
		args = append(args, f.ProjectId)
	}
	if f.NameSubstring != "" {
		clauses = append(clauses, "name LIKE ?")
		args = append(args, "%"+f.NameSubstring+"%")
	}
	if f.IsPublished != nil {
		clauses = append(clauses, "is_published = ?")
		args = append(args, boolToInt(*f.IsPublished))
	}
	if f.IsIngested != nil {
		clauses = append(clauses, "is_ingested = ?")
		args = append(args, boolToInt(*f.IsIngested))
	}
	if f.CreatedStart != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, f.CreatedStart.Format(time.RFC3339Nano))
	}
	if f.CreatedEnd != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, f.CreatedEnd.Format(time.RFC3339Nano))
	}
	if f.ModifiedStart != nil {
		clauses = append(clauses, "modified_at >= ?")
		args = append(args, f.ModifiedStart.Format(time.RFC3339Nano))
	}
	if f.ModifiedEnd != nil {
		clauses = append(clauses, "modified_at <= ?")
		args = append(args, f.ModifiedEnd.Format(time.RFC3339Nano))
	}
	return "WHERE " + joinAnd(clauses), args
}

// UpdateSubmission fetches the submission, hands it to mutator for
// in-place modification, and flushes it on return. This is the
// update(id, mutator) contract from spec.md §4.F.
func (s *Store) UpdateSubmission(conn *sqlite.Conn, id string, mutator func(*model.Submission) error) error {
	sub, err := s.GetSubmissionById(conn, id)
	if err != nil {
		return err
	}
	if err := mutator(&sub); err != nil {
		return err
	}
	doc, err := marshalDoc(sub.Document)
	if err != nil {
		return err
	}
	err = sqlitex.Execute(conn,
		`UPDATE submissions SET name=?, folder=?, title=?, description=?, document_json=?,
			is_published=?, is_ingested=?, published_at=?, ingested_at=?, modified_at=?
		 WHERE submission_id=?`,
		&sqlitex.ExecOptions{Args: []any{
			sub.Name, sub.Folder, sub.Title, sub.Description, doc,
			boolToInt(sub.IsPublished), boolToInt(sub.IsIngested),
			timePtrString(sub.PublishedAt), timePtrString(sub.IngestedAt),
			sub.ModifiedAt.Format(time.RFC3339Nano), id,
		}})
	if isUniqueConstraintErr(err) {
		return errs.ConflictError{Reason: fmt.Sprintf("submission name '%s' already used in this project", sub.Name)}
	}
	if err != nil {
		return errs.InternalError{Reason: err.Error()}
	}
	return nil
}

// DeleteSubmissionById removes a submission and, via ON DELETE CASCADE,
// its objects, files and registrations. Returns false if no such
// submission existed.
func (s *Store) DeleteSubmissionById(conn *sqlite.Conn, id string) (bool, error) {
	if err := sqlitex.Execute(conn, "PRAGMA foreign_keys = ON", nil); err != nil {
		return false, errs.InternalError{Reason: err.Error()}
	}
	err := sqlitex.Execute(conn, "DELETE FROM submissions WHERE submission_id = ?",
		&sqlitex.ExecOptions{Args: []any{id}})
	if err != nil {
		return false, errs.InternalError{Reason: err.Error()}
	}
	return conn.Changes() > 0, nil
}

func scanSubmission(stmt *sqlite.Stmt) model.Submission {
	return model.Submission{
		SubmissionId: stmt.ColumnText(0),
		Name:         stmt.ColumnText(1),
		ProjectId:    stmt.ColumnText(2),
		WorkflowName: stmt.ColumnText(3),
		Folder:       stmt.ColumnText(4),
		Title:        stmt.ColumnText(5),
		Description:  stmt.ColumnText(6),
		Document:     json.RawMessage(stmt.ColumnText(7)),
		IsPublished:  stmt.ColumnInt64(8) != 0,
		IsIngested:   stmt.ColumnInt64(9) != 0,
		PublishedAt:  parseTimePtr(stmt.ColumnText(10)),
		IngestedAt:   parseTimePtr(stmt.ColumnText(11)),
		CreatedAt:    parseTime(stmt.ColumnText(12)),
		ModifiedAt:   parseTime(stmt.ColumnText(13)),
	}
}
