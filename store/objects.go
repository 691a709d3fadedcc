package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/kbase/submeta/errs"
	"github.com/kbase/submeta/model"
)

// AddObject inserts a new object row.
func (s *Store) AddObject(conn *sqlite.Conn, obj model.Object) error {
	doc, err := marshalDoc(obj.Document)
	if err != nil {
		return err
	}
	var name any
	if obj.Name != "" {
		name = obj.Name
	}
	var xmlDoc any
	if obj.HasXML {
		xmlDoc = obj.XMLDocument
	}
	err = sqlitex.Execute(conn,
		`INSERT INTO objects (object_id, submission_id, project_id, object_type, name, title,
			description, document_json, xml_document, created_at, modified_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			obj.ObjectId, obj.SubmissionId, obj.ProjectId, obj.ObjectType, name, obj.Title,
			obj.Description, doc, xmlDoc,
			obj.CreatedAt.Format(time.RFC3339Nano), obj.ModifiedAt.Format(time.RFC3339Nano),
		}})
	if isUniqueConstraintErr(err) {
		return errs.ConflictError{Reason: fmt.Sprintf("object '%s' of type '%s' already exists in project '%s'", obj.Name, obj.ObjectType, obj.ProjectId)}
	}
	if err != nil {
		return errs.InternalError{Reason: err.Error()}
	}
	return nil
}

// GetObjectById returns the object with the given id.
func (s *Store) GetObjectById(conn *sqlite.Conn, id string) (model.Object, error) {
	var out model.Object
	var found bool
	err := sqlitex.Execute(conn,
		`SELECT object_id, submission_id, project_id, object_type, COALESCE(name,''), title,
			description, document_json, xml_document, created_at, modified_at
		 FROM objects WHERE object_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = scanObject(stmt)
				found = true
				return nil
			},
		})
	if err != nil {
		return out, errs.InternalError{Reason: err.Error()}
	}
	if !found {
		return out, errs.NotFoundError{Kind: "object", Id: id}
	}
	return out, nil
}

// GetObjectByName returns the object uniquely identified by
// (projectId, objectType, name).
func (s *Store) GetObjectByName(conn *sqlite.Conn, projectId, objectType, name string) (model.Object, error) {
	var out model.Object
	var found bool
	err := sqlitex.Execute(conn,
		`SELECT object_id, submission_id, project_id, object_type, COALESCE(name,''), title,
			description, document_json, xml_document, created_at, modified_at
		 FROM objects WHERE project_id = ? AND object_type = ? AND name = ?`,
		&sqlitex.ExecOptions{
			Args: []any{projectId, objectType, name},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = scanObject(stmt)
				found = true
				return nil
			},
		})
	if err != nil {
		return out, errs.InternalError{Reason: err.Error()}
	}
	if !found {
		return out, errs.NotFoundError{Kind: "object", Id: name}
	}
	return out, nil
}

// CountObjectsByType returns, for a submission, the number of objects
// present per object_type — exactly the workflow.ObjectCounts shape the
// workflow engine's Satisfied evaluates against.
func (s *Store) CountObjectsByType(conn *sqlite.Conn, submissionId string) (map[string]int, error) {
	counts := make(map[string]int)
	err := sqlitex.Execute(conn,
		`SELECT object_type, COUNT(*) FROM objects WHERE submission_id = ? GROUP BY object_type`,
		&sqlitex.ExecOptions{
			Args: []any{submissionId},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				counts[stmt.ColumnText(0)] = int(stmt.ColumnInt64(1))
				return nil
			},
		})
	if err != nil {
		return nil, errs.InternalError{Reason: err.Error()}
	}
	return counts, nil
}

// ObjectFilter is the query contract for object listing (spec.md §4.F):
// submissionId, an optional ordered list of object types (preserved as
// sort key), an optional object id or name.
type ObjectFilter struct {
	SubmissionId string
	ObjectTypes  []string // order given is the sort order
	ObjectId     string
	Name         string
}

// ListObjects returns objects for a submission, restricted to
// ObjectTypes when one or more are given, ordered by the given type
// order then by created_at ascending within each type.
func (s *Store) ListObjects(conn *sqlite.Conn, filter ObjectFilter) ([]model.Object, error) {
	clauses := []string{"submission_id = ?"}
	args := []any{filter.SubmissionId}
	if filter.ObjectId != "" {
		clauses = append(clauses, "object_id = ?")
		args = append(args, filter.ObjectId)
	}
	if filter.Name != "" {
		clauses = append(clauses, "name = ?")
		args = append(args, filter.Name)
	}
	if len(filter.ObjectTypes) == 1 {
		clauses = append(clauses, "object_type = ?")
		args = append(args, filter.ObjectTypes[0])
	} else if len(filter.ObjectTypes) > 1 {
		placeholders := make([]string, len(filter.ObjectTypes))
		for i, t := range filter.ObjectTypes {
			placeholders[i] = "?"
			args = append(args, t)
		}
		clauses = append(clauses, fmt.Sprintf("object_type IN (%s)", strings.Join(placeholders, ", ")))
	}

	query := fmt.Sprintf(
		`SELECT object_id, submission_id, project_id, object_type, COALESCE(name,''), title,
			description, document_json, xml_document, created_at, modified_at
		 FROM objects WHERE %s ORDER BY created_at ASC`, joinAnd(clauses))

	var out []model.Object
	err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			out = append(out, scanObject(stmt))
			return nil
		},
	})
	if err != nil {
		return nil, errs.InternalError{Reason: err.Error()}
	}

	if len(filter.ObjectTypes) > 1 {
		out = sortByTypeOrder(out, filter.ObjectTypes)
	}
	return out, nil
}

// sortByTypeOrder stably reorders objects so that all objects of
// ObjectTypes[0] precede ObjectTypes[1], etc, each group internally
// preserving its created_at-ascending order (the list was already
// fetched sorted that way).
func sortByTypeOrder(objs []model.Object, order []string) []model.Object {
	rank := make(map[string]int, len(order))
	for i, t := range order {
		rank[t] = i
	}
	grouped := make(map[int][]model.Object)
	var unranked []model.Object
	for _, o := range objs {
		if r, ok := rank[o.ObjectType]; ok {
			grouped[r] = append(grouped[r], o)
		} else {
			unranked = append(unranked, o)
		}
	}
	var out []model.Object
	for i := range order {
		out = append(out, grouped[i]...)
	}
	return append(out, unranked...)
}

// UpdateObject fetches the object, hands it to mutator, and flushes the
// result.
func (s *Store) UpdateObject(conn *sqlite.Conn, id string, mutator func(*model.Object) error) error {
	obj, err := s.GetObjectById(conn, id)
	if err != nil {
		return err
	}
	if err := mutator(&obj); err != nil {
		return err
	}
	doc, err := marshalDoc(obj.Document)
	if err != nil {
		return err
	}
	var name any
	if obj.Name != "" {
		name = obj.Name
	}
	err = sqlitex.Execute(conn,
		`UPDATE objects SET name=?, title=?, description=?, document_json=?, modified_at=? WHERE object_id=?`,
		&sqlitex.ExecOptions{Args: []any{name, obj.Title, obj.Description, doc, obj.ModifiedAt.Format(time.RFC3339Nano), id}})
	if isUniqueConstraintErr(err) {
		return errs.ConflictError{Reason: fmt.Sprintf("object name '%s' already used for type '%s' in this project", obj.Name, obj.ObjectType)}
	}
	if err != nil {
		return errs.InternalError{Reason: err.Error()}
	}
	return nil
}

// DeleteObjectById removes an object (and, via cascade, its files and
// registrations). Returns false if no such object existed.
func (s *Store) DeleteObjectById(conn *sqlite.Conn, id string) (bool, error) {
	err := sqlitex.Execute(conn, "DELETE FROM objects WHERE object_id = ?", &sqlitex.ExecOptions{Args: []any{id}})
	if err != nil {
		return false, errs.InternalError{Reason: err.Error()}
	}
	return conn.Changes() > 0, nil
}

// CountSubmissionsForObject reports how many submissions currently
// claim the given object id — used to enforce the §8 invariant that no
// object belongs to more than one submission (an Unprocessable breach
// if it ever does).
func (s *Store) CountSubmissionsForObject(conn *sqlite.Conn, objectId string) (int, error) {
	var count int
	err := sqlitex.Execute(conn,
		`SELECT COUNT(DISTINCT submission_id) FROM objects WHERE object_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{objectId},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = int(stmt.ColumnInt64(0))
				return nil
			},
		})
	if err != nil {
		return 0, errs.InternalError{Reason: err.Error()}
	}
	return count, nil
}

func scanObject(stmt *sqlite.Stmt) model.Object {
	xmlDoc := stmt.ColumnText(8)
	return model.Object{
		ObjectId:     stmt.ColumnText(0),
		SubmissionId: stmt.ColumnText(1),
		ProjectId:    stmt.ColumnText(2),
		ObjectType:   stmt.ColumnText(3),
		Name:         stmt.ColumnText(4),
		Title:        stmt.ColumnText(5),
		Description:  stmt.ColumnText(6),
		Document:     json.RawMessage(stmt.ColumnText(7)),
		XMLDocument:  xmlDoc,
		HasXML:       strings.TrimSpace(xmlDoc) != "",
		CreatedAt:    parseTime(stmt.ColumnText(9)),
		ModifiedAt:   parseTime(stmt.ColumnText(10)),
	}
}
