package store

import (
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/kbase/submeta/errs"
	"github.com/kbase/submeta/model"
)

// AddRegistration inserts a new registration row, grounded on
// database/postgres/services/registration.py's add_registration, which
// is keyed by (submission_id, object_id?).
func (s *Store) AddRegistration(conn *sqlite.Conn, r model.Registration) error {
	var objId any
	if r.ObjectId != "" {
		objId = r.ObjectId
	}
	err := sqlitex.Execute(conn,
		`INSERT INTO registrations (registration_id, submission_id, object_id, object_type, title,
			description, doi, metax_id, datacite_url, rems_url, rems_resource_id, rems_catalogue_id,
			created_at, modified_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			r.RegistrationId, r.SubmissionId, objId, r.ObjectType, r.Title, r.Description, r.DOI,
			r.MetaxId, r.DataciteUrl, r.RemsUrl, r.RemsResourceId, r.RemsCatalogueId,
			r.CreatedAt.Format(time.RFC3339Nano), r.ModifiedAt.Format(time.RFC3339Nano),
		}})
	if err != nil {
		return errs.InternalError{Reason: err.Error()}
	}
	return nil
}

// GetRegistrationBySubmissionId returns the submission-level
// registration (object_id is null), if one exists.
func (s *Store) GetRegistrationBySubmissionId(conn *sqlite.Conn, submissionId string) (model.Registration, bool, error) {
	return s.getRegistration(conn,
		`SELECT registration_id, submission_id, COALESCE(object_id,''), object_type, title, description,
			doi, metax_id, datacite_url, rems_url, rems_resource_id, rems_catalogue_id, created_at, modified_at
		 FROM registrations WHERE submission_id = ? AND (object_id IS NULL)`, submissionId)
}

// GetRegistrationByObjectId returns the object-level registration for
// the given object, if one exists.
func (s *Store) GetRegistrationByObjectId(conn *sqlite.Conn, objectId string) (model.Registration, bool, error) {
	return s.getRegistration(conn,
		`SELECT registration_id, submission_id, COALESCE(object_id,''), object_type, title, description,
			doi, metax_id, datacite_url, rems_url, rems_resource_id, rems_catalogue_id, created_at, modified_at
		 FROM registrations WHERE object_id = ?`, objectId)
}

// ListRegistrations returns every registration for a submission.
func (s *Store) ListRegistrations(conn *sqlite.Conn, submissionId string) ([]model.Registration, error) {
	var out []model.Registration
	err := sqlitex.Execute(conn,
		`SELECT registration_id, submission_id, COALESCE(object_id,''), object_type, title, description,
			doi, metax_id, datacite_url, rems_url, rems_resource_id, rems_catalogue_id, created_at, modified_at
		 FROM registrations WHERE submission_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{submissionId},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, scanRegistration(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, errs.InternalError{Reason: err.Error()}
	}
	return out, nil
}

func (s *Store) getRegistration(conn *sqlite.Conn, query string, arg string) (model.Registration, bool, error) {
	var out model.Registration
	var found bool
	err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: []any{arg},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			out = scanRegistration(stmt)
			found = true
			return nil
		},
	})
	if err != nil {
		return out, false, errs.InternalError{Reason: err.Error()}
	}
	return out, found, nil
}

// UpdateRegistration fetches the registration by id, hands it to
// mutator, and flushes the result — the basis for update_metax_id,
// update_datacite_url, update_rems_url, update_rems_resource_id and
// update_rems_catalogue_id in the publish orchestrator.
func (s *Store) UpdateRegistration(conn *sqlite.Conn, id string, mutator func(*model.Registration) error) error {
	var reg model.Registration
	var found bool
	err := sqlitex.Execute(conn,
		`SELECT registration_id, submission_id, COALESCE(object_id,''), object_type, title, description,
			doi, metax_id, datacite_url, rems_url, rems_resource_id, rems_catalogue_id, created_at, modified_at
		 FROM registrations WHERE registration_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				reg = scanRegistration(stmt)
				found = true
				return nil
			},
		})
	if err != nil {
		return errs.InternalError{Reason: err.Error()}
	}
	if !found {
		return errs.NotFoundError{Kind: "registration", Id: id}
	}
	if err := mutator(&reg); err != nil {
		return err
	}
	err = sqlitex.Execute(conn,
		`UPDATE registrations SET doi=?, metax_id=?, datacite_url=?, rems_url=?, rems_resource_id=?,
			rems_catalogue_id=?, modified_at=? WHERE registration_id=?`,
		&sqlitex.ExecOptions{Args: []any{
			reg.DOI, reg.MetaxId, reg.DataciteUrl, reg.RemsUrl, reg.RemsResourceId, reg.RemsCatalogueId,
			reg.ModifiedAt.Format(time.RFC3339Nano), id,
		}})
	if err != nil {
		return errs.InternalError{Reason: err.Error()}
	}
	return nil
}

func scanRegistration(stmt *sqlite.Stmt) model.Registration {
	return model.Registration{
		RegistrationId:  stmt.ColumnText(0),
		SubmissionId:    stmt.ColumnText(1),
		ObjectId:        stmt.ColumnText(2),
		ObjectType:      stmt.ColumnText(3),
		Title:           stmt.ColumnText(4),
		Description:     stmt.ColumnText(5),
		DOI:             stmt.ColumnText(6),
		MetaxId:         stmt.ColumnText(7),
		DataciteUrl:     stmt.ColumnText(8),
		RemsUrl:         stmt.ColumnText(9),
		RemsResourceId:  stmt.ColumnText(10),
		RemsCatalogueId: stmt.ColumnText(11),
		CreatedAt:       parseTime(stmt.ColumnText(12)),
		ModifiedAt:      parseTime(stmt.ColumnText(13)),
	}
}
