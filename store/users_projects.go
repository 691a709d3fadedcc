package store

import (
	"encoding/json"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/kbase/submeta/errs"
	"github.com/kbase/submeta/model"
)

// UpsertProject creates a project on first observation of its claim, or
// returns the existing one unchanged — spec.md §3: "Created lazily on
// first observation of a project claim from the identity provider."
func (s *Store) UpsertProject(conn *sqlite.Conn, externalId string, newProjectId func() (string, error)) (model.Project, error) {
	var out model.Project
	var found bool
	err := sqlitex.Execute(conn,
		`SELECT project_id, external_id, templates_json FROM projects WHERE external_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{externalId},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = scanProject(stmt)
				found = true
				return nil
			},
		})
	if err != nil {
		return out, errs.InternalError{Reason: err.Error()}
	}
	if found {
		return out, nil
	}

	id, err := newProjectId()
	if err != nil {
		return out, errs.InternalError{Reason: err.Error()}
	}
	out = model.Project{ProjectId: id, ExternalId: externalId, Templates: []string{}}
	err = sqlitex.Execute(conn,
		`INSERT INTO projects (project_id, external_id, templates_json) VALUES (?, ?, '[]')`,
		&sqlitex.ExecOptions{Args: []any{id, externalId}})
	if err != nil {
		return out, errs.InternalError{Reason: err.Error()}
	}
	return out, nil
}

func scanProject(stmt *sqlite.Stmt) model.Project {
	var templates []string
	_ = json.Unmarshal([]byte(stmt.ColumnText(2)), &templates)
	return model.Project{
		ProjectId:  stmt.ColumnText(0),
		ExternalId: stmt.ColumnText(1),
		Templates:  templates,
	}
}

// UpsertUser creates or updates a user on each successful login: name
// and project membership are refreshed to reflect the identity
// provider's claims at that moment (spec.md §3).
func (s *Store) UpsertUser(conn *sqlite.Conn, externalId, name string, projects []string, newUserId func() (string, error)) (model.User, error) {
	projectsJSON, err := json.Marshal(projects)
	if err != nil {
		return model.User{}, errs.InternalError{Reason: err.Error()}
	}

	var existing model.User
	var found bool
	err = sqlitex.Execute(conn,
		`SELECT user_id, external_id, name, projects_json FROM users WHERE external_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{externalId},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				existing = scanUser(stmt)
				found = true
				return nil
			},
		})
	if err != nil {
		return model.User{}, errs.InternalError{Reason: err.Error()}
	}

	if found {
		err = sqlitex.Execute(conn,
			`UPDATE users SET name = ?, projects_json = ? WHERE user_id = ?`,
			&sqlitex.ExecOptions{Args: []any{name, string(projectsJSON), existing.UserId}})
		if err != nil {
			return model.User{}, errs.InternalError{Reason: err.Error()}
		}
		existing.Name = name
		existing.Projects = projects
		return existing, nil
	}

	id, err := newUserId()
	if err != nil {
		return model.User{}, errs.InternalError{Reason: err.Error()}
	}
	err = sqlitex.Execute(conn,
		`INSERT INTO users (user_id, external_id, name, projects_json) VALUES (?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{id, externalId, name, string(projectsJSON)}})
	if err != nil {
		return model.User{}, errs.InternalError{Reason: err.Error()}
	}
	return model.User{UserId: id, ExternalId: externalId, Name: name, Projects: projects}, nil
}

// GetUserById returns the user with the given id.
func (s *Store) GetUserById(conn *sqlite.Conn, userId string) (model.User, error) {
	var out model.User
	var found bool
	err := sqlitex.Execute(conn,
		`SELECT user_id, external_id, name, projects_json FROM users WHERE user_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{userId},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = scanUser(stmt)
				found = true
				return nil
			},
		})
	if err != nil {
		return out, errs.InternalError{Reason: err.Error()}
	}
	if !found {
		return out, errs.NotFoundError{Kind: "user", Id: userId}
	}
	return out, nil
}

// IsProjectMember reports whether userId belongs to projectId — the
// basis of the submission service's ownership check (spec.md §4.G).
func (s *Store) IsProjectMember(conn *sqlite.Conn, userId, projectId string) (bool, error) {
	var user model.User
	var found bool
	err := sqlitex.Execute(conn,
		`SELECT user_id, external_id, name, projects_json FROM users WHERE user_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{userId},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				user = scanUser(stmt)
				found = true
				return nil
			},
		})
	if err != nil {
		return false, errs.InternalError{Reason: err.Error()}
	}
	if !found {
		return false, nil
	}
	for _, p := range user.Projects {
		if p == projectId {
			return true, nil
		}
	}
	return false, nil
}

func scanUser(stmt *sqlite.Stmt) model.User {
	var projects []string
	_ = json.Unmarshal([]byte(stmt.ColumnText(3)), &projects)
	return model.User{
		UserId:     stmt.ColumnText(0),
		ExternalId: stmt.ColumnText(1),
		Name:       stmt.ColumnText(2),
		Projects:   projects,
	}
}
