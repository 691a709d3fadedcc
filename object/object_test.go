package object

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"zombiezen.com/go/sqlite"

	"github.com/kbase/submeta/clock"
	"github.com/kbase/submeta/errs"
	"github.com/kbase/submeta/idgen"
	"github.com/kbase/submeta/model"
	"github.com/kbase/submeta/schema"
	"github.com/kbase/submeta/store"
	"github.com/kbase/submeta/validate"
	"github.com/kbase/submeta/workflow"
	"github.com/kbase/submeta/xmlconv"
)

const studySchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "name": {"type": "string"},
    "title": {"type": "string"},
    "status": {"type": "string", "default": "draft"}
  },
  "required": ["name"]
}`

const sampleWorkflowYAML = `
name: fega
description: test workflow
steps:
  - name: main
    schemas:
      - name: study
        required: true
        allowMultipleObjects: false
      - name: sample
        required: false
`

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "json"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "json", "study.json"), []byte(studySchema), 0o644))

	reg, err := schema.NewRegistry(dir)
	require.NoError(t, err)

	st, err := store.Open(":memory:", clock.RealClock{})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	wf, err := workflow.Parse([]byte(sampleWorkflowYAML))
	require.NoError(t, err)

	svc := &Service{
		Store:     st,
		Validator: &validate.JSONValidator{Registry: reg},
		XMLParser: xmlconv.NewParser(reg),
		IDGen:     idgen.NewGenerator(),
		Clock:     clock.RealClock{},
		Workflows: func(name string) (*workflow.Workflow, bool) {
			if name == "fega" {
				return wf, true
			}
			return nil, false
		},
	}
	return svc, st
}

func seedSubmission(t *testing.T, st *store.Store, submissionId string) {
	t.Helper()
	now := time.Now().UTC()
	err := st.WithTx(func(conn *sqlite.Conn) error {
		return st.AddSubmission(conn, model.Submission{
			SubmissionId: submissionId, Name: "s1", ProjectId: "p1", WorkflowName: "fega",
			Document: json.RawMessage(`{}`), CreatedAt: now, ModifiedAt: now,
		})
	})
	require.NoError(t, err)
}

func TestAddObjectJSON(t *testing.T) {
	svc, st := newTestService(t)
	seedSubmission(t, st, "SUB1")

	var created []model.Object
	err := st.WithTx(func(conn *sqlite.Conn) error {
		var addErr error
		created, addErr = svc.AddObject(conn, "SUB1", "study", []byte(`{"name":"study one"}`), FormatJSON)
		return addErr
	})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "study one", created[0].Name)
	assert.NotEmpty(t, created[0].ObjectId)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(created[0].Document, &doc))
	assert.Equal(t, "draft", doc["status"])
}

func TestAddObjectSingleInstanceViolation(t *testing.T) {
	svc, st := newTestService(t)
	seedSubmission(t, st, "SUB1")

	err := st.WithTx(func(conn *sqlite.Conn) error {
		_, addErr := svc.AddObject(conn, "SUB1", "study", []byte(`{"name":"one"}`), FormatJSON)
		return addErr
	})
	require.NoError(t, err)

	err = st.WithTx(func(conn *sqlite.Conn) error {
		_, addErr := svc.AddObject(conn, "SUB1", "study", []byte(`{"name":"two"}`), FormatJSON)
		return addErr
	})
	require.Error(t, err)
	var conflict errs.ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestReplaceObjectRejectsForbiddenKeys(t *testing.T) {
	svc, st := newTestService(t)
	seedSubmission(t, st, "SUB1")

	var objId string
	require.NoError(t, st.WithTx(func(conn *sqlite.Conn) error {
		created, addErr := svc.AddObject(conn, "SUB1", "study", []byte(`{"name":"one"}`), FormatJSON)
		if addErr != nil {
			return addErr
		}
		objId = created[0].ObjectId
		return nil
	}))

	err := st.WithTx(func(conn *sqlite.Conn) error {
		_, replaceErr := svc.ReplaceObject(conn, objId, json.RawMessage(`{"name":"one","accessionId":"nope"}`))
		return replaceErr
	})
	require.Error(t, err)
	var badInput errs.BadInputError
	assert.ErrorAs(t, err, &badInput)
}

func TestDeleteObjectForbiddenOncePublished(t *testing.T) {
	svc, st := newTestService(t)
	seedSubmission(t, st, "SUB1")

	var objId string
	require.NoError(t, st.WithTx(func(conn *sqlite.Conn) error {
		created, addErr := svc.AddObject(conn, "SUB1", "study", []byte(`{"name":"one"}`), FormatJSON)
		if addErr != nil {
			return addErr
		}
		objId = created[0].ObjectId
		return nil
	}))

	require.NoError(t, st.WithTx(func(conn *sqlite.Conn) error {
		return st.UpdateSubmission(conn, "SUB1", func(s *model.Submission) error {
			s.IsPublished = true
			return nil
		})
	}))

	err := st.WithTx(func(conn *sqlite.Conn) error {
		return svc.DeleteObject(conn, objId)
	})
	require.Error(t, err)
	var conflict errs.ConflictError
	assert.ErrorAs(t, err, &conflict)
}
