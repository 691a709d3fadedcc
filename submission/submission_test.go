package submission

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"zombiezen.com/go/sqlite"

	"github.com/kbase/submeta/clock"
	"github.com/kbase/submeta/errs"
	"github.com/kbase/submeta/frictionless"
	"github.com/kbase/submeta/idgen"
	"github.com/kbase/submeta/model"
	"github.com/kbase/submeta/store"
	"github.com/kbase/submeta/workflow"
)

const testWorkflowYAML = `
name: fega
description: test workflow
steps:
  - name: main
    schemas:
      - name: study
        required: true
`

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:", clock.RealClock{})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	wf, err := workflow.Parse([]byte(testWorkflowYAML))
	require.NoError(t, err)

	svc := &Service{
		Store: st,
		IDGen: idgen.NewGenerator(),
		Clock: clock.RealClock{},
		Workflows: func(name string) (*workflow.Workflow, bool) {
			if name == "fega" {
				return wf, true
			}
			return nil, false
		},
	}
	return svc, st
}

func TestCreateStripsForbiddenFieldsAndAssignsId(t *testing.T) {
	svc, st := newTestService(t)

	var created model.Submission
	err := st.WithTx(func(conn *sqlite.Conn) error {
		sub, createErr := svc.Create(conn, "proj1", json.RawMessage(`{"name":"s1","workflow":"fega"}`))
		created = sub
		return createErr
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.SubmissionId)
	assert.Equal(t, "proj1", created.ProjectId)
	assert.Equal(t, "fega", created.WorkflowName)
}

func TestCreateRejectsForbiddenField(t *testing.T) {
	svc, st := newTestService(t)

	err := st.WithTx(func(conn *sqlite.Conn) error {
		_, createErr := svc.Create(conn, "proj1", json.RawMessage(`{"name":"s1","workflow":"fega","submissionId":"x"}`))
		return createErr
	})
	require.Error(t, err)
	var badInput errs.BadInputError
	assert.ErrorAs(t, err, &badInput)
}

func TestCreateRejectsUnknownWorkflow(t *testing.T) {
	svc, st := newTestService(t)

	err := st.WithTx(func(conn *sqlite.Conn) error {
		_, createErr := svc.Create(conn, "proj1", json.RawMessage(`{"name":"s1","workflow":"nope"}`))
		return createErr
	})
	require.Error(t, err)
	var notFound errs.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestUpdateDocumentRefusesImmutableFieldChange(t *testing.T) {
	svc, st := newTestService(t)

	var id string
	require.NoError(t, st.WithTx(func(conn *sqlite.Conn) error {
		sub, createErr := svc.Create(conn, "proj1", json.RawMessage(`{"name":"s1","workflow":"fega"}`))
		if createErr != nil {
			return createErr
		}
		id = sub.SubmissionId
		return nil
	}))

	err := st.WithTx(func(conn *sqlite.Conn) error {
		return svc.UpdateDocument(conn, id, json.RawMessage(`{"name":"s1","workflow":"other-workflow"}`))
	})
	require.Error(t, err)
	var badInput errs.BadInputError
	assert.ErrorAs(t, err, &badInput)
}

func TestUpdateDocumentRefusesDroppingPreservedSubDocument(t *testing.T) {
	svc, st := newTestService(t)

	var id string
	require.NoError(t, st.WithTx(func(conn *sqlite.Conn) error {
		sub, createErr := svc.Create(conn, "proj1", json.RawMessage(`{"name":"s1","workflow":"fega","rems":{"a":1}}`))
		if createErr != nil {
			return createErr
		}
		id = sub.SubmissionId
		return nil
	}))

	err := st.WithTx(func(conn *sqlite.Conn) error {
		return svc.UpdateDocument(conn, id, json.RawMessage(`{"name":"s1","workflow":"fega"}`))
	})
	require.Error(t, err)
	var badInput errs.BadInputError
	assert.ErrorAs(t, err, &badInput)
}

func TestCheckNotPublishedConflict(t *testing.T) {
	svc, st := newTestService(t)

	var id string
	require.NoError(t, st.WithTx(func(conn *sqlite.Conn) error {
		sub, createErr := svc.Create(conn, "proj1", json.RawMessage(`{"name":"s1","workflow":"fega"}`))
		if createErr != nil {
			return createErr
		}
		id = sub.SubmissionId
		return nil
	}))

	require.NoError(t, st.WithTx(func(conn *sqlite.Conn) error {
		return svc.Store.UpdateSubmission(conn, id, func(s *model.Submission) error {
			s.IsPublished = true
			return nil
		})
	}))

	err := st.WithTx(func(conn *sqlite.Conn) error {
		return svc.CheckNotPublished(conn, id)
	})
	require.Error(t, err)
	var conflict errs.ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestFileManifestDescribesAttachedFiles(t *testing.T) {
	svc, st := newTestService(t)

	var id string
	require.NoError(t, st.WithTx(func(conn *sqlite.Conn) error {
		sub, createErr := svc.Create(conn, "proj1", json.RawMessage(`{"name":"s1","workflow":"fega"}`))
		id = sub.SubmissionId
		return createErr
	}))

	fileId, err := svc.IDGen.NewAccession()
	require.NoError(t, err)

	now := svc.Clock.Now()
	require.NoError(t, st.WithTx(func(conn *sqlite.Conn) error {
		return svc.Store.AddFile(conn, model.File{
			FileId:              fileId,
			SubmissionId:        id,
			Path:                "img/submissions/1/Ga0456371_contigs.fna",
			Bytes:               1024,
			UnencryptedChecksum: "55c3afc0a2d3b256332425eeebc581ac",
			CreatedAt:           now,
			ModifiedAt:          now,
		})
	}))

	var manifest frictionless.DataPackage
	require.NoError(t, st.WithTx(func(conn *sqlite.Conn) error {
		m, manifestErr := svc.FileManifest(conn, id)
		manifest = m
		return manifestErr
	}))

	assert.Equal(t, id, manifest.Name)
	require.Len(t, manifest.Resources, 1)
	assert.Equal(t, "Ga0456371_contigs", manifest.Resources[0].Name)
	assert.Equal(t, "fna", manifest.Resources[0].Format)
}

func TestFileManifestRejectsUnknownSubmission(t *testing.T) {
	svc, st := newTestService(t)

	err := st.WithTx(func(conn *sqlite.Conn) error {
		_, manifestErr := svc.FileManifest(conn, "nope")
		return manifestErr
	})
	require.Error(t, err)
	var notFound errs.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}
