package publish

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"zombiezen.com/go/sqlite"

	"github.com/kbase/submeta/clock"
	"github.com/kbase/submeta/errs"
	"github.com/kbase/submeta/extclient"
	"github.com/kbase/submeta/idgen"
	"github.com/kbase/submeta/model"
	"github.com/kbase/submeta/object"
	"github.com/kbase/submeta/schema"
	"github.com/kbase/submeta/store"
	"github.com/kbase/submeta/submission"
	"github.com/kbase/submeta/validate"
	"github.com/kbase/submeta/workflow"
	"github.com/kbase/submeta/xmlconv"
)

const datasetSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {"name": {"type": "string"}, "title": {"type": "string"}},
  "required": ["name"]
}`

const testWorkflowYAML = `
name: test-wf
description: test
steps:
  - name: main
    schemas:
      - name: dataset
        required: true
publish:
  - endpoint: datacite
    service: datacite
    requiredSchemas: [dataset]
    schemas: [dataset]
  - endpoint: discovery
    service: catalog
    requiredSchemas: [dataset]
    schemas: [dataset]
`

func newDOITestServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/heartbeat", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/dois", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.api+json")
		_, _ = w.Write([]byte(`{"data":{"attributes":{"doi":"10.xxxx/abc123","url":"https://doi.org/10.xxxx/abc123"}}}`))
	})
	mux.HandleFunc("/dois/10.xxxx/abc123", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return httptest.NewServer(mux)
}

func newCatalogTestServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/datasets", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"identifier":"catalog123"}`))
	})
	mux.HandleFunc("/datasets/bulk_update", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/datasets/catalog123/publish", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"preferred_identifier":"urn:nbn:fi:test123"}`))
	})
	return httptest.NewServer(mux)
}

func newTestPublishService(t *testing.T, doiServer, catalogServer *httptest.Server) (*Service, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "json"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "json", "dataset.json"), []byte(datasetSchema), 0o644))

	reg, err := schema.NewRegistry(dir)
	require.NoError(t, err)

	st, err := store.Open(":memory:", clock.RealClock{})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	wf, err := workflow.Parse([]byte(testWorkflowYAML))
	require.NoError(t, err)
	lookup := func(name string) (*workflow.Workflow, bool) {
		if name == "test-wf" {
			return wf, true
		}
		return nil, false
	}

	objSvc := &object.Service{
		Store:     st,
		Validator: &validate.JSONValidator{Registry: reg},
		XMLParser: xmlconv.NewParser(reg),
		IDGen:     idgen.NewGenerator(),
		Clock:     clock.RealClock{},
		Workflows: lookup,
	}
	subSvc := &submission.Service{
		Store:     st,
		IDGen:     idgen.NewGenerator(),
		Clock:     clock.RealClock{},
		Workflows: lookup,
	}

	doiClient := extclient.NewDOIClient(doiServer.URL, "", "", "10.xxxx", 5)
	catalogClient := extclient.NewCatalogClient(
		catalogServer.URL, "", "", "provider-user", "provider-org", "urn:nbn:fi:att:data-catalog-test", 5)

	svc := &Service{
		Store:              st,
		Submissions:        subSvc,
		Objects:            objSvc,
		Clock:              clock.RealClock{},
		IDGen:              idgen.NewGenerator(),
		Workflows:          lookup,
		Clients:            Clients{DOI: doiClient, Catalog: catalogClient},
		DataciteLandingURL: "https://doi.org",
	}
	return svc, st
}

func seedSubmissionWithDataset(t *testing.T, st *store.Store, objSvc *object.Service, submissionId string) string {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, st.WithTx(func(conn *sqlite.Conn) error {
		return st.AddSubmission(conn, model.Submission{
			SubmissionId: submissionId, Name: "s1", ProjectId: "p1", WorkflowName: "test-wf",
			Document: json.RawMessage(`{}`), CreatedAt: now, ModifiedAt: now,
		})
	}))
	var objId string
	require.NoError(t, st.WithTx(func(conn *sqlite.Conn) error {
		created, err := objSvc.AddObject(conn, submissionId, "dataset", []byte(`{"name":"d1","title":"Dataset One"}`), object.FormatJSON)
		if err != nil {
			return err
		}
		objId = created[0].ObjectId
		return nil
	}))
	return objId
}

func TestPublishHappyPath(t *testing.T) {
	doiServer := newDOITestServer()
	defer doiServer.Close()
	catalogServer := newCatalogTestServer()
	defer catalogServer.Close()

	svc, st := newTestPublishService(t, doiServer, catalogServer)
	objId := seedSubmissionWithDataset(t, st, svc.Objects, "SUB1")

	ctx := context.Background()
	err := st.WithTx(func(conn *sqlite.Conn) error {
		return svc.Publish(ctx, conn, "SUB1")
	})
	require.NoError(t, err)

	err = st.WithTx(func(conn *sqlite.Conn) error {
		sub, err := st.GetSubmissionById(conn, "SUB1")
		require.NoError(t, err)
		assert.True(t, sub.IsPublished)
		assert.NotNil(t, sub.PublishedAt)

		obj, err := st.GetObjectById(conn, objId)
		require.NoError(t, err)
		assert.Equal(t, "10.xxxx/abc123", svc.Objects.DOI(obj))

		reg, found, err := st.GetRegistrationByObjectId(conn, objId)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "urn:nbn:fi:test123", reg.MetaxId)
		assert.Equal(t, "https://doi.org/10.xxxx/abc123", reg.DataciteUrl)
		return nil
	})
	require.NoError(t, err)
}

func TestPreflightFailsWhenRequiredSchemaMissing(t *testing.T) {
	doiServer := newDOITestServer()
	defer doiServer.Close()
	catalogServer := newCatalogTestServer()
	defer catalogServer.Close()
	svc, st := newTestPublishService(t, doiServer, catalogServer)

	now := time.Now().UTC()
	require.NoError(t, st.WithTx(func(conn *sqlite.Conn) error {
		return st.AddSubmission(conn, model.Submission{
			SubmissionId: "SUB2", Name: "s2", ProjectId: "p1", WorkflowName: "test-wf",
			Document: json.RawMessage(`{}`), CreatedAt: now, ModifiedAt: now,
		})
	}))

	ctx := context.Background()
	err := st.WithTx(func(conn *sqlite.Conn) error {
		return svc.Publish(ctx, conn, "SUB2")
	})
	require.Error(t, err)
	var unprocessable errs.UnprocessableError
	assert.ErrorAs(t, err, &unprocessable)
}

func TestPublishCompensatesCatalogDraftOnBulkUpdateFailure(t *testing.T) {
	doiServer := newDOITestServer()
	defer doiServer.Close()

	var deletedDrafts []string
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/datasets", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"identifier":"catalog123"}`))
	})
	mux.HandleFunc("/datasets/bulk_update", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	mux.HandleFunc("/datasets/catalog123", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			deletedDrafts = append(deletedDrafts, "catalog123")
		}
		w.WriteHeader(http.StatusOK)
	})
	catalogServer := httptest.NewServer(mux)
	defer catalogServer.Close()

	svc, st := newTestPublishService(t, doiServer, catalogServer)
	seedSubmissionWithDataset(t, st, svc.Objects, "SUB4")

	ctx := context.Background()
	err := st.WithTx(func(conn *sqlite.Conn) error {
		return svc.Publish(ctx, conn, "SUB4")
	})
	require.Error(t, err)
	assert.Contains(t, deletedDrafts, "catalog123")

	err = st.WithTx(func(conn *sqlite.Conn) error {
		sub, err := st.GetSubmissionById(conn, "SUB4")
		require.NoError(t, err)
		assert.False(t, sub.IsPublished)
		return nil
	})
	require.NoError(t, err)
}

func TestPublishRefusesAlreadyPublished(t *testing.T) {
	doiServer := newDOITestServer()
	defer doiServer.Close()
	catalogServer := newCatalogTestServer()
	defer catalogServer.Close()
	svc, st := newTestPublishService(t, doiServer, catalogServer)
	seedSubmissionWithDataset(t, st, svc.Objects, "SUB3")

	require.NoError(t, st.WithTx(func(conn *sqlite.Conn) error {
		return st.UpdateSubmission(conn, "SUB3", func(s *model.Submission) error {
			s.IsPublished = true
			return nil
		})
	}))

	ctx := context.Background()
	err := st.WithTx(func(conn *sqlite.Conn) error {
		return svc.Publish(ctx, conn, "SUB3")
	})
	require.Error(t, err)
	var conflict errs.ConflictError
	assert.ErrorAs(t, err, &conflict)
}
