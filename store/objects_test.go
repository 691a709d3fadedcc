package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"zombiezen.com/go/sqlite"

	"github.com/kbase/submeta/clock"
	"github.com/kbase/submeta/model"
)

func newTestStoreWithSubmission(t *testing.T, submissionId string) *Store {
	t.Helper()
	st, err := Open(":memory:", clock.RealClock{})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	now := time.Now().UTC()
	require.NoError(t, st.WithTx(func(conn *sqlite.Conn) error {
		return st.AddSubmission(conn, model.Submission{
			SubmissionId: submissionId, Name: "s1", ProjectId: "p1", WorkflowName: "test-wf",
			Document: json.RawMessage(`{}`), CreatedAt: now, ModifiedAt: now,
		})
	}))
	return st
}

func addTestObject(t *testing.T, st *Store, submissionId, objectType, name string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, st.WithTx(func(conn *sqlite.Conn) error {
		return st.AddObject(conn, model.Object{
			ObjectId: objectType + "-" + name, SubmissionId: submissionId, ProjectId: "p1",
			ObjectType: objectType, Name: name, Document: json.RawMessage(`{}`),
			CreatedAt: now, ModifiedAt: now,
		})
	}))
}

func TestListObjectsReturnsAllTypesWhenUnfiltered(t *testing.T) {
	st := newTestStoreWithSubmission(t, "SUB1")
	addTestObject(t, st, "SUB1", "study", "a")
	addTestObject(t, st, "SUB1", "sample", "b")
	addTestObject(t, st, "SUB1", "run", "c")

	err := st.WithTx(func(conn *sqlite.Conn) error {
		out, err := st.ListObjects(conn, ObjectFilter{SubmissionId: "SUB1"})
		require.NoError(t, err)
		assert.Len(t, out, 3)
		return nil
	})
	require.NoError(t, err)
}

func TestListObjectsFiltersToGivenTypes(t *testing.T) {
	st := newTestStoreWithSubmission(t, "SUB1")
	addTestObject(t, st, "SUB1", "study", "a")
	addTestObject(t, st, "SUB1", "sample", "b")
	addTestObject(t, st, "SUB1", "run", "c")

	err := st.WithTx(func(conn *sqlite.Conn) error {
		out, err := st.ListObjects(conn, ObjectFilter{
			SubmissionId: "SUB1",
			ObjectTypes:  []string{"study", "run"},
		})
		require.NoError(t, err)
		require.Len(t, out, 2)
		for _, o := range out {
			assert.Contains(t, []string{"study", "run"}, o.ObjectType)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestListObjectsOrdersByGivenTypeOrder(t *testing.T) {
	st := newTestStoreWithSubmission(t, "SUB1")
	addTestObject(t, st, "SUB1", "run", "c")
	addTestObject(t, st, "SUB1", "study", "a")
	addTestObject(t, st, "SUB1", "sample", "b")

	err := st.WithTx(func(conn *sqlite.Conn) error {
		out, err := st.ListObjects(conn, ObjectFilter{
			SubmissionId: "SUB1",
			ObjectTypes:  []string{"study", "sample", "run"},
		})
		require.NoError(t, err)
		require.Len(t, out, 3)
		assert.Equal(t, []string{"study", "sample", "run"},
			[]string{out[0].ObjectType, out[1].ObjectType, out[2].ObjectType})
		return nil
	})
	require.NoError(t, err)
}
