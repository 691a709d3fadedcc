package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
name: fega
description: Federated EGA submission workflow
steps:
  - name: metadata
    schemas:
      - name: study
        required: true
      - name: dataset
        required: true
        requires: [study]
      - name: dac
        required: true
      - name: sample
        allowMultipleObjects: true
      - name: bpdataset
        allowMultipleObjects: false
publish:
  - endpoint: datacite
    service: doi
    requiredSchemas: [study]
  - endpoint: discovery
    service: metax
    schemas: [study, dataset]
`

func TestRequiredSchemas(t *testing.T) {
	w, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	req := w.RequiredSchemas()
	assert.True(t, req["study"])
	assert.True(t, req["dataset"])
	assert.True(t, req["dac"])
	assert.False(t, req["sample"])
}

func TestSingleInstanceSchemas(t *testing.T) {
	w, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	single := w.SingleInstanceSchemas()
	assert.True(t, single["bpdataset"])
	assert.False(t, single["sample"])
}

func TestSatisfiedMissingRequired(t *testing.T) {
	w, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	sat := w.Satisfied(ObjectCounts{"study": 1})
	assert.False(t, sat.OK)
	assert.Contains(t, sat.MissingRequired, "dataset")
	assert.Contains(t, sat.MissingRequired, "dac")
}

func TestSatisfiedRequiresChain(t *testing.T) {
	w, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	sat := w.Satisfied(ObjectCounts{"study": 1, "dac": 1, "dataset": 1})
	assert.True(t, sat.OK)
}

func TestSatisfiedSingleInstanceViolation(t *testing.T) {
	w, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	sat := w.Satisfied(ObjectCounts{"study": 1, "dac": 1, "dataset": 1, "bpdataset": 2})
	assert.False(t, sat.OK)
	assert.Contains(t, sat.OverMultiple, "bpdataset")
}

func TestPublishConfig(t *testing.T) {
	w, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	pub, ok := w.PublishConfig("datacite")
	require.True(t, ok)
	assert.Equal(t, "doi", pub.Service)
	_, ok = w.PublishConfig("rems")
	assert.False(t, ok)
}

func TestLoadDirectoryKeysByDeclaredName(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fega-workflow.yaml"), []byte(sampleYAML), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0644))

	workflows, err := LoadDirectory(dir)
	require.NoError(t, err)
	require.Len(t, workflows, 1)
	wf, ok := workflows["fega"]
	require.True(t, ok)
	assert.Equal(t, "Federated EGA submission workflow", wf.Description())
}

func TestLoadDirectoryMissingDirReturnsEmptyMap(t *testing.T) {
	workflows, err := LoadDirectory(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Empty(t, workflows)
}

func TestLoadDirectoryRejectsMalformedDocument(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("steps: []\n"), 0644))

	_, err := LoadDirectory(dir)
	assert.Error(t, err)
}
