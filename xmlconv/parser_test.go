package xmlconv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbase/submeta/schema"
)

func newTestRegistry(t *testing.T, xsdName string) *schema.Registry {
	t.Helper()
	dir := t.TempDir()
	xmlDir := filepath.Join(dir, "xml")
	require.NoError(t, os.MkdirAll(xmlDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(xmlDir, xsdName+".xsd"), []byte("<xs:schema/>"), 0o644))
	reg, err := schema.NewRegistry(dir)
	require.NoError(t, err)
	return reg
}

func TestParseElevatesRootElement(t *testing.T) {
	reg := newTestRegistry(t, "study")
	p := NewParser(reg)
	results, err := p.Parse("study", `<STUDY alias="SRP000539"><DESCRIPTOR><STUDY_TITLE>Highly integrated epigenome maps in Arabidopsis</STUDY_TITLE></DESCRIPTOR></STUDY>`)
	require.NoError(t, err)
	require.Len(t, results, 1)
	descriptor, ok := results[0].Document["descriptor"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Highly integrated epigenome maps in Arabidopsis", descriptor["studyTitle"])
	assert.Equal(t, "SRP000539", results[0].Document["alias"])
}

func TestParsePostProcessorSplitsMultipleObjects(t *testing.T) {
	reg := newTestRegistry(t, "sample")
	p := NewParser(reg)
	p.RegisterPostProcessor("sample", func(decoded map[string]any) ([]Result, error) {
		samples, _ := decoded["sample"].([]any)
		out := make([]Result, 0, len(samples))
		for _, s := range samples {
			out = append(out, Result{Document: s.(map[string]any)})
		}
		return out, nil
	})
	results, err := p.Parse("sample", `<SAMPLE_SET><SAMPLE alias="a1"/><SAMPLE alias="a2"/></SAMPLE_SET>`)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestBigpictureSchemaTypesRegisterSplitPostProcessor(t *testing.T) {
	reg := newTestRegistry(t, "bpdataset")
	p := NewParser(reg)
	found := false
	for _, schemaType := range BigpictureSchemaTypes() {
		if schemaType == "bpdataset" {
			found = true
		}
		p.RegisterPostProcessor(schemaType, SplitOnKey(schemaType))
	}
	require.True(t, found, "bpdataset must be a registered Bigpicture schema-type")

	results, err := p.Parse("bpdataset", `<BPDATASET_SET><BPDATASET refname="ds1" name="a"/><BPDATASET refname="ds2" name="b"/></BPDATASET_SET>`)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "ds1", results[0].RefName)
	assert.Equal(t, "a", results[0].Document["name"])
	assert.Equal(t, "ds2", results[1].RefName)
	assert.Equal(t, "b", results[1].Document["name"])
}

func TestSplitOnKeySingleEntryYieldsOneResult(t *testing.T) {
	reg := newTestRegistry(t, "bpsample")
	p := NewParser(reg)
	p.RegisterPostProcessor("bpsample", SplitOnKey("bpsample"))

	results, err := p.Parse("bpsample", `<BPSAMPLE_SET><BPSAMPLE refname="s1" name="x"/></BPSAMPLE_SET>`)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "s1", results[0].RefName)
}

func TestInjectAccessionIdOnlyForBigpicture(t *testing.T) {
	reg := newTestRegistry(t, "study")
	p := NewParser(reg)
	out, err := p.InjectAccessionId("study", `<STUDY/>`, "EGA12345")
	require.NoError(t, err)
	assert.Equal(t, `<STUDY/>`, out)
}

func TestInjectAccessionIdForBigpictureType(t *testing.T) {
	reg := newTestRegistry(t, "bpdataset")
	p := NewParser(reg)
	out, err := p.InjectAccessionId("bpdataset", `<BPDATASET name="x"></BPDATASET>`, "EGA12345")
	require.NoError(t, err)
	assert.Contains(t, out, `accessionId="EGA12345"`)
}
