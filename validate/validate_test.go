package validate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbase/submeta/schema"
)

func writeJSONSchema(t *testing.T, dir, name, content string) {
	t.Helper()
	jsonDir := filepath.Join(dir, "json")
	require.NoError(t, os.MkdirAll(jsonDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(jsonDir, name+".json"), []byte(content), 0o644))
}

func TestJSONValidatorInjectsDefaults(t *testing.T) {
	dir := t.TempDir()
	writeJSONSchema(t, dir, "study", `{
		"type": "object",
		"properties": {
			"title": {"type": "string"},
			"status": {"type": "string", "default": "draft"}
		},
		"required": ["title"]
	}`)
	reg, err := schema.NewRegistry(dir)
	require.NoError(t, err)

	v := &JSONValidator{Registry: reg}
	out, err := v.Validate("study", json.RawMessage(`{"title":"Epigenome maps"}`))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "draft", decoded["status"])
}

func TestJSONValidatorRejectsMissingRequiredField(t *testing.T) {
	dir := t.TempDir()
	writeJSONSchema(t, dir, "study", `{
		"type": "object",
		"properties": {"title": {"type": "string"}},
		"required": ["title"]
	}`)
	reg, err := schema.NewRegistry(dir)
	require.NoError(t, err)

	v := &JSONValidator{Registry: reg}
	_, err = v.Validate("study", json.RawMessage(`{}`))
	require.Error(t, err)
}

func TestJSONValidatorUnknownSchema(t *testing.T) {
	dir := t.TempDir()
	reg, err := schema.NewRegistry(dir)
	require.NoError(t, err)
	v := &JSONValidator{Registry: reg}
	_, err = v.Validate("nope", json.RawMessage(`{}`))
	require.Error(t, err)
}

func TestXMLValidatorWellFormed(t *testing.T) {
	dir := t.TempDir()
	xmlDir := filepath.Join(dir, "xml")
	require.NoError(t, os.MkdirAll(xmlDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(xmlDir, "study.xsd"), []byte("<xs:schema/>"), 0o644))
	reg, err := schema.NewRegistry(dir)
	require.NoError(t, err)

	v := &XMLValidator{Registry: reg}
	ok, detail, err := v.Validate("study", "<STUDY><TITLE>hi</TITLE></STUDY>")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, detail.Reason)
}

func TestXMLValidatorMalformedReportsLine(t *testing.T) {
	dir := t.TempDir()
	xmlDir := filepath.Join(dir, "xml")
	require.NoError(t, os.MkdirAll(xmlDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(xmlDir, "study.xsd"), []byte("<xs:schema/>"), 0o644))
	reg, err := schema.NewRegistry(dir)
	require.NoError(t, err)

	v := &XMLValidator{Registry: reg}
	ok, detail, err := v.Validate("study", "<STUDY>\n<TITLE>hi</STUDY>")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, detail.Reason, "line")
}

const studyXSD = `<xs:schema>
  <xs:element name="STUDY">
    <xs:complexType>
      <xs:sequence>
        <xs:element name="DESCRIPTOR" minOccurs="1" maxOccurs="1">
          <xs:complexType>
            <xs:sequence>
              <xs:element name="STUDY_TITLE" minOccurs="1" maxOccurs="1"/>
              <xs:element name="STUDY_ABSTRACT" minOccurs="0" maxOccurs="1"/>
            </xs:sequence>
          </xs:complexType>
        </xs:element>
      </xs:sequence>
      <xs:attribute name="alias" use="required"/>
    </xs:complexType>
  </xs:element>
</xs:schema>`

func newTestXMLValidator(t *testing.T, xsdName, xsdContent string) *XMLValidator {
	t.Helper()
	dir := t.TempDir()
	xmlDir := filepath.Join(dir, "xml")
	require.NoError(t, os.MkdirAll(xmlDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(xmlDir, xsdName+".xsd"), []byte(xsdContent), 0o644))
	reg, err := schema.NewRegistry(dir)
	require.NoError(t, err)
	return &XMLValidator{Registry: reg}
}

func TestXMLValidatorAcceptsWellFormedAgainstRealSchema(t *testing.T) {
	v := newTestXMLValidator(t, "study", studyXSD)
	ok, detail, err := v.Validate("study",
		`<STUDY alias="s1"><DESCRIPTOR><STUDY_TITLE>t</STUDY_TITLE></DESCRIPTOR></STUDY>`)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, detail.Reason)
}

func TestXMLValidatorRejectsUnknownRootElement(t *testing.T) {
	v := newTestXMLValidator(t, "study", studyXSD)
	ok, detail, err := v.Validate("study", `<WRONG_ROOT/>`)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, detail.Reason, "not a valid element")
}

func TestXMLValidatorRejectsUnknownChildElement(t *testing.T) {
	v := newTestXMLValidator(t, "study", studyXSD)
	ok, detail, err := v.Validate("study",
		`<STUDY alias="s1"><DESCRIPTOR><STUDY_TITLE>t</STUDY_TITLE><BOGUS>x</BOGUS></DESCRIPTOR></STUDY>`)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, detail.Reason, "not a valid child of 'DESCRIPTOR'")
}

func TestXMLValidatorRejectsMissingRequiredAttribute(t *testing.T) {
	v := newTestXMLValidator(t, "study", studyXSD)
	ok, detail, err := v.Validate("study",
		`<STUDY><DESCRIPTOR><STUDY_TITLE>t</STUDY_TITLE></DESCRIPTOR></STUDY>`)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, detail.Reason, "missing required attribute 'alias'")
}

func TestXMLValidatorRejectsCardinalityViolation(t *testing.T) {
	v := newTestXMLValidator(t, "study", studyXSD)
	ok, detail, err := v.Validate("study", `<STUDY alias="s1"></STUDY>`)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, detail.Reason, "requires at least 1 'DESCRIPTOR'")
}
