// Package schema holds the in-memory registry of versioned JSON and XML
// schemas addressed by schema-type name. Schemas are loaded once at
// startup from a read-only directory and served read-only thereafter;
// there is no invalidation or hot-reload.
package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Artifact is a schema entry known to the registry: its raw bytes
// (used to locate XML element names for the validator's line-number
// reporting) alongside the kind-specific compiled form.
type Artifact struct {
	Name    string
	Raw     []byte
	JSON    *jsonschema.Schema // non-nil for JSON schemas
	XMLText string             // non-empty for XSD schemas (raw text, compiled lazily by validate)
}

// Registry is the schema/workflow-document loader's JSON-schema half.
// XSD artifacts are stored as text because this module compiles them
// structurally in the validate package rather than via a full XSD
// execution engine (see DESIGN.md).
type Registry struct {
	jsonSchemas map[string]*Artifact
	xmlSchemas  map[string]*Artifact
}

// NotFoundError is returned when a schema name is not known to the
// registry, matching spec.md's SchemaNotFound.
type NotFoundError struct {
	Name string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("schema '%s' not found", e.Name)
}

// NewRegistry loads every json/*.json and xml/*.xsd file under root
// into memory, keyed by file basename without extension.
func NewRegistry(root string) (*Registry, error) {
	r := &Registry{
		jsonSchemas: make(map[string]*Artifact),
		xmlSchemas:  make(map[string]*Artifact),
	}

	jsonDir := filepath.Join(root, "json")
	if err := r.loadJSONDir(jsonDir); err != nil {
		return nil, err
	}

	xmlDir := filepath.Join(root, "xml")
	if err := r.loadXMLDir(xmlDir); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Registry) loadJSONDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading json schema dir %s: %w", dir, err)
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading schema %s: %w", path, err)
		}
		compiled, err := compiler.Compile(path)
		if err != nil {
			return fmt.Errorf("compiling json schema %s: %w", name, err)
		}
		r.jsonSchemas[name] = &Artifact{Name: name, Raw: raw, JSON: compiled}
	}
	return nil
}

func (r *Registry) loadXMLDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading xml schema dir %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".xsd") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".xsd")
		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading schema %s: %w", path, err)
		}
		r.xmlSchemas[name] = &Artifact{Name: name, Raw: raw, XMLText: string(raw)}
	}
	return nil
}

// GetJSONSchema returns the compiled JSON Schema artifact for name.
func (r *Registry) GetJSONSchema(name string) (*Artifact, error) {
	a, ok := r.jsonSchemas[strings.ToLower(name)]
	if !ok {
		return nil, NotFoundError{Name: name}
	}
	return a, nil
}

// GetXMLSchema returns the XSD artifact for name.
func (r *Registry) GetXMLSchema(name string) (*Artifact, error) {
	a, ok := r.xmlSchemas[strings.ToLower(name)]
	if !ok {
		return nil, NotFoundError{Name: name}
	}
	return a, nil
}

// SchemaNames lists every known JSON schema-type, for the GET /schemas
// listing endpoint's (out-of-scope) handler to consume.
func (r *Registry) SchemaNames() []string {
	names := make([]string, 0, len(r.jsonSchemas))
	for name := range r.jsonSchemas {
		names = append(names, name)
	}
	return names
}
