// Package workflow interprets the declarative workflow document: which
// schema-types a submission may carry, which are required, and which
// external registrations must fire on publish.
package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SchemaRef is one entry in a step's schemas list.
type SchemaRef struct {
	Name                string   `yaml:"name" json:"name"`
	Required            bool     `yaml:"required" json:"required"`
	AllowMultipleObjects *bool   `yaml:"allowMultipleObjects" json:"allowMultipleObjects"`
	Requires            []string `yaml:"requires" json:"requires"`
	RequiresOr          []string `yaml:"requires_or" json:"requires_or"`
}

func (s SchemaRef) allowsMultiple() bool {
	if s.AllowMultipleObjects == nil {
		return true
	}
	return *s.AllowMultipleObjects
}

// Step is one stage of a workflow's declared schema sequence.
type Step struct {
	Name    string      `yaml:"name" json:"name"`
	Schemas []SchemaRef `yaml:"schemas" json:"schemas"`
}

// PublishEndpoint is one publish-endpoint record: the external service
// to call and the schemas it requires/consumes.
type PublishEndpoint struct {
	Endpoint        string   `yaml:"endpoint" json:"endpoint"`
	Service         string   `yaml:"service" json:"service"`
	RequiredSchemas []string `yaml:"requiredSchemas" json:"requiredSchemas"`
	Schemas         []string `yaml:"schemas" json:"schemas"`
}

// doc is the raw on-disk shape of a workflow document.
type doc struct {
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description" json:"description"`
	Steps       []Step            `yaml:"steps" json:"steps"`
	Publish     []PublishEndpoint `yaml:"publish" json:"publish"`
}

// Workflow is a named, declarative configuration loaded once at startup
// and immutable for the life of the process.
type Workflow struct {
	raw doc
}

// Parse loads a workflow document from YAML bytes.
func Parse(yamlData []byte) (*Workflow, error) {
	var d doc
	if err := yaml.Unmarshal(yamlData, &d); err != nil {
		return nil, fmt.Errorf("parsing workflow document: %w", err)
	}
	if d.Name == "" {
		return nil, fmt.Errorf("workflow document is missing a name")
	}
	return &Workflow{raw: d}, nil
}

// LoadDirectory parses every *.yaml/*.yml file under dir into a
// Workflow, keyed by its declared name (not its filename), mirroring
// schema.NewRegistry's directory-loading idiom. The returned map is
// read-only for the life of the process (spec.md §5: "the workflow map
// is read-only after startup").
func LoadDirectory(dir string) (map[string]*Workflow, error) {
	out := make(map[string]*Workflow)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading workflow dir %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.HasSuffix(entry.Name(), ".yaml") && !strings.HasSuffix(entry.Name(), ".yml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading workflow document %s: %w", path, err)
		}
		wf, err := Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing workflow document %s: %w", path, err)
		}
		out[wf.Name()] = wf
	}
	return out, nil
}

func (w *Workflow) Name() string        { return w.raw.Name }
func (w *Workflow) Description() string { return w.raw.Description }

// Schemas returns the set of all schema-types referenced anywhere in
// the workflow's steps.
func (w *Workflow) Schemas() map[string]bool {
	out := make(map[string]bool)
	for _, step := range w.raw.Steps {
		for _, s := range step.Schemas {
			out[s.Name] = true
		}
	}
	return out
}

// SchemasByName indexes every referenced schema ref by name. When the
// same name appears in more than one step, the last occurrence wins,
// matching the Python original's dict-comprehension semantics.
func (w *Workflow) SchemasByName() map[string]SchemaRef {
	out := make(map[string]SchemaRef)
	for _, step := range w.raw.Steps {
		for _, s := range step.Schemas {
			out[s.Name] = s
		}
	}
	return out
}

// RequiredSchemas is the union of: schemas marked required=true, the
// requires/requires_or targets of required schemas, and every
// publish-endpoint's requiredSchemas entries.
func (w *Workflow) RequiredSchemas() map[string]bool {
	out := make(map[string]bool)
	for _, step := range w.raw.Steps {
		for _, s := range step.Schemas {
			if s.Required {
				out[s.Name] = true
				for _, r := range s.Requires {
					out[r] = true
				}
				for _, r := range s.RequiresOr {
					out[r] = true
				}
			}
		}
	}
	for _, pub := range w.raw.Publish {
		for _, r := range pub.RequiredSchemas {
			out[r] = true
		}
	}
	return out
}

// SingleInstanceSchemas is the set of schema-types with
// allowMultipleObjects=false.
func (w *Workflow) SingleInstanceSchemas() map[string]bool {
	out := make(map[string]bool)
	for _, step := range w.raw.Steps {
		for _, s := range step.Schemas {
			if !s.allowsMultiple() {
				out[s.Name] = true
			}
		}
	}
	return out
}

// PublishEndpoints returns the names of the publish endpoints a
// submission under this workflow must be registered with.
func (w *Workflow) PublishEndpoints() map[string]bool {
	out := make(map[string]bool)
	for _, pub := range w.raw.Publish {
		out[pub.Endpoint] = true
	}
	return out
}

// PublishConfig returns the publish-endpoint record for the named
// endpoint (e.g. "datacite", "rems", "discovery"), and whether it is
// present in this workflow.
func (w *Workflow) PublishConfig(endpoint string) (PublishEndpoint, bool) {
	for _, pub := range w.raw.Publish {
		if pub.Endpoint == endpoint {
			return pub, true
		}
	}
	return PublishEndpoint{}, false
}

// ObjectCounts is a schema-type -> object-count view of a submission,
// the minimal input Satisfaction needs.
type ObjectCounts map[string]int

// Satisfaction reports, for a given set of present-object counts,
// whether this workflow's requirements are met, and if not, names the
// missing schemas.
type Satisfaction struct {
	OK             bool
	MissingRequired []string
	OverMultiple    []string
	MissingRequires map[string][]string
}

// Satisfied evaluates whether a submission with the given object counts
// satisfies this workflow: every required schema has >=1 object; every
// single-instance schema has <=1 object; for every present schema, every
// element of its requires has >=1 object and at least one element of
// its requires_or (when declared) has >=1 object.
func (w *Workflow) Satisfied(counts ObjectCounts) Satisfaction {
	result := Satisfaction{OK: true, MissingRequires: make(map[string][]string)}

	for name := range w.RequiredSchemas() {
		if counts[name] == 0 {
			result.OK = false
			result.MissingRequired = append(result.MissingRequired, name)
		}
	}

	single := w.SingleInstanceSchemas()
	for name := range single {
		if counts[name] > 1 {
			result.OK = false
			result.OverMultiple = append(result.OverMultiple, name)
		}
	}

	byName := w.SchemasByName()
	for name, count := range counts {
		if count == 0 {
			continue
		}
		ref, ok := byName[name]
		if !ok {
			continue
		}
		var missing []string
		for _, req := range ref.Requires {
			if counts[req] == 0 {
				missing = append(missing, req)
			}
		}
		if len(ref.RequiresOr) > 0 {
			satisfiedOr := false
			for _, req := range ref.RequiresOr {
				if counts[req] > 0 {
					satisfiedOr = true
					break
				}
			}
			if !satisfiedOr {
				missing = append(missing, ref.RequiresOr...)
			}
		}
		if len(missing) > 0 {
			result.OK = false
			result.MissingRequires[name] = missing
		}
	}

	return result
}
