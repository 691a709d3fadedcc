// Package xmlconv converts validated XML of a known schema-type into
// the canonical JSON form the metadata repository stores, per
// spec.md §4.C.
package xmlconv

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/kbase/submeta/errs"
	"github.com/kbase/submeta/schema"
	"github.com/kbase/submeta/validate"
)

// Result is one decoded logical object. A single XML file can expand to
// several (e.g. multiple sample descriptors), each tracked separately by
// the object service.
type Result struct {
	Document map[string]any
	// RefName is set for Bigpicture-family types, which cross-reference
	// each other by local alias rather than by accession (see
	// spec.md §9's cyclic-reference note).
	RefName string
}

// PostProcessor maps a decoded top-level element into one or more
// logical objects for a given schema-type. Registered per schema-type;
// schema-types without a registered post-processor fall back to the
// identity transform (single object, no splitting).
type PostProcessor func(decoded map[string]any) ([]Result, error)

// Parser drives schema selection, validation, canonical decoding and
// per-type post-processing.
type Parser struct {
	Registry       *schema.Registry
	Validator      *validate.XMLValidator
	postProcessors map[string]PostProcessor
}

// NewParser constructs a Parser with no registered post-processors
// beyond the identity transform.
func NewParser(reg *schema.Registry) *Parser {
	return &Parser{
		Registry:       reg,
		Validator:      &validate.XMLValidator{Registry: reg},
		postProcessors: make(map[string]PostProcessor),
	}
}

// RegisterPostProcessor installs a schema-type-specific post-processor,
// e.g. for splitting a multi-sample SRA XML file into one Result per
// sample descriptor.
func (p *Parser) RegisterPostProcessor(schemaType string, fn PostProcessor) {
	p.postProcessors[schemaType] = fn
}

// bigpictureTypes names the Bigpicture-family schema-types that require
// accession-id injection into the stored XML (spec.md §4.C step 4).
var bigpictureTypes = map[string]bool{
	"bpdataset":  true,
	"bpsample":   true,
	"bpimage":    true,
	"bpobservation": true,
	"bpstaining": true,
	"bpobserver": true,
	"bpannotationset": true,
}

// Parse validates xmlText against schemaType's XSD, decodes it to
// canonical JSON, and dispatches to the registered post-processor.
func (p *Parser) Parse(schemaType, xmlText string) ([]Result, error) {
	ok, detail, err := p.Validator.Validate(schemaType, xmlText)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.BadInputError{Reason: detail.Reason, InstancePath: detail.Instance}
	}

	decoded, err := decodeCanonical(xmlText)
	if err != nil {
		return nil, errs.BadInputError{Reason: fmt.Sprintf("malformed XML: %s", err)}
	}

	// elevate the single root element's payload to top level
	if len(decoded) == 1 {
		for _, v := range decoded {
			if child, ok := v.(map[string]any); ok {
				decoded = child
			}
		}
	}

	if fn, ok := p.postProcessors[schemaType]; ok {
		return fn(decoded)
	}
	return []Result{{Document: decoded}}, nil
}

// InjectAccessionId rewrites xmlText so the root element carries the
// given accession id as an attribute, for Bigpicture-family types
// (spec.md §4.C step 4).
func (p *Parser) InjectAccessionId(schemaType, xmlText, accessionId string) (string, error) {
	if !bigpictureTypes[schemaType] {
		return xmlText, nil
	}
	decoder := xml.NewDecoder(strings.NewReader(xmlText))
	tok, err := decoder.Token()
	for err == nil {
		if _, ok := tok.(xml.StartElement); ok {
			break
		}
		tok, err = decoder.Token()
	}
	if err != nil {
		return "", errs.BadInputError{Reason: "could not locate root element to inject accession id"}
	}
	start := tok.(xml.StartElement)
	insertion := fmt.Sprintf(` accessionId="%s"`, accessionId)
	tag := "<" + start.Name.Local
	idx := strings.Index(xmlText, tag)
	if idx < 0 {
		return "", errs.InternalError{Reason: "root element tag not found in source text"}
	}
	endOfTag := idx + len(tag)
	return xmlText[:endOfTag] + insertion + xmlText[endOfTag:], nil
}

// IsBigpictureType reports whether schemaType belongs to the
// Bigpicture histopathology family.
func IsBigpictureType(schemaType string) bool {
	return bigpictureTypes[schemaType]
}

// BigpictureSchemaTypes lists the Bigpicture-family schema-types, for
// callers (main.go's service wiring) that need to register a
// post-processor against each one without reaching into the package's
// unexported set.
func BigpictureSchemaTypes() []string {
	out := make([]string, 0, len(bigpictureTypes))
	for t := range bigpictureTypes {
		out = append(out, t)
	}
	return out
}

// SplitOnKey returns a PostProcessor for formats whose root element
// wraps one or more repeated entries under a single canonical key, e.g.
// a BPDATASET_SET root containing one or more BPDATASET children, which
// decodeCanonical elevates to decoded["bpdataset"] (a map for a single
// child, a []any for several, per node.addChild). Each entry becomes
// its own Result so the object service persists it as a separate
// logical object (spec.md §4.C item 4, §8 scenario 5); a Bigpicture
// entry's "refname" attribute, used for cross-referencing other
// entries by local alias instead of by accession, is carried onto
// Result.RefName.
func SplitOnKey(key string) PostProcessor {
	return func(decoded map[string]any) ([]Result, error) {
		val, ok := decoded[key]
		if !ok {
			return []Result{{Document: decoded}}, nil
		}
		switch v := val.(type) {
		case []any:
			out := make([]Result, 0, len(v))
			for _, item := range v {
				doc, ok := item.(map[string]any)
				if !ok {
					return nil, errs.BadInputError{Reason: fmt.Sprintf("'%s' entries must be elements", key)}
				}
				out = append(out, Result{Document: doc, RefName: refNameOf(doc)})
			}
			return out, nil
		case map[string]any:
			return []Result{{Document: v, RefName: refNameOf(v)}}, nil
		default:
			return nil, errs.BadInputError{Reason: fmt.Sprintf("'%s' must be an element", key)}
		}
	}
}

func refNameOf(doc map[string]any) string {
	if rn, ok := doc["refname"].(string); ok {
		return rn
	}
	return ""
}
