// Package validate implements the Validator component: JSON Schema
// validation with default-value injection, and XML Schema validation
// with line-numbered error reporting.
package validate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kbase/submeta/errs"
	"github.com/kbase/submeta/schema"
)

// JSONValidator validates a JSON payload against a named schema-type,
// injecting JSON-Schema-declared defaults into the instance before
// structural validation, mirroring helpers/validator.py's
// extend_with_default behavior.
type JSONValidator struct {
	Registry *schema.Registry
}

// Validate checks payload against the named schema. On success it
// returns the (possibly default-completed) instance. On failure it
// returns a BadInputError whose InstancePath names the first offending
// field, or is empty when the failure is document-shaped rather than
// field-specific.
func (v *JSONValidator) Validate(schemaType string, payload json.RawMessage) (json.RawMessage, error) {
	artifact, err := v.Registry.GetJSONSchema(schemaType)
	if err != nil {
		return nil, errs.BadInputError{Reason: fmt.Sprintf("%s (%s)", err.Error(), schemaType)}
	}

	var instance any
	if err := json.Unmarshal(payload, &instance); err != nil {
		return nil, errs.BadInputError{Reason: fmt.Sprintf("invalid JSON: %s", err.Error())}
	}

	var rawSchema any
	if err := json.Unmarshal(artifact.Raw, &rawSchema); err != nil {
		return nil, errs.InternalError{Reason: fmt.Sprintf("schema %s is not valid JSON: %s", schemaType, err)}
	}
	injectDefaults(rawSchema, instance)

	if err := artifact.JSON.Validate(instance); err != nil {
		return nil, classifyValidationError(err)
	}

	completed, err := json.Marshal(instance)
	if err != nil {
		return nil, errs.InternalError{Reason: err.Error()}
	}
	return completed, nil
}

// injectDefaults walks schemaNode's "properties" (and, for arrays,
// "items") and, for any property declaring a "default", sets that
// default on instance when the property is absent. It recurses into
// nested object/array instances the way the Python extend_with_default
// hook is invoked once per nested "properties" validator during
// jsonschema's own recursive descent.
func injectDefaults(schemaNode any, instance any) {
	schemaMap, ok := schemaNode.(map[string]any)
	if !ok {
		return
	}

	if props, ok := schemaMap["properties"].(map[string]any); ok {
		if instMap, ok := instance.(map[string]any); ok {
			for prop, sub := range props {
				subMap, _ := sub.(map[string]any)
				if subMap == nil {
					continue
				}
				if def, hasDefault := subMap["default"]; hasDefault {
					if _, present := instMap[prop]; !present {
						instMap[prop] = def
					}
				}
				if child, present := instMap[prop]; present {
					injectDefaults(subMap, child)
				}
			}
		}
	}

	if items, ok := schemaMap["items"].(map[string]any); ok {
		if instList, ok := instance.([]any); ok {
			for _, elem := range instList {
				injectDefaults(items, elem)
			}
		}
	}
}

// classifyValidationError converts a jsonschema validation failure into
// the field-specific vs document-shaped BadInputError the spec
// requires.
func classifyValidationError(err error) error {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return errs.BadInputError{Reason: err.Error()}
	}
	leaf := deepestCause(verr)
	if len(leaf.InstanceLocation) > 0 {
		field := strings.TrimPrefix(leaf.InstanceLocation, "/")
		return errs.BadInputError{
			Reason:       fmt.Sprintf("provided input does not seem correct for field: '%s'", field),
			InstancePath: leaf.InstanceLocation,
		}
	}
	return errs.BadInputError{
		Reason: fmt.Sprintf("provided input does not seem correct because: '%s'", leaf.Message),
	}
}

// deepestCause descends a ValidationError's Causes tree to the most
// specific failure, the way the Python original surfaces e.path from
// the innermost jsonschema.ValidationError.
func deepestCause(verr *jsonschema.ValidationError) *jsonschema.ValidationError {
	cur := verr
	for len(cur.Causes) > 0 {
		cur = cur.Causes[0]
	}
	return cur
}
