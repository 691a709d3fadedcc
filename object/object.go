// Copyright (c) 2023 The KBase Project and its Contributors
// Copyright (c) 2023 Cohere Consulting, LLC
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package object implements the object service (spec.md §4.H): accepts
// JSON or XML, routes through the validator and XML parser, attaches
// identifiers, enforces name uniqueness and the workflow's
// single-instance rule, and exposes the update/replace distinction.
package object

import (
	"encoding/json"
	"fmt"

	"zombiezen.com/go/sqlite"

	"github.com/kbase/submeta/clock"
	"github.com/kbase/submeta/errs"
	"github.com/kbase/submeta/idgen"
	"github.com/kbase/submeta/model"
	"github.com/kbase/submeta/store"
	"github.com/kbase/submeta/validate"
	"github.com/kbase/submeta/workflow"
	"github.com/kbase/submeta/xmlconv"
)

// Format distinguishes the on-the-wire encoding of a submitted or
// requested object payload.
type Format string

const (
	FormatJSON Format = "json"
	FormatXML  Format = "xml"
)

// forbiddenReplaceKeys names the fields a client may never set directly
// on replace or partial update: accessionId, publishDate, dateCreated,
// metaxIdentifier and doi are all repository- or publish-orchestrator-
// owned (spec.md §4.H, grounded on object.py's _format_data_to_replace
// forbidden_keys set).
var forbiddenReplaceKeys = []string{"accessionId", "publishDate", "dateCreated", "metaxIdentifier", "doi"}

// WorkflowLookup resolves a submission's workflow by name.
type WorkflowLookup func(name string) (*workflow.Workflow, bool)

// Service implements the object operations described above.
type Service struct {
	Store      *store.Store
	Validator  *validate.JSONValidator
	XMLParser  *xmlconv.Parser
	IDGen      *idgen.Generator
	Clock      clock.Clock
	Workflows  WorkflowLookup
}

// AddObject validates and persists one or more logical objects decoded
// from payload. A JSON payload always yields exactly one object; an XML
// payload may yield several (e.g. a multi-sample SRA file), each
// assigned its own accession identifier and recorded against
// submissionId separately.
func (s *Service) AddObject(conn *sqlite.Conn, submissionId, objectType string, payload []byte, format Format) ([]model.Object, error) {
	sub, err := s.Store.GetSubmissionById(conn, submissionId)
	if err != nil {
		return nil, err
	}
	if sub.IsPublished {
		return nil, errs.ConflictError{Reason: fmt.Sprintf("submission '%s' is already published", submissionId)}
	}

	wf, ok := s.Workflows(sub.WorkflowName)
	if !ok {
		return nil, errs.NotFoundError{Kind: "workflow", Id: sub.WorkflowName}
	}

	counts, err := s.Store.CountObjectsByType(conn, submissionId)
	if err != nil {
		return nil, err
	}
	if wf.SingleInstanceSchemas()[objectType] && counts[objectType] >= 1 {
		return nil, errs.ConflictError{Reason: fmt.Sprintf("schema '%s' allows only one object per submission", objectType)}
	}

	var docs []docWithXML
	switch format {
	case FormatJSON:
		completed, err := s.Validator.Validate(objectType, json.RawMessage(payload))
		if err != nil {
			return nil, err
		}
		var decoded map[string]any
		if err := json.Unmarshal(completed, &decoded); err != nil {
			return nil, errs.InternalError{Reason: err.Error()}
		}
		docs = []docWithXML{{document: decoded}}
	case FormatXML:
		results, err := s.XMLParser.Parse(objectType, string(payload))
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			docs = append(docs, docWithXML{document: r.Document, xmlText: string(payload)})
		}
	default:
		return nil, errs.UnsupportedMediaError{ContentType: string(format)}
	}

	now := s.Clock.Now()
	var created []model.Object
	for _, d := range docs {
		if len(created) > 0 && wf.SingleInstanceSchemas()[objectType] {
			return nil, errs.ConflictError{Reason: fmt.Sprintf("schema '%s' allows only one object per submission", objectType)}
		}
		id, err := s.IDGen.NewAccession()
		if err != nil {
			return nil, errs.InternalError{Reason: err.Error()}
		}
		d.document["accessionId"] = id

		docJSON, err := json.Marshal(d.document)
		if err != nil {
			return nil, errs.InternalError{Reason: err.Error()}
		}

		xmlText := d.xmlText
		if xmlText != "" && xmlconv.IsBigpictureType(objectType) {
			xmlText, err = s.XMLParser.InjectAccessionId(objectType, xmlText, id)
			if err != nil {
				return nil, err
			}
		}

		obj := model.Object{
			ObjectId:     id,
			SubmissionId: submissionId,
			ProjectId:    sub.ProjectId,
			ObjectType:   objectType,
			Name:         extractName(d.document),
			Title:        extractString(d.document, "title"),
			Description:  extractString(d.document, "description"),
			Document:     docJSON,
			XMLDocument:  xmlText,
			HasXML:       xmlText != "",
			CreatedAt:    now,
			ModifiedAt:   now,
		}
		if err := s.Store.AddObject(conn, obj); err != nil {
			return nil, err
		}
		created = append(created, obj)
	}
	return created, nil
}

type docWithXML struct {
	document map[string]any
	xmlText  string
}

// ReplaceObject fully replaces an object's document. The new payload
// must not set any of forbiddenReplaceKeys. The new document gets
// accessionId set to objectId and the row keeps its creation time;
// no other field of the old document carries over.
func (s *Service) ReplaceObject(conn *sqlite.Conn, objectId string, payload json.RawMessage) (model.Object, error) {
	existing, err := s.Store.GetObjectById(conn, objectId)
	if err != nil {
		return model.Object{}, err
	}
	if err := s.rejectForbiddenKeys(payload); err != nil {
		return model.Object{}, err
	}
	if err := s.checkNotPublished(conn, existing.SubmissionId); err != nil {
		return model.Object{}, err
	}

	completed, err := s.Validator.Validate(existing.ObjectType, payload)
	if err != nil {
		return model.Object{}, err
	}
	var decoded map[string]any
	if err := json.Unmarshal(completed, &decoded); err != nil {
		return model.Object{}, errs.InternalError{Reason: err.Error()}
	}
	decoded["accessionId"] = objectId

	docJSON, err := json.Marshal(decoded)
	if err != nil {
		return model.Object{}, errs.InternalError{Reason: err.Error()}
	}

	now := s.Clock.Now()
	err = s.Store.UpdateObject(conn, objectId, func(o *model.Object) error {
		o.Name = extractName(decoded)
		o.Title = extractString(decoded, "title")
		o.Description = extractString(decoded, "description")
		o.Document = docJSON
		o.ModifiedAt = now
		return nil
	})
	if err != nil {
		return model.Object{}, err
	}
	return s.Store.GetObjectById(conn, objectId)
}

// UpdateObject applies a partial JSON merge onto an object's existing
// document. XML partial updates are not supported: the original's
// XMLObjectOperator._format_data_to_update_and_add_to_db raises
// unconditionally, which this mirrors by accepting only JSON partials.
func (s *Service) UpdateObject(conn *sqlite.Conn, objectId string, partial json.RawMessage) (model.Object, error) {
	existing, err := s.Store.GetObjectById(conn, objectId)
	if err != nil {
		return model.Object{}, err
	}
	if err := s.rejectForbiddenKeys(partial); err != nil {
		return model.Object{}, err
	}
	if err := s.checkNotPublished(conn, existing.SubmissionId); err != nil {
		return model.Object{}, err
	}

	var current map[string]any
	if err := json.Unmarshal(existing.Document, &current); err != nil {
		return model.Object{}, errs.InternalError{Reason: err.Error()}
	}
	var patch map[string]any
	if err := json.Unmarshal(partial, &patch); err != nil {
		return model.Object{}, errs.BadInputError{Reason: fmt.Sprintf("invalid JSON: %s", err)}
	}
	for k, v := range patch {
		current[k] = v
	}
	current["accessionId"] = objectId

	merged, err := json.Marshal(current)
	if err != nil {
		return model.Object{}, errs.InternalError{Reason: err.Error()}
	}
	completed, err := s.Validator.Validate(existing.ObjectType, merged)
	if err != nil {
		return model.Object{}, err
	}
	var decoded map[string]any
	if err := json.Unmarshal(completed, &decoded); err != nil {
		return model.Object{}, errs.InternalError{Reason: err.Error()}
	}

	docJSON, err := json.Marshal(decoded)
	if err != nil {
		return model.Object{}, errs.InternalError{Reason: err.Error()}
	}

	now := s.Clock.Now()
	err = s.Store.UpdateObject(conn, objectId, func(o *model.Object) error {
		o.Name = extractName(decoded)
		o.Title = extractString(decoded, "title")
		o.Description = extractString(decoded, "description")
		o.Document = docJSON
		o.ModifiedAt = now
		return nil
	})
	if err != nil {
		return model.Object{}, err
	}
	return s.Store.GetObjectById(conn, objectId)
}

// ReadObject returns an object's stored document, or (when format is
// FormatXML and the object has a stored XML serialization) the
// original XML text.
func (s *Service) ReadObject(conn *sqlite.Conn, objectId string, format Format) (model.Object, string, error) {
	obj, err := s.Store.GetObjectById(conn, objectId)
	if err != nil {
		return model.Object{}, "", err
	}
	if format == FormatXML {
		if !obj.HasXML {
			return model.Object{}, "", errs.NotFoundError{Kind: "xml_document", Id: objectId}
		}
		return obj, obj.XMLDocument, nil
	}
	return obj, "", nil
}

// DeleteObject removes an object, refusing once its submission is
// published.
func (s *Service) DeleteObject(conn *sqlite.Conn, objectId string) error {
	obj, err := s.Store.GetObjectById(conn, objectId)
	if err != nil {
		return err
	}
	if err := s.checkNotPublished(conn, obj.SubmissionId); err != nil {
		return err
	}
	ok, err := s.Store.DeleteObjectById(conn, objectId)
	if err != nil {
		return err
	}
	if !ok {
		return errs.NotFoundError{Kind: "object", Id: objectId}
	}
	return nil
}

// SetDOI attaches a minted DOI to an object's document using
// update-if-null semantics: a no-op when the object already carries a
// doi, which makes the publish orchestrator's step 1 safely re-runnable
// (spec.md §4.J "Idempotence"). Unlike ReplaceObject/UpdateObject this
// bypasses the client-facing forbidden-key check, since only the
// publish orchestrator calls it.
func (s *Service) SetDOI(conn *sqlite.Conn, objectId, doi string) (bool, error) {
	obj, err := s.Store.GetObjectById(conn, objectId)
	if err != nil {
		return false, err
	}
	var doc map[string]any
	if err := json.Unmarshal(obj.Document, &doc); err != nil {
		return false, errs.InternalError{Reason: err.Error()}
	}
	if existing, _ := doc["doi"].(string); existing != "" {
		return false, nil
	}
	doc["doi"] = doi
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return false, errs.InternalError{Reason: err.Error()}
	}
	now := s.Clock.Now()
	err = s.Store.UpdateObject(conn, objectId, func(o *model.Object) error {
		o.Document = docJSON
		o.ModifiedAt = now
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// DOI returns the doi attached to an object's document, or "" if none
// has been minted yet.
func (s *Service) DOI(obj model.Object) string {
	var doc map[string]any
	if err := json.Unmarshal(obj.Document, &doc); err != nil {
		return ""
	}
	doi, _ := doc["doi"].(string)
	return doi
}

func (s *Service) checkNotPublished(conn *sqlite.Conn, submissionId string) error {
	sub, err := s.Store.GetSubmissionById(conn, submissionId)
	if err != nil {
		return err
	}
	if sub.IsPublished {
		return errs.ConflictError{Reason: fmt.Sprintf("submission '%s' is already published", submissionId)}
	}
	return nil
}

func (s *Service) rejectForbiddenKeys(payload json.RawMessage) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(payload, &probe); err != nil {
		return errs.BadInputError{Reason: fmt.Sprintf("invalid JSON: %s", err)}
	}
	var present []string
	for _, k := range forbiddenReplaceKeys {
		if _, ok := probe[k]; ok {
			present = append(present, k)
		}
	}
	if len(present) > 0 {
		return errs.BadInputError{Reason: fmt.Sprintf("fields cannot be changed by the client: %v", present)}
	}
	return nil
}

func extractName(doc map[string]any) string {
	return extractString(doc, "name")
}

func extractString(doc map[string]any, key string) string {
	if v, ok := doc[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
