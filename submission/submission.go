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

// Package submission implements the submission service (spec.md §4.G):
// repository CRUD plus workflow, ownership and published-state
// invariants layered on top of the metadata repository.
package submission

import (
	"encoding/json"
	"fmt"

	"zombiezen.com/go/sqlite"

	"github.com/kbase/submeta/clock"
	"github.com/kbase/submeta/errs"
	"github.com/kbase/submeta/frictionless"
	"github.com/kbase/submeta/idgen"
	"github.com/kbase/submeta/model"
	"github.com/kbase/submeta/store"
	"github.com/kbase/submeta/workflow"
)

// clientForbiddenFields names the fields a client may never set when
// creating a submission: they are entirely repository-managed (spec.md
// §4.G "Create").
var clientForbiddenFields = []string{
	"submissionId", "createdAt", "modifiedAt", "publishedAt", "ingestedAt", "isPublished", "isIngested",
}

// immutableFields names the fields a whole-document update may not
// change once set (spec.md §4.G "Update").
var immutableFields = []string{"workflow", "projectId", "folder"}

// preservedSubDocuments names nested documents a whole-document update
// may not silently drop.
var preservedSubDocuments = []string{"rems", "doiInfo"}

// WorkflowLookup resolves a workflow definition by name.
type WorkflowLookup func(name string) (*workflow.Workflow, bool)

// Service implements the submission operations described above.
type Service struct {
	Store     *store.Store
	IDGen     *idgen.Generator
	Clock     clock.Clock
	Workflows WorkflowLookup
}

// structuredFields is the subset of a create/update payload that is
// lifted out of Document into the repository's indexed columns.
type structuredFields struct {
	Name     string `json:"name"`
	Folder   string `json:"folder"`
	Title    string `json:"title"`
	Workflow string `json:"workflow"`
}

// Create strips client-forbidden fields from payload, assigns a fresh
// submission id, lifts {name, projectId, workflow, folder} into
// structured columns, and persists the remainder as the document.
func (s *Service) Create(conn *sqlite.Conn, projectId string, payload json.RawMessage) (model.Submission, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(payload, &probe); err != nil {
		return model.Submission{}, errs.BadInputError{Reason: fmt.Sprintf("invalid JSON: %s", err)}
	}
	var forbidden []string
	for _, f := range clientForbiddenFields {
		if _, ok := probe[f]; ok {
			forbidden = append(forbidden, f)
		}
	}
	if len(forbidden) > 0 {
		return model.Submission{}, errs.BadInputError{Reason: fmt.Sprintf("fields cannot be set by the client: %v", forbidden)}
	}

	var fields structuredFields
	if err := json.Unmarshal(payload, &fields); err != nil {
		return model.Submission{}, errs.BadInputError{Reason: fmt.Sprintf("invalid JSON: %s", err)}
	}
	if fields.Name == "" {
		return model.Submission{}, errs.BadInputError{Reason: "submission requires a name", InstancePath: "/name"}
	}
	if fields.Workflow == "" {
		return model.Submission{}, errs.BadInputError{Reason: "submission requires a workflow", InstancePath: "/workflow"}
	}
	if _, ok := s.Workflows(fields.Workflow); !ok {
		return model.Submission{}, errs.NotFoundError{Kind: "workflow", Id: fields.Workflow}
	}

	id, err := s.IDGen.NewAccession()
	if err != nil {
		return model.Submission{}, errs.InternalError{Reason: err.Error()}
	}
	now := s.Clock.Now()
	sub := model.Submission{
		SubmissionId: id,
		Name:         fields.Name,
		ProjectId:    projectId,
		WorkflowName: fields.Workflow,
		Folder:       fields.Folder,
		Title:        fields.Title,
		Document:     payload,
		CreatedAt:    now,
		ModifiedAt:   now,
	}
	if err := s.Store.AddSubmission(conn, sub); err != nil {
		return model.Submission{}, err
	}
	return sub, nil
}

// GetDocument returns the stored document merged with repository-
// managed fields (submissionId, createdAt, modifiedAt, isPublished,
// publishedAt?, ingestedAt?).
func (s *Service) GetDocument(conn *sqlite.Conn, submissionId string) (json.RawMessage, error) {
	sub, err := s.Store.GetSubmissionById(conn, submissionId)
	if err != nil {
		return nil, err
	}
	return mergeManagedFields(sub)
}

func mergeManagedFields(sub model.Submission) (json.RawMessage, error) {
	var doc map[string]any
	if len(sub.Document) > 0 {
		if err := json.Unmarshal(sub.Document, &doc); err != nil {
			return nil, errs.InternalError{Reason: err.Error()}
		}
	} else {
		doc = make(map[string]any)
	}
	doc["submissionId"] = sub.SubmissionId
	doc["createdAt"] = sub.CreatedAt
	doc["modifiedAt"] = sub.ModifiedAt
	doc["isPublished"] = sub.IsPublished
	if sub.PublishedAt != nil {
		doc["publishedAt"] = *sub.PublishedAt
	}
	if sub.IngestedAt != nil {
		doc["ingestedAt"] = *sub.IngestedAt
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, errs.InternalError{Reason: err.Error()}
	}
	return out, nil
}

// UpdateName sets the submission's name, refusing once published.
func (s *Service) UpdateName(conn *sqlite.Conn, submissionId, name string) error {
	return s.fieldUpdate(conn, submissionId, func(sub *model.Submission) { sub.Name = name })
}

// UpdateDescription sets the submission's description.
func (s *Service) UpdateDescription(conn *sqlite.Conn, submissionId, description string) error {
	return s.fieldUpdate(conn, submissionId, func(sub *model.Submission) { sub.Description = description })
}

// UpdateFolder sets the submission's linked folder. Callers are
// expected to have already checked the folder is not yet set, since
// linked_folder is immutable once populated (spec.md §4.G).
func (s *Service) UpdateFolder(conn *sqlite.Conn, submissionId, folder string) error {
	sub, err := s.Store.GetSubmissionById(conn, submissionId)
	if err != nil {
		return err
	}
	if sub.Folder != "" && sub.Folder != folder {
		return errs.ConflictError{Reason: "linked folder cannot be changed once set"}
	}
	return s.fieldUpdate(conn, submissionId, func(sub *model.Submission) { sub.Folder = folder })
}

// UpdateDoiInfo and UpdateRems merge a sub-document into the stored
// document's "doiInfo"/"rems" key without touching any other field.
func (s *Service) UpdateDoiInfo(conn *sqlite.Conn, submissionId string, doiInfo json.RawMessage) error {
	return s.mergeSubDocument(conn, submissionId, "doiInfo", doiInfo)
}

func (s *Service) UpdateRems(conn *sqlite.Conn, submissionId string, rems json.RawMessage) error {
	return s.mergeSubDocument(conn, submissionId, "rems", rems)
}

// DoiInfo returns the submission's "doiInfo" sub-document, the input to
// the publish orchestrator's DOI/catalog metadata mapping (spec.md
// §4.J step 2). Returns an empty object if none was ever set.
func (s *Service) DoiInfo(conn *sqlite.Conn, submissionId string) (json.RawMessage, error) {
	sub, err := s.Store.GetSubmissionById(conn, submissionId)
	if err != nil {
		return nil, err
	}
	var doc map[string]json.RawMessage
	if len(sub.Document) > 0 {
		if err := json.Unmarshal(sub.Document, &doc); err != nil {
			return nil, errs.InternalError{Reason: err.Error()}
		}
	}
	if raw, ok := doc["doiInfo"]; ok {
		return raw, nil
	}
	return json.RawMessage(`{}`), nil
}

func (s *Service) mergeSubDocument(conn *sqlite.Conn, submissionId, key string, value json.RawMessage) error {
	if err := s.CheckNotPublished(conn, submissionId); err != nil {
		return err
	}
	var decoded any
	if err := json.Unmarshal(value, &decoded); err != nil {
		return errs.BadInputError{Reason: fmt.Sprintf("invalid JSON: %s", err)}
	}
	now := s.Clock.Now()
	return s.Store.UpdateSubmission(conn, submissionId, func(sub *model.Submission) error {
		var doc map[string]any
		if len(sub.Document) > 0 {
			if err := json.Unmarshal(sub.Document, &doc); err != nil {
				return errs.InternalError{Reason: err.Error()}
			}
		} else {
			doc = make(map[string]any)
		}
		doc[key] = decoded
		out, err := json.Marshal(doc)
		if err != nil {
			return errs.InternalError{Reason: err.Error()}
		}
		sub.Document = out
		sub.ModifiedAt = now
		return nil
	})
}

func (s *Service) fieldUpdate(conn *sqlite.Conn, submissionId string, apply func(*model.Submission)) error {
	if err := s.CheckNotPublished(conn, submissionId); err != nil {
		return err
	}
	now := s.Clock.Now()
	return s.Store.UpdateSubmission(conn, submissionId, func(sub *model.Submission) error {
		apply(sub)
		sub.ModifiedAt = now
		return nil
	})
}

// UpdateDocument performs a whole-document update: it refuses to
// change any of immutableFields, refuses to drop any of
// preservedSubDocuments, and bumps modifiedAt.
func (s *Service) UpdateDocument(conn *sqlite.Conn, submissionId string, payload json.RawMessage) error {
	if err := s.CheckNotPublished(conn, submissionId); err != nil {
		return err
	}
	var incoming map[string]any
	if err := json.Unmarshal(payload, &incoming); err != nil {
		return errs.BadInputError{Reason: fmt.Sprintf("invalid JSON: %s", err)}
	}

	now := s.Clock.Now()
	return s.Store.UpdateSubmission(conn, submissionId, func(sub *model.Submission) error {
		var current map[string]any
		if len(sub.Document) > 0 {
			if err := json.Unmarshal(sub.Document, &current); err != nil {
				return errs.InternalError{Reason: err.Error()}
			}
		} else {
			current = make(map[string]any)
		}

		for _, f := range immutableFields {
			newVal, hasNew := incoming[f]
			oldVal, hasOld := current[f]
			if hasOld && hasNew && !jsonEqual(newVal, oldVal) {
				return errs.BadInputError{Reason: fmt.Sprintf("field '%s' is immutable once set", f), InstancePath: "/" + f}
			}
		}
		for _, f := range preservedSubDocuments {
			if _, hadIt := current[f]; hadIt {
				if _, stillHasIt := incoming[f]; !stillHasIt {
					return errs.BadInputError{Reason: fmt.Sprintf("field '%s' cannot be dropped by an update", f), InstancePath: "/" + f}
				}
			}
		}

		out, err := json.Marshal(incoming)
		if err != nil {
			return errs.InternalError{Reason: err.Error()}
		}
		sub.Document = out
		if name, ok := incoming["name"].(string); ok {
			sub.Name = name
		}
		if folder, ok := incoming["folder"].(string); ok {
			sub.Folder = folder
		}
		if title, ok := incoming["title"].(string); ok {
			sub.Title = title
		}
		sub.ModifiedAt = now
		return nil
	})
}

func jsonEqual(a, b any) bool {
	aj, err1 := json.Marshal(a)
	bj, err2 := json.Marshal(b)
	return err1 == nil && err2 == nil && string(aj) == string(bj)
}

// CheckOwnership reports whether userId may act on submissionId, via
// project membership.
func (s *Service) CheckOwnership(conn *sqlite.Conn, userId, submissionId string) (bool, error) {
	sub, err := s.Store.GetSubmissionById(conn, submissionId)
	if err != nil {
		return false, err
	}
	return s.Store.IsProjectMember(conn, userId, sub.ProjectId)
}

// CheckNotPublished raises a ConflictError when the submission is
// already published.
func (s *Service) CheckNotPublished(conn *sqlite.Conn, submissionId string) error {
	sub, err := s.Store.GetSubmissionById(conn, submissionId)
	if err != nil {
		return err
	}
	if sub.IsPublished {
		return errs.ConflictError{Reason: fmt.Sprintf("submission '%s' is already published", submissionId)}
	}
	return nil
}

// List returns a page of submissions matching filter and the total
// match count.
func (s *Service) List(conn *sqlite.Conn, filter store.SubmissionFilter) ([]model.Submission, int, error) {
	return s.Store.ListSubmissions(conn, filter)
}

// Delete removes a submission outright. Unlike object deletion this is
// not gated on published state in spec.md §4.G; the publish
// orchestrator is the only path that sets isPublished, and once set the
// submission's structural state is terminal by convention rather than
// by a delete-time check here.
func (s *Service) Delete(conn *sqlite.Conn, submissionId string) error {
	ok, err := s.Store.DeleteSubmissionById(conn, submissionId)
	if err != nil {
		return err
	}
	if !ok {
		return errs.NotFoundError{Kind: "submission", Id: submissionId}
	}
	return nil
}

// FileManifest describes a submission's attached files as a
// Frictionless data package (spec.md §3's File entity), the same shape
// the publish orchestrator's ingestion trigger builds, exposed here so
// a caller can inspect or hand off a submission's file listing without
// going through a publish attempt.
func (s *Service) FileManifest(conn *sqlite.Conn, submissionId string) (frictionless.DataPackage, error) {
	if _, err := s.Store.GetSubmissionById(conn, submissionId); err != nil {
		return frictionless.DataPackage{}, err
	}
	files, err := s.Store.ListFilesBySubmission(conn, submissionId)
	if err != nil {
		return frictionless.DataPackage{}, err
	}
	return frictionless.FromFiles(submissionId, files), nil
}
