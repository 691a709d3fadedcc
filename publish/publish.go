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

// Package publish implements the publish orchestrator (spec.md §4.J): a
// pre-flight check, a fail-fast external execution sequence (DOI mint,
// catalog registration, access-management registration), an atomic
// local cut-over, and a best-effort file-ingestion trigger. Grounded on
// transfers.go's Specification/Transfer orchestration shape and
// tasks.go's sequential state-machine idiom, adapted from an async
// multi-stage channel pipeline to a bounded, synchronous,
// single-request sequence (spec.md §5 explicitly scopes publish to one
// DB transaction for its local state transition, with external calls
// happening outside it — a shape that does not call for
// deliveryhero/pipeline's streaming stage channels).
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"zombiezen.com/go/sqlite"

	"github.com/kbase/submeta/catalog"
	"github.com/kbase/submeta/clock"
	"github.com/kbase/submeta/errs"
	"github.com/kbase/submeta/extclient"
	"github.com/kbase/submeta/frictionless"
	"github.com/kbase/submeta/idgen"
	"github.com/kbase/submeta/journal"
	"github.com/kbase/submeta/model"
	"github.com/kbase/submeta/object"
	"github.com/kbase/submeta/store"
	"github.com/kbase/submeta/submission"
	"github.com/kbase/submeta/workflow"
)

// Endpoint names as they appear in a workflow's publish block; the
// orchestrator dispatches on these literal strings.
const (
	EndpointDOI     = "datacite"
	EndpointCatalog = "discovery"
	EndpointAccess  = "rems"
)

// WorkflowLookup resolves a workflow definition by name.
type WorkflowLookup func(name string) (*workflow.Workflow, bool)

// Clients bundles the external service clients the orchestrator calls.
// Any may be nil if the deployment has no workflow referencing that
// endpoint.
type Clients struct {
	DOI     *extclient.DOIClient
	Catalog *extclient.CatalogClient
	Access  *extclient.AccessClient
	Admin   *extclient.AdminClient
}

// Service implements the publish orchestrator.
type Service struct {
	Store       *store.Store
	Submissions *submission.Service
	Objects     *object.Service
	Clock       clock.Clock
	IDGen       *idgen.Generator
	Workflows   WorkflowLookup
	Clients     Clients

	// AccessWorkflowId and AccessOrganizationId parameterize the
	// access-management calls this deployment makes; a real deployment
	// would carry one per workflow, but the skeleton here takes a single
	// configured pair (see config.External's RemsWorkflowId and RemsOrgId).
	AccessWorkflowId   int
	AccessOrganizationId string

	// DataciteLandingURL is the public DOI-resolution base (e.g.
	// https://doi.org), distinct from the DOI client's own minting API
	// base; it is used only to compose the landing-page URL recorded on
	// a registration, never to make a request.
	DataciteLandingURL string
}

// PreflightResult reports why a submission is not yet publishable.
type PreflightResult struct {
	OK                bool
	MissingSchemas    []string
	OverMultiple      []string
	MissingRequires   map[string][]string
	FailedHealthChecks []string
}

// Preflight runs the three pre-flight checks with no side effects:
// submission exists and is not already published; the workflow engine
// reports it satisfied; every publish-endpoint's external client passes
// a health check.
func (s *Service) Preflight(ctx context.Context, conn *sqlite.Conn, submissionId string) (PreflightResult, error) {
	sub, err := s.Store.GetSubmissionById(conn, submissionId)
	if err != nil {
		return PreflightResult{}, err
	}
	if sub.IsPublished {
		return PreflightResult{}, errs.ConflictError{Reason: fmt.Sprintf("submission '%s' is already published", submissionId)}
	}
	wf, ok := s.Workflows(sub.WorkflowName)
	if !ok {
		return PreflightResult{}, errs.NotFoundError{Kind: "workflow", Id: sub.WorkflowName}
	}

	counts, err := s.Store.CountObjectsByType(conn, submissionId)
	if err != nil {
		return PreflightResult{}, err
	}
	sat := wf.Satisfied(counts)
	result := PreflightResult{
		OK:              sat.OK,
		MissingSchemas:  sat.MissingRequired,
		OverMultiple:    sat.OverMultiple,
		MissingRequires: sat.MissingRequires,
	}

	for endpoint := range wf.PublishEndpoints() {
		client, path := s.healthCheckFor(endpoint)
		if client == nil {
			continue
		}
		if !client.HealthCheck(ctx, path) {
			result.OK = false
			result.FailedHealthChecks = append(result.FailedHealthChecks, endpoint)
		}
	}
	return result, nil
}

func (s *Service) healthCheckFor(endpoint string) (healthChecker, string) {
	switch endpoint {
	case EndpointDOI:
		if s.Clients.DOI == nil {
			return nil, ""
		}
		return s.Clients.DOI.Client, "/heartbeat"
	case EndpointCatalog:
		if s.Clients.Catalog == nil {
			return nil, ""
		}
		return s.Clients.Catalog.Client, "/healthz"
	case EndpointAccess:
		if s.Clients.Access == nil {
			return nil, ""
		}
		return s.Clients.Access.Client, "/api/health"
	default:
		return nil, ""
	}
}

type healthChecker interface {
	HealthCheck(ctx context.Context, path string) bool
}

// objectTypesFor returns the schema-type set a named publish endpoint
// declares in its `schemas` list (the DOI-bearing types for
// "datacite", the dataset-like types for "rems", and so on).
func objectTypesFor(wf *workflow.Workflow, endpoint string) map[string]bool {
	out := make(map[string]bool)
	cfg, ok := wf.PublishConfig(endpoint)
	if !ok {
		return out
	}
	for _, s := range cfg.Schemas {
		out[s] = true
	}
	return out
}

// Publish runs the full execution sequence for submissionId: pre-flight,
// DOI minting, catalog registration, access-management registration
// (when configured), the atomic local cut-over, and the best-effort
// ingestion trigger. Steps 1-4 are safely re-invoked on a partially
// completed submission since every external id is written with
// update-if-null semantics.
func (s *Service) Publish(ctx context.Context, conn *sqlite.Conn, submissionId string) error {
	pre, err := s.Preflight(ctx, conn, submissionId)
	if err != nil {
		return err
	}
	if !pre.OK {
		return errs.UnprocessableError{Reason: fmt.Sprintf(
			"submission '%s' is not publishable: missing=%v over_multiple=%v failed_health_checks=%v",
			submissionId, pre.MissingSchemas, pre.OverMultiple, pre.FailedHealthChecks)}
	}

	sub, err := s.Store.GetSubmissionById(conn, submissionId)
	if err != nil {
		return err
	}
	wf, ok := s.Workflows(sub.WorkflowName)
	if !ok {
		return errs.NotFoundError{Kind: "workflow", Id: sub.WorkflowName}
	}
	objs, err := s.Store.ListObjects(conn, store.ObjectFilter{SubmissionId: submissionId})
	if err != nil {
		return err
	}

	doiTypes := objectTypesFor(wf, EndpointDOI)
	catalogTypes := objectTypesFor(wf, EndpointCatalog)
	accessTypes := objectTypesFor(wf, EndpointAccess)

	var doiBearing []model.Object
	for _, o := range objs {
		if doiTypes[o.ObjectType] {
			doiBearing = append(doiBearing, o)
		}
	}

	var mintedThisRun []string       // doi values minted during this invocation, for compensation
	var mintedCatalogDrafts []string // catalog draft ids created during this invocation, for compensation
	committed := false
	defer func() {
		if !committed {
			s.compensate(ctx, mintedThisRun, mintedCatalogDrafts)
		}
	}()

	// Step 1: mint DOIs for every DOI-bearing object lacking one.
	for i, o := range doiBearing {
		if s.Objects.DOI(o) != "" {
			continue
		}
		if s.Clients.DOI == nil {
			return errs.InternalError{Reason: "workflow requires a DOI but no DOI client is configured"}
		}
		doi, _, err := s.Clients.DOI.CreateDraft(ctx, "")
		if err != nil {
			s.recordStep(submissionId, "mint_doi", "failed", err.Error())
			return fmt.Errorf("minting DOI for object %s: %w", o.ObjectId, err)
		}
		if _, err := s.Objects.SetDOI(conn, o.ObjectId, doi); err != nil {
			s.recordStep(submissionId, "mint_doi", "failed", err.Error())
			return err
		}
		mintedThisRun = append(mintedThisRun, doi)
		doiBearing[i].Document, _ = withDOI(o.Document, doi)
	}
	s.recordStep(submissionId, "mint_doi", "succeeded", "")

	doiInfoRaw, err := s.Submissions.DoiInfo(conn, submissionId)
	if err != nil {
		return err
	}
	var doiInfo catalog.DoiInfo
	if err := json.Unmarshal(doiInfoRaw, &doiInfo); err != nil {
		return errs.InternalError{Reason: fmt.Sprintf("decoding doiInfo: %s", err)}
	}

	// Step 2: push DOI-info + per-object title/description to the DOI
	// service for every DOI-bearing object.
	for _, o := range doiBearing {
		doi := s.Objects.DOI(o)
		if doi == "" {
			continue
		}
		payload := map[string]any{"titles": []map[string]string{{"title": o.Title}}}
		if o.Description != "" {
			payload["descriptions"] = []map[string]string{{"description": o.Description, "descriptionType": "Abstract"}}
		}
		if err := s.Clients.DOI.Update(ctx, doi, payload); err != nil {
			s.recordStep(submissionId, "update_doi", "failed", err.Error())
			return fmt.Errorf("updating DOI-info for object %s: %w", o.ObjectId, err)
		}
	}
	s.recordStep(submissionId, "update_doi", "succeeded", "")

	// Step 3: catalog drafts, bulk_update, per-object publish.
	if catalogClient := s.Clients.Catalog; catalogClient != nil && len(catalogTypes) > 0 {
		mapper := catalog.Mapper{DoiInfo: doiInfo}
		for _, o := range doiBearing {
			if !catalogTypes[o.ObjectType] {
				continue
			}
			reg, found, err := s.Store.GetRegistrationByObjectId(conn, o.ObjectId)
			if err != nil {
				return err
			}
			if !found {
				reg = model.Registration{
					ObjectId:     o.ObjectId,
					SubmissionId: submissionId,
					ObjectType:   o.ObjectType,
					Title:        o.Title,
					Description:  o.Description,
					DOI:          s.Objects.DOI(o),
					DataciteUrl:  s.dataciteLandingURL(s.Objects.DOI(o)),
					CreatedAt:    s.Clock.Now(),
					ModifiedAt:   s.Clock.Now(),
				}
				rid, err := s.IDGen.NewAccession()
				if err != nil {
					return errs.InternalError{Reason: err.Error()}
				}
				reg.RegistrationId = rid
				if err := s.Store.AddRegistration(conn, reg); err != nil {
					return err
				}
			}
			if reg.MetaxId != "" {
				continue // already published to the catalog, idempotent skip
			}

			rd := mapper.Map(s.Objects.DOI(o), o.Title, o.Description)
			catalogId, err := catalogClient.CreateDraft(ctx, rd)
			if err != nil {
				s.recordStep(submissionId, "catalog_publish", "failed", err.Error())
				return fmt.Errorf("creating catalog draft for object %s: %w", o.ObjectId, err)
			}
			mintedCatalogDrafts = append(mintedCatalogDrafts, catalogId)
			if err := catalogClient.BulkUpdate(ctx, []string{catalogId}, rd); err != nil {
				s.recordStep(submissionId, "catalog_publish", "failed", err.Error())
				return fmt.Errorf("bulk-updating catalog draft %s: %w", catalogId, err)
			}
			preferredId, err := catalogClient.Publish(ctx, catalogId)
			if err != nil {
				s.recordStep(submissionId, "catalog_publish", "failed", err.Error())
				return fmt.Errorf("publishing catalog draft %s: %w", catalogId, err)
			}
			if err := s.Store.UpdateRegistration(conn, reg.RegistrationId, func(r *model.Registration) error {
				r.MetaxId = preferredId
				return nil
			}); err != nil {
				s.recordStep(submissionId, "catalog_publish", "failed", err.Error())
				return err
			}
		}
		s.recordStep(submissionId, "catalog_publish", "succeeded", "")
	}

	// Step 4: access-management validation and per-object resource +
	// catalogue-item registration.
	if accessClient := s.Clients.Access; accessClient != nil && len(accessTypes) > 0 {
		licenseIds, err := s.licenseIdsFor(ctx, accessClient)
		if err != nil {
			return err
		}
		ok, err := accessClient.ValidateWorkflowLicenses(ctx, s.AccessWorkflowId, licenseIds)
		if err != nil {
			s.recordStep(submissionId, "access_register", "failed", err.Error())
			return fmt.Errorf("validating access-management workflow licenses: %w", err)
		}
		if !ok {
			s.recordStep(submissionId, "access_register", "failed", "license validation failed")
			return errs.UnprocessableError{Reason: "access-management workflow/license validation failed"}
		}
		for _, o := range doiBearing {
			if !accessTypes[o.ObjectType] {
				continue
			}
			reg, found, err := s.Store.GetRegistrationByObjectId(conn, o.ObjectId)
			if err != nil {
				return err
			}
			if found && reg.RemsCatalogueId != "" {
				continue // already registered, idempotent skip
			}
			resourceId, err := accessClient.CreateResource(ctx, s.Objects.DOI(o), s.AccessWorkflowId, licenseIds)
			if err != nil {
				s.recordStep(submissionId, "access_register", "failed", err.Error())
				return fmt.Errorf("creating access resource for object %s: %w", o.ObjectId, err)
			}
			catalogueId, err := accessClient.CreateCatalogueItem(ctx, resourceId, s.AccessWorkflowId, o.Title)
			if err != nil {
				s.recordStep(submissionId, "access_register", "failed", err.Error())
				return fmt.Errorf("creating access catalogue item for object %s: %w", o.ObjectId, err)
			}
			if !found {
				s.recordStep(submissionId, "access_register", "failed", "no registration row found after catalog step")
				return errs.InternalError{Reason: fmt.Sprintf("no registration row found for object %s after catalog step", o.ObjectId)}
			}
			if err := s.Store.UpdateRegistration(conn, reg.RegistrationId, func(r *model.Registration) error {
				r.RemsResourceId = fmt.Sprintf("%d", resourceId)
				r.RemsCatalogueId = fmt.Sprintf("%d", catalogueId)
				return nil
			}); err != nil {
				s.recordStep(submissionId, "access_register", "failed", err.Error())
				return err
			}
		}
		s.recordStep(submissionId, "access_register", "succeeded", "")
	}

	// Step 5: the atomic cut-over.
	now := s.Clock.Now()
	if err := s.Store.UpdateSubmission(conn, submissionId, func(sub *model.Submission) error {
		sub.IsPublished = true
		sub.PublishedAt = &now
		return nil
	}); err != nil {
		s.recordStep(submissionId, "commit", "failed", err.Error())
		return err
	}
	committed = true
	s.recordStep(submissionId, "commit", "succeeded", "")

	// Step 6: trigger file ingestion, best-effort (out-of-band callbacks
	// own the real completion signal per spec.md §4.J).
	if s.Clients.Admin != nil {
		s.triggerIngestion(ctx, conn, submissionId)
		s.recordStep(submissionId, "ingest_trigger", "succeeded", "")
	}
	return nil
}

// recordStep best-effort records one publish step's outcome in the
// publish journal (an operator audit trail; RecoverIncomplete does not
// read it); a
// closed or unreachable journal never blocks the orchestrator itself.
func (s *Service) recordStep(submissionId, step, status, detail string) {
	if err := journal.RecordStep(journal.Record{
		SubmissionId: submissionId,
		Step:         step,
		Status:       status,
		Detail:       detail,
		Time:         s.Clock.Now(),
	}); err != nil {
		slog.Debug("recording publish step", "submission", submissionId, "step", step, "status", status, "error", err)
	}
}

// licenseIdsFor lists every license id the access-management service
// currently knows about; a real deployment would instead take the
// licenses named in the submission's rems sub-document.
func (s *Service) licenseIdsFor(ctx context.Context, accessClient *extclient.AccessClient) ([]int, error) {
	licenses, err := accessClient.ListLicenses(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing access-management licenses: %w", err)
	}
	ids := make([]int, 0, len(licenses))
	for _, l := range licenses {
		ids = append(ids, l.ID)
	}
	return ids, nil
}

// triggerIngestion assigns accessions and requests ingestion for every
// file attached to the submission. Failures are logged rather than
// returned: ingestion completion is tracked out-of-band (spec.md §4.J),
// so a failure here does not unwind the already-committed publish.
func (s *Service) triggerIngestion(ctx context.Context, conn *sqlite.Conn, submissionId string) {
	files, err := s.Store.ListFilesBySubmission(conn, submissionId)
	if err != nil {
		slog.Error("listing files for ingestion trigger", "submission", submissionId, "error", err)
		return
	}
	sub, err := s.Store.GetSubmissionById(conn, submissionId)
	if err != nil {
		slog.Error("loading submission for ingestion trigger", "submission", submissionId, "error", err)
		return
	}

	if len(files) > 0 {
		manifest := buildManifest(submissionId, files)
		if _, err := frictionless.Validate(manifest); err != nil {
			slog.Error("validating ingestion manifest", "submission", submissionId, "error", err)
		} else if err := s.Clients.Admin.IngestManifest(ctx, sub.ProjectId, manifest); err != nil {
			slog.Error("sending ingestion manifest", "submission", submissionId, "error", err)
		}
	}

	for _, f := range files {
		if err := s.Clients.Admin.AssignAccession(ctx, sub.ProjectId, f.Path, f.FileId); err != nil {
			slog.Error("assigning accession", "file", f.Path, "error", err)
			continue
		}
		if err := s.Clients.Admin.IngestFile(ctx, sub.ProjectId, f.Path); err != nil {
			slog.Error("triggering ingestion", "file", f.Path, "error", err)
		}
	}
}

// dataciteLandingURL composes the public DOI landing-page URL recorded
// on a registration. DataciteLandingURL is the resolution base (e.g.
// https://doi.org), kept distinct from the DOI client's own minting
// API base (DataciteAPI) per original_source/metadata_backend/conf/
// conf.py's separate DATACITE_URL/DATACITE_API settings.
func (s *Service) dataciteLandingURL(doi string) string {
	if s.DataciteLandingURL == "" || doi == "" {
		return ""
	}
	return strings.TrimSuffix(s.DataciteLandingURL, "/") + "/" + doi
}

// buildManifest describes a submission's attached files as a
// Frictionless data package, the shape the admin service's manifest
// endpoint expects ahead of the per-file ingestion requests above.
func buildManifest(submissionId string, files []model.File) frictionless.DataPackage {
	return frictionless.FromFiles(submissionId, files)
}

// compensate deletes DOI drafts and catalog drafts minted during a
// failed publish attempt that never reached the step-5 cut-over, per
// spec.md §4.J's compensation rule (correcting the original
// implementation's asymmetry, where DOI drafts were sometimes deleted
// but catalog drafts never were — spec.md §9 Design Notes (b)).
func (s *Service) compensate(ctx context.Context, mintedDOIs, mintedCatalogDrafts []string) {
	if s.Clients.DOI != nil {
		for _, doi := range mintedDOIs {
			if err := s.Clients.DOI.DeleteDraft(ctx, doi); err != nil {
				slog.Error("compensating: deleting orphaned DOI draft", "doi", doi, "error", err)
			}
		}
	}
	if s.Clients.Catalog != nil {
		for _, id := range mintedCatalogDrafts {
			if err := s.Clients.Catalog.DeleteDraft(ctx, id); err != nil {
				slog.Error("compensating: deleting orphaned catalog draft", "catalog_draft_id", id, "error", err)
			}
		}
	}
}

func withDOI(doc json.RawMessage, doi string) (json.RawMessage, error) {
	var m map[string]any
	if err := json.Unmarshal(doc, &m); err != nil {
		return doc, err
	}
	m["doi"] = doi
	return json.Marshal(m)
}

// RecoverIncomplete lists submissions whose registration rows exist but
// whose is_published is still false — the startup recovery sweep spec.md
// §5 describes for process crashes between external success and the
// local commit. Recovery itself just re-invokes Publish, relying on its
// update-if-null idempotence to resume from the first missing external id.
func (s *Service) RecoverIncomplete(ctx context.Context, conn *sqlite.Conn) ([]string, error) {
	var incomplete []string
	_, total, err := s.Store.ListSubmissions(conn, store.SubmissionFilter{Page: store.Page{PageNum: 1, PageSize: 1}})
	if err != nil {
		return nil, err
	}
	subs, _, err := s.Store.ListSubmissions(conn, store.SubmissionFilter{Page: store.Page{PageNum: 1, PageSize: total + 1}})
	if err != nil {
		return nil, err
	}
	for _, sub := range subs {
		if sub.IsPublished {
			continue
		}
		regs, err := s.Store.ListRegistrations(conn, sub.SubmissionId)
		if err != nil {
			return nil, err
		}
		if len(regs) > 0 {
			incomplete = append(incomplete, sub.SubmissionId)
		}
	}
	return incomplete, nil
}
