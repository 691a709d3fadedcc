package extclient

import (
	"context"
	"encoding/json"
	"fmt"
)

// AccessClient implements the access-management service contract
// (spec.md §4.I): list_workflows, list_licenses,
// validate_workflow_licenses, create_resource, create_catalogue_item.
// Modeled on a REMS-like license/workflow/catalogue-item resource graph.
type AccessClient struct {
	*Client
	OrganizationId string
}

// NewAccessClient constructs an access-management service client.
func NewAccessClient(baseURL, apiKey, apiUser, organizationId string, timeout int64) *AccessClient {
	c := New("access", baseURL, timeoutFromSeconds(timeout))
	c.Headers["x-rems-api-key"] = apiKey
	c.Headers["x-rems-user-id"] = apiUser
	return &AccessClient{Client: c, OrganizationId: organizationId}
}

type accessWorkflow struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

// ListWorkflows returns the organization's available access workflows.
func (c *AccessClient) ListWorkflows(ctx context.Context) ([]accessWorkflow, error) {
	body, err := c.Do(ctx, "GET", "/api/workflows?organization="+c.OrganizationId, nil, "")
	if err != nil {
		return nil, err
	}
	var workflows []accessWorkflow
	if err := json.Unmarshal(body, &workflows); err != nil {
		return nil, fmt.Errorf("decoding access workflow list: %w", err)
	}
	return workflows, nil
}

type accessLicense struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

// ListLicenses returns the organization's available licenses.
func (c *AccessClient) ListLicenses(ctx context.Context) ([]accessLicense, error) {
	body, err := c.Do(ctx, "GET", "/api/licenses?organization="+c.OrganizationId, nil, "")
	if err != nil {
		return nil, err
	}
	var licenses []accessLicense
	if err := json.Unmarshal(body, &licenses); err != nil {
		return nil, fmt.Errorf("decoding access license list: %w", err)
	}
	return licenses, nil
}

// ValidateWorkflowLicenses confirms every id in licenseIds is attached
// to workflowId, used by the publish orchestrator's pre-flight check
// before it creates any access-management resource (spec.md §4.J).
func (c *AccessClient) ValidateWorkflowLicenses(ctx context.Context, workflowId int, licenseIds []int) (bool, error) {
	workflows, err := c.ListWorkflows(ctx)
	if err != nil {
		return false, err
	}
	found := false
	for _, wf := range workflows {
		if wf.ID == workflowId {
			found = true
			break
		}
	}
	if !found {
		return false, nil
	}
	licenses, err := c.ListLicenses(ctx)
	if err != nil {
		return false, err
	}
	have := make(map[int]bool, len(licenses))
	for _, lic := range licenses {
		have[lic.ID] = true
	}
	for _, id := range licenseIds {
		if !have[id] {
			return false, nil
		}
	}
	return true, nil
}

type accessResourceResponse struct {
	ID int `json:"id"`
}

// CreateResource registers accessionId as an access-controlled resource
// governed by workflowId, returning the resource's internal id.
func (c *AccessClient) CreateResource(ctx context.Context, accessionId string, workflowId int, licenseIds []int) (int, error) {
	payload, err := json.Marshal(map[string]any{
		"organization": map[string]string{"organization/id": c.OrganizationId},
		"resid":        accessionId,
		"licenses":     licenseIds,
	})
	if err != nil {
		return 0, err
	}
	body, err := c.Do(ctx, "POST", "/api/resources/create", payload, "application/json")
	if err != nil {
		return 0, err
	}
	var resp accessResourceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("decoding access resource response: %w", err)
	}
	return resp.ID, nil
}

type accessCatalogueItemResponse struct {
	ID int `json:"id"`
}

// CreateCatalogueItem publishes resourceId under workflowId as a
// user-facing catalogue item titled title, the final access-management
// step before a submission is considered publish-complete.
func (c *AccessClient) CreateCatalogueItem(ctx context.Context, resourceId, workflowId int, title string) (int, error) {
	payload, err := json.Marshal(map[string]any{
		"form":         nil,
		"resid":        resourceId,
		"wfid":         workflowId,
		"organization": map[string]string{"organization/id": c.OrganizationId},
		"localizations": map[string]any{
			"en": map[string]string{"title": title, "infourl": ""},
		},
	})
	if err != nil {
		return 0, err
	}
	body, err := c.Do(ctx, "POST", "/api/catalogue-items/create", payload, "application/json")
	if err != nil {
		return 0, err
	}
	var resp accessCatalogueItemResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("decoding access catalogue item response: %w", err)
	}
	return resp.ID, nil
}
