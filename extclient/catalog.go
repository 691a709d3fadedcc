package extclient

import (
	"context"
	"encoding/json"
	"fmt"
)

// CatalogClient implements the catalog (discovery) service contract
// (spec.md §4.I): create_draft, update, delete_draft, publish,
// bulk_update. Its wire format is
// `{data_catalog, metadata_provider_user, metadata_provider_org,
// research_dataset:{preferred_identifier, title, description,
// access_rights, publisher, …}}`.
type CatalogClient struct {
	*Client
	ProviderUser string
	ProviderOrg  string
	DataCatalog  string
}

// NewCatalogClient constructs a catalog service client.
func NewCatalogClient(baseURL, user, pass, providerUser, providerOrg, dataCatalog string, timeout int64) *CatalogClient {
	c := New("catalog", baseURL, timeoutFromSeconds(timeout))
	c.Username = user
	c.Password = pass
	return &CatalogClient{Client: c, ProviderUser: providerUser, ProviderOrg: providerOrg, DataCatalog: dataCatalog}
}

func (c *CatalogClient) envelope(researchDataset map[string]any) map[string]any {
	return map[string]any{
		"data_catalog":           c.DataCatalog,
		"metadata_provider_user": c.ProviderUser,
		"metadata_provider_org":  c.ProviderOrg,
		"research_dataset":       researchDataset,
	}
}

type catalogCreateResponse struct {
	Identifier string `json:"identifier"`
}

// CreateDraft submits researchDataset (the catalog's research-dataset
// shape, per Mapper.Map) and returns the draft's catalog id.
func (c *CatalogClient) CreateDraft(ctx context.Context, researchDataset map[string]any) (string, error) {
	payload, err := json.Marshal(c.envelope(researchDataset))
	if err != nil {
		return "", err
	}
	body, err := c.Do(ctx, "POST", "/datasets", payload, "application/json")
	if err != nil {
		return "", err
	}
	var resp catalogCreateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decoding catalog draft response: %w", err)
	}
	return resp.Identifier, nil
}

// Update replaces a draft's research_dataset block.
func (c *CatalogClient) Update(ctx context.Context, id string, researchDataset map[string]any) error {
	payload, err := json.Marshal(c.envelope(researchDataset))
	if err != nil {
		return err
	}
	_, err = c.Do(ctx, "PUT", "/datasets/"+id, payload, "application/json")
	return err
}

// DeleteDraft removes a draft never carried through to publish, the
// publish orchestrator's step 3 compensation (spec.md §4.J).
func (c *CatalogClient) DeleteDraft(ctx context.Context, id string) error {
	_, err := c.Do(ctx, "DELETE", "/datasets/"+id, nil, "")
	return err
}

type catalogPublishResponse struct {
	PreferredIdentifier string `json:"preferred_identifier"`
}

// Publish cuts a draft over to published state, returning the catalog's
// assigned preferred identifier (recorded in the Registration row).
func (c *CatalogClient) Publish(ctx context.Context, id string) (string, error) {
	body, err := c.Do(ctx, "POST", "/datasets/"+id+"/publish", nil, "")
	if err != nil {
		return "", err
	}
	var resp catalogPublishResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decoding catalog publish response: %w", err)
	}
	return resp.PreferredIdentifier, nil
}

// BulkUpdate applies the same doiInfo-derived patch to every id in ids,
// used after every per-object draft has been created (spec.md §4.J
// step 3).
func (c *CatalogClient) BulkUpdate(ctx context.Context, ids []string, patch map[string]any) error {
	payload, err := json.Marshal(map[string]any{"identifiers": ids, "research_dataset": patch})
	if err != nil {
		return err
	}
	_, err = c.Do(ctx, "POST", "/datasets/bulk_update", payload, "application/json")
	return err
}
