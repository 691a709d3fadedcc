package extclient

import (
	"context"
	"encoding/json"
	"fmt"
)

// DOIClient implements the DOI service contract (spec.md §4.I): a
// JSON-API shaped wire format, `{data:{type:"dois", attributes:{doi, …}}}`.
type DOIClient struct {
	*Client
	Prefix string
}

// NewDOIClient constructs a DOI service client.
func NewDOIClient(baseURL, user, key, prefix string, timeout int64) *DOIClient {
	c := New("datacite", baseURL, timeoutFromSeconds(timeout))
	c.Username = user
	c.Password = key
	return &DOIClient{Client: c, Prefix: prefix}
}

type doiDraftResponse struct {
	Data struct {
		Attributes struct {
			DOI string `json:"doi"`
			URL string `json:"url"`
		} `json:"attributes"`
	} `json:"data"`
}

// CreateDraft mints a new draft DOI under prefix (or Prefix if prefix
// is empty), returning the minted doi and its landing URL.
func (c *DOIClient) CreateDraft(ctx context.Context, prefix string) (doi, landingURL string, err error) {
	if prefix == "" {
		prefix = c.Prefix
	}
	payload, marshalErr := json.Marshal(map[string]any{
		"data": map[string]any{
			"type":       "dois",
			"attributes": map[string]any{"prefix": prefix},
		},
	})
	if marshalErr != nil {
		return "", "", marshalErr
	}
	body, err := c.Do(ctx, "POST", "/dois", payload, "application/vnd.api+json")
	if err != nil {
		return "", "", err
	}
	var resp doiDraftResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", "", fmt.Errorf("decoding DOI draft response: %w", err)
	}
	return resp.Data.Attributes.DOI, resp.Data.Attributes.URL, nil
}

// Update applies payload (the DOI-info block merged with per-object
// fields) to an existing doi.
func (c *DOIClient) Update(ctx context.Context, doi string, payload map[string]any) error {
	wire, err := json.Marshal(map[string]any{
		"data": map[string]any{"type": "dois", "attributes": payload},
	})
	if err != nil {
		return err
	}
	_, err = c.Do(ctx, "PUT", "/dois/"+doi, wire, "application/vnd.api+json")
	return err
}

// DeleteDraft removes a draft DOI that was never published, the
// publish orchestrator's step 1 compensation (spec.md §4.J).
func (c *DOIClient) DeleteDraft(ctx context.Context, doi string) error {
	_, err := c.Do(ctx, "DELETE", "/dois/"+doi, nil, "")
	return err
}
