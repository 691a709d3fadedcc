package extclient

import (
	"context"
	"encoding/json"
	"fmt"
)

// PIDClient implements the persistent-id service contract (spec.md
// §4.I): `create_draft_doi() -> doi`; `publish(payload-with-id)`; no
// delete operation is offered by this service.
type PIDClient struct {
	*Client
}

// NewPIDClient constructs a persistent-id service client.
func NewPIDClient(baseURL, apiKey string, timeout int64) *PIDClient {
	c := New("pid", baseURL, timeoutFromSeconds(timeout))
	c.Headers["Authorization"] = "Bearer " + apiKey
	return &PIDClient{Client: c}
}

type pidDraftResponse struct {
	DOI string `json:"doi"`
}

// CreateDraftDOI mints a draft persistent identifier.
func (c *PIDClient) CreateDraftDOI(ctx context.Context) (string, error) {
	body, err := c.Do(ctx, "POST", "/draft", nil, "")
	if err != nil {
		return "", err
	}
	var resp pidDraftResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decoding PID draft response: %w", err)
	}
	return resp.DOI, nil
}

// Publish submits payload (which must already carry the minted
// identifier) for publication.
func (c *PIDClient) Publish(ctx context.Context, payload map[string]any) error {
	wire, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = c.Do(ctx, "POST", "/publish", wire, "application/json")
	return err
}
