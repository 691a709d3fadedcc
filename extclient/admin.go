package extclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/kbase/submeta/frictionless"
)

// timeoutFromSeconds converts a config-supplied integer number of
// seconds to a time.Duration, defaulting to 30s when unset.
func timeoutFromSeconds(seconds int64) time.Duration {
	if seconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(seconds) * time.Second
}

// AdminClient implements the ingestion-admin service contract (spec.md
// §4.I): ingest_file, list_user_files, assign_accession.
type AdminClient struct {
	*Client
}

// NewAdminClient constructs an ingestion-admin service client.
func NewAdminClient(baseURL string, timeout int64) *AdminClient {
	return &AdminClient{Client: New("admin", baseURL, timeoutFromSeconds(timeout))}
}

// IngestFile requests out-of-band ingestion of path on behalf of user.
func (c *AdminClient) IngestFile(ctx context.Context, user, path string) error {
	payload, err := json.Marshal(map[string]string{"user": user, "path": path})
	if err != nil {
		return err
	}
	_, err = c.Do(ctx, "POST", "/ingest", payload, "application/json")
	return err
}

// IngestManifest hands the admin service a Frictionless data package
// describing every file attached to a submission, ahead of the
// per-file ingestion requests triggered by the publish orchestrator's
// ingestion-trigger step (spec.md §4.J step 6).
func (c *AdminClient) IngestManifest(ctx context.Context, user string, pkg frictionless.DataPackage) error {
	payload, err := json.Marshal(struct {
		User    string                    `json:"user"`
		Package frictionless.DataPackage  `json:"dataPackage"`
	}{User: user, Package: pkg})
	if err != nil {
		return err
	}
	_, err = c.Do(ctx, "POST", "/ingest/manifest", payload, "application/json")
	return err
}

// ListUserFiles lists the files known to the admin service for user.
func (c *AdminClient) ListUserFiles(ctx context.Context, user string) ([]string, error) {
	body, err := c.Do(ctx, "GET", "/files?user="+url.QueryEscape(user), nil, "")
	if err != nil {
		return nil, err
	}
	var files []string
	if err := json.Unmarshal(body, &files); err != nil {
		return nil, fmt.Errorf("decoding admin file list: %w", err)
	}
	return files, nil
}

// AssignAccession attaches accessionId to a previously-ingested file.
func (c *AdminClient) AssignAccession(ctx context.Context, user, path, accessionId string) error {
	payload, err := json.Marshal(map[string]string{"user": user, "path": path, "accessionId": accessionId})
	if err != nil {
		return err
	}
	_, err = c.Do(ctx, "POST", "/assign-accession", payload, "application/json")
	return err
}
