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

// Package extclient implements the external-service client skeleton
// (spec.md §4.I): a uniform HTTP client carrying base URL, optional
// basic auth, default headers, a per-request timeout, and a retry
// wrapper, on top of which the DOI, persistent-id, catalog,
// access-management and ingestion-admin clients are built.
package extclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/StalkR/hsts"

	"github.com/kbase/submeta/errs"
)

// RetryPolicy mirrors helpers/retry.py's exponential backoff: retry on
// connection errors or 5xx responses with delays d, d*f, d*f^2, ...,
// up to N attempts; never retry on 4xx.
type RetryPolicy struct {
	InitialWait    time.Duration
	BackoffFactor  float64
	TotalAttempts  int
}

// DefaultRetryPolicy matches spec.md §4.I's defaults: d=0.5s, f=2, N=4.
var DefaultRetryPolicy = RetryPolicy{InitialWait: 500 * time.Millisecond, BackoffFactor: 2, TotalAttempts: 4}

// Client is the uniform external-service client skeleton.
type Client struct {
	Service  string // name used in ExternalClientError/ExternalServerError, e.g. "datacite"
	BaseURL  string
	Username string
	Password string
	Headers  map[string]string
	Timeout  time.Duration
	Retry    RetryPolicy

	httpClient *http.Client
}

// New constructs a Client with the teacher's HSTS-hardened transport
// (databases/http.go's SecureHttpClient) and the default retry policy.
func New(service, baseURL string, timeout time.Duration) *Client {
	hc := &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if req.URL.Scheme == "http" {
				return fmt.Errorf("refusing to follow downgraded redirect to %s", req.URL)
			}
			return http.ErrUseLastResponse
		},
	}
	hc.Transport = hsts.New(hc.Transport)
	return &Client{
		Service:    service,
		BaseURL:    baseURL,
		Timeout:    timeout,
		Retry:      DefaultRetryPolicy,
		Headers:    make(map[string]string),
		httpClient: hc,
	}
}

// Do sends method/path/body with the retry envelope, returning the
// response body on 2xx. Connection errors and 5xx responses retry per
// Retry; 4xx responses are classified as ExternalClientError and never
// retried; exhausted 5xx retries classify as ExternalServerError;
// context deadline exceeded classifies as ExternalTimeoutError.
func (c *Client) Do(ctx context.Context, method, path string, body []byte, contentType string) ([]byte, error) {
	url := c.BaseURL + path
	wait := c.Retry.InitialWait
	attempts := c.Retry.TotalAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		respBody, status, err := c.doOnce(ctx, method, url, body, contentType)
		if err == nil && status < 400 {
			return respBody, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, errs.ExternalTimeoutError{Service: c.Service}
			}
			lastErr = err
			if attempt == attempts {
				return nil, errs.ExternalServerError{Service: c.Service, Status: 0, Reason: err.Error()}
			}
			time.Sleep(wait)
			wait = time.Duration(float64(wait) * c.Retry.BackoffFactor)
			continue
		}
		if status >= 400 && status < 500 {
			return nil, errs.ExternalClientError{Service: c.Service, Status: status, Reason: string(respBody)}
		}
		// 5xx: retry
		lastErr = fmt.Errorf("status %d", status)
		if attempt == attempts {
			return nil, errs.ExternalServerError{Service: c.Service, Status: status, Reason: string(respBody)}
		}
		time.Sleep(wait)
		wait = time.Duration(float64(wait) * c.Retry.BackoffFactor)
	}
	return nil, errs.ExternalServerError{Service: c.Service, Reason: lastErr.Error()}
}

func (c *Client) doOnce(ctx context.Context, method, url string, body []byte, contentType string) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}
	if c.Username != "" {
		req.SetBasicAuth(c.Username, c.Password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return data, resp.StatusCode, nil
}

// HealthCheck issues a lightweight GET to path and reports whether the
// service responded with a non-5xx status, used by the publish
// orchestrator's pre-flight check (spec.md §4.J).
func (c *Client) HealthCheck(ctx context.Context, path string) bool {
	_, status, err := c.doOnce(ctx, http.MethodGet, c.BaseURL+path, nil, "")
	if err != nil {
		return false
	}
	return status < 500
}
