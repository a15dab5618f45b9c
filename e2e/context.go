package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const adminTokenHeader = "X-Admin-Token"

// TestContext holds state between test steps
type TestContext struct {
	BaseURL          string
	AdminToken       string
	HTTPClient       *http.Client
	LastResponse     *http.Response
	LastResponseBody []byte
	RememberedID     int64
}

// NewTestContext creates a new test context
func NewTestContext() *TestContext {
	baseURL := os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	token := os.Getenv("AUDIT_ADMIN_TOKEN")
	if token == "" {
		token = "dev-admin-token"
	}

	return &TestContext{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		AdminToken: token,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Do sends a request and stores the response. A nil body sends no payload.
func (tc *TestContext) Do(method, path string, body any, admin bool) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, tc.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin {
		req.Header.Set(adminTokenHeader, tc.AdminToken)
	}

	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}

	tc.LastResponse = resp
	tc.LastResponseBody, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	return nil
}

// Field walks a dotted path such as "pagination.limit" through the JSON response.
func (tc *TestContext) Field(path string) (any, error) {
	var data any
	if err := json.Unmarshal(tc.LastResponseBody, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	for key := range strings.SplitSeq(path, ".") {
		obj, ok := data.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %s: %q is not an object", path, key)
		}
		if data, ok = obj[key]; !ok {
			return nil, fmt.Errorf("field %s not found in response", path)
		}
	}
	return data, nil
}

// Events returns the "events" array of a search response.
func (tc *TestContext) Events() ([]map[string]any, error) {
	var page struct {
		Events []map[string]any `json:"events"`
	}
	if err := json.Unmarshal(tc.LastResponseBody, &page); err != nil {
		return nil, fmt.Errorf("failed to unmarshal events: %w", err)
	}
	return page.Events, nil
}

func (tc *TestContext) GetLastResponseStatus() int {
	if tc.LastResponse == nil {
		return 0
	}
	return tc.LastResponse.StatusCode
}

func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.LastResponseBody
}

func (tc *TestContext) GetRememberedID() int64 {
	return tc.RememberedID
}

func (tc *TestContext) SetRememberedID(id int64) {
	tc.RememberedID = id
}
