// Package common holds helpers shared by the HTTP-based channel adapters.
package common

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultHTTPTimeout bounds a single platform API call.
const DefaultHTTPTimeout = 30 * time.Second

const maxErrorBody = 4 << 10

// APIError is a non-2xx answer from a platform API.
type APIError struct {
	Platform string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API %d: %s", e.Platform, e.Status, e.Body)
}

// NewHTTPClient returns the client used when an adapter is given none.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultHTTPTimeout}
}

// PostJSON sends body as JSON and decodes a 2xx response into out when out
// is not nil.
func PostJSON(ctx context.Context, client *http.Client, platform, url string, header http.Header, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", platform, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", platform, err)
	}
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	return Do(client, platform, req, out)
}

// Do executes req and decodes a 2xx JSON response into out.
func Do(client *http.Client, platform string, req *http.Request, out any) error {
	if client == nil {
		client = NewHTTPClient()
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", platform, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Platform: platform, Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", platform, err)
	}
	return nil
}
