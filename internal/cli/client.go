package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/tillq/pkg/types"
)

// apiClient talks to the daemon's local API and unwraps its envelopes.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(opts *RootOptions) *apiClient {
	return &apiClient{
		base: strings.TrimRight(opts.Addr, "/"),
		http: &http.Client{Timeout: opts.Timeout},
	}
}

// APIError is a non-2xx response from the daemon.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// do sends body as JSON and decodes the envelope's data into out. It returns
// the list meta when the response carries one.
func (c *apiClient) do(ctx context.Context, method, path string, body, out any) (*types.ListMeta, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reach device daemon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var envelope types.ErrorEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			return nil, &APIError{Status: resp.StatusCode, Code: "UNKNOWN", Message: resp.Status}
		}
		return nil, &APIError{Status: resp.StatusCode, Code: envelope.Error.Code, Message: envelope.Error.Message}
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
		Meta *types.ListMeta `json:"meta"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return nil, fmt.Errorf("decode data: %w", err)
		}
	}
	return envelope.Meta, nil
}
