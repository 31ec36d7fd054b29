package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// maxResponseBody bounds what is read from a gateway answer.
const maxResponseBody = 1 << 20

// apiClient posts JSON to a provider with a bearer secret key.
type apiClient struct {
	name    string
	baseURL string
	secret  string
	http    *http.Client
}

func newAPIClient(name, baseURL, secret string) *apiClient {
	return &apiClient{
		name:    name,
		baseURL: baseURL,
		secret:  secret,
		http:    &http.Client{Timeout: 20 * time.Second},
	}
}

// post sends body to path and returns the raw answer of a 2xx response.
// Provider error messages are surfaced in a PROVIDER_ERROR.
func (c *apiClient) post(ctx context.Context, path string, body any) ([]byte, error) {
	var payload io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s marshal: %w", c.name, err)
		}
		payload = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, payload)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Code: CodeProviderError, Reason: c.name + " unreachable", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("%s read body: %w", c.name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := gjson.GetBytes(raw, "message").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &Error{Code: CodeProviderError, Reason: fmt.Sprintf("%s status %d: %s", c.name, resp.StatusCode, msg)}
	}
	return raw, nil
}
