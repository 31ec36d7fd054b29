package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// APIError is a non-2xx answer from an upstream AI endpoint.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// AsAPIError extracts an *APIError from err.
func AsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// Upstream body limits. Successful answers may carry base64 images.
const (
	maxErrorBody    = 4 << 10
	maxResponseBody = 64 << 20
)

// apiClient is the HTTP client shared by a provider's calls. The limiter
// spreads requests evenly so a burst of users cannot exhaust the upstream
// quota.
type apiClient struct {
	name    string
	http    *http.Client
	limiter *rate.Limiter
}

func newAPIClient(name string, timeout time.Duration, perMinute int) *apiClient {
	c := &apiClient{name: name, http: &http.Client{Timeout: timeout}}
	if perMinute > 0 {
		burst := perMinute / 10
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst)
	}
	return c
}

// send waits for the limiter, sends req and returns the body and headers
// of a 2xx answer.
func (c *apiClient) send(ctx context.Context, req *http.Request) ([]byte, http.Header, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, nil, fmt.Errorf("%s throttle: %w", c.name, err)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s http: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, nil, &APIError{Provider: c.name, StatusCode: resp.StatusCode, Body: string(body)}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if err != nil {
		return nil, nil, fmt.Errorf("%s read body: %w", c.name, err)
	}
	if len(body) > maxResponseBody {
		return nil, nil, fmt.Errorf("%s response exceeds %d bytes", c.name, maxResponseBody)
	}
	return body, resp.Header, nil
}

// postJSON marshals body, POSTs it to url with the given headers and
// unmarshals the answer into out (when non-nil).
func (c *apiClient) postJSON(ctx context.Context, url string, headers map[string]string, body, out any) error {
	respBody, err := c.post(ctx, url, headers, body)
	if err != nil {
		return err
	}
	return c.decode(respBody, out)
}

// post is postJSON without decoding, for callers that pick fields out of
// the raw answer.
func (c *apiClient) post(ctx context.Context, url string, headers map[string]string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s marshal: %w", c.name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	respBody, _, err := c.send(ctx, req)
	return respBody, err
}

func (c *apiClient) decode(body []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s unmarshal: %w", c.name, err)
	}
	return nil
}

// get fetches url and returns the body and content type.
func (c *apiClient) get(ctx context.Context, url string, headers map[string]string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%s request: %w", c.name, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	body, header, err := c.send(ctx, req)
	if err != nil {
		return nil, "", err
	}
	return body, header.Get("Content-Type"), nil
}
