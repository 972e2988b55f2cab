package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var ErrNoCredentials = errors.New("no credentials for platform")

// Credentials identify the account an adapter publishes as.
type Credentials struct {
	AccountID   string
	AccessToken string
}

type CredentialSource interface {
	Credentials(ctx context.Context, platform string) (Credentials, error)
}

// StaticCredentials serves fixed credentials, mostly from environment configuration.
type StaticCredentials map[string]Credentials

func (s StaticCredentials) Credentials(ctx context.Context, platform string) (Credentials, error) {
	c, ok := s[platform]
	if !ok || c.AccessToken == "" {
		return Credentials{}, fmt.Errorf("%w: %s", ErrNoCredentials, platform)
	}
	return c, nil
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 2 * time.Minute}
}

// postJSON sends payload and decodes the response into out. Non-2xx responses become errors
// that carry the response body.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload, out any) (http.Header, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error marshalling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.Header, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, truncateBody(respBody))
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.Header, fmt.Errorf("error parsing response: %w", err)
		}
	}
	return resp.Header, nil
}

func truncateBody(b []byte) string {
	const max = 300
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
