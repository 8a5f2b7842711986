// Package azureapi implements the directory.Client contract against the
// assistant backend's avatar endpoint.
package azureapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/real-business/concierge/pkg/provider/directory"
)

// Compile-time check that *Client satisfies [directory.Client].
var _ directory.Client = (*Client)(nil)

const avatarsPath = "/Avatar/get/all"

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// Client fetches avatar profiles from the assistant backend.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client for the given backend base URL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("azureapi: base URL must not be empty")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// envelope is the backend's list response.
type envelope struct {
	Success bool              `json:"Success"`
	Message string            `json:"Message"`
	Data    []profilePayload `json:"Data"`
}

type profilePayload struct {
	AvatarID   string `json:"AvatarId"`
	Name       string `json:"Name"`
	ExternalID string `json:"ExternalId"`
	ImageURL   string `json:"ImageUrl"`
	Default    bool   `json:"Default"`
}

// ListAvatars fetches every avatar profile. A 200 with an empty body is an
// empty directory, not an error.
func (c *Client) ListAvatars(ctx context.Context) ([]directory.AvatarProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+avatarsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("azureapi: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("azureapi: list avatars: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("azureapi: list avatars: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("azureapi: read response: %w", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, nil
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("azureapi: decode response: %w", err)
	}
	if !env.Success {
		return nil, fmt.Errorf("azureapi: list avatars: %s", env.Message)
	}

	out := make([]directory.AvatarProfile, 0, len(env.Data))
	for _, p := range env.Data {
		out = append(out, directory.AvatarProfile{
			AvatarID:   p.AvatarID,
			Name:       p.Name,
			ExternalID: p.ExternalID,
			ImageURL:   p.ImageURL,
			Default:    p.Default,
		})
	}
	return out, nil
}
