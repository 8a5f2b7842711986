// Package azureapi implements chatapi.Client against the hosted assistant
// endpoint. Requests are multipart/form-data POSTs; responses use the
// {Success, Data, Message} envelope. The client enforces a hard per-attempt
// timeout and retries nominally successful responses that carry a garbled
// payload.
package azureapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/real-business/concierge/pkg/provider/chatapi"
)

// Compile-time check that *Client satisfies [chatapi.Client].
var _ chatapi.Client = (*Client)(nil)

const (
	// assistantPath is appended to the configured API base URL.
	assistantPath = "/AI/assistant"

	// defaultUserID identifies anonymous widget users to the backend.
	defaultUserID = "52533633434137384342"

	// platformTag identifies the concierge widget to the backend.
	platformTag = "EF0306CD"

	// attemptTimeout is the hard per-attempt deadline. A request that runs
	// past it resolves as the timed-out envelope, not an error, so callers
	// surface the standard retry affordance.
	attemptTimeout = 90 * time.Second
)

// timedOutResponse is returned when an attempt exceeds attemptTimeout.
var timedOutResponse = chatapi.Response{
	Success: false,
	Message: "ERROR: API timed out",
}

// exhaustedResponse is returned when every attempt produced a garbled payload.
var exhaustedResponse = chatapi.Response{
	Success: false,
	Message: "API call failed after all retries",
}

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client. Primarily used in
// tests; the per-attempt timeout is still applied via context.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Client calls the hosted assistant completion endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a completion client for the given API base URL
// (e.g. "https://developmentapis.azure-api.net/sandbox/v1/api").
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("azureapi: baseURL must not be empty")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Complete performs one conversation turn against the assistant endpoint.
//
// Attempt policy:
//   - each attempt has a 90-second deadline; exceeding it resolves as the
//     "ERROR: API timed out" envelope immediately (no further attempts),
//   - other transport or decode failures are retried up to req.Retries times
//     and returned as an error once attempts are exhausted,
//   - a successful envelope with a garbled payload is retried after
//     req.Delay; if every attempt is garbled the exhausted envelope is
//     returned.
func (c *Client) Complete(ctx context.Context, req chatapi.Request) (chatapi.Response, error) {
	attempts := req.Retries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 && req.Delay > 0 {
			select {
			case <-time.After(req.Delay):
			case <-ctx.Done():
				return chatapi.Response{}, fmt.Errorf("azureapi: %w", ctx.Err())
			}
		}

		resp, err := c.attempt(ctx, req)
		if err != nil {
			if isAttemptTimeout(ctx, err) {
				slog.Error("azureapi: request timed out", "timeout", attemptTimeout)
				return timedOutResponse, nil
			}
			if ctx.Err() != nil {
				return chatapi.Response{}, fmt.Errorf("azureapi: %w", ctx.Err())
			}
			slog.Error("azureapi: attempt failed", "attempt", i+1, "err", err)
			lastErr = err
			continue
		}

		if resp.Garbled() {
			slog.Warn("azureapi: success envelope with garbled payload, retrying",
				"attempt", i+1, "attempts", attempts)
			continue
		}

		return resp, nil
	}

	if lastErr != nil {
		return chatapi.Response{}, fmt.Errorf("azureapi: complete: %w", lastErr)
	}
	return exhaustedResponse, nil
}

// attempt performs a single POST to the assistant endpoint.
func (c *Client) attempt(ctx context.Context, req chatapi.Request) (chatapi.Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
	defer cancel()

	body, contentType, err := encodeForm(req)
	if err != nil {
		return chatapi.Response{}, fmt.Errorf("encode form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.baseURL+assistantPath, body)
	if err != nil {
		return chatapi.Response{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", contentType)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return chatapi.Response{}, fmt.Errorf("do request: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return chatapi.Response{}, fmt.Errorf("read body: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		var envelope chatapi.Response
		if jsonErr := json.Unmarshal(raw, &envelope); jsonErr == nil && envelope.Message != "" {
			return chatapi.Response{}, fmt.Errorf("status %d: %s", httpResp.StatusCode, envelope.Message)
		}
		return chatapi.Response{}, fmt.Errorf("status %d", httpResp.StatusCode)
	}

	var resp chatapi.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return chatapi.Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

// encodeForm builds the multipart/form-data body for one turn.
func encodeForm(req chatapi.Request) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)

	userID := req.UserID
	if userID == "" {
		userID = defaultUserID
	}

	fields := []struct{ name, value string }{
		{"Input", req.Input + "Language: " + req.Language},
		{"UserId", userID},
		{"BusinessId", req.BusinessID},
		{"Intent", req.Intent},
		{"SessionId", req.SessionID},
		{"Platform", platformTag},
	}
	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return nil, "", err
		}
	}

	if req.File != nil && len(req.File.Data) > 0 {
		part, err := createFilePart(mw, req.File)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(req.File.Data); err != nil {
			return nil, "", err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf, mw.FormDataContentType(), nil
}

// createFilePart writes the multipart header for the single attachment,
// preserving its content type when known.
func createFilePart(mw *multipart.Writer, f *chatapi.File) (io.Writer, error) {
	if f.ContentType == "" {
		return mw.CreateFormFile("Files", f.Name)
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="Files"; filename=%q`, f.Name))
	header.Set("Content-Type", f.ContentType)
	return mw.CreatePart(header)
}

// isAttemptTimeout reports whether err is the per-attempt deadline firing, as
// opposed to the caller's context being cancelled.
func isAttemptTimeout(parent context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil
}
