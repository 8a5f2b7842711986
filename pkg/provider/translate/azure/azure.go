// Package azure implements the translate.Translator contract against the
// Azure Translator REST API (api-version 3.0).
package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/real-business/concierge/pkg/provider/translate"
)

// Compile-time check that *Translator satisfies [translate.Translator].
var _ translate.Translator = (*Translator)(nil)

// Option is a functional option for configuring a Translator.
type Option func(*Translator)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(t *Translator) { t.http = hc }
}

// Translator implements batch translation over the Azure Translator API.
type Translator struct {
	key      string
	endpoint string
	region   string
	http     *http.Client
}

// New creates a Translator. The endpoint is the resource base URL, e.g.
// "https://api.cognitive.microsofttranslator.com".
func New(key, endpoint, region string, opts ...Option) (*Translator, error) {
	if key == "" {
		return nil, errors.New("azure: subscription key must not be empty")
	}
	if endpoint == "" {
		return nil, errors.New("azure: endpoint must not be empty")
	}
	t := &Translator{
		key:      key,
		endpoint: strings.TrimRight(endpoint, "/"),
		region:   region,
		http:     http.DefaultClient,
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

type translateItem struct {
	Text string `json:"Text"`
}

type translateResult struct {
	Translations []struct {
		Text string `json:"text"`
		To   string `json:"to"`
	} `json:"translations"`
}

// TranslateBatch translates texts in one request, preserving order. Any
// failure returns the inputs unchanged plus the error.
func (t *Translator) TranslateBatch(ctx context.Context, texts []string, from, to string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	items := make([]translateItem, len(texts))
	for i, s := range texts {
		items[i] = translateItem{Text: s}
	}
	body, err := json.Marshal(items)
	if err != nil {
		return texts, fmt.Errorf("azure: marshal batch: %w", err)
	}

	q := url.Values{}
	q.Set("api-version", "3.0")
	q.Set("from", from)
	q.Set("to", to)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.endpoint+"/translate?"+q.Encode(), bytes.NewReader(body))
	if err != nil {
		return texts, fmt.Errorf("azure: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", t.key)
	if t.region != "" {
		req.Header.Set("Ocp-Apim-Subscription-Region", t.region)
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return texts, fmt.Errorf("azure: translate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return texts, fmt.Errorf("azure: translate: status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var results []translateResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return texts, fmt.Errorf("azure: decode response: %w", err)
	}
	if len(results) != len(texts) {
		return texts, fmt.Errorf("azure: got %d results for %d inputs", len(results), len(texts))
	}

	out := make([]string, len(texts))
	for i, res := range results {
		if len(res.Translations) == 0 {
			// Positional alignment over completeness: keep the original.
			out[i] = texts[i]
			continue
		}
		out[i] = res.Translations[0].Text
	}
	return out, nil
}
