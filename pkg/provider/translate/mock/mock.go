// Package mock provides a configurable test double for [translate.Translator].
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/real-business/concierge/pkg/provider/translate"
)

// Compile-time check that *Translator satisfies [translate.Translator].
var _ translate.Translator = (*Translator)(nil)

// Batch is one recorded TranslateBatch call.
type Batch struct {
	Texts []string
	From  string
	To    string
}

// Translator is a test double for [translate.Translator]. By default it
// prefixes every text with "<to>:" so tests can assert both passthrough and
// ordering.
type Translator struct {
	mu      sync.Mutex
	batches []Batch

	// Err, when non-nil, is returned together with the unchanged inputs.
	Err error

	// TranslateFunc, when set, fully overrides the translation behaviour.
	TranslateFunc func(ctx context.Context, texts []string, from, to string) ([]string, error)
}

// TranslateBatch records the call and returns the configured result.
func (t *Translator) TranslateBatch(ctx context.Context, texts []string, from, to string) ([]string, error) {
	t.mu.Lock()
	t.batches = append(t.batches, Batch{
		Texts: append([]string(nil), texts...),
		From:  from,
		To:    to,
	})
	fn := t.TranslateFunc
	t.mu.Unlock()

	if fn != nil {
		return fn(ctx, texts, from, to)
	}
	if t.Err != nil {
		return texts, t.Err
	}
	out := make([]string, len(texts))
	for i, s := range texts {
		out[i] = strings.ToLower(to) + ":" + s
	}
	return out, nil
}

// Batches returns a copy of every recorded call, in call order.
func (t *Translator) Batches() []Batch {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Batch, len(t.batches))
	copy(out, t.batches)
	return out
}
