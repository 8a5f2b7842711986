// Package translate defines the contract for batch text translation
// backends.
package translate

import "context"

// Translator translates batches of UI strings.
//
// Implementations must preserve order: result index i is the translation of
// texts[i], always, including on partial failure. All implementations must
// be safe for concurrent use.
type Translator interface {
	// TranslateBatch translates texts from the source language to the target
	// language in one call. On failure it returns the inputs unchanged
	// together with the error, so callers can keep rendering while logging
	// the fault.
	TranslateBatch(ctx context.Context, texts []string, from, to string) ([]string, error)
}
