// Package chatapi defines the contract for the remote chat-completion backend
// that drives the concierge conversation. Implementations live in
// subpackages (e.g. azureapi); consumers depend only on the [Client]
// interface so tests can substitute the mock implementation.
package chatapi

import (
	"context"
	"strings"
	"time"
)

// Intent tags understood by the completion backend.
const (
	IntentChat      = "chat"
	IntentInterview = "interview"
)

// File is a single attachment sent alongside a completion request.
// The backend accepts at most one file per turn.
type File struct {
	// Name is the original filename, used by the backend for type sniffing.
	Name string

	// ContentType is the MIME type of Data. May be empty; the backend falls
	// back to extension-based detection.
	ContentType string

	// Data is the raw file content.
	Data []byte
}

// Request describes one conversation turn sent to the completion backend.
type Request struct {
	// Input is the prompt text. The implementation appends the language
	// directive before sending.
	Input string

	// UserID identifies the end user. When empty, implementations substitute
	// their configured default identity.
	UserID string

	// BusinessID identifies the tenant. Empty for the concierge flow.
	BusinessID string

	// Intent is the conversation intent tag (see Intent constants).
	Intent string

	// SessionID threads multi-turn conversations. Empty on the first turn;
	// the backend assigns one in the response.
	SessionID string

	// Language is the ISO language code of the conversation (e.g. "en").
	Language string

	// Delay is the wait between internal retry attempts. Zero means retry
	// immediately.
	Delay time.Duration

	// Retries is the total number of attempts. Values below 1 are treated
	// as 1.
	Retries int

	// File is the optional single attachment for this turn.
	File *File
}

// Data is the payload of a successful completion response.
type Data struct {
	// Message is the assistant's reply text. Empty when the backend produced
	// no usable output.
	Message string `json:"Message"`

	// Type tags the reply kind. The backend sets "error" for replies that
	// must not be spoken or cached.
	Type string `json:"Type"`

	// SessionID is the conversation session assigned by the backend.
	SessionID string `json:"SessionId"`
}

// Response is the completion backend's response envelope.
type Response struct {
	// Success reports whether the backend processed the request.
	Success bool `json:"Success"`

	// Data carries the reply payload. May be nil even when Success is true.
	Data *Data `json:"Data"`

	// Message carries diagnostic text for failed requests.
	Message string `json:"Message,omitempty"`
}

// Text returns the reply text, or "" when the payload is absent.
func (r Response) Text() string {
	if r.Data == nil {
		return ""
	}
	return r.Data.Message
}

// garbledMarkers are backend failure strings that occasionally leak through a
// nominally successful envelope. A response carrying one of these (or an
// empty payload) is retried once before being surfaced to the user.
var garbledMarkers = []string{
	"invalid json",
	"local variable 'result' referenced before assignment",
	"object reference not set to an instance of an object.",
	"exception thrown",
}

// Garbled reports whether a nominally successful response carries an empty or
// known-broken payload and should be retried.
func (r Response) Garbled() bool {
	if !r.Success {
		return false
	}
	if r.Data == nil || r.Data.Message == "" {
		return true
	}
	msg := strings.ToLower(r.Data.Message)
	for _, marker := range garbledMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Client is the completion backend contract consumed by the chat turn
// controller.
type Client interface {
	// Complete performs one conversation turn. Implementations handle their
	// own timeout and bounded retry policy; a returned error means the
	// backend was unreachable or produced an unparseable response.
	Complete(ctx context.Context, req Request) (Response, error)
}
