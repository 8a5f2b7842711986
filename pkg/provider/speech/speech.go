// Package speech defines the contract for streaming speech recognition
// backends.
//
// A Recognizer opens push-to-talk recognition sessions: the host feeds raw
// audio in and receives two streams of transcripts back — low-latency
// partials and authoritative finals — plus lifecycle events for cancellation
// and stop. All implementations must be safe for concurrent use.
package speech

import "context"

// Transcript is one recognition result.
type Transcript struct {
	// Text is the recognised utterance.
	Text string

	// Confidence is the provider's confidence in [0, 1], zero when the
	// provider does not report one.
	Confidence float64

	// IsFinal marks an authoritative result. Partial results may be revised
	// by later transcripts.
	IsFinal bool
}

// EventKind discriminates session lifecycle events.
type EventKind string

const (
	// EventCanceled means the provider aborted the session.
	EventCanceled EventKind = "canceled"

	// EventStopped means the provider ended the session normally, for
	// example after end-of-dictation silence.
	EventStopped EventKind = "stopped"
)

// SessionEvent is a session lifecycle notification.
type SessionEvent struct {
	Kind   EventKind
	Reason string
}

// SessionConfig describes the recognition session to open.
type SessionConfig struct {
	// Locale is the BCP-47 recognition locale, e.g. "en-US".
	Locale string
}

// SessionHandle is an open recognition session.
//
// Callers must call Close when the session is no longer needed; failing to
// do so leaks the provider connection. All methods are safe for concurrent
// use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM audio for recognition.
	// Returns an error once the session is closed.
	SendAudio(chunk []byte) error

	// Partials returns the channel of interim transcripts. Closed when the
	// session ends.
	Partials() <-chan Transcript

	// Finals returns the channel of authoritative transcripts. Closed when
	// the session ends.
	Finals() <-chan Transcript

	// Events returns the channel of lifecycle events. Closed when the
	// session ends.
	Events() <-chan SessionEvent

	// Close terminates the session and closes all channels. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Recognizer opens recognition sessions.
type Recognizer interface {
	// StartSession opens a streaming recognition session for cfg.Locale.
	// The caller owns the handle and is responsible for calling Close.
	StartSession(ctx context.Context, cfg SessionConfig) (SessionHandle, error)
}
