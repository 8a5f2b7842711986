// Package mock provides configurable test doubles for the speech contracts.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/real-business/concierge/pkg/provider/speech"
)

// Compile-time checks against the speech contracts.
var _ speech.Recognizer = (*Recognizer)(nil)
var _ speech.SessionHandle = (*Session)(nil)

// Recognizer is a test double for [speech.Recognizer]. It records session
// configs and hands out scripted sessions.
type Recognizer struct {
	mu       sync.Mutex
	configs  []speech.SessionConfig
	sessions []*Session

	// StartErr, when non-nil, fails StartSession.
	StartErr error
}

// StartSession records the config and returns a fresh [Session].
func (r *Recognizer) StartSession(_ context.Context, cfg speech.SessionConfig) (speech.SessionHandle, error) {
	if r.StartErr != nil {
		return nil, r.StartErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs = append(r.configs, cfg)
	s := NewSession()
	r.sessions = append(r.sessions, s)
	return s, nil
}

// Configs returns a copy of every recorded session config, in call order.
func (r *Recognizer) Configs() []speech.SessionConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]speech.SessionConfig, len(r.configs))
	copy(out, r.configs)
	return out
}

// Sessions returns every session handed out so far, in call order.
func (r *Recognizer) Sessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, len(r.sessions))
	copy(out, r.sessions)
	return out
}

// Session is a scripted recognition session. Tests drive it with the Emit
// methods.
type Session struct {
	mu     sync.Mutex
	audio  [][]byte
	closed bool

	partials chan speech.Transcript
	finals   chan speech.Transcript
	events   chan speech.SessionEvent
}

// NewSession creates a ready-to-use mock session.
func NewSession() *Session {
	return &Session{
		partials: make(chan speech.Transcript, 64),
		finals:   make(chan speech.Transcript, 16),
		events:   make(chan speech.SessionEvent, 4),
	}
}

// SendAudio records the chunk.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("mock: session is closed")
	}
	s.audio = append(s.audio, chunk)
	return nil
}

// Partials returns the interim transcript channel.
func (s *Session) Partials() <-chan speech.Transcript { return s.partials }

// Finals returns the authoritative transcript channel.
func (s *Session) Finals() <-chan speech.Transcript { return s.finals }

// Events returns the lifecycle event channel.
func (s *Session) Events() <-chan speech.SessionEvent { return s.events }

// Close closes all channels. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.partials)
		close(s.finals)
		close(s.events)
	}
	return nil
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// EmitPartial delivers an interim transcript to consumers.
func (s *Session) EmitPartial(text string) {
	s.partials <- speech.Transcript{Text: text}
}

// EmitFinal delivers an authoritative transcript to consumers.
func (s *Session) EmitFinal(text string) {
	s.finals <- speech.Transcript{Text: text, IsFinal: true}
}

// EmitEvent delivers a lifecycle event to consumers.
func (s *Session) EmitEvent(ev speech.SessionEvent) {
	s.events <- ev
}

// Audio returns every chunk recorded by SendAudio.
func (s *Session) Audio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.audio))
	copy(out, s.audio)
	return out
}
