// Package mock provides configurable test doubles for the videocall contracts.
package mock

import (
	"context"
	"sync"

	"github.com/real-business/concierge/pkg/provider/videocall"
)

// Compile-time checks against the videocall contracts.
var _ videocall.API = (*API)(nil)
var _ videocall.SignalDialer = (*API)(nil)
var _ videocall.SignalChannel = (*SignalChannel)(nil)

// API is a test double for [videocall.API] and [videocall.SignalDialer].
type API struct {
	mu      sync.Mutex
	created []videocall.CreateRequest
	ended   []string

	// CreateResult is returned by CreateConversation when CreateErr is nil.
	CreateResult videocall.Conversation

	// CreateErr, when non-nil, fails CreateConversation.
	CreateErr error

	// EndErr, when non-nil, fails EndConversation.
	EndErr error

	// Channel is returned by OpenSignalChannel when DialErr is nil. When nil,
	// a fresh SignalChannel is created per call and recorded in Channels.
	Channel *SignalChannel

	// DialErr, when non-nil, fails OpenSignalChannel.
	DialErr error

	// Channels records every channel handed out by OpenSignalChannel.
	Channels []*SignalChannel
}

// CreateConversation records the request and returns the configured result.
func (a *API) CreateConversation(_ context.Context, req videocall.CreateRequest) (videocall.Conversation, error) {
	a.mu.Lock()
	a.created = append(a.created, req)
	a.mu.Unlock()
	if a.CreateErr != nil {
		return videocall.Conversation{}, a.CreateErr
	}
	return a.CreateResult, nil
}

// EndConversation records the conversation id.
func (a *API) EndConversation(_ context.Context, conversationID string) error {
	a.mu.Lock()
	a.ended = append(a.ended, conversationID)
	a.mu.Unlock()
	return a.EndErr
}

// OpenSignalChannel returns the configured channel, or a fresh one.
func (a *API) OpenSignalChannel(context.Context, videocall.Conversation) (videocall.SignalChannel, error) {
	if a.DialErr != nil {
		return nil, a.DialErr
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	ch := a.Channel
	if ch == nil {
		ch = NewSignalChannel()
	}
	a.Channels = append(a.Channels, ch)
	return ch, nil
}

// Created returns a copy of every recorded create request, in call order.
func (a *API) Created() []videocall.CreateRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]videocall.CreateRequest, len(a.created))
	copy(out, a.created)
	return out
}

// Ended returns a copy of every ended conversation id, in call order.
func (a *API) Ended() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.ended))
	copy(out, a.ended)
	return out
}

// SignalChannel is a test double for [videocall.SignalChannel]. It records
// outbound sends and lets tests inject inbound app-messages.
type SignalChannel struct {
	mu         sync.Mutex
	echoes     []string
	interrupts int
	closed     bool

	// SendErr, when non-nil, fails SendEcho and SendInterrupt.
	SendErr error

	inbound chan videocall.AppMessage
}

// NewSignalChannel creates a ready-to-use mock channel.
func NewSignalChannel() *SignalChannel {
	return &SignalChannel{inbound: make(chan videocall.AppMessage, 32)}
}

// SendEcho records the echoed text.
func (c *SignalChannel) SendEcho(_ context.Context, _, text string) error {
	if c.SendErr != nil {
		return c.SendErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.echoes = append(c.echoes, text)
	return nil
}

// SendInterrupt records the interrupt.
func (c *SignalChannel) SendInterrupt(context.Context, string) error {
	if c.SendErr != nil {
		return c.SendErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interrupts++
	return nil
}

// AppMessages returns the inbound channel. Use [SignalChannel.Inject] to feed it.
func (c *SignalChannel) AppMessages() <-chan videocall.AppMessage { return c.inbound }

// Inject delivers an inbound app-message to consumers.
func (c *SignalChannel) Inject(msg videocall.AppMessage) { c.inbound <- msg }

// Close closes the inbound channel. Safe to call more than once.
func (c *SignalChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.inbound)
	}
	return nil
}

// Echoes returns a copy of every echoed text, in call order.
func (c *SignalChannel) Echoes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.echoes))
	copy(out, c.echoes)
	return out
}

// Interrupts returns how many interrupts were sent.
func (c *SignalChannel) Interrupts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interrupts
}

// Closed reports whether Close was called.
func (c *SignalChannel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
