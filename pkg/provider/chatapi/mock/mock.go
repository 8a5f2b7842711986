// Package mock provides a configurable test double for [chatapi.Client].
//
// The mock records every request for assertion in tests and exposes exported
// fields controlling what it returns. It is safe for concurrent use.
//
// Typical usage:
//
//	client := &mock.Client{
//	    CompleteResult: chatapi.Response{
//	        Success: true,
//	        Data:    &chatapi.Data{Message: "Hi!", SessionID: "abc"},
//	    },
//	}
//	// inject client into the system under test …
//	if len(client.Requests()) != 1 {
//	    t.Fatal("expected one completion call")
//	}
package mock

import (
	"context"
	"sync"

	"github.com/real-business/concierge/pkg/provider/chatapi"
)

// Compile-time check that *Client satisfies [chatapi.Client].
var _ chatapi.Client = (*Client)(nil)

// Client is a configurable test double for [chatapi.Client].
type Client struct {
	mu       sync.Mutex
	requests []chatapi.Request

	// CompleteResult is returned by [Client.Complete] when CompleteFunc is
	// nil and CompleteErr is nil.
	CompleteResult chatapi.Response

	// CompleteErr is returned by [Client.Complete] when non-nil.
	CompleteErr error

	// CompleteFunc, when set, fully overrides the Complete behaviour.
	// Useful for per-call responses or for blocking until a signal.
	CompleteFunc func(ctx context.Context, req chatapi.Request) (chatapi.Response, error)
}

// Complete records the request and returns the configured result.
func (c *Client) Complete(ctx context.Context, req chatapi.Request) (chatapi.Response, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	fn := c.CompleteFunc
	c.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if c.CompleteErr != nil {
		return chatapi.Response{}, c.CompleteErr
	}
	return c.CompleteResult, nil
}

// Requests returns a copy of every recorded request, in call order.
func (c *Client) Requests() []chatapi.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]chatapi.Request, len(c.requests))
	copy(out, c.requests)
	return out
}
