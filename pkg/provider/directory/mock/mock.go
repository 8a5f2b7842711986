// Package mock provides a configurable test double for [directory.Client].
package mock

import (
	"context"
	"sync"

	"github.com/real-business/concierge/pkg/provider/directory"
)

// Compile-time check that *Client satisfies [directory.Client].
var _ directory.Client = (*Client)(nil)

// Client is a test double for [directory.Client].
type Client struct {
	mu    sync.Mutex
	calls int

	// Profiles is returned by ListAvatars when Err is nil.
	Profiles []directory.AvatarProfile

	// Err, when non-nil, fails ListAvatars.
	Err error
}

// ListAvatars returns the configured profiles.
func (c *Client) ListAvatars(context.Context) ([]directory.AvatarProfile, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	return c.Profiles, nil
}

// Calls returns how many times ListAvatars ran.
func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
