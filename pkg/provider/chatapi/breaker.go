package chatapi

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBackendUnavailable is returned by [Breaker.Complete] while the breaker
// is open: the completion backend has failed repeatedly and calls are being
// rejected until the cool-off elapses.
var ErrBackendUnavailable = errors.New("chatapi: completion backend unavailable")

// BreakerConfig holds tuning knobs for a [Breaker].
type BreakerConfig struct {
	// MaxFailures is the number of consecutive transport failures before
	// the breaker opens. Default: 3.
	MaxFailures int

	// CoolOff is how long the breaker rejects calls before letting a probe
	// through. Default: 30s.
	CoolOff time.Duration
}

// Breaker wraps a [Client] with a circuit breaker. While the wrapped
// backend keeps failing, turns fail fast with [ErrBackendUnavailable]
// instead of making the user wait out a timeout on every message. The
// first call after the cool-off probes the backend; its outcome decides
// whether the breaker closes again.
//
// Only transport errors trip the breaker; failed envelopes and error-marked
// payloads mean the backend is reachable.
type Breaker struct {
	client      Client
	maxFailures int
	coolOff     time.Duration

	mu       sync.Mutex
	failures int
	openedAt time.Time
	probing  bool
}

// Compile-time check that *Breaker satisfies [Client].
var _ Client = (*Breaker)(nil)

// NewBreaker wraps client with a circuit breaker. Zero-value config fields
// are replaced with defaults.
func NewBreaker(client Client, cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.CoolOff <= 0 {
		cfg.CoolOff = 30 * time.Second
	}
	return &Breaker{
		client:      client,
		maxFailures: cfg.MaxFailures,
		coolOff:     cfg.CoolOff,
	}
}

// Open reports whether calls are currently being rejected.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures >= b.maxFailures && time.Since(b.openedAt) < b.coolOff
}

// Complete forwards to the wrapped client unless the breaker is open.
func (b *Breaker) Complete(ctx context.Context, req Request) (Response, error) {
	b.mu.Lock()
	if b.failures >= b.maxFailures {
		if time.Since(b.openedAt) < b.coolOff || b.probing {
			b.mu.Unlock()
			return Response{}, ErrBackendUnavailable
		}
		// Cool-off elapsed; this call is the probe.
		b.probing = true
		slog.Info("chatapi: breaker probing backend after cool-off")
	}
	b.mu.Unlock()

	resp, err := b.client.Complete(ctx, req)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
	if err != nil {
		b.failures++
		if b.failures == b.maxFailures {
			b.openedAt = time.Now()
			slog.Warn("chatapi: breaker opened, failing fast",
				"consecutive_failures", b.failures, "cool_off", b.coolOff)
		} else if b.failures > b.maxFailures {
			// Failed probe; restart the cool-off.
			b.openedAt = time.Now()
			b.failures = b.maxFailures
		}
		return resp, err
	}
	if b.failures >= b.maxFailures {
		slog.Info("chatapi: breaker closed, backend recovered")
	}
	b.failures = 0
	return resp, nil
}
