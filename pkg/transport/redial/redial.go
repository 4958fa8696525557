// Package redial wraps a transport.Provider with exponential-backoff retry
// on connection establishment. Realtime endpoints reject dials under load;
// retrying transient failures at startup beats crashing the assistant.
package redial

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/syedmehfooz47/Friday2/pkg/transport"
)

// Default retry parameters.
const (
	defaultMaxRetries = 5
	defaultBackoff    = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

var _ transport.Provider = (*Provider)(nil)

// Provider retries the wrapped provider's Connect with exponential backoff.
// Safe for concurrent use.
type Provider struct {
	inner      transport.Provider
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
	log        *slog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithMaxRetries sets how many attempts are made before giving up.
// Default 5.
func WithMaxRetries(n int) Option {
	return func(p *Provider) { p.maxRetries = n }
}

// WithBackoff sets the initial delay between attempts; the delay doubles
// each attempt up to the maximum. Defaults 1s and 30s.
func WithBackoff(initial, max time.Duration) Option {
	return func(p *Provider) {
		p.backoff = initial
		p.maxBackoff = max
	}
}

// WithLogger sets the retry logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Provider) { p.log = log }
}

// New wraps inner with retrying connection establishment.
func New(inner transport.Provider, opts ...Option) *Provider {
	p := &Provider{
		inner:      inner,
		maxRetries: defaultMaxRetries,
		backoff:    defaultBackoff,
		maxBackoff: defaultMaxBackoff,
		log:        slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Connect dials through the wrapped provider, retrying failed attempts with
// exponential backoff. The context cancels both the individual dial and the
// wait between attempts.
func (p *Provider) Connect(ctx context.Context, cfg transport.SessionConfig) (transport.Session, error) {
	backoff := p.backoff
	var lastErr error

	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		sess, err := p.inner.Connect(ctx, cfg)
		if err == nil {
			return sess, nil
		}
		lastErr = err

		if attempt == p.maxRetries {
			break
		}
		p.log.Warn("connect failed, retrying",
			"attempt", attempt,
			"max_retries", p.maxRetries,
			"backoff", backoff,
			"err", err,
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
		if backoff > p.maxBackoff {
			backoff = p.maxBackoff
		}
	}
	return nil, fmt.Errorf("redial: connect after %d attempts: %w", p.maxRetries, lastErr)
}
