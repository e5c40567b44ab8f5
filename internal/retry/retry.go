// Package retry implements the "refresh the bridge endpoint, then retry once"
// recovery policy shared by every remote operation.
//
// The coordinator keeps one flag per operation name recording whether an
// automatic retry was already spent since that operation last succeeded.
// A failing operation therefore gets at most one endpoint refresh and one
// re-invocation per failure episode.
package retry

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrExhausted is returned when an operation fails and its retry was already
// consumed since the last success.
var ErrExhausted = errors.New("retry already attempted since last success")

// Refresher re-discovers the controller endpoint.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Operation is a remote call guarded by the coordinator.
type Operation func(ctx context.Context) error

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not retryable (configuration errors).
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Coordinator applies the one-shot retry policy.
type Coordinator struct {
	refresher Refresher

	mu      sync.Mutex
	retried map[string]bool
}

// NewCoordinator creates a coordinator that refreshes through r.
func NewCoordinator(r Refresher) *Coordinator {
	return &Coordinator{
		refresher: r,
		retried:   make(map[string]bool),
	}
}

// Attempt runs op once. On a transient failure with the retry still
// available it refreshes the endpoint and, if that worked, runs op exactly
// once more. The second result is final.
func (c *Coordinator) Attempt(ctx context.Context, name string, op Operation) error {
	err := op(ctx)
	if err == nil {
		c.succeeded(name)
		return nil
	}
	if IsPermanent(err) || ctx.Err() != nil {
		return err
	}

	if !c.claim(name) {
		log.Warn().Err(err).Str("op", name).Msg("Too many attempts, not retrying")
		return errors.Join(err, ErrExhausted)
	}

	log.Warn().Err(err).Str("op", name).Msg("Operation failed, refreshing bridge endpoint")

	if rerr := c.refresher.Refresh(ctx); rerr != nil {
		// Refresh failure is already logged by the resolver
		return err
	}

	log.Info().Str("op", name).Msg("Retrying after endpoint refresh")

	err = op(ctx)
	if err == nil {
		c.succeeded(name)
		return nil
	}
	log.Warn().Err(err).Str("op", name).Msg("Retry failed")
	return err
}

// claim marks the retry for name as spent. Returns false if it already was.
func (c *Coordinator) claim(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.retried[name] {
		return false
	}
	c.retried[name] = true
	return true
}

func (c *Coordinator) succeeded(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.retried[name] = false
}

// Retried reports whether the retry for name has been spent.
func (c *Coordinator) Retried(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.retried[name]
}

// Snapshot returns a copy of the ledger.
func (c *Coordinator) Snapshot() map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]bool, len(c.retried))
	for name, retried := range c.retried {
		out[name] = retried
	}
	return out
}
