package hue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightswitch/internal/retry"
)

// OpResolveGroup is the retry ledger name of grouped_light resolution.
const OpResolveGroup = "ResolveGroup"

var (
	// ErrNoOwner is returned when neither a room nor a zone is configured.
	ErrNoOwner = errors.New("no room or zone configured")
	// ErrNoGroupedLight is returned when the owner exposes no grouped_light service.
	ErrNoGroupedLight = errors.New("no grouped_light service on owner")
)

// Attempter runs an operation under the retry policy.
type Attempter interface {
	Attempt(ctx context.Context, name string, op retry.Operation) error
}

// GroupAPI is the part of the transport used for resolution.
type GroupAPI interface {
	GetGroup(ctx context.Context, owner Owner) (*Group, error)
	Generation() uint64
}

type cachedGroup struct {
	owner      Owner
	id         string
	generation uint64
}

// GroupCache maps the configured room or zone to its grouped_light id.
// An entry is valid only for the owner and endpoint generation it was
// resolved against.
type GroupCache struct {
	api   GroupAPI
	retry Attempter
	owner *Owner

	mu     sync.RWMutex
	cached *cachedGroup
}

// NewGroupCache creates a cache for owner. A nil owner makes every
// Resolve fail with ErrNoOwner.
func NewGroupCache(api GroupAPI, attempter Attempter, owner *Owner) *GroupCache {
	return &GroupCache{
		api:   api,
		retry: attempter,
		owner: owner,
	}
}

// Owner returns the configured owner, or nil.
func (c *GroupCache) Owner() *Owner {
	return c.owner
}

// Get returns the cached id if it is still valid.
func (c *GroupCache) Get() (string, bool) {
	if c.owner == nil {
		return "", false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.cached == nil || c.cached.owner != *c.owner || c.cached.generation != c.api.Generation() {
		return "", false
	}
	return c.cached.id, true
}

// Invalidate drops the cached id.
func (c *GroupCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached = nil
}

// Resolve returns the grouped_light id for the configured owner, looking it
// up through the retry policy on a cache miss.
func (c *GroupCache) Resolve(ctx context.Context) (string, error) {
	if c.owner == nil {
		log.Warn().Msg("No rooms or zones configured, cannot resolve grouped_light")
		return "", retry.Permanent(ErrNoOwner)
	}
	if id, ok := c.Get(); ok {
		return id, nil
	}

	owner := *c.owner
	var id string
	var generation uint64

	err := c.retry.Attempt(ctx, OpResolveGroup, func(ctx context.Context) error {
		generation = c.api.Generation()
		group, err := c.api.GetGroup(ctx, owner)
		if err != nil {
			return err
		}
		rid, ok := group.FindService(ResourceTypeGroupedLight)
		if !ok {
			return retry.Permanent(fmt.Errorf("%w: %s", ErrNoGroupedLight, owner))
		}
		id = rid
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("owner", owner.String()).Msg("grouped_light unavailable")
		return "", err
	}

	c.mu.Lock()
	c.cached = &cachedGroup{owner: owner, id: id, generation: generation}
	c.mu.Unlock()

	log.Debug().Str("owner", owner.String()).Str("grouped_light", id).Msg("Resolved grouped_light")
	return id, nil
}
