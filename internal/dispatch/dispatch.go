// Package dispatch issues the idempotent state-changing commands a gesture
// maps to. Each command runs under its own retry ledger name so a failing
// command never exhausts another command's retry.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightswitch/internal/hue"
	"github.com/dokzlo13/lightswitch/internal/retry"
)

// Retry ledger operation names
const (
	OpToggleGroup    = "ToggleGroup"
	OpToggleLight    = "ToggleLight"
	OpActivateScene  = "ActivateScene"
	OpSetBrightness  = "SetBrightness"
	OpReadBrightness = "ReadBrightness"
)

var (
	// ErrNoScene is returned when a scene recall has no scene id.
	ErrNoScene = errors.New("no scene configured")
	// ErrNoLight is returned when single-light mode has no light configured.
	ErrNoLight = errors.New("no light configured")
	// ErrNoDimming is returned when a group reports no dimming feature.
	ErrNoDimming = errors.New("group has no dimming feature")
)

// MinLevel and MaxLevel bound absolute brightness writes.
const (
	MinLevel = 1
	MaxLevel = 100
)

// Controller is the part of the transport used for commands.
type Controller interface {
	GetGroupedLight(ctx context.Context, id string) (*hue.GroupedLight, error)
	UpdateGroupedLight(ctx context.Context, id string, update hue.Update) error
	GetLight(ctx context.Context, id string) (*hue.Light, error)
	UpdateLight(ctx context.Context, id string, update hue.Update) error
	RecallScene(ctx context.Context, id string) error
}

// GroupResolver resolves the configured owner to its grouped_light id.
type GroupResolver interface {
	Resolve(ctx context.Context) (string, error)
}

// Dispatcher executes commands against the bridge.
type Dispatcher struct {
	api    Controller
	groups GroupResolver
	retry  hue.Attempter
	light  string
}

// New creates a dispatcher. light is the single-light mode target and may
// be empty.
func New(api Controller, groups GroupResolver, attempter hue.Attempter, light string) *Dispatcher {
	return &Dispatcher{
		api:    api,
		groups: groups,
		retry:  attempter,
		light:  light,
	}
}

// ResolveGroup returns the grouped_light id of the configured owner.
func (d *Dispatcher) ResolveGroup(ctx context.Context) (string, error) {
	return d.groups.Resolve(ctx)
}

// resolve is used inside retried operations. Resolution spends its own
// retry budget, so its failure is final for the enclosing operation.
func (d *Dispatcher) resolve(ctx context.Context) (string, error) {
	id, err := d.groups.Resolve(ctx)
	if err != nil {
		return "", retry.Permanent(err)
	}
	return id, nil
}

// ToggleGroup reads the group's on state and writes its inverse.
// The read and write are not transactional.
func (d *Dispatcher) ToggleGroup(ctx context.Context) error {
	return d.retry.Attempt(ctx, OpToggleGroup, func(ctx context.Context) error {
		groupID, err := d.resolve(ctx)
		if err != nil {
			return err
		}

		gl, err := d.api.GetGroupedLight(ctx, groupID)
		if err != nil {
			return fmt.Errorf("read grouped_light: %w", err)
		}

		on := !gl.IsOn()
		if err := d.api.UpdateGroupedLight(ctx, groupID, hue.SetOn(on)); err != nil {
			return fmt.Errorf("write grouped_light: %w", err)
		}

		log.Info().Str("group", groupID).Bool("on", on).Msg("Group toggled")
		return nil
	})
}

// ToggleLight toggles the configured single light.
func (d *Dispatcher) ToggleLight(ctx context.Context) error {
	if d.light == "" {
		log.Warn().Msg("No lights configured, cannot toggle light")
		return retry.Permanent(ErrNoLight)
	}

	return d.retry.Attempt(ctx, OpToggleLight, func(ctx context.Context) error {
		light, err := d.api.GetLight(ctx, d.light)
		if err != nil {
			return fmt.Errorf("read light: %w", err)
		}

		on := !light.IsOn()
		if err := d.api.UpdateLight(ctx, d.light, hue.SetOn(on)); err != nil {
			return fmt.Errorf("write light: %w", err)
		}

		log.Info().Str("light", d.light).Bool("on", on).Msg("Light toggled")
		return nil
	})
}

// ActivateScene recalls a scene. Recall is idempotent regardless of the
// current light state.
func (d *Dispatcher) ActivateScene(ctx context.Context, sceneID string) error {
	if sceneID == "" {
		log.Warn().Msg("No scene id provided, cannot activate scene")
		return retry.Permanent(ErrNoScene)
	}

	return d.retry.Attempt(ctx, OpActivateScene, func(ctx context.Context) error {
		if err := d.api.RecallScene(ctx, sceneID); err != nil {
			return err
		}
		log.Info().Str("scene", sceneID).Msg("Scene activated")
		return nil
	})
}

// Brightness reads the live brightness of a group.
func (d *Dispatcher) Brightness(ctx context.Context, groupID string) (int, error) {
	var level int
	err := d.retry.Attempt(ctx, OpReadBrightness, func(ctx context.Context) error {
		gl, err := d.api.GetGroupedLight(ctx, groupID)
		if err != nil {
			return err
		}
		if gl.Dimming == nil {
			return retry.Permanent(fmt.Errorf("%w: %s", ErrNoDimming, groupID))
		}
		level = gl.Dimming.Level()
		return nil
	})
	return level, err
}

// SetBrightness writes an absolute brightness. Callers clamp level to
// [MinLevel, MaxLevel]; anything else is rejected.
func (d *Dispatcher) SetBrightness(ctx context.Context, groupID string, level int) error {
	if level < MinLevel || level > MaxLevel {
		return retry.Permanent(fmt.Errorf("brightness %d out of range", level))
	}

	return d.retry.Attempt(ctx, OpSetBrightness, func(ctx context.Context) error {
		if err := d.api.UpdateGroupedLight(ctx, groupID, hue.SetBrightness(level)); err != nil {
			return err
		}
		log.Debug().Str("group", groupID).Int("level", level).Msg("Brightness set")
		return nil
	})
}
