package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightswitch/internal/config"
	"github.com/dokzlo13/lightswitch/internal/dispatch"
	"github.com/dokzlo13/lightswitch/internal/gesture"
	"github.com/dokzlo13/lightswitch/internal/ledger"
	"github.com/dokzlo13/lightswitch/internal/loop"
)

// Commands is the dispatcher surface driven by click gestures.
type Commands interface {
	ToggleGroup(ctx context.Context) error
	ToggleLight(ctx context.Context) error
	ActivateScene(ctx context.Context, sceneID string) error
}

// IntentHandler turns classified gestures into commands. It runs on the
// event loop and hands every command to the runner.
type IntentHandler struct {
	runner  loop.Runner
	cmds    Commands
	history History
	single  string
	scenes  []string
}

// NewIntentHandler creates a handler for the configured actions.
func NewIntentHandler(cfg *config.Config, runner loop.Runner, cmds Commands, history History) *IntentHandler {
	if history == nil {
		history = nopHistory{}
	}
	return &IntentHandler{
		runner:  runner,
		cmds:    cmds,
		history: history,
		single:  cfg.Actions.Single,
		scenes:  []string{cfg.Scene(0), cfg.Scene(1)},
	}
}

// Handle implements gesture.Handler.
func (h *IntentHandler) Handle(g gesture.Gesture) {
	payload := map[string]any{"gesture": g.Kind.String()}
	if g.Clicks > 0 {
		payload["clicks"] = g.Clicks
	}

	op, run := h.command(g.Kind)
	if run == nil {
		// Long-press drives the ramp directly; only the episode is recorded.
		h.runner.Async(func(context.Context) func() {
			h.history.Record(ledger.EventGesture, g.Episode, payload)
			return nil
		})
		return
	}

	h.runner.Async(func(ctx context.Context) func() {
		h.history.Record(ledger.EventGesture, g.Episode, payload)

		if err := run(ctx); err != nil {
			log.Warn().
				Err(err).
				Str("op", op).
				Str("gesture", g.Kind.String()).
				Str("episode", g.Episode).
				Msg("Command failed, gesture has no effect")
			h.history.Record(ledger.EventCommandFailed, g.Episode, map[string]any{"op": op, "error": err.Error()})
			return nil
		}

		h.history.Record(ledger.EventCommandOK, g.Episode, map[string]any{"op": op})
		return nil
	})
}

func (h *IntentHandler) command(kind gesture.Kind) (string, func(ctx context.Context) error) {
	switch kind {
	case gesture.SingleClick:
		if h.single == config.ActionToggleLight {
			return dispatch.OpToggleLight, h.cmds.ToggleLight
		}
		return dispatch.OpToggleGroup, h.cmds.ToggleGroup
	case gesture.DoubleClick:
		return dispatch.OpActivateScene, h.scene(h.scenes[0])
	case gesture.TripleClick:
		return dispatch.OpActivateScene, h.scene(h.scenes[1])
	default:
		return "", nil
	}
}

func (h *IntentHandler) scene(id string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return h.cmds.ActivateScene(ctx, id)
	}
}
