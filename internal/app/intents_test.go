package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/lightswitch/internal/config"
	"github.com/dokzlo13/lightswitch/internal/dispatch"
	"github.com/dokzlo13/lightswitch/internal/gesture"
	"github.com/dokzlo13/lightswitch/internal/ledger"
	"github.com/dokzlo13/lightswitch/internal/loop"
)

type fakeCommands struct {
	calls []string
}

func (f *fakeCommands) ToggleGroup(context.Context) error {
	f.calls = append(f.calls, "toggle_group")
	return nil
}

func (f *fakeCommands) ToggleLight(context.Context) error {
	f.calls = append(f.calls, "toggle_light")
	return nil
}

func (f *fakeCommands) ActivateScene(_ context.Context, id string) error {
	f.calls = append(f.calls, "scene:"+id)
	if id == "" {
		return dispatch.ErrNoScene
	}
	return nil
}

type record struct {
	eventType ledger.EventType
	episode   string
	payload   map[string]any
}

type recordingHistory struct {
	records []record
}

func (h *recordingHistory) Record(eventType ledger.EventType, episode string, payload map[string]any) {
	h.records = append(h.records, record{eventType, episode, payload})
}

func (h *recordingHistory) types() []ledger.EventType {
	var out []ledger.EventType
	for _, r := range h.records {
		out = append(out, r.eventType)
	}
	return out
}

func newIntents(single string, scenes ...string) (*IntentHandler, *fakeCommands, *recordingHistory, *loop.FakeRunner) {
	cfg := &config.Config{
		Actions: config.ActionsConfig{Single: single},
		Hue:     config.HueConfig{Scenes: scenes},
	}
	cmds := &fakeCommands{}
	history := &recordingHistory{}
	runner := loop.NewFakeRunner()
	return NewIntentHandler(cfg, runner, cmds, history), cmds, history, runner
}

func TestIntentHandler_Mapping(t *testing.T) {
	tests := []struct {
		name   string
		single string
		kind   gesture.Kind
		want   string
	}{
		{"single toggles group", config.ActionToggleGroup, gesture.SingleClick, "toggle_group"},
		{"single toggles light", config.ActionToggleLight, gesture.SingleClick, "toggle_light"},
		{"double recalls first scene", config.ActionToggleGroup, gesture.DoubleClick, "scene:scene-a"},
		{"triple recalls second scene", config.ActionToggleGroup, gesture.TripleClick, "scene:scene-b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, cmds, history, runner := newIntents(tt.single, "scene-a", "scene-b")

			h.Handle(gesture.Gesture{Kind: tt.kind, Clicks: 1, Episode: "ep"})
			assert.Empty(t, cmds.calls, "commands run off the loop")

			runner.Drain()
			assert.Equal(t, []string{tt.want}, cmds.calls)
			assert.Equal(t, []ledger.EventType{ledger.EventGesture, ledger.EventCommandOK}, history.types())
			assert.Equal(t, "ep", history.records[1].episode)
		})
	}
}

func TestIntentHandler_MissingSceneIsRecordedAsFailure(t *testing.T) {
	h, cmds, history, runner := newIntents(config.ActionToggleGroup, "scene-a")

	h.Handle(gesture.Gesture{Kind: gesture.TripleClick, Clicks: 3, Episode: "ep"})
	runner.Drain()

	assert.Equal(t, []string{"scene:"}, cmds.calls)
	require.Len(t, history.records, 2)
	assert.Equal(t, ledger.EventCommandFailed, history.records[1].eventType)
	assert.Equal(t, dispatch.OpActivateScene, history.records[1].payload["op"])
}

func TestIntentHandler_LongPressOnlyRecorded(t *testing.T) {
	h, cmds, history, runner := newIntents(config.ActionToggleGroup)

	h.Handle(gesture.Gesture{Kind: gesture.LongPress, Episode: "ep"})
	runner.Drain()

	assert.Empty(t, cmds.calls)
	require.Len(t, history.records, 1)
	assert.Equal(t, "long_press", history.records[0].payload["gesture"])
}
