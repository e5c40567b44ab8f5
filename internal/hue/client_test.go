package hue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/lightswitch/internal/hue/huetest"
)

func TestClient_GroupedLightRoundTrip(t *testing.T) {
	bridge := huetest.NewBridge(t)
	bridge.AddGroupedLight("gl-1", true, 42.4)
	client := NewClient(bridge.Address(), "app-key", 0)

	gl, err := client.GetGroupedLight(context.Background(), "gl-1")
	require.NoError(t, err)
	assert.True(t, gl.IsOn())
	assert.Equal(t, 42, gl.Dimming.Level())

	require.NoError(t, client.UpdateGroupedLight(context.Background(), "gl-1", SetOn(false)))
	on, _ := bridge.GroupedLight("gl-1")
	assert.False(t, on)
	assert.Equal(t, []string{`{"on":{"on":false}}`}, bridge.Puts("resource/grouped_light/gl-1"))
}

func TestClient_RecallSceneBody(t *testing.T) {
	bridge := huetest.NewBridge(t)
	bridge.AddScene("scene-a")
	client := NewClient(bridge.Address(), "app-key", 0)

	require.NoError(t, client.RecallScene(context.Background(), "scene-a"))
	assert.Equal(t, 1, bridge.SceneRecalls("scene-a"))
	assert.Equal(t, []string{`{"recall":{"action":"active"}}`}, bridge.Puts("resource/scene/scene-a"))
}

func TestClient_FailureSignals(t *testing.T) {
	tests := []struct {
		name  string
		setup func(b *huetest.Bridge)
	}{
		{"unavailable", func(b *huetest.Bridge) { b.SetFailing(true) }},
		{"malformed_json", func(b *huetest.Bridge) { b.SetMalformed(true) }},
		{"not_found", func(b *huetest.Bridge) {}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bridge := huetest.NewBridge(t)
			tt.setup(bridge)
			client := NewClient(bridge.Address(), "app-key", 0)

			_, err := client.GetLight(context.Background(), "missing")
			assert.Error(t, err)
		})
	}
}

func TestClient_UnknownAddress(t *testing.T) {
	client := NewClient("", "app-key", 0)
	_, err := client.GetGroupedLight(context.Background(), "gl-1")
	assert.Error(t, err)
}

func TestClient_SetAddressBumpsGeneration(t *testing.T) {
	client := NewClient("10.0.0.2", "app-key", 0)
	assert.Equal(t, uint64(0), client.Generation())

	client.SetAddress("10.0.0.3")
	assert.Equal(t, "10.0.0.3", client.Address())
	assert.Equal(t, uint64(1), client.Generation())
}

func TestDimming_Level(t *testing.T) {
	var d *Dimming
	assert.Equal(t, 0, d.Level())
	assert.Equal(t, 51, (&Dimming{Brightness: 50.6}).Level())
}
