package dispatch

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/lightswitch/internal/hue"
	"github.com/dokzlo13/lightswitch/internal/hue/huetest"
	"github.com/dokzlo13/lightswitch/internal/retry"
)

type fixture struct {
	bridge      *huetest.Bridge
	discovery   *huetest.Discovery
	coordinator *retry.Coordinator
	dispatcher  *Dispatcher
}

func newFixture(t *testing.T, light string) *fixture {
	t.Helper()
	bridge := huetest.NewBridge(t)
	bridge.AddOwner("room", "room-1", "gl-1")
	bridge.AddGroupedLight("gl-1", true, 60)
	bridge.AddLight("light-1", false, 30)
	bridge.AddScene("scene-a")

	discovery := huetest.NewDiscovery(t)
	discovery.Announce(bridge.Address())

	client := hue.NewClient(bridge.Address(), "app-key", 0)
	coordinator := retry.NewCoordinator(hue.NewResolver(client, hue.NewHTTPDiscoverer(discovery.URL(), 0)))
	groups := hue.NewGroupCache(client, coordinator, &hue.Owner{Kind: hue.OwnerRoom, ID: "room-1"})

	return &fixture{
		bridge:      bridge,
		discovery:   discovery,
		coordinator: coordinator,
		dispatcher:  New(client, groups, coordinator, light),
	}
}

func TestToggleGroup_InvertsOnState(t *testing.T) {
	f := newFixture(t, "")

	require.NoError(t, f.dispatcher.ToggleGroup(context.Background()))
	on, _ := f.bridge.GroupedLight("gl-1")
	assert.False(t, on)

	require.NoError(t, f.dispatcher.ToggleGroup(context.Background()))
	on, _ = f.bridge.GroupedLight("gl-1")
	assert.True(t, on)

	assert.Equal(t,
		[]string{`{"on":{"on":false}}`, `{"on":{"on":true}}`},
		f.bridge.Puts("resource/grouped_light/gl-1"))
}

func TestToggleGroup_RecoversAfterRefresh(t *testing.T) {
	f := newFixture(t, "")
	_, err := f.dispatcher.ResolveGroup(context.Background())
	require.NoError(t, err)
	f.bridge.FailNext(1)

	require.NoError(t, f.dispatcher.ToggleGroup(context.Background()))
	on, _ := f.bridge.GroupedLight("gl-1")
	assert.False(t, on)
	assert.Equal(t, 1, f.discovery.Requests())
	assert.False(t, f.coordinator.Retried(OpToggleGroup))
}

func TestToggleGroup_ExhaustedRetryMakesNoRecoveryCalls(t *testing.T) {
	f := newFixture(t, "")
	_, err := f.dispatcher.ResolveGroup(context.Background())
	require.NoError(t, err)
	f.bridge.SetFailing(true)

	require.Error(t, f.dispatcher.ToggleGroup(context.Background()))
	// one refresh for the toggle, one for re-resolving against the new endpoint
	require.Equal(t, 2, f.discovery.Requests())
	require.True(t, f.coordinator.Retried(OpToggleGroup))

	f.bridge.ResetRequests()
	err = f.dispatcher.ToggleGroup(context.Background())
	require.ErrorIs(t, err, retry.ErrExhausted)
	assert.Equal(t, 2, f.discovery.Requests(), "no further discovery")
	assert.Equal(t, 1, f.bridge.Count(http.MethodGet, "resource/room/room-1"))
	assert.Len(t, f.bridge.Requests(), 1)
	assert.Empty(t, f.bridge.Puts("resource/grouped_light/gl-1"))
}

func TestToggleLight(t *testing.T) {
	f := newFixture(t, "light-1")

	require.NoError(t, f.dispatcher.ToggleLight(context.Background()))
	on, _ := f.bridge.Light("light-1")
	assert.True(t, on)
}

func TestToggleLight_NotConfigured(t *testing.T) {
	f := newFixture(t, "")

	err := f.dispatcher.ToggleLight(context.Background())
	require.ErrorIs(t, err, ErrNoLight)
	assert.True(t, retry.IsPermanent(err))
	assert.Empty(t, f.bridge.Requests())
}

func TestActivateScene(t *testing.T) {
	f := newFixture(t, "")

	require.NoError(t, f.dispatcher.ActivateScene(context.Background(), "scene-a"))
	require.NoError(t, f.dispatcher.ActivateScene(context.Background(), "scene-a"))
	assert.Equal(t, 2, f.bridge.SceneRecalls("scene-a"))
}

func TestActivateScene_EmptyIDFailsFast(t *testing.T) {
	f := newFixture(t, "")

	err := f.dispatcher.ActivateScene(context.Background(), "")
	require.ErrorIs(t, err, ErrNoScene)
	assert.Empty(t, f.bridge.Requests())
	assert.Equal(t, 0, f.discovery.Requests())
}

func TestBrightness_ReadAndWrite(t *testing.T) {
	f := newFixture(t, "")

	level, err := f.dispatcher.Brightness(context.Background(), "gl-1")
	require.NoError(t, err)
	assert.Equal(t, 60, level)

	require.NoError(t, f.dispatcher.SetBrightness(context.Background(), "gl-1", 35))
	_, bri := f.bridge.GroupedLight("gl-1")
	assert.Equal(t, 35.0, bri)
	assert.Equal(t, []string{`{"dimming":{"brightness":35}}`}, f.bridge.Puts("resource/grouped_light/gl-1"))
}

func TestSetBrightness_RejectsOutOfRange(t *testing.T) {
	f := newFixture(t, "")

	for _, level := range []int{0, -20, 101} {
		err := f.dispatcher.SetBrightness(context.Background(), "gl-1", level)
		assert.Error(t, err, "level %d", level)
		assert.True(t, retry.IsPermanent(err))
	}
	assert.Empty(t, f.bridge.Requests())
}

func TestOperationsHaveSeparateRetryBudgets(t *testing.T) {
	f := newFixture(t, "")
	_, err := f.dispatcher.ResolveGroup(context.Background())
	require.NoError(t, err)

	f.bridge.SetFailing(true)
	require.Error(t, f.dispatcher.ToggleGroup(context.Background()))
	require.True(t, f.coordinator.Retried(OpToggleGroup))

	f.bridge.SetFailing(false)
	f.bridge.FailNext(1)
	discoveries := f.discovery.Requests()
	require.NoError(t, f.dispatcher.ActivateScene(context.Background(), "scene-a"))
	assert.Equal(t, discoveries+1, f.discovery.Requests())
	assert.Equal(t, 1, f.bridge.SceneRecalls("scene-a"))
}
