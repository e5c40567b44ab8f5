package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightswitch/internal/config"
	"github.com/dokzlo13/lightswitch/internal/dispatch"
	"github.com/dokzlo13/lightswitch/internal/hue"
	"github.com/dokzlo13/lightswitch/internal/retry"
)

// HueService wraps all bridge-facing components: client, endpoint resolver,
// retry coordinator, group cache and command dispatcher.
type HueService struct {
	cfg *config.Config

	Client     *hue.Client
	Resolver   *hue.Resolver
	Retry      *retry.Coordinator
	Groups     *hue.GroupCache
	Dispatcher *dispatch.Dispatcher
}

// NewHueService creates a new HueService with all components initialized but not connected.
func NewHueService(cfg *config.Config) *HueService {
	client := hue.NewClient(cfg.Hue.Bridge, cfg.Hue.Token, cfg.Hue.Timeout.Duration())

	var discoverer hue.Discoverer = hue.HuegoDiscoverer{}
	if cfg.Hue.DiscoveryURL != "" {
		discoverer = hue.NewHTTPDiscoverer(cfg.Hue.DiscoveryURL, cfg.Hue.Timeout.Duration())
	}

	resolver := hue.NewResolver(client, discoverer)
	coordinator := retry.NewCoordinator(resolver)
	groups := hue.NewGroupCache(client, coordinator, cfg.GroupOwner())
	dispatcher := dispatch.New(client, groups, coordinator, cfg.Light())

	return &HueService{
		cfg:        cfg,
		Client:     client,
		Resolver:   resolver,
		Retry:      coordinator,
		Groups:     groups,
		Dispatcher: dispatcher,
	}
}

// Start discovers the bridge when no static address is configured and warms
// up the group cache. Neither step is fatal; commands recover through the
// retry coordinator.
func (s *HueService) Start(ctx context.Context) {
	if s.Client.Address() == "" {
		log.Info().Msg("No bridge address configured, running discovery")
		if err := s.Resolver.Refresh(ctx); err != nil {
			log.Warn().Err(err).Msg("Startup discovery failed, commands will retry it")
		}
	}

	owner := s.Groups.Owner()
	if owner == nil {
		log.Warn().Msg("No room or zone configured, group commands are disabled")
		return
	}

	groupID, err := s.Groups.Resolve(ctx)
	if err != nil {
		log.Warn().Err(err).Str("owner", owner.String()).Msg("Group warm-up failed")
		return
	}
	log.Info().Str("owner", owner.String()).Str("group", groupID).Msg("Resolved grouped_light")
}

// Close releases all resources.
func (s *HueService) Close() {
	if s.Client != nil {
		s.Client.Close()
	}
}
