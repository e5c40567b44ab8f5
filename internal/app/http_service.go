package app

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightswitch/internal/config"
	"github.com/dokzlo13/lightswitch/internal/dimming"
	"github.com/dokzlo13/lightswitch/internal/gesture"
	"github.com/dokzlo13/lightswitch/internal/ledger"
)

// Status is the runtime snapshot served on /status.
type Status struct {
	Bridge       string           `json:"bridge"`
	Generation   uint64           `json:"endpoint_generation"`
	Owner        string           `json:"owner,omitempty"`
	GroupedLight string           `json:"grouped_light,omitempty"`
	Retried      map[string]bool  `json:"retried"`
	Press        gesture.Snapshot `json:"press"`
	Ramp         dimming.State    `json:"ramp"`
	Source       string           `json:"source"`
	Mode         string           `json:"mode"`
	Channel      string           `json:"channel"`
}

// StatusProvider reads runtime state.
type StatusProvider interface {
	Status(ctx context.Context) (Status, error)
	Ready() bool
}

// HistoryReader lists recent ledger entries.
type HistoryReader interface {
	Recent(limit int) ([]*ledger.Entry, error)
}

// Route registers extra handlers, such as the webhook input.
type Route interface {
	Register(e *echo.Echo)
}

// HTTPService serves health, status, history and optional input routes.
type HTTPService struct {
	cfg     *config.Config
	status  StatusProvider
	history HistoryReader
	routes  []Route
	server  *http.Server
}

// NewHTTPService creates the server. history may be nil.
func NewHTTPService(cfg *config.Config, status StatusProvider, history HistoryReader, routes ...Route) *HTTPService {
	return &HTTPService{
		cfg:     cfg,
		status:  status,
		history: history,
		routes:  routes,
	}
}

// Start begins the server if enabled.
func (s *HTTPService) Start(ctx context.Context) {
	if !s.cfg.HTTP.Enabled {
		log.Debug().Msg("HTTP server disabled")
		return
	}

	go s.run(ctx)
}

// Handler builds the echo router.
func (s *HTTPService) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})
	e.GET("/ready", s.handleReady)
	e.GET("/status", s.handleStatus)
	e.GET("/history", s.handleHistory)

	for _, r := range s.routes {
		r.Register(e)
	}
	return e
}

func (s *HTTPService) handleReady(c echo.Context) error {
	if !s.status.Ready() {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

func (s *HTTPService) handleStatus(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	st, err := s.status.Status(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(http.StatusOK, st)
}

func (s *HTTPService) handleHistory(c echo.Context) error {
	if s.history == nil {
		return echo.NewHTTPError(http.StatusNotFound, "history disabled")
	}

	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = n
	}

	entries, err := s.history.Recent(limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if entries == nil {
		entries = []*ledger.Entry{}
	}
	return c.JSON(http.StatusOK, entries)
}

func (s *HTTPService) run(ctx context.Context) {
	addr := s.cfg.HTTP.Addr()

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       time.Minute,
	}

	log.Info().Str("addr", addr).Msg("Starting HTTP server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
	}()

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("HTTP server error")
	}
}
