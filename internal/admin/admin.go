// Package admin provides a minimal operational HTTP surface: a liveness
// check and a snapshot of current participants. This is ambient
// operability, not a component spec.md calls for — no control-protocol
// traffic flows through it.
package admin

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"lanhub/internal/registry"
)

// Server wraps an Echo app exposing /healthz and /api/status.
type Server struct {
	echo *echo.Echo
	reg  *registry.Registry
}

// New constructs the admin HTTP app.
func New(reg *registry.Registry) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, reg: reg}
	e.HTTPErrorHandler = jsonErrorHandler

	e.GET("/healthz", s.handleHealth)
	e.GET("/api/status", s.handleStatus)
	return s
}

// Echo exposes the underlying app, primarily for tests via httptest.
func (s *Server) Echo() *echo.Echo { return s.echo }

// Start serves on addr until the process exits or Shutdown is called.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

func (s *Server) Shutdown() error {
	return s.echo.Close()
}

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok"})
}

type statusResponse struct {
	ParticipantCount int                         `json:"participant_count"`
	Participants     []registry.Participant      `json:"participants"`
}

func (s *Server) handleStatus(c echo.Context) error {
	snap := s.reg.Snapshot()
	return c.JSON(http.StatusOK, statusResponse{
		ParticipantCount: len(snap),
		Participants:     snap,
	})
}

// jsonErrorHandler normalizes every error response to {"error": "..."}."
func jsonErrorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}
	if !c.Response().Committed {
		_ = c.JSON(code, map[string]string{"error": msg})
	}
}
