// Package statusapi exposes the sensor's entity states over HTTP so the
// home automation platform, or a curious operator, can scrape them.
package statusapi

import (
	"context"
	"encoding/json"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/valyala/fasthttp"

	"github.com/calewis/yahoo-matchup/internal/platform/logging"
	"github.com/calewis/yahoo-matchup/internal/sensor"
)

// SnapshotSource yields the current snapshot of every entity.
type SnapshotSource func() []sensor.Snapshot

// PayloadSource yields the latest raw provider payload per endpoint.
// Nil means debug capture is off and the debug route returns 404.
type PayloadSource func() map[string][]byte

type Server struct {
	addr     string
	source   SnapshotSource
	payloads PayloadSource
	logger   *logging.Logger
	server   *fasthttp.Server
}

type entityView struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastUpdated string         `json:"last_updated,omitempty"`
}

type statusView struct {
	Entities []entityView `json:"entities"`
}

func NewServer(addr string, source SnapshotSource, payloads PayloadSource, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Default()
	}

	s := &Server{addr: addr, source: source, payloads: payloads, logger: logger}
	s.server = &fasthttp.Server{
		Handler:      s.handle,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		Name:         "yahoo-matchup-sensor",
	}
	return s
}

// ListenAndServe blocks until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("status server listening", "addr", s.addr)
	return s.server.ListenAndServe(s.addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.ShutdownWithContext(ctx)
}

func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Path()) {
	case "/healthz":
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	case "/status":
		s.handleStatus(ctx)
	case "/debug/payloads":
		s.handleDebugPayloads(ctx)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

// handleDebugPayloads serves the latest raw provider response per
// endpoint. The payloads are already JSON, so they are embedded as is.
func (s *Server) handleDebugPayloads(ctx *fasthttp.RequestCtx) {
	if s.payloads == nil {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}
	if !ctx.IsGet() {
		ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
		return
	}

	captured := s.payloads()
	view := make(map[string]json.RawMessage, len(captured))
	for endpoint, payload := range captured {
		view[endpoint] = json.RawMessage(payload)
	}

	body, err := sonic.Marshal(view)
	if err != nil {
		s.logger.Error("encode debug payloads", "error", err)
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

func (s *Server) handleStatus(ctx *fasthttp.RequestCtx) {
	if !ctx.IsGet() {
		ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
		return
	}

	snapshots := s.source()
	view := statusView{Entities: make([]entityView, 0, len(snapshots))}
	for _, snap := range snapshots {
		item := entityView{
			EntityID:   snap.EntityID,
			State:      snap.State,
			Attributes: snap.Attributes,
		}
		if !snap.UpdatedAt.IsZero() {
			item.LastUpdated = snap.UpdatedAt.UTC().Format(time.RFC3339)
		}
		view.Entities = append(view.Entities, item)
	}

	body, err := sonic.Marshal(view)
	if err != nil {
		s.logger.Error("encode status payload", "error", err)
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}
