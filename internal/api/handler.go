// Package api exposes the sync pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/legalpub/internal/model"
	"github.com/sells-group/legalpub/internal/pipeline"
)

// Syncer runs a pipeline sync.
type Syncer interface {
	Sync(ctx context.Context, req pipeline.Request) (*model.SyncResult, error)
}

// Pinger reports backing store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler wires sync endpoints to the pipeline.
type Handler struct {
	syncer Syncer
	health Pinger
}

// New constructs a Handler. health may be nil.
func New(syncer Syncer, health Pinger) *Handler {
	return &Handler{syncer: syncer, health: health}
}

// Register mounts the endpoints on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.HandleHealth)
	r.Post("/v1/lawyers/{uf}/{oab}/sync", h.HandleSync)
}

// SyncRequest is the optional body of a sync call.
type SyncRequest struct {
	Name    string `json:"name"`
	Persist bool   `json:"persist"`
}

// ErrorResponse is written for failed requests.
type ErrorResponse struct {
	Error          string `json:"error"`
	Message        string `json:"message"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
}

// HandleSync handles POST /v1/lawyers/{uf}/{oab}/sync.
func (h *Handler) HandleSync(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	uf, oab := chi.URLParam(r, "uf"), chi.URLParam(r, "oab")
	log := zap.L().With(zap.String("oab", oab), zap.String("uf", uf))

	var body SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   string(pipeline.KindInvalid),
			Message: "invalid request body",
		})
		return
	}

	res, err := h.syncer.Sync(r.Context(), pipeline.Request{
		OABNumber: oab,
		UF:        uf,
		Name:      body.Name,
		Persist:   body.Persist,
	})
	if err != nil {
		status, resp := errorResponse(err)
		log.Error("api: sync failed", zap.Int("status", status), zap.Error(err))
		writeJSON(w, status, resp)
		return
	}

	log.Info("api: sync complete",
		zap.Int("processes", res.Stats.TotalProcesses),
		zap.Int("clients", res.Stats.TotalClients),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	writeJSON(w, http.StatusOK, res)
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Ping(r.Context()); err != nil {
			zap.L().Warn("api: health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func errorResponse(err error) (int, ErrorResponse) {
	var pe *pipeline.Error
	if errors.As(err, &pe) {
		return pe.HTTPStatus(), ErrorResponse{
			Error:          string(pe.Kind),
			Message:        pe.Message,
			UpstreamStatus: pe.Status,
		}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: "internal", Message: pipeline.UserMessage(err)}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}
