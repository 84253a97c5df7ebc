// Package httpapi exposes the import endpoints, the provider webhook and the
// notifications websocket.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/guilherme-santos/compasssync/internal"
	"github.com/guilherme-santos/compasssync/internal/syncer"
)

// Google push notification headers.
const (
	HeaderChannelID     = "X-Goog-Channel-ID"
	HeaderChannelToken  = "X-Goog-Channel-Token"
	HeaderResourceID    = "X-Goog-Resource-ID"
	HeaderResourceState = "X-Goog-Resource-State"
)

type Importer interface {
	StartAsync(_ context.Context, userID string, from internal.Date) error
	Restart(_ context.Context, userID string, full bool) error
	Status(_ context.Context, userID string) (internal.ImportStatus, string, error)
	HandleNotification(context.Context, syncer.Notification) (*syncer.Result, error)
}

type Subscriber interface {
	ServeWS(_ http.ResponseWriter, _ *http.Request, userID string) error
}

type ServerConfig struct {
	// WebhookToken, when set, must match the channel token of every
	// notification.
	WebhookToken string
}

type Server struct {
	logger   *slog.Logger
	importer Importer
	subs     Subscriber
	cfg      ServerConfig
	mux      *http.ServeMux
}

func NewServer(logger *slog.Logger, importer Importer, subs Subscriber, cfg ServerConfig) *Server {
	if logger == nil {
		logger = internal.DiscardLogger()
	}
	s := &Server{
		logger:   logger,
		importer: importer,
		subs:     subs,
		cfg:      cfg,
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.mux.HandleFunc("POST /v1/notifications/google", s.handleNotification)
	s.mux.HandleFunc("GET /v1/users/{id}/import", s.handleImportStatus)
	s.mux.HandleFunc("POST /v1/users/{id}/import", s.handleImportStart)
	s.mux.HandleFunc("POST /v1/users/{id}/import/restart", s.handleImportRestart)
	s.mux.HandleFunc("GET /v1/users/{id}/events/ws", s.handleEventsWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request) {
	n := syncer.Notification{
		ChannelID:     r.Header.Get(HeaderChannelID),
		ResourceID:    r.Header.Get(HeaderResourceID),
		ResourceState: r.Header.Get(HeaderResourceState),
	}
	if n.ChannelID == "" || n.ResourceState == "" {
		writeError(w, r, http.StatusBadRequest, "bad_request", "missing channel headers")
		return
	}
	if s.cfg.WebhookToken != "" {
		token := r.Header.Get(HeaderChannelToken)
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.WebhookToken)) != 1 {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "invalid channel token")
			return
		}
	}

	logger := s.logger.With(slog.String("channel", n.ChannelID), slog.String("state", n.ResourceState))
	res, err := s.importer.HandleNotification(r.Context(), n)
	switch {
	case errors.Is(err, internal.ErrAlreadyInProgress), errors.Is(err, internal.ErrSyncTokenExpired):
		// nothing the provider can do about it by retrying
		logger.Warn("Notification not synced", slog.String("reason", internal.Reason(err)))
	case err != nil:
		logger.Error("Notification sync failed", slog.Any("error", err))
		writeServiceError(w, r, err)
		return
	default:
		logger.Debug("Notification handled", slog.Int("processed", res.Processed))
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	status, reason, err := s.importer.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, importStatus{Status: status, Reason: reason})
}

func (s *Server) handleImportStart(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")

	var from internal.Date
	if v := r.URL.Query().Get("from"); v != "" {
		if err := from.Set(v); err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_request", "invalid from date, expected YYYY-MM-DD")
			return
		}
	}
	if err := s.importer.StartAsync(r.Context(), userID, from); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, importStatus{Status: internal.ImportImporting})
}

func (s *Server) handleImportRestart(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")

	var full bool
	if v := r.URL.Query().Get("full"); v != "" {
		var err error
		if full, err = strconv.ParseBool(v); err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_request", "invalid full flag")
			return
		}
	}
	if err := s.importer.Restart(r.Context(), userID, full); err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.handleImportStatus(w, r)
}

func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if _, _, err := s.importer.Status(r.Context(), userID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := s.subs.ServeWS(w, r, userID); err != nil {
		s.logger.Debug("Websocket closed", internal.UserAttr(userID), slog.Any("error", err))
	}
}

type importStatus struct {
	Status internal.ImportStatus `json:"status"`
	Reason string                `json:"reason,omitempty"`
}

func getCorrelationID(r *http.Request) string {
	return r.Header.Get("X-Correlation-Id")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":          code,
		"message":       message,
		"correlationId": getCorrelationID(r),
	})
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, internal.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, internal.ErrValidation):
		status, code = http.StatusBadRequest, "bad_request"
	case errors.Is(err, internal.ErrAlreadyInProgress), errors.Is(err, internal.ErrAlreadyWatching):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, internal.ErrProvider):
		status, code = http.StatusBadGateway, "provider_error"
	}
	writeError(w, r, status, code, internal.Reason(err))
}
