// Package api provides HTTP handlers for PrimeBot endpoints.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/PrimeBot/internal/flow"
	"github.com/BTreeMap/PrimeBot/internal/models"
	"github.com/BTreeMap/PrimeBot/internal/preferences"
)

// chatHandler runs one conversation turn (POST /chat).
func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req models.ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		slog.Warn("Server.chatHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.chatHandler: validation failed", "error", err, "userID", req.UserID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	if req.MessageID != "" && s.dedup != nil {
		fresh, err := s.dedup.RecordInbound(req.MessageID, req.UserID)
		if err != nil {
			slog.Error("Server.chatHandler: dedup record failed", "error", err, "messageID", req.MessageID)
		} else if !fresh {
			slog.Info("Server.chatHandler: duplicate message", "userID", req.UserID, "messageID", req.MessageID)
			writeJSONResponse(w, http.StatusConflict, models.Error("Duplicate message"))
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()

	res, err := s.runner.Submit(ctx, req.UserID, req.Text)
	if err != nil {
		s.releaseInbound(req.MessageID)
	}
	switch {
	case errors.Is(err, flow.ErrSessionBusy):
		writeJSONResponse(w, http.StatusTooManyRequests, models.Error("Session busy, retry later"))
		return
	case errors.Is(err, flow.ErrRunnerClosed):
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Server shutting down"))
		return
	case errors.Is(err, context.DeadlineExceeded):
		slog.Warn("Server.chatHandler: turn timed out", "userID", req.UserID)
		writeJSONResponse(w, http.StatusGatewayTimeout, models.Error("Turn timed out"))
		return
	case err != nil:
		slog.Error("Server.chatHandler: turn failed", "error", err, "userID", req.UserID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process message"))
		return
	}

	if req.MessageID != "" && s.dedup != nil {
		if err := s.dedup.MarkProcessed(req.MessageID); err != nil {
			slog.Warn("Server.chatHandler: mark processed failed", "error", err, "messageID", req.MessageID)
		}
	}

	replies := res.Replies
	if replies == nil {
		replies = []models.Message{}
	}
	slog.Info("Server.chatHandler: turn complete", "userID", req.UserID, "replies", len(replies), "mode", res.Session.Mode)
	writeJSONResponse(w, http.StatusOK, models.Success(models.ChatResponse{
		SessionID: res.Session.ID,
		Messages:  replies,
		Mode:      res.Session.Mode.String(),
	}))
}

// releaseInbound lets a client retry a message whose turn never completed.
func (s *Server) releaseInbound(messageID string) {
	if messageID == "" || s.dedup == nil {
		return
	}
	if err := s.dedup.ReleaseInbound(messageID); err != nil {
		slog.Warn("Server.releaseInbound: release failed", "error", err, "messageID", messageID)
	}
}

// sessionHandler handles GET and DELETE /sessions/{userID}.
func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	switch r.Method {
	case http.MethodGet:
		sess, ok, err := s.sessions.Get(r.Context(), userID)
		if err != nil {
			slog.Error("Server.sessionHandler: load failed", "error", err, "userID", userID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
			return
		}
		if !ok {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(sess))
	case http.MethodDelete:
		ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
		defer cancel()
		err := s.runner.Reset(ctx, userID)
		switch {
		case errors.Is(err, flow.ErrSessionBusy):
			writeJSONResponse(w, http.StatusTooManyRequests, models.Error("Session busy, retry later"))
		case err != nil:
			slog.Error("Server.sessionHandler: reset failed", "error", err, "userID", userID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to reset session"))
		default:
			slog.Info("Server.sessionHandler: session reset", "userID", userID)
			writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session reset", nil))
		}
	default:
		methodNotAllowed(w, "GET, DELETE")
	}
}

// painsHandler lists tracked pains (GET /users/{userID}/pains).
func (s *Server) painsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	userID := r.PathValue("userID")
	pains, err := s.pains.List(r.Context(), userID)
	if err != nil {
		slog.Error("Server.painsHandler: list failed", "error", err, "userID", userID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list pains"))
		return
	}
	if pains == nil {
		pains = []models.PainRecord{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(pains))
}

// preferencesHandler handles GET and PUT /users/{userID}/preferences.
func (s *Server) preferencesHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	switch r.Method {
	case http.MethodGet:
		p, err := s.prefs.Get(r.Context(), userID)
		if err != nil {
			slog.Error("Server.preferencesHandler: get failed", "error", err, "userID", userID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load preferences"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(p))
	case http.MethodPut:
		var p models.Preferences
		if err := decodeJSON(r, &p); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		p.UserID = userID
		if err := s.prefs.Save(r.Context(), p); err != nil {
			if errors.Is(err, preferences.ErrInvalidValue) || errors.Is(err, models.ErrInvalidFieldName) {
				writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
				return
			}
			slog.Error("Server.preferencesHandler: save failed", "error", err, "userID", userID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save preferences"))
			return
		}
		saved, err := s.prefs.Get(r.Context(), userID)
		if err != nil {
			slog.Error("Server.preferencesHandler: reload failed", "error", err, "userID", userID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load preferences"))
			return
		}
		slog.Info("Server.preferencesHandler: preferences saved", "userID", userID)
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Preferences saved", saved))
	default:
		methodNotAllowed(w, "GET, PUT")
	}
}

// healthHandler provides a health check endpoint for monitoring and load balancing
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":          "healthy",
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
		"active_sessions": s.runner.ActiveSessions(),
	})
}
