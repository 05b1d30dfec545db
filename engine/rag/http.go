package rag

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/WessleyAI/docqa/engine/domain"
	"github.com/WessleyAI/docqa/pkg/mid"
	"github.com/go-chi/chi/v5"
)

// SessionHeader carries the session id when the body does not.
const SessionHeader = "X-Session-ID"

const maxBodyBytes = 1 << 20

// Asker is the part of Service the HTTP layer uses.
type Asker interface {
	Ask(ctx context.Context, req domain.AskRequest) (*Answer, error)
	Reset(ctx context.Context, sessionID string) error
}

// NewHandler routes the question API:
//
//	GET    /api/health
//	POST   /api/ask
//	DELETE /api/sessions/{id}
func NewHandler(svc Asker, log *slog.Logger, mws ...mid.Middleware) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(mws...)
	r.Get("/api/health", handleHealth)
	r.Post("/api/ask", handleAsk(svc, log))
	r.Delete("/api/sessions/{id}", handleReset(svc, log))
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, domain.ErrorResponse{Error: msg})
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleAsk(svc Asker, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.AskRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.SessionID == "" {
			req.SessionID = r.Header.Get(SessionHeader)
		}

		ans, err := svc.Ask(r.Context(), req)
		switch {
		case errors.Is(err, domain.ErrEmptyQuestion):
			writeError(w, http.StatusBadRequest, "question is required")
			return
		case errors.Is(err, ErrGenerateTimeout):
			writeError(w, http.StatusInternalServerError, "answer generation timed out")
			return
		case err != nil:
			log.Error("ask failed", "question_len", len(req.Question), "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error: "+err.Error())
			return
		}

		w.Header().Set(SessionHeader, ans.SessionID)
		writeJSON(w, http.StatusOK, domain.AskResponse{
			Answer:    ans.Text,
			Sources:   ans.Sources,
			SessionID: ans.SessionID,
		})
	}
}

func handleReset(svc Asker, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := svc.Reset(r.Context(), id); err != nil {
			log.Error("reset session failed", "session_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
