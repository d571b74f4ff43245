package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"riddle-league/internal/app"
	"riddle-league/internal/domain"
)

// Handler serves the JSON endpoints.
type Handler struct {
	riddles      *app.RiddleService
	competitions *app.CompetitionService
	scorer       app.Scorer
	sweeper      *app.Sweeper
	logger       *zap.Logger
}

type answerRequest struct {
	UserID string `json:"userId"`
	Text   string `json:"text"`
}

type joinRequest struct {
	UserID string `json:"userId"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) GetRiddle(w http.ResponseWriter, r *http.Request) {
	view, err := h.riddles.View(r.Context(), mux.Vars(r)["id"], r.URL.Query().Get("userId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing userId"})
		return
	}
	answer, err := h.riddles.SubmitAnswer(r.Context(), mux.Vars(r)["id"], req.UserID, req.Text)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, answer)
}

func (h *Handler) ScoreRiddle(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.scorer.ScoreRiddle(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (h *Handler) JoinCompetition(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing userId"})
		return
	}
	lb, err := h.competitions.Join(r.Context(), mux.Vars(r)["id"], req.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, lb)
}

func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	lb, err := h.competitions.Leaderboard(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyAnswered),
		errors.Is(err, domain.ErrAlreadyJoined),
		errors.Is(err, domain.ErrRiddleOpen):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRiddleClosed),
		errors.Is(err, domain.ErrRiddleNotStarted),
		errors.Is(err, domain.ErrEmptyAnswer):
		return http.StatusUnprocessableEntity
	case domain.IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
