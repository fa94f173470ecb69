package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tiptune/tiptune/internal/middleware"
	"github.com/tiptune/tiptune/internal/play"
)

// PlayHandlers provides HTTP handlers for play recording and analytics.
type PlayHandlers struct {
	service *play.Service
	logger  *slog.Logger
}

// NewPlayHandlers creates play handlers backed by the given service.
func NewPlayHandlers(service *play.Service, logger *slog.Logger) *PlayHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlayHandlers{
		service: service,
		logger:  logger,
	}
}

// recordPlayRequest is the JSON body for POST /api/plays/record.
type recordPlayRequest struct {
	TrackID        string `json:"track_id"`
	UserID         string `json:"user_id,omitempty"`
	SessionID      string `json:"session_id"`
	ListenDuration int    `json:"listen_duration"`
	CompletedFull  bool   `json:"completed_full"`
	Source         string `json:"source,omitempty"`
}

// RecordPlay handles POST /api/plays/record.
// The authenticated user ID from the bearer token takes precedence over any
// user_id in the body, so clients cannot report plays on behalf of others.
func (h *PlayHandlers) RecordPlay(w http.ResponseWriter, r *http.Request) {
	var req recordPlayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body")
		return
	}

	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		userID = req.UserID
	}

	var source play.Source
	if req.Source != "" {
		source = play.ParseSource(req.Source)
	}

	input := play.RecordPlayInput{
		TrackID:        req.TrackID,
		UserID:         userID,
		SessionID:      req.SessionID,
		ListenDuration: req.ListenDuration,
		CompletedFull:  req.CompletedFull,
		Source:         source,
	}

	result, err := h.service.RecordPlay(r.Context(), input, middleware.ClientIP(r))
	if err != nil {
		h.writeServiceError(w, r, err, "failed to record play")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// TrackStats handles GET /api/plays/track/{trackID}/stats.
// Accepts an optional ?period= query parameter (default 7d).
func (h *PlayHandlers) TrackStats(w http.ResponseWriter, r *http.Request) {
	trackID := r.PathValue("trackID")
	period := r.URL.Query().Get("period")

	stats, err := h.service.TrackStats(r.Context(), trackID, period)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to load track stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// TrackSources handles GET /api/plays/track/{trackID}/sources.
func (h *PlayHandlers) TrackSources(w http.ResponseWriter, r *http.Request) {
	trackID := r.PathValue("trackID")

	breakdown, err := h.service.TrackSources(r.Context(), trackID)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to load source breakdown")
		return
	}

	writeJSON(w, http.StatusOK, breakdown)
}

// ArtistOverview handles GET /api/plays/artist/{artistID}/overview.
func (h *PlayHandlers) ArtistOverview(w http.ResponseWriter, r *http.Request) {
	artistID := r.PathValue("artistID")

	overview, err := h.service.ArtistOverview(r.Context(), artistID)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to load artist overview")
		return
	}

	writeJSON(w, http.StatusOK, overview)
}

// TopTracks handles GET /api/plays/top-tracks.
// Accepts optional ?period= (default 7d) and ?limit= (default 20) parameters.
func (h *PlayHandlers) TopTracks(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "limit must be an integer")
			return
		}
		limit = parsed
	}

	top, err := h.service.TopTracks(r.Context(), period, limit)
	if err != nil {
		h.writeServiceError(w, r, err, "failed to load top tracks")
		return
	}

	writeJSON(w, http.StatusOK, top)
}

// writeServiceError maps service errors onto HTTP error responses.
// Validation and period errors surface their message to the client; anything
// else is logged and returned as an opaque internal error.
func (h *PlayHandlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error, logMsg string) {
	switch {
	case errors.Is(err, play.ErrValidation):
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, play.ErrInvalidPeriod):
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidPeriod)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidPeriod, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), logMsg, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
