package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kubilitics/kubeluma/internal/pkg/logger"
	"github.com/kubilitics/kubeluma/internal/service"
)

// PatternController owns the pod filter.
type PatternController interface {
	SetPattern(text string) (string, error)
	ResetPattern()
	CurrentPattern() (string, bool)
}

// Handler serves the admin API.
type Handler struct {
	patterns PatternController
	log      *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(patterns PatternController, log *zap.Logger) *Handler {
	return &Handler{patterns: patterns, log: logger.OrNop(log)}
}

// SetupRoutes registers the admin routes on router. A known path with the wrong method
// gets 405.
func SetupRoutes(router *mux.Router, h *Handler) {
	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	router.HandleFunc("/set_pattern", h.SetPattern).Methods(http.MethodPost)
	router.HandleFunc("/reset_pattern", h.ResetPattern).Methods(http.MethodPost)
	router.HandleFunc("/current_pattern", h.CurrentPattern).Methods(http.MethodGet)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respondErrorWithCode(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed,
		r.Method+" is not allowed on "+r.URL.Path, logger.FromContext(r.Context()))
}

type setPatternRequest struct {
	Pattern string `json:"pattern"`
}

type setPatternResponse struct {
	OK      bool   `json:"ok"`
	Pattern string `json:"pattern"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type currentPatternResponse struct {
	Pattern *string `json:"pattern"`
}

// SetPattern handles POST /api/set_pattern.
func (h *Handler) SetPattern(w http.ResponseWriter, r *http.Request) {
	reqID := logger.FromContext(r.Context())

	var req setPatternRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErrorWithCode(w, http.StatusBadRequest, ErrCodeInvalidRequest, "request body must be JSON with a pattern field", reqID)
		return
	}

	text, err := h.patterns.SetPattern(req.Pattern)
	if err != nil {
		var ve *service.ValidationError
		if errors.As(err, &ve) {
			details := map[string]string{"reason": ve.Reason}
			respondStructuredError(w, http.StatusBadRequest, ErrCodeInvalidPattern, ve.Error(), reqID, details)
			return
		}
		h.log.Error("set pattern failed", zap.String("request_id", reqID), zap.Error(err))
		respondErrorWithCode(w, http.StatusInternalServerError, ErrCodeInternalError, "could not set pattern", reqID)
		return
	}
	respondJSON(w, http.StatusOK, setPatternResponse{OK: true, Pattern: text})
}

// ResetPattern handles POST /api/reset_pattern.
func (h *Handler) ResetPattern(w http.ResponseWriter, r *http.Request) {
	h.patterns.ResetPattern()
	respondJSON(w, http.StatusOK, okResponse{OK: true})
}

// CurrentPattern handles GET /api/current_pattern.
func (h *Handler) CurrentPattern(w http.ResponseWriter, r *http.Request) {
	var resp currentPatternResponse
	if text, ok := h.patterns.CurrentPattern(); ok {
		resp.Pattern = &text
	}
	respondJSON(w, http.StatusOK, resp)
}
