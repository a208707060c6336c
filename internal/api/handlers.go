package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/auth"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/consent"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/decision"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/features"
	"github.com/Mahaboob26/NEXUS-TRUSAI/pkg/types"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	// Auth guards governance mutations. Reads and decisions are open.
	Auth    auth.Authenticator
	Service *DecisionService
	Logger  *zap.Logger
}

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(limitBody)

	r.Get("/health", h.Health)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/decide", h.Decide)
		r.Get("/decisions", h.ListDecisions)
		r.Get("/decisions/summary", h.Summary)
		r.Post("/decisions/{seq}/replay", h.operator(h.Replay))

		r.Get("/consent", h.GetConsent)
		r.Put("/consent", h.SetConsent)
		r.Post("/consent/reset", h.ResetConsent)
		r.Get("/consent/access-log", h.AccessLog)

		r.Get("/governance/model", h.Model)
		r.Post("/governance/model/pause", h.operator(h.Pause))
		r.Post("/governance/model/resume", h.operator(h.Resume))
		r.Get("/governance/fairness", h.Fairness)
		r.Get("/governance/events", h.GovernanceEvents)
		r.Get("/governance/verify", h.Verify)
	})
	return r
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

type claimsKey struct{}

func (h *Handler) operator(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.Auth == nil {
			writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized", auth.ErrNotConfigured.Error()))
			return
		}
		claims, err := h.Auth.Authenticate(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized", err.Error()))
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	}
}

func actorOf(r *http.Request) string {
	if claims, ok := r.Context().Value(claimsKey{}).(auth.Claims); ok {
		return claims.Subject
	}
	return ""
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Service.Health())
}

func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	var req types.DecisionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Features) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_request", "features are required"))
		return
	}
	resp, err := h.Service.Decide(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Replay(w http.ResponseWriter, r *http.Request) {
	seq, err := strconv.ParseInt(chi.URLParam(r, "seq"), 10, 64)
	if err != nil || seq <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_request", "seq must be a positive integer"))
		return
	}
	var req types.DecisionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.Service.Replay(r.Context(), seq, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) ListDecisions(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}
	entries, err := h.Service.Decisions(r.Context(), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"decisions": entries})
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.Service.Summary(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *Handler) GetConsent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Service.ConsentState(r.Context()))
}

func (h *Handler) SetConsent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Consent map[string]bool `json:"consent"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Consent == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_request", "consent is required"))
		return
	}
	view, err := h.Service.SetConsent(r.Context(), body.Consent)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) ResetConsent(w http.ResponseWriter, r *http.Request) {
	view, err := h.Service.ResetConsent(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) AccessLog(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}
	entries, err := h.Service.AccessLog(r.Context(), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) Model(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Service.Model())
}

func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	status, err := h.Service.Pause(r.Context(), actorOf(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	status, err := h.Service.Resume(r.Context(), actorOf(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Fairness serves the latest assessment. ?refresh=true runs the monitor now.
func (h *Handler) Fairness(w http.ResponseWriter, r *http.Request) {
	refresh := false
	if raw := r.URL.Query().Get("refresh"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid_request", "refresh must be a boolean"))
			return
		}
		refresh = parsed
	}
	res, err := h.Service.FairnessReport(r.Context(), refresh)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) GovernanceEvents(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}
	events, err := h.Service.GovernanceEvents(r.Context(), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	report, err := h.Service.Verify(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func limitParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_request", "limit must be a non-negative integer"))
		return 0, false
	}
	return limit, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_json", "invalid json"))
		return false
	}
	return true
}

// writeError maps pipeline and storage errors to status codes. A paused
// model is 503 so callers can tell it apart from a scorer failure.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, decision.ErrServiceUnavailable):
		status, code = http.StatusServiceUnavailable, "service_unavailable"
	case errors.Is(err, decision.ErrScorerTimeout):
		status, code = http.StatusGatewayTimeout, "scorer_timeout"
	case errors.Is(err, decision.ErrScorerFailure):
		status, code = http.StatusBadGateway, "scorer_failure"
	case errors.Is(err, features.ErrInvalidFeature):
		status, code = http.StatusBadRequest, "invalid_feature"
	case errors.Is(err, decision.ErrDecisionNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, decision.ErrLedgerWrite):
		code = "ledger_write_failed"
	case errors.Is(err, consent.ErrConsentStorage):
		code = "consent_storage_error"
	case errors.Is(err, context.Canceled):
		status, code = 499, "cancelled"
	}
	if status >= http.StatusInternalServerError && h.Logger != nil {
		h.Logger.Error("request failed", zap.String("error_code", code), zap.Error(err))
	}
	writeJSON(w, status, errorBody(code, err.Error()))
}

func errorBody(code, msg string) map[string]string {
	return map[string]string{"error_code": code, "error": msg}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
