package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/nidhogg/switchyard/internal/experiment"
	"github.com/nidhogg/switchyard/internal/session"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	engine *experiment.Engine
	logger *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(engine *experiment.Engine, logger *zap.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", session.HeaderName},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Post("/evaluate", h.evaluate)
		r.Get("/experiments", h.listExperiments)
		r.Get("/experiments/{id}", h.getExperiment)
		r.Post("/experiments/{id}/force", h.forceVariant)
		r.Post("/experiments/{id}/events", h.recordEvent)
		r.Get("/assignments", h.listAssignments)
	})

	return r
}

// evaluateRequest asks for variant resolution, for one experiment or for all
// active ones when ExperimentID is empty. Path is the navigation path on the
// carrier site, used for target-page matching.
type evaluateRequest struct {
	ExperimentID string `json:"experiment_id,omitempty"`
	Path         string `json:"path,omitempty"`
}

// variantResult is one evaluated experiment result. Assigned is false when
// the session falls outside the experiment; callers fall back to their
// documented default behavior in that case.
type variantResult struct {
	ExperimentID string         `json:"experiment_id"`
	Assigned     bool           `json:"assigned"`
	VariantID    string         `json:"variant_id,omitempty"`
	VariantName  string         `json:"variant_name,omitempty"`
	Config       map[string]any `json:"config,omitempty"`
}

type evaluateResponse struct {
	SessionID string          `json:"session_id"`
	Results   []variantResult `json:"results"`
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) evaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}

	sess := h.session(w, r)
	resp := evaluateResponse{SessionID: sess.ID, Results: []variantResult{}}

	if req.ExperimentID != "" {
		resp.Results = append(resp.Results, h.evaluateOne(r, sess, req.Path, req.ExperimentID))
		writeJSON(w, http.StatusOK, resp)
		return
	}
	for _, exp := range h.engine.ListActiveExperiments() {
		resp.Results = append(resp.Results, h.evaluateOne(r, sess, req.Path, exp.ID))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) evaluateOne(r *http.Request, sess session.Session, path, experimentID string) variantResult {
	res := variantResult{ExperimentID: experimentID}
	v := h.engine.GetVariant(r.Context(), sess, path, experimentID)
	if v != nil {
		res.Assigned = true
		res.VariantID = v.ID
		res.VariantName = v.Name
		res.Config = v.Config
	}
	return res
}

func (h *Handler) listExperiments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.ListActiveExperiments())
}

func (h *Handler) getExperiment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	exp, ok := h.engine.Experiment(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "experiment not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"experiment": exp,
		"active":     h.engine.IsExperimentActive(id),
	})
}

type forceRequest struct {
	SessionID string `json:"session_id,omitempty"`
	VariantID string `json:"variant_id"`
}

func (h *Handler) forceVariant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req forceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	// The override targets an existing session; minting one here would pin
	// a variant for an id no client holds.
	sessionID := req.SessionID
	if sessionID == "" {
		if c, err := r.Cookie(session.CookieName); err == nil && c.Value != "" {
			sessionID = c.Value
		} else {
			sessionID = r.Header.Get(session.HeaderName)
		}
	}
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session id required"})
		return
	}

	err := h.engine.ForceVariant(r.Context(), sessionID, id, req.VariantID)
	if errors.Is(err, experiment.ErrExperimentNotFound) || errors.Is(err, experiment.ErrVariantNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"session_id": sessionID,
		"variant_id": req.VariantID,
	})
}

type eventRequest struct {
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties,omitempty"`
}

func (h *Handler) recordEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "event name required"})
		return
	}

	sess := h.session(w, r)
	h.engine.RecordEvent(r.Context(), sess, id, req.Name, req.Properties)
	// Fire-and-forget: accepted regardless of whether an assignment exists.
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *Handler) listAssignments(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	assignments, err := h.engine.ListAssignments(r.Context(), sess.ID)
	if err != nil {
		h.logger.Warn("list assignments failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "assignment store unavailable"})
		return
	}
	if assignments == nil {
		assignments = []experiment.Assignment{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id":  sess.ID,
		"assignments": assignments,
	})
}

// session extracts the request's session, setting the session cookie when
// the request carried no id so subsequent calls stay sticky.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) session.Session {
	sess := session.FromRequest(r)
	if c, err := r.Cookie(session.CookieName); err != nil || c.Value == "" {
		http.SetCookie(w, &http.Cookie{
			Name:     session.CookieName,
			Value:    sess.ID,
			Path:     "/",
			MaxAge:   180 * 24 * 60 * 60,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return sess
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
