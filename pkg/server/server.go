// Package server exposes the revision store and workflow engine over HTTP.
// The adapter is a thin JSON mapping; all business rules live in the
// services it wraps.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/progrev/internal/logging"
	domrev "github.com/dshills/progrev/pkg/domain/revision"
	"github.com/dshills/progrev/pkg/domain/types"
	domwf "github.com/dshills/progrev/pkg/domain/workflow"
	"github.com/dshills/progrev/pkg/revision"
	"github.com/dshills/progrev/pkg/rollback"
	"github.com/dshills/progrev/pkg/workflow"
)

// Server wires the engine services into an HTTP handler.
type Server struct {
	revisions   *revision.Service
	repo        domrev.Repository
	engine      *workflow.Engine
	coordinator *rollback.Coordinator
	metrics     *Metrics
	registry    *prometheus.Registry
	logger      *slog.Logger
}

// New creates an HTTP server adapter. The registry receives the engine's
// metrics and backs the /metrics endpoint.
func New(revisions *revision.Service, repo domrev.Repository, engine *workflow.Engine, coordinator *rollback.Coordinator, registry *prometheus.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Server{
		revisions:   revisions,
		repo:        repo,
		engine:      engine,
		coordinator: coordinator,
		metrics:     NewMetrics(registry),
		registry:    registry,
		logger:      logger,
	}
}

// Handler returns the chi router for the engine API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Post("/programs", s.registerProgram)
		r.Route("/programs/{programID}", func(r chi.Router) {
			r.Get("/revisions", s.listRevisions)
			r.Post("/revisions", s.createRevision)
			r.Get("/revisions/{version}", s.getRevision)
			r.Get("/revisions/{version}/content", s.getContent)
			r.Delete("/revisions/{revisionID}", s.deleteRevision)
			r.Get("/diff", s.diff)
			r.Post("/rollback", s.rollback)
		})

		r.Get("/workflow/states", s.listStates)
		r.Route("/workflow/{entityType}/{entityID}", func(r chi.Router) {
			r.Get("/transitions", s.fetchTransitions)
			r.Post("/state", s.changeState)
			r.Get("/history", s.fetchHistory)
		})
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	return r
}

// revisionDTO is the wire form of a revision.
type revisionDTO struct {
	ID           string    `json:"id"`
	ProgramID    string    `json:"program_id"`
	Version      string    `json:"version"`
	VersionMajor int       `json:"version_major"`
	VersionMinor int       `json:"version_minor"`
	VersionPatch int       `json:"version_patch"`
	ContentRef   string    `json:"content_ref"`
	Comment      string    `json:"comment,omitempty"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	IsCurrent    bool      `json:"is_current"`
}

func toRevisionDTO(rev *domrev.Revision) revisionDTO {
	return revisionDTO{
		ID:           rev.ID.String(),
		ProgramID:    rev.ProgramID.String(),
		Version:      rev.Version.String(),
		VersionMajor: rev.Version.Major,
		VersionMinor: rev.Version.Minor,
		VersionPatch: rev.Version.Patch,
		ContentRef:   rev.ContentRef.String(),
		Comment:      rev.Comment,
		CreatedBy:    rev.CreatedBy,
		CreatedAt:    rev.CreatedAt,
		IsCurrent:    rev.IsCurrent,
	}
}

func (s *Server) registerProgram(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	programID := types.ProgramID(body.ID)
	if err := s.repo.RegisterProgram(r.Context(), programID, body.Name); err != nil {
		s.writeError(w, r, err)
		return
	}

	// The engine owns the entity's state pointer when no external
	// collaborator does; registering here doubles as entity creation.
	entity := types.EntityRef{Type: rollback.EntityTypeProgram, ID: body.ID}
	if err := s.engine.InitializeEntity(r.Context(), entity); err != nil && !errors.Is(err, domwf.ErrStaleState) {
		s.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

func (s *Server) createRevision(w http.ResponseWriter, r *http.Request) {
	programID := types.ProgramID(chi.URLParam(r, "programID"))

	var body struct {
		Content string `json:"content"`
		Bump    string `json:"bump"`
		Comment string `json:"comment"`
		Author  string `json:"author"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	bump := domrev.BumpKind(body.Bump)
	if body.Bump == "" {
		bump = domrev.BumpPatch
	}

	rev, err := s.revisions.CreateRevision(r.Context(), programID, []byte(body.Content), bump, body.Comment, body.Author)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.metrics.RevisionsCreated.Inc()
	s.writeJSON(w, http.StatusCreated, toRevisionDTO(rev))
}

func (s *Server) listRevisions(w http.ResponseWriter, r *http.Request) {
	programID := types.ProgramID(chi.URLParam(r, "programID"))

	revs, err := s.revisions.ListRevisions(r.Context(), programID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	dtos := make([]revisionDTO, 0, len(revs))
	for _, rev := range revs {
		dtos = append(dtos, toRevisionDTO(rev))
	}
	s.writeJSON(w, http.StatusOK, dtos)
}

func (s *Server) getRevision(w http.ResponseWriter, r *http.Request) {
	programID := types.ProgramID(chi.URLParam(r, "programID"))

	v, err := domrev.ParseVersion(chi.URLParam(r, "version"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rev, err := s.revisions.GetRevision(r.Context(), programID, v)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toRevisionDTO(rev))
}

func (s *Server) getContent(w http.ResponseWriter, r *http.Request) {
	programID := types.ProgramID(chi.URLParam(r, "programID"))

	v, err := domrev.ParseVersion(chi.URLParam(r, "version"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	content, err := s.revisions.GetContent(r.Context(), programID, v)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(content)
}

func (s *Server) deleteRevision(w http.ResponseWriter, r *http.Request) {
	programID := types.ProgramID(chi.URLParam(r, "programID"))
	revisionID := types.RevisionID(chi.URLParam(r, "revisionID"))

	if err := s.revisions.DeleteRevision(r.Context(), programID, revisionID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) diff(w http.ResponseWriter, r *http.Request) {
	programID := types.ProgramID(chi.URLParam(r, "programID"))

	from, err := domrev.ParseVersion(r.URL.Query().Get("from"))
	if err != nil {
		http.Error(w, "invalid from version", http.StatusBadRequest)
		return
	}
	to, err := domrev.ParseVersion(r.URL.Query().Get("to"))
	if err != nil {
		http.Error(w, "invalid to version", http.StatusBadRequest)
		return
	}

	start := time.Now()
	result, err := s.revisions.Diff(r.Context(), programID, from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.metrics.DiffDuration.Observe(time.Since(start).Seconds())

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) rollback(w http.ResponseWriter, r *http.Request) {
	programID := types.ProgramID(chi.URLParam(r, "programID"))

	var body struct {
		Target        string                 `json:"target"`
		Author        string                 `json:"author"`
		ResetWorkflow bool                   `json:"reset_workflow"`
		ResetTo       string                 `json:"reset_to"`
		Reason        string                 `json:"reason"`
		GuardContext  map[string]interface{} `json:"guard_context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	target, err := domrev.ParseVersion(body.Target)
	if err != nil {
		http.Error(w, "invalid target version", http.StatusBadRequest)
		return
	}

	result, err := s.coordinator.Rollback(r.Context(), rollback.Request{
		ProgramID:     programID,
		Target:        target,
		Author:        body.Author,
		ResetWorkflow: body.ResetWorkflow,
		ResetTo:       domwf.StateCode(body.ResetTo),
		ResetReason:   body.Reason,
		GuardContext:  body.GuardContext,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.metrics.Rollbacks.Inc()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"revision":       toRevisionDTO(result.Revision),
		"workflow_reset": result.WorkflowReset,
		"workflow_state": result.WorkflowState.String(),
	})
}

func (s *Server) listStates(w http.ResponseWriter, r *http.Request) {
	states := s.engine.States()
	dtos := make([]map[string]interface{}, 0, len(states))
	for _, st := range states {
		dtos = append(dtos, map[string]interface{}{
			"code":         st.Code.String(),
			"display_name": st.DisplayName,
			"description":  st.Description,
			"is_terminal":  st.Terminal,
		})
	}
	s.writeJSON(w, http.StatusOK, dtos)
}

func (s *Server) fetchTransitions(w http.ResponseWriter, r *http.Request) {
	entity := types.EntityRef{
		Type: types.EntityType(chi.URLParam(r, "entityType")),
		ID:   chi.URLParam(r, "entityID"),
	}

	set, err := s.engine.Transitions(r.Context(), entity)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	available := make([]map[string]interface{}, 0, len(set.Available))
	for _, t := range set.Available {
		available = append(available, map[string]interface{}{
			"to":              t.To.String(),
			"requires_reason": t.RequiresReason,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"current_state":         set.CurrentState.String(),
		"available_transitions": available,
	})
}

func (s *Server) changeState(w http.ResponseWriter, r *http.Request) {
	entity := types.EntityRef{
		Type: types.EntityType(chi.URLParam(r, "entityType")),
		ID:   chi.URLParam(r, "entityID"),
	}

	var body struct {
		ToState      string                 `json:"to_state"`
		Reason       string                 `json:"reason"`
		ChangedBy    string                 `json:"changed_by"`
		GuardContext map[string]interface{} `json:"guard_context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ToState == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	newState, err := s.engine.ChangeState(r.Context(), workflow.ChangeRequest{
		Entity:       entity,
		ToState:      domwf.StateCode(body.ToState),
		Reason:       body.Reason,
		ChangedBy:    body.ChangedBy,
		GuardContext: body.GuardContext,
	})
	if err != nil {
		s.metrics.Transitions.WithLabelValues("rejected").Inc()
		s.writeError(w, r, err)
		return
	}

	s.metrics.Transitions.WithLabelValues("applied").Inc()
	s.writeJSON(w, http.StatusOK, map[string]string{"state": newState.String()})
}

func (s *Server) fetchHistory(w http.ResponseWriter, r *http.Request) {
	entity := types.EntityRef{
		Type: types.EntityType(chi.URLParam(r, "entityType")),
		ID:   chi.URLParam(r, "entityID"),
	}

	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)

	entries, err := s.engine.History(r.Context(), entity, limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	dtos := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, map[string]interface{}{
			"id":          e.ID,
			"entity_type": string(e.Entity.Type),
			"entity_id":   e.Entity.ID,
			"from_state":  e.FromState.String(),
			"to_state":    e.ToState.String(),
			"reason":      e.Reason,
			"changed_by":  e.ChangedBy,
			"created_at":  e.CreatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, dtos)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

// writeError maps domain errors to HTTP status codes. Anything outside the
// taxonomy is a 500 and gets logged with enough context to reproduce.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, domrev.ErrNotFound), errors.Is(err, domwf.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domrev.ErrInvalidOperation), errors.Is(err, domwf.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, domrev.ErrConflict), errors.Is(err, domwf.ErrStaleState):
		status = http.StatusConflict
	case errors.Is(err, domwf.ErrReasonRequired):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domwf.ErrGuardRejected):
		status = http.StatusForbidden
	case errors.Is(err, revision.ErrContentTooLarge):
		status = http.StatusRequestEntityTooLarge
	default:
		status = http.StatusInternalServerError
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}

	http.Error(w, err.Error(), status)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
