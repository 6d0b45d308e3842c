// Package web exposes the status and control API over HTTP.
package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tcooper/warden/internal/db"
	"github.com/tcooper/warden/internal/job"
	"github.com/tcooper/warden/internal/orchestrator"
	"github.com/tcooper/warden/internal/workspace"
)

// Server wires the engine, stores, and workspace manager into an HTTP API.
type Server struct {
	Engine     *orchestrator.Engine
	Store      *job.Store
	Workspaces *workspace.Manager
	Events     *db.DB // nil disables the events endpoint
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/jobs", s.handleSubmitJob)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Get("/jobs/{id}/events", s.handleJobEvents)
		r.Post("/jobs/{id}/kill", s.handleKillJob)
		r.Get("/workspaces", s.handleListWorkspaces)
		r.Get("/metrics", s.handleMetrics)
	})

	return r
}

// submitRequest is the POST /v1/jobs body.
type submitRequest struct {
	Type           string `json:"type"`
	Repo           string `json:"repo"`
	BaseBranch     string `json:"base_branch"`
	HeadBranch     string `json:"head_branch"`
	ItemNumber     int    `json:"item_number"`
	TriggerContext string `json:"trigger_context"`
	TimeoutSec     int    `json:"timeout_sec"`
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	jreq, err := toJobRequest(req)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	// The pipeline outlives the HTTP request; the engine runs it detached
	// and the caller polls or kills by the returned id.
	id, err := s.Engine.Submit(jreq)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "job_id": id})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("history") != "" {
		writeJSON(w, http.StatusOK, s.Store.History())
		return
	}
	writeJSON(w, http.StatusOK, s.Store.Active())
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if j, err := s.Store.Get(id); err == nil {
		writeJSON(w, http.StatusOK, j)
		return
	}
	if summary, ok := s.Store.Lookup(id); ok {
		writeJSON(w, http.StatusOK, summary)
		return
	}
	writeErr(w, http.StatusNotFound, fmt.Errorf("unknown job %s", id))
}

func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	if s.Events == nil {
		writeErr(w, http.StatusNotImplemented, fmt.Errorf("event log disabled"))
		return
	}
	id := chi.URLParam(r, "id")
	events, err := s.Events.JobEvents(id)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, fmt.Errorf("load events: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleKillJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Engine.Kill(id); err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "kill requested"})
}

func (s *Server) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	if s.Workspaces == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, s.Workspaces.List())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Engine.Metrics().Snapshot())
}

func toJobRequest(req submitRequest) (job.Request, error) {
	t := job.RequestType(req.Type)
	switch t {
	case job.RequestSingleIssue, job.RequestPullRequest, job.RequestInlineComment:
	default:
		return job.Request{}, fmt.Errorf("invalid request type %q", req.Type)
	}
	jreq := job.Request{
		Type:           t,
		Repo:           req.Repo,
		BaseBranch:     req.BaseBranch,
		HeadBranch:     req.HeadBranch,
		ItemNumber:     req.ItemNumber,
		TriggerContext: req.TriggerContext,
	}
	if req.TimeoutSec > 0 {
		jreq.TimeoutOverride = time.Duration(req.TimeoutSec) * time.Second
	}
	return jreq, nil
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
