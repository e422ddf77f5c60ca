// Package api exposes the job backend over HTTP: submit a job, poll its
// record, list recent runs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"taskloom/internal/jobfile"
	"taskloom/internal/orchestrator"
	"taskloom/internal/store"
	"taskloom/pkg/models"
)

// maxBodyBytes caps job submission payloads.
const maxBodyBytes = 1 << 20

// Server routes job API requests to the store and the orchestration engine.
type Server struct {
	r        *chi.Mux
	store    *store.Store
	lookup   orchestrator.HandlerLookup
	defaults models.JobOptions
	log      zerolog.Logger
}

// NewServer builds the HTTP handler. Submitted jobs run in the background
// against the given handler lookup; unset limits fall back to defaults.
func NewServer(st *store.Store, lookup orchestrator.HandlerLookup, defaults models.JobOptions, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)

	s := &Server{r: r, store: st, lookup: lookup, defaults: defaults, log: logger}

	r.Get("/health", s.health)
	r.Post("/api/jobs", s.submitJob)
	r.Get("/api/jobs", s.listJobs)
	r.Get("/api/jobs/{id}", s.getJob)
	r.Delete("/api/jobs/{id}", s.deleteJob)

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type submitResp struct {
	ID     string           `json:"id"`
	Status models.JobStatus `json:"status"`
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	def, err := jobfile.Parse(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	job, err := def.Job(s.defaults)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Persist the initial snapshot before accepting, so the job is
	// visible even if the process dies mid-run.
	if err := s.store.SaveJob(r.Context(), job); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	go s.runJob(job)

	writeJSON(w, http.StatusAccepted, submitResp{ID: job.ID, Status: job.Status})
}

// runJob drives a submitted job to completion and persists the outcome.
func (s *Server) runJob(job *models.Job) {
	engine := orchestrator.New(job, s.lookup)
	if err := engine.Run(context.Background()); err != nil {
		s.log.Error().Err(err).Str("job", job.ID).Msg("job terminated")
	} else {
		s.log.Info().Str("job", job.ID).Str("status", string(job.Status)).
			Int("tasks", len(job.Tasks)).Msg("job finished")
	}
	if err := s.store.SaveJob(context.Background(), job); err != nil {
		s.log.Error().Err(err).Str("job", job.ID).Msg("persist job")
	}
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.store.GetJob(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	jobs, err := s.store.ListJobs(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []store.JobSummary{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) deleteJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteJob(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
