// Package api serves the newscast HTTP API: starting, watching, and
// cancelling generation jobs, browsing finished podcasts, and listing voices.
//
// All responses are JSON except the audio download and the job event stream,
// which is served as text/event-stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrWong99/newscast/internal/generation"
	"github.com/MrWong99/newscast/internal/health"
	"github.com/MrWong99/newscast/internal/observe"
	"github.com/MrWong99/newscast/pkg/provider/tts"
	"github.com/MrWong99/newscast/pkg/store"
	"github.com/MrWong99/newscast/pkg/types"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxBodyBytes     = 1 << 16
)

// Jobs is the part of [generation.Manager] the API drives.
type Jobs interface {
	Start(ctx context.Context, topic string) (generation.Snapshot, error)
	Cancel(id string) error
	Snapshot(id string) (generation.Snapshot, error)
	List() []generation.Snapshot
	Watch(id string) (<-chan generation.Snapshot, func(), error)
	Topics() []generation.Topic
}

var _ Jobs = (*generation.Manager)(nil)

// Option configures a Server.
type Option func(*Server)

// WithVoices sets the provider whose catalogue /api/v1/voices lists.
func WithVoices(p tts.Provider) Option {
	return func(s *Server) { s.voices = p }
}

// WithHealth mounts /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithMetrics sets the metrics used by the request middleware. Defaults to
// observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// Server is the HTTP API. It implements http.Handler.
type Server struct {
	jobs           Jobs
	store          store.Store
	voices         tts.Provider
	health         *health.Handler
	metricsHandler http.Handler
	metrics        *observe.Metrics
	log            *slog.Logger
	router         chi.Router
}

// NewServer builds the router.
func NewServer(jobs Jobs, st store.Store, opts ...Option) *Server {
	s := &Server{jobs: jobs, store: st}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.log == nil {
		s.log = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(observe.Middleware(s.metrics,
		observe.WithRequestLogger(s.log),
		observe.WithQuietPaths("/healthz", "/readyz", "/metrics"),
	))

	if s.health != nil {
		s.health.Register(r)
	}
	if s.metricsHandler != nil {
		r.Handle("/metrics", s.metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/topics", s.handleListTopics)

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.handleListJobs)
			r.Post("/", s.handleStartJob)
			r.Get("/{jobID}", s.handleGetJob)
			r.Delete("/{jobID}", s.handleCancelJob)
			r.Get("/{jobID}/events", s.handleJobEvents)
		})

		r.Route("/podcasts", func(r chi.Router) {
			r.Get("/", s.handleListPodcasts)
			r.Get("/{podcastID}", s.handleGetPodcast)
			r.Get("/{podcastID}/audio", s.handlePodcastAudio)
		})

		r.Get("/voices", s.handleListVoices)
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ── Topics ────────────────────────────────────────────────────────────────────

type topicResponse struct {
	Name    string `json:"name"`
	Title   string `json:"title"`
	Sources int    `json:"sources"`
}

func (s *Server) handleListTopics(w http.ResponseWriter, _ *http.Request) {
	topics := s.jobs.Topics()
	out := make([]topicResponse, len(topics))
	for i, t := range topics {
		out[i] = topicResponse{Name: t.Name, Title: t.Title, Sources: len(t.Sources)}
	}
	writeJSON(w, http.StatusOK, out)
}

// ── Jobs ──────────────────────────────────────────────────────────────────────

type startJobRequest struct {
	Topic string `json:"topic"`
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	var req startJobRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Topic == "" {
		writeError(w, http.StatusBadRequest, "topic is required")
		return
	}

	snap, err := s.jobs.Start(r.Context(), req.Topic)
	switch {
	case errors.Is(err, generation.ErrUnknownTopic):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, generation.ErrTopicBusy):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, generation.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		s.log.Error("api: start job", "topic", req.Topic, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		w.Header().Set("Location", "/api/v1/jobs/"+snap.JobID)
		writeJSON(w, http.StatusAccepted, snap)
	}
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.jobs.List())
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	snap, err := s.jobs.Snapshot(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	err := s.jobs.Cancel(id)
	switch {
	case errors.Is(err, generation.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found")
		return
	case errors.Is(err, generation.ErrJobFinished):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.log.Error("api: cancel job", "job_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	snap, _ := s.jobs.Snapshot(id)
	writeJSON(w, http.StatusAccepted, snap)
}

// handleJobEvents streams snapshots as server-sent events until the job ends
// or the client goes away.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	updates, stop, err := s.jobs.Watch(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	defer stop()

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", snap.Stage, data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// ── Podcasts ──────────────────────────────────────────────────────────────────

func (s *Server) handleListPodcasts(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	podcasts, err := s.store.List(r.Context(), r.URL.Query().Get("topic"), limit)
	if err != nil {
		s.log.Error("api: list podcasts", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if podcasts == nil {
		podcasts = []types.Podcast{}
	}
	writeJSON(w, http.StatusOK, podcasts)
}

func (s *Server) handleGetPodcast(w http.ResponseWriter, r *http.Request) {
	p, ok := s.podcast(w, r)
	if ok {
		writeJSON(w, http.StatusOK, p)
	}
}

func (s *Server) handlePodcastAudio(w http.ResponseWriter, r *http.Request) {
	p, ok := s.podcast(w, r)
	if !ok {
		return
	}
	if p.AudioPath == "" {
		writeError(w, http.StatusNotFound, "podcast has no audio")
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	http.ServeFile(w, r, p.AudioPath)
}

// podcast loads the podcast named in the URL, writing the error response
// itself when it cannot.
func (s *Server) podcast(w http.ResponseWriter, r *http.Request) (types.Podcast, bool) {
	id := chi.URLParam(r, "podcastID")
	p, err := s.store.Get(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "podcast not found")
		return p, false
	case err != nil:
		s.log.Error("api: get podcast", "podcast_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return p, false
	}
	return p, true
}

// ── Voices ────────────────────────────────────────────────────────────────────

func (s *Server) handleListVoices(w http.ResponseWriter, r *http.Request) {
	if s.voices == nil {
		writeJSON(w, http.StatusOK, []tts.Voice{})
		return
	}
	voices, err := s.voices.ListVoices(r.Context())
	if err != nil {
		s.log.Error("api: list voices", "err", err)
		writeError(w, http.StatusBadGateway, "voice catalogue unavailable")
		return
	}
	if voices == nil {
		voices = []tts.Voice{}
	}
	writeJSON(w, http.StatusOK, voices)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
