package rest

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/taskline/taskline/internal/queue"
	"github.com/taskline/taskline/internal/ratelimit"
)

// Server exposes a JobQueue over HTTP
type Server struct {
	queue   *queue.JobQueue
	limiter *ratelimit.Limiter
	router  *chi.Mux
}

// NewServer creates a new REST server. A nil limiter disables enqueue
// rate limiting.
func NewServer(q *queue.JobQueue, limiter *ratelimit.Limiter) *Server {
	if limiter == nil {
		limiter = ratelimit.NewLimiter(nil)
	}
	s := &Server{
		queue:   q,
		limiter: limiter,
		router:  chi.NewRouter(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(corsMiddleware)

	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/jobs", s.enqueue)
		r.Get("/jobs/{id}", s.getJob)
		r.Get("/stats", s.stats)

		r.Get("/dead", s.listDead)
		r.Post("/dead/{id}/retry", s.retryDead)

		r.Post("/completed/clear", s.clearCompleted)

		r.Get("/rate_limit", s.listRateLimits)
		r.Get("/rate_limit/{type}", s.getRateLimit)
		r.Post("/rate_limit/{type}", s.setRateLimit)
	})

	s.router.Get("/healthz", s.health)
	s.router.Handle("/metrics", promhttp.Handler())
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Request/Response types
type EnqueueRequest struct {
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Priority    string          `json:"priority,omitempty"`
	MaxAttempts int             `json:"max_attempts,omitempty"`
	DelayMs     int64           `json:"delay_ms,omitempty"`
	TimeoutMs   int64           `json:"timeout_ms,omitempty"`
}

type EnqueueResponse struct {
	JobID string `json:"job_id"`
}

type JobResponse struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Priority    string          `json:"priority"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	CreatedAt   time.Time       `json:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	NextRetryAt *time.Time      `json:"next_retry_at,omitempty"`
	Error       string          `json:"error,omitempty"`
	TimeoutMs   int64           `json:"timeout_ms,omitempty"`
}

type DeadLetterResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type RetryResponse struct {
	Success bool `json:"success"`
}

type ClearResponse struct {
	Removed int `json:"removed"`
}

type StatsResponse struct {
	Pending             int     `json:"pending"`
	Processing          int     `json:"processing"`
	Completed           int     `json:"completed"`
	Failed              int     `json:"failed"`
	Dead                int     `json:"dead"`
	AvgProcessingTimeMs float64 `json:"avg_processing_time_ms"`
	TotalProcessed      int64   `json:"total_processed"`
	TotalCompleted      int64   `json:"total_completed"`
	TotalFailed         int64   `json:"total_failed"`
}

type RateLimitRequest struct {
	Burst     float64 `json:"burst"`
	PerSecond float64 `json:"per_second"`
}

type RateLimitResponse struct {
	Type      string  `json:"type"`
	Burst     float64 `json:"burst"`
	PerSecond float64 `json:"per_second"`
	Tokens    float64 `json:"tokens"`
	Exists    bool    `json:"exists"`
}

// Handlers
func (s *Server) enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Type = strings.TrimSpace(req.Type)
	if req.Type == "" {
		respondError(w, http.StatusBadRequest, "type is required")
		return
	}

	priority, err := queue.ParsePriority(req.Priority)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.MaxAttempts < 0 || req.DelayMs < 0 || req.TimeoutMs < 0 {
		respondError(w, http.StatusBadRequest, "max_attempts, delay_ms and timeout_ms must not be negative")
		return
	}

	if !s.limiter.Allow(req.Type) {
		log.Warn().Str("type", req.Type).Msg("enqueue rejected by rate limit")
		respondError(w, http.StatusTooManyRequests, "rate limit exceeded for job type "+req.Type)
		return
	}

	var payload []byte
	if len(req.Payload) > 0 && string(req.Payload) != "null" {
		payload = []byte(req.Payload)
	}

	jobID := s.queue.AddJob(req.Type, payload,
		queue.WithPriority(priority),
		queue.WithMaxAttempts(req.MaxAttempts),
		queue.WithDelay(time.Duration(req.DelayMs)*time.Millisecond),
		queue.WithTimeout(time.Duration(req.TimeoutMs)*time.Millisecond),
	)

	respondJSON(w, http.StatusOK, EnqueueResponse{JobID: jobID})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.queue.GetJob(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	respondJSON(w, http.StatusOK, toJobResponse(job))
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	st := s.queue.Stats()
	respondJSON(w, http.StatusOK, StatsResponse{
		Pending:             st.Pending,
		Processing:          st.Processing,
		Completed:           st.Completed,
		Failed:              st.Failed,
		Dead:                st.Dead,
		AvgProcessingTimeMs: float64(st.AvgProcessingTime) / float64(time.Millisecond),
		TotalProcessed:      st.TotalProcessed,
		TotalCompleted:      st.TotalCompleted,
		TotalFailed:         st.TotalFailed,
	})
}

func (s *Server) listDead(w http.ResponseWriter, r *http.Request) {
	dead := s.queue.DeadLetterQueue()
	jobs := make([]JobResponse, len(dead))
	for i, job := range dead {
		jobs[i] = toJobResponse(job)
	}
	respondJSON(w, http.StatusOK, DeadLetterResponse{Jobs: jobs})
}

func (s *Server) retryDead(w http.ResponseWriter, r *http.Request) {
	if !s.queue.RetryDeadJob(chi.URLParam(r, "id")) {
		respondError(w, http.StatusNotFound, "job not found in dead letter queue")
		return
	}
	respondJSON(w, http.StatusOK, RetryResponse{Success: true})
}

func (s *Server) clearCompleted(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ClearResponse{Removed: s.queue.ClearCompleted()})
}

func (s *Server) listRateLimits(w http.ResponseWriter, r *http.Request) {
	types := s.limiter.Types()
	limits := make([]RateLimitResponse, len(types))
	for i, t := range types {
		limits[i] = s.rateLimitResponse(t)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"limits": limits})
}

func (s *Server) getRateLimit(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.rateLimitResponse(chi.URLParam(r, "type")))
}

func (s *Server) setRateLimit(w http.ResponseWriter, r *http.Request) {
	jobType := chi.URLParam(r, "type")

	var req RateLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Burst < 0 || req.PerSecond < 0 {
		respondError(w, http.StatusBadRequest, "burst and per_second must not be negative")
		return
	}

	// Zero values lift the limit
	if req.Burst == 0 || req.PerSecond == 0 {
		s.limiter.Remove(jobType)
	} else {
		s.limiter.SetRate(jobType, ratelimit.Rate{Burst: req.Burst, PerSecond: req.PerSecond})
	}
	log.Info().Str("type", jobType).Float64("burst", req.Burst).Float64("per_second", req.PerSecond).Msg("rate limit updated")

	respondJSON(w, http.StatusOK, s.rateLimitResponse(jobType))
}

func (s *Server) rateLimitResponse(jobType string) RateLimitResponse {
	rate, exists := s.limiter.GetRate(jobType)
	return RateLimitResponse{
		Type:      jobType,
		Burst:     rate.Burst,
		PerSecond: rate.PerSecond,
		Tokens:    s.limiter.Tokens(jobType),
		Exists:    exists,
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func toJobResponse(job *queue.Job) JobResponse {
	return JobResponse{
		ID:          job.ID,
		Type:        job.Type,
		Priority:    string(job.Priority),
		Payload:     payloadJSON(job.Payload),
		Status:      string(job.Status),
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
		CreatedAt:   job.CreatedAt,
		ProcessedAt: job.ProcessedAt,
		CompletedAt: job.CompletedAt,
		NextRetryAt: job.NextRetryAt,
		Error:       job.Error,
		TimeoutMs:   job.Timeout.Milliseconds(),
	}
}

// payloadJSON embeds JSON payloads as-is and anything else as a string.
func payloadJSON(p []byte) json.RawMessage {
	if len(p) == 0 {
		return nil
	}
	if json.Valid(p) {
		return json.RawMessage(p)
	}
	quoted, _ := json.Marshal(string(p))
	return quoted
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
