package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"herald/internal/api"
	"herald/internal/config"
	"herald/internal/history"
	"herald/internal/logging"
	"herald/internal/queue"
	"herald/internal/services"
)

const maxRequestBody = 1 << 20

type apiServer struct {
	bind    string
	logger  *slog.Logger
	daemon  *Daemon
	handler http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}

	protected := http.NewServeMux()
	protected.HandleFunc("GET /api/status", srv.handleStatus)
	protected.HandleFunc("GET /api/queue", srv.handleQueueList)
	protected.HandleFunc("POST /api/queue", srv.handleQueueAdd)
	protected.HandleFunc("GET /api/queue/{id}", srv.handleQueueItem)
	protected.HandleFunc("POST /api/queue/{id}/approve", srv.handleApprove)
	protected.HandleFunc("POST /api/queue/{id}/reject", srv.handleReject)
	protected.HandleFunc("POST /api/queue/{id}/schedule", srv.handleSchedule)
	protected.HandleFunc("POST /api/queue/{id}/publish", srv.handlePublish)
	protected.HandleFunc("GET /api/stats", srv.handleStats)
	protected.HandleFunc("GET /api/history/{id}", srv.handleHistory)
	if d.metrics != nil && cfg.Metrics.Enabled {
		protected.Handle("GET "+metricsPath(cfg), d.metrics.Handler())
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", srv.handleHealth)
	mux.Handle("/", authMiddleware(strings.TrimSpace(cfg.Paths.APIToken), protected))
	srv.handler = srv.withRequestID(mux)
	return srv
}

func metricsPath(cfg *config.Config) string {
	path := strings.TrimSpace(cfg.Metrics.Path)
	if path == "" {
		return "/metrics"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

// Handler returns the API handler. It is usable without Start, which only
// binds the listener.
func (d *Daemon) Handler() http.Handler {
	return d.api.handler
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Publish requests wait for platform calls and container polling.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()

	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := services.WithRequestID(r.Context(), requestID)
		started := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		logging.WithContext(ctx, s.logger).Debug("api request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Duration("elapsed", time.Since(started)),
		)
	})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	payload := api.StatusResponse{
		Running:      status.Running,
		PID:          status.PID,
		QueueFile:    status.QueueFile,
		LockFilePath: status.LockFilePath,
		HistoryPath:  status.HistoryPath,
		Platforms:    status.Platforms,
		Processor:    status.Processor,
		Preflight:    status.Preflight,
	}
	if !status.StartedAt.IsZero() {
		started := status.StartedAt
		payload.StartedAt = &started
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleQueueList(w http.ResponseWriter, r *http.Request) {
	var statuses []queue.Status
	for _, value := range r.URL.Query()["status"] {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, err := queue.ParseStatus(part)
			if err != nil {
				s.writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			statuses = append(statuses, status)
		}
	}

	items, err := s.daemon.processor.List(r.Context(), statuses...)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if items == nil {
		items = []queue.Post{}
	}
	s.writeJSON(w, http.StatusOK, api.QueueListResponse{Items: items})
}

func (s *apiServer) handleQueueAdd(w http.ResponseWriter, r *http.Request) {
	var draft queue.Draft
	if !s.decode(w, r, &draft) {
		return
	}
	id, err := s.daemon.processor.AddToQueue(r.Context(), draft)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.AddPostResponse{ID: id})
}

func (s *apiServer) handleQueueItem(w http.ResponseWriter, r *http.Request) {
	post, err := s.daemon.processor.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.QueueItemResponse{Item: post})
}

func (s *apiServer) handleApprove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	changed, err := s.daemon.processor.ApprovePost(r.Context(), id)
	s.writeAction(w, id, changed, err)
}

func (s *apiServer) handleReject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	changed, err := s.daemon.processor.RejectPost(r.Context(), id)
	s.writeAction(w, id, changed, err)
}

func (s *apiServer) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var req api.ScheduleRequest
	if !s.decode(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	changed, err := s.daemon.processor.SchedulePost(r.Context(), id, req.ScheduledTime)
	s.writeAction(w, id, changed, err)
}

func (s *apiServer) handlePublish(w http.ResponseWriter, r *http.Request) {
	post, err := s.daemon.processor.PublishNow(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.QueueItemResponse{Item: post})
}

func (s *apiServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.daemon.processor.GetStats(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.daemon.history == nil {
		s.writeError(w, http.StatusNotFound, "history ledger is disabled")
		return
	}
	attempts, err := s.daemon.history.ForPost(r.Context(), id)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if attempts == nil {
		attempts = []history.Attempt{}
	}
	s.writeJSON(w, http.StatusOK, api.HistoryResponse{PostID: id, Attempts: attempts})
}

func (s *apiServer) writeAction(w http.ResponseWriter, id string, changed bool, err error) {
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ActionResponse{ID: id, Changed: changed})
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// statusForError maps queue and service errors onto HTTP status codes.
// The transition check precedes the validation check because invalid
// transitions are also validation errors.
func statusForError(err error) int {
	switch {
	case errors.Is(err, queue.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, queue.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeFailure(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		logging.ErrorWithContext(s.logger, "api request failed", "api_request_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue file access and daemon logs"),
		)
	}
	s.writeError(w, status, err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}
