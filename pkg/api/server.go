package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/time/rate"

	"github.com/jdziat/keyed-jobs/pkg/core"
	"github.com/jdziat/keyed-jobs/pkg/orders"
	"github.com/jdziat/keyed-jobs/pkg/queue"
)

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	queue    *queue.Queue
	orders   *orders.Service
	limiter  *rate.Limiter
	upgrader websocket.Upgrader
	logger   *slog.Logger

	middleware func(http.Handler) http.Handler
	writeWait  time.Duration
}

// Option configures a Server.
type Option interface {
	apply(*Server)
}

type optionFunc func(*Server)

func (f optionFunc) apply(s *Server) { f(s) }

// WithRateLimit limits submissions to r per second with the given burst.
// A simulation of n orders consumes n tokens. r <= 0 disables limiting.
func WithRateLimit(r float64, burst int) Option {
	return optionFunc(func(s *Server) {
		if r <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(r), burst)
	})
}

// WithMiddleware wraps the handler returned by Handler.
func WithMiddleware(mw func(http.Handler) http.Handler) Option {
	return optionFunc(func(s *Server) {
		s.middleware = mw
	})
}

// WithLogger sets the logger. Defaults to the queue's logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(s *Server) {
		if l != nil {
			s.logger = l
		}
	})
}

// NewServer creates a new API server.
func NewServer(q *queue.Queue, svc *orders.Service, opts ...Option) *Server {
	s := &Server{
		queue:  q,
		orders: svc,
		logger: q.Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		writeWait: 10 * time.Second,
	}
	for _, opt := range opts {
		opt.apply(s)
	}
	return s
}

// Routes registers the API routes on r.
func (s *Server) Routes(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/orders/simulate", s.Simulate).Methods(http.MethodPost)
	api.HandleFunc("/orders/simulate", s.Report).Methods(http.MethodGet)
	api.HandleFunc("/jobs", s.SubmitJob).Methods(http.MethodPost)
	api.HandleFunc("/jobs/status", s.JobStatus).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", s.GetJob).Methods(http.MethodGet)
	api.HandleFunc("/keys/{key}", s.KeyState).Methods(http.MethodGet)
	api.HandleFunc("/events", s.Events).Methods(http.MethodGet)

	r.HandleFunc("/health", s.Health).Methods(http.MethodGet)
}

// Handler returns the complete HTTP handler, served over HTTP/1.1 and
// cleartext HTTP/2.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	s.Routes(r)

	h := h2c.NewHandler(r, &http2.Server{})
	if s.middleware != nil {
		return s.middleware(h)
	}
	return h
}

// allow reports whether n submissions fit within the rate limit.
func (s *Server) allow(n int) bool {
	if s.limiter == nil {
		return true
	}
	return s.limiter.AllowN(time.Now(), n)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

// submitStatus maps a submission error to its HTTP status.
func submitStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrDuplicateJob):
		return http.StatusConflict
	case errors.Is(err, core.ErrNoHandler),
		errors.Is(err, core.ErrInvalidJobTypeName),
		errors.Is(err, core.ErrInvalidKey),
		errors.Is(err, core.ErrKeyTooLong),
		errors.Is(err, core.ErrInvalidJobID),
		errors.Is(err, core.ErrJobArgsTooLarge),
		errors.Is(err, orders.ErrVendorRequired),
		errors.Is(err, orders.ErrUnknownMethod),
		errors.Is(err, orders.ErrInvalidCount):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
