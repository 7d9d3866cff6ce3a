// Package statusapi exposes a driver over a small JSON HTTP API.
package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/moffa90/go-visionai/driver"
	"github.com/moffa90/go-visionai/fault"
	"github.com/moffa90/go-visionai/lifecycle"
	"github.com/moffa90/go-visionai/logging"
	"github.com/moffa90/go-visionai/resilience"
	"github.com/moffa90/go-visionai/result"
)

// Device is the part of *driver.Driver the API serves.
type Device interface {
	Init(ctx context.Context) error
	ReadInference(ctx context.Context) (*result.InferenceResult, error)
	SetModel(ctx context.Context, id int) error
	SetSensor(ctx context.Context, id int) error
	Latest() *result.InferenceResult
	MetricsSnapshot() driver.Metrics
	BreakerStatus() resilience.BreakerStatus
	DeviceState() lifecycle.Snapshot
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Server routes HTTP requests to a Device.
type Server struct {
	dev    Device
	logger logging.Logger
	router *mux.Router
}

// New creates a Server for dev.
func New(dev Device, logger logging.Logger) *Server {
	s := &Server{
		dev:    dev,
		logger: logging.OrNop(logger),
		router: mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(s.logRequests)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	r.HandleFunc("/breaker", s.handleBreaker).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/init", s.handleInit).Methods(http.MethodPost)
	r.HandleFunc("/inference", s.handleInference).Methods(http.MethodPost)
	r.HandleFunc("/inference/latest", s.handleLatest).Methods(http.MethodGet)
	r.HandleFunc("/inference/latest/best", s.handleBest).Methods(http.MethodGet)
	r.HandleFunc("/model/{id:[0-9]+}", s.handleSetModel).Methods(http.MethodPut)
	r.HandleFunc("/sensor/{id:[0-9]+}", s.handleSetSensor).Methods(http.MethodPut)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path,
			"elapsed", time.Since(start).String())
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.dev.DeviceState()
	status := http.StatusOK
	if snap.State != lifecycle.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"state": snap.State.String()})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.dev.DeviceState())
}

func (s *Server) handleBreaker(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.dev.BreakerStatus())
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.dev.MetricsSnapshot())
}

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	if err := s.dev.Init(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.dev.DeviceState())
}

func (s *Server) handleInference(w http.ResponseWriter, r *http.Request) {
	res, err := s.dev.ReadInference(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleLatest(w http.ResponseWriter, _ *http.Request) {
	res := s.dev.Latest()
	if res == nil {
		s.writeError(w, fault.New(fault.KindNoMatch, "latest inference", "no inference yet"))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleBest returns the highest-confidence detection of the latest result,
// optionally filtered by min_confidence and target query parameters.
func (s *Server) handleBest(w http.ResponseWriter, r *http.Request) {
	res := s.dev.Latest()
	if res == nil {
		s.writeError(w, fault.New(fault.KindNoMatch, "best detection", "no inference yet"))
		return
	}

	q := res.Query()
	params := r.URL.Query()
	if v := params.Get("min_confidence"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, fault.New(fault.KindInvalidArgument, "best detection", "min_confidence %q is not a number", v))
			return
		}
		q = q.MinConfidence(n)
	}
	if v := params.Get("target"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, fault.New(fault.KindInvalidArgument, "best detection", "target %q is not a number", v))
			return
		}
		q = q.TargetID(n)
	}

	best, err := q.BestOrFail()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, best)
}

func (s *Server) handleSetModel(w http.ResponseWriter, r *http.Request) {
	s.handleSet(w, r, s.dev.SetModel)
}

func (s *Server) handleSetSensor(w http.ResponseWriter, r *http.Request) {
	s.handleSet(w, r, s.dev.SetSensor)
}

func (s *Server) handleSet(w http.ResponseWriter, r *http.Request, set func(context.Context, int) error) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, fault.Wrap(fault.KindInvalidArgument, "parse id", err))
		return
	}
	if err := set(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StatusFor maps an error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, fault.ErrDeviceNotReady), errors.Is(err, fault.ErrBreakerOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, fault.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, fault.ErrNoMatch):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if after, ok := fault.RetryAfter(err); ok {
		secs := int(math.Ceil(after.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
	}
	if status == http.StatusBadGateway {
		s.logger.Error("device request failed", "error", err)
	}
	writeJSON(w, status, ErrorResponse{
		Code:    fault.KindOf(err).String(),
		Message: err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
