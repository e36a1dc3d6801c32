// Package server exposes the dashboard over HTTP: the JSON API the map UI
// drives, the websocket feed, metrics and the static UI bundle.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"dispatch-dashboard/internal/hub"
	"dispatch-dashboard/internal/logging"
	"dispatch-dashboard/internal/metrics"
	"dispatch-dashboard/internal/mutation"
	"dispatch-dashboard/internal/session"
	"dispatch-dashboard/internal/store"
)

// Authenticator exchanges credentials for a login payload and registers
// new accounts.
type Authenticator interface {
	Login(ctx context.Context, login, password string) (any, error)
	Register(ctx context.Context, login, password string) (any, error)
}

// Deps wires the server. Hub, Metrics and StaticDir are optional.
type Deps struct {
	Store       *store.Store
	Coordinator *mutation.Coordinator
	Auth        Authenticator
	Sessions    session.Store
	Hub         *hub.Hub
	Metrics     *metrics.Collector
	Logger      logging.Logger
	StaticDir   string
}

type Server struct {
	Deps
}

func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = logging.Noop()
	}
	return &Server{Deps: d}
}

// Handler returns the routed, logged handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return s.withLogging(mux)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.Hub != nil {
		mux.HandleFunc("GET /ws", s.Hub.HandleWebSocket)
	}
	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics.Handler())
	}

	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("POST /api/logout", s.handleLogout)
	mux.HandleFunc("POST /api/reload", s.handleReload)
	mux.HandleFunc("POST /api/positions/refresh", s.handleRefreshPositions)

	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/phase/{kind}/{id}", s.handlePhase)
	mux.HandleFunc("PUT /api/filter", s.handleSetFilter)
	mux.HandleFunc("DELETE /api/filter", s.handleClearFilter)

	mux.HandleFunc("GET /api/hospitals", s.handleListHospitals)
	mux.HandleFunc("GET /api/hospitals/suggest", s.handleSuggestHospitals)
	mux.HandleFunc("POST /api/hospitals", s.handleCreateHospital)
	mux.HandleFunc("PUT /api/hospitals/{id}", s.handleUpdateHospital)
	mux.HandleFunc("DELETE /api/hospitals/{id}", s.handleDeleteHospital)

	mux.HandleFunc("GET /api/cars", s.handleListCars)
	mux.HandleFunc("GET /api/cars/{id}", s.handleGetCar)
	mux.HandleFunc("POST /api/cars", s.handleCreateCar)
	mux.HandleFunc("PUT /api/cars/{id}", s.handleUpdateCar)
	mux.HandleFunc("DELETE /api/cars/{id}", s.handleDeleteCar)
	mux.HandleFunc("PUT /api/cars/{id}/tracker", s.handleBindTracker)
	mux.HandleFunc("DELETE /api/cars/{id}/tracker", s.handleUnbindTracker)

	mux.HandleFunc("GET /api/users", s.handleListUsers)
	mux.HandleFunc("POST /api/users", s.handleCreateUser)
	mux.HandleFunc("PUT /api/users/{id}", s.handleUpdateUser)
	mux.HandleFunc("DELETE /api/users/{id}", s.handleDeleteUser)

	if s.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(s.StaticDir)))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack passes the websocket upgrade through to the underlying writer.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) withLogging(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(rec, r)
		s.Logger.Debug(r.Context(), "http request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", rec.status),
			logging.Any("duration", time.Since(start)))
		s.Metrics.ObserveHTTP(r.Method, r.Pattern, rec.status)
	})
}

type envelope struct {
	IsSuccess bool `json:"isSuccess"`
	Data      any  `json:"data,omitempty"`
}

type failure struct {
	IsSuccess    bool   `json:"isSuccess"`
	ErrorMessage string `json:"errorMessage"`
	ErrorCode    string `json:"errorCode,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusOK, envelope{IsSuccess: true, Data: v})
}

// writeError maps the coordinator's error taxonomy onto HTTP statuses and
// the backend's failure shape.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *mutation.ValidationError
		rf *mutation.RequestFailure
	)
	body := failure{ErrorMessage: err.Error()}
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &ve):
		status = http.StatusBadRequest
	case errors.Is(err, mutation.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &rf):
		status = http.StatusBadGateway
		body.ErrorMessage, body.ErrorCode = rf.Message, rf.Code
	case errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	}
	if status >= http.StatusInternalServerError {
		s.Logger.Warn(r.Context(), "request failed",
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.Err(err))
	}
	writeJSON(w, status, body)
}

var errBadRequest = errors.New("bad request")

const maxBody = 1 << 20

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}
