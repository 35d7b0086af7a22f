package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/digiklausur/data-gateway/pkg/gateway"
	"github.com/digiklausur/data-gateway/pkg/observability"
)

const defaultMaxBodyBytes = 1 << 20

// Options configure the HTTP server.
type Options struct {
	// MaxBodyBytes caps accepted POST bodies; larger requests get 413.
	MaxBodyBytes int64

	// Limiter, when non-nil, rate-limits requests per client IP.
	Limiter *RateLimiter

	// Metrics exposes /metrics when true.
	Metrics bool
}

// Server is the HTTP boundary of the gateway. Requests arrive either as a
// JSON POST body or as GET query parameters; every outcome that is not a
// success is rendered as a 403 denial without internal detail.
type Server struct {
	pipeline *gateway.Pipeline
	router   *mux.Router
	maxBody  int64
	log      *observability.Logger
}

// NewServer builds the HTTP server around a request pipeline.
func NewServer(pipeline *gateway.Pipeline, opts Options, log *observability.Logger) *Server {
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	s := &Server{
		pipeline: pipeline,
		router:   mux.NewRouter(),
		maxBody:  maxBody,
		log:      log,
	}

	s.router.Use(s.requestIDMiddleware, corsMiddleware)
	if opts.Limiter != nil {
		s.router.Use(opts.Limiter.Middleware)
	}

	s.router.HandleFunc("/", s.handleData).Methods(http.MethodPost, http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if opts.Metrics {
		s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	return s
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	var req *gateway.Request
	var err error
	if r.Method == http.MethodPost {
		req, err = s.decodeBody(w, r)
	} else {
		req, err = decodeQuery(r)
	}
	if errors.Is(err, errBodyTooLarge) {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	if err != nil {
		s.forbidden(w, err)
		return
	}

	result, err := s.pipeline.Handle(r.Context(), req)
	if err != nil {
		s.forbidden(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

var errBodyTooLarge = errors.New("request body too large")

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request) (*gateway.Request, error) {
	body := http.MaxBytesReader(w, r.Body, s.maxBody)
	var req gateway.Request
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errBodyTooLarge
		}
		return nil, err
	}
	return &req, nil
}

// decodeQuery maps GET query parameters onto a request. The get and del
// parameters accept either a plain key or a JSON value, so structured
// queries and list keys work over GET too.
func decodeQuery(r *http.Request) (*gateway.Request, error) {
	q := r.URL.Query()
	req := &gateway.Request{
		Token: q.Get("token"),
		Store: q.Get("store"),
	}
	if raw := q.Get("get"); raw != "" {
		req.Get = parseParam(raw)
	}
	if raw := q.Get("del"); raw != "" {
		req.Del = parseParam(raw)
	}
	if raw := q.Get("set"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Set); err != nil {
			return nil, err
		}
	}
	return req, nil
}

func parseParam(raw string) interface{} {
	if strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") {
		var v interface{}
		if err := json.Unmarshal([]byte(raw), &v); err == nil {
			return v
		}
	}
	return raw
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// forbidden renders every pipeline failure the same way. The specific
// reason stays in the logs and metrics, not in the response.
func (s *Server) forbidden(w http.ResponseWriter, err error) {
	s.log.WithError(err).Debug("request forbidden")
	writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := observability.WithRequestID(r.Context(), requestID)
		ctx = observability.WithLogger(ctx, s.log)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
