// Package http serves the advisor and snapshot operations as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"contador/internal/log"
	"contador/internal/middleware/ratelimit"
	"contador/internal/middleware/security"
	"contador/internal/middleware/trace"
	"contador/internal/services"
)

// Deps are the services behind the API.
type Deps struct {
	Advisor            *services.AdvisorService
	Snapshots          *services.SnapshotService
	RateLimitPerMinute int
	Logger             *log.Logger
}

type Server struct {
	http.Server
	advisor      *services.AdvisorService
	snapshots    *services.SnapshotService
	limiter      *ratelimit.Limiter
	detector     *security.Detector
	tracer       *trace.Middleware
	logger       *log.Logger
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.For(log.ComponentHTTP)
	}
	limitCfg := ratelimit.DefaultConfig()
	if deps.RateLimitPerMinute > 0 {
		limitCfg.RequestsPerMinute = deps.RateLimitPerMinute
	}

	s := &Server{
		advisor:   deps.Advisor,
		snapshots: deps.Snapshots,
		limiter:   ratelimit.NewLimiter(limitCfg),
		detector:  security.NewDetector(),
		logger:    logger,
	}
	s.tracer = trace.NewMiddleware(logger.WithComponent(log.ComponentTrace), s.detector.ExtractClientIP)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /api/families/{id}/context", s.handleContext)
	mux.HandleFunc("POST /api/families/{id}/ask", s.handleAsk)
	mux.HandleFunc("GET /api/families/{id}/comparison", s.handleComparison)
	mux.HandleFunc("POST /api/families/{id}/snapshots", s.handleRecompute)
	mux.HandleFunc("DELETE /api/families/{id}/snapshots", s.handleRollback)

	var h http.Handler = mux
	h = s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.detector.ExtractClientIP(r),
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path)
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
	}, http.MethodPost, http.MethodDelete)(h)
	h = log.RequestIDMiddleware(func(r *http.Request) string { return trace.GetRequestID(r.Context()) })(h)
	h = log.Middleware(logger)(h)
	h = s.withDetection(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.tracer.Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Narrated answers can take a while.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// withDetection logs requests that look like scans; they are still served.
func (s *Server) withDetection(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			s.logger.WarnContext(r.Context(), "Suspicious request",
				log.FieldRequestID, trace.GetRequestID(r.Context()),
				log.FieldClientIP, s.detector.ExtractClientIP(r),
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldUserAgent, r.Header.Get("User-Agent"))
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown stops the rate limiter and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
