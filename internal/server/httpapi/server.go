// Package httpapi serves the public side of one-time links plus health and
// metrics endpoints. Everything else goes through gRPC.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/keepershare/internal/common"
	"github.com/dmitrijs2005/keepershare/internal/links"
	"github.com/dmitrijs2005/keepershare/internal/logging"
	"github.com/dmitrijs2005/keepershare/internal/metrics"
)

// LinkReader is the read side of the link protocol.
type LinkReader interface {
	Peek(ctx context.Context, id string) (*links.Metadata, error)
	Consume(ctx context.Context, id string) (*links.Payload, error)
}

type Options struct {
	RateLimit float64
	RateBurst int
	// TrustedProxies are addresses or CIDRs allowed to set X-Forwarded-For.
	TrustedProxies []string
}

type HTTPServer struct {
	address string
	links   LinkReader
	metrics *metrics.Metrics
	logger  logging.Logger
	limiter *ipLimiter
}

func NewHTTPServer(a string, l logging.Logger, lr LinkReader, m *metrics.Metrics, opts Options) *HTTPServer {
	logger := l.With("module", "http_server")
	limiter := newIPLimiter(opts.RateLimit, opts.RateBurst)
	for _, p := range opts.TrustedProxies {
		prefix, err := parseProxy(p)
		if err != nil {
			logger.Warn(context.Background(), "ignoring trusted proxy", "proxy", p, "error", err)
			continue
		}
		limiter.trusted = append(limiter.trusted, prefix)
	}

	return &HTTPServer{
		address: a,
		links:   lr,
		metrics: m,
		logger:  logger,
		limiter: limiter,
	}
}

// Handler returns the routed handler tree.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	share := func(h http.HandlerFunc) http.Handler {
		var handler http.Handler = noStore(s.limiter.middleware(h))
		if s.metrics != nil {
			handler = s.metrics.Instrument(common.ShareLinkPath+"{id}", handler)
		}
		return handler
	}
	mux.Handle("GET "+common.ShareLinkPath+"{id}", share(s.peek))
	mux.Handle("POST "+common.ShareLinkPath+"{id}", share(s.consume))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}

func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// peek reports whether a link can still be opened without using up a view.
func (s *HTTPServer) peek(w http.ResponseWriter, r *http.Request) {
	md, err := s.links.Peek(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, md)
}

func (s *HTTPServer) consume(w http.ResponseWriter, r *http.Request) {
	pl, err := s.links.Consume(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pl)
}

func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, common.ErrorNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not_found"))
	case errors.Is(err, common.ErrExpired):
		writeJSON(w, http.StatusGone, errorBody("expired"))
	case errors.Is(err, common.ErrExhausted):
		writeJSON(w, http.StatusGone, errorBody("exhausted"))
	default:
		s.logger.Error(r.Context(), "link request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal"))
	}
}

func errorBody(code string) map[string]string {
	return map[string]string{"error": code}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
