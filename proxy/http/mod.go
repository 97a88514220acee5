// Package http implements the proxy server over HTTP.
package http

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"go.dedis.ch/swarm"
	"golang.org/x/xerrors"
)

type key int

const (
	requestIDKey key = 0
)

const shutdownTimeout = 10 * time.Second

// NewHTTP creates a new proxy server that will listen on the address. An empty
// address listens on a random port of the loopback interface.
func NewHTTP(listenAddr string) *HTTP {
	logger := swarm.Logger.With().Timestamp().Str("role", "http proxy").Logger()

	mux := http.NewServeMux()

	return &HTTP{
		mux: mux,
		server: &http.Server{
			Handler: tracing(nextRequestID)(logging(logger)(mux)),
		},
		logger:     logger,
		listenAddr: listenAddr,
		quit:       make(chan struct{}),
	}
}

// HTTP is a proxy server over HTTP.
//
// - implements proxy.Proxy
type HTTP struct {
	sync.Mutex

	mux        *http.ServeMux
	server     *http.Server
	ln         net.Listener
	logger     zerolog.Logger
	listenAddr string
	quit       chan struct{}
}

// Listen implements proxy.Proxy. It blocks until the server is stopped. It
// panics if the address cannot be listened on.
func (h *HTTP) Listen() {
	h.logger.Info().Msg("proxy server is starting...")

	addr := h.listenAddr
	if addr == "" {
		addr = "127.0.0.1:0"
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		h.logger.Error().Err(err).Msgf("failed to create conn '%s'", h.listenAddr)
		panic(xerrors.Errorf("failed to create conn '%s': %v", h.listenAddr, err))
	}

	h.Lock()
	h.ln = ln
	h.Unlock()

	done := make(chan struct{})

	go func() {
		<-h.quit
		h.logger.Info().Msg("proxy server is shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		h.server.SetKeepAlivesEnabled(false)

		err := h.server.Shutdown(ctx)
		if err != nil {
			h.logger.Err(err).Msg("failed to shutdown the server gracefully")
		}

		close(done)
	}()

	h.logger.Info().Msgf("proxy server is ready to handle requests at http://%s", ln.Addr())

	err = h.server.Serve(ln)
	if err != nil && err != http.ErrServerClosed {
		h.logger.Err(err).Msgf("failed to serve on %s", ln.Addr())
	}

	<-done

	h.logger.Info().Msg("proxy server stopped")
}

// Stop implements proxy.Proxy. It must be called once per Listen.
func (h *HTTP) Stop() {
	h.quit <- struct{}{}
}

// RegisterHandler implements proxy.Proxy.
func (h *HTTP) RegisterHandler(path string, handler func(http.ResponseWriter, *http.Request)) {
	h.mux.HandleFunc(path, handler)
}

// GetAddr implements proxy.Proxy. It returns nil until the server listens.
func (h *HTTP) GetAddr() net.Addr {
	h.Lock()
	defer h.Unlock()

	if h.ln == nil {
		return nil
	}

	return h.ln.Addr()
}

// RegisterMetrics registers the collectors of the node and serves them on the
// path. A collector that cannot be registered is logged and skipped.
func (h *HTTP) RegisterMetrics(path string) {
	registry := prometheus.NewRegistry()

	for _, c := range swarm.PromCollectors {
		err := registry.Register(c)
		if err != nil {
			h.logger.Warn().Err(err).Msg("failed to register collector")
		}
	}

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	h.RegisterHandler(path, handler.ServeHTTP)
}

func nextRequestID() string {
	return xid.New().String()
}

// logging logs every request once it has been served.
func logging(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			defer func() {
				requestID, ok := r.Context().Value(requestIDKey).(string)
				if !ok {
					requestID = "unknown"
				}

				logger.Info().Str("requestID", requestID).
					Str("method", r.Method).
					Str("url", r.URL.Path).
					Str("remoteAddr", r.RemoteAddr).
					Str("agent", r.UserAgent()).
					Dur("duration", time.Since(start)).
					Msg("")
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// tracing assigns a request id to every request and opens a span with the
// global tracer for the time of the request.
func tracing(nextRequestID func() string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-Id")
			if requestID == "" {
				requestID = nextRequestID()
			}

			span := opentracing.GlobalTracer().StartSpan(r.URL.Path)
			defer span.Finish()

			ext.HTTPMethod.Set(span, r.Method)
			ext.HTTPUrl.Set(span, r.URL.String())
			span.SetTag("requestID", requestID)

			ctx := context.WithValue(r.Context(), requestIDKey, requestID)
			ctx = opentracing.ContextWithSpan(ctx, span)

			w.Header().Set("X-Request-Id", requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
