// Package web is the local HTTP surface: the status page and JSON, the
// Prometheus endpoint, and the provisioning and firmware update routes.
package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Xylopyrographer/CabinMonitor/internal/log"
	"github.com/Xylopyrographer/CabinMonitor/internal/status"
)

// Options configures a Server. Provisioning and OTA may be nil, which
// leaves their routes unmounted.
type Options struct {
	Addr              string
	Tracker           *status.Tracker
	Provisioning      *Provisioning
	OTA               *OTA
	ProvisioningLimit int // requests per minute per client
	Logger            *zerolog.Logger
}

// Server serves the HTTP surface.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	log        zerolog.Logger
}

// New builds the router.
func New(opts Options) *Server {
	s := &Server{tracker: opts.Tracker, log: log.WithComponent("web")}
	if opts.Logger != nil {
		s.log = *opts.Logger
	}
	limit := opts.ProvisioningLimit
	if limit <= 0 {
		limit = 30
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)

	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)
	r.Get("/index.json", s.handleJSON)
	r.Get("/status", s.handleJSON)
	r.Handle("/metrics", promhttp.Handler())

	if p := opts.Provisioning; p != nil {
		r.Route("/provision", func(r chi.Router) {
			r.Use(httprate.Limit(limit, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
					w.Header().Set("Retry-After", fmt.Sprintf("%d", int(time.Minute.Seconds())))
					writeError(w, http.StatusTooManyRequests, "too many requests")
				})))
			r.Use(p.requireActive)
			r.Get("/settings", p.handleGetSettings)
			r.Post("/credentials", p.handleCredentials)
			r.Post("/settings", p.handleSettings)
			r.Post("/complete", p.handleComplete)
		})
	}
	if o := opts.OTA; o != nil {
		r.Post("/ota/firmware", o.handleFirmware)
	}

	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, s.tracker.Snapshot()); err != nil {
		s.log.Warn().Err(err).Msg("render status page")
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(status.FormatJSON(s.tracker.Snapshot()))
}
