// Package debug serves runtime profiling endpoints and the profiler's own
// metrics next to an instrumented program.
package debug

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/danpilch/pathprof/pkg/tracker"
)

// DefaultAddr is used when no address is given.
const DefaultAddr = "localhost:6060"

// ThreadLister yields the thread states to show on /threads.
type ThreadLister func() []*tracker.Thread

// Server is a running debug server.
type Server struct {
	srv    *http.Server
	addr   string
	errCh  chan error
	logger *logrus.Logger
}

// StartServer serves pprof under /debug/pprof/, gatherer under /metrics and,
// when threads is non-nil, a thread summary under /threads.
func StartServer(addr string, gatherer prometheus.Gatherer, threads ThreadLister, logger *logrus.Logger) (*Server, error) {
	if addr == "" {
		addr = DefaultAddr
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	if threads != nil {
		mux.HandleFunc("/threads", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			RenderThreads(w, threads())
		})
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("debug server failed: %w", err)
	}

	s := &Server{
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		addr:   ln.Addr().String(),
		errCh:  make(chan error, 1),
		logger: logger,
	}
	go func() {
		logger.WithField("addr", s.addr).Info("Debug server listening")
		if err := s.srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			s.errCh <- err
		}
		close(s.errCh)
	}()
	return s, nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string { return s.addr }

// Stop shuts the server down, waiting up to five seconds for requests in
// flight.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	if err := <-s.errCh; err != nil {
		return err
	}
	s.logger.Debug("Debug server stopped")
	return nil
}
