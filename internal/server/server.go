package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"gopkg.in/op/go-logging.v1"

	"github.com/PolarWolf314/enseal/internal/configs"
	logger "github.com/PolarWolf314/enseal/internal/logging"
	"github.com/PolarWolf314/enseal/internal/mailbox"
	"github.com/PolarWolf314/enseal/internal/wire"
)

// Version is reported by /health. Release builds override it with -ldflags.
var Version = "0.1.0"

const rateLimiterSize = 65536

// Server is a running relay.
type Server struct {
	sync.WaitGroup

	cfg *configs.ServerConfig

	logBackend *logger.Backend
	log        *logging.Logger

	registry *mailbox.Registry
	metrics  *metrics
	limiter  *rateLimiter

	listener net.Listener
	httpSrv  *http.Server

	haltCtx    context.Context
	cancelHalt context.CancelFunc
	fatalErrCh chan error
	haltedCh   chan interface{}
	haltOnce   sync.Once
}

func (s *Server) initLogging() error {
	var err error
	s.logBackend, err = logger.New(s.cfg.Logging.File, s.cfg.Logging.Level, s.cfg.Logging.Disable)
	if err == nil {
		s.log = s.logBackend.GetLogger("server")
	}
	return err
}

// New validates cfg, starts the channel registry and begins serving on
// cfg.Server.Address.
func New(cfg *configs.ServerConfig) (*Server, error) {
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:        cfg,
		fatalErrCh: make(chan error, 1),
		haltedCh:   make(chan interface{}),
	}
	s.haltCtx, s.cancelHalt = context.WithCancel(context.Background())

	if err := s.initLogging(); err != nil {
		return nil, err
	}
	if cfg.Logging.Level == "DEBUG" {
		s.log.Warning("Debug logging is enabled, channel ids will be logged in truncated form.")
	}

	sCfg := cfg.Server
	s.metrics = newMetrics(func() int { return s.registry.Len() })
	s.registry = mailbox.New(mailbox.Config{
		MaxChannels:    sCfg.MaxChannels,
		TTL:            sCfg.ChannelTTL,
		SweepInterval:  sCfg.SweepInterval,
		TombstoneLimit: sCfg.TombstoneLimit,
		Hooks:          s.metrics.hooks(),
		Log:            s.logBackend.GetLogger("mailbox"),
	})
	s.limiter = newRateLimiter(sCfg.RateLimitPerMinute, rateLimiterSize)

	l, err := net.Listen("tcp", sCfg.Address)
	if err != nil {
		s.registry.Shutdown()
		s.log.Errorf("Failed to start listener '%v': %v", sCfg.Address, err)
		return nil, fmt.Errorf("server: failed to listen on %s: %w", sCfg.Address, err)
	}
	s.listener = l

	s.httpSrv = &http.Server{
		Handler:           s.router(),
		ReadHeaderTimeout: sCfg.HandshakeTimeout,
		ErrorLog:          s.logBackend.GetGoLogger("http", "WARNING"),
		BaseContext:       func(net.Listener) context.Context { return s.haltCtx },
	}

	go func() {
		select {
		case err := <-s.fatalErrCh:
			s.log.Warningf("Shutting down due to error: %v", err)
			s.Shutdown()
		case <-s.haltedCh:
		}
	}()

	s.Add(1)
	go s.serve()

	s.log.Noticef("Relay %s listening on %v (tls: %v, max channels: %d, channel ttl: %v)",
		Version, l.Addr(), sCfg.TLSEnabled(), sCfg.MaxChannels, sCfg.ChannelTTL)
	return s, nil
}

func (s *Server) serve() {
	defer s.Done()

	var err error
	if s.cfg.Server.TLSEnabled() {
		err = s.httpSrv.ServeTLS(s.listener, s.cfg.Server.TLSCertFile, s.cfg.Server.TLSKeyFile)
	} else {
		err = s.httpSrv.Serve(s.listener)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		select {
		case s.fatalErrCh <- err:
		default:
		}
	}
}

func (s *Server) router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(wire.Path, s.handleRelay).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.cfg.Metrics.Enable {
		r.Handle("/metrics", s.metrics.handler()).Methods(http.MethodGet)
	}
	return r
}

type healthResponse struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	Version  string `json:"version"`
	Channels int    `json:"channels"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{
		Status:   "ok",
		Service:  "enseal-relay",
		Version:  Version,
		Channels: s.registry.Len(),
	})
}

// Addr returns the address the relay is listening on.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// URL returns the base URL clients should dial.
func (s *Server) URL() string {
	scheme := "ws"
	if s.cfg.Server.TLSEnabled() {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s", scheme, s.listener.Addr())
}

// Channels returns the number of live channels.
func (s *Server) Channels() int {
	return s.registry.Len()
}

// RotateLog reopens the log file.
func (s *Server) RotateLog() {
	if err := s.logBackend.Rotate(); err != nil {
		select {
		case s.fatalErrCh <- fmt.Errorf("failed to rotate log file, shutting down server"):
		default:
		}
		return
	}
	s.log.Notice("Log rotated.")
}

// Wait waits till the server is terminated for any reason.
func (s *Server) Wait() {
	<-s.haltedCh
}

// Shutdown cleanly shuts down the relay.
func (s *Server) Shutdown() {
	s.haltOnce.Do(func() { s.halt() })
}

func (s *Server) halt() {
	s.log.Notice("Starting graceful shutdown.")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.log.Warningf("HTTP shutdown: %v", err)
	}
	cancel()

	// Aborting every channel lets paired sessions tell their clients before
	// the remaining connections are cancelled.
	s.registry.Shutdown()
	s.cancelHalt()
	s.WaitGroup.Wait()

	s.log.Notice("Shutdown complete.")
	_ = s.logBackend.Close()
	close(s.haltedCh)
}
