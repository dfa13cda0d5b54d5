package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Config holds the listener address and timeouts. Zero timeouts take the
// defaults below.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

const (
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 15 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Address, validation.Required, validation.By(validateHost)),
		validation.Field(&c.ReadTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.WriteTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.IdleTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.ShutdownTimeout, validation.Min(time.Duration(0))),
	)
}

// Server wraps http.Server with validation and graceful shutdown.
type Server struct {
	server          *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger

	mutex    sync.Mutex
	listener net.Listener
}

// New creates a new HTTP server for handler. The config is validated before
// the server is created.
func New(cfg Config, handler http.Handler, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	srv := &Server{
		server: &http.Server{
			Addr:         cfg.Address,
			Handler:      handler,
			ReadTimeout:  orDefault(cfg.ReadTimeout, defaultReadTimeout),
			WriteTimeout: orDefault(cfg.WriteTimeout, defaultWriteTimeout),
			IdleTimeout:  orDefault(cfg.IdleTimeout, defaultIdleTimeout),
		},
		shutdownTimeout: orDefault(cfg.ShutdownTimeout, defaultShutdownTimeout),
		logger:          logger,
	}

	return srv, nil
}

// Listen binds the configured address. It is called by Start if needed and
// lets callers learn the port chosen for ":0".
func (s *Server) Listen() (net.Addr, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.listener == nil {
		ln, err := net.Listen("tcp", s.server.Addr)
		if err != nil {
			return nil, err
		}
		s.listener = ln
	}

	return s.listener.Addr(), nil
}

// Start begins serving HTTP requests.
// Returns an error unless the server is shut down cleanly.
func (s *Server) Start() error {
	addr, err := s.Listen()
	if err != nil {
		return err
	}

	s.mutex.Lock()
	ln := s.listener
	s.mutex.Unlock()

	s.logger.Info("HTTP server listening", slog.String("address", addr.String()))

	err = s.server.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Shutdown gracefully shuts down the server, waiting at most the configured
// shutdown timeout for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

func orDefault(d, def time.Duration) time.Duration {
	if d == 0 {
		return def
	}
	return d
}

func validateHost(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)

	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cant be empty")
	}

	if err := is.Digit.Validate(port); err != nil {
		return validation.NewError("validation_invalid_port", "invalid port")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}
