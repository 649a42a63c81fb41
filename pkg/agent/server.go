// Package agent serves sensor readings over mutually authenticated HTTPS
package agent

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

// Server represents the agent server
type Server struct {
	config     Config
	source     Source
	httpServer *http.Server
	logger     *log.Logger
	logCloser  io.Closer
}

// NewServer creates a new agent server
func NewServer(config Config, source Source) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if source == nil {
		return nil, fmt.Errorf("sensor source is required")
	}

	// Setup logger
	server := &Server{
		config: config,
		source: source,
		logger: log.New(os.Stdout, "[agent] ", log.LstdFlags),
	}
	if config.LogFile != "" {
		logFile, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		server.logger = log.New(logFile, "[agent] ", log.LstdFlags)
		server.logCloser = logFile
	}

	// Load TLS config
	tlsConfig, err := config.LoadTLSConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS config: %w", err)
	}

	server.httpServer = &http.Server{
		Addr:         config.Addr(),
		Handler:      server.Handler(),
		TLSConfig:    tlsConfig,
		ErrorLog:     server.logger,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return server, nil
}

// Handler returns the agent's routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/sensors", s.loggingMiddleware(sensorsHandler(s.source)))
	mux.HandleFunc("/chip", s.loggingMiddleware(chipHandler(s.source)))
	mux.HandleFunc("/sysinfo", s.loggingMiddleware(sysinfoHandler))
	mux.HandleFunc("/logs", s.loggingMiddleware(logsHandler(s.config.LogFile)))
	mux.HandleFunc("/health", s.loggingMiddleware(healthHandler))
	return mux
}

// Start starts the agent server
func (s *Server) Start() error {
	s.logger.Printf("Starting agent server on %s with mTLS", s.config.Addr())

	// The certificates are already loaded in the TLS config
	err := s.httpServer.ListenAndServeTLS("", "")
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Println("Shutting down agent server...")
	err := s.httpServer.Shutdown(ctx)
	if s.logCloser != nil {
		_ = s.logCloser.Close()
	}
	return err
}

// loggingMiddleware logs incoming requests
func (s *Server) loggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientCert := "none"
		if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
			clientCert = r.TLS.PeerCertificates[0].Subject.CommonName
		}

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next(wrapped, r)

		s.logger.Printf("%s %s %d %s client=%s duration=%s",
			r.Method,
			r.URL.Path,
			wrapped.statusCode,
			r.RemoteAddr,
			clientCert,
			time.Since(start),
		)
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// healthHandler returns server health status
func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK\n")
}
