package api

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"cosmossdk.io/log"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/paw-chain/pawmarket/app"
	"github.com/paw-chain/pawmarket/app/health"
)

// Server represents the main API server
type Server struct {
	logger      log.Logger
	router      *gin.Engine
	handler     http.Handler
	app         *app.MarketApp
	checker     *health.Checker
	config      *Config
	authService *AuthService
	rateLimiter *ipLimiter
}

// Config holds server configuration
type Config struct {
	Host            string
	Port            string
	JWTSecret       []byte
	CORSOrigins     []string
	RateLimitRPS    int
	RateLimitBurst  int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	TLSEnabled      bool
	TLSCertFile     string
	TLSKeyFile      string
	MetricsEnabled  bool
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		Host:            "0.0.0.0",
		Port:            "5000",
		CORSOrigins:     []string{"http://localhost:3000"},
		RateLimitRPS:    100,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		RequestTimeout:  10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		MetricsEnabled:  true,
	}
}

// Validate checks the server configuration.
func (c *Config) Validate() error {
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("jwt secret must be at least 32 bytes")
	}
	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}
	if c.TLSEnabled && (c.TLSCertFile == "" || c.TLSKeyFile == "") {
		return fmt.Errorf("tls enabled without certificate and key files")
	}
	return nil
}

// NewServer creates a new API server instance
func NewServer(logger log.Logger, marketApp *app.MarketApp, checker *health.Checker, config *Config) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if marketApp == nil {
		return nil, fmt.Errorf("market app is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	server := &Server{
		logger:      logger.With("module", "api"),
		app:         marketApp,
		checker:     checker,
		config:      config,
		authService: NewAuthService(config.JWTSecret),
		rateLimiter: newIPLimiter(config.RateLimitRPS, config.RateLimitBurst),
	}

	server.setupRouter()
	return server, nil
}

// setupRouter configures the Gin router with all routes and middleware
func (s *Server) setupRouter() {
	// Set Gin mode based on environment
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()

	// Global middleware, order matters.
	// 1. Recovery (must be first to catch panics)
	s.router.Use(RecoveryMiddleware(s.logger))

	// 2. Security headers (set early)
	s.router.Use(SecurityHeadersMiddleware())

	// 3. Request size limiting
	s.router.Use(RequestSizeLimitMiddleware(MaxRequestSize))

	// 4. Request ID (for tracing)
	s.router.Use(RequestIDMiddleware())

	// 5. Logging
	s.router.Use(LoggerMiddleware(s.logger))

	// 6. Rate limiting (before expensive operations)
	s.router.Use(RateLimitMiddleware(s.rateLimiter))

	// 7. Timeout
	s.router.Use(TimeoutMiddleware(s.config.RequestTimeout))

	if s.checker != nil {
		healthHandler := gin.WrapH(s.checker.Router())
		s.router.GET("/health", healthHandler)
		s.router.GET("/health/ready", healthHandler)
		s.router.GET("/health/detailed", healthHandler)
	}
	if s.config.MetricsEnabled {
		s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	s.registerRoutes()

	// CORS wraps the whole engine so preflight requests never reach gin's
	// method-not-allowed handling.
	s.handler = cors.New(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           86400,
	}).Handler(s.router)
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Auth returns the token service.
func (s *Server) Auth() *AuthService {
	return s.authService
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:           net.JoinHostPort(s.config.Host, s.config.Port),
		Handler:        s.handler,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}
	if s.config.TLSEnabled {
		srv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS13}
	}

	go s.cleanupLimiters(ctx)

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.config.TLSEnabled {
			s.logger.Info("starting API server", "addr", srv.Addr, "tls", true)
			err = srv.ListenAndServeTLS(s.config.TLSCertFile, s.config.TLSKeyFile)
		} else {
			s.logger.Info("starting API server", "addr", srv.Addr, "tls", false)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func (s *Server) cleanupLimiters(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.rateLimiter.cleanup(); removed > 0 {
				s.logger.Debug("dropped idle rate limiters", "count", removed)
			}
		}
	}
}
