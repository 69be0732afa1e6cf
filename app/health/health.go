// Package health reports the health of a running market daemon.
//
// The checker looks at the committed state (block age), the circuit breaker
// level, the audit sinks and telemetry, and in detailed mode runs every module
// invariant. Three endpoints are served:
//   - /health          liveness
//   - /health/ready    readiness for load balancers
//   - /health/detailed full component report including invariants
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"cosmossdk.io/log"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/paw-chain/pawmarket/app"
	"github.com/paw-chain/pawmarket/x/market/types"
)

// Status is the health of one component or of the whole daemon.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// severity orders statuses; a component that could not be checked weighs as
// much as a degraded one.
func (s Status) severity() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded, StatusUnknown:
		return 1
	default:
		return 2
	}
}

// Component is the result of one check.
type Component struct {
	Status  Status         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Report is the response of the readiness and detailed endpoints.
type Report struct {
	Status     Status               `json:"status"`
	Timestamp  time.Time            `json:"timestamp"`
	ChainID    string               `json:"chain_id,omitempty"`
	Height     int64                `json:"height"`
	Components map[string]Component `json:"components"`
}

// Config holds configuration for the health checker
type Config struct {
	// MaxBlockAge is how long the state may go without a commit before it is
	// reported as degraded.
	MaxBlockAge time.Duration

	// MaxResponseTime bounds each component check.
	MaxResponseTime time.Duration

	// CacheDuration is how long a readiness report is reused.
	CacheDuration time.Duration
}

// DefaultConfig expects a commit at least every three block intervals.
func DefaultConfig() Config {
	return Config{
		MaxBlockAge:     3 * app.DefaultBlockInterval,
		MaxResponseTime: 5 * time.Second,
		CacheDuration:   5 * time.Second,
	}
}

type check func(context.Context) Component

// Checker runs the component checks against a market app.
type Checker struct {
	logger log.Logger
	app    *app.MarketApp
	cfg    Config
	now    func() time.Time

	mu      sync.Mutex
	cached  *Report
	expires time.Time
}

// NewChecker creates a new health checker
func NewChecker(logger log.Logger, marketApp *app.MarketApp, cfg Config) (*Checker, error) {
	if marketApp == nil {
		return nil, errors.New("market app is required")
	}
	if cfg.MaxResponseTime <= 0 {
		return nil, errors.New("max response time must be positive")
	}
	return &Checker{
		logger: logger.With("module", "health"),
		app:    marketApp,
		cfg:    cfg,
		now:    time.Now,
	}, nil
}

// Check builds a report. Readiness reports are cached for CacheDuration;
// detailed reports also run the invariants and are always fresh.
func (c *Checker) Check(ctx context.Context, detailed bool) (*Report, error) {
	if !detailed {
		if report := c.fromCache(); report != nil {
			return report, nil
		}
	}

	checks := map[string]check{
		"state":           c.checkState,
		"circuit_breaker": c.checkCircuitBreaker,
		"audit_sinks":     c.checkAuditSinks,
		"telemetry":       c.checkTelemetry,
	}
	if detailed {
		checks["invariants"] = c.checkInvariants
	}

	height, _ := c.app.LastBlock()
	report := &Report{
		Status:     StatusHealthy,
		Timestamp:  c.now(),
		ChainID:    c.app.ChainID(),
		Height:     height,
		Components: make(map[string]Component, len(checks)),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for name, run := range checks {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(gctx, c.cfg.MaxResponseTime)
			defer cancel()
			result := run(checkCtx)
			if checkCtx.Err() != nil && result.Status == StatusHealthy {
				result = Component{Status: StatusUnknown, Message: "check timed out"}
			}
			mu.Lock()
			report.Components[name] = result
			if result.Status.severity() > report.Status.severity() {
				report.Status = result.Status
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if report.Status == StatusUnknown {
		report.Status = StatusDegraded
	}

	if !detailed {
		c.mu.Lock()
		c.cached, c.expires = report, report.Timestamp.Add(c.cfg.CacheDuration)
		c.mu.Unlock()
	}
	return report, nil
}

func (c *Checker) fromCache() *Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached == nil || !c.now().Before(c.expires) {
		return nil
	}
	return c.cached
}

// checkState reports how long ago the last block was committed.
func (c *Checker) checkState(context.Context) Component {
	height, last := c.app.LastBlock()
	if height == 0 {
		return Component{Status: StatusUnhealthy, Message: "state not initialized"}
	}
	result := Component{Status: StatusHealthy, Details: map[string]any{"height": height}}
	if last.IsZero() {
		return result
	}
	age := c.now().Sub(last)
	result.Details["block_age_seconds"] = age.Seconds()
	if c.cfg.MaxBlockAge > 0 && age > c.cfg.MaxBlockAge {
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("no commit for %s", age.Truncate(time.Second))
	}
	return result
}

// checkCircuitBreaker maps the breaker level onto a health status. A paused
// market still serves reads, so it is degraded rather than unhealthy.
func (c *Checker) checkCircuitBreaker(ctx context.Context) Component {
	var status types.CircuitStatus
	err := c.app.Query(ctx, func(ctx sdk.Context) (err error) {
		status, err = c.app.MarketKeeper.CircuitBreakerStatus(ctx)
		return err
	})
	if err != nil {
		return Component{Status: StatusUnknown, Message: err.Error()}
	}

	result := Component{
		Status: StatusHealthy,
		Details: map[string]any{
			"level":            status.Level.String(),
			"failure_rate_pct": status.FailureRatePct,
			"suspicious":       status.Suspicious,
			"paused_functions": len(status.PausedFunctions),
		},
	}
	switch {
	case status.Level != types.LevelMonitoring:
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("%s: %s", status.Level, status.Reason)
	case len(status.PausedFunctions) > 0:
		result.Status = StatusDegraded
		result.Message = "some operations are paused"
	}
	return result
}

// checkAuditSinks pings sinks that support it. An unreachable sink only
// delays export; the trail stays in state and is replayed on recovery.
func (c *Checker) checkAuditSinks(ctx context.Context) Component {
	result := Component{Status: StatusHealthy, Details: map[string]any{}}
	for _, sink := range c.app.AuditSinks() {
		state := "ok"
		if pinger, ok := sink.(interface{ Ping(context.Context) error }); ok {
			if err := pinger.Ping(ctx); err != nil {
				state = "unreachable"
				result.Status = StatusDegraded
				result.Message = fmt.Sprintf("%s: %v", sink.Name(), err)
			}
		}
		result.Details[sink.Name()] = state
	}
	return result
}

func (c *Checker) checkTelemetry(context.Context) Component {
	if err := c.app.Telemetry().Ready(); err != nil {
		return Component{Status: StatusDegraded, Message: err.Error()}
	}
	return Component{Status: StatusHealthy}
}

func (c *Checker) checkInvariants(ctx context.Context) Component {
	if err := c.app.CheckInvariants(ctx); err != nil {
		c.logger.Error("invariant check failed", "error", err)
		return Component{Status: StatusUnhealthy, Message: err.Error()}
	}
	return Component{Status: StatusHealthy}
}

// Router returns a router serving the health endpoints.
func (c *Checker) Router() *mux.Router {
	router := mux.NewRouter()
	c.RegisterRoutes(router)
	return router
}

// RegisterRoutes mounts the health endpoints on router.
func (c *Checker) RegisterRoutes(router *mux.Router) {
	sub := router.Methods(http.MethodGet).Subrouter()
	sub.HandleFunc("/health", c.handleLive)
	sub.HandleFunc("/health/ready", c.reportHandler(false))
	sub.HandleFunc("/health/detailed", c.reportHandler(true))
}

func (c *Checker) handleLive(w http.ResponseWriter, _ *http.Request) {
	height, _ := c.app.LastBlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"height":    height,
		"timestamp": c.now().UTC().Format(time.RFC3339),
	})
}

func (c *Checker) reportHandler(detailed bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := c.Check(r.Context(), detailed)
		if err != nil {
			c.logger.Error("health check failed", "detailed", detailed, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "error", "message": err.Error()})
			return
		}
		code := http.StatusOK
		if report.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, report)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
