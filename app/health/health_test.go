package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cosmossdk.io/log"
	dbm "github.com/cosmos/cosmos-db"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/require"

	"github.com/paw-chain/pawmarket/app"
	marketkeeper "github.com/paw-chain/pawmarket/x/market/keeper"
	"github.com/paw-chain/pawmarket/x/market/types"
)

var genesisTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newChecker(t *testing.T, initialized bool) (*Checker, *app.MarketApp, *app.ManualClock) {
	t.Helper()
	clock := app.NewManualClock(genesisTime)
	marketApp, err := app.NewMarketApp(context.Background(), log.NewNopLogger(), dbm.NewMemDB(), app.Config{}, app.WithClock(clock))
	require.NoError(t, err)
	if initialized {
		cfg := app.DefaultGenesisConfig()
		cfg.GenesisTime = genesisTime
		doc, err := app.NewGenesisDocFromConfig(cfg)
		require.NoError(t, err)
		require.NoError(t, marketApp.InitChain(context.Background(), doc))
	}

	checker, err := NewChecker(log.NewNopLogger(), marketApp, DefaultConfig())
	require.NoError(t, err)
	checker.now = clock.Now
	return checker, marketApp, clock
}

func TestNewChecker(t *testing.T) {
	_, err := NewChecker(log.NewNopLogger(), nil, DefaultConfig())
	require.ErrorContains(t, err, "market app is required")

	_, marketApp, _ := newChecker(t, false)
	_, err = NewChecker(log.NewNopLogger(), marketApp, Config{})
	require.ErrorContains(t, err, "max response time")
}

func TestUninitializedStateIsUnhealthy(t *testing.T) {
	checker, _, _ := newChecker(t, false)
	health, err := checker.Check(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, StatusUnhealthy, health.Status)
	require.Equal(t, StatusUnhealthy, health.Components["state"].Status)
}

func TestStaleStateIsDegraded(t *testing.T) {
	checker, _, clock := newChecker(t, true)
	health, err := checker.Check(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, StatusHealthy, health.Status)
	require.Equal(t, StatusHealthy, health.Components["invariants"].Status)

	clock.Advance(time.Hour)
	health, err = checker.Check(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, StatusDegraded, health.Components["state"].Status)
	require.Equal(t, StatusDegraded, health.Status)
}

func TestPausedBreakerIsDegraded(t *testing.T) {
	checker, marketApp, _ := newChecker(t, true)
	guardian := marketkeeper.DefaultAuthority()
	require.NoError(t, marketApp.Deliver(context.Background(), "set_circuit_level", guardian, func(ctx sdk.Context) error {
		return marketApp.MarketKeeper.SetCircuitLevel(ctx, guardian, types.LevelThrottled, "load test")
	}))

	health, err := checker.Check(context.Background(), true)
	require.NoError(t, err)
	breaker := health.Components["circuit_breaker"]
	require.Equal(t, StatusDegraded, breaker.Status)
	require.Contains(t, breaker.Message, "load test")
	require.Equal(t, "throttled", breaker.Details["level"])
}

func TestCachedResult(t *testing.T) {
	checker, _, clock := newChecker(t, true)
	first, err := checker.Check(context.Background(), false)
	require.NoError(t, err)

	second, err := checker.Check(context.Background(), false)
	require.NoError(t, err)
	require.Same(t, first, second)

	clock.Advance(DefaultConfig().CacheDuration)
	third, err := checker.Check(context.Background(), false)
	require.NoError(t, err)
	require.NotSame(t, first, third)
}

func TestEndpoints(t *testing.T) {
	checker, _, _ := newChecker(t, true)
	router := checker.Router()

	tests := []struct {
		path   string
		status int
	}{
		{"/health", http.StatusOK},
		{"/health/ready", http.StatusOK},
		{"/health/detailed", http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.NotEmpty(t, body["status"])
		})
	}

	unready, _, _ := newChecker(t, false)
	rec := httptest.NewRecorder()
	unready.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
