package types

import (
	"fmt"
	"time"

	"cosmossdk.io/math"
)

// Params defines the tunable parameters of the market module
type Params struct {
	// Posting
	MaxPayment                math.Int `json:"max_payment"`
	MinDeadlineHorizonSeconds uint64   `json:"min_deadline_horizon_seconds"`
	PostsPerMinute            uint32   `json:"posts_per_minute"`
	PostsPerHour              uint32   `json:"posts_per_hour"`

	// Provider eligibility
	MinProviderStake   math.Int       `json:"min_provider_stake"`
	MinReputationScore math.LegacyDec `json:"min_reputation_score"`

	// Payment and recovery
	ProtocolFeeRate      math.LegacyDec `json:"protocol_fee_rate"`
	AbandonGraceSeconds  uint64         `json:"abandon_grace_seconds"`
	MaxSettlementsPerRun uint32         `json:"max_settlements_per_run"`

	// Challenges
	ChallengeWindowSeconds     uint64   `json:"challenge_window_seconds"`
	ChallengeResolutionSeconds uint64   `json:"challenge_resolution_seconds"`
	MinChallengeStake          math.Int `json:"min_challenge_stake"`
	MaxBatchVerify             uint32   `json:"max_batch_verify"`

	// Circuit breaker
	ThrottleCooldownSeconds   uint64 `json:"throttle_cooldown_seconds"`
	UnpauseCooldownSeconds    uint64 `json:"unpause_cooldown_seconds"`
	AutoRecoveryEnabled       bool   `json:"auto_recovery_enabled"`
	QuietPeriodSeconds        uint64 `json:"quiet_period_seconds"`
	MinFailuresForEscalation  uint64 `json:"min_failures_for_escalation"`
	FailureRatePercent        uint64 `json:"failure_rate_percent"`
	SuspiciousThreshold       uint64 `json:"suspicious_threshold"`
	SuspiciousIntervalSeconds uint64 `json:"suspicious_interval_seconds"`

	// Queries
	MaxPageSize uint64 `json:"max_page_size"`
}

// DefaultParams returns default market parameters
func DefaultParams() Params {
	return Params{
		MaxPayment:                math.NewInt(1_000_000_000_000),
		MinDeadlineHorizonSeconds: 60,
		PostsPerMinute:            3,
		PostsPerHour:              10,

		MinProviderStake:   math.NewInt(10_000_000),
		MinReputationScore: math.LegacyNewDecWithPrec(20, 2),

		ProtocolFeeRate:      math.LegacyNewDecWithPrec(2, 2),
		AbandonGraceSeconds:  30 * 24 * 3600,
		MaxSettlementsPerRun: 100,

		ChallengeWindowSeconds:     24 * 3600,
		ChallengeResolutionSeconds: 3 * 24 * 3600,
		MinChallengeStake:          math.NewInt(100_000),
		MaxBatchVerify:             50,

		ThrottleCooldownSeconds:   300,
		UnpauseCooldownSeconds:    3600,
		AutoRecoveryEnabled:       true,
		QuietPeriodSeconds:        6 * 3600,
		MinFailuresForEscalation:  5,
		FailureRatePercent:        50,
		SuspiciousThreshold:       5,
		SuspiciousIntervalSeconds: 30,

		MaxPageSize: 100,
	}
}

// Validate checks that the parameters have valid values.
func (p Params) Validate() error {
	if p.MaxPayment.IsNil() || !p.MaxPayment.IsPositive() {
		return fmt.Errorf("max payment must be positive")
	}
	if p.MinDeadlineHorizonSeconds == 0 {
		return fmt.Errorf("min deadline horizon must be positive")
	}
	if p.PostsPerMinute == 0 || p.PostsPerHour == 0 {
		return fmt.Errorf("posting rate limits must be positive")
	}
	if p.PostsPerMinute > p.PostsPerHour {
		return fmt.Errorf("posts per minute (%d) exceeds posts per hour (%d)", p.PostsPerMinute, p.PostsPerHour)
	}
	if p.MinProviderStake.IsNil() || p.MinProviderStake.IsNegative() {
		return fmt.Errorf("min provider stake cannot be negative")
	}
	if p.MinReputationScore.IsNil() || p.MinReputationScore.IsNegative() || p.MinReputationScore.GT(math.LegacyOneDec()) {
		return fmt.Errorf("min reputation score must be within [0, 1]")
	}
	if p.ProtocolFeeRate.IsNil() || p.ProtocolFeeRate.IsNegative() || p.ProtocolFeeRate.GTE(math.LegacyOneDec()) {
		return fmt.Errorf("protocol fee rate must be within [0, 1)")
	}
	if p.ChallengeWindowSeconds == 0 || p.ChallengeResolutionSeconds == 0 {
		return fmt.Errorf("challenge periods must be positive")
	}
	if p.MinChallengeStake.IsNil() || !p.MinChallengeStake.IsPositive() {
		return fmt.Errorf("min challenge stake must be positive")
	}
	if p.MaxBatchVerify == 0 {
		return fmt.Errorf("max batch verify must be positive")
	}
	if p.FailureRatePercent == 0 || p.FailureRatePercent > 100 {
		return fmt.Errorf("failure rate percent must be within (0, 100]")
	}
	if p.MinFailuresForEscalation == 0 || p.SuspiciousThreshold == 0 {
		return fmt.Errorf("escalation thresholds must be positive")
	}
	if p.AutoRecoveryEnabled && p.QuietPeriodSeconds == 0 {
		return fmt.Errorf("quiet period must be positive when auto recovery is enabled")
	}
	// auto recovery must not leave Paused sooner than a guardian could
	if p.AutoRecoveryEnabled && p.QuietPeriodSeconds < p.UnpauseCooldownSeconds {
		return fmt.Errorf("quiet period (%ds) is shorter than the unpause cooldown (%ds)", p.QuietPeriodSeconds, p.UnpauseCooldownSeconds)
	}
	if p.MaxPageSize == 0 {
		return fmt.Errorf("max page size must be positive")
	}
	return nil
}

func (p Params) MinDeadlineHorizon() time.Duration { return seconds(p.MinDeadlineHorizonSeconds) }
func (p Params) AbandonGrace() time.Duration { return seconds(p.AbandonGraceSeconds) }
func (p Params) ChallengeWindow() time.Duration { return seconds(p.ChallengeWindowSeconds) }
func (p Params) ChallengeResolution() time.Duration { return seconds(p.ChallengeResolutionSeconds) }
func (p Params) ThrottleCooldown() time.Duration { return seconds(p.ThrottleCooldownSeconds) }
func (p Params) UnpauseCooldown() time.Duration { return seconds(p.UnpauseCooldownSeconds) }
func (p Params) QuietPeriod() time.Duration { return seconds(p.QuietPeriodSeconds) }
func (p Params) SuspiciousInterval() time.Duration { return seconds(p.SuspiciousIntervalSeconds) }

// ProtocolFee splits a payment into the provider share and the protocol fee.
func (p Params) ProtocolFee(payment math.Int) (providerShare, fee math.Int) {
	fee = p.ProtocolFeeRate.MulInt(payment).TruncateInt()
	return payment.Sub(fee), fee
}

func seconds(s uint64) time.Duration {
	return time.Duration(s) * time.Second
}
