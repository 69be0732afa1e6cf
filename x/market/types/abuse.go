package types

import (
	"fmt"
	"sort"
	"time"

	errorsmod "cosmossdk.io/errors"
)

// CircuitLevel is the escalation level of the circuit breaker
type CircuitLevel int32

const (
	LevelMonitoring CircuitLevel = 0
	LevelThrottled  CircuitLevel = 1
	LevelPaused     CircuitLevel = 2
)

func (l CircuitLevel) String() string {
	switch l {
	case LevelMonitoring:
		return "monitoring"
	case LevelThrottled:
		return "throttled"
	case LevelPaused:
		return "paused"
	default:
		return fmt.Sprintf("level(%d)", int32(l))
	}
}

// MarshalText encodes the level by name.
func (l CircuitLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText decodes a level name.
func (l *CircuitLevel) UnmarshalText(text []byte) error {
	level, err := ParseCircuitLevel(string(text))
	if err != nil {
		return err
	}
	*l = level
	return nil
}

// ParseCircuitLevel parses a level name or its numeric form.
func ParseCircuitLevel(s string) (CircuitLevel, error) {
	switch s {
	case "monitoring", "0", "":
		return LevelMonitoring, nil
	case "throttled", "1":
		return LevelThrottled, nil
	case "paused", "2":
		return LevelPaused, nil
	}
	return LevelMonitoring, fmt.Errorf("unknown circuit level %q", s)
}

// Valid reports whether the level is one of the three defined levels.
func (l CircuitLevel) Valid() bool {
	return l >= LevelMonitoring && l <= LevelPaused
}

// Operation names used for selective pausing, cooldowns and metrics labels.
const (
	FnPostJob               = "post_job"
	FnClaimJob              = "claim_job"
	FnSubmitProof           = "submit_proof"
	FnVerifyProof           = "verify_proof"
	FnChallengeProof        = "challenge_proof"
	FnResolveChallenge      = "resolve_challenge"
	FnExpireChallenge       = "expire_challenge"
	FnMarkJobFailed         = "mark_job_failed"
	FnClaimAbandonedPayment = "claim_abandoned_payment"
	FnExpireJob             = "expire_job"
	FnDisputeResult         = "dispute_result"
	FnResolveDispute        = "resolve_dispute"
	FnSettleJob             = "settle_job"
	FnRateProvider          = "rate_provider"
)

var knownFunctions = map[string]struct{}{
	FnPostJob: {}, FnClaimJob: {}, FnSubmitProof: {}, FnVerifyProof: {},
	FnChallengeProof: {}, FnResolveChallenge: {}, FnExpireChallenge: {},
	FnMarkJobFailed: {}, FnClaimAbandonedPayment: {}, FnExpireJob: {},
	FnDisputeResult: {}, FnResolveDispute: {}, FnSettleJob: {}, FnRateProvider: {},
}

// IsKnownFunction reports whether fn names a pausable operation.
func IsKnownFunction(fn string) bool {
	_, ok := knownFunctions[fn]
	return ok
}

// KnownFunctions returns the pausable operation names in sorted order.
func KnownFunctions() []string {
	out := make([]string, 0, len(knownFunctions))
	for fn := range knownFunctions {
		out = append(out, fn)
	}
	sort.Strings(out)
	return out
}

// CooldownFunctions are the sensitive operations subject to the per-caller
// cooldown while throttled.
var CooldownFunctions = map[string]struct{}{
	FnPostJob:        {},
	FnClaimJob:       {},
	FnChallengeProof: {},
}

// PauseInfo describes why an operation is individually paused.
type PauseInfo struct {
	Reason string    `json:"reason"`
	Actor  string    `json:"actor"`
	Since  time.Time `json:"since"`
}

// AbuseState is the process-wide abuse controller state. It carries the
// decision logic; the keeper loads one value per call and persists it back.
type AbuseState struct {
	Failures   uint64 `json:"failures"`
	Successes  uint64 `json:"successes"`
	Suspicious uint64 `json:"suspicious"`

	// BreakerRejections counts calls refused by a pause. It is informational
	// and never drives escalation.
	BreakerRejections uint64 `json:"breaker_rejections"`

	LastIncident    time.Time `json:"last_incident"`
	LastPause       time.Time `json:"last_pause"`
	LastLevelChange time.Time `json:"last_level_change"`

	Level       CircuitLevel `json:"level"`
	LevelReason string       `json:"level_reason,omitempty"`
	LevelActor  string       `json:"level_actor,omitempty"`

	PausedFunctions map[string]PauseInfo `json:"paused_functions,omitempty"`
}

// NewAbuseState returns a fresh state at the Monitoring level.
func NewAbuseState() AbuseState {
	return AbuseState{Level: LevelMonitoring, PausedFunctions: map[string]PauseInfo{}}
}

// ValidateLevelChange enforces that escalation moves up by at most one level.
// Downward changes are unrestricted.
func (s AbuseState) ValidateLevelChange(to CircuitLevel) error {
	if !to.Valid() {
		return errorsmod.Wrapf(ErrLevelSkip, "unknown level %d", to)
	}
	if to > s.Level+1 {
		return errorsmod.Wrapf(ErrLevelSkip, "%s -> %s", s.Level, to)
	}
	return nil
}

// SetLevel moves the breaker to a new level. It is the only place the level
// changes. Escalations reset the counters.
func (s *AbuseState) SetLevel(to CircuitLevel, actor, reason string, now time.Time) error {
	if err := s.ValidateLevelChange(to); err != nil {
		return err
	}
	if to == s.Level {
		return nil
	}
	if to > s.Level {
		s.Failures = 0
		s.Successes = 0
		s.Suspicious = 0
		s.BreakerRejections = 0
		s.LastIncident = now
	}
	if to == LevelPaused {
		s.LastPause = now
	}
	s.Level = to
	s.LevelActor = actor
	s.LevelReason = reason
	s.LastLevelChange = now
	return nil
}

// RecordFailure counts a failed job outcome as an incident.
func (s *AbuseState) RecordFailure(now time.Time) {
	s.Failures++
	s.LastIncident = now
}

// RecordSuccess counts a successful job outcome.
func (s *AbuseState) RecordSuccess() {
	s.Successes++
}

// RecordBreakerRejection counts a call refused by a pause. Unlike the other
// counters it is not an incident, so it does not delay auto recovery.
func (s *AbuseState) RecordBreakerRejection() {
	s.BreakerRejections++
}

// RecordSuspicious counts a suspicious signal as an incident.
func (s *AbuseState) RecordSuspicious(now time.Time) {
	s.Suspicious++
	s.LastIncident = now
}

// ShouldEscalate evaluates the escalation triggers against params. It returns
// a reason when the breaker should move up one level.
func (s AbuseState) ShouldEscalate(p Params) (string, bool) {
	if s.Level >= LevelPaused {
		return "", false
	}
	total := s.Failures + s.Successes
	if s.Failures >= p.MinFailuresForEscalation && total > 0 &&
		s.Failures*100 >= p.FailureRatePercent*total {
		return fmt.Sprintf("failure rate %d/%d", s.Failures, total), true
	}
	if s.Suspicious >= p.SuspiciousThreshold {
		return fmt.Sprintf("%d suspicious signals", s.Suspicious), true
	}
	return "", false
}

// CheckOperation is the precondition gate applied before every mutating call.
func (s AbuseState) CheckOperation(fn string) error {
	if s.Level == LevelPaused {
		return errorsmod.Wrapf(ErrCircuitPaused, "%s rejected: %s", fn, s.LevelReason)
	}
	if info, ok := s.PausedFunctions[fn]; ok {
		return errorsmod.Wrapf(ErrFunctionPaused, "%s paused by %s: %s", fn, info.Actor, info.Reason)
	}
	return nil
}

// CheckCooldown rejects a sensitive call made too soon after the caller's
// previous one while the breaker is throttled.
func (s AbuseState) CheckCooldown(fn string, last, now time.Time, p Params) error {
	if s.Level != LevelThrottled || last.IsZero() {
		return nil
	}
	if _, ok := CooldownFunctions[fn]; !ok {
		return nil
	}
	if ready := last.Add(p.ThrottleCooldown()); now.Before(ready) {
		return errorsmod.Wrapf(ErrCooldownActive, "%s available in %s", fn, ready.Sub(now))
	}
	return nil
}

// ShouldAutoRecover reports whether the quiet period has elapsed with no new
// incidents since the last level change.
func (s AbuseState) ShouldAutoRecover(p Params, now time.Time) bool {
	if !p.AutoRecoveryEnabled || s.Level == LevelMonitoring {
		return false
	}
	quietSince := s.LastIncident
	if s.LastLevelChange.After(quietSince) {
		quietSince = s.LastLevelChange
	}
	return !now.Before(quietSince.Add(p.QuietPeriod()))
}

// CanUnpause checks the minimum cooldown since the last pause.
func (s AbuseState) CanUnpause(p Params, now time.Time) error {
	if s.Level != LevelPaused {
		return nil
	}
	if ready := s.LastPause.Add(p.UnpauseCooldown()); now.Before(ready) {
		return errorsmod.Wrapf(ErrUnpauseCooldown, "unpause available at %s", ready.UTC().Format(time.RFC3339))
	}
	return nil
}

// PauseFunction disables a single operation.
func (s *AbuseState) PauseFunction(fn, actor, reason string, now time.Time) error {
	if !IsKnownFunction(fn) {
		return errorsmod.Wrap(ErrUnknownFunction, fn)
	}
	if s.PausedFunctions == nil {
		s.PausedFunctions = map[string]PauseInfo{}
	}
	s.PausedFunctions[fn] = PauseInfo{Reason: reason, Actor: actor, Since: now}
	return nil
}

// ResumeFunction re-enables a single operation.
func (s *AbuseState) ResumeFunction(fn string) error {
	if !IsKnownFunction(fn) {
		return errorsmod.Wrap(ErrUnknownFunction, fn)
	}
	delete(s.PausedFunctions, fn)
	return nil
}

// CircuitStatus is the read view of the circuit breaker.
type CircuitStatus struct {
	Level             CircuitLevel         `json:"level"`
	Reason            string               `json:"reason,omitempty"`
	Actor             string               `json:"actor,omitempty"`
	Failures          uint64               `json:"failures"`
	Successes         uint64               `json:"successes"`
	Suspicious        uint64               `json:"suspicious"`
	BreakerRejections uint64               `json:"breaker_rejections"`
	FailureRatePct    uint64               `json:"failure_rate_pct"`
	LastIncident      time.Time            `json:"last_incident"`
	LastPause         time.Time            `json:"last_pause"`
	LastLevelChange   time.Time            `json:"last_level_change"`
	PausedFunctions   map[string]PauseInfo `json:"paused_functions,omitempty"`
	AutoRecoveryAt    *time.Time           `json:"auto_recovery_at,omitempty"`
}

// Status builds the read view of the state.
func (s AbuseState) Status(p Params) CircuitStatus {
	status := CircuitStatus{
		Level:             s.Level,
		Reason:            s.LevelReason,
		Actor:             s.LevelActor,
		Failures:          s.Failures,
		Successes:         s.Successes,
		Suspicious:        s.Suspicious,
		BreakerRejections: s.BreakerRejections,
		LastIncident:      s.LastIncident,
		LastPause:         s.LastPause,
		LastLevelChange:   s.LastLevelChange,
		PausedFunctions:   s.PausedFunctions,
	}
	if total := s.Failures + s.Successes; total > 0 {
		status.FailureRatePct = s.Failures * 100 / total
	}
	if p.AutoRecoveryEnabled && s.Level != LevelMonitoring {
		quietSince := s.LastIncident
		if s.LastLevelChange.After(quietSince) {
			quietSince = s.LastLevelChange
		}
		at := quietSince.Add(p.QuietPeriod())
		status.AutoRecoveryAt = &at
	}
	return status
}
