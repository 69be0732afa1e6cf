package types

import (
	"errors"

	sdkerrors "cosmossdk.io/errors"
)

// Market module sentinel errors. Every rejection carries one of these so callers
// get a stable reason string.
var (
	// Input validation errors
	ErrInvalidJob        = sdkerrors.Register(ModuleName, 2, "invalid job")
	ErrInvalidAmount     = sdkerrors.Register(ModuleName, 3, "amount out of bounds")
	ErrInvalidDeadline   = sdkerrors.Register(ModuleName, 4, "invalid deadline")
	ErrInsufficientFunds = sdkerrors.Register(ModuleName, 5, "transferred value below payment ceiling")
	ErrInvalidParams     = sdkerrors.Register(ModuleName, 6, "invalid params")

	// Lifecycle errors
	ErrJobNotFound       = sdkerrors.Register(ModuleName, 10, "job not found")
	ErrInvalidTransition = sdkerrors.Register(ModuleName, 11, "invalid job status transition")
	ErrAlreadyClaimed    = sdkerrors.Register(ModuleName, 12, "job already claimed")
	ErrDeadlinePassed    = sdkerrors.Register(ModuleName, 13, "job deadline passed")
	ErrDeadlineNotPassed = sdkerrors.Register(ModuleName, 14, "job deadline not reached")
	ErrGracePeriodActive = sdkerrors.Register(ModuleName, 15, "abandonment grace period not elapsed")
	ErrNotAssigned       = sdkerrors.Register(ModuleName, 16, "caller is not the assigned provider")
	ErrNotBuyer          = sdkerrors.Register(ModuleName, 17, "caller is not the job buyer")
	ErrChallengeWindow   = sdkerrors.Register(ModuleName, 18, "challenge window still open")

	// Provider eligibility errors
	ErrProviderNotActive  = sdkerrors.Register(ModuleName, 20, "provider not active")
	ErrInsufficientStake  = sdkerrors.Register(ModuleName, 21, "insufficient provider stake")
	ErrLowReputation      = sdkerrors.Register(ModuleName, 22, "provider reputation below minimum")
	ErrSybilReattempt     = sdkerrors.Register(ModuleName, 23, "controller already failed this job")
	ErrSelfDealing        = sdkerrors.Register(ModuleName, 24, "provider controlled by the buyer")
	ErrNoControllerRecord = sdkerrors.Register(ModuleName, 25, "provider controller unknown")

	// Proof errors
	ErrProofNotFound      = sdkerrors.Register(ModuleName, 30, "proof not found")
	ErrProofExists        = sdkerrors.Register(ModuleName, 31, "proof already submitted")
	ErrProofNotSubmitted  = sdkerrors.Register(ModuleName, 32, "proof is not awaiting verification")
	ErrProofNotVerified   = sdkerrors.Register(ModuleName, 33, "proof is not verified")
	ErrInvalidProof       = sdkerrors.Register(ModuleName, 34, "invalid proof submission")
	ErrCommitmentMismatch = sdkerrors.Register(ModuleName, 35, "proof commitments do not match job")
	ErrInvalidOutput      = sdkerrors.Register(ModuleName, 36, "output commitment is the invalid sentinel")
	ErrInvalidSignature   = sdkerrors.Register(ModuleName, 37, "invalid proof signature")
	ErrBatchTooLarge      = sdkerrors.Register(ModuleName, 38, "batch exceeds maximum size")

	// Challenge and dispute errors
	ErrChallengeNotFound     = sdkerrors.Register(ModuleName, 40, "challenge not found")
	ErrChallengePending      = sdkerrors.Register(ModuleName, 41, "a challenge is already pending for this job")
	ErrChallengeClosed       = sdkerrors.Register(ModuleName, 42, "challenge window closed")
	ErrChallengeResolved     = sdkerrors.Register(ModuleName, 43, "challenge already resolved")
	ErrChallengeNotExpired   = sdkerrors.Register(ModuleName, 44, "challenge resolution deadline not reached")
	ErrInsufficientChallenge = sdkerrors.Register(ModuleName, 45, "challenge stake below minimum")
	ErrDisputeNotFound       = sdkerrors.Register(ModuleName, 46, "dispute not found")
	ErrInvalidRating         = sdkerrors.Register(ModuleName, 47, "rating must be between 1 and 5 stars")

	// Security errors
	ErrUnauthorized      = sdkerrors.Register(ModuleName, 50, "unauthorized operation")
	ErrRateLimitExceeded = sdkerrors.Register(ModuleName, 51, "rate limit exceeded")
	ErrCircuitPaused     = sdkerrors.Register(ModuleName, 52, "circuit breaker paused")
	ErrFunctionPaused    = sdkerrors.Register(ModuleName, 53, "operation paused")
	ErrCooldownActive    = sdkerrors.Register(ModuleName, 54, "caller cooldown active")
	ErrLevelSkip         = sdkerrors.Register(ModuleName, 55, "circuit level cannot skip a level")
	ErrUnpauseCooldown   = sdkerrors.Register(ModuleName, 56, "unpause cooldown not elapsed")
	ErrUnknownFunction   = sdkerrors.Register(ModuleName, 57, "unknown operation name")
	ErrInvalidRole       = sdkerrors.Register(ModuleName, 58, "invalid role")
)

// RecoverySuggestions provides actionable recovery steps for the common rejections
var RecoverySuggestions = map[error]string{
	ErrInvalidDeadline:   "Post the job with a deadline at least the minimum horizon in the future.",
	ErrInsufficientFunds: "Transfer at least the payment ceiling when posting a job.",
	ErrAlreadyClaimed:    "Another provider won the claim. Query active jobs and claim a different one.",
	ErrDeadlinePassed:    "The job can no longer be claimed or proven. The buyer may expire it for a refund.",
	ErrInsufficientStake: "Increase provider stake in the stake ledger above the minimum.",
	ErrSybilReattempt:    "A provider under the same controller already failed this job. Claim a different job.",
	ErrProofExists:       "A proof was already submitted for this job. Wait for verification.",
	ErrChallengePending:  "Wait for the pending challenge to be resolved or expire.",
	ErrRateLimitExceeded: "Too many postings in the time window. Wait for the window to reset.",
	ErrCircuitPaused:     "The marketplace is paused. Wait for a guardian to unpause or for auto-recovery.",
	ErrFunctionPaused:    "This operation is individually paused by a guardian.",
	ErrCooldownActive:    "The breaker is throttled. Wait for the per-caller cooldown to elapse.",
	ErrUnpauseCooldown:   "Unpause requires the minimum cooldown since the last pause.",
}

// GetRecoverySuggestion returns the recovery suggestion for an error
func GetRecoverySuggestion(err error) string {
	for target, suggestion := range RecoverySuggestions {
		if errors.Is(err, target) {
			return suggestion
		}
	}
	return "No recovery suggestion available. Check error message for details."
}

// IsAbuseRejection reports whether a rejection should count as a suspicious
// signal against the circuit breaker.
func IsAbuseRejection(err error) bool {
	return errors.Is(err, ErrRateLimitExceeded) ||
		errors.Is(err, ErrCooldownActive) ||
		errors.Is(err, ErrSybilReattempt) ||
		errors.Is(err, ErrSelfDealing)
}

// IsBreakerRejection reports whether a call was rejected by the breaker itself.
func IsBreakerRejection(err error) bool {
	return errors.Is(err, ErrCircuitPaused) || errors.Is(err, ErrFunctionPaused)
}
