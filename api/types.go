package api

import (
	"time"

	"cosmossdk.io/math"

	ledgertypes "github.com/paw-chain/pawmarket/x/ledger/types"
	"github.com/paw-chain/pawmarket/x/market/types"
)

// ==================== Common Types ====================

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code,omitempty"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// PageResponse carries the cursor for the next page of a listing.
type PageResponse struct {
	NextKey []byte `json:"next_key,omitempty"`
	Total   uint64 `json:"total,omitempty"`
}

// ==================== Job Types ====================

// PostJobRequest posts a job. Transferred is the value attached to the
// posting and must cover the payment ceiling.
type PostJobRequest struct {
	Capability     string    `json:"capability" binding:"required"`
	InputRef       string    `json:"input_ref" binding:"required"`
	PaymentCeiling math.Int  `json:"payment_ceiling"`
	Deadline       time.Time `json:"deadline" binding:"required"`
	Transferred    math.Int  `json:"transferred"`
}

// PostJobResponse returns the id of a posted job.
type PostJobResponse struct {
	JobID uint64 `json:"job_id"`
}

// JobListResponse is one page of jobs.
type JobListResponse struct {
	Jobs       []types.Job  `json:"jobs"`
	Pagination PageResponse `json:"pagination"`
}

// JobStatusResponse reports only the status of a job.
type JobStatusResponse struct {
	JobID  uint64 `json:"job_id"`
	Status string `json:"status"`
}

// SubmitProofRequest submits proof of computation for a claimed job.
type SubmitProofRequest struct {
	Payload     []byte            `json:"payload" binding:"required"`
	Commitments types.Commitments `json:"commitments"`
	ResultRef   string            `json:"result_ref" binding:"required"`
}

// VerifyProofResponse reports the verifier's verdict.
type VerifyProofResponse struct {
	JobID uint64 `json:"job_id"`
	Valid bool   `json:"valid"`
}

// BatchVerifyRequest verifies several submitted proofs at once.
type BatchVerifyRequest struct {
	JobIDs []uint64 `json:"job_ids" binding:"required"`
}

// BatchVerifyItem is the outcome for one job of a batch. Error and Code are
// set when the job was rejected instead of verified.
type BatchVerifyItem struct {
	JobID uint64 `json:"job_id"`
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// BatchVerifyResponse holds one outcome per requested job.
type BatchVerifyResponse struct {
	Results []BatchVerifyItem `json:"results"`
}

// ChallengeRequest opens a staked challenge against a completed job.
type ChallengeRequest struct {
	EvidenceRef string   `json:"evidence_ref" binding:"required"`
	Stake       math.Int `json:"stake"`
}

// ChallengeResponse returns the id of an opened challenge.
type ChallengeResponse struct {
	ChallengeID uint64 `json:"challenge_id"`
}

// ResolveChallengeRequest records a resolver's ruling on a challenge.
type ResolveChallengeRequest struct {
	Upheld bool `json:"upheld"`
}

// ReasonRequest carries a free-form reason for failures, disputes and pauses.
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// ResolveDisputeRequest records a resolver's ruling on a dispute.
type ResolveDisputeRequest struct {
	FavorBuyer bool `json:"favor_buyer"`
}

// RateProviderRequest rates the provider of a settled job.
type RateProviderRequest struct {
	Stars    uint32 `json:"stars" binding:"required,min=1,max=5"`
	Feedback string `json:"feedback,omitempty"`
}

// ==================== Ledger Types ====================

// BalanceResponse represents a balance response
type BalanceResponse struct {
	Address string   `json:"address"`
	Balance math.Int `json:"balance"`
}

// TransferRequest moves free balance to another account.
type TransferRequest struct {
	Recipient string   `json:"recipient" binding:"required"`
	Amount    math.Int `json:"amount"`
}

// RegisterProviderRequest bonds stake and registers the caller as a provider.
type RegisterProviderRequest struct {
	Controller string   `json:"controller,omitempty"`
	Stake      math.Int `json:"stake"`
	SigningKey []byte   `json:"signing_key,omitempty"`
}

// AddStakeRequest bonds more stake.
type AddStakeRequest struct {
	Amount math.Int `json:"amount"`
}

// ProviderResponse is a provider with its reputation.
type ProviderResponse struct {
	Provider      ledgertypes.Provider      `json:"provider"`
	Reputation    ledgertypes.Reputation    `json:"reputation"`
	DecayedScore  math.LegacyDec            `json:"decayed_score"`
	SlashRecords  []ledgertypes.SlashRecord `json:"slash_records,omitempty"`
	ClaimedJobIDs []uint64                  `json:"claimed_job_ids,omitempty"`
}

// ==================== Admin Types ====================

// RoleRequest grants or revokes a role.
type RoleRequest struct {
	Role    string `json:"role" binding:"required"`
	Address string `json:"address" binding:"required"`
}

// CircuitLevelRequest moves the circuit breaker one level.
type CircuitLevelRequest struct {
	Level  string `json:"level" binding:"required"`
	Reason string `json:"reason"`
}

// SlashRequest slashes a provider's stake.
type SlashRequest struct {
	Provider string   `json:"provider" binding:"required"`
	Amount   math.Int `json:"amount"`
	Reason   string   `json:"reason"`
}

// SlashResponse reports how much stake was actually slashed.
type SlashResponse struct {
	Slashed math.Int `json:"slashed"`
}

// TokenResponse is returned when an operator issues an API token.
type TokenResponse struct {
	Token     string    `json:"token"`
	Address   string    `json:"address"`
	Roles     []string  `json:"roles,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}
