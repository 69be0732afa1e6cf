package types

// Event types for the market module. Each audited action is emitted as an
// event of the same name.
const (
	// Job events
	EventTypeJobPosted       = "job_posted"
	EventTypeJobClaimed      = "job_claimed"
	EventTypeJobCompleted    = "job_completed"
	EventTypeJobFailed       = "job_failed"
	EventTypeJobRequeued     = "job_requeued"
	EventTypeJobExpired      = "job_expired"
	EventTypeJobSettled      = "job_settled"
	EventTypeJobAbandoned    = "job_abandoned"
	EventTypeDisputeRaised   = "dispute_raised"
	EventTypeDisputeResolved = "dispute_resolved"
	EventTypeProviderRated   = "provider_rated"
	EventTypePaymentReleased = "payment_released"
	EventTypePaymentRefunded = "payment_refunded"
	EventTypePaymentReversed = "payment_reversed"

	// Proof events
	EventTypeProofSubmitted = "proof_submitted"
	EventTypeProofVerified  = "proof_verified"
	EventTypeProofRejected  = "proof_rejected"

	// Challenge events
	EventTypeChallengeRaised   = "challenge_raised"
	EventTypeChallengeResolved = "challenge_resolved"
	EventTypeChallengeExpired  = "challenge_expired"

	// Circuit breaker and admin events
	EventTypeCircuitLevelChanged = "circuit_level_changed"
	EventTypeCircuitRecovered    = "circuit_recovered"
	EventTypeFunctionPaused      = "function_paused"
	EventTypeFunctionResumed     = "function_resumed"
	EventTypeAbuseSignal         = "abuse_signal"
	EventTypeRoleGranted         = "role_granted"
	EventTypeRoleRevoked         = "role_revoked"
	EventTypeProviderSlashed     = "provider_slashed"
	EventTypeParamsUpdated       = "params_updated"
)

// Event attribute keys
const (
	AttributeKeyJobID       = "job_id"
	AttributeKeyBuyer       = "buyer"
	AttributeKeyProvider    = "provider"
	AttributeKeyController  = "controller"
	AttributeKeyCapability  = "capability"
	AttributeKeyPayment     = "payment"
	AttributeKeyFee         = "fee"
	AttributeKeyAmount      = "amount"
	AttributeKeyDeadline    = "deadline"
	AttributeKeyStatus      = "status"
	AttributeKeyFromStatus  = "from_status"
	AttributeKeyOutcome     = "outcome"
	AttributeKeyReason      = "reason"
	AttributeKeyResultRef   = "result_ref"
	AttributeKeyContentHash = "content_hash"
	AttributeKeyAttempt     = "attempt"
	AttributeKeyChallengeID = "challenge_id"
	AttributeKeyChallenger  = "challenger"
	AttributeKeyStake       = "stake"
	AttributeKeyUpheld      = "upheld"
	AttributeKeyLevel       = "level"
	AttributeKeyFromLevel   = "from_level"
	AttributeKeyFunction    = "function"
	AttributeKeyRole        = "role"
	AttributeKeyAddress     = "address"
	AttributeKeyStars       = "stars"
	AttributeKeySignal      = "signal"
	AttributeKeyRecovered   = "recovered"
	AttributeKeyActor       = "actor"
	AttributeKeyAuditSeq    = "audit_seq"
)
