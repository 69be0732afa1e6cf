package types

import "fmt"

const (
	// ModuleName defines the module name
	ModuleName = "market"

	// StoreKey defines the primary module store key
	StoreKey = ModuleName

	// FeeCollectorName is the derivation key of the protocol fee account
	FeeCollectorName = "market_fee_collector"
)

// JobEscrowID returns the escrow account identifier holding a job's payment.
func JobEscrowID(jobID uint64) string {
	return fmt.Sprintf("job/%d", jobID)
}

// ChallengeEscrowID returns the escrow account identifier holding a challenger's stake.
func ChallengeEscrowID(challengeID uint64) string {
	return fmt.Sprintf("challenge/%d", challengeID)
}
