package types

import (
	"context"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// StakeKeeper is the provider registry the market consumes for eligibility
// and Sybil correlation.
type StakeKeeper interface {
	IsActiveProvider(ctx context.Context, provider sdk.AccAddress) bool
	StakeOf(ctx context.Context, provider sdk.AccAddress) math.Int
	// ControllerOf returns the identity that operates the provider. Providers
	// sharing a controller are treated as one actor.
	ControllerOf(ctx context.Context, provider sdk.AccAddress) (sdk.AccAddress, bool)
	Slash(ctx context.Context, provider sdk.AccAddress, amount math.Int, reason string) (math.Int, error)
}

// EscrowAccount is the accounting view of one escrow.
type EscrowAccount struct {
	ID        string   `json:"id"`
	Depositor string   `json:"depositor"`
	Reserved  math.Int `json:"reserved"`
	Released  math.Int `json:"released"`
	Refunded  math.Int `json:"refunded"`
	Reclaimed math.Int `json:"reclaimed"`
}

// Held returns the value still custodied by the escrow.
func (a EscrowAccount) Held() math.Int {
	return orZero(a.Reserved).Add(orZero(a.Reclaimed)).Sub(orZero(a.Released)).Sub(orZero(a.Refunded))
}

func orZero(i math.Int) math.Int {
	if i.IsNil() {
		return math.ZeroInt()
	}
	return i
}

// EscrowKeeper custodies job payments and challenge stakes.
type EscrowKeeper interface {
	Reserve(ctx context.Context, escrowID string, from sdk.AccAddress, amount math.Int) error
	Release(ctx context.Context, escrowID string, to sdk.AccAddress, amount math.Int) error
	Refund(ctx context.Context, escrowID string, to sdk.AccAddress, amount math.Int) error
	// Reclaim pulls up to amount back from a previous recipient into the escrow
	// and returns what could actually be recovered.
	Reclaim(ctx context.Context, escrowID string, from sdk.AccAddress, amount math.Int) (math.Int, error)
	Account(ctx context.Context, escrowID string) (EscrowAccount, bool)
}

// ReputationKeeper tracks provider trust scores.
type ReputationKeeper interface {
	RecordOutcome(ctx context.Context, provider sdk.AccAddress, jobID uint64, success bool) error
	Rate(ctx context.Context, buyer, provider sdk.AccAddress, jobID uint64, stars uint32, feedback string) error
	// DecayedScore returns the score in [0, 1] after time decay.
	DecayedScore(ctx context.Context, provider sdk.AccAddress) math.LegacyDec
}
