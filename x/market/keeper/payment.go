package keeper

import (
	"context"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/paw-chain/pawmarket/x/market/types"
)

// releasePayment pays a completed job out of escrow. The job record, with
// ProviderPaid and FeePaid already set, must be stored before calling.
func (k Keeper) releasePayment(ctx context.Context, job types.Job) error {
	escrowID := types.JobEscrowID(job.ID)
	if job.ProviderPaid.IsPositive() {
		if err := k.escrow.Release(ctx, escrowID, job.ProviderAddress(), job.ProviderPaid); err != nil {
			return err
		}
	}
	if job.FeePaid.IsPositive() {
		if err := k.escrow.Release(ctx, escrowID, k.feeCollector, job.FeePaid); err != nil {
			return err
		}
	}
	k.metrics.EscrowReleased.Add(amountValue(job.ProviderPaid.Add(job.FeePaid)))
	return k.audit(ctx, types.EventTypePaymentReleased, "", job.ID, map[string]string{
		types.AttributeKeyProvider: job.Provider,
		types.AttributeKeyAmount:   job.ProviderPaid.String(),
		types.AttributeKeyFee:      job.FeePaid.String(),
	})
}

// refundHeld returns whatever the job escrow still holds to the buyer.
func (k Keeper) refundHeld(ctx context.Context, job types.Job) error {
	escrowID := types.JobEscrowID(job.ID)
	account, found := k.escrow.Account(ctx, escrowID)
	if !found {
		return nil
	}
	held := account.Held()
	if !held.IsPositive() {
		return nil
	}
	if err := k.escrow.Refund(ctx, escrowID, job.BuyerAddress(), held); err != nil {
		return err
	}
	k.metrics.EscrowRefunded.Add(amountValue(held))
	return k.audit(ctx, types.EventTypePaymentRefunded, "", job.ID, map[string]string{
		types.AttributeKeyBuyer:  job.Buyer,
		types.AttributeKeyAmount: held.String(),
	})
}

// reversePayment claws back a released payment as far as the provider and
// the fee collector can still cover it and refunds the escrow to the buyer.
// The job is passed with its provider still set.
func (k Keeper) reversePayment(ctx context.Context, job *types.Job, provider sdk.AccAddress) error {
	escrowID := types.JobEscrowID(job.ID)

	recoveredShare := math.ZeroInt()
	if job.ProviderPaid.IsPositive() && provider != nil {
		got, err := k.escrow.Reclaim(ctx, escrowID, provider, job.ProviderPaid)
		if err != nil {
			return err
		}
		recoveredShare = got
	}
	recoveredFee := math.ZeroInt()
	if job.FeePaid.IsPositive() {
		got, err := k.escrow.Reclaim(ctx, escrowID, k.feeCollector, job.FeePaid)
		if err != nil {
			return err
		}
		recoveredFee = got
	}

	job.ProviderPaid = job.ProviderPaid.Sub(recoveredShare)
	job.FeePaid = job.FeePaid.Sub(recoveredFee)
	if err := k.setJob(ctx, *job); err != nil {
		return err
	}

	recovered := recoveredShare.Add(recoveredFee)
	k.metrics.EscrowReversed.Add(amountValue(recovered))
	if !job.ProviderPaid.IsZero() || !job.FeePaid.IsZero() {
		k.Logger(ctx).Warn("payment only partially recovered",
			"job_id", job.ID, "unrecovered_share", job.ProviderPaid, "unrecovered_fee", job.FeePaid)
	}
	if err := k.audit(ctx, types.EventTypePaymentReversed, "", job.ID, map[string]string{
		types.AttributeKeyProvider: provider.String(),
		types.AttributeKeyAmount:   recoveredShare.String(),
		types.AttributeKeyFee:      recoveredFee.String(),
	}); err != nil {
		return err
	}
	return k.refundHeld(ctx, *job)
}
