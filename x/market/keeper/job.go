package keeper

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	storetypes "cosmossdk.io/store/types"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/paw-chain/pawmarket/x/market/types"
)

// GetJob returns a job by id.
func (k Keeper) GetJob(ctx context.Context, id uint64) (types.Job, error) {
	var job types.Job
	found, err := k.getJSON(ctx, GetJobKey(id), &job)
	if err != nil {
		return types.Job{}, err
	}
	if !found {
		return types.Job{}, errorsmod.Wrapf(types.ErrJobNotFound, "job %d", id)
	}
	normalizeJob(&job)
	return job, nil
}

// setJob stores a job and keeps the status and active indexes in step with
// the stored record.
func (k Keeper) setJob(ctx context.Context, job types.Job) error {
	store := k.getStore(ctx)

	var previous types.Job
	found, err := k.getJSON(ctx, GetJobKey(job.ID), &previous)
	if err != nil {
		return err
	}
	if found {
		store.Delete(GetJobByStatusKey(previous.Status, job.ID))
	}

	if err := k.setJSON(ctx, GetJobKey(job.ID), job); err != nil {
		return err
	}
	store.Set(GetJobByStatusKey(job.Status, job.ID), []byte{})

	switch {
	case job.Status.IsActive() && !(found && previous.Status.IsActive()):
		store.Set(GetActiveJobKey(job.ID), []byte{})
		k.metrics.ActiveJobs.Inc()
	case !job.Status.IsActive() && found && previous.Status.IsActive():
		store.Delete(GetActiveJobKey(job.ID))
		k.metrics.ActiveJobs.Dec()
	}
	return nil
}

// transitionJob moves a job along one edge of the lifecycle table, persists it
// and writes the audit record for the new status. All status changes go
// through here.
func (k Keeper) transitionJob(
	ctx context.Context,
	job *types.Job,
	to types.JobStatus,
	action, actor string,
	attrs map[string]string,
) error {
	from := job.Status
	if err := types.ValidateTransition(from, to); err != nil {
		return errorsmod.Wrapf(err, "job %d", job.ID)
	}
	job.Status = to
	if !to.HasAssignedProvider() {
		job.Provider = ""
	}
	if err := job.Validate(); err != nil {
		return err
	}
	if err := k.setJob(ctx, *job); err != nil {
		return err
	}

	if attrs == nil {
		attrs = map[string]string{}
	}
	attrs[types.AttributeKeyFromStatus] = from.String()
	attrs[types.AttributeKeyStatus] = to.String()
	return k.audit(ctx, action, actor, job.ID, attrs)
}

// IterateJobs walks every job in id order.
func (k Keeper) IterateJobs(ctx context.Context, cb func(job types.Job) (stop bool, err error)) error {
	iter := storetypes.KVStorePrefixIterator(k.getStore(ctx), JobKeyPrefix)
	defer iter.Close()

	for ; iter.Valid(); iter.Next() {
		var job types.Job
		if err := json.Unmarshal(iter.Value(), &job); err != nil {
			return err
		}
		normalizeJob(&job)
		stop, err := cb(job)
		if err != nil {
			return err
		}
		if stop {
			break
		}
	}
	return nil
}

// getProof returns the current proof of a job.
func (k Keeper) getProof(ctx context.Context, jobID uint64) (types.ProofRecord, bool, error) {
	var proof types.ProofRecord
	found, err := k.getJSON(ctx, GetProofKey(jobID), &proof)
	return proof, found, err
}

func (k Keeper) setProof(ctx context.Context, proof types.ProofRecord) error {
	return k.setJSON(ctx, GetProofKey(proof.JobID), proof)
}

// archiveProof moves the current proof of a job into its history so a
// requeued job can take a fresh submission.
func (k Keeper) archiveProof(ctx context.Context, jobID uint64) error {
	proof, found, err := k.getProof(ctx, jobID)
	if err != nil || !found {
		return err
	}
	if err := k.setJSON(ctx, GetProofHistoryKey(jobID, proof.Attempt), proof); err != nil {
		return err
	}
	k.getStore(ctx).Delete(GetProofKey(jobID))
	return nil
}

// recordControllerFailure marks a controller as having failed a job. Any
// provider under the same controller is then barred from reclaiming it.
func (k Keeper) recordControllerFailure(ctx context.Context, jobID uint64, provider sdk.AccAddress) sdk.AccAddress {
	controller, ok := k.stake.ControllerOf(ctx, provider)
	if !ok {
		controller = provider
	}
	k.getStore(ctx).Set(GetControllerFailureKey(jobID, controller), []byte{})
	return controller
}

func (k Keeper) controllerFailed(ctx context.Context, jobID uint64, controller sdk.AccAddress) bool {
	return k.getStore(ctx).Has(GetControllerFailureKey(jobID, controller))
}

func (k Keeper) recordControllerClaim(ctx context.Context, controller sdk.AccAddress, jobID uint64, at time.Time) {
	k.getStore(ctx).Set(GetControllerClaimKey(controller, jobID), sdk.Uint64ToBigEndian(uint64(at.Unix())))
}

// ControllerClaims returns the ids of every job claimed by providers under a
// controller.
func (k Keeper) ControllerClaims(ctx context.Context, controller sdk.AccAddress) []uint64 {
	prefix := GetControllerClaimPrefix(controller)
	iter := storetypes.KVStorePrefixIterator(k.getStore(ctx), prefix)
	defer iter.Close()

	var ids []uint64
	for ; iter.Valid(); iter.Next() {
		ids = append(ids, sdk.BigEndianToUint64(iter.Key()[len(prefix):]))
	}
	return ids
}

func (k Keeper) enqueueSettlement(ctx context.Context, job types.Job) {
	k.getStore(ctx).Set(GetSettlementQueueKey(job.ChallengeWindowEnd, job.ID), []byte{})
}

func (k Keeper) dequeueSettlement(ctx context.Context, job types.Job) {
	k.getStore(ctx).Delete(GetSettlementQueueKey(job.ChallengeWindowEnd, job.ID))
}

func normalizeJob(job *types.Job) {
	if job.Payment.IsNil() {
		job.Payment = math.ZeroInt()
	}
	if job.ProviderPaid.IsNil() {
		job.ProviderPaid = math.ZeroInt()
	}
	if job.FeePaid.IsNil() {
		job.FeePaid = math.ZeroInt()
	}
}

func jobAttrs(job types.Job, kv ...string) map[string]string {
	attrs := map[string]string{
		types.AttributeKeyBuyer: job.Buyer,
	}
	if job.Provider != "" {
		attrs[types.AttributeKeyProvider] = job.Provider
	}
	for i := 0; i+1 < len(kv); i += 2 {
		attrs[kv[i]] = kv[i+1]
	}
	return attrs
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}
