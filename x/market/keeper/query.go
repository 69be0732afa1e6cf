package keeper

import (
	"context"
	"encoding/json"
	"fmt"

	storeprefix "cosmossdk.io/store/prefix"
	storetypes "cosmossdk.io/store/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/cosmos-sdk/types/query"

	"github.com/paw-chain/pawmarket/x/market/types"
)

// sanitizePagination caps the page size so enumeration cost stays bounded.
func sanitizePagination(p *query.PageRequest, maxLimit uint64) *query.PageRequest {
	if p == nil {
		return &query.PageRequest{Limit: maxLimit}
	}
	sanitized := *p
	if sanitized.Limit == 0 || sanitized.Limit > maxLimit {
		sanitized.Limit = maxLimit
	}
	return &sanitized
}

// JobStatus returns the lifecycle status of a job.
func (k Keeper) JobStatus(ctx context.Context, jobID uint64) (types.JobStatus, error) {
	job, err := k.GetJob(ctx, jobID)
	if err != nil {
		return types.JobStatusUnspecified, err
	}
	return job.Status, nil
}

// ActiveJobs pages through jobs that are posted, claimed, completed or
// disputed.
func (k Keeper) ActiveJobs(ctx context.Context, pageReq *query.PageRequest) ([]types.Job, *query.PageResponse, error) {
	return k.pageJobIndex(ctx, ActiveJobPrefix, pageReq)
}

// JobsByStatus pages through the jobs currently in one status.
func (k Keeper) JobsByStatus(ctx context.Context, status types.JobStatus, pageReq *query.PageRequest) ([]types.Job, *query.PageResponse, error) {
	return k.pageJobIndex(ctx, GetJobsByStatusPrefix(status), pageReq)
}

func (k Keeper) pageJobIndex(ctx context.Context, prefix []byte, pageReq *query.PageRequest) ([]types.Job, *query.PageResponse, error) {
	params, err := k.GetParams(ctx)
	if err != nil {
		return nil, nil, err
	}
	sanitized := sanitizePagination(pageReq, params.MaxPageSize)
	indexStore := storeprefix.NewStore(k.getStore(ctx), prefix)

	jobs := make([]types.Job, 0, sanitized.Limit)
	pageRes, err := query.Paginate(indexStore, sanitized, func(key []byte, _ []byte) error {
		job, err := k.GetJob(ctx, sdk.BigEndianToUint64(key))
		if err != nil {
			return fmt.Errorf("indexed job: %w", err)
		}
		jobs = append(jobs, job)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return jobs, pageRes, nil
}

// ProofHistory returns the archived proofs of earlier failed attempts on a
// job, oldest first.
func (k Keeper) ProofHistory(ctx context.Context, jobID uint64) ([]types.ProofRecord, error) {
	prefix := concat(ProofHistoryPrefix, sdk.Uint64ToBigEndian(jobID))
	iter := storetypes.KVStorePrefixIterator(k.getStore(ctx), prefix)
	defer iter.Close()

	var proofs []types.ProofRecord
	for ; iter.Valid(); iter.Next() {
		var proof types.ProofRecord
		if err := json.Unmarshal(iter.Value(), &proof); err != nil {
			return nil, err
		}
		proofs = append(proofs, proof)
	}
	return proofs, nil
}

// IterateProofs walks the current proof of every job.
func (k Keeper) IterateProofs(ctx context.Context, cb func(proof types.ProofRecord) (stop bool, err error)) error {
	iter := storetypes.KVStorePrefixIterator(k.getStore(ctx), ProofKeyPrefix)
	defer iter.Close()

	for ; iter.Valid(); iter.Next() {
		var proof types.ProofRecord
		if err := json.Unmarshal(iter.Value(), &proof); err != nil {
			return err
		}
		stop, err := cb(proof)
		if err != nil {
			return err
		}
		if stop {
			break
		}
	}
	return nil
}
