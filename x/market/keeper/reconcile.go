package keeper

import (
	"context"
	"sort"

	"github.com/paw-chain/pawmarket/x/market/types"
)

// ReplayAuditTrail rebuilds every job's status from the audit trail and
// compares it with the stored jobs.
func (k Keeper) ReplayAuditTrail(ctx context.Context) (types.Reconciliation, error) {
	var result types.Reconciliation
	replayed := make(map[uint64]types.JobStatus)

	err := k.IterateAuditTrail(ctx, func(record types.AuditRecord) (bool, error) {
		result.RecordsReplayed++
		if record.JobID == 0 {
			return false, nil
		}
		name := record.Attr(types.AttributeKeyStatus)
		if name == "" {
			return false, nil
		}
		status, err := types.ParseJobStatus(name)
		if err != nil {
			return false, err
		}
		replayed[record.JobID] = status
		return false, nil
	})
	if err != nil {
		return types.Reconciliation{}, err
	}

	err = k.IterateJobs(ctx, func(job types.Job) (bool, error) {
		result.JobsChecked++
		if got := replayed[job.ID]; got != job.Status {
			result.Mismatches = append(result.Mismatches, types.JobMismatch{
				JobID:    job.ID,
				Stored:   job.Status,
				Replayed: got,
			})
		}
		delete(replayed, job.ID)
		return false, nil
	})
	if err != nil {
		return types.Reconciliation{}, err
	}

	// statuses replayed for jobs that are no longer stored
	orphans := make([]uint64, 0, len(replayed))
	for id := range replayed {
		orphans = append(orphans, id)
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i] < orphans[j] })
	for _, id := range orphans {
		result.Mismatches = append(result.Mismatches, types.JobMismatch{JobID: id, Replayed: replayed[id]})
	}
	if !result.Consistent() {
		k.Logger(ctx).Error("audit replay found mismatches", "count", len(result.Mismatches))
	}
	return result, nil
}
