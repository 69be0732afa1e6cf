package keeper

import (
	"context"
	"encoding/json"
	"strconv"

	storetypes "cosmossdk.io/store/types"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/paw-chain/pawmarket/x/market/types"
)

// audit appends an immutable record to the audit trail and emits the matching
// event.
func (k Keeper) audit(ctx context.Context, action, actor string, jobID uint64, attrs map[string]string) error {
	sdkCtx := sdk.UnwrapSDKContext(ctx)

	record := types.AuditRecord{
		Seq:        k.nextSequence(ctx, AuditSeqKey),
		Height:     sdkCtx.BlockHeight(),
		Time:       sdkCtx.BlockTime(),
		Action:     action,
		Actor:      actor,
		JobID:      jobID,
		Attributes: attrs,
	}
	if record.Attributes == nil {
		record.Attributes = map[string]string{}
	}
	if jobID != 0 {
		record.Attributes[types.AttributeKeyJobID] = strconv.FormatUint(jobID, 10)
	}

	if err := k.setJSON(ctx, GetAuditKey(record.Seq), record); err != nil {
		return err
	}
	if jobID != 0 {
		k.getStore(ctx).Set(GetAuditByJobKey(jobID, record.Seq), []byte{})
	}

	event := record.Event().AppendAttributes(sdk.NewAttribute(types.AttributeKeyAuditSeq, strconv.FormatUint(record.Seq, 10)))
	sdkCtx.EventManager().EmitEvent(event)

	k.Logger(ctx).Info("audit: "+action, "seq", record.Seq, "actor", actor, "job_id", jobID)
	k.metrics.AuditRecords.Inc()
	return nil
}

// LatestAuditSeq returns the sequence of the newest audit record, or 0 when
// the trail is empty.
func (k Keeper) LatestAuditSeq(ctx context.Context) uint64 {
	return k.peekSequence(ctx, AuditSeqKey) - 1
}

// GetAuditRecord returns one audit record.
func (k Keeper) GetAuditRecord(ctx context.Context, seq uint64) (types.AuditRecord, bool) {
	var record types.AuditRecord
	found, err := k.getJSON(ctx, GetAuditKey(seq), &record)
	return record, err == nil && found
}

// AuditTrail returns up to limit records starting at sequence from.
func (k Keeper) AuditTrail(ctx context.Context, from uint64, limit uint64) ([]types.AuditRecord, error) {
	params, err := k.GetParams(ctx)
	if err != nil {
		return nil, err
	}
	if limit == 0 || limit > params.MaxPageSize {
		limit = params.MaxPageSize
	}

	store := k.getStore(ctx)
	iter := store.Iterator(GetAuditKey(from), storetypes.PrefixEndBytes(AuditKeyPrefix))
	defer iter.Close()

	records := make([]types.AuditRecord, 0, limit)
	for ; iter.Valid() && uint64(len(records)) < limit; iter.Next() {
		var record types.AuditRecord
		if err := json.Unmarshal(iter.Value(), &record); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// AuditTrailForJob returns every audit record touching a job in order.
func (k Keeper) AuditTrailForJob(ctx context.Context, jobID uint64) ([]types.AuditRecord, error) {
	prefix := concat(AuditByJobPrefix, sdk.Uint64ToBigEndian(jobID))
	iter := storetypes.KVStorePrefixIterator(k.getStore(ctx), prefix)
	defer iter.Close()

	var records []types.AuditRecord
	for ; iter.Valid(); iter.Next() {
		seq := sdk.BigEndianToUint64(iter.Key()[len(prefix):])
		record, found := k.GetAuditRecord(ctx, seq)
		if !found {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// IterateAuditTrail walks the whole trail in sequence order.
func (k Keeper) IterateAuditTrail(ctx context.Context, cb func(record types.AuditRecord) (stop bool, err error)) error {
	iter := storetypes.KVStorePrefixIterator(k.getStore(ctx), AuditKeyPrefix)
	defer iter.Close()

	for ; iter.Valid(); iter.Next() {
		var record types.AuditRecord
		if err := json.Unmarshal(iter.Value(), &record); err != nil {
			return err
		}
		stop, err := cb(record)
		if err != nil {
			return err
		}
		if stop {
			break
		}
	}
	return nil
}
