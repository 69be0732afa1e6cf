package types

import (
	"sort"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
)

// AuditRecord is an immutable entry of the market audit trail. Records are
// keyed by Seq so the trail replays in the order transitions happened.
type AuditRecord struct {
	Seq        uint64            `json:"seq"`
	Height     int64             `json:"height"`
	Time       time.Time         `json:"time"`
	Action     string            `json:"action"`
	Actor      string            `json:"actor"`
	JobID      uint64            `json:"job_id,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Attr returns an attribute value or "".
func (r AuditRecord) Attr(key string) string {
	return r.Attributes[key]
}

// Event converts the record into the sdk.Event emitted alongside it.
func (r AuditRecord) Event() sdk.Event {
	keys := make([]string, 0, len(r.Attributes))
	for k := range r.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]sdk.Attribute, 0, len(keys)+2)
	attrs = append(attrs, sdk.NewAttribute(AttributeKeyActor, r.Actor))
	for _, k := range keys {
		attrs = append(attrs, sdk.NewAttribute(k, r.Attributes[k]))
	}
	return sdk.NewEvent(r.Action, attrs...)
}

// Reconciliation compares the job statuses replayed from the audit trail
// with the stored jobs.
type Reconciliation struct {
	RecordsReplayed uint64        `json:"records_replayed"`
	JobsChecked     uint64        `json:"jobs_checked"`
	Mismatches      []JobMismatch `json:"mismatches,omitempty"`
}

// JobMismatch is one job whose stored status disagrees with its replay.
type JobMismatch struct {
	JobID    uint64    `json:"job_id"`
	Stored   JobStatus `json:"stored"`
	Replayed JobStatus `json:"replayed"`
}

// Consistent reports whether replay found no mismatches.
func (r Reconciliation) Consistent() bool {
	return len(r.Mismatches) == 0
}
