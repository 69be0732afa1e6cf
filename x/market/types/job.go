package types

import (
	"fmt"
	"strings"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

const (
	MaxCapabilityLength = 128
	MaxReferenceLength  = 512
	MaxReasonLength     = 256
)

// JobStatus is the lifecycle status of a job
type JobStatus int32

const (
	JobStatusUnspecified JobStatus = iota
	JobStatusPosted
	JobStatusClaimed
	JobStatusCompleted
	JobStatusDisputed
	JobStatusSettled
	JobStatusFailed
	JobStatusExpired
)

var jobStatusNames = map[JobStatus]string{
	JobStatusUnspecified: "unspecified",
	JobStatusPosted:      "posted",
	JobStatusClaimed:     "claimed",
	JobStatusCompleted:   "completed",
	JobStatusDisputed:    "disputed",
	JobStatusSettled:     "settled",
	JobStatusFailed:      "failed",
	JobStatusExpired:     "expired",
}

func (s JobStatus) String() string {
	if name, ok := jobStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("job_status(%d)", int32(s))
}

// MarshalText encodes the status by name.
func (s JobStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *JobStatus) UnmarshalText(text []byte) error {
	status, err := ParseJobStatus(string(text))
	if err != nil {
		return err
	}
	*s = status
	return nil
}

// ParseJobStatus parses a status name.
func ParseJobStatus(name string) (JobStatus, error) {
	for status, n := range jobStatusNames {
		if n == strings.ToLower(name) {
			return status, nil
		}
	}
	return JobStatusUnspecified, fmt.Errorf("unknown job status %q", name)
}

// IsActive reports whether the job still holds value or awaits a decision.
func (s JobStatus) IsActive() bool {
	switch s {
	case JobStatusPosted, JobStatusClaimed, JobStatusCompleted, JobStatusDisputed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition can leave the status.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSettled || s == JobStatusExpired
}

// HasAssignedProvider reports whether a job in this status must carry a provider.
// Settled keeps the provider that did the work so the audit trail and ratings
// can refer to it.
func (s JobStatus) HasAssignedProvider() bool {
	switch s {
	case JobStatusClaimed, JobStatusCompleted, JobStatusDisputed, JobStatusSettled:
		return true
	}
	return false
}

// jobTransitions is the complete set of legal lifecycle edges. Failed is
// transient: a failure moves through it to Posted or Expired in the same call.
var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusPosted:    {JobStatusClaimed, JobStatusExpired},
	JobStatusClaimed:   {JobStatusCompleted, JobStatusFailed, JobStatusExpired},
	JobStatusFailed:    {JobStatusPosted, JobStatusExpired},
	JobStatusCompleted: {JobStatusSettled, JobStatusDisputed},
	JobStatusDisputed:  {JobStatusSettled},
}

// ValidateTransition checks a status change against the transition table.
func ValidateTransition(from, to JobStatus) error {
	for _, next := range jobTransitions[from] {
		if next == to {
			return nil
		}
	}
	return errorsmod.Wrapf(ErrInvalidTransition, "%s -> %s", from, to)
}

// LegalTransitions returns the statuses reachable from a status in one step.
func LegalTransitions(from JobStatus) []JobStatus {
	out := make([]JobStatus, len(jobTransitions[from]))
	copy(out, jobTransitions[from])
	return out
}

// SettlementOutcome records which side a settled job paid out to.
type SettlementOutcome int32

const (
	OutcomeNone SettlementOutcome = iota
	OutcomeProvider
	OutcomeBuyer
)

func (o SettlementOutcome) String() string {
	switch o {
	case OutcomeProvider:
		return "provider"
	case OutcomeBuyer:
		return "buyer"
	default:
		return "none"
	}
}

// MarshalText encodes the outcome by name.
func (o SettlementOutcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText decodes an outcome name.
func (o *SettlementOutcome) UnmarshalText(text []byte) error {
	switch string(text) {
	case "provider":
		*o = OutcomeProvider
	case "buyer":
		*o = OutcomeBuyer
	case "none", "":
		*o = OutcomeNone
	default:
		return fmt.Errorf("unknown settlement outcome %q", string(text))
	}
	return nil
}

// Job is a unit of requested computation with escrowed payment.
type Job struct {
	ID         uint64    `json:"id"`
	Buyer      string    `json:"buyer"`
	Provider   string    `json:"provider,omitempty"`
	Capability string    `json:"capability"`
	InputRef   string    `json:"input_ref"`
	Payment    math.Int  `json:"payment"`
	Deadline   time.Time `json:"deadline"`
	ResultRef  string    `json:"result_ref,omitempty"`
	Status     JobStatus `json:"status"`

	Outcome            SettlementOutcome `json:"outcome"`
	PostedAt           time.Time         `json:"posted_at"`
	ClaimedAt          time.Time         `json:"claimed_at,omitempty"`
	CompletedAt        time.Time         `json:"completed_at,omitempty"`
	ChallengeWindowEnd time.Time         `json:"challenge_window_end,omitempty"`
	Attempts           uint32            `json:"attempts"`

	// ProviderPaid and FeePaid track released value still attributable to the
	// job, so a later reversal knows what to reclaim.
	ProviderPaid math.Int `json:"provider_paid"`
	FeePaid      math.Int `json:"fee_paid"`
}

// BuyerAddress returns the buyer as an account address.
func (j Job) BuyerAddress() sdk.AccAddress {
	addr, _ := sdk.AccAddressFromBech32(j.Buyer)
	return addr
}

// ProviderAddress returns the assigned provider, nil when unassigned.
func (j Job) ProviderAddress() sdk.AccAddress {
	if j.Provider == "" {
		return nil
	}
	addr, _ := sdk.AccAddressFromBech32(j.Provider)
	return addr
}

// Validate checks the structural invariants of a stored job.
func (j Job) Validate() error {
	if j.ID == 0 {
		return errorsmod.Wrap(ErrInvalidJob, "id cannot be zero")
	}
	if _, err := sdk.AccAddressFromBech32(j.Buyer); err != nil {
		return errorsmod.Wrapf(ErrInvalidJob, "buyer: %s", err)
	}
	if j.Payment.IsNil() || !j.Payment.IsPositive() {
		return errorsmod.Wrap(ErrInvalidAmount, "payment must be positive")
	}
	if j.Status.HasAssignedProvider() != (j.Provider != "") {
		return errorsmod.Wrapf(ErrInvalidJob, "job %d in status %s has provider %q", j.ID, j.Status, j.Provider)
	}
	return nil
}

// PostJobRequest carries the caller inputs of a job posting.
type PostJobRequest struct {
	Capability     string    `json:"capability"`
	InputRef       string    `json:"input_ref"`
	PaymentCeiling math.Int  `json:"payment_ceiling"`
	Deadline       time.Time `json:"deadline"`
	Transferred    math.Int  `json:"transferred"`
}

// ValidateBasic performs stateless validation of a posting.
func (r PostJobRequest) ValidateBasic() error {
	if strings.TrimSpace(r.Capability) == "" || len(r.Capability) > MaxCapabilityLength {
		return errorsmod.Wrapf(ErrInvalidJob, "capability must be 1-%d characters", MaxCapabilityLength)
	}
	if strings.TrimSpace(r.InputRef) == "" || len(r.InputRef) > MaxReferenceLength {
		return errorsmod.Wrapf(ErrInvalidJob, "input reference must be 1-%d characters", MaxReferenceLength)
	}
	if r.PaymentCeiling.IsNil() || !r.PaymentCeiling.IsPositive() {
		return errorsmod.Wrap(ErrInvalidAmount, "payment ceiling must be positive")
	}
	if r.Transferred.IsNil() || r.Transferred.LT(r.PaymentCeiling) {
		return errorsmod.Wrapf(ErrInsufficientFunds, "transferred %s < ceiling %s", r.Transferred, r.PaymentCeiling)
	}
	if r.Deadline.IsZero() {
		return errorsmod.Wrap(ErrInvalidDeadline, "deadline required")
	}
	return nil
}

// Dispute is the buyer-raised review of a completed job.
type Dispute struct {
	JobID       uint64    `json:"job_id"`
	Buyer       string    `json:"buyer"`
	Reason      string    `json:"reason"`
	RaisedAt    time.Time `json:"raised_at"`
	Resolver    string    `json:"resolver,omitempty"`
	ResolvedAt  time.Time `json:"resolved_at,omitempty"`
	FavorsBuyer bool      `json:"favors_buyer"`
	Resolved    bool      `json:"resolved"`
}
