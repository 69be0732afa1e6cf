package keeper

import (
	"encoding/binary"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/paw-chain/pawmarket/x/market/types"
)

var (
	// ParamsKey is the key for module parameters
	ParamsKey = []byte{0x01}

	// JobKeyPrefix is the prefix for job storage
	JobKeyPrefix = []byte{0x02}

	// NextJobIDKey is the key for the next job ID counter
	NextJobIDKey = []byte{0x03}

	// ActiveJobPrefix indexes jobs that still hold value or await a decision
	ActiveJobPrefix = []byte{0x04}

	// JobsByStatusPrefix indexes jobs by status
	JobsByStatusPrefix = []byte{0x05}

	// ProofKeyPrefix is the prefix for the current proof of a job
	ProofKeyPrefix = []byte{0x06}

	// ProofHistoryPrefix keeps proofs of failed attempts
	ProofHistoryPrefix = []byte{0x07}

	// ChallengeKeyPrefix is the prefix for challenge storage
	ChallengeKeyPrefix = []byte{0x08}

	// NextChallengeIDKey is the key for the next challenge ID counter
	NextChallengeIDKey = []byte{0x09}

	// PendingChallengePrefix maps a job to its pending challenge
	PendingChallengePrefix = []byte{0x0A}

	// ChallengesByJobPrefix indexes every challenge raised on a job
	ChallengesByJobPrefix = []byte{0x0B}

	// AbuseStateKey is the key for the circuit breaker state
	AbuseStateKey = []byte{0x0C}

	// CooldownPrefix stores the last sensitive call of each caller
	CooldownPrefix = []byte{0x0D}

	// PostingHistoryPrefix stores recent posting times per buyer
	PostingHistoryPrefix = []byte{0x0E}

	// ControllerFailurePrefix records controllers that failed a job
	ControllerFailurePrefix = []byte{0x0F}

	// ControllerClaimPrefix records the claim history of each controller
	ControllerClaimPrefix = []byte{0x10}

	// RoleKeyPrefix is the prefix for role grants
	RoleKeyPrefix = []byte{0x11}

	// AuditKeyPrefix is the prefix for audit records
	AuditKeyPrefix = []byte{0x12}

	// AuditSeqKey is the key for the next audit sequence number
	AuditSeqKey = []byte{0x13}

	// AuditByJobPrefix indexes audit records by job
	AuditByJobPrefix = []byte{0x14}

	// DisputeKeyPrefix is the prefix for dispute storage
	DisputeKeyPrefix = []byte{0x15}

	// SettlementQueuePrefix orders completed jobs by challenge window end
	SettlementQueuePrefix = []byte{0x16}
)

func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	key := make([]byte, 0, n)
	for _, p := range parts {
		key = append(key, p...)
	}
	return key
}

// GetJobKey returns the store key for a job
func GetJobKey(id uint64) []byte {
	return concat(JobKeyPrefix, sdk.Uint64ToBigEndian(id))
}

// GetActiveJobKey returns the active index key for a job
func GetActiveJobKey(id uint64) []byte {
	return concat(ActiveJobPrefix, sdk.Uint64ToBigEndian(id))
}

// GetJobsByStatusPrefix returns the index prefix of a status
func GetJobsByStatusPrefix(status types.JobStatus) []byte {
	return concat(JobsByStatusPrefix, []byte{byte(status)})
}

// GetJobByStatusKey returns the status index key for a job
func GetJobByStatusKey(status types.JobStatus, id uint64) []byte {
	return concat(GetJobsByStatusPrefix(status), sdk.Uint64ToBigEndian(id))
}

// GetProofKey returns the store key for the current proof of a job
func GetProofKey(jobID uint64) []byte {
	return concat(ProofKeyPrefix, sdk.Uint64ToBigEndian(jobID))
}

// GetProofHistoryKey returns the store key for an archived proof
func GetProofHistoryKey(jobID uint64, attempt uint32) []byte {
	return binary.BigEndian.AppendUint32(concat(ProofHistoryPrefix, sdk.Uint64ToBigEndian(jobID)), attempt)
}

// GetChallengeKey returns the store key for a challenge
func GetChallengeKey(id uint64) []byte {
	return concat(ChallengeKeyPrefix, sdk.Uint64ToBigEndian(id))
}

// GetPendingChallengeKey returns the pending challenge key of a job
func GetPendingChallengeKey(jobID uint64) []byte {
	return concat(PendingChallengePrefix, sdk.Uint64ToBigEndian(jobID))
}

// GetChallengeByJobKey returns the job index key for a challenge
func GetChallengeByJobKey(jobID, challengeID uint64) []byte {
	return concat(ChallengesByJobPrefix, sdk.Uint64ToBigEndian(jobID), sdk.Uint64ToBigEndian(challengeID))
}

// GetCooldownKey returns the cooldown key of a caller
func GetCooldownKey(addr sdk.AccAddress) []byte {
	return concat(CooldownPrefix, lengthPrefixed(addr))
}

// GetPostingHistoryKey returns the posting history key of a buyer
func GetPostingHistoryKey(addr sdk.AccAddress) []byte {
	return concat(PostingHistoryPrefix, lengthPrefixed(addr))
}

// GetControllerFailureKey records that a controller failed a job
func GetControllerFailureKey(jobID uint64, controller sdk.AccAddress) []byte {
	return concat(ControllerFailurePrefix, sdk.Uint64ToBigEndian(jobID), lengthPrefixed(controller))
}

// GetControllerClaimPrefix returns the claim history prefix of a controller
func GetControllerClaimPrefix(controller sdk.AccAddress) []byte {
	return concat(ControllerClaimPrefix, lengthPrefixed(controller))
}

// GetControllerClaimKey returns the claim history key of a controller and job
func GetControllerClaimKey(controller sdk.AccAddress, jobID uint64) []byte {
	return concat(GetControllerClaimPrefix(controller), sdk.Uint64ToBigEndian(jobID))
}

// GetRoleKey returns the grant key of a role holder
func GetRoleKey(role types.Role, addr sdk.AccAddress) []byte {
	return concat(RoleKeyPrefix, lengthPrefixed([]byte(role)), addr)
}

// GetAuditKey returns the store key of an audit record
func GetAuditKey(seq uint64) []byte {
	return concat(AuditKeyPrefix, sdk.Uint64ToBigEndian(seq))
}

// GetAuditByJobKey returns the job index key of an audit record
func GetAuditByJobKey(jobID, seq uint64) []byte {
	return concat(AuditByJobPrefix, sdk.Uint64ToBigEndian(jobID), sdk.Uint64ToBigEndian(seq))
}

// GetDisputeKey returns the store key of a job's dispute
func GetDisputeKey(jobID uint64) []byte {
	return concat(DisputeKeyPrefix, sdk.Uint64ToBigEndian(jobID))
}

// GetSettlementQueueKey orders a job by the end of its challenge window
func GetSettlementQueueKey(windowEnd time.Time, jobID uint64) []byte {
	return concat(SettlementQueuePrefix, sdk.Uint64ToBigEndian(uint64(windowEnd.Unix())), sdk.Uint64ToBigEndian(jobID))
}

// lengthPrefixed keeps variable-length components from colliding inside
// composite keys.
func lengthPrefixed(bz []byte) []byte {
	return append([]byte{byte(len(bz))}, bz...)
}
