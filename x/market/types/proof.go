package types

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
)

const (
	CommitmentSize  = sha256.Size
	MaxProofPayload = 64 * 1024
)

// InvalidOutputSentinel is the output commitment a prover uses to signal a
// known-bad result. A proof carrying it never verifies.
var InvalidOutputSentinel = bytes.Repeat([]byte{0xff}, CommitmentSize)

// ProofStatus is the verification status of a proof record
type ProofStatus int32

const (
	ProofStatusUnspecified ProofStatus = iota
	ProofStatusSubmitted
	ProofStatusVerified
	ProofStatusInvalid
)

func (s ProofStatus) String() string {
	switch s {
	case ProofStatusSubmitted:
		return "submitted"
	case ProofStatusVerified:
		return "verified"
	case ProofStatusInvalid:
		return "invalid"
	default:
		return "unspecified"
	}
}

// MarshalText encodes the status by name.
func (s ProofStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *ProofStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "submitted":
		*s = ProofStatusSubmitted
	case "verified":
		*s = ProofStatusVerified
	case "invalid":
		*s = ProofStatusInvalid
	case "unspecified", "":
		*s = ProofStatusUnspecified
	default:
		return fmt.Errorf("unknown proof status %q", string(text))
	}
	return nil
}

// Commitments are the public values a proof is checked against.
type Commitments struct {
	Capability []byte `json:"capability"`
	Input      []byte `json:"input"`
	Output     []byte `json:"output"`
}

// Bytes returns the canonical encoding signed by provers.
func (c Commitments) Bytes() []byte {
	out := make([]byte, 0, 3*CommitmentSize)
	out = append(out, c.Capability...)
	out = append(out, c.Input...)
	return append(out, c.Output...)
}

// Validate checks commitment sizes.
func (c Commitments) Validate() error {
	fields := []struct {
		name  string
		value []byte
	}{
		{"capability", c.Capability},
		{"input", c.Input},
		{"output", c.Output},
	}
	for _, f := range fields {
		if len(f.value) != CommitmentSize {
			return errorsmod.Wrapf(ErrInvalidProof, "%s commitment must be %d bytes, got %d", f.name, CommitmentSize, len(f.value))
		}
	}
	return nil
}

// Commit hashes a public value into a commitment.
func Commit(value string) []byte {
	h := sha256.Sum256([]byte(value))
	return h[:]
}

// ExpectedCommitments derives the commitments a proof for the job must carry
// given the result reference the provider reported.
func ExpectedCommitments(job Job, resultRef string) Commitments {
	return Commitments{
		Capability: Commit(job.Capability),
		Input:      Commit(job.InputRef),
		Output:     Commit(resultRef),
	}
}

// ProofSubmission is what a provider hands in for a claimed job.
type ProofSubmission struct {
	Payload     []byte      `json:"payload"`
	Commitments Commitments `json:"commitments"`
	ResultRef   string      `json:"result_ref"`
}

// ValidateBasic performs stateless checks on a submission.
func (s ProofSubmission) ValidateBasic() error {
	if len(s.Payload) == 0 {
		return errorsmod.Wrap(ErrInvalidProof, "payload required")
	}
	if len(s.Payload) > MaxProofPayload {
		return errorsmod.Wrapf(ErrInvalidProof, "payload exceeds %d bytes", MaxProofPayload)
	}
	if s.ResultRef == "" || len(s.ResultRef) > MaxReferenceLength {
		return errorsmod.Wrapf(ErrInvalidProof, "result reference must be 1-%d characters", MaxReferenceLength)
	}
	return s.Commitments.Validate()
}

// ProofRecord is the stored proof for one job attempt.
type ProofRecord struct {
	JobID         uint64      `json:"job_id"`
	Attempt       uint32      `json:"attempt"`
	Provider      string      `json:"provider"`
	SubmittedAt   time.Time   `json:"submitted_at"`
	VerifiedAt    time.Time   `json:"verified_at,omitempty"`
	Status        ProofStatus `json:"status"`
	Payload       []byte      `json:"payload"`
	ContentHash   []byte      `json:"content_hash"`
	Commitments   Commitments `json:"commitments"`
	ResultRef     string      `json:"result_ref"`
	FailureReason string      `json:"failure_reason,omitempty"`
}

// ChallengeStatus is the status of a staked challenge
type ChallengeStatus int32

const (
	ChallengeStatusUnspecified ChallengeStatus = iota
	ChallengeStatusPending
	ChallengeStatusSuccessful
	ChallengeStatusFailed
)

func (s ChallengeStatus) String() string {
	switch s {
	case ChallengeStatusPending:
		return "pending"
	case ChallengeStatusSuccessful:
		return "successful"
	case ChallengeStatusFailed:
		return "failed"
	default:
		return "unspecified"
	}
}

// MarshalText encodes the status by name.
func (s ChallengeStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *ChallengeStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "pending":
		*s = ChallengeStatusPending
	case "successful":
		*s = ChallengeStatusSuccessful
	case "failed":
		*s = ChallengeStatusFailed
	case "unspecified", "":
		*s = ChallengeStatusUnspecified
	default:
		return fmt.Errorf("unknown challenge status %q", string(text))
	}
	return nil
}

// Challenge is a staked assertion that a verified proof is invalid.
type Challenge struct {
	ID          uint64          `json:"id"`
	JobID       uint64          `json:"job_id"`
	Challenger  string          `json:"challenger"`
	Stake       math.Int        `json:"stake"`
	EvidenceRef string          `json:"evidence_ref"`
	CreatedAt   time.Time       `json:"created_at"`
	Deadline    time.Time       `json:"deadline"`
	Status      ChallengeStatus `json:"status"`
	ResolvedAt  time.Time       `json:"resolved_at,omitempty"`
	Resolver    string          `json:"resolver,omitempty"`
	Expired     bool            `json:"expired"`
}

// VerifyResult is one item of a batch verification. Valid is false both for a
// proof that failed verification and for an item that was rejected; Err tells
// them apart.
type VerifyResult struct {
	JobID uint64 `json:"job_id"`
	Valid bool   `json:"valid"`
	Err   error  `json:"-"`
}

// Rejected reports whether the item was refused rather than verified.
func (r VerifyResult) Rejected() bool { return r.Err != nil }
