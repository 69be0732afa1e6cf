package types

import (
	"fmt"

	sdk "github.com/cosmos/cosmos-sdk/types"
)

// GenesisState is the exported market state.
type GenesisState struct {
	Params          Params        `json:"params"`
	Jobs            []Job         `json:"jobs"`
	Proofs          []ProofRecord `json:"proofs"`
	Challenges      []Challenge   `json:"challenges"`
	Disputes        []Dispute     `json:"disputes"`
	Roles           []RoleGrant   `json:"roles"`
	AbuseState      AbuseState    `json:"abuse_state"`
	NextJobID       uint64        `json:"next_job_id"`
	NextChallengeID uint64        `json:"next_challenge_id"`
}

// DefaultGenesis returns the default genesis state
func DefaultGenesis() *GenesisState {
	return &GenesisState{
		Params:          DefaultParams(),
		Jobs:            []Job{},
		Proofs:          []ProofRecord{},
		Challenges:      []Challenge{},
		Disputes:        []Dispute{},
		Roles:           []RoleGrant{},
		AbuseState:      NewAbuseState(),
		NextJobID:       1,
		NextChallengeID: 1,
	}
}

// Validate performs basic genesis state validation returning an error upon any
// failure.
func (gs GenesisState) Validate() error {
	if err := gs.Params.Validate(); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	if !gs.AbuseState.Level.Valid() {
		return fmt.Errorf("invalid circuit level %d", gs.AbuseState.Level)
	}

	seenJobs := make(map[uint64]Job, len(gs.Jobs))
	for i, job := range gs.Jobs {
		if _, dup := seenJobs[job.ID]; dup {
			return fmt.Errorf("job %d: duplicate id %d", i, job.ID)
		}
		if err := job.Validate(); err != nil {
			return fmt.Errorf("job %d (id=%d): %w", i, job.ID, err)
		}
		if job.Status == JobStatusFailed || job.Status == JobStatusUnspecified {
			return fmt.Errorf("job %d (id=%d): status %s cannot be at rest", i, job.ID, job.Status)
		}
		if job.ID >= gs.NextJobID {
			return fmt.Errorf("job %d: id %d not below next job id %d", i, job.ID, gs.NextJobID)
		}
		seenJobs[job.ID] = job
	}

	seenProofs := make(map[uint64]bool, len(gs.Proofs))
	for i, proof := range gs.Proofs {
		if _, ok := seenJobs[proof.JobID]; !ok {
			return fmt.Errorf("proof %d: unknown job %d", i, proof.JobID)
		}
		if seenProofs[proof.JobID] {
			return fmt.Errorf("proof %d: duplicate proof for job %d", i, proof.JobID)
		}
		seenProofs[proof.JobID] = true
	}
	for _, job := range gs.Jobs {
		if job.Status == JobStatusCompleted && !seenProofs[job.ID] {
			return fmt.Errorf("job %d: completed without a proof", job.ID)
		}
	}

	pending := make(map[uint64]bool)
	seenChallenges := make(map[uint64]bool, len(gs.Challenges))
	for i, c := range gs.Challenges {
		if c.ID == 0 || c.ID >= gs.NextChallengeID {
			return fmt.Errorf("challenge %d: id %d out of range", i, c.ID)
		}
		if seenChallenges[c.ID] {
			return fmt.Errorf("challenge %d: duplicate id %d", i, c.ID)
		}
		seenChallenges[c.ID] = true
		if _, ok := seenJobs[c.JobID]; !ok {
			return fmt.Errorf("challenge %d: unknown job %d", i, c.JobID)
		}
		if c.Status == ChallengeStatusPending {
			if pending[c.JobID] {
				return fmt.Errorf("challenge %d: second pending challenge on job %d", i, c.JobID)
			}
			pending[c.JobID] = true
		}
	}

	for i, d := range gs.Disputes {
		if _, ok := seenJobs[d.JobID]; !ok {
			return fmt.Errorf("dispute %d: unknown job %d", i, d.JobID)
		}
	}

	for i, g := range gs.Roles {
		if _, err := ParseRole(string(g.Role)); err != nil {
			return fmt.Errorf("role grant %d: %w", i, err)
		}
		if _, err := sdk.AccAddressFromBech32(g.Address); err != nil {
			return fmt.Errorf("role grant %d: invalid address %s: %w", i, g.Address, err)
		}
	}

	if gs.NextJobID == 0 || gs.NextChallengeID == 0 {
		return fmt.Errorf("next ids must start at 1")
	}
	return nil
}
