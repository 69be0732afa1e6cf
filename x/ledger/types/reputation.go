package types

import (
	"time"

	"cosmossdk.io/math"
)

var (
	// NeutralScore is the score of a provider with no history, and the value
	// scores decay toward.
	NeutralScore = math.LegacyNewDecWithPrec(5, 1)

	// DailyRetention is the share of the distance from neutral kept per day.
	DailyRetention = math.LegacyNewDecWithPrec(99, 2)

	successGain    = math.LegacyNewDecWithPrec(1, 1)
	failurePenalty = math.LegacyNewDecWithPrec(2, 1)
	ratingWeight   = math.LegacyNewDecWithPrec(5, 2)
)

const (
	MinStars          = 1
	MaxStars          = 5
	MaxFeedbackLength = 512
)

// Reputation is the stored trust record of a provider.
type Reputation struct {
	Provider   string         `json:"provider"`
	Score      math.LegacyDec `json:"score"`
	Successes  uint64         `json:"successes"`
	Failures   uint64         `json:"failures"`
	Ratings    uint64         `json:"ratings"`
	StarsTotal uint64         `json:"stars_total"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// NewReputation returns a neutral record.
func NewReputation(provider string, now time.Time) Reputation {
	return Reputation{Provider: provider, Score: NeutralScore, UpdatedAt: now}
}

// Decayed returns the score after decaying toward neutral for every full day
// elapsed since the last update.
func (r Reputation) Decayed(now time.Time) math.LegacyDec {
	if r.Score.IsNil() {
		return NeutralScore
	}
	if !now.After(r.UpdatedAt) {
		return r.Score
	}
	days := uint64(now.Sub(r.UpdatedAt) / (24 * time.Hour))
	if days == 0 {
		return r.Score
	}
	factor := DailyRetention.Power(days)
	return NeutralScore.Add(r.Score.Sub(NeutralScore).Mul(factor))
}

// ApplyOutcome folds a job outcome into the score. Success moves the score a
// tenth of the way to 1; failure removes a fifth of it.
func (r *Reputation) ApplyOutcome(success bool, now time.Time) {
	s := r.Decayed(now)
	if success {
		s = s.Add(math.LegacyOneDec().Sub(s).Mul(successGain))
		r.Successes++
	} else {
		s = s.Sub(s.Mul(failurePenalty))
		r.Failures++
	}
	r.Score = clamp(s)
	r.UpdatedAt = now
}

// ApplyRating nudges the score toward the rating mapped onto [0, 1].
func (r *Reputation) ApplyRating(stars uint32, now time.Time) {
	s := r.Decayed(now)
	target := math.LegacyNewDec(int64(stars - MinStars)).QuoInt64(MaxStars - MinStars)
	s = s.Add(target.Sub(s).Mul(ratingWeight))
	r.Score = clamp(s)
	r.Ratings++
	r.StarsTotal += uint64(stars)
	r.UpdatedAt = now
}

// Rating is a buyer's rating of a provider for one job.
type Rating struct {
	JobID    uint64    `json:"job_id"`
	Buyer    string    `json:"buyer"`
	Provider string    `json:"provider"`
	Stars    uint32    `json:"stars"`
	Feedback string    `json:"feedback,omitempty"`
	Time     time.Time `json:"time"`
}

func clamp(d math.LegacyDec) math.LegacyDec {
	if d.IsNegative() {
		return math.LegacyZeroDec()
	}
	if d.GT(math.LegacyOneDec()) {
		return math.LegacyOneDec()
	}
	return d
}
