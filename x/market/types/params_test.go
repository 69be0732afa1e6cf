package types

import (
	"testing"
	"time"

	"cosmossdk.io/math"
)

func TestDefaultParams(t *testing.T) {
	params := DefaultParams()

	if err := params.Validate(); err != nil {
		t.Fatalf("DefaultParams().Validate() = %v, want nil", err)
	}
	if params.MinDeadlineHorizon() != time.Minute {
		t.Errorf("MinDeadlineHorizon() = %v, want 1m", params.MinDeadlineHorizon())
	}
	if params.PostsPerMinute != 3 || params.PostsPerHour != 10 {
		t.Errorf("posting limits = %d/%d, want 3/10", params.PostsPerMinute, params.PostsPerHour)
	}
	if params.ThrottleCooldown() != 5*time.Minute {
		t.Errorf("ThrottleCooldown() = %v, want 5m", params.ThrottleCooldown())
	}
	if params.UnpauseCooldown() != time.Hour {
		t.Errorf("UnpauseCooldown() = %v, want 1h", params.UnpauseCooldown())
	}
	if params.ChallengeResolution() != 72*time.Hour {
		t.Errorf("ChallengeResolution() = %v, want 72h", params.ChallengeResolution())
	}
	if params.AbandonGrace() != 30*24*time.Hour {
		t.Errorf("AbandonGrace() = %v, want 720h", params.AbandonGrace())
	}
	if params.SuspiciousInterval() != 30*time.Second {
		t.Errorf("SuspiciousInterval() = %v, want 30s", params.SuspiciousInterval())
	}
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"zero max payment", func(p *Params) { p.MaxPayment = math.ZeroInt() }},
		{"zero horizon", func(p *Params) { p.MinDeadlineHorizonSeconds = 0 }},
		{"per minute above per hour", func(p *Params) { p.PostsPerMinute = 11 }},
		{"reputation above one", func(p *Params) { p.MinReputationScore = math.LegacyNewDec(2) }},
		{"fee rate of one", func(p *Params) { p.ProtocolFeeRate = math.LegacyOneDec() }},
		{"negative fee", func(p *Params) { p.ProtocolFeeRate = math.LegacyNewDec(-1) }},
		{"zero challenge stake", func(p *Params) { p.MinChallengeStake = math.ZeroInt() }},
		{"failure rate above 100", func(p *Params) { p.FailureRatePercent = 101 }},
		{"zero suspicious threshold", func(p *Params) { p.SuspiciousThreshold = 0 }},
		{"zero quiet period with recovery", func(p *Params) { p.QuietPeriodSeconds = 0 }},
		{"quiet period below unpause cooldown", func(p *Params) { p.QuietPeriodSeconds = p.UnpauseCooldownSeconds - 1 }},
		{"zero page size", func(p *Params) { p.MaxPageSize = 0 }},
		{"zero batch", func(p *Params) { p.MaxBatchVerify = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			if err := p.Validate(); err == nil {
				t.Errorf("Validate() = nil, want error")
			}
		})
	}
}

func TestQuietPeriodOnlyBoundWithAutoRecovery(t *testing.T) {
	p := DefaultParams()
	p.QuietPeriodSeconds = p.UnpauseCooldownSeconds
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil for quiet period equal to cooldown", err)
	}

	p.AutoRecoveryEnabled = false
	p.QuietPeriodSeconds = 60
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil with auto recovery disabled", err)
	}
}

func TestProtocolFee(t *testing.T) {
	p := DefaultParams()

	share, fee := p.ProtocolFee(math.NewInt(1_000_000))
	if !fee.Equal(math.NewInt(20_000)) {
		t.Errorf("fee = %s, want 20000", fee)
	}
	if !share.Equal(math.NewInt(980_000)) {
		t.Errorf("share = %s, want 980000", share)
	}

	// truncation keeps the split exact
	share, fee = p.ProtocolFee(math.NewInt(49))
	if !share.Add(fee).Equal(math.NewInt(49)) {
		t.Errorf("share+fee = %s, want 49", share.Add(fee))
	}
	if !fee.IsZero() {
		t.Errorf("fee = %s, want 0", fee)
	}
}
