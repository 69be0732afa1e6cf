package keeper_test

import (
	"testing"
	"time"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	keepertest "github.com/paw-chain/pawmarket/testutil/keeper"
	ledgerkeeper "github.com/paw-chain/pawmarket/x/ledger/keeper"
	"github.com/paw-chain/pawmarket/x/market/keeper"
	"github.com/paw-chain/pawmarket/x/market/types"
)

// TestLifecycleProperties drives random operation sequences against the
// market and checks every module invariant after each step. Rejections are
// expected; broken accounting or a job in an impossible state is not.
func TestLifecycleProperties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		k, ledger, ctx := keepertest.MarketKeeper(t, nil)

		buyers := []sdk.AccAddress{keepertest.Addr("buyer-a"), keepertest.Addr("buyer-b")}
		providers := []sdk.AccAddress{keepertest.Addr("prov-a"), keepertest.Addr("prov-b"), keepertest.Addr("prov-c")}
		shared := keepertest.Addr("ctrl")
		verifier := keepertest.Addr("verifier")
		resolver := keepertest.Addr("resolver")
		challenger := keepertest.Addr("challenger")

		for _, b := range buyers {
			require.NoError(t, ledger.Fund(ctx, b, math.NewInt(1_000_000_000)))
		}
		require.NoError(t, ledger.Fund(ctx, challenger, math.NewInt(1_000_000_000)))
		for i, p := range providers {
			require.NoError(t, ledger.Fund(ctx, p, math.NewInt(30_000_000)))
			var controller sdk.AccAddress
			if i < 2 {
				controller = shared
			}
			require.NoError(t, ledger.RegisterProvider(ctx, p, controller, math.NewInt(20_000_000), nil))
		}
		require.NoError(t, k.GrantRole(ctx, keepertest.Authority, types.RoleVerifier, verifier))
		require.NoError(t, k.GrantRole(ctx, keepertest.Authority, types.RoleResolver, resolver))

		var jobs, challenges []uint64
		pickJob := func(label string) uint64 {
			if len(jobs) == 0 {
				return 0
			}
			return rapid.SampledFrom(jobs).Draw(rt, label)
		}

		steps := rapid.IntRange(1, 60).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			action := rapid.SampledFrom([]string{
				"post", "claim", "prove", "prove_bad", "verify", "fail", "expire", "abandon",
				"challenge", "resolve_challenge", "expire_challenge", "dispute", "resolve_dispute",
				"settle", "advance", "end_block",
			}).Draw(rt, "action")

			switch action {
			case "post":
				buyer := rapid.SampledFrom(buyers).Draw(rt, "buyer")
				amount := rapid.Int64Range(1, 5_000_000).Draw(rt, "payment")
				id, err := k.PostJob(ctx, buyer, types.PostJobRequest{
					Capability:     "llama-3-8b",
					InputRef:       "ipfs://input",
					PaymentCeiling: math.NewInt(amount),
					Deadline:       ctx.BlockTime().Add(time.Duration(rapid.IntRange(2, 240).Draw(rt, "minutes")) * time.Minute),
					Transferred:    math.NewInt(amount),
				})
				if err == nil {
					jobs = append(jobs, id)
				}
			case "claim":
				_ = k.ClaimJob(ctx, rapid.SampledFrom(providers).Draw(rt, "provider"), pickJob("job"))
			case "prove", "prove_bad":
				id := pickJob("job")
				job, err := k.GetJob(ctx, id)
				if err != nil || job.Provider == "" {
					continue
				}
				sub := types.ProofSubmission{
					Payload:     []byte("proof"),
					Commitments: types.ExpectedCommitments(job, "ipfs://result"),
					ResultRef:   "ipfs://result",
				}
				if action == "prove_bad" {
					sub.Commitments.Output = types.InvalidOutputSentinel
				}
				_ = k.SubmitProof(ctx, job.ProviderAddress(), id, sub)
			case "verify":
				_, _ = k.VerifyProof(ctx, verifier, pickJob("job"))
			case "fail":
				_ = k.MarkJobFailed(ctx, verifier, pickJob("job"), "failed")
			case "expire":
				_ = k.ExpireJob(ctx, challenger, pickJob("job"))
			case "abandon":
				id := pickJob("job")
				if job, err := k.GetJob(ctx, id); err == nil {
					_ = k.ClaimAbandonedPayment(ctx, job.BuyerAddress(), id)
				}
			case "challenge":
				if id, err := k.ChallengeProof(ctx, challenger, pickJob("job"), "ipfs://evidence", math.NewInt(100_000)); err == nil {
					challenges = append(challenges, id)
				}
			case "resolve_challenge", "expire_challenge":
				if len(challenges) == 0 {
					continue
				}
				id := rapid.SampledFrom(challenges).Draw(rt, "challenge")
				if action == "resolve_challenge" {
					_ = k.ResolveChallenge(ctx, verifier, id, rapid.Bool().Draw(rt, "upheld"))
				} else {
					_ = k.ExpireChallenge(ctx, challenger, id)
				}
			case "dispute":
				id := pickJob("job")
				if job, err := k.GetJob(ctx, id); err == nil {
					_ = k.DisputeResult(ctx, job.BuyerAddress(), id, "not what I asked for")
				}
			case "resolve_dispute":
				_ = k.ResolveDispute(ctx, resolver, pickJob("job"), rapid.Bool().Draw(rt, "favor_buyer"))
			case "settle":
				_ = k.SettleJob(ctx, challenger, pickJob("job"))
			case "advance":
				d := time.Duration(rapid.IntRange(1, 48*60).Draw(rt, "advance_minutes")) * time.Minute
				ctx = ctx.WithBlockTime(ctx.BlockTime().Add(d)).WithBlockHeight(ctx.BlockHeight() + 1)
			case "end_block":
				require.NoError(t, k.EndBlocker(ctx))
			}

			checkInvariants(rt, *k, ledger, ctx, action)
		}

		result, err := k.ReplayAuditTrail(ctx)
		require.NoError(t, err)
		if !result.Consistent() {
			rt.Fatalf("audit replay disagrees with stored jobs: %+v", result.Mismatches)
		}
	})
}

func checkInvariants(rt *rapid.T, k keeper.Keeper, ledger *ledgerkeeper.Keeper, ctx sdk.Context, action string) {
	for _, inv := range []sdk.Invariant{
		keeper.AllInvariants(k),
		ledgerkeeper.EscrowPoolInvariant(*ledger),
		ledgerkeeper.EscrowAccountingInvariant(*ledger),
	} {
		if msg, broken := inv(ctx); broken {
			rt.Fatalf("invariant broken after %s: %s", action, msg)
		}
	}
}
