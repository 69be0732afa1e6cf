package types

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"
)

func verifierFixture() (Job, ProofRecord) {
	job := Job{ID: 1, Capability: "llama-3-8b", InputRef: "ipfs://input"}
	proof := ProofRecord{
		JobID:       1,
		Provider:    "provider",
		Payload:     []byte{0x01},
		Commitments: ExpectedCommitments(job, "ipfs://output"),
		ResultRef:   "ipfs://output",
	}
	return job, proof
}

func TestCommitmentVerifier(t *testing.T) {
	job, proof := verifierFixture()
	v := CommitmentVerifier{}
	require.NoError(t, v.Verify(context.Background(), job, proof))

	sentinel := proof
	sentinel.Commitments.Output = InvalidOutputSentinel
	require.ErrorIs(t, v.Verify(context.Background(), job, sentinel), ErrInvalidOutput)

	wrongInput := proof
	wrongInput.Commitments.Input = Commit("ipfs://other")
	require.ErrorIs(t, v.Verify(context.Background(), job, wrongInput), ErrCommitmentMismatch)

	wrongOutput := proof
	wrongOutput.ResultRef = "ipfs://claimed-elsewhere"
	require.ErrorIs(t, v.Verify(context.Background(), job, wrongOutput), ErrCommitmentMismatch)

	short := proof
	short.Commitments.Capability = []byte{1, 2, 3}
	require.ErrorIs(t, v.Verify(context.Background(), job, short), ErrInvalidProof)
}

func TestSignedCommitmentVerifier(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	job, proof := verifierFixture()
	proof.Payload = ed25519.Sign(priv, proof.Commitments.Bytes())

	v := SignedCommitmentVerifier{Keys: func(_ context.Context, provider string) (ed25519.PublicKey, bool) {
		if provider == "provider" {
			return pub, true
		}
		return nil, false
	}}
	require.NoError(t, v.Verify(context.Background(), job, proof))

	tampered := proof
	tampered.Payload = append([]byte(nil), proof.Payload...)
	tampered.Payload[0] ^= 0xff
	require.ErrorIs(t, v.Verify(context.Background(), job, tampered), ErrInvalidSignature)

	stranger := proof
	stranger.Provider = "someone-else"
	require.ErrorIs(t, v.Verify(context.Background(), job, stranger), ErrInvalidSignature)

	require.ErrorIs(t, SignedCommitmentVerifier{}.Verify(context.Background(), job, proof), ErrInvalidSignature)
}

func TestProofSubmissionValidateBasic(t *testing.T) {
	_, proof := verifierFixture()
	sub := ProofSubmission{Payload: proof.Payload, Commitments: proof.Commitments, ResultRef: proof.ResultRef}
	require.NoError(t, sub.ValidateBasic())

	empty := sub
	empty.Payload = nil
	require.ErrorIs(t, empty.ValidateBasic(), ErrInvalidProof)

	huge := sub
	huge.Payload = make([]byte, MaxProofPayload+1)
	require.ErrorIs(t, huge.ValidateBasic(), ErrInvalidProof)

	noResult := sub
	noResult.ResultRef = ""
	require.ErrorIs(t, noResult.ValidateBasic(), ErrInvalidProof)
}
