package types

import (
	"bytes"
	"context"
	"crypto/ed25519"

	errorsmod "cosmossdk.io/errors"
)

// ProofVerifier is the verification oracle. It returns nil when the proof is
// valid for the job and an error describing the failure otherwise.
type ProofVerifier interface {
	Verify(ctx context.Context, job Job, proof ProofRecord) error
}

// ProofVerifierFunc adapts a function to ProofVerifier.
type ProofVerifierFunc func(ctx context.Context, job Job, proof ProofRecord) error

// Verify calls f.
func (f ProofVerifierFunc) Verify(ctx context.Context, job Job, proof ProofRecord) error {
	return f(ctx, job, proof)
}

// CommitmentVerifier accepts a proof whose public commitments equal the ones
// derived from the job and the reported result.
type CommitmentVerifier struct{}

// Verify implements ProofVerifier.
func (CommitmentVerifier) Verify(_ context.Context, job Job, proof ProofRecord) error {
	if err := proof.Commitments.Validate(); err != nil {
		return err
	}
	if bytes.Equal(proof.Commitments.Output, InvalidOutputSentinel) {
		return ErrInvalidOutput
	}

	expected := ExpectedCommitments(job, proof.ResultRef)
	if !bytes.Equal(proof.Commitments.Capability, expected.Capability) {
		return errorsmod.Wrap(ErrCommitmentMismatch, "capability")
	}
	if !bytes.Equal(proof.Commitments.Input, expected.Input) {
		return errorsmod.Wrap(ErrCommitmentMismatch, "input")
	}
	if !bytes.Equal(proof.Commitments.Output, expected.Output) {
		return errorsmod.Wrap(ErrCommitmentMismatch, "output")
	}
	return nil
}

// KeyResolver returns the registered signing key of a provider.
type KeyResolver func(ctx context.Context, provider string) (ed25519.PublicKey, bool)

// SignedCommitmentVerifier additionally requires the proof payload to be an
// ed25519 signature by the provider over the commitments.
type SignedCommitmentVerifier struct {
	Keys KeyResolver
}

// Verify implements ProofVerifier.
func (v SignedCommitmentVerifier) Verify(ctx context.Context, job Job, proof ProofRecord) error {
	if err := (CommitmentVerifier{}).Verify(ctx, job, proof); err != nil {
		return err
	}
	if v.Keys == nil {
		return errorsmod.Wrap(ErrInvalidSignature, "no key resolver configured")
	}
	pub, ok := v.Keys(ctx, proof.Provider)
	if !ok || len(pub) != ed25519.PublicKeySize {
		return errorsmod.Wrapf(ErrInvalidSignature, "no signing key for %s", proof.Provider)
	}
	if len(proof.Payload) != ed25519.SignatureSize {
		return errorsmod.Wrapf(ErrInvalidSignature, "signature must be %d bytes", ed25519.SignatureSize)
	}
	if !ed25519.Verify(pub, proof.Commitments.Bytes(), proof.Payload) {
		return ErrInvalidSignature
	}
	return nil
}
