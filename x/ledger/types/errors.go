package types

import (
	sdkerrors "cosmossdk.io/errors"
)

// Ledger module sentinel errors
var (
	ErrInvalidAmount       = sdkerrors.Register(ModuleName, 2, "invalid amount")
	ErrInsufficientBalance = sdkerrors.Register(ModuleName, 3, "insufficient balance")
	ErrEscrowNotFound      = sdkerrors.Register(ModuleName, 4, "escrow account not found")
	ErrEscrowExhausted     = sdkerrors.Register(ModuleName, 5, "escrow holds less than requested")
	ErrDepositorMismatch   = sdkerrors.Register(ModuleName, 6, "escrow depositor mismatch")
	ErrProviderNotFound    = sdkerrors.Register(ModuleName, 7, "provider not registered")
	ErrProviderExists      = sdkerrors.Register(ModuleName, 8, "provider already registered")
	ErrInvalidProvider     = sdkerrors.Register(ModuleName, 9, "invalid provider")
	ErrInvalidRating       = sdkerrors.Register(ModuleName, 10, "invalid rating")
	ErrAlreadyRated        = sdkerrors.Register(ModuleName, 11, "job already rated")
)
