package types

const (
	// ModuleName defines the module name
	ModuleName = "ledger"

	// StoreKey defines the primary module store key
	StoreKey = ModuleName

	// EscrowPoolName is the derivation key of the account custodying escrowed value
	EscrowPoolName = "ledger_escrow_pool"
)
