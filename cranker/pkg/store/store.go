// Package store persists per-vault state: immutable vault configuration and
// policy, the honorary position reference, and the mutable distribution
// progress. Every crank invocation runs inside one store transaction: all of
// its reads and writes commit together or not at all.
package store

import (
	"context"

	"github.com/starlabs/star-fee-routing/cranker/pkg/vault"
)

// VaultRecord bundles the rows written at vault initialization. Key is the
// base58 vault PDA; nothing else identifies a vault.
type VaultRecord struct {
	Key    string
	Config vault.Config
	Policy vault.Policy
}

// Store opens transactions over the persisted vault state.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one unit of work. Progress reads take a row lock, so two concurrent
// invocations against the same vault serialize: the loser re-reads state the
// winner already advanced and fails cleanly on the page gate.
type Tx interface {
	// CreateVault inserts config, policy and zeroed progress. Fails with
	// vault.ErrAlreadyInitialized if the key exists.
	CreateVault(ctx context.Context, rec VaultRecord) error
	// GetVault fails with vault.ErrVaultNotFound for unknown keys.
	GetVault(ctx context.Context, key string) (*VaultRecord, error)

	// CreatePosition binds the honorary position 1:1 to the vault. Fails
	// with vault.ErrAlreadyInitialized if one exists.
	CreatePosition(ctx context.Context, key string, pos vault.HonoraryPosition) error
	// GetPosition fails with vault.ErrPositionNotInitialized when absent.
	GetPosition(ctx context.Context, key string) (*vault.HonoraryPosition, error)

	// GetProgressForUpdate loads progress under a write lock held until
	// commit or rollback.
	GetProgressForUpdate(ctx context.Context, key string) (*vault.Progress, error)
	SaveProgress(ctx context.Context, key string, p vault.Progress) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
