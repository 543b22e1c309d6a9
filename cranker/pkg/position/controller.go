// Package position manages the honorary fee position: a pool position owned
// by a program-derived address whose only purpose is accruing quote fees for
// a vault. Initialization is fail-closed: a pool that could ever accrue base
// fees is rejected before anything is created.
package position

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"

	"github.com/starlabs/star-fee-routing/cranker/pkg/cpamm"
	"github.com/starlabs/star-fee-routing/cranker/pkg/crank"
	"github.com/starlabs/star-fee-routing/cranker/pkg/store"
	"github.com/starlabs/star-fee-routing/cranker/pkg/vault"
)

// PoolClient is the slice of the cp-amm adapter the controller needs.
type PoolClient interface {
	PoolConfig(ctx context.Context, pool solana.PublicKey) (vault.PoolQuoteConfig, error)
	CreatePosition(ctx context.Context, vaultSeed uint64, req cpamm.CreatePositionRequest) error
}

// NFTMinter produces the mint keypair for a new position NFT. Production uses
// NewNFTMint; tests inject a fixed key for determinism.
type NFTMinter func() solana.PublicKey

// NewNFTMint generates a fresh position NFT mint.
func NewNFTMint() solana.PublicKey {
	return solana.NewWallet().PublicKey()
}

type Config struct {
	Logger  *slog.Logger
	Store   store.Store
	Pool    PoolClient
	Emitter crank.Emitter
	Minter  NFTMinter
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.Pool == nil {
		return errors.New("pool client is required")
	}
	if cfg.Emitter == nil {
		cfg.Emitter = &crank.NopEmitter{}
	}
	if cfg.Minter == nil {
		cfg.Minter = NewNFTMint
	}
	return nil
}

// Controller creates and tracks honorary positions, one per vault.
type Controller struct {
	log *slog.Logger
	cfg Config
}

func NewController(cfg Config) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Controller{log: cfg.Logger, cfg: cfg}, nil
}

// Initialize validates the pool's quote configuration, creates the honorary
// position owned by the vault's position-owner PDA and records it. The whole
// operation runs in one store transaction; any failure leaves no partial
// state. A second call for the same vault fails with ErrAlreadyInitialized.
func (c *Controller) Initialize(ctx context.Context, vaultSeed uint64, pool solana.PublicKey) (*vault.HonoraryPosition, error) {
	key, err := vault.StoreKey(vaultSeed)
	if err != nil {
		return nil, err
	}

	tx, err := c.cfg.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	rec, err := tx.GetVault(ctx, key)
	if err != nil {
		return nil, err
	}
	if _, err := tx.GetPosition(ctx, key); err == nil {
		return nil, vault.ErrAlreadyInitialized
	} else if !errors.Is(err, vault.ErrPositionNotInitialized) {
		return nil, err
	}

	poolCfg, err := c.cfg.Pool.PoolConfig(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("failed to read pool config: %w", err)
	}
	if err := vault.ValidatePoolConfig(poolCfg, rec.Config.QuoteMint); err != nil {
		return nil, err
	}

	owner, err := vault.PositionOwnerAddress(vaultSeed)
	if err != nil {
		return nil, err
	}
	nftMint := c.cfg.Minter()
	positionAddr, err := cpamm.PositionAddress(nftMint)
	if err != nil {
		return nil, err
	}
	nftAccount, err := cpamm.PositionNFTAccountAddress(nftMint)
	if err != nil {
		return nil, err
	}
	eventAuthority, err := cpamm.EventAuthorityAddress()
	if err != nil {
		return nil, err
	}

	if err := c.cfg.Pool.CreatePosition(ctx, vaultSeed, cpamm.CreatePositionRequest{
		Pool:               pool,
		Position:           positionAddr,
		PositionNFTMint:    nftMint,
		PositionNFTAccount: nftAccount,
		EventAuthority:     eventAuthority,
	}); err != nil {
		return nil, fmt.Errorf("failed to create position: %w", err)
	}

	pos := vault.HonoraryPosition{
		Position: positionAddr,
		Owner:    owner,
		Pool:     pool,
		NFTMint:  nftMint,
	}
	if err := tx.CreatePosition(ctx, key, pos); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit position: %w", err)
	}

	c.cfg.Emitter.Emit(ctx, crank.NewEvent(crank.EventHonoraryPositionInitialized,
		"vault_seed", vaultSeed,
		"position", positionAddr.String(),
		"owner", owner.String(),
		"pool", pool.String(),
		"nft_mint", nftMint.String(),
	))
	c.log.Info("position: honorary position initialized",
		"vault_seed", vaultSeed, "position", positionAddr.String(), "pool", pool.String())
	return &pos, nil
}
