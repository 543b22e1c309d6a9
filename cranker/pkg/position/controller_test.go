package position_test

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starlabs/star-fee-routing/cranker/pkg/cpamm"
	"github.com/starlabs/star-fee-routing/cranker/pkg/position"
	"github.com/starlabs/star-fee-routing/cranker/pkg/store"
	"github.com/starlabs/star-fee-routing/cranker/pkg/vault"
	crankertesting "github.com/starlabs/star-fee-routing/utils/pkg/testing"
)

type mockPool struct {
	PoolConfigFunc     func(ctx context.Context, pool solana.PublicKey) (vault.PoolQuoteConfig, error)
	CreatePositionFunc func(ctx context.Context, vaultSeed uint64, req cpamm.CreatePositionRequest) error
}

func (m *mockPool) PoolConfig(ctx context.Context, pool solana.PublicKey) (vault.PoolQuoteConfig, error) {
	return m.PoolConfigFunc(ctx, pool)
}

func (m *mockPool) CreatePosition(ctx context.Context, vaultSeed uint64, req cpamm.CreatePositionRequest) error {
	return m.CreatePositionFunc(ctx, vaultSeed, req)
}

func seedVault(t *testing.T, st store.Store, quote solana.PublicKey) (uint64, string) {
	t.Helper()
	const seed = 7
	key, err := vault.StoreKey(seed)
	require.NoError(t, err)

	ctx := context.Background()
	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateVault(ctx, store.VaultRecord{
		Key: key,
		Config: vault.Config{
			VaultSeed:       seed,
			CreatorQuoteATA: solana.NewWallet().PublicKey(),
			QuoteMint:       quote,
			Y0:              1_000_000,
			CreatedAt:       time.Unix(1_700_000_000, 0),
		},
		Policy: vault.Policy{InvestorFeeShareBps: 5000},
	}))
	require.NoError(t, tx.Commit(ctx))
	return seed, key
}

func TestInitialize(t *testing.T) {
	quote := solana.NewWallet().PublicKey()
	base := solana.NewWallet().PublicKey()
	poolAddr := solana.NewWallet().PublicKey()
	nftMint := solana.NewWallet().PublicKey()

	var st store.Store = store.NewMemory()
	seed, key := seedVault(t, st, quote)

	var created *cpamm.CreatePositionRequest
	pool := &mockPool{
		PoolConfigFunc: func(context.Context, solana.PublicKey) (vault.PoolQuoteConfig, error) {
			return vault.PoolQuoteConfig{
				TokenAMint:     base,
				TokenBMint:     quote,
				CollectFeeMode: vault.CollectFeeModeOnlyB,
			}, nil
		},
		CreatePositionFunc: func(_ context.Context, _ uint64, req cpamm.CreatePositionRequest) error {
			created = &req
			return nil
		},
	}

	ctrl, err := position.NewController(position.Config{
		Logger: crankertesting.NewLogger(),
		Store:  st,
		Pool:   pool,
		Minter: func() solana.PublicKey { return nftMint },
	})
	require.NoError(t, err)

	pos, err := ctrl.Initialize(context.Background(), seed, poolAddr)
	require.NoError(t, err)

	owner, err := vault.PositionOwnerAddress(seed)
	require.NoError(t, err)
	assert.Equal(t, owner, pos.Owner, "position is owned by the program-derived address")
	assert.Equal(t, poolAddr, pos.Pool)
	assert.Equal(t, nftMint, pos.NFTMint)

	require.NotNil(t, created)
	assert.Equal(t, poolAddr, created.Pool)
	assert.Equal(t, nftMint, created.PositionNFTMint)

	// The position row is persisted.
	ctx := context.Background()
	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()
	stored, err := tx.GetPosition(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, *pos, *stored)
}

func TestInitialize_RejectsSecondPosition(t *testing.T) {
	quote := solana.NewWallet().PublicKey()
	base := solana.NewWallet().PublicKey()

	var st store.Store = store.NewMemory()
	seed, _ := seedVault(t, st, quote)

	pool := &mockPool{
		PoolConfigFunc: func(context.Context, solana.PublicKey) (vault.PoolQuoteConfig, error) {
			return vault.PoolQuoteConfig{
				TokenAMint:     base,
				TokenBMint:     quote,
				CollectFeeMode: vault.CollectFeeModeOnlyB,
			}, nil
		},
		CreatePositionFunc: func(context.Context, uint64, cpamm.CreatePositionRequest) error {
			return nil
		},
	}

	ctrl, err := position.NewController(position.Config{
		Logger: crankertesting.NewLogger(),
		Store:  st,
		Pool:   pool,
	})
	require.NoError(t, err)

	_, err = ctrl.Initialize(context.Background(), seed, solana.NewWallet().PublicKey())
	require.NoError(t, err)

	_, err = ctrl.Initialize(context.Background(), seed, solana.NewWallet().PublicKey())
	assert.ErrorIs(t, err, vault.ErrAlreadyInitialized)
}

func TestInitialize_RejectsWrongQuoteSide(t *testing.T) {
	quote := solana.NewWallet().PublicKey()
	base := solana.NewWallet().PublicKey()

	var st store.Store = store.NewMemory()
	seed, key := seedVault(t, st, quote)

	pool := &mockPool{
		PoolConfigFunc: func(context.Context, solana.PublicKey) (vault.PoolQuoteConfig, error) {
			// Quote sits on the A side: fees could accrue in base.
			return vault.PoolQuoteConfig{
				TokenAMint:     quote,
				TokenBMint:     base,
				CollectFeeMode: vault.CollectFeeModeOnlyB,
			}, nil
		},
		CreatePositionFunc: func(context.Context, uint64, cpamm.CreatePositionRequest) error {
			t.Fatal("create_position must not be reached for an invalid pool")
			return nil
		},
	}

	ctrl, err := position.NewController(position.Config{
		Logger: crankertesting.NewLogger(),
		Store:  st,
		Pool:   pool,
	})
	require.NoError(t, err)

	_, err = ctrl.Initialize(context.Background(), seed, solana.NewWallet().PublicKey())
	assert.ErrorIs(t, err, vault.ErrInvalidQuoteMint)

	// Nothing persisted.
	ctx := context.Background()
	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()
	_, err = tx.GetPosition(ctx, key)
	assert.ErrorIs(t, err, vault.ErrPositionNotInitialized)
}

func TestInitialize_RequiresVault(t *testing.T) {
	ctrl, err := position.NewController(position.Config{
		Logger: crankertesting.NewLogger(),
		Store:  store.NewMemory(),
		Pool: &mockPool{
			PoolConfigFunc: func(context.Context, solana.PublicKey) (vault.PoolQuoteConfig, error) {
				return vault.PoolQuoteConfig{}, nil
			},
			CreatePositionFunc: func(context.Context, uint64, cpamm.CreatePositionRequest) error {
				return nil
			},
		},
	})
	require.NoError(t, err)

	_, err = ctrl.Initialize(context.Background(), 99, solana.NewWallet().PublicKey())
	assert.ErrorIs(t, err, vault.ErrVaultNotFound)
}
