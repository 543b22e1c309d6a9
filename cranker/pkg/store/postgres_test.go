package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/starlabs/star-fee-routing/cranker/pkg/store"
	"github.com/starlabs/star-fee-routing/cranker/pkg/vault"
	crankertesting "github.com/starlabs/star-fee-routing/utils/pkg/testing"
)

// newPostgresStore starts a disposable PostgreSQL container, runs the
// migrations, and returns a ready store.
func newPostgresStore(t *testing.T) *store.Postgres {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	log := crankertesting.NewLogger()

	pg, err := crankertesting.NewPostgres(ctx, log, nil)
	require.NoError(t, err)
	t.Cleanup(pg.Close)

	require.NoError(t, store.MigrateUp(log, pg.ConnStr()))

	pool, err := pgxpool.New(ctx, pg.ConnStr())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s, err := store.NewPostgres(store.PostgresConfig{Logger: log, Pool: pool})
	require.NoError(t, err)
	return s
}

func TestPostgres_VaultRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newPostgresStore(t)

	dailyCap := uint64(5_000)
	rec := store.VaultRecord{
		Key: storeKey(t, 1),
		Config: vault.Config{
			VaultSeed:       1,
			CreatorQuoteATA: solana.NewWallet().PublicKey(),
			QuoteMint:       solana.NewWallet().PublicKey(),
			Y0:              1_000_000,
			CreatedAt:       time.Now().UTC().Truncate(time.Microsecond),
		},
		Policy: vault.Policy{
			InvestorFeeShareBps: 6000,
			DailyCap:            &dailyCap,
			MinPayout:           10,
		},
	}

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateVault(ctx, rec))
	require.NoError(t, tx.Commit(ctx))

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	got, err := tx.GetVault(ctx, rec.Key)
	require.NoError(t, err)
	require.Equal(t, rec.Config.VaultSeed, got.Config.VaultSeed)
	require.Equal(t, rec.Config.CreatorQuoteATA, got.Config.CreatorQuoteATA)
	require.Equal(t, rec.Config.QuoteMint, got.Config.QuoteMint)
	require.Equal(t, rec.Config.Y0, got.Config.Y0)
	require.True(t, rec.Config.CreatedAt.Equal(got.Config.CreatedAt))
	require.Equal(t, rec.Policy.InvestorFeeShareBps, got.Policy.InvestorFeeShareBps)
	require.NotNil(t, got.Policy.DailyCap)
	require.Equal(t, dailyCap, *got.Policy.DailyCap)
	require.Equal(t, rec.Policy.MinPayout, got.Policy.MinPayout)

	// CreateVault also seeds zeroed progress.
	p, err := tx.GetProgressForUpdate(ctx, rec.Key)
	require.NoError(t, err)
	require.Equal(t, vault.Progress{}, *p)
}

func TestPostgres_DuplicateVault(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newPostgresStore(t)
	rec := testRecord(t, 2)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateVault(ctx, rec))
	require.NoError(t, tx.Commit(ctx))

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)
	require.ErrorIs(t, tx.CreateVault(ctx, rec), vault.ErrAlreadyInitialized)
}

func TestPostgres_UnknownVault(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newPostgresStore(t)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	_, err = tx.GetVault(ctx, storeKey(t, 404))
	require.ErrorIs(t, err, vault.ErrVaultNotFound)
	_, err = tx.GetProgressForUpdate(ctx, storeKey(t, 404))
	require.ErrorIs(t, err, vault.ErrVaultNotFound)
}

func TestPostgres_PositionAndProgress(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newPostgresStore(t)
	rec := testRecord(t, 3)
	pos := vault.HonoraryPosition{
		Position: solana.NewWallet().PublicKey(),
		Owner:    solana.NewWallet().PublicKey(),
		Pool:     solana.NewWallet().PublicKey(),
		NFTMint:  solana.NewWallet().PublicKey(),
	}

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateVault(ctx, rec))

	_, err = tx.GetPosition(ctx, rec.Key)
	require.ErrorIs(t, err, vault.ErrPositionNotInitialized)

	require.NoError(t, tx.CreatePosition(ctx, rec.Key, pos))
	require.NoError(t, tx.Commit(ctx))

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	require.ErrorIs(t, tx.CreatePosition(ctx, rec.Key, pos), vault.ErrAlreadyInitialized)
	require.NoError(t, tx.Rollback(ctx))

	want := vault.Progress{
		LastDistributionStartTS: 1_700_000_000,
		PageCursor:              2,
		DailyDistributed:        900,
		CarryOver:               3,
		DailyClaimed:            1_000,
		DayCarryIn:              5,
		DustAccrued:             3,
	}

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.SaveProgress(ctx, rec.Key, want))
	require.NoError(t, tx.Commit(ctx))

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	got, err := tx.GetPosition(ctx, rec.Key)
	require.NoError(t, err)
	require.Equal(t, pos, *got)

	p, err := tx.GetProgressForUpdate(ctx, rec.Key)
	require.NoError(t, err)
	require.Equal(t, want, *p)
}

func TestPostgres_RowLockSerializes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newPostgresStore(t)
	rec := testRecord(t, 4)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateVault(ctx, rec))
	require.NoError(t, tx.Commit(ctx))

	// Holder takes the row lock; a second reader must wait until rollback.
	holder, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = holder.GetProgressForUpdate(ctx, rec.Key)
	require.NoError(t, err)

	acquired := make(chan error, 1)
	go func() {
		tx2, err := s.Begin(ctx)
		if err != nil {
			acquired <- err
			return
		}
		defer tx2.Rollback(ctx)
		_, err = tx2.GetProgressForUpdate(ctx, rec.Key)
		acquired <- err
	}()

	select {
	case err := <-acquired:
		t.Fatalf("second reader acquired lock while held: %v", err)
	case <-time.After(300 * time.Millisecond):
	}

	require.NoError(t, holder.Rollback(ctx))
	select {
	case err := <-acquired:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("second reader never acquired lock after rollback")
	}
}
