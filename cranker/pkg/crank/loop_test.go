package crank_test

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starlabs/star-fee-routing/cranker/pkg/cpamm"
	"github.com/starlabs/star-fee-routing/cranker/pkg/crank"
	"github.com/starlabs/star-fee-routing/cranker/pkg/vault"
	crankertesting "github.com/starlabs/star-fee-routing/utils/pkg/testing"
)

type mockSource struct {
	byVault map[uint64][]crank.Investor
}

func (m *mockSource) Investors(_ context.Context, vaultSeed uint64) ([]crank.Investor, error) {
	return m.byVault[vaultSeed], nil
}

type mockResolver struct {
	locked map[solana.PublicKey]uint64
}

func (m *mockResolver) TotalLocked(_ context.Context, streams []solana.PublicKey, _ time.Time) ([]uint64, uint64, error) {
	out := make([]uint64, len(streams))
	var total uint64
	for i, s := range streams {
		out[i] = m.locked[s]
		total += out[i]
	}
	return out, total, nil
}

type loopFixture struct {
	*fixture
	clock    *clockwork.FakeClock
	source   *mockSource
	resolver *mockResolver
	loop     *crank.Loop
}

// newLoopFixture seeds five investors, each locked 200k of a 1M Y0, and a
// page size of 2 so one day spans three pages.
func newLoopFixture(t *testing.T, policy vault.Policy, claim cpamm.ClaimResult) *loopFixture {
	t.Helper()

	f := newFixture(t, policy, claim)
	lf := &loopFixture{
		fixture:  f,
		clock:    clockwork.NewFakeClockAt(f.t0),
		source:   &mockSource{byVault: make(map[uint64][]crank.Investor)},
		resolver: &mockResolver{locked: make(map[solana.PublicKey]uint64)},
	}
	for i := 0; i < 5; i++ {
		inv := crank.Investor{
			Stream:   solana.NewWallet().PublicKey(),
			QuoteATA: solana.NewWallet().PublicKey(),
		}
		lf.source.byVault[f.seed] = append(lf.source.byVault[f.seed], inv)
		lf.resolver.locked[inv.Stream] = 200_000
	}

	loop, err := crank.NewLoop(crank.LoopConfig{
		Logger:     crankertesting.NewLogger(),
		Clock:      lf.clock,
		Crank:      f.crank,
		Store:      f.store,
		Source:     lf.source,
		Resolver:   lf.resolver,
		VaultSeeds: []uint64{f.seed},
		PageSize:   2,
		Interval:   10 * time.Minute,
	})
	require.NoError(t, err)
	lf.loop = loop
	return lf
}

func TestLoop_RunsFullDay(t *testing.T) {
	lf := newLoopFixture(t, vault.Policy{InvestorFeeShareBps: 6000}, cpamm.ClaimResult{Quote: 10_000})
	ctx := context.Background()

	require.NoError(t, lf.loop.Run(ctx))

	prog := lf.progress(t)
	assert.True(t, prog.DayComplete)
	assert.Equal(t, uint32(3), prog.PageCursor)
	assert.Equal(t, uint64(10_000), prog.DailyClaimed)
	// All locked: pool = 6000 bps of 10k, split evenly five ways.
	assert.Equal(t, uint64(6_000), prog.DailyDistributed)
	for _, inv := range lf.source.byVault[lf.seed] {
		assert.Equal(t, uint64(1_200), lf.token.to(inv.QuoteATA))
	}
	assert.Equal(t, uint64(4_000), lf.token.to(lf.creator))
}

func TestLoop_SkipsClosedGate(t *testing.T) {
	lf := newLoopFixture(t, vault.Policy{InvestorFeeShareBps: 6000}, cpamm.ClaimResult{Quote: 10_000})
	ctx := context.Background()

	require.NoError(t, lf.loop.Run(ctx))
	paid := lf.token.total()

	// Within the same day the gate is closed; Run reports no error and
	// moves nothing.
	require.NoError(t, lf.loop.Run(ctx))
	assert.Equal(t, paid, lf.token.total())

	lf.clock.Advance(25 * time.Hour)
	require.NoError(t, lf.loop.Run(ctx))
	assert.Equal(t, 2*paid, lf.token.total())
}

func TestLoop_ResumesMidDay(t *testing.T) {
	lf := newLoopFixture(t, vault.Policy{InvestorFeeShareBps: 6000}, cpamm.ClaimResult{Quote: 10_000})
	ctx := context.Background()

	// Drive page 0 by hand, as if a previous cycle died mid-pagination.
	all := lf.source.byVault[lf.seed]
	firstBatch := make([]vault.InvestorRecord, 2)
	for i := 0; i < 2; i++ {
		firstBatch[i] = vault.InvestorRecord{
			Stream:   all[i].Stream,
			QuoteATA: all[i].QuoteATA,
			Locked:   200_000,
		}
	}
	_, err := lf.crank.RunPage(ctx, page(lf.seed, 0, firstBatch, 1_000_000, false, lf.t0))
	require.NoError(t, err)
	require.Equal(t, uint32(1), lf.progress(t).PageCursor)

	// The loop picks up at the saved cursor and closes the day without
	// paying page 0 twice.
	require.NoError(t, lf.loop.Run(ctx))

	prog := lf.progress(t)
	assert.True(t, prog.DayComplete)
	assert.Equal(t, uint64(6_000), prog.DailyDistributed)
	for _, inv := range all {
		assert.Equal(t, uint64(1_200), lf.token.to(inv.QuoteATA))
	}
}
