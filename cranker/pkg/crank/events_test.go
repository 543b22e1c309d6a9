package crank_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starlabs/star-fee-routing/cranker/pkg/cpamm"
	"github.com/starlabs/star-fee-routing/cranker/pkg/crank"
	"github.com/starlabs/star-fee-routing/cranker/pkg/vault"
	crankertesting "github.com/starlabs/star-fee-routing/utils/pkg/testing"
)

type recordEmitter struct {
	events []crank.Event
}

func (r *recordEmitter) Emit(_ context.Context, ev crank.Event) {
	r.events = append(r.events, ev)
}

func (r *recordEmitter) types() []string {
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

// emittingCrank rebuilds the fixture's crank with a recording emitter.
func emittingCrank(t *testing.T, f *fixture) (*crank.Crank, *recordEmitter) {
	t.Helper()
	rec := &recordEmitter{}
	c, err := crank.New(crank.Config{
		Logger:  crankertesting.NewLogger(),
		Store:   f.store,
		Pool:    f.pool,
		Token:   f.token,
		Emitter: rec,
	})
	require.NoError(t, err)
	return c, rec
}

func TestEvents_EmittedAfterCommit(t *testing.T) {
	f := newFixture(t, vault.Policy{InvestorFeeShareBps: 6000}, cpamm.ClaimResult{Quote: 10_000})
	c, rec := emittingCrank(t, f)
	ctx := context.Background()

	_, err := c.RunPage(ctx, page(f.seed, 0, investors(1_000_000), 1_000_000, true, f.t0))
	require.NoError(t, err)

	assert.Equal(t, []string{
		crank.EventQuoteFeesClaimed,
		crank.EventInvestorPayoutPage,
		crank.EventCreatorPayoutDayClosed,
	}, rec.types())

	seen := make(map[string]bool)
	for _, ev := range rec.events {
		require.NotEmpty(t, ev.ID)
		require.False(t, seen[ev.ID])
		seen[ev.ID] = true
	}
}

func TestEvents_NotEmittedOnFailure(t *testing.T) {
	f := newFixture(t, vault.Policy{InvestorFeeShareBps: 6000}, cpamm.ClaimResult{Quote: 10_000, Base: 5})
	c, rec := emittingCrank(t, f)
	ctx := context.Background()

	_, err := c.RunPage(ctx, page(f.seed, 0, investors(1_000_000), 1_000_000, true, f.t0))
	require.ErrorIs(t, err, vault.ErrBaseFeeDetected)
	assert.Empty(t, rec.events)
}

func TestNewEvent(t *testing.T) {
	t.Parallel()

	ev := crank.NewEvent(crank.EventQuoteFeesClaimed, "vault_seed", uint64(1))
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, crank.EventQuoteFeesClaimed, ev.Type)
	assert.Equal(t, []any{"vault_seed", uint64(1)}, ev.Payload)
}
