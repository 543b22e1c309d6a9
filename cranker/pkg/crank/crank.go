// Package crank drives the daily fee distribution: a resumable, paginated,
// permissionless state machine over per-vault progress rows. One invocation
// processes one page inside one store transaction; any failure rolls back
// with no partial accounting.
package crank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/starlabs/star-fee-routing/cranker/pkg/cpamm"
	"github.com/starlabs/star-fee-routing/cranker/pkg/fixedpoint"
	"github.com/starlabs/star-fee-routing/cranker/pkg/metrics"
	"github.com/starlabs/star-fee-routing/cranker/pkg/store"
	"github.com/starlabs/star-fee-routing/cranker/pkg/vault"
)

// dayWindow is the minimum spacing between distribution day starts.
const dayWindow = 24 * time.Hour

// PoolClient is the slice of the cp-amm adapter the crank needs.
// Production wires *cpamm.Client; tests use func-field mocks.
type PoolClient interface {
	PoolConfig(ctx context.Context, pool solana.PublicKey) (vault.PoolQuoteConfig, error)
	ClaimQuoteFees(ctx context.Context, vaultSeed uint64, ref cpamm.PositionRef) (cpamm.ClaimResult, error)
}

// TokenSender moves quote out of the vault treasury to recipient accounts.
// A batch is one atomic submission: every leg lands or none do.
type TokenSender interface {
	TransferQuote(ctx context.Context, source solana.PublicKey, transfers []cpamm.QuoteTransfer) error
}

type Config struct {
	Logger  *slog.Logger
	Store   store.Store
	Pool    PoolClient
	Token   TokenSender
	Emitter Emitter
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
	if cfg.Token == nil {
		return errors.New("token sender is required")
	}
	if cfg.Emitter == nil {
		cfg.Emitter = &NopEmitter{}
	}
	return nil
}

type Crank struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Crank, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Crank{log: cfg.Logger, cfg: cfg}, nil
}

// PageRequest is one crank invocation. Investors is this page's batch with
// locked amounts resolved at a single point in time; TotalLocked is the
// aggregate across the FULL investor set at that same instant, not just this
// page. Page 0 may carry investors and may also be final (single-page day).
type PageRequest struct {
	VaultSeed   uint64
	PageIndex   uint32
	Investors   []vault.InvestorRecord
	TotalLocked uint64
	IsFinalPage bool
	Now         time.Time
}

// RunPage executes one distribution page. Page 0 opens a new day: it gates on
// 24h since the last day start, claims fees from the honorary position
// (quote-only, enforced), and resets the day's bookkeeping. Every page pays
// its investor batch pro-rata from the day-level pool, clamped to the daily
// cap; the final page pays the creator the complement and closes the day.
//
// Replayed or out-of-order pages fail with ErrInvalidPageIndex before any
// funds move, and a page's payouts ride in a single on-chain transaction, so
// a failed or retried invocation never leaves partial payments behind.
func (c *Crank) RunPage(ctx context.Context, req PageRequest) (*vault.PayoutSchedule, error) {
	start := time.Now()
	sched, err := c.runPage(ctx, req)
	metrics.CrankPageDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CrankPagesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.CrankPagesTotal.WithLabelValues("success").Inc()
	return sched, nil
}

func (c *Crank) runPage(ctx context.Context, req PageRequest) (*vault.PayoutSchedule, error) {
	key, err := vault.StoreKey(req.VaultSeed)
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
	pos, err := tx.GetPosition(ctx, key)
	if err != nil {
		return nil, err
	}
	prog, err := tx.GetProgressForUpdate(ctx, key)
	if err != nil {
		return nil, err
	}

	authority, err := vault.TreasuryAuthorityAddress(req.VaultSeed)
	if err != nil {
		return nil, err
	}
	quoteTreasury, _, err := solana.FindAssociatedTokenAddress(authority, rec.Config.QuoteMint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive quote treasury: %w", err)
	}

	var events []Event

	if req.PageIndex == 0 {
		ev, err := c.openDay(ctx, req, rec, pos, prog, authority, quoteTreasury)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	} else {
		if !prog.Started() {
			return nil, vault.ErrInvalidPageIndex
		}
		if prog.DayComplete {
			return nil, vault.ErrDistributionAlreadyComplete
		}
		if req.PageIndex != prog.PageCursor {
			return nil, vault.ErrInvalidPageIndex
		}
	}

	sched, err := vault.Calculate(vault.CalcInput{
		ClaimedQuote: prog.DailyClaimed,
		CarryOverIn:  prog.DayCarryIn,
		Policy:       rec.Policy,
		Y0:           rec.Config.Y0,
		TotalLocked:  req.TotalLocked,
		Investors:    req.Investors,
	})
	if err != nil {
		return nil, err
	}

	if err := c.applyPoolHeadroom(req, prog, sched); err != nil {
		return nil, err
	}
	if err := c.applyDailyCap(rec.Policy, prog, sched); err != nil {
		return nil, err
	}

	transfers := make([]cpamm.QuoteTransfer, 0, len(sched.Payouts)+1)
	for _, p := range sched.Payouts {
		if p.Amount == 0 {
			continue
		}
		transfers = append(transfers, cpamm.QuoteTransfer{Dest: p.QuoteATA, Amount: p.Amount})
	}

	prog.DailyDistributed, err = fixedpoint.Add(prog.DailyDistributed, sched.Distributed)
	if err != nil {
		return nil, overflow(err)
	}
	prog.DustAccrued, err = fixedpoint.Add(prog.DustAccrued, sched.DustSuppressed)
	if err != nil {
		return nil, overflow(err)
	}
	prog.PageCursor = req.PageIndex + 1

	events = append(events, NewEvent(EventInvestorPayoutPage,
		"vault_seed", req.VaultSeed,
		"page", req.PageIndex,
		"investors", len(sched.Payouts),
		"distributed", sched.Distributed,
		"dust_suppressed", sched.DustSuppressed,
		"eligible_share_bps", sched.EligibleShareBps,
		"total_locked", req.TotalLocked,
	))

	if req.IsFinalPage {
		creator, err := c.closeDay(prog)
		if err != nil {
			return nil, err
		}
		if creator > 0 {
			transfers = append(transfers, cpamm.QuoteTransfer{Dest: rec.Config.CreatorQuoteATA, Amount: creator})
		}
		events = append(events, NewEvent(EventCreatorPayoutDayClosed,
			"vault_seed", req.VaultSeed,
			"creator_payout", creator,
			"daily_distributed", prog.DailyDistributed,
			"carry_over", prog.CarryOver,
		))
		metrics.CreatorPayoutsTotal.Add(float64(creator))
		metrics.DaysClosedTotal.Inc()
	}

	// One transaction for the whole page: the investor legs and, on the
	// final page, the creator payout land together or not at all.
	if len(transfers) > 0 {
		if err := c.cfg.Token.TransferQuote(ctx, quoteTreasury, transfers); err != nil {
			return nil, fmt.Errorf("failed to pay page: %w", err)
		}
	}

	if err := tx.SaveProgress(ctx, key, *prog); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit page: %w", err)
	}

	metrics.InvestorPayoutsTotal.Add(float64(sched.Distributed))
	for _, ev := range events {
		c.cfg.Emitter.Emit(ctx, ev)
	}
	c.log.Info("crank: page processed",
		"vault_seed", req.VaultSeed,
		"page", req.PageIndex,
		"distributed", sched.Distributed,
		"final", req.IsFinalPage,
	)
	return sched, nil
}

// openDay admits page 0, claims fees and resets the day bookkeeping on prog.
// The time gate applies from the second cycle on; a day abandoned
// mid-pagination for a full window is superseded and its unpaid funds roll
// into the new day's carry-in.
func (c *Crank) openDay(ctx context.Context, req PageRequest, rec *store.VaultRecord, pos *vault.HonoraryPosition, prog *vault.Progress, authority, quoteTreasury solana.PublicKey) (Event, error) {
	carryIn := prog.CarryOver
	if prog.Started() {
		elapsed := req.Now.Unix() - prog.LastDistributionStartTS
		if elapsed < int64(dayWindow/time.Second) {
			if prog.DayComplete {
				return Event{}, vault.ErrTooEarlyForDistribution
			}
			// Day still open: page 0 is the wrong index mid-pagination.
			return Event{}, vault.ErrInvalidPageIndex
		}
		if !prog.DayComplete {
			unpaid, err := c.unpaidBalance(prog)
			if err != nil {
				return Event{}, err
			}
			carryIn, err = fixedpoint.Add(carryIn, unpaid)
			if err != nil {
				return Event{}, overflow(err)
			}
			c.log.Warn("crank: superseding abandoned day",
				"vault_seed", req.VaultSeed,
				"abandoned_start_ts", prog.LastDistributionStartTS,
				"rolled_forward", unpaid,
			)
		}
	}

	poolCfg, err := c.cfg.Pool.PoolConfig(ctx, pos.Pool)
	if err != nil {
		return Event{}, fmt.Errorf("failed to read pool config: %w", err)
	}
	if err := vault.ValidatePoolConfig(poolCfg, rec.Config.QuoteMint); err != nil {
		return Event{}, err
	}
	baseTreasury, _, err := solana.FindAssociatedTokenAddress(authority, poolCfg.TokenAMint)
	if err != nil {
		return Event{}, fmt.Errorf("failed to derive base treasury: %w", err)
	}

	res, err := c.cfg.Pool.ClaimQuoteFees(ctx, req.VaultSeed, cpamm.PositionRef{
		Pool:          pos.Pool,
		Position:      pos.Position,
		PositionNFT:   pos.NFTMint,
		QuoteTreasury: quoteTreasury,
		BaseTreasury:  baseTreasury,
	})
	if err != nil {
		return Event{}, fmt.Errorf("failed to claim fees: %w", err)
	}
	if err := vault.ValidateClaim(res.Quote, res.Base); err != nil {
		return Event{}, err
	}

	prog.LastDistributionStartTS = req.Now.Unix()
	prog.DayComplete = false
	prog.PageCursor = 0
	prog.DailyDistributed = 0
	prog.DailyClaimed = res.Quote
	prog.DayCarryIn = carryIn
	prog.DustAccrued = 0
	prog.CarryOver = 0

	metrics.QuoteFeesClaimedTotal.Add(float64(res.Quote))
	return NewEvent(EventQuoteFeesClaimed,
		"vault_seed", req.VaultSeed,
		"claimed", res.Quote,
		"carry_in", carryIn,
		"day_start_ts", prog.LastDistributionStartTS,
	), nil
}

// applyPoolHeadroom caps a page's draw, payouts plus suppressed dust, at what
// remains of the day's investor pool. Cumulative draw never passes the
// eligible share, so the creator remainder stays intact and the close-out
// arithmetic cannot underflow. A replayed or overlapping batch finds no
// headroom; its excess was never funded, so it is dropped, not carried.
func (c *Crank) applyPoolHeadroom(req PageRequest, prog *vault.Progress, sched *vault.PayoutSchedule) error {
	drawn, err := fixedpoint.Add(prog.DailyDistributed, prog.DustAccrued)
	if err != nil {
		return overflow(err)
	}
	headroom := uint64(0)
	if sched.InvestorPool > drawn {
		headroom = sched.InvestorPool - drawn
	}
	pageDraw, err := fixedpoint.Add(sched.Distributed, sched.DustSuppressed)
	if err != nil {
		return overflow(err)
	}
	if pageDraw <= headroom {
		return nil
	}

	dropped, err := clampPayouts(sched, headroom)
	if err != nil {
		return err
	}
	if dustAllow := headroom - sched.Distributed; sched.DustSuppressed > dustAllow {
		over := sched.DustSuppressed - dustAllow
		sched.DustSuppressed = dustAllow
		sched.CarryOverOut, err = fixedpoint.Sub(sched.CarryOverOut, over)
		if err != nil {
			return overflow(err)
		}
		dropped, err = fixedpoint.Add(dropped, over)
		if err != nil {
			return overflow(err)
		}
	}
	c.log.Warn("crank: page draw exceeds remaining investor pool",
		"vault_seed", req.VaultSeed,
		"page", req.PageIndex,
		"dropped", dropped,
	)
	return nil
}

// applyDailyCap clamps the schedule's payouts to the remaining cap headroom.
// Clamped amounts accrue as dust and carry over; hitting the cap is never an
// error.
func (c *Crank) applyDailyCap(policy vault.Policy, prog *vault.Progress, sched *vault.PayoutSchedule) error {
	if policy.DailyCap == nil {
		return nil
	}
	headroom := uint64(0)
	if *policy.DailyCap > prog.DailyDistributed {
		headroom = *policy.DailyCap - prog.DailyDistributed
	}
	clamped, err := clampPayouts(sched, headroom)
	if err != nil || clamped == 0 {
		return err
	}
	sched.CarryOverOut, err = fixedpoint.Add(sched.CarryOverOut, clamped)
	if err != nil {
		return overflow(err)
	}
	prog.DustAccrued, err = fixedpoint.Add(prog.DustAccrued, clamped)
	if err != nil {
		return overflow(err)
	}
	return nil
}

// clampPayouts reduces the schedule's nonzero payouts in order until their
// sum fits headroom, returning the total clamped away.
func clampPayouts(sched *vault.PayoutSchedule, headroom uint64) (uint64, error) {
	if sched.Distributed <= headroom {
		return 0, nil
	}
	var clamped, paid uint64
	var err error
	for i := range sched.Payouts {
		amt := sched.Payouts[i].Amount
		if amt == 0 {
			continue
		}
		allow := fixedpoint.MinU64(amt, headroom-paid)
		if allow < amt {
			clamped, err = fixedpoint.Add(clamped, amt-allow)
			if err != nil {
				return 0, overflow(err)
			}
		}
		sched.Payouts[i].Amount = allow
		paid += allow
	}
	sched.Distributed = paid
	return clamped, nil
}

// closeDay settles the creator's complement and marks the day complete. The
// caller pays the returned amount in the page's transfer batch. Conservation
// at close:
//
//	DailyClaimed + DayCarryIn == DailyDistributed + creator + CarryOver
func (c *Crank) closeDay(prog *vault.Progress) (uint64, error) {
	unpaid, err := c.unpaidBalance(prog)
	if err != nil {
		return 0, err
	}
	creator, err := fixedpoint.Sub(unpaid, prog.DustAccrued)
	if err != nil {
		return 0, overflow(err)
	}
	prog.CarryOver = prog.DustAccrued
	prog.DayComplete = true
	return creator, nil
}

// unpaidBalance is the day's funds not yet distributed to investors:
// DailyClaimed + DayCarryIn − DailyDistributed.
func (c *Crank) unpaidBalance(prog *vault.Progress) (uint64, error) {
	avail, err := fixedpoint.Add(prog.DailyClaimed, prog.DayCarryIn)
	if err != nil {
		return 0, overflow(err)
	}
	unpaid, err := fixedpoint.Sub(avail, prog.DailyDistributed)
	if err != nil {
		return 0, overflow(err)
	}
	return unpaid, nil
}

func overflow(err error) error {
	if errors.Is(err, fixedpoint.ErrOverflow) {
		return vault.ErrArithmeticOverflow
	}
	return err
}
