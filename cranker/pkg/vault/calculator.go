package vault

import (
	"errors"
	"fmt"

	"github.com/starlabs/star-fee-routing/cranker/pkg/fixedpoint"
)

// CalcInput is everything the payout calculator needs for one page.
// ClaimedQuote and CarryOverIn are day-level figures: the quote claimed at
// page 0 and the carry-over consumed at day start. TotalLocked is the
// aggregate still-locked balance across the full investor set at the page's
// resolution time; Investors is only this page's batch.
type CalcInput struct {
	ClaimedQuote uint64
	CarryOverIn  uint64
	Policy       Policy
	Y0           uint64
	TotalLocked  uint64
	Investors    []InvestorRecord
}

// Calculate computes a pro-rata, floor-rounded payout schedule for one page.
// Pure function: no side effects, integer arithmetic only, every overflow
// surfaces as ErrArithmeticOverflow.
//
// The eligible investor share is min(policy share, locked ratio in bps); the
// investor pool is floor((claimed + carry_in) * eligible / 10000); each
// investor receives floor(pool * locked_i / total_locked) computed in a
// single 128-bit expression so no intermediate rounding drifts. Payouts below
// the min-payout threshold are zeroed and their amount moved to carry-over.
func Calculate(in CalcInput) (*PayoutSchedule, error) {
	if in.Y0 == 0 {
		return nil, fmt.Errorf("%w: y0 is zero", ErrArithmeticOverflow)
	}

	available, err := fixedpoint.Add(in.ClaimedQuote, in.CarryOverIn)
	if err != nil {
		return nil, overflow(err)
	}

	fLockedBps, err := fixedpoint.RatioBps(in.TotalLocked, in.Y0)
	if err != nil {
		return nil, overflow(err)
	}
	eligibleBps := in.Policy.InvestorFeeShareBps
	if fLockedBps < eligibleBps {
		eligibleBps = fLockedBps
	}

	var pool uint64
	if in.TotalLocked > 0 {
		pool, err = fixedpoint.Bps(available, eligibleBps)
		if err != nil {
			return nil, overflow(err)
		}
	}

	sched := &PayoutSchedule{
		Payouts:          make([]InvestorPayout, 0, len(in.Investors)),
		EligibleShareBps: eligibleBps,
		InvestorPool:     pool,
	}

	for _, inv := range in.Investors {
		var amount uint64
		if in.TotalLocked > 0 {
			amount, err = fixedpoint.MulDiv(pool, inv.Locked, in.TotalLocked)
			if err != nil {
				return nil, overflow(err)
			}
		}
		if amount > 0 && amount < in.Policy.MinPayout {
			sched.DustSuppressed, err = fixedpoint.Add(sched.DustSuppressed, amount)
			if err != nil {
				return nil, overflow(err)
			}
			amount = 0
		}
		sched.Payouts = append(sched.Payouts, InvestorPayout{
			Stream:   inv.Stream,
			QuoteATA: inv.QuoteATA,
			Amount:   amount,
		})
		sched.Distributed, err = fixedpoint.Add(sched.Distributed, amount)
		if err != nil {
			return nil, overflow(err)
		}
	}

	// Everything not allocated to the pool, plus suppressed dust, carries
	// forward; the intra-pool floor remainder is the creator-eligible
	// remainder settled at day close.
	rest, err := fixedpoint.Sub(available, pool)
	if err != nil {
		return nil, overflow(err)
	}
	sched.CarryOverOut, err = fixedpoint.Add(rest, sched.DustSuppressed)
	if err != nil {
		return nil, overflow(err)
	}

	return sched, nil
}

func overflow(err error) error {
	if errors.Is(err, fixedpoint.ErrOverflow) {
		return ErrArithmeticOverflow
	}
	return err
}
