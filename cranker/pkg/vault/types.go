// Package vault defines the persisted data model and the pure distribution
// arithmetic for the fee-routing cranker: vault configuration, distribution
// policy, per-day crank progress, and the payout calculator that turns a
// claimed quote amount into a pro-rata, floor-rounded, dust-aware schedule.
package vault

import (
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/starlabs/star-fee-routing/cranker/pkg/fixedpoint"
)

// Config is the immutable per-vault configuration, written once at
// initialize_vault and read-only thereafter.
type Config struct {
	VaultSeed       uint64
	CreatorQuoteATA solana.PublicKey
	QuoteMint       solana.PublicKey
	// Y0 is the total investor allocation at the token generation event, in
	// the locked token's smallest unit. Denominator of the locked ratio.
	Y0        uint64
	CreatedAt time.Time
}

func (c *Config) Validate() error {
	if c.Y0 == 0 {
		return errors.New("y0 must be positive")
	}
	if c.CreatorQuoteATA.IsZero() {
		return errors.New("creator quote ata is required")
	}
	if c.QuoteMint.IsZero() {
		return errors.New("quote mint is required")
	}
	return nil
}

// Policy is the distribution policy, fixed for the vault's life.
type Policy struct {
	InvestorFeeShareBps uint16
	// DailyCap bounds investor payouts per day in quote smallest units.
	// nil means uncapped.
	DailyCap *uint64
	// MinPayout suppresses payouts below this threshold into carry-over.
	MinPayout uint64
}

func (p *Policy) Validate() error {
	if p.InvestorFeeShareBps > fixedpoint.BpsDenominator {
		return errors.New("investor fee share exceeds 10000 bps")
	}
	return nil
}

// HonoraryPosition references the fee-accruing position held by the
// program-derived owner. Bound 1:1 to a vault.
type HonoraryPosition struct {
	Position solana.PublicKey
	Owner    solana.PublicKey
	Pool     solana.PublicKey
	NFTMint  solana.PublicKey
}

// Progress is the mutable per-vault crank state. It is mutated only by the
// successful path of a single crank invocation, inside one store transaction.
type Progress struct {
	// LastDistributionStartTS marks the start of the current or most recent
	// day, unix seconds. Zero until the first cycle.
	LastDistributionStartTS int64
	DayComplete             bool
	// PageCursor is the next expected page index. Strictly increasing within
	// a day, reset to 0 only when a new day starts.
	PageCursor       uint32
	DailyDistributed uint64
	// CarryOver is unpaid dust surviving across days.
	CarryOver uint64

	// Day-scoped bookkeeping, reset at day start. DailyClaimed is the quote
	// claimed at page 0; DayCarryIn the carry-over consumed at day start;
	// DustAccrued the suppressed dust plus cap-clamped amounts so far.
	// Invariant at day close:
	//   DailyClaimed + DayCarryIn == DailyDistributed + creator payout + CarryOver
	DailyClaimed uint64
	DayCarryIn   uint64
	DustAccrued  uint64
}

// Started reports whether the vault has ever opened a distribution day.
func (p *Progress) Started() bool { return p.LastDistributionStartTS != 0 }

// InvestorRecord is one investor within a crank page. It lives for a single
// invocation: locked amounts are time-varying, so records are never cached
// across pages.
type InvestorRecord struct {
	Stream   solana.PublicKey
	QuoteATA solana.PublicKey
	Locked   uint64
}

// InvestorPayout is one line of a computed schedule.
type InvestorPayout struct {
	Stream   solana.PublicKey
	QuoteATA solana.PublicKey
	Amount   uint64
}

// PayoutSchedule is the output of the payout calculator for one page.
type PayoutSchedule struct {
	Payouts []InvestorPayout
	// Distributed is the sum of amounts actually paid this page.
	Distributed uint64
	// DustSuppressed is the total zeroed below the min-payout threshold.
	DustSuppressed uint64
	// CarryOverOut = (claimed + carry_in) - investor pool + suppressed dust.
	CarryOverOut uint64
	// EligibleShareBps is the share actually used after the locked-ratio clamp.
	EligibleShareBps uint16
	// InvestorPool is the day-level pool the page drew from.
	InvestorPool uint64
}
