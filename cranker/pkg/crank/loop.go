package crank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"

	"github.com/starlabs/star-fee-routing/cranker/pkg/store"
	"github.com/starlabs/star-fee-routing/cranker/pkg/vault"
)

// Investor identifies one investor for the hosted auto-crank: the vesting
// stream it is locked under and the quote token account it is paid to.
type Investor struct {
	Stream   solana.PublicKey
	QuoteATA solana.PublicKey
}

// InvestorSource lists the investor set for a vault. The hosted loop queries
// it fresh every cycle; investor sets may grow between days.
type InvestorSource interface {
	Investors(ctx context.Context, vaultSeed uint64) ([]Investor, error)
}

// LockedResolver resolves still-locked amounts for a set of streams at one
// instant. Production wires *streamflow.Resolver.
type LockedResolver interface {
	TotalLocked(ctx context.Context, streams []solana.PublicKey, asOf time.Time) ([]uint64, uint64, error)
}

type LoopConfig struct {
	Logger     *slog.Logger
	Clock      clockwork.Clock
	Crank      *Crank
	Store      store.Store
	Source     InvestorSource
	Resolver   LockedResolver
	VaultSeeds []uint64
	PageSize   int
	Interval   time.Duration
}

func (cfg *LoopConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Crank == nil {
		return errors.New("crank is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.Source == nil {
		return errors.New("investor source is required")
	}
	if cfg.Resolver == nil {
		return errors.New("locked resolver is required")
	}
	if cfg.PageSize <= 0 {
		return errors.New("page size must be greater than 0")
	}
	if cfg.Interval <= 0 {
		return errors.New("interval must be greater than 0")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Loop is the hosted convenience cranker: it periodically drives full
// distribution days for a configured set of vaults. Correctness never depends
// on it; anyone can crank any vault through the command surface.
type Loop struct {
	log   *slog.Logger
	cfg   LoopConfig
	runMu sync.Mutex
}

func NewLoop(cfg LoopConfig) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Loop{log: cfg.Logger, cfg: cfg}, nil
}

func (l *Loop) Start(ctx context.Context) {
	go func() {
		l.log.Info("crank: starting loop", "interval", l.cfg.Interval, "vaults", len(l.cfg.VaultSeeds))

		l.safeRun(ctx)

		ticker := l.cfg.Clock.NewTicker(l.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				l.safeRun(ctx)
			}
		}
	}()
}

func (l *Loop) safeRun(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("crank: loop run panicked", "panic", r)
		}
	}()

	if err := l.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		l.log.Error("crank: loop run failed", "error", err)
	}
}

// Run attempts one full distribution day for every configured vault. Vaults
// whose gate is closed are skipped quietly; a failing vault does not stop the
// others.
func (l *Loop) Run(ctx context.Context) error {
	l.runMu.Lock()
	defer l.runMu.Unlock()

	var errs []error
	for _, seed := range l.cfg.VaultSeeds {
		if err := l.runVault(ctx, seed); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			errs = append(errs, fmt.Errorf("vault %d: %w", seed, err))
		}
	}
	return errors.Join(errs...)
}

func (l *Loop) runVault(ctx context.Context, seed uint64) error {
	startPage, err := l.nextPage(ctx, seed)
	if err != nil {
		return err
	}

	investors, err := l.cfg.Source.Investors(ctx, seed)
	if err != nil {
		return fmt.Errorf("failed to list investors: %w", err)
	}
	streams := make([]solana.PublicKey, len(investors))
	for i, inv := range investors {
		streams[i] = inv.Stream
	}
	now := l.cfg.Clock.Now()
	locked, totalLocked, err := l.cfg.Resolver.TotalLocked(ctx, streams, now)
	if err != nil {
		return fmt.Errorf("failed to resolve locked amounts: %w", err)
	}

	records := make([]vault.InvestorRecord, len(investors))
	for i, inv := range investors {
		records[i] = vault.InvestorRecord{
			Stream:   inv.Stream,
			QuoteATA: inv.QuoteATA,
			Locked:   locked[i],
		}
	}

	pages := (len(records) + l.cfg.PageSize - 1) / l.cfg.PageSize
	if pages == 0 {
		pages = 1
	}
	if startPage >= uint32(pages) {
		// Resumed past the batch boundary; close the day with an empty page.
		pages = int(startPage) + 1
	}

	for page := startPage; page < uint32(pages); page++ {
		lo := int(page) * l.cfg.PageSize
		hi := lo + l.cfg.PageSize
		if lo > len(records) {
			lo = len(records)
		}
		if hi > len(records) {
			hi = len(records)
		}

		_, err := l.cfg.Crank.RunPage(ctx, PageRequest{
			VaultSeed:   seed,
			PageIndex:   page,
			Investors:   records[lo:hi],
			TotalLocked: totalLocked,
			IsFinalPage: page == uint32(pages)-1,
			Now:         l.cfg.Clock.Now(),
		})
		if err != nil {
			if page == 0 && errors.Is(err, vault.ErrTooEarlyForDistribution) {
				l.log.Debug("crank: gate closed, skipping vault", "vault_seed", seed)
				return nil
			}
			return err
		}
	}
	return nil
}

// nextPage reads the vault's cursor to decide where a cycle starts: 0 for a
// fresh day, the saved cursor for a day interrupted mid-pagination.
func (l *Loop) nextPage(ctx context.Context, seed uint64) (uint32, error) {
	key, err := vault.StoreKey(seed)
	if err != nil {
		return 0, err
	}
	tx, err := l.cfg.Store.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // read-only

	prog, err := tx.GetProgressForUpdate(ctx, key)
	if err != nil {
		return 0, err
	}
	if !prog.Started() || prog.DayComplete {
		return 0, nil
	}
	return prog.PageCursor, nil
}
