// Package streamflow resolves still-locked investor balances from the
// Streamflow vesting ledger. The ledger is an untrusted external
// collaborator: a missing stream is a legitimately fully-vested investor,
// while a stream that cannot be decoded aborts the cycle.
package streamflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"

	"github.com/starlabs/star-fee-routing/cranker/pkg/fixedpoint"
	"github.com/starlabs/star-fee-routing/cranker/pkg/metrics"
	"github.com/starlabs/star-fee-routing/cranker/pkg/vault"
	"github.com/starlabs/star-fee-routing/utils/pkg/retry"
)

// AccountFetcher reads raw account data. found=false means the account does
// not exist on chain.
type AccountFetcher interface {
	AccountData(ctx context.Context, account solana.PublicKey) (data []byte, found bool, err error)
}

type ResolverConfig struct {
	Logger  *slog.Logger
	Fetcher AccountFetcher
}

func (cfg *ResolverConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Fetcher == nil {
		return errors.New("account fetcher is required")
	}
	return nil
}

// Resolver reads locked amounts for investors at a fixed point in time.
type Resolver struct {
	log *slog.Logger
	cfg ResolverConfig
}

func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Resolver{log: cfg.Logger, cfg: cfg}, nil
}

// Resolve returns the investor's still-locked amount at asOf. An absent
// stream resolves to 0; an unreadable one fails with
// ErrInvalidExternalLedgerRecord.
func (r *Resolver) Resolve(ctx context.Context, stream solana.PublicKey, asOf time.Time) (uint64, error) {
	data, found, err := r.cfg.Fetcher.AccountData(ctx, stream)
	if err != nil {
		metrics.LockedResolutionsTotal.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("failed to fetch stream %s: %w", stream, err)
	}
	if !found {
		metrics.LockedResolutionsTotal.WithLabelValues("absent").Inc()
		return 0, nil
	}
	contract, err := DecodeContract(data)
	if err != nil {
		metrics.LockedResolutionsTotal.WithLabelValues("invalid").Inc()
		return 0, fmt.Errorf("%w: stream %s: %v", vault.ErrInvalidExternalLedgerRecord, stream, err)
	}
	metrics.LockedResolutionsTotal.WithLabelValues("resolved").Inc()
	return contract.LockedAt(uint64(asOf.Unix())), nil
}

// TotalLocked resolves every stream at the same asOf and returns the
// per-stream amounts plus their checked sum. A single timestamp for the
// whole set keeps one distribution pass temporally coherent.
func (r *Resolver) TotalLocked(ctx context.Context, streams []solana.PublicKey, asOf time.Time) ([]uint64, uint64, error) {
	amounts := make([]uint64, len(streams))
	var total uint64
	for i, s := range streams {
		locked, err := r.Resolve(ctx, s, asOf)
		if err != nil {
			return nil, 0, err
		}
		amounts[i] = locked
		total, err = fixedpoint.Add(total, locked)
		if err != nil {
			return nil, 0, vault.ErrArithmeticOverflow
		}
	}
	return amounts, total, nil
}

// RPCFetcher is the production AccountFetcher over solana-go RPC.
type RPCFetcher struct {
	RPC        RPC
	Commitment solanarpc.CommitmentType
	Retry      retry.Config
}

// RPC is the slice of the solana-go client the fetcher uses.
type RPC interface {
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *solanarpc.GetAccountInfoOpts) (*solanarpc.GetAccountInfoResult, error)
}

func (f *RPCFetcher) AccountData(ctx context.Context, account solana.PublicKey) ([]byte, bool, error) {
	cfg := f.Retry
	if cfg.MaxAttempts == 0 {
		cfg = retry.DefaultConfig()
	}
	commitment := f.Commitment
	if commitment == "" {
		commitment = solanarpc.CommitmentConfirmed
	}
	var out *solanarpc.GetAccountInfoResult
	err := retry.Do(ctx, cfg, func() error {
		var err error
		out, err = f.RPC.GetAccountInfoWithOpts(ctx, account, &solanarpc.GetAccountInfoOpts{
			Commitment: commitment,
		})
		if errors.Is(err, solanarpc.ErrNotFound) {
			out = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if out == nil || out.Value == nil {
		return nil, false, nil
	}
	return out.Value.Data.GetBinary(), true, nil
}
