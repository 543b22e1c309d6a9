package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/starlabs/star-fee-routing/cranker/pkg/vault"
)

type PostgresConfig struct {
	Logger *slog.Logger
	Pool   *pgxpool.Pool
}

func (cfg *PostgresConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Pool == nil {
		return errors.New("pgx pool is required")
	}
	return nil
}

// Postgres is the production Store. Progress rows are read FOR UPDATE, so
// concurrent crank invocations against one vault serialize on the row lock.
type Postgres struct {
	log *slog.Logger
	cfg PostgresConfig
}

func NewPostgres(cfg PostgresConfig) (*Postgres, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Postgres{log: cfg.Logger, cfg: cfg}, nil
}

func (s *Postgres) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.cfg.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &pgTx{log: s.log, tx: tx}, nil
}

type pgTx struct {
	log *slog.Logger
	tx  pgx.Tx
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (t *pgTx) CreateVault(ctx context.Context, rec VaultRecord) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO vaults (key, vault_seed, creator_quote_ata, quote_mint, y0, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.Key,
		int64(rec.Config.VaultSeed),
		rec.Config.CreatorQuoteATA.String(),
		rec.Config.QuoteMint.String(),
		int64(rec.Config.Y0),
		rec.Config.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return vault.ErrAlreadyInitialized
		}
		return fmt.Errorf("failed to insert vault: %w", err)
	}

	var dailyCap *int64
	if rec.Policy.DailyCap != nil {
		v := int64(*rec.Policy.DailyCap)
		dailyCap = &v
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO policies (key, investor_fee_share_bps, daily_cap, min_payout)
		VALUES ($1, $2, $3, $4)`,
		rec.Key, int32(rec.Policy.InvestorFeeShareBps), dailyCap, int64(rec.Policy.MinPayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert policy: %w", err)
	}

	if _, err := t.tx.Exec(ctx, `INSERT INTO progress (key) VALUES ($1)`, rec.Key); err != nil {
		return fmt.Errorf("failed to insert progress: %w", err)
	}
	return nil
}

func (t *pgTx) GetVault(ctx context.Context, key string) (*VaultRecord, error) {
	var (
		rec       VaultRecord
		seed      int64
		creator   string
		quote     string
		y0        int64
		createdAt time.Time
		shareBps  int32
		capVal    *int64
		minPayout int64
	)
	err := t.tx.QueryRow(ctx, `
		SELECT v.key, v.vault_seed, v.creator_quote_ata, v.quote_mint, v.y0, v.created_at,
		       p.investor_fee_share_bps, p.daily_cap, p.min_payout
		FROM vaults v JOIN policies p ON p.key = v.key
		WHERE v.key = $1`, key,
	).Scan(&rec.Key, &seed, &creator, &quote, &y0, &createdAt, &shareBps, &capVal, &minPayout)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, vault.ErrVaultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load vault: %w", err)
	}

	creatorPK, err := solana.PublicKeyFromBase58(creator)
	if err != nil {
		return nil, fmt.Errorf("failed to parse creator ata %q: %w", creator, err)
	}
	quotePK, err := solana.PublicKeyFromBase58(quote)
	if err != nil {
		return nil, fmt.Errorf("failed to parse quote mint %q: %w", quote, err)
	}

	rec.Config = vault.Config{
		VaultSeed:       uint64(seed),
		CreatorQuoteATA: creatorPK,
		QuoteMint:       quotePK,
		Y0:              uint64(y0),
		CreatedAt:       createdAt,
	}
	rec.Policy = vault.Policy{
		InvestorFeeShareBps: uint16(shareBps),
		MinPayout:           uint64(minPayout),
	}
	if capVal != nil {
		v := uint64(*capVal)
		rec.Policy.DailyCap = &v
	}
	return &rec, nil
}

func (t *pgTx) CreatePosition(ctx context.Context, key string, pos vault.HonoraryPosition) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO positions (key, position, owner, pool, nft_mint)
		VALUES ($1, $2, $3, $4, $5)`,
		key, pos.Position.String(), pos.Owner.String(), pos.Pool.String(), pos.NFTMint.String(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return vault.ErrAlreadyInitialized
		}
		return fmt.Errorf("failed to insert position: %w", err)
	}
	return nil
}

func (t *pgTx) GetPosition(ctx context.Context, key string) (*vault.HonoraryPosition, error) {
	var position, owner, pool, nftMint string
	err := t.tx.QueryRow(ctx, `
		SELECT position, owner, pool, nft_mint FROM positions WHERE key = $1`, key,
	).Scan(&position, &owner, &pool, &nftMint)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, vault.ErrPositionNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load position: %w", err)
	}

	out := &vault.HonoraryPosition{}
	for _, f := range []struct {
		dst *solana.PublicKey
		src string
	}{
		{&out.Position, position},
		{&out.Owner, owner},
		{&out.Pool, pool},
		{&out.NFTMint, nftMint},
	} {
		pk, err := solana.PublicKeyFromBase58(f.src)
		if err != nil {
			return nil, fmt.Errorf("failed to parse position key %q: %w", f.src, err)
		}
		*f.dst = pk
	}
	return out, nil
}

func (t *pgTx) GetProgressForUpdate(ctx context.Context, key string) (*vault.Progress, error) {
	var p vault.Progress
	var lastTS, cursor, distributed, carry, claimed, carryIn, dust int64
	err := t.tx.QueryRow(ctx, `
		SELECT last_distribution_start_ts, day_complete, page_cursor, daily_distributed,
		       carry_over, daily_claimed, day_carry_in, dust_accrued
		FROM progress WHERE key = $1
		FOR UPDATE`, key,
	).Scan(&lastTS, &p.DayComplete, &cursor, &distributed, &carry, &claimed, &carryIn, &dust)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, vault.ErrVaultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load progress: %w", err)
	}
	p.LastDistributionStartTS = lastTS
	p.PageCursor = uint32(cursor)
	p.DailyDistributed = uint64(distributed)
	p.CarryOver = uint64(carry)
	p.DailyClaimed = uint64(claimed)
	p.DayCarryIn = uint64(carryIn)
	p.DustAccrued = uint64(dust)
	return &p, nil
}

func (t *pgTx) SaveProgress(ctx context.Context, key string, p vault.Progress) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE progress
		SET last_distribution_start_ts = $2, day_complete = $3, page_cursor = $4,
		    daily_distributed = $5, carry_over = $6, daily_claimed = $7,
		    day_carry_in = $8, dust_accrued = $9
		WHERE key = $1`,
		key,
		p.LastDistributionStartTS,
		p.DayComplete,
		int64(p.PageCursor),
		int64(p.DailyDistributed),
		int64(p.CarryOver),
		int64(p.DailyClaimed),
		int64(p.DayCarryIn),
		int64(p.DustAccrued),
	)
	if err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return vault.ErrVaultNotFound
	}
	return nil
}

func (t *pgTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *pgTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}
