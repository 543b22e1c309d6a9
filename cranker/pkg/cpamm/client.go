// Package cpamm adapts the Meteora DAMM v2 (cp-amm) pool program: reading
// pool quote configuration and claiming fees into the vault's quote treasury.
// The pool is an untrusted counterparty; everything read from it is validated
// fail-closed before the crank acts on it.
package cpamm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"

	"github.com/starlabs/star-fee-routing/cranker/pkg/vault"
	"github.com/starlabs/star-fee-routing/utils/pkg/retry"
)

// ProgramID is the DAMM v2 cp-amm program.
var ProgramID = solana.MustPublicKeyFromBase58("cpamdpZCGKUy5JxQXB4dcpGPiikHawvSWAd6mEn1sGG")

// ClaimResult reports what a fee claim moved, for both pool tokens. The
// quote-only validator inspects Base before any accounting happens.
type ClaimResult struct {
	Quote uint64
	Base  uint64
}

// PositionRef identifies an honorary position and the accounts a claim needs.
type PositionRef struct {
	Pool          solana.PublicKey
	Position      solana.PublicKey
	PositionNFT   solana.PublicKey
	QuoteTreasury solana.PublicKey
	BaseTreasury  solana.PublicKey
}

// RPC is the slice of the solana-go RPC client the cpamm client uses.
// Production wires *rpc.Client; tests inject deterministic fakes.
type RPC interface {
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *solanarpc.GetAccountInfoOpts) (*solanarpc.GetAccountInfoResult, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment solanarpc.CommitmentType) (*solanarpc.GetTokenAccountBalanceResult, error)
	GetLatestBlockhash(ctx context.Context, commitment solanarpc.CommitmentType) (*solanarpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts solanarpc.TransactionOpts) (solana.Signature, error)
}

type ClientConfig struct {
	Logger     *slog.Logger
	RPC        RPC
	Payer      solana.PrivateKey
	Commitment solanarpc.CommitmentType
	Retry      retry.Config
}

func (cfg *ClientConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.RPC == nil {
		return errors.New("rpc client is required")
	}
	if cfg.Payer == nil {
		return errors.New("payer key is required")
	}
	if cfg.Commitment == "" {
		cfg.Commitment = solanarpc.CommitmentConfirmed
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

// Client is the production pool adapter.
type Client struct {
	log *slog.Logger
	cfg ClientConfig
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{log: cfg.Logger, cfg: cfg}, nil
}

// PoolConfig reads and decodes the pool account's quote configuration.
func (c *Client) PoolConfig(ctx context.Context, pool solana.PublicKey) (vault.PoolQuoteConfig, error) {
	var out *solanarpc.GetAccountInfoResult
	err := retry.Do(ctx, c.cfg.Retry, func() error {
		var err error
		out, err = c.cfg.RPC.GetAccountInfoWithOpts(ctx, pool, &solanarpc.GetAccountInfoOpts{
			Commitment: c.cfg.Commitment,
		})
		return err
	})
	if err != nil {
		return vault.PoolQuoteConfig{}, fmt.Errorf("failed to fetch pool account: %w", err)
	}
	if out == nil || out.Value == nil {
		return vault.PoolQuoteConfig{}, fmt.Errorf("pool account %s does not exist", pool)
	}
	return DecodePool(out.Value.Data.GetBinary())
}

// ClaimQuoteFees submits a claim_position_fee instruction signed by the payer
// and reports the claimed amounts as treasury balance deltas. The position
// owner PDA signs via the program; the payer only funds the transaction.
func (c *Client) ClaimQuoteFees(ctx context.Context, vaultSeed uint64, ref PositionRef) (ClaimResult, error) {
	quoteBefore, err := c.tokenBalance(ctx, ref.QuoteTreasury)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("failed to read quote treasury: %w", err)
	}
	baseBefore, err := c.tokenBalance(ctx, ref.BaseTreasury)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("failed to read base treasury: %w", err)
	}

	ix, err := ClaimPositionFeeInstruction(vaultSeed, ref)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("failed to build claim instruction: %w", err)
	}
	if err := c.send(ctx, ix); err != nil {
		return ClaimResult{}, fmt.Errorf("failed to send claim transaction: %w", err)
	}

	quoteAfter, err := c.tokenBalance(ctx, ref.QuoteTreasury)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("failed to re-read quote treasury: %w", err)
	}
	baseAfter, err := c.tokenBalance(ctx, ref.BaseTreasury)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("failed to re-read base treasury: %w", err)
	}

	if quoteAfter < quoteBefore || baseAfter < baseBefore {
		return ClaimResult{}, fmt.Errorf("treasury balance decreased during claim (quote %d->%d, base %d->%d)",
			quoteBefore, quoteAfter, baseBefore, baseAfter)
	}
	res := ClaimResult{
		Quote: quoteAfter - quoteBefore,
		Base:  baseAfter - baseBefore,
	}
	c.log.Debug("cpamm: claimed position fees", "quote", res.Quote, "base", res.Base)
	return res, nil
}

// CreatePosition submits the create_position instruction for the honorary
// position owned by the vault's position-owner PDA.
func (c *Client) CreatePosition(ctx context.Context, vaultSeed uint64, req CreatePositionRequest) error {
	ix, err := CreatePositionInstruction(vaultSeed, c.cfg.Payer.PublicKey(), req)
	if err != nil {
		return fmt.Errorf("failed to build create_position instruction: %w", err)
	}
	if err := c.send(ctx, ix); err != nil {
		return fmt.Errorf("failed to send create_position transaction: %w", err)
	}
	return nil
}

func (c *Client) tokenBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	var out *solanarpc.GetTokenAccountBalanceResult
	err := retry.Do(ctx, c.cfg.Retry, func() error {
		var err error
		out, err = c.cfg.RPC.GetTokenAccountBalance(ctx, account, c.cfg.Commitment)
		return err
	})
	if err != nil {
		return 0, err
	}
	if out == nil || out.Value == nil {
		return 0, fmt.Errorf("token account %s does not exist", account)
	}
	amount, err := strconv.ParseUint(out.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse token amount %q: %w", out.Value.Amount, err)
	}
	return amount, nil
}

func (c *Client) send(ctx context.Context, ixs ...solana.Instruction) error {
	bh, err := c.cfg.RPC.GetLatestBlockhash(ctx, c.cfg.Commitment)
	if err != nil {
		return fmt.Errorf("failed to fetch blockhash: %w", err)
	}
	tx, err := solana.NewTransaction(
		ixs,
		bh.Value.Blockhash,
		solana.TransactionPayer(c.cfg.Payer.PublicKey()),
	)
	if err != nil {
		return fmt.Errorf("failed to build transaction: %w", err)
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(c.cfg.Payer.PublicKey()) {
			return &c.cfg.Payer
		}
		return nil
	}); err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}
	sig, err := c.cfg.RPC.SendTransactionWithOpts(ctx, tx, solanarpc.TransactionOpts{
		PreflightCommitment: c.cfg.Commitment,
	})
	if err != nil {
		return err
	}
	c.log.Debug("cpamm: transaction sent", "signature", sig.String())
	return nil
}
