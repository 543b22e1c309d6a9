package vault

import "github.com/gagliardetto/solana-go"

// cp-amm collect-fee modes. Only OnlyB structurally guarantees that the
// position never accrues token A fees.
const (
	CollectFeeModeBothTokens uint8 = 0
	CollectFeeModeOnlyB      uint8 = 1
)

// PoolQuoteConfig is the slice of pool state the quote-only validator needs.
type PoolQuoteConfig struct {
	TokenAMint     solana.PublicKey
	TokenBMint     solana.PublicKey
	CollectFeeMode uint8
}

// ValidatePoolConfig fails with ErrInvalidQuoteMint unless the pool
// configuration structurally guarantees quote-only fee accrual: the quote
// mint must be token B and the pool must collect fees in token B only.
// Fail-closed: unknown collect-fee modes are rejected, never warned about.
func ValidatePoolConfig(cfg PoolQuoteConfig, quoteMint solana.PublicKey) error {
	if !cfg.TokenBMint.Equals(quoteMint) {
		return ErrInvalidQuoteMint
	}
	if cfg.TokenAMint.Equals(quoteMint) {
		return ErrInvalidQuoteMint
	}
	if cfg.CollectFeeMode != CollectFeeModeOnlyB {
		return ErrInvalidQuoteMint
	}
	return nil
}

// ValidateClaim fails with ErrBaseFeeDetected if a claim reported any base
// token amount. A non-zero base amount means the quote-only invariant broke;
// the cycle must abort with nothing moved.
func ValidateClaim(quoteAmount, baseAmount uint64) error {
	if baseAmount != 0 {
		return ErrBaseFeeDetected
	}
	return nil
}
