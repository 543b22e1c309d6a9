package cpamm

import (
	"bytes"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/starlabs/star-fee-routing/cranker/pkg/vault"
)

// Anchor account discriminator for the cp-amm Pool account.
var poolDiscriminator = []byte{241, 154, 109, 4, 17, 177, 109, 188}

// Pool account layout offsets (after the 8-byte discriminator). The pool
// struct opens with the 160-byte PoolFeesStruct, then the mint and vault
// pubkeys in declaration order; collect_fee_mode sits in the parameter block
// after the u128 liquidity fields.
const (
	poolFeesStructLen        = 160
	poolTokenAMintOffset     = 8 + poolFeesStructLen
	poolTokenBMintOffset     = poolTokenAMintOffset + 32
	poolCollectFeeModeOffset = poolTokenBMintOffset + 32 + 32 + 32 + 32 + 16 + 16 + 16 + 1
	poolMinLen               = poolCollectFeeModeOffset + 1
)

// DecodePool extracts the quote configuration from raw pool account data.
// Fail-closed: anything that does not look exactly like a cp-amm pool is an
// error, because a guess here can route base-token fees into accounting.
func DecodePool(data []byte) (vault.PoolQuoteConfig, error) {
	if len(data) < poolMinLen {
		return vault.PoolQuoteConfig{}, fmt.Errorf("pool account too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:8], poolDiscriminator) {
		return vault.PoolQuoteConfig{}, fmt.Errorf("not a cp-amm pool account")
	}
	return vault.PoolQuoteConfig{
		TokenAMint:     solana.PublicKeyFromBytes(data[poolTokenAMintOffset : poolTokenAMintOffset+32]),
		TokenBMint:     solana.PublicKeyFromBytes(data[poolTokenBMintOffset : poolTokenBMintOffset+32]),
		CollectFeeMode: data[poolCollectFeeModeOffset],
	}, nil
}
