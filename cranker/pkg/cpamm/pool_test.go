package cpamm_test

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starlabs/star-fee-routing/cranker/pkg/cpamm"
	"github.com/starlabs/star-fee-routing/cranker/pkg/vault"
)

func poolAccountBytes(tokenA, tokenB solana.PublicKey, collectFeeMode uint8) []byte {
	data := make([]byte, 512)
	copy(data, []byte{241, 154, 109, 4, 17, 177, 109, 188})
	copy(data[168:], tokenA.Bytes())
	copy(data[200:], tokenB.Bytes())
	data[377] = collectFeeMode
	return data
}

func TestDecodePool(t *testing.T) {
	tokenA := solana.NewWallet().PublicKey()
	tokenB := solana.NewWallet().PublicKey()

	cfg, err := cpamm.DecodePool(poolAccountBytes(tokenA, tokenB, vault.CollectFeeModeOnlyB))
	require.NoError(t, err)
	assert.Equal(t, tokenA, cfg.TokenAMint)
	assert.Equal(t, tokenB, cfg.TokenBMint)
	assert.Equal(t, vault.CollectFeeModeOnlyB, cfg.CollectFeeMode)
}

func TestDecodePool_FailClosed(t *testing.T) {
	_, err := cpamm.DecodePool(nil)
	assert.Error(t, err, "empty account")

	_, err = cpamm.DecodePool(make([]byte, 64))
	assert.Error(t, err, "truncated account")

	// Right length, wrong discriminator.
	data := poolAccountBytes(solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), 1)
	data[0] ^= 0xff
	_, err = cpamm.DecodePool(data)
	assert.Error(t, err, "foreign account type")
}

func TestTransferInstruction(t *testing.T) {
	source := solana.NewWallet().PublicKey()
	dest := solana.NewWallet().PublicKey()
	authority := solana.NewWallet().PublicKey()

	ix := cpamm.TransferInstruction(source, dest, authority, 12345)
	assert.Equal(t, solana.TokenProgramID, ix.ProgramID())

	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 9)
	assert.Equal(t, uint8(3), data[0], "SPL transfer tag")
	assert.Equal(t, []byte{0x39, 0x30, 0, 0, 0, 0, 0, 0}, data[1:], "amount little-endian")

	accounts := ix.Accounts()
	require.Len(t, accounts, 3)
	assert.Equal(t, source, accounts[0].PublicKey)
	assert.True(t, accounts[0].IsWritable)
	assert.Equal(t, dest, accounts[1].PublicKey)
	assert.True(t, accounts[1].IsWritable)
	assert.Equal(t, authority, accounts[2].PublicKey)
	assert.True(t, accounts[2].IsSigner)
}
