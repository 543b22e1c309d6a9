package vault_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starlabs/star-fee-routing/cranker/pkg/vault"
)

func TestDerivationsAreDeterministic(t *testing.T) {
	a1, err := vault.VaultAddress(42)
	require.NoError(t, err)
	a2, err := vault.VaultAddress(42)
	require.NoError(t, err)
	assert.Equal(t, a1, a2)

	b, err := vault.VaultAddress(43)
	require.NoError(t, err)
	assert.NotEqual(t, a1, b, "different seeds derive different vaults")
}

func TestDerivationsAreDistinctPerRole(t *testing.T) {
	const seed = 7

	vaultAddr, err := vault.VaultAddress(seed)
	require.NoError(t, err)
	owner, err := vault.PositionOwnerAddress(seed)
	require.NoError(t, err)
	treasury, err := vault.TreasuryAuthorityAddress(seed)
	require.NoError(t, err)
	policy, err := vault.PolicyAddress(seed)
	require.NoError(t, err)
	progress, err := vault.ProgressAddress(seed)
	require.NoError(t, err)

	seen := map[string]string{}
	for name, addr := range map[string]string{
		"vault":    vaultAddr.String(),
		"owner":    owner.String(),
		"treasury": treasury.String(),
		"policy":   policy.String(),
		"progress": progress.String(),
	} {
		if prev, ok := seen[addr]; ok {
			t.Fatalf("%s and %s derived the same address %s", name, prev, addr)
		}
		seen[addr] = name
	}
}

func TestStoreKey(t *testing.T) {
	key, err := vault.StoreKey(42)
	require.NoError(t, err)

	addr, err := vault.VaultAddress(42)
	require.NoError(t, err)
	assert.Equal(t, addr.String(), key, "store key is the vault PDA in base58")
}
