package vault

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// ProgramID is the star-fee-routing program the PDAs are derived under.
var ProgramID = solana.MustPublicKeyFromBase58("45soP1GyzrULnWjAasDnp23T1yDZpkhPsQD6qQ98Ttdg")

// PDA seeds, shared with the on-chain program.
var (
	seedVault         = []byte("vault")
	seedPositionOwner = []byte("investor_fee_pos_owner")
	seedQuoteTreasury = []byte("quote_treasury")
	seedPolicyConfig  = []byte("policy_config")
	seedProgress      = []byte("distribution_progress")
)

func seedLE(vaultSeed uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, vaultSeed)
	return b
}

// VaultAddress derives the vault PDA for a seed. All per-vault state is
// addressable from the seed alone; no lookup table exists anywhere.
func VaultAddress(vaultSeed uint64) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{seedVault, seedLE(vaultSeed)}, ProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive vault address: %w", err)
	}
	return addr, nil
}

// PositionOwnerAddress derives the PDA that owns the honorary position. No
// private key exists for this address; only the program can sign for it.
func PositionOwnerAddress(vaultSeed uint64) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{seedVault, seedLE(vaultSeed), seedPositionOwner}, ProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive position owner: %w", err)
	}
	return addr, nil
}

// TreasuryAuthorityAddress derives the authority of the quote treasury ATA.
func TreasuryAuthorityAddress(vaultSeed uint64) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{seedQuoteTreasury, seedLE(vaultSeed)}, ProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive treasury authority: %w", err)
	}
	return addr, nil
}

// PolicyAddress derives the policy config PDA.
func PolicyAddress(vaultSeed uint64) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{seedPolicyConfig, seedLE(vaultSeed)}, ProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive policy address: %w", err)
	}
	return addr, nil
}

// ProgressAddress derives the distribution progress PDA.
func ProgressAddress(vaultSeed uint64) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{seedProgress, seedLE(vaultSeed)}, ProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive progress address: %w", err)
	}
	return addr, nil
}

// StoreKey renders the vault PDA as the base58 key the store rows hang off.
func StoreKey(vaultSeed uint64) (string, error) {
	addr, err := VaultAddress(vaultSeed)
	if err != nil {
		return "", err
	}
	return base58.Encode(addr.Bytes()), nil
}
