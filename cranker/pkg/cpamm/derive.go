package cpamm

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// PDA seeds of the cp-amm program.
var (
	seedPosition           = []byte("position")
	seedPositionNFTAccount = []byte("position_nft_account")
	seedEventAuthority     = []byte("__event_authority")
)

// PositionAddress derives the position PDA for a position NFT mint.
func PositionAddress(nftMint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{seedPosition, nftMint.Bytes()}, ProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive position address: %w", err)
	}
	return addr, nil
}

// PositionNFTAccountAddress derives the token account holding the position NFT.
func PositionNFTAccountAddress(nftMint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{seedPositionNFTAccount, nftMint.Bytes()}, ProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive position nft account: %w", err)
	}
	return addr, nil
}

// EventAuthorityAddress derives the Anchor event authority PDA.
func EventAuthorityAddress() (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{seedEventAuthority}, ProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive event authority: %w", err)
	}
	return addr, nil
}
