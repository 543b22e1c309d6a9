package cpamm

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/starlabs/star-fee-routing/cranker/pkg/vault"
)

// Anchor instruction discriminators of the cp-amm program.
var (
	createPositionDiscriminator   = []byte{48, 215, 197, 153, 96, 203, 180, 133}
	claimPositionFeeDiscriminator = []byte{180, 38, 154, 17, 133, 33, 162, 211}
)

// PoolAuthority is the fixed cp-amm pool authority.
var PoolAuthority = solana.MustPublicKeyFromBase58("HLnpSz9h2S4hiLQ43rnSD9XkcUThA7B8hQMKmDaiTLcC")

// CreatePositionRequest carries the accounts create_position touches.
type CreatePositionRequest struct {
	Pool               solana.PublicKey
	Position           solana.PublicKey
	PositionNFTMint    solana.PublicKey
	PositionNFTAccount solana.PublicKey
	EventAuthority     solana.PublicKey
}

// CreatePositionInstruction builds the cp-amm create_position call with the
// vault's position-owner PDA as the position owner.
func CreatePositionInstruction(vaultSeed uint64, payer solana.PublicKey, req CreatePositionRequest) (solana.Instruction, error) {
	owner, err := vault.PositionOwnerAddress(vaultSeed)
	if err != nil {
		return nil, fmt.Errorf("failed to derive position owner: %w", err)
	}
	accounts := solana.AccountMetaSlice{
		solana.Meta(owner),
		solana.Meta(req.PositionNFTMint).WRITE().SIGNER(),
		solana.Meta(req.PositionNFTAccount).WRITE(),
		solana.Meta(payer).WRITE().SIGNER(),
		solana.Meta(PoolAuthority),
		solana.Meta(req.Pool),
		solana.Meta(req.Position).WRITE(),
		solana.Meta(solana.TokenProgramID),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(solana.SysVarRentPubkey),
		solana.Meta(solana.SPLAssociatedTokenAccountProgramID),
		solana.Meta(req.EventAuthority),
		solana.Meta(ProgramID),
	}
	return solana.NewInstruction(ProgramID, accounts, createPositionDiscriminator), nil
}

// ClaimPositionFeeInstruction builds the cp-amm claim_position_fee call. Both
// token destinations are treasuries owned by the vault's treasury authority,
// so a claim can never deliver funds anywhere the program does not control.
func ClaimPositionFeeInstruction(vaultSeed uint64, ref PositionRef) (solana.Instruction, error) {
	owner, err := vault.PositionOwnerAddress(vaultSeed)
	if err != nil {
		return nil, fmt.Errorf("failed to derive position owner: %w", err)
	}
	accounts := solana.AccountMetaSlice{
		solana.Meta(PoolAuthority),
		solana.Meta(ref.Pool),
		solana.Meta(ref.Position).WRITE(),
		solana.Meta(ref.BaseTreasury).WRITE(),
		solana.Meta(ref.QuoteTreasury).WRITE(),
		solana.Meta(ref.PositionNFT),
		solana.Meta(owner),
		solana.Meta(solana.TokenProgramID),
	}
	return solana.NewInstruction(ProgramID, accounts, claimPositionFeeDiscriminator), nil
}
