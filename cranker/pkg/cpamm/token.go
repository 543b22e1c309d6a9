package cpamm

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// splTransferIndex is the SPL token program's Transfer instruction tag.
const splTransferIndex = 3

// TransferInstruction builds an SPL token transfer of amount from source to
// dest, signed by authority.
func TransferInstruction(source, dest, authority solana.PublicKey, amount uint64) solana.Instruction {
	data := make([]byte, 9)
	data[0] = splTransferIndex
	binary.LittleEndian.PutUint64(data[1:], amount)
	accounts := solana.AccountMetaSlice{
		solana.Meta(source).WRITE(),
		solana.Meta(dest).WRITE(),
		solana.Meta(authority).SIGNER(),
	}
	return solana.NewInstruction(solana.TokenProgramID, accounts, data)
}

// QuoteTransfer is one leg of a payout batch.
type QuoteTransfer struct {
	Dest   solana.PublicKey
	Amount uint64
}

// TransferQuote moves quote tokens out of a vault treasury to the batch's
// recipients in a single transaction, so the legs settle atomically. The
// payer acts as the treasury's delegated authority; zero-amount legs are
// skipped.
func (c *Client) TransferQuote(ctx context.Context, source solana.PublicKey, transfers []QuoteTransfer) error {
	authority := c.cfg.Payer.PublicKey()
	ixs := make([]solana.Instruction, 0, len(transfers))
	var total uint64
	for _, tr := range transfers {
		if tr.Amount == 0 {
			continue
		}
		ixs = append(ixs, TransferInstruction(source, tr.Dest, authority, tr.Amount))
		total += tr.Amount
	}
	if len(ixs) == 0 {
		return nil
	}
	if err := c.send(ctx, ixs...); err != nil {
		return fmt.Errorf("failed to send transfer batch: %w", err)
	}
	c.log.Debug("cpamm: quote transfer batch sent", "transfers", len(ixs), "total", total)
	return nil
}
