package streamflow

import (
	"encoding/binary"
	"fmt"
)

// Contract is the subset of a Streamflow stream account the resolver needs to
// compute a still-locked balance at a point in time.
type Contract struct {
	Version            uint8
	CreatedAt          uint64
	AmountWithdrawn    uint64
	CanceledAt         uint64
	EndTime            uint64
	StartTime          uint64
	NetAmountDeposited uint64
	Period             uint64
	AmountPerPeriod    uint64
	Cliff              uint64
	CliffAmount        uint64
}

// Stream account layout offsets, matching the Streamflow protocol's
// borsh-serialized Contract. Pubkey runs are skipped; only the vesting
// arithmetic fields are read.
const (
	offMagic           = 0
	offVersion         = 8
	offCreatedAt       = 9
	offAmountWithdrawn = 17
	offCanceledAt      = 25
	offEndTime         = 33
	offLastWithdrawnAt = 41
	// 8 pubkeys (sender, sender_tokens, recipient, recipient_tokens, mint,
	// escrow_tokens, streamflow_treasury, streamflow_treasury_tokens) then
	// treasury fee fields and partner block.
	offStartTime          = 49 + 8*32 + 8 + 8 + 4 + 32 + 32 + 8 + 8 + 4
	offNetAmountDeposited = offStartTime + 8
	offPeriod             = offNetAmountDeposited + 8
	offAmountPerPeriod    = offPeriod + 8
	offCliff              = offAmountPerPeriod + 8
	offCliffAmount        = offCliff + 8
	contractMinLen        = offCliffAmount + 8
)

// DecodeContract parses raw stream account data. A record that cannot be
// decoded is distinguished from an absent one: absence means fully vested,
// garbage means the ledger cannot be trusted this cycle.
func DecodeContract(data []byte) (*Contract, error) {
	if len(data) < contractMinLen {
		return nil, fmt.Errorf("stream account too short: %d bytes", len(data))
	}
	le := binary.LittleEndian
	c := &Contract{
		Version:            data[offVersion],
		CreatedAt:          le.Uint64(data[offCreatedAt:]),
		AmountWithdrawn:    le.Uint64(data[offAmountWithdrawn:]),
		CanceledAt:         le.Uint64(data[offCanceledAt:]),
		EndTime:            le.Uint64(data[offEndTime:]),
		StartTime:          le.Uint64(data[offStartTime:]),
		NetAmountDeposited: le.Uint64(data[offNetAmountDeposited:]),
		Period:             le.Uint64(data[offPeriod:]),
		AmountPerPeriod:    le.Uint64(data[offAmountPerPeriod:]),
		Cliff:              le.Uint64(data[offCliff:]),
		CliffAmount:        le.Uint64(data[offCliffAmount:]),
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Contract) validate() error {
	if c.NetAmountDeposited == 0 && c.AmountPerPeriod == 0 && c.EndTime == 0 {
		return fmt.Errorf("stream account is empty")
	}
	if c.Period == 0 && c.AmountPerPeriod != 0 {
		return fmt.Errorf("stream has zero period with non-zero release amount")
	}
	if c.EndTime != 0 && c.StartTime > c.EndTime {
		return fmt.Errorf("stream start %d after end %d", c.StartTime, c.EndTime)
	}
	if c.AmountWithdrawn > c.NetAmountDeposited {
		return fmt.Errorf("withdrawn %d exceeds deposited %d", c.AmountWithdrawn, c.NetAmountDeposited)
	}
	return nil
}

// LockedAt returns the still-locked amount at unix time t. Floor arithmetic
// throughout; a canceled stream holds nothing.
func (c *Contract) LockedAt(t uint64) uint64 {
	if c.CanceledAt != 0 && c.CanceledAt <= t {
		return 0
	}
	vested := c.vestedAt(t)
	if vested >= c.NetAmountDeposited {
		return 0
	}
	return c.NetAmountDeposited - vested
}

func (c *Contract) vestedAt(t uint64) uint64 {
	if t < c.Cliff {
		return 0
	}
	vested := c.CliffAmount
	if c.Period > 0 && c.AmountPerPeriod > 0 && t > c.Cliff {
		periods := (t - c.Cliff) / c.Period
		// Saturating: a fully-elapsed schedule caps at the deposit below.
		if periods > 0 {
			rel := periods * c.AmountPerPeriod
			if rel/periods != c.AmountPerPeriod {
				return c.NetAmountDeposited
			}
			vested += rel
			if vested < rel {
				return c.NetAmountDeposited
			}
		}
	}
	if vested > c.NetAmountDeposited {
		vested = c.NetAmountDeposited
	}
	return vested
}
