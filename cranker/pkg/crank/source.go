package crank

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/gagliardetto/solana-go"
)

// StaticSource is an InvestorSource backed by a JSON file mapping vault seeds
// to investor lists:
//
//	{"1": [{"stream": "...", "quote_ata": "..."}], "2": [...]}
type StaticSource struct {
	byVault map[uint64][]Investor
}

type staticInvestor struct {
	Stream   string `json:"stream"`
	QuoteATA string `json:"quote_ata"`
}

// LoadStaticSource reads and validates an investor file.
func LoadStaticSource(path string) (*StaticSource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read investors file: %w", err)
	}
	var parsed map[string][]staticInvestor
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse investors file: %w", err)
	}

	byVault := make(map[uint64][]Investor, len(parsed))
	for rawSeed, list := range parsed {
		seed, err := strconv.ParseUint(rawSeed, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid vault seed %q: %w", rawSeed, err)
		}
		investors := make([]Investor, len(list))
		for i, inv := range list {
			stream, err := solana.PublicKeyFromBase58(inv.Stream)
			if err != nil {
				return nil, fmt.Errorf("vault %d: invalid stream %q: %w", seed, inv.Stream, err)
			}
			ata, err := solana.PublicKeyFromBase58(inv.QuoteATA)
			if err != nil {
				return nil, fmt.Errorf("vault %d: invalid quote_ata %q: %w", seed, inv.QuoteATA, err)
			}
			investors[i] = Investor{Stream: stream, QuoteATA: ata}
		}
		byVault[seed] = investors
	}
	return &StaticSource{byVault: byVault}, nil
}

func (s *StaticSource) Investors(_ context.Context, vaultSeed uint64) ([]Investor, error) {
	investors, ok := s.byVault[vaultSeed]
	if !ok {
		return nil, fmt.Errorf("vault %d not present in investors file", vaultSeed)
	}
	return investors, nil
}

// VaultSeeds lists the configured vaults in stable order.
func (s *StaticSource) VaultSeeds() []uint64 {
	seeds := make([]uint64, 0, len(s.byVault))
	for seed := range s.byVault {
		seeds = append(seeds, seed)
	}
	sort.Slice(seeds, func(i, j int) bool { return seeds[i] < seeds[j] })
	return seeds
}
