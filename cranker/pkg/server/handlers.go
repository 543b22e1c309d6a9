package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"

	"github.com/starlabs/star-fee-routing/cranker/pkg/crank"
	"github.com/starlabs/star-fee-routing/cranker/pkg/store"
	"github.com/starlabs/star-fee-routing/cranker/pkg/vault"
)

type createVaultRequest struct {
	VaultSeed           uint64  `json:"vault_seed"`
	CreatorQuoteATA     string  `json:"creator_quote_ata"`
	QuoteMint           string  `json:"quote_mint"`
	Y0                  uint64  `json:"y0"`
	InvestorFeeShareBps uint16  `json:"investor_fee_share_bps"`
	DailyCap            *uint64 `json:"daily_cap,omitempty"`
	MinPayout           uint64  `json:"min_payout"`
}

type createVaultResponse struct {
	Key           string `json:"key"`
	Vault         string `json:"vault"`
	PositionOwner string `json:"position_owner"`
}

func (s *Server) handleCreateVault(w http.ResponseWriter, r *http.Request) {
	var req createVaultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "invalid JSON: %v", err)
		return
	}
	creator, err := solana.PublicKeyFromBase58(req.CreatorQuoteATA)
	if err != nil {
		s.writeBadRequest(w, "invalid creator_quote_ata: %v", err)
		return
	}
	mint, err := solana.PublicKeyFromBase58(req.QuoteMint)
	if err != nil {
		s.writeBadRequest(w, "invalid quote_mint: %v", err)
		return
	}

	rec := store.VaultRecord{
		Config: vault.Config{
			VaultSeed:       req.VaultSeed,
			CreatorQuoteATA: creator,
			QuoteMint:       mint,
			Y0:              req.Y0,
			CreatedAt:       s.cfg.Clock.Now().UTC(),
		},
		Policy: vault.Policy{
			InvestorFeeShareBps: req.InvestorFeeShareBps,
			DailyCap:            req.DailyCap,
			MinPayout:           req.MinPayout,
		},
	}
	if err := rec.Config.Validate(); err != nil {
		s.writeBadRequest(w, "invalid vault config: %v", err)
		return
	}
	if err := rec.Policy.Validate(); err != nil {
		s.writeBadRequest(w, "invalid policy: %v", err)
		return
	}

	rec.Key, err = vault.StoreKey(req.VaultSeed)
	if err != nil {
		s.writeError(w, err)
		return
	}
	vaultAddr, err := vault.VaultAddress(req.VaultSeed)
	if err != nil {
		s.writeError(w, err)
		return
	}
	owner, err := vault.PositionOwnerAddress(req.VaultSeed)
	if err != nil {
		s.writeError(w, err)
		return
	}

	tx, err := s.cfg.Store.Begin(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer tx.Rollback(r.Context()) //nolint:errcheck // no-op after commit

	if err := tx.CreateVault(r.Context(), rec); err != nil {
		s.writeError(w, err)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}

	s.log.Info("server: vault created", "vault_seed", req.VaultSeed, "key", rec.Key)
	s.writeJSON(w, http.StatusCreated, createVaultResponse{
		Key:           rec.Key,
		Vault:         vaultAddr.String(),
		PositionOwner: owner.String(),
	})
}

type initializePositionRequest struct {
	Pool string `json:"pool"`
}

type initializePositionResponse struct {
	Position string `json:"position"`
	Owner    string `json:"owner"`
	Pool     string `json:"pool"`
	NFTMint  string `json:"nft_mint"`
}

func (s *Server) handleInitializePosition(w http.ResponseWriter, r *http.Request) {
	seed, ok := s.seedParam(w, r)
	if !ok {
		return
	}
	var req initializePositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "invalid JSON: %v", err)
		return
	}
	pool, err := solana.PublicKeyFromBase58(req.Pool)
	if err != nil {
		s.writeBadRequest(w, "invalid pool: %v", err)
		return
	}

	pos, err := s.cfg.Controller.Initialize(r.Context(), seed, pool)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, initializePositionResponse{
		Position: pos.Position.String(),
		Owner:    pos.Owner.String(),
		Pool:     pos.Pool.String(),
		NFTMint:  pos.NFTMint.String(),
	})
}

type investorRef struct {
	Stream   string `json:"stream"`
	QuoteATA string `json:"quote_ata"`
}

type distributeRequest struct {
	PageIndex   uint32        `json:"page_index"`
	IsFinalPage bool          `json:"is_final_page"`
	Investors   []investorRef `json:"investors"`
	// AllStreams is the full investor stream set, used for the day-level
	// locked total. Required on non-final pages; a final page may omit it
	// when its batch is the full set.
	AllStreams []string `json:"all_streams,omitempty"`
}

type payoutLine struct {
	Stream   string `json:"stream"`
	QuoteATA string `json:"quote_ata"`
	Amount   uint64 `json:"amount"`
}

type distributeResponse struct {
	PageIndex        uint32       `json:"page_index"`
	Distributed      uint64       `json:"distributed"`
	DustSuppressed   uint64       `json:"dust_suppressed"`
	EligibleShareBps uint16       `json:"eligible_share_bps"`
	InvestorPool     uint64       `json:"investor_pool"`
	Payouts          []payoutLine `json:"payouts"`
}

func (s *Server) handleDistribute(w http.ResponseWriter, r *http.Request) {
	seed, ok := s.seedParam(w, r)
	if !ok {
		return
	}
	var req distributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "invalid JSON: %v", err)
		return
	}
	// A non-final page implies investors beyond its batch, so the day-level
	// denominator cannot default to the page's streams.
	if !req.IsFinalPage && len(req.AllStreams) == 0 {
		s.writeBadRequest(w, "all_streams is required when is_final_page is false")
		return
	}

	pageStreams := make([]solana.PublicKey, len(req.Investors))
	quoteATAs := make([]solana.PublicKey, len(req.Investors))
	for i, inv := range req.Investors {
		stream, err := solana.PublicKeyFromBase58(inv.Stream)
		if err != nil {
			s.writeBadRequest(w, "invalid stream %q: %v", inv.Stream, err)
			return
		}
		ata, err := solana.PublicKeyFromBase58(inv.QuoteATA)
		if err != nil {
			s.writeBadRequest(w, "invalid quote_ata %q: %v", inv.QuoteATA, err)
			return
		}
		pageStreams[i] = stream
		quoteATAs[i] = ata
	}

	// Locked amounts for the page and the day-level total resolve at one
	// instant so the pro-rata weights are mutually consistent.
	now := s.cfg.Clock.Now()
	locked, totalLocked, err := s.cfg.Resolver.TotalLocked(r.Context(), pageStreams, now)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(req.AllStreams) > 0 {
		allStreams := make([]solana.PublicKey, len(req.AllStreams))
		for i, raw := range req.AllStreams {
			stream, err := solana.PublicKeyFromBase58(raw)
			if err != nil {
				s.writeBadRequest(w, "invalid stream %q: %v", raw, err)
				return
			}
			allStreams[i] = stream
		}
		_, totalLocked, err = s.cfg.Resolver.TotalLocked(r.Context(), allStreams, now)
		if err != nil {
			s.writeError(w, err)
			return
		}
	}

	records := make([]vault.InvestorRecord, len(req.Investors))
	for i := range req.Investors {
		records[i] = vault.InvestorRecord{
			Stream:   pageStreams[i],
			QuoteATA: quoteATAs[i],
			Locked:   locked[i],
		}
	}

	sched, err := s.cfg.Crank.RunPage(r.Context(), crank.PageRequest{
		VaultSeed:   seed,
		PageIndex:   req.PageIndex,
		Investors:   records,
		TotalLocked: totalLocked,
		IsFinalPage: req.IsFinalPage,
		Now:         now,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := distributeResponse{
		PageIndex:        req.PageIndex,
		Distributed:      sched.Distributed,
		DustSuppressed:   sched.DustSuppressed,
		EligibleShareBps: sched.EligibleShareBps,
		InvestorPool:     sched.InvestorPool,
		Payouts:          make([]payoutLine, len(sched.Payouts)),
	}
	for i, p := range sched.Payouts {
		resp.Payouts[i] = payoutLine{
			Stream:   p.Stream.String(),
			QuoteATA: p.QuoteATA.String(),
			Amount:   p.Amount,
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type progressResponse struct {
	LastDistributionStartTS int64  `json:"last_distribution_start_ts"`
	DayComplete             bool   `json:"day_complete"`
	PageCursor              uint32 `json:"page_cursor"`
	DailyDistributed        uint64 `json:"daily_distributed"`
	CarryOver               uint64 `json:"carry_over"`
	DailyClaimed            uint64 `json:"daily_claimed"`
	DayCarryIn              uint64 `json:"day_carry_in"`
	DustAccrued             uint64 `json:"dust_accrued"`
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	seed, ok := s.seedParam(w, r)
	if !ok {
		return
	}
	key, err := vault.StoreKey(seed)
	if err != nil {
		s.writeError(w, err)
		return
	}

	tx, err := s.cfg.Store.Begin(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer tx.Rollback(r.Context()) //nolint:errcheck // read-only

	prog, err := tx.GetProgressForUpdate(r.Context(), key)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, progressResponse{
		LastDistributionStartTS: prog.LastDistributionStartTS,
		DayComplete:             prog.DayComplete,
		PageCursor:              prog.PageCursor,
		DailyDistributed:        prog.DailyDistributed,
		CarryOver:               prog.CarryOver,
		DailyClaimed:            prog.DailyClaimed,
		DayCarryIn:              prog.DayCarryIn,
		DustAccrued:             prog.DustAccrued,
	})
}

func (s *Server) seedParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	seed, err := strconv.ParseUint(chi.URLParam(r, "seed"), 10, 64)
	if err != nil {
		s.writeBadRequest(w, "invalid vault seed: %v", err)
		return 0, false
	}
	return seed, true
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	tx, err := s.cfg.Store.Begin(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "store unavailable"})
		return
	}
	_ = tx.Rollback(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"version": s.cfg.Version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}
