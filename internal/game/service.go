// Package game provides the HTTP handlers and orchestration around the
// allocation, settlement and liquidation engines: bid intake with
// validation, running a round's auctions, settling each month, closing each
// quarter, and the read-side financial views.
//
// All monetary values are int64 paise — never float64 for money.
package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mithai/sim-engine/internal/auction"
	"github.com/mithai/sim-engine/internal/config"
	"github.com/mithai/sim-engine/internal/metrics"
	"github.com/mithai/sim-engine/internal/model"
	"github.com/mithai/sim-engine/internal/report"
	"github.com/mithai/sim-engine/internal/settle"
	"github.com/mithai/sim-engine/internal/store"
)

// Service handles simulation operations. Uses a mutex to serialize the
// mutating round operations (allocation, settlement, liquidation) —
// single-writer per round; the engine itself is pure.
type Service struct {
	store store.Store
	rules config.Rules
	mu    sync.Mutex
	wsHub *WSHub // optional WebSocket hub for round event broadcasts
}

// NewService creates a new game service. Pass nil for hub if WebSocket
// broadcasting is not needed.
func NewService(st store.Store, rules config.Rules, hub *WSHub) *Service {
	return &Service{
		store: st,
		rules: rules,
		wsHub: hub,
	}
}

// --- Request/Response types ---

// CreateTeamRequest is the JSON body for team registration.
type CreateTeamRequest struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	PinCode string `json:"pin_code"`
}

// RMBidRequest is the JSON body for a raw-material bid. FleetCount is the
// team's transport plan for the month, applied together with the bid.
type RMBidRequest struct {
	TeamID     int64 `json:"team_id"`
	PricePaise int64 `json:"price_paise"`
	Volume     int64 `json:"volume"`
	FleetCount int   `json:"fleet_count"`
}

// CustomerBidRequest is the JSON body for a customer ask.
type CustomerBidRequest struct {
	TeamID     int64  `json:"team_id"`
	CustomerID string `json:"customer_id"`
	AskPrice   int64  `json:"ask_price_paise"`
	AskQty     int64  `json:"ask_qty"`
}

// --- HTTP Handlers ---

// CreateTeam handles POST /api/v1/teams — a minimal roster shim; real
// registration and authentication belong to the lobby service.
func (s *Service) CreateTeam(w http.ResponseWriter, r *http.Request) {
	var req CreateTeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ID <= 0 || req.Name == "" {
		writeError(w, "id and name are required", http.StatusBadRequest)
		return
	}

	team := &model.Team{ID: req.ID, Name: req.Name, PinCode: req.PinCode}
	if err := s.store.CreateTeam(r.Context(), team); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	slog.Info("team registered", "id", team.ID, "name", team.Name)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(team)
}

// ListTeams handles GET /api/v1/teams.
func (s *Service) ListTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := s.store.ListTeams(r.Context())
	if err != nil {
		writeError(w, "failed to list teams", http.StatusInternalServerError)
		return
	}
	if teams == nil {
		teams = []model.Team{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(teams)
}

// SubmitRMBid handles POST /api/v1/rounds/{quarter}/{month}/rm-bids.
// Re-submitting within the same round replaces the earlier bid.
func (s *Service) SubmitRMBid(w http.ResponseWriter, r *http.Request) {
	round, ok := roundParam(w, r)
	if !ok {
		return
	}

	var req RMBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.PricePaise < s.rules.RMMinBidPricePaise {
		writeError(w, "bid price below minimum", http.StatusBadRequest)
		return
	}
	if req.PricePaise > s.rules.RMMaxBidPricePaise {
		writeError(w, "bid price above maximum", http.StatusBadRequest)
		return
	}
	if req.Volume <= 0 || req.Volume > s.rules.RMMaxBidVolume {
		writeError(w, "bid volume out of range", http.StatusBadRequest)
		return
	}
	if req.FleetCount < 0 {
		writeError(w, "fleet count must not be negative", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	bid := &model.RMBid{
		ID:         uuid.New().String(),
		Quarter:    round.Quarter,
		Month:      round.Month,
		TeamID:     req.TeamID,
		PricePaise: req.PricePaise,
		Volume:     req.Volume,
	}
	if err := s.store.UpsertRMBid(ctx, bid); err != nil {
		writeError(w, "failed to save bid", http.StatusInternalServerError)
		return
	}
	if req.FleetCount > 0 {
		if err := s.store.SetTeamFleet(ctx, req.TeamID, req.FleetCount); err != nil {
			writeError(w, "failed to update fleet plan", http.StatusInternalServerError)
			return
		}
	}

	metrics.BidsTotal.WithLabelValues("rm").Inc()
	slog.Info("rm bid accepted",
		"quarter", round.Quarter, "month", round.Month,
		"team", req.TeamID, "price", req.PricePaise, "volume", req.Volume,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(bid)
}

// SubmitCustomerBid handles POST /api/v1/rounds/{quarter}/{month}/customer-bids.
func (s *Service) SubmitCustomerBid(w http.ResponseWriter, r *http.Request) {
	round, ok := roundParam(w, r)
	if !ok {
		return
	}

	var req CustomerBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if _, ok := s.rules.CustomerByID(req.CustomerID); !ok {
		writeError(w, "unknown customer: "+req.CustomerID, http.StatusBadRequest)
		return
	}
	if req.AskPrice <= 0 || req.AskPrice > s.rules.AskPriceCapPaise {
		writeError(w, "ask price out of range", http.StatusBadRequest)
		return
	}
	if req.AskQty <= 0 {
		writeError(w, "ask quantity must be positive", http.StatusBadRequest)
		return
	}

	bid := &model.CustomerBid{
		ID:         uuid.New().String(),
		Quarter:    round.Quarter,
		Month:      round.Month,
		TeamID:     req.TeamID,
		CustomerID: req.CustomerID,
		AskPrice:   req.AskPrice,
		AskQty:     req.AskQty,
	}
	if err := s.store.UpsertCustomerBid(r.Context(), bid); err != nil {
		writeError(w, "failed to save bid", http.StatusInternalServerError)
		return
	}

	metrics.BidsTotal.WithLabelValues("customer").Inc()
	slog.Info("customer bid accepted",
		"quarter", round.Quarter, "month", round.Month,
		"team", req.TeamID, "customer", req.CustomerID,
		"price", req.AskPrice, "qty", req.AskQty,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(bid)
}

// RunRMAllocation handles POST /api/v1/rounds/{quarter}/{month}/rm-allocation.
// The orchestration layer must call this exactly once per round, after the
// bidding window closes.
func (s *Service) RunRMAllocation(w http.ResponseWriter, r *http.Request) {
	round, ok := roundParam(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	bids, err := s.store.RMBidsForRound(ctx, round)
	if err != nil {
		writeError(w, "failed to load bids", http.StatusInternalServerError)
		return
	}

	inputs := make([]auction.RMBidInput, len(bids))
	for i, b := range bids {
		inputs[i] = auction.RMBidInput{TeamID: b.TeamID, PricePaise: b.PricePaise, Volume: b.Volume}
	}
	results := auction.AllocateRM(inputs, s.rules.RMRankFactors)
	if err := auction.CheckRMRanks(results); err != nil {
		// Allocator bug: fail the whole batch, persist nothing.
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	for _, res := range results {
		if err := s.store.SetRMAllocation(ctx, round, res.TeamID, res.Rank, res.AllocatedVolume); err != nil {
			writeError(w, "failed to save allocation", http.StatusInternalServerError)
			return
		}
	}

	metrics.AllocationsTotal.WithLabelValues("rm").Inc()
	slog.Info("rm allocation complete",
		"quarter", round.Quarter, "month", round.Month, "bids", len(results))

	s.broadcast(WSMessage{Type: "rm_allocation", Quarter: round.Quarter, Month: round.Month})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// RunCustomerAuction handles POST /api/v1/rounds/{quarter}/{month}/customer-auction.
// Runs one independent single-good auction per catalog customer.
func (s *Service) RunCustomerAuction(w http.ResponseWriter, r *http.Request) {
	round, ok := roundParam(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	teams, err := s.store.ListTeams(ctx)
	if err != nil {
		writeError(w, "failed to list teams", http.StatusInternalServerError)
		return
	}
	bids, err := s.store.CustomerBidsForRound(ctx, round)
	if err != nil {
		writeError(w, "failed to load bids", http.StatusInternalServerError)
		return
	}

	byCustomer := make(map[string][]auction.CustomerBidInput)
	for _, b := range bids {
		byCustomer[b.CustomerID] = append(byCustomer[b.CustomerID], auction.CustomerBidInput{
			TeamID: b.TeamID, AskPrice: b.AskPrice, AskQty: b.AskQty,
		})
	}

	type customerOutcome struct {
		CustomerID string                   `json:"customer_id"`
		Demand     int64                    `json:"demand"`
		Results    []auction.CustomerResult `json:"results"`
	}
	outcomes := make([]customerOutcome, 0, len(s.rules.Customers))

	for _, customer := range s.rules.Customers {
		custBids, ok := byCustomer[customer.ID]
		if !ok {
			continue
		}
		demand := auction.Demand(len(teams), s.rules.MarketUnitPerTeam, customer.SharePct)
		results := auction.AllocateCustomer(custBids, demand)
		if err := auction.CheckCustomerRanks(results); err != nil {
			writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		for _, res := range results {
			if err := s.store.SetCustomerAllocation(ctx, round, res.TeamID, customer.ID, res.Rank, res.AllocatedVolume); err != nil {
				writeError(w, "failed to save allocation", http.StatusInternalServerError)
				return
			}
		}
		outcomes = append(outcomes, customerOutcome{
			CustomerID: customer.ID,
			Demand:     demand,
			Results:    results,
		})
	}

	metrics.AllocationsTotal.WithLabelValues("customer").Inc()
	slog.Info("customer auction complete",
		"quarter", round.Quarter, "month", round.Month, "customers", len(outcomes))

	s.broadcast(WSMessage{Type: "customer_auction", Quarter: round.Quarter, Month: round.Month})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(outcomes)
}

// SettleMonth handles POST /api/v1/rounds/{quarter}/{month}/settlement.
// Settles every team for the round. Safe to re-run with unchanged inputs:
// each record fully replaces its predecessor.
func (s *Service) SettleMonth(w http.ResponseWriter, r *http.Request) {
	round, ok := roundParam(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	records, err := s.settleMonth(ctx, round)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, settle.ErrOutOfOrder) || errors.Is(err, settle.ErrBadRound) {
			status = http.StatusConflict
		}
		writeError(w, err.Error(), status)
		return
	}
	metrics.SettlementLatency.Observe(time.Since(start).Seconds())

	slog.Info("month settled",
		"quarter", round.Quarter, "month", round.Month, "teams", len(records))

	s.broadcast(WSMessage{Type: "settlement", Quarter: round.Quarter, Month: round.Month})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

// settleMonth computes and persists one record per team. The whole batch is
// computed before anything is written, so an out-of-order call rejects
// cleanly without partial results.
func (s *Service) settleMonth(ctx context.Context, round model.Round) ([]model.FinancialRecord, error) {
	teams, err := s.store.ListTeams(ctx)
	if err != nil {
		return nil, err
	}

	rmBids, err := s.store.RMBidsForRound(ctx, round)
	if err != nil {
		return nil, err
	}
	rmByTeam := make(map[int64]model.RMBid, len(rmBids))
	var spotBase int64
	for _, b := range rmBids {
		rmByTeam[b.TeamID] = b
		if b.PricePaise > spotBase {
			spotBase = b.PricePaise
		}
	}
	if spotBase == 0 {
		// Nobody bid this round: value spot purchases off the price cap.
		spotBase = s.rules.RMMaxBidPricePaise
	}

	customerBids, err := s.store.CustomerBidsForRound(ctx, round)
	if err != nil {
		return nil, err
	}
	winsByTeam := make(map[int64][]settle.CustomerWin)
	for _, b := range customerBids {
		if b.AllocatedVolume <= 0 {
			continue
		}
		term := 0
		if customer, ok := s.rules.CustomerByID(b.CustomerID); ok {
			term = customer.PayTermDays
		}
		winsByTeam[b.TeamID] = append(winsByTeam[b.TeamID], settle.CustomerWin{
			CustomerID:  b.CustomerID,
			PricePaise:  b.AskPrice,
			Volume:      b.AllocatedVolume,
			PayTermDays: term,
		})
	}

	records := make([]model.FinancialRecord, 0, len(teams))
	for _, team := range teams {
		var prev *model.FinancialRecord
		if prevRound, ok := round.Prev(); ok {
			prev, err = s.store.FinancialRecord(ctx, team.ID, prevRound)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return nil, fmt.Errorf("%w: team %d q%d m%d", settle.ErrOutOfOrder,
						team.ID, round.Quarter, round.Month)
				}
				return nil, err
			}
		}

		supply := settle.RMSupply{NoBid: true}
		if bid, ok := rmByTeam[team.ID]; ok {
			supply = settle.RMSupply{PricePaise: bid.PricePaise, Allocated: bid.AllocatedVolume}
		}

		rec, err := settle.SettleTeam(settle.Inputs{
			Team:          team,
			Round:         round,
			Supply:        supply,
			Wins:          winsByTeam[team.ID],
			SpotBasePaise: spotBase,
			Prev:          prev,
			Rules:         s.rules,
		})
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	now := time.Now().UTC()
	for i := range records {
		records[i].ID = recordID(records[i].TeamID, round)
		records[i].CreatedAt = now
		if err := s.store.ReplaceFinancialRecord(ctx, &records[i]); err != nil {
			return nil, err
		}
		metrics.SettlementsTotal.Inc()
	}
	return records, nil
}

// LiquidateQuarter handles POST /api/v1/quarters/{quarter}/liquidation.
// Must run once per quarter, after month 3 settles and before the next
// quarter's first settlement; the store rejects a repeated run.
func (s *Service) LiquidateQuarter(w http.ResponseWriter, r *http.Request) {
	quarter, err := strconv.Atoi(chi.URLParam(r, "quarter"))
	if err != nil || quarter < 1 {
		writeError(w, "invalid quarter", http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	quarterBids, err := s.store.RMBidsForQuarter(ctx, quarter)
	if err != nil {
		writeError(w, "failed to load bids", http.StatusInternalServerError)
		return
	}
	var monthThree []model.RMBid
	allocatedByTeam := make(map[int64]int64)
	for _, b := range quarterBids {
		if b.Month == 3 {
			monthThree = append(monthThree, b)
		}
		allocatedByTeam[b.TeamID] += b.AllocatedVolume
	}
	price := settle.LiquidationPrice(monthThree)

	soldByTeam, err := s.store.CustomerSalesForQuarter(ctx, quarter)
	if err != nil {
		writeError(w, "failed to load sales", http.StatusInternalServerError)
		return
	}

	teams, err := s.store.ListTeams(ctx)
	if err != nil {
		writeError(w, "failed to list teams", http.StatusInternalServerError)
		return
	}

	type liquidation struct {
		TeamID      int64 `json:"team_id"`
		Remaining   int64 `json:"remaining_volume"`
		PricePaise  int64 `json:"price_paise"`
		CreditPaise int64 `json:"credit_paise"`
	}
	results := make([]liquidation, 0, len(teams))

	for _, team := range teams {
		remaining := settle.RemainingRM(allocatedByTeam[team.ID], soldByTeam[team.ID])
		credit := settle.LiquidationCredit(remaining, price)
		if credit > 0 {
			if err := s.store.ApplyLiquidation(ctx, team.ID, quarter, credit); err != nil {
				writeError(w, err.Error(), http.StatusConflict)
				return
			}
			slog.Info("rm liquidated",
				"team", team.ID, "quarter", quarter,
				"volume", remaining, "price", price, "credit", credit)
		}
		results = append(results, liquidation{
			TeamID:      team.ID,
			Remaining:   remaining,
			PricePaise:  price,
			CreditPaise: credit,
		})
	}

	metrics.LiquidationsTotal.Inc()
	s.broadcast(WSMessage{Type: "liquidation", Quarter: quarter})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// GetRMAllocations handles GET /api/v1/rounds/{quarter}/{month}/rm-bids.
func (s *Service) GetRMAllocations(w http.ResponseWriter, r *http.Request) {
	round, ok := roundParam(w, r)
	if !ok {
		return
	}
	bids, err := s.store.RMBidsForRound(r.Context(), round)
	if err != nil {
		writeError(w, "failed to load bids", http.StatusInternalServerError)
		return
	}
	if bids == nil {
		bids = []model.RMBid{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(bids)
}

// GetCustomerAllocations handles GET /api/v1/rounds/{quarter}/{month}/customer-bids.
func (s *Service) GetCustomerAllocations(w http.ResponseWriter, r *http.Request) {
	round, ok := roundParam(w, r)
	if !ok {
		return
	}
	bids, err := s.store.CustomerBidsForRound(r.Context(), round)
	if err != nil {
		writeError(w, "failed to load bids", http.StatusInternalServerError)
		return
	}
	if bids == nil {
		bids = []model.CustomerBid{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(bids)
}

// GetFinancials handles GET /api/v1/rounds/{quarter}/{month}/financials.
func (s *Service) GetFinancials(w http.ResponseWriter, r *http.Request) {
	round, ok := roundParam(w, r)
	if !ok {
		return
	}
	records, err := s.store.RecordsForRound(r.Context(), round)
	if err != nil {
		writeError(w, "failed to load records", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []model.FinancialRecord{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

// GetLeaderboard handles GET /api/v1/leaderboard?quarter=N.
func (s *Service) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	quarter := 1
	if q := r.URL.Query().Get("quarter"); q != "" {
		parsed, err := strconv.Atoi(q)
		if err != nil || parsed < 1 {
			writeError(w, "invalid quarter", http.StatusBadRequest)
			return
		}
		quarter = parsed
	}

	ctx := r.Context()
	teams, err := s.store.ListTeams(ctx)
	if err != nil {
		writeError(w, "failed to list teams", http.StatusInternalServerError)
		return
	}
	records, err := s.store.ListFinancialRecords(ctx)
	if err != nil {
		writeError(w, "failed to load records", http.StatusInternalServerError)
		return
	}

	standings := report.Leaderboard(records, teams, quarter)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(standings)
}

// --- Helpers ---

func (s *Service) broadcast(msg WSMessage) {
	if s.wsHub != nil {
		s.wsHub.Broadcast(msg)
	}
}

// recordID derives a stable id for a (team, round) financial record, so
// re-settling a month replaces the record instead of renaming it.
func recordID(teamID int64, round model.Round) string {
	name := fmt.Sprintf("financials/%d/q%dm%d", teamID, round.Quarter, round.Month)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// roundParam parses {quarter}/{month} URL params. Writes a 400 and returns
// ok=false on malformed input.
func roundParam(w http.ResponseWriter, r *http.Request) (model.Round, bool) {
	quarter, err := strconv.Atoi(chi.URLParam(r, "quarter"))
	if err != nil || quarter < 1 {
		writeError(w, "invalid quarter", http.StatusBadRequest)
		return model.Round{}, false
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil || month < 1 || month > 3 {
		writeError(w, "invalid month", http.StatusBadRequest)
		return model.Round{}, false
	}
	return model.Round{Quarter: quarter, Month: month}, true
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
