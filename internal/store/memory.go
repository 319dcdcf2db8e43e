package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mithai/sim-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu           sync.RWMutex
	teams        map[int64]*model.Team
	rmBids       map[string]*model.RMBid       // key: q/m/team
	customerBids map[string]*model.CustomerBid // key: q/m/team/customer
	records      map[string]*model.FinancialRecord
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		teams:        make(map[int64]*model.Team),
		rmBids:       make(map[string]*model.RMBid),
		customerBids: make(map[string]*model.CustomerBid),
		records:      make(map[string]*model.FinancialRecord),
	}
}

func rmKey(q, m int, team int64) string {
	return fmt.Sprintf("%d/%d/%d", q, m, team)
}

func custKey(q, m int, team int64, customer string) string {
	return fmt.Sprintf("%d/%d/%d/%s", q, m, team, customer)
}

func recKey(team int64, q, m int) string {
	return fmt.Sprintf("%d/%d/%d", team, q, m)
}

func (s *MemoryStore) CreateTeam(_ context.Context, team *model.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.teams[team.ID]; ok {
		return fmt.Errorf("team %d already exists", team.ID)
	}
	copy := *team
	s.teams[team.ID] = &copy
	return nil
}

func (s *MemoryStore) ListTeams(_ context.Context) ([]model.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	teams := make([]model.Team, 0, len(s.teams))
	for _, t := range s.teams {
		teams = append(teams, *t)
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].ID < teams[j].ID })
	return teams, nil
}

func (s *MemoryStore) SetTeamFleet(_ context.Context, teamID int64, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.teams[teamID]
	if !ok {
		return fmt.Errorf("team %d: %w", teamID, ErrNotFound)
	}
	t.FleetBaseCount = count
	return nil
}

func (s *MemoryStore) UpsertRMBid(_ context.Context, bid *model.RMBid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *bid
	s.rmBids[rmKey(bid.Quarter, bid.Month, bid.TeamID)] = &copy
	return nil
}

func (s *MemoryStore) RMBidsForRound(_ context.Context, round model.Round) ([]model.RMBid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var bids []model.RMBid
	for _, b := range s.rmBids {
		if b.Quarter == round.Quarter && b.Month == round.Month {
			bids = append(bids, *b)
		}
	}
	sort.Slice(bids, func(i, j int) bool { return bids[i].TeamID < bids[j].TeamID })
	return bids, nil
}

func (s *MemoryStore) RMBidsForQuarter(_ context.Context, quarter int) ([]model.RMBid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var bids []model.RMBid
	for _, b := range s.rmBids {
		if b.Quarter == quarter {
			bids = append(bids, *b)
		}
	}
	sort.Slice(bids, func(i, j int) bool {
		if bids[i].Month != bids[j].Month {
			return bids[i].Month < bids[j].Month
		}
		return bids[i].TeamID < bids[j].TeamID
	})
	return bids, nil
}

func (s *MemoryStore) SetRMAllocation(_ context.Context, round model.Round, teamID int64, rank int, allocated int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.rmBids[rmKey(round.Quarter, round.Month, teamID)]
	if !ok {
		return fmt.Errorf("rm bid q%d m%d team %d: %w", round.Quarter, round.Month, teamID, ErrNotFound)
	}
	b.Rank = rank
	b.AllocatedVolume = allocated
	return nil
}

func (s *MemoryStore) UpsertCustomerBid(_ context.Context, bid *model.CustomerBid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *bid
	s.customerBids[custKey(bid.Quarter, bid.Month, bid.TeamID, bid.CustomerID)] = &copy
	return nil
}

func (s *MemoryStore) CustomerBidsForRound(_ context.Context, round model.Round) ([]model.CustomerBid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var bids []model.CustomerBid
	for _, b := range s.customerBids {
		if b.Quarter == round.Quarter && b.Month == round.Month {
			bids = append(bids, *b)
		}
	}
	sort.Slice(bids, func(i, j int) bool {
		if bids[i].CustomerID != bids[j].CustomerID {
			return bids[i].CustomerID < bids[j].CustomerID
		}
		return bids[i].TeamID < bids[j].TeamID
	})
	return bids, nil
}

func (s *MemoryStore) SetCustomerAllocation(_ context.Context, round model.Round, teamID int64, customerID string, rank int, allocated int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.customerBids[custKey(round.Quarter, round.Month, teamID, customerID)]
	if !ok {
		return fmt.Errorf("customer bid q%d m%d team %d %s: %w",
			round.Quarter, round.Month, teamID, customerID, ErrNotFound)
	}
	b.Rank = rank
	b.AllocatedVolume = allocated
	return nil
}

func (s *MemoryStore) CustomerSalesForQuarter(_ context.Context, quarter int) (map[int64]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make(map[int64]int64)
	for _, b := range s.customerBids {
		if b.Quarter == quarter {
			sales[b.TeamID] += b.AllocatedVolume
		}
	}
	return sales, nil
}

func (s *MemoryStore) ReplaceFinancialRecord(_ context.Context, rec *model.FinancialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *rec
	s.records[recKey(rec.TeamID, rec.Quarter, rec.Month)] = &copy
	return nil
}

func (s *MemoryStore) FinancialRecord(_ context.Context, teamID int64, round model.Round) (*model.FinancialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[recKey(teamID, round.Quarter, round.Month)]
	if !ok {
		return nil, fmt.Errorf("record team %d q%d m%d: %w", teamID, round.Quarter, round.Month, ErrNotFound)
	}
	copy := *rec
	return &copy, nil
}

func (s *MemoryStore) RecordsForRound(_ context.Context, round model.Round) ([]model.FinancialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var recs []model.FinancialRecord
	for _, r := range s.records {
		if r.Quarter == round.Quarter && r.Month == round.Month {
			recs = append(recs, *r)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].TeamID < recs[j].TeamID })
	return recs, nil
}

func (s *MemoryStore) ListFinancialRecords(_ context.Context) ([]model.FinancialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := make([]model.FinancialRecord, 0, len(s.records))
	for _, r := range s.records {
		recs = append(recs, *r)
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Quarter != recs[j].Quarter {
			return recs[i].Quarter < recs[j].Quarter
		}
		if recs[i].Month != recs[j].Month {
			return recs[i].Month < recs[j].Month
		}
		return recs[i].TeamID < recs[j].TeamID
	})
	return recs, nil
}

func (s *MemoryStore) ApplyLiquidation(_ context.Context, teamID int64, quarter int, credit int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[recKey(teamID, quarter, 3)]
	if !ok {
		return fmt.Errorf("record team %d q%d m3: %w", teamID, quarter, ErrNotFound)
	}
	if rec.LiquidationCredit != 0 {
		return fmt.Errorf("record team %d q%d m3: %w", teamID, quarter, ErrAlreadyLiquidated)
	}
	rec.Revenue += credit
	rec.EBITDA += credit
	rec.CashClosing += credit
	rec.LiquidationCredit += credit
	return nil
}
