package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mithai/sim-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the read-heavy financial views. Writes go to the primary store
// and invalidate the affected keys; reads check Redis first then fall back
// to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

var _ Store = (*CachedStore)(nil)

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) ReplaceFinancialRecord(ctx context.Context, rec *model.FinancialRecord) error {
	if err := s.primary.ReplaceFinancialRecord(ctx, rec); err != nil {
		return err
	}
	s.invalidateRecords(ctx, rec.TeamID, model.Round{Quarter: rec.Quarter, Month: rec.Month})
	return nil
}

func (s *CachedStore) ApplyLiquidation(ctx context.Context, teamID int64, quarter int, credit int64) error {
	if err := s.primary.ApplyLiquidation(ctx, teamID, quarter, credit); err != nil {
		return err
	}
	s.invalidateRecords(ctx, teamID, model.Round{Quarter: quarter, Month: 3})
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) FinancialRecord(ctx context.Context, teamID int64, round model.Round) (*model.FinancialRecord, error) {
	data, err := s.rdb.Get(ctx, recordKey(teamID, round)).Bytes()
	if err == nil {
		var rec model.FinancialRecord
		if json.Unmarshal(data, &rec) == nil {
			return &rec, nil
		}
	}

	rec, err := s.primary.FinancialRecord(ctx, teamID, round)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(rec); err == nil {
		s.rdb.Set(ctx, recordKey(teamID, round), data, s.ttl)
	}
	return rec, nil
}

func (s *CachedStore) RecordsForRound(ctx context.Context, round model.Round) ([]model.FinancialRecord, error) {
	data, err := s.rdb.Get(ctx, roundRecordsKey(round)).Bytes()
	if err == nil {
		var recs []model.FinancialRecord
		if json.Unmarshal(data, &recs) == nil {
			return recs, nil
		}
	}

	recs, err := s.primary.RecordsForRound(ctx, round)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(recs); err == nil {
		s.rdb.Set(ctx, roundRecordsKey(round), data, s.ttl)
	}
	return recs, nil
}

func (s *CachedStore) ListFinancialRecords(ctx context.Context) ([]model.FinancialRecord, error) {
	data, err := s.rdb.Get(ctx, allRecordsKey).Bytes()
	if err == nil {
		var recs []model.FinancialRecord
		if json.Unmarshal(data, &recs) == nil {
			return recs, nil
		}
	}

	recs, err := s.primary.ListFinancialRecords(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(recs); err == nil {
		s.rdb.Set(ctx, allRecordsKey, data, s.ttl)
	}
	return recs, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) CreateTeam(ctx context.Context, team *model.Team) error {
	return s.primary.CreateTeam(ctx, team)
}

func (s *CachedStore) ListTeams(ctx context.Context) ([]model.Team, error) {
	return s.primary.ListTeams(ctx)
}

func (s *CachedStore) SetTeamFleet(ctx context.Context, teamID int64, count int) error {
	return s.primary.SetTeamFleet(ctx, teamID, count)
}

func (s *CachedStore) UpsertRMBid(ctx context.Context, bid *model.RMBid) error {
	return s.primary.UpsertRMBid(ctx, bid)
}

func (s *CachedStore) RMBidsForRound(ctx context.Context, round model.Round) ([]model.RMBid, error) {
	return s.primary.RMBidsForRound(ctx, round)
}

func (s *CachedStore) RMBidsForQuarter(ctx context.Context, quarter int) ([]model.RMBid, error) {
	return s.primary.RMBidsForQuarter(ctx, quarter)
}

func (s *CachedStore) SetRMAllocation(ctx context.Context, round model.Round, teamID int64, rank int, allocated int64) error {
	return s.primary.SetRMAllocation(ctx, round, teamID, rank, allocated)
}

func (s *CachedStore) UpsertCustomerBid(ctx context.Context, bid *model.CustomerBid) error {
	return s.primary.UpsertCustomerBid(ctx, bid)
}

func (s *CachedStore) CustomerBidsForRound(ctx context.Context, round model.Round) ([]model.CustomerBid, error) {
	return s.primary.CustomerBidsForRound(ctx, round)
}

func (s *CachedStore) SetCustomerAllocation(ctx context.Context, round model.Round, teamID int64, customerID string, rank int, allocated int64) error {
	return s.primary.SetCustomerAllocation(ctx, round, teamID, customerID, rank, allocated)
}

func (s *CachedStore) CustomerSalesForQuarter(ctx context.Context, quarter int) (map[int64]int64, error) {
	return s.primary.CustomerSalesForQuarter(ctx, quarter)
}

// --- Cache helpers ---

func (s *CachedStore) invalidateRecords(ctx context.Context, teamID int64, round model.Round) {
	s.rdb.Del(ctx, recordKey(teamID, round), roundRecordsKey(round), allRecordsKey)
}

const allRecordsKey = "financials:all"

func recordKey(teamID int64, round model.Round) string {
	return fmt.Sprintf("financials:%d:q%dm%d", teamID, round.Quarter, round.Month)
}

func roundRecordsKey(round model.Round) string {
	return fmt.Sprintf("financials:round:q%dm%d", round.Quarter, round.Month)
}
