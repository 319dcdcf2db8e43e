package store

import (
	"context"
	"errors"
	"testing"

	"github.com/mithai/sim-engine/internal/model"
)

func TestMemoryStoreTeams(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	if err := ms.CreateTeam(ctx, &model.Team{ID: 2, Name: "B"}); err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	if err := ms.CreateTeam(ctx, &model.Team{ID: 1, Name: "A"}); err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	if err := ms.CreateTeam(ctx, &model.Team{ID: 1, Name: "dup"}); err == nil {
		t.Fatal("expected error for duplicate team id")
	}

	teams, err := ms.ListTeams(ctx)
	if err != nil {
		t.Fatalf("ListTeams: %v", err)
	}
	if len(teams) != 2 || teams[0].ID != 1 || teams[1].ID != 2 {
		t.Fatalf("teams not sorted by id: %+v", teams)
	}

	if err := ms.SetTeamFleet(ctx, 1, 12); err != nil {
		t.Fatalf("SetTeamFleet: %v", err)
	}
	teams, _ = ms.ListTeams(ctx)
	if teams[0].FleetBaseCount != 12 {
		t.Errorf("FleetBaseCount = %d, want 12", teams[0].FleetBaseCount)
	}
	if err := ms.SetTeamFleet(ctx, 99, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetTeamFleet(unknown) = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreRMBidUpsert(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	round := model.Round{Quarter: 1, Month: 2}

	ms.UpsertRMBid(ctx, &model.RMBid{ID: "a", Quarter: 1, Month: 2, TeamID: 1, PricePaise: 300000, Volume: 5000})
	ms.UpsertRMBid(ctx, &model.RMBid{ID: "b", Quarter: 1, Month: 2, TeamID: 1, PricePaise: 310000, Volume: 4000})

	bids, _ := ms.RMBidsForRound(ctx, round)
	if len(bids) != 1 {
		t.Fatalf("expected 1 bid after upsert, got %d", len(bids))
	}
	if bids[0].PricePaise != 310000 || bids[0].Volume != 4000 {
		t.Errorf("upsert did not replace: %+v", bids[0])
	}

	if err := ms.SetRMAllocation(ctx, round, 1, 1, 4000); err != nil {
		t.Fatalf("SetRMAllocation: %v", err)
	}
	bids, _ = ms.RMBidsForRound(ctx, round)
	if bids[0].Rank != 1 || bids[0].AllocatedVolume != 4000 {
		t.Errorf("allocation not stored: %+v", bids[0])
	}
	if err := ms.SetRMAllocation(ctx, round, 9, 1, 100); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetRMAllocation(no bid) = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreQuarterQueries(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	ms.UpsertRMBid(ctx, &model.RMBid{ID: "a", Quarter: 1, Month: 1, TeamID: 1, AllocatedVolume: 10000})
	ms.UpsertRMBid(ctx, &model.RMBid{ID: "b", Quarter: 1, Month: 3, TeamID: 1, AllocatedVolume: 5000})
	ms.UpsertRMBid(ctx, &model.RMBid{ID: "c", Quarter: 2, Month: 1, TeamID: 1, AllocatedVolume: 7000})

	bids, _ := ms.RMBidsForQuarter(ctx, 1)
	if len(bids) != 2 {
		t.Fatalf("expected 2 bids in q1, got %d", len(bids))
	}

	ms.UpsertCustomerBid(ctx, &model.CustomerBid{ID: "x", Quarter: 1, Month: 1, TeamID: 1, CustomerID: "LEMON", AllocatedVolume: 3000})
	ms.UpsertCustomerBid(ctx, &model.CustomerBid{ID: "y", Quarter: 1, Month: 2, TeamID: 1, CustomerID: "SHAHI", AllocatedVolume: 2000})
	ms.UpsertCustomerBid(ctx, &model.CustomerBid{ID: "z", Quarter: 2, Month: 1, TeamID: 1, CustomerID: "LEMON", AllocatedVolume: 9999})

	sales, _ := ms.CustomerSalesForQuarter(ctx, 1)
	if sales[1] != 5000 {
		t.Errorf("q1 sales for team 1 = %d, want 5000", sales[1])
	}
}

func TestMemoryStoreFinancialRecords(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	round := model.Round{Quarter: 1, Month: 3}

	if _, err := ms.FinancialRecord(ctx, 1, round); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FinancialRecord(missing) = %v, want ErrNotFound", err)
	}

	ms.ReplaceFinancialRecord(ctx, &model.FinancialRecord{ID: "a", TeamID: 1, Quarter: 1, Month: 3, EBITDA: 100})
	ms.ReplaceFinancialRecord(ctx, &model.FinancialRecord{ID: "b", TeamID: 1, Quarter: 1, Month: 3, EBITDA: 200})

	rec, err := ms.FinancialRecord(ctx, 1, round)
	if err != nil {
		t.Fatalf("FinancialRecord: %v", err)
	}
	if rec.EBITDA != 200 {
		t.Errorf("replace did not overwrite: EBITDA = %d, want 200", rec.EBITDA)
	}

	// Returned record is a copy; mutating it must not touch the store.
	rec.EBITDA = -1
	again, _ := ms.FinancialRecord(ctx, 1, round)
	if again.EBITDA != 200 {
		t.Errorf("store record mutated through returned copy")
	}
}

func TestMemoryStoreApplyLiquidation(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	if err := ms.ApplyLiquidation(ctx, 1, 1, 500); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ApplyLiquidation(no record) = %v, want ErrNotFound", err)
	}

	ms.ReplaceFinancialRecord(ctx, &model.FinancialRecord{
		ID: "a", TeamID: 1, Quarter: 1, Month: 3,
		Revenue: 1000, EBITDA: 400, CashClosing: 900,
	})
	if err := ms.ApplyLiquidation(ctx, 1, 1, 500); err != nil {
		t.Fatalf("ApplyLiquidation: %v", err)
	}

	rec, _ := ms.FinancialRecord(ctx, 1, model.Round{Quarter: 1, Month: 3})
	if rec.Revenue != 1500 || rec.EBITDA != 900 || rec.CashClosing != 1400 || rec.LiquidationCredit != 500 {
		t.Errorf("liquidation not applied: %+v", rec)
	}

	// Applying twice would double-count the credit; the second run must fail.
	if err := ms.ApplyLiquidation(ctx, 1, 1, 500); !errors.Is(err, ErrAlreadyLiquidated) {
		t.Fatalf("second ApplyLiquidation = %v, want ErrAlreadyLiquidated", err)
	}
	rec, _ = ms.FinancialRecord(ctx, 1, model.Round{Quarter: 1, Month: 3})
	if rec.LiquidationCredit != 500 {
		t.Errorf("LiquidationCredit after rejected rerun = %d, want 500", rec.LiquidationCredit)
	}
}
