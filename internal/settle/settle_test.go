package settle

import (
	"errors"
	"reflect"
	"testing"

	"github.com/mithai/sim-engine/internal/config"
	"github.com/mithai/sim-engine/internal/model"
)

func TestSettleTeamFirstMonthSeed(t *testing.T) {
	rules := config.DefaultRules()
	rec, err := SettleTeam(Inputs{
		Team:          model.Team{ID: 1},
		Round:         model.Round{Quarter: 1, Month: 1},
		Supply:        RMSupply{NoBid: true},
		SpotBasePaise: rules.RMMaxBidPricePaise,
		Rules:         rules,
	})
	if err != nil {
		t.Fatalf("SettleTeam() error = %v", err)
	}
	if rec.CashOpening != rules.SeedCapitalPaise {
		t.Errorf("CashOpening = %d, want seed capital %d", rec.CashOpening, rules.SeedCapitalPaise)
	}
	if rec.RMOpeningBalance != 0 {
		t.Errorf("RMOpeningBalance = %d, want 0", rec.RMOpeningBalance)
	}
	if rec.Interest != 0 {
		t.Errorf("Interest = %d, want 0 on positive opening cash", rec.Interest)
	}
}

func TestSettleTeamShortage(t *testing.T) {
	rules := config.DefaultRules()
	rec, err := SettleTeam(Inputs{
		Team:   model.Team{ID: 1, FleetBaseCount: 13},
		Round:  model.Round{Quarter: 1, Month: 1},
		Supply: RMSupply{PricePaise: 3000 * 100, Allocated: 5000},
		Wins: []CustomerWin{
			{CustomerID: "LEMON", PricePaise: 6000 * 100, Volume: 7000, PayTermDays: 0},
		},
		SpotBasePaise: 3200 * 100,
		Rules:         rules,
	})
	if err != nil {
		t.Fatalf("SettleTeam() error = %v", err)
	}

	// spot = floor(320000 * 1.10) = 352000 paise
	if rec.ShortageUnitCost != 352000 {
		t.Errorf("ShortageUnitCost = %d, want 352000", rec.ShortageUnitCost)
	}
	if rec.ShortageVolume != 2000 {
		t.Errorf("ShortageVolume = %d, want 2000", rec.ShortageVolume)
	}
	// 5000 allocated at bid price, 2000 shortfall at spot
	wantRM := int64(5000*300000 + 2000*352000)
	if rec.RMCostAccrued != wantRM {
		t.Errorf("RMCostAccrued = %d, want %d", rec.RMCostAccrued, wantRM)
	}
	if rec.RMClosingBalance != 0 {
		t.Errorf("RMClosingBalance = %d, want 0 (never negative)", rec.RMClosingBalance)
	}
	if rec.Revenue != 7000*600000 {
		t.Errorf("Revenue = %d, want %d", rec.Revenue, int64(7000*600000))
	}
	// EBITDA = 4.2e9 - 2.204e9 - 234e6 (13 base trucks) - 490e6 (tier rate 700/m³) - 50e6
	if rec.EBITDA != 1222000000 {
		t.Errorf("EBITDA = %d, want 1222000000", rec.EBITDA)
	}
	if rec.CashClosing != 11222000000 {
		t.Errorf("CashClosing = %d, want 11222000000", rec.CashClosing)
	}
}

func TestSettleTeamSurplusCarryingCost(t *testing.T) {
	rules := config.DefaultRules()
	rec, err := SettleTeam(Inputs{
		Team:   model.Team{ID: 1, FleetBaseCount: 8},
		Round:  model.Round{Quarter: 1, Month: 1},
		Supply: RMSupply{PricePaise: 3000 * 100, Allocated: 10000},
		Wins: []CustomerWin{
			{CustomerID: "LADDU", PricePaise: 5000 * 100, Volume: 4000, PayTermDays: 60},
		},
		SpotBasePaise: 3000 * 100,
		Rules:         rules,
	})
	if err != nil {
		t.Fatalf("SettleTeam() error = %v", err)
	}

	if rec.RMClosingBalance != 6000 {
		t.Errorf("RMClosingBalance = %d, want 6000", rec.RMClosingBalance)
	}
	// carrying = floor(6000 * 300000 * 0.10) = 180e6, on top of consumed cost
	wantRM := int64(4000*300000 + 180000000)
	if rec.RMCostAccrued != wantRM {
		t.Errorf("RMCostAccrued = %d, want %d", rec.RMCostAccrued, wantRM)
	}
	if rec.ShortageVolume != 0 {
		t.Errorf("ShortageVolume = %d, want 0", rec.ShortageVolume)
	}
	// 60-day terms: recognized as revenue, collected never
	if rec.Receivables != 2000000000 {
		t.Errorf("Receivables = %d, want 2000000000", rec.Receivables)
	}
	// cash outflow covers the full allocated purchase, not just consumption
	wantClosing := rules.SeedCapitalPaise - (10000*300000 + 144000000 + 280000000 + 50000000)
	if rec.CashClosing != wantClosing {
		t.Errorf("CashClosing = %d, want %d", rec.CashClosing, wantClosing)
	}
}

func TestSettleTeamNoBidSpotConsumption(t *testing.T) {
	rules := config.DefaultRules()
	prev := &model.FinancialRecord{
		TeamID: 1, Quarter: 1, Month: 1,
		RMClosingBalance: 3000,
		CashClosing:      5000000000,
	}
	rec, err := SettleTeam(Inputs{
		Team:   model.Team{ID: 1, FleetBaseCount: 4},
		Round:  model.Round{Quarter: 1, Month: 2},
		Supply: RMSupply{NoBid: true},
		Wins: []CustomerWin{
			{CustomerID: "LEMON", PricePaise: 6500 * 100, Volume: 2000, PayTermDays: 0},
		},
		SpotBasePaise: 3000 * 100,
		Prev:          prev,
		Rules:         rules,
	})
	if err != nil {
		t.Fatalf("SettleTeam() error = %v", err)
	}

	if rec.RMOpeningBalance != 3000 {
		t.Errorf("RMOpeningBalance = %d, want carried 3000", rec.RMOpeningBalance)
	}
	// No bid: consumption and carrying are both valued at spot (330000).
	wantRM := int64(2000*330000 + 33000000)
	if rec.RMCostAccrued != wantRM {
		t.Errorf("RMCostAccrued = %d, want %d", rec.RMCostAccrued, wantRM)
	}
	if rec.RMClosingBalance != 1000 {
		t.Errorf("RMClosingBalance = %d, want 1000", rec.RMClosingBalance)
	}
	// Nothing allocated, so no RM cash outflow this month.
	wantClosing := int64(5000000000 + 1300000000 - (72000000 + 140000000 + 50000000))
	if rec.CashClosing != wantClosing {
		t.Errorf("CashClosing = %d, want %d", rec.CashClosing, wantClosing)
	}
}

func TestSettleTeamOverdraftInterest(t *testing.T) {
	rules := config.DefaultRules()
	prev := &model.FinancialRecord{
		TeamID: 1, Quarter: 1, Month: 1,
		CashClosing: -100000000,
	}
	rec, err := SettleTeam(Inputs{
		Team:          model.Team{ID: 1},
		Round:         model.Round{Quarter: 1, Month: 2},
		Supply:        RMSupply{NoBid: true},
		SpotBasePaise: rules.RMMaxBidPricePaise,
		Prev:          prev,
		Rules:         rules,
	})
	if err != nil {
		t.Fatalf("SettleTeam() error = %v", err)
	}

	// floor(100e6 * 0.02) = 2e6
	if rec.Interest != 2000000 {
		t.Errorf("Interest = %d, want 2000000", rec.Interest)
	}
	wantClosing := int64(-100000000 - 50000000 - 2000000)
	if rec.CashClosing != wantClosing {
		t.Errorf("CashClosing = %d, want %d", rec.CashClosing, wantClosing)
	}
}

func TestSettleTeamExtraFleet(t *testing.T) {
	rules := config.DefaultRules()
	rec, err := SettleTeam(Inputs{
		Team:   model.Team{ID: 1, FleetBaseCount: 10},
		Round:  model.Round{Quarter: 1, Month: 1},
		Supply: RMSupply{PricePaise: 3000 * 100, Allocated: 7000},
		Wins: []CustomerWin{
			{CustomerID: "LEMON", PricePaise: 6000 * 100, Volume: 7000, PayTermDays: 0},
		},
		SpotBasePaise: 3000 * 100,
		Rules:         rules,
	})
	if err != nil {
		t.Fatalf("SettleTeam() error = %v", err)
	}

	// ceil(7000 / 540) = 13 trucks needed, 3 above the base plan
	if rec.ExtraFleetUnits != 3 {
		t.Errorf("ExtraFleetUnits = %d, want 3", rec.ExtraFleetUnits)
	}
	if rec.FleetCountEffective != 13 {
		t.Errorf("FleetCountEffective = %d, want 13", rec.FleetCountEffective)
	}
	wantTM := int64(10*18000000 + 3*25000000)
	if rec.TMCost != wantTM {
		t.Errorf("TMCost = %d, want %d", rec.TMCost, wantTM)
	}
}

func TestSettleTeamContinuity(t *testing.T) {
	rules := config.DefaultRules()
	first, err := SettleTeam(Inputs{
		Team:   model.Team{ID: 1, FleetBaseCount: 8},
		Round:  model.Round{Quarter: 1, Month: 3},
		Supply: RMSupply{PricePaise: 3000 * 100, Allocated: 10000},
		Wins: []CustomerWin{
			{CustomerID: "LEMON", PricePaise: 6000 * 100, Volume: 4000, PayTermDays: 0},
		},
		SpotBasePaise: 3000 * 100,
		Prev:          &model.FinancialRecord{TeamID: 1, Quarter: 1, Month: 2, CashClosing: 9000000000},
		Rules:         rules,
	})
	if err != nil {
		t.Fatalf("SettleTeam(q1m3) error = %v", err)
	}

	// Quarter boundary: q2m1 opens with q1m3's closing balances.
	second, err := SettleTeam(Inputs{
		Team:          model.Team{ID: 1, FleetBaseCount: 8},
		Round:         model.Round{Quarter: 2, Month: 1},
		Supply:        RMSupply{NoBid: true},
		SpotBasePaise: 3000 * 100,
		Prev:          &first,
		Rules:         rules,
	})
	if err != nil {
		t.Fatalf("SettleTeam(q2m1) error = %v", err)
	}

	if second.CashOpening != first.CashClosing {
		t.Errorf("CashOpening = %d, want prior closing %d", second.CashOpening, first.CashClosing)
	}
	if second.RMOpeningBalance != first.RMClosingBalance {
		t.Errorf("RMOpeningBalance = %d, want prior closing %d", second.RMOpeningBalance, first.RMClosingBalance)
	}
}

func TestSettleTeamOutOfOrder(t *testing.T) {
	rules := config.DefaultRules()
	_, err := SettleTeam(Inputs{
		Team:          model.Team{ID: 1},
		Round:         model.Round{Quarter: 1, Month: 2},
		Supply:        RMSupply{NoBid: true},
		SpotBasePaise: rules.RMMaxBidPricePaise,
		Rules:         rules,
	})
	if !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("SettleTeam() error = %v, want ErrOutOfOrder", err)
	}
}

func TestSettleTeamBadRound(t *testing.T) {
	rules := config.DefaultRules()
	for _, round := range []model.Round{
		{Quarter: 0, Month: 1},
		{Quarter: 1, Month: 0},
		{Quarter: 1, Month: 4},
	} {
		_, err := SettleTeam(Inputs{
			Team:          model.Team{ID: 1},
			Round:         round,
			Supply:        RMSupply{NoBid: true},
			SpotBasePaise: rules.RMMaxBidPricePaise,
			Rules:         rules,
		})
		if !errors.Is(err, ErrBadRound) {
			t.Errorf("SettleTeam(q%d m%d) error = %v, want ErrBadRound", round.Quarter, round.Month, err)
		}
	}
}

func TestSettleTeamDeterministic(t *testing.T) {
	rules := config.DefaultRules()
	in := Inputs{
		Team:   model.Team{ID: 1, FleetBaseCount: 10},
		Round:  model.Round{Quarter: 1, Month: 1},
		Supply: RMSupply{PricePaise: 3100 * 100, Allocated: 9000},
		Wins: []CustomerWin{
			{CustomerID: "SHAHI", PricePaise: 5500 * 100, Volume: 6000, PayTermDays: 30},
			{CustomerID: "LEMON", PricePaise: 6000 * 100, Volume: 2000, PayTermDays: 0},
		},
		SpotBasePaise: 3100 * 100,
		Rules:         rules,
	}

	a, err := SettleTeam(in)
	if err != nil {
		t.Fatalf("SettleTeam() error = %v", err)
	}
	b, err := SettleTeam(in)
	if err != nil {
		t.Fatalf("SettleTeam() error = %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("identical inputs produced different records:\n%+v\n%+v", a, b)
	}
}

func TestLiquidationPrice(t *testing.T) {
	bids := []model.RMBid{
		{TeamID: 1, Month: 3, PricePaise: 3000 * 100},
		{TeamID: 2, Month: 3, PricePaise: 2800 * 100},
		{TeamID: 3, Month: 3, PricePaise: 3300 * 100},
	}
	if got := LiquidationPrice(bids); got != 280000 {
		t.Errorf("LiquidationPrice() = %d, want 280000", got)
	}
	if got := LiquidationPrice(nil); got != 0 {
		t.Errorf("LiquidationPrice(none) = %d, want 0", got)
	}
}

func TestRemainingRM(t *testing.T) {
	if got := RemainingRM(10000, 4000); got != 6000 {
		t.Errorf("RemainingRM(10000, 4000) = %d, want 6000", got)
	}
	// Spot purchases can push sales past supply; inventory never goes negative.
	if got := RemainingRM(4000, 10000); got != 0 {
		t.Errorf("RemainingRM(4000, 10000) = %d, want 0", got)
	}
}

func TestLiquidationCredit(t *testing.T) {
	if got := LiquidationCredit(6000, 280000); got != 1680000000 {
		t.Errorf("LiquidationCredit(6000, 280000) = %d, want 1680000000", got)
	}
	if got := LiquidationCredit(0, 280000); got != 0 {
		t.Errorf("LiquidationCredit(0, price) = %d, want 0", got)
	}
	if got := LiquidationCredit(6000, 0); got != 0 {
		t.Errorf("LiquidationCredit(volume, 0) = %d, want 0", got)
	}
}
