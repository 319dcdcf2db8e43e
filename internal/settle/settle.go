// Package settle implements the monthly financial settlement and quarter-end
// liquidation steps of the simulation.
//
// SettleTeam is a pure function: it consumes one team's allocation outcomes
// and carried-forward state and produces that team's financial record for the
// round. The surrounding orchestration reads prior-period state from the
// store, calls the engine, and persists the result — per-team computations
// share no mutable state and may run concurrently within a batch.
//
// All monetary values are int64 paise. Fractional rates (interest, carrying
// cost, spot markup) are shopspring/decimal and applied with floor rounding.
package settle

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mithai/sim-engine/internal/config"
	"github.com/mithai/sim-engine/internal/model"
)

var (
	// ErrOutOfOrder is returned when a round is settled before its
	// predecessor has a record. Defaulting the opening balances to zero
	// would silently break cash and inventory continuity, so the batch is
	// rejected instead.
	ErrOutOfOrder = errors.New("settle: prior month has no financial record")

	// ErrBadRound is returned for rounds outside the quarter/month grid.
	ErrBadRound = errors.New("settle: invalid round")
)

// RMSupply is a team's raw-material position for the round. NoBid is the
// explicit "no bid submitted" variant: zero allocation, and any consumption
// is bought at the spot price through the same code path as a shortfall.
type RMSupply struct {
	NoBid      bool
	PricePaise int64 // bid price; ignored when NoBid
	Allocated  int64 // m³ granted by the RM allocation engine
}

// CustomerWin is one winning customer-auction entry for the team: the
// allocated volume at the team's ask price, with the customer's payment term.
type CustomerWin struct {
	CustomerID  string
	PricePaise  int64
	Volume      int64
	PayTermDays int
}

// Inputs carries everything SettleTeam needs. Prev is the team's record for
// the immediately preceding round; nil is valid only at the game's first
// month. SpotBasePaise is the highest RM bid price submitted by any team this
// round, or the configured RM price cap when nobody bid.
type Inputs struct {
	Team          model.Team
	Round         model.Round
	Supply        RMSupply
	Wins          []CustomerWin
	SpotBasePaise int64
	Prev          *model.FinancialRecord
	Rules         config.Rules
}

// SettleTeam computes one team's financial record for a round. It is
// deterministic: identical inputs yield identical records. The record's ID
// and CreatedAt are left zero — assigning them is the store's concern.
func SettleTeam(in Inputs) (model.FinancialRecord, error) {
	if in.Round.Quarter < 1 || in.Round.Month < 1 || in.Round.Month > in.Rules.MonthsPerQuarter {
		return model.FinancialRecord{}, fmt.Errorf("%w: q%d m%d", ErrBadRound, in.Round.Quarter, in.Round.Month)
	}
	if in.Prev == nil && !in.Round.First() {
		return model.FinancialRecord{}, fmt.Errorf("%w: q%d m%d", ErrOutOfOrder, in.Round.Quarter, in.Round.Month)
	}

	rec := model.FinancialRecord{
		TeamID:  in.Team.ID,
		Quarter: in.Round.Quarter,
		Month:   in.Round.Month,
	}

	// --- Revenue and receivables ---
	var cashInflow int64
	for _, win := range in.Wins {
		amount := win.Volume * win.PricePaise
		rec.SalesVolume += win.Volume
		rec.Revenue += amount
		if win.PayTermDays == 0 {
			cashInflow += amount
		} else {
			// Recognized now, collected never: receivables conversion is
			// outside the model.
			rec.Receivables += amount
		}
	}

	// --- RM cost with inventory carry ---
	if in.Prev != nil {
		rec.RMOpeningBalance = in.Prev.RMClosingBalance
	}

	spotPrice := mulRate(in.SpotBasePaise, in.Rules.SpotMarkup)

	supplyPrice := in.Supply.PricePaise
	allocated := in.Supply.Allocated
	if in.Supply.NoBid {
		// No bid this round: nothing allocated, and whatever the team
		// consumes — carried inventory included — is valued at spot.
		supplyPrice = spotPrice
		allocated = 0
	}

	available := rec.RMOpeningBalance + allocated
	var rmCashCost int64
	if rec.SalesVolume <= available {
		surplus := available - rec.SalesVolume
		carrying := mulRate(surplus*supplyPrice, in.Rules.CarryingRate)
		rec.RMCostAccrued = rec.SalesVolume*supplyPrice + carrying
		rec.RMClosingBalance = surplus
		rmCashCost = allocated * supplyPrice
	} else {
		shortfall := rec.SalesVolume - available
		rec.RMCostAccrued = available*supplyPrice + shortfall*spotPrice
		rec.RMClosingBalance = 0
		rec.ShortageVolume = shortfall
		rec.ShortageUnitCost = spotPrice
		rmCashCost = allocated*supplyPrice + shortfall*spotPrice
	}

	// --- Transport ---
	fleet := in.Team.FleetBaseCount
	rec.TMCost = int64(fleet) * in.Rules.FleetBaseUnitCostPaise
	needed := ceilDiv(rec.SalesVolume, in.Rules.FleetCapacityPerUnit)
	if needed > int64(fleet) {
		rec.ExtraFleetUnits = int(needed) - fleet
		rec.TMCost += int64(rec.ExtraFleetUnits) * in.Rules.FleetExtraUnitCostPaise
	}
	rec.FleetCountEffective = fleet + rec.ExtraFleetUnits

	// --- Production ---
	rec.ProdCost = rec.SalesVolume * in.Rules.ProductionRate(rec.SalesVolume)

	// --- EBITDA ---
	rec.OtherExpenses = in.Rules.OtherExpensesPaise
	rec.EBITDA = rec.Revenue - rec.RMCostAccrued - rec.TMCost - rec.ProdCost - rec.OtherExpenses

	// --- Cash ---
	if in.Prev != nil {
		rec.CashOpening = in.Prev.CashClosing
	} else {
		rec.CashOpening = in.Rules.SeedCapitalPaise
	}
	if rec.CashOpening < 0 {
		rec.Interest = mulRate(-rec.CashOpening, in.Rules.InterestRateMonthly)
	}
	outflow := rmCashCost + rec.TMCost + rec.ProdCost + rec.OtherExpenses
	rec.CashClosing = rec.CashOpening + cashInflow - outflow - rec.Interest

	return rec, nil
}

// mulRate multiplies an integer paise amount by a fractional rate, flooring
// the result back to whole paise.
func mulRate(amount int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(rate).Floor().IntPart()
}

// ceilDiv returns ceil(a/b) for non-negative a and positive b.
func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}
