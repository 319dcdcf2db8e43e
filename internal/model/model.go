// Package model defines the core domain types shared across the simulation
// engine. All monetary values are int64 paise (minor currency units) — never
// float64 for money. Fractional rates live in config as shopspring/decimal.
package model

import "time"

// Team is a competing player group. The engine only reads teams; the roster
// collaborator owns registration. FleetBaseCount is the number of owned
// transport units, set once per month by the team's plan bid.
type Team struct {
	ID             int64  `json:"id" db:"id"`
	Name           string `json:"name" db:"name"`
	PinCode        string `json:"-" db:"pin_code"`
	FleetBaseCount int    `json:"fleet_base_count" db:"fleet_base_count"`
}

// Round identifies one simulation month: quarter 1..N, month 1..3 within it.
// It is passed explicitly into every engine call — there is no ambient
// "current round" state.
type Round struct {
	Quarter int `json:"quarter"`
	Month   int `json:"month"`
}

// First reports whether this is the game's very first month, the only round
// that seeds working capital instead of carrying a prior balance forward.
func (r Round) First() bool {
	return r.Quarter == 1 && r.Month == 1
}

// Prev returns the immediately preceding round. ok is false at the game's
// first month.
func (r Round) Prev() (Round, bool) {
	if r.First() {
		return Round{}, false
	}
	if r.Month > 1 {
		return Round{Quarter: r.Quarter, Month: r.Month - 1}, true
	}
	return Round{Quarter: r.Quarter - 1, Month: 3}, true
}

// QuarterEnd reports whether this round is the quarter's third month, the
// only record liquidation may patch.
func (r Round) QuarterEnd() bool {
	return r.Month == 3
}

// RMBid is a team's monthly raw-material bid. One bid per (quarter, month,
// team); later submissions replace earlier ones. Rank and AllocatedVolume are
// zero until the allocation engine runs, after which the bid is frozen.
type RMBid struct {
	ID         string `json:"id" db:"id"`
	Quarter    int    `json:"quarter" db:"quarter"`
	Month      int    `json:"month" db:"month"`
	TeamID     int64  `json:"team_id" db:"team_id"`
	PricePaise int64  `json:"price_paise" db:"price_paise"`
	Volume     int64  `json:"volume" db:"volume"` // m³

	Rank            int   `json:"rank" db:"rank"`
	AllocatedVolume int64 `json:"allocated_volume" db:"allocated_volume"`
}

// CustomerBid is a team's ask for one customer in one month. Same upsert and
// freeze semantics as RMBid; Rank is per customer.
type CustomerBid struct {
	ID         string `json:"id" db:"id"`
	Quarter    int    `json:"quarter" db:"quarter"`
	Month      int    `json:"month" db:"month"`
	TeamID     int64  `json:"team_id" db:"team_id"`
	CustomerID string `json:"customer_id" db:"customer_id"`
	AskPrice   int64  `json:"ask_price_paise" db:"ask_price_paise"`
	AskQty     int64  `json:"ask_qty" db:"ask_qty"` // m³

	Rank            int   `json:"rank" db:"rank"`
	AllocatedVolume int64 `json:"allocated_volume" db:"allocated_volume"`
}

// FinancialRecord is one team's settled month: accrual P&L plus cash-basis
// treasury state. One record per (team, quarter, month). Recalculation
// replaces the whole record; the only other mutation is the quarter-end
// liquidation credit, applied exactly once to a month-3 record.
type FinancialRecord struct {
	ID      string `json:"id" db:"id"`
	TeamID  int64  `json:"team_id" db:"team_id"`
	Quarter int    `json:"quarter" db:"quarter"`
	Month   int    `json:"month" db:"month"`

	SalesVolume   int64 `json:"sales_volume" db:"sales_volume"`
	Revenue       int64 `json:"revenue_paise" db:"revenue_paise"`
	RMCostAccrued int64 `json:"rm_cost_paise" db:"rm_cost_paise"` // consumption + carrying + spot
	TMCost        int64 `json:"tm_cost_paise" db:"tm_cost_paise"`
	ProdCost      int64 `json:"prod_cost_paise" db:"prod_cost_paise"`
	OtherExpenses int64 `json:"expenses_paise" db:"expenses_paise"`
	EBITDA        int64 `json:"ebitda_paise" db:"ebitda_paise"`

	CashOpening int64 `json:"cash_opening_paise" db:"cash_opening_paise"`
	CashClosing int64 `json:"cash_closing_paise" db:"cash_closing_paise"`
	Receivables int64 `json:"receivables_paise" db:"receivables_paise"`
	Interest    int64 `json:"interest_paise" db:"interest_paise"`

	RMOpeningBalance int64 `json:"rm_opening_balance" db:"rm_opening_balance"`
	RMClosingBalance int64 `json:"rm_closing_balance" db:"rm_closing_balance"`
	ShortageVolume   int64 `json:"shortage_volume" db:"shortage_volume"`
	ShortageUnitCost int64 `json:"shortage_unit_cost_paise" db:"shortage_unit_cost_paise"`

	FleetCountEffective int `json:"fleet_count_effective" db:"fleet_count_effective"`
	ExtraFleetUnits     int `json:"extra_fleet_units" db:"extra_fleet_units"`

	// LiquidationCredit is non-zero only on a month-3 record after the
	// quarter's salvage sale. Already included in Revenue, EBITDA and
	// CashClosing; kept separate so the adjustment stays auditable.
	LiquidationCredit int64 `json:"liquidation_credit_paise" db:"liquidation_credit_paise"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
