package settle

import "github.com/mithai/sim-engine/internal/model"

// LiquidationPrice returns the salvage valuation for a quarter's leftover
// raw material: the minimum bid price among all RM bids submitted for the
// quarter's third month, or 0 when nobody bid.
func LiquidationPrice(monthThreeBids []model.RMBid) int64 {
	var min int64
	for _, b := range monthThreeBids {
		if min == 0 || b.PricePaise < min {
			min = b.PricePaise
		}
	}
	return min
}

// RemainingRM returns the unsold raw-material volume a team carries out of a
// quarter: total allocated across the quarter minus total volume sold,
// clamped at zero (any excess of sales over supply was a spot purchase, not
// negative inventory).
func RemainingRM(totalAllocated, totalSold int64) int64 {
	remaining := totalAllocated - totalSold
	if remaining < 0 {
		return 0
	}
	return remaining
}

// LiquidationCredit values a team's leftover RM at the liquidation price.
// Zero remaining volume or a zero price yields no credit. The credit is
// applied in place to the team's third-month record: revenue, EBITDA and
// closing cash each increase by it. The store rejects a second application
// for the same quarter.
func LiquidationCredit(remaining, pricePaise int64) int64 {
	if remaining <= 0 || pricePaise <= 0 {
		return 0
	}
	return remaining * pricePaise
}
