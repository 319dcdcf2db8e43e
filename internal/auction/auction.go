// Package auction implements the two allocation primitives of the simulation:
// ranked rationing of the constrained raw-material supply and demand-filling
// price auctions for customer volume.
//
// Both allocators are pure functions over their input slice: no validation,
// no side effects, deterministic output. Callers validate bids before
// invoking and persist the results afterwards.
//
// All monetary values are int64 paise. Fractional allocation factors are
// shopspring/decimal and applied with floor rounding — never float64.
package auction

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"
)

var (
	// ErrRankGap is returned by CheckRanks when allocation ranks are not a
	// dense 1..N permutation. Indicates an allocator bug; the whole batch
	// must be discarded.
	ErrRankGap = errors.New("auction: ranks are not a dense 1..N permutation")

	// ErrNegativeAllocation is returned by CheckRanks when any allocated
	// volume is negative. Same fatal semantics as ErrRankGap.
	ErrNegativeAllocation = errors.New("auction: negative allocated volume")
)

// RMBidInput is one team's raw-material bid as seen by the allocator.
type RMBidInput struct {
	TeamID     int64
	PricePaise int64
	Volume     int64 // m³ requested
}

// RMResult is the allocation outcome for one RM bid.
type RMResult struct {
	TeamID          int64
	PricePaise      int64
	Volume          int64
	Rank            int // 1-based, dense
	Factor          decimal.Decimal
	AllocatedVolume int64
}

// AllocateRM ranks bids by descending price (ties broken by ascending team
// id) and rations each bid by the factor table entry for its rank. A rank
// beyond the table reuses the last entry. Allocated volume is
// floor(volume × factor).
func AllocateRM(bids []RMBidInput, factors []decimal.Decimal) []RMResult {
	sorted := make([]RMBidInput, len(bids))
	copy(sorted, bids)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].PricePaise != sorted[j].PricePaise {
			return sorted[i].PricePaise > sorted[j].PricePaise
		}
		return sorted[i].TeamID < sorted[j].TeamID
	})

	results := make([]RMResult, 0, len(sorted))
	for i, bid := range sorted {
		factor := factors[len(factors)-1]
		if i < len(factors) {
			factor = factors[i]
		}
		allocated := decimal.NewFromInt(bid.Volume).Mul(factor).Floor().IntPart()

		results = append(results, RMResult{
			TeamID:          bid.TeamID,
			PricePaise:      bid.PricePaise,
			Volume:          bid.Volume,
			Rank:            i + 1,
			Factor:          factor,
			AllocatedVolume: allocated,
		})
	}
	return results
}

// CustomerBidInput is one team's ask for a single customer.
type CustomerBidInput struct {
	TeamID   int64
	AskPrice int64
	AskQty   int64 // m³ offered
}

// CustomerResult is the auction outcome for one customer bid.
type CustomerResult struct {
	TeamID          int64
	AskPrice        int64
	AskQty          int64
	Rank            int // 1-based, per customer
	AllocatedVolume int64
}

// AllocateCustomer runs one customer's single-good auction: bids sorted by
// ascending ask price (ties broken by ascending team id) fill the fixed
// demand greedily. Each bid receives min(askQty, remaining demand); once
// demand is exhausted every later bid receives zero. Must be invoked
// independently per customer.
func AllocateCustomer(bids []CustomerBidInput, demand int64) []CustomerResult {
	sorted := make([]CustomerBidInput, len(bids))
	copy(sorted, bids)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].AskPrice != sorted[j].AskPrice {
			return sorted[i].AskPrice < sorted[j].AskPrice
		}
		return sorted[i].TeamID < sorted[j].TeamID
	})

	remaining := demand
	results := make([]CustomerResult, 0, len(sorted))
	for i, bid := range sorted {
		var allocated int64
		if remaining > 0 {
			allocated = bid.AskQty
			if allocated > remaining {
				allocated = remaining
			}
			remaining -= allocated
		}
		results = append(results, CustomerResult{
			TeamID:          bid.TeamID,
			AskPrice:        bid.AskPrice,
			AskQty:          bid.AskQty,
			Rank:            i + 1,
			AllocatedVolume: allocated,
		})
	}
	return results
}

// Demand returns one customer's fixed demand for a month:
// floor(teamCount × marketUnitPerTeam × sharePct).
func Demand(teamCount int, marketUnitPerTeam int64, sharePct decimal.Decimal) int64 {
	total := decimal.NewFromInt(int64(teamCount) * marketUnitPerTeam)
	return total.Mul(sharePct).Floor().IntPart()
}

// ranked is satisfied by both allocation result types.
type ranked interface {
	rank() int
	allocated() int64
}

func (r RMResult) rank() int              { return r.Rank }
func (r RMResult) allocated() int64       { return r.AllocatedVolume }
func (r CustomerResult) rank() int        { return r.Rank }
func (r CustomerResult) allocated() int64 { return r.AllocatedVolume }

// CheckRMRanks validates an RM allocation batch against the rank invariants.
func CheckRMRanks(results []RMResult) error {
	rs := make([]ranked, len(results))
	for i, r := range results {
		rs[i] = r
	}
	return checkRanks(rs)
}

// CheckCustomerRanks validates one customer's auction batch against the rank
// invariants.
func CheckCustomerRanks(results []CustomerResult) error {
	rs := make([]ranked, len(results))
	for i, r := range results {
		rs[i] = r
	}
	return checkRanks(rs)
}

// checkRanks enforces the allocator post-conditions: ranks form a dense
// 1..N permutation and no allocation is negative.
func checkRanks(results []ranked) error {
	seen := make([]bool, len(results))
	for _, r := range results {
		if r.allocated() < 0 {
			return ErrNegativeAllocation
		}
		rk := r.rank()
		if rk < 1 || rk > len(results) || seen[rk-1] {
			return ErrRankGap
		}
		seen[rk-1] = true
	}
	return nil
}
