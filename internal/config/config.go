// Package config holds the simulation rule book and process configuration.
//
// Rules are the fixed game constants: auction factor tables, cost tiers,
// transport capacity, seed capital, interest and carrying rates, bid caps.
// Defaults match the classic rule set; a YAML file can override them for
// custom games. Process settings (port, database, redis) come from the
// environment.
package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Env is the process environment configuration.
type Env struct {
	Port        string `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	RulesFile   string `env:"RULES_FILE"`
}

// ParseEnv loads process configuration from environment variables.
func ParseEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

// Customer is one entry of the fixed demand catalog. SharePct values across
// the catalog sum to 1.0. PayTermDays 0 means immediate cash; anything
// greater is recognized as a receivable.
type Customer struct {
	ID          string          `yaml:"id" json:"id"`
	Name        string          `yaml:"name" json:"name"`
	SharePct    decimal.Decimal `yaml:"share_pct" json:"share_pct"`
	PayTermDays int             `yaml:"pay_term_days" json:"pay_term_days"`
}

// CostTier is one step of the production cost ladder. Richer (cheaper) tiers
// apply only at or above their volume threshold.
type CostTier struct {
	MinVolume int64 `yaml:"min_volume" json:"min_volume"`
	RatePaise int64 `yaml:"rate_paise" json:"rate_paise"`
}

// Rules is the complete rule book for one game. All money is int64 paise;
// fractional rates are exact decimals applied with floor rounding.
type Rules struct {
	MonthsPerQuarter int `yaml:"months_per_quarter"`
	MaxQuarters      int `yaml:"max_quarters"`
	MinTeams         int `yaml:"min_teams"`
	MaxTeams         int `yaml:"max_teams"`

	// RM auction.
	RMMinBidPricePaise int64             `yaml:"rm_min_bid_price_paise"`
	RMMaxBidPricePaise int64             `yaml:"rm_max_bid_price_paise"`
	RMMaxBidVolume     int64             `yaml:"rm_max_bid_volume"`
	RMRankFactors      []decimal.Decimal `yaml:"rm_rank_factors"`

	// Customer auction.
	AskPriceCapPaise  int64      `yaml:"ask_price_cap_paise"`
	MarketUnitPerTeam int64      `yaml:"market_unit_per_team"` // m³ of monthly demand each team adds
	Customers         []Customer `yaml:"customers"`

	// Settlement.
	SeedCapitalPaise    int64           `yaml:"seed_capital_paise"`
	InterestRateMonthly decimal.Decimal `yaml:"interest_rate_monthly"`
	CarryingRate        decimal.Decimal `yaml:"carrying_rate"`
	SpotMarkup          decimal.Decimal `yaml:"spot_markup"` // multiplier, e.g. 1.10
	OtherExpensesPaise  int64           `yaml:"other_expenses_paise"`

	// Transport.
	FleetBaseUnitCostPaise  int64 `yaml:"fleet_base_unit_cost_paise"`
	FleetExtraUnitCostPaise int64 `yaml:"fleet_extra_unit_cost_paise"`
	FleetCapacityPerUnit    int64 `yaml:"fleet_capacity_per_unit"` // m³ per unit per month

	// Production.
	CostTiers []CostTier `yaml:"cost_tiers"`
}

// DefaultRules returns the classic rule book.
func DefaultRules() Rules {
	return Rules{
		MonthsPerQuarter: 3,
		MaxQuarters:      4,
		MinTeams:         2,
		MaxTeams:         5,

		RMMinBidPricePaise: 2500 * 100,
		RMMaxBidPricePaise: 5000 * 100,
		RMMaxBidVolume:     150000,
		RMRankFactors: []decimal.Decimal{
			decimal.NewFromFloat(1.00),
			decimal.NewFromFloat(0.90),
			decimal.NewFromFloat(0.80),
			decimal.NewFromFloat(0.70),
			decimal.NewFromFloat(0.40),
		},

		AskPriceCapPaise:  7000 * 100,
		MarketUnitPerTeam: 40000,
		Customers: []Customer{
			{ID: "LADDU", Name: "Laddu", SharePct: decimal.NewFromFloat(0.4), PayTermDays: 60},
			{ID: "SHAHI", Name: "Shahi-Poori Ji", SharePct: decimal.NewFromFloat(0.3), PayTermDays: 30},
			{ID: "LEMON", Name: "Lemon & Tea", SharePct: decimal.NewFromFloat(0.2), PayTermDays: 0},
			{ID: "JAMOON", Name: "Jamoon", SharePct: decimal.NewFromFloat(0.1), PayTermDays: 0},
		},

		SeedCapitalPaise:    100000000 * 100, // 10 Cr
		InterestRateMonthly: decimal.NewFromFloat(0.02),
		CarryingRate:        decimal.NewFromFloat(0.10),
		SpotMarkup:          decimal.NewFromFloat(1.10),
		OtherExpensesPaise:  500000 * 100,

		FleetBaseUnitCostPaise:  180000 * 100,
		FleetExtraUnitCostPaise: 250000 * 100,
		FleetCapacityPerUnit:    540, // 30 days * 3 trips * 6 m³

		CostTiers: []CostTier{
			{MinVolume: 40000, RatePaise: 300 * 100},
			{MinVolume: 30000, RatePaise: 400 * 100},
			{MinVolume: 20000, RatePaise: 500 * 100},
			{MinVolume: 10000, RatePaise: 600 * 100},
			{MinVolume: 0, RatePaise: 700 * 100},
		},
	}
}

// LoadRules reads a YAML rule file and overlays it on the defaults. An empty
// path returns the defaults unchanged.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read rules file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return Rules{}, fmt.Errorf("parse rules file: %w", err)
	}
	// Tier lookup walks richest-first; the file may list them in any order.
	sort.SliceStable(rules.CostTiers, func(i, j int) bool {
		return rules.CostTiers[i].MinVolume > rules.CostTiers[j].MinVolume
	})
	if err := rules.Validate(); err != nil {
		return Rules{}, err
	}
	return rules, nil
}

// Validate checks internal consistency of a rule book.
func (r Rules) Validate() error {
	if r.MonthsPerQuarter < 1 {
		return fmt.Errorf("rules: months_per_quarter must be positive")
	}
	if len(r.RMRankFactors) == 0 {
		return fmt.Errorf("rules: rm_rank_factors must not be empty")
	}
	if len(r.Customers) == 0 {
		return fmt.Errorf("rules: customers must not be empty")
	}
	shareSum := decimal.Zero
	for _, c := range r.Customers {
		shareSum = shareSum.Add(c.SharePct)
	}
	if !shareSum.Equal(decimal.NewFromInt(1)) {
		return fmt.Errorf("rules: customer shares must sum to 1.0, got %s", shareSum)
	}
	if len(r.CostTiers) == 0 || r.CostTiers[len(r.CostTiers)-1].MinVolume != 0 {
		return fmt.Errorf("rules: cost_tiers must end with a zero-threshold tier")
	}
	if r.FleetCapacityPerUnit <= 0 {
		return fmt.Errorf("rules: fleet_capacity_per_unit must be positive")
	}
	return nil
}

// CustomerByID looks up a catalog entry. ok is false for unknown ids.
func (r Rules) CustomerByID(id string) (Customer, bool) {
	for _, c := range r.Customers {
		if c.ID == id {
			return c, true
		}
	}
	return Customer{}, false
}

// ProductionRate returns the per-m³ production rate for a month's sales
// volume: the rate of the highest tier whose threshold does not exceed it.
func (r Rules) ProductionRate(salesVolume int64) int64 {
	for _, t := range r.CostTiers {
		if salesVolume >= t.MinVolume {
			return t.RatePaise
		}
	}
	return r.CostTiers[len(r.CostTiers)-1].RatePaise
}
