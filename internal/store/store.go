// Package store defines the persistence interface for the simulation engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/mithai/sim-engine/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrAlreadyLiquidated is returned when a quarter's liquidation credit has
// already been applied to the record.
var ErrAlreadyLiquidated = errors.New("store: liquidation already applied")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Team roster ---

	// CreateTeam persists a new team.
	CreateTeam(ctx context.Context, team *model.Team) error

	// ListTeams returns all teams ordered by id.
	ListTeams(ctx context.Context) ([]model.Team, error)

	// SetTeamFleet updates a team's monthly fleet plan.
	SetTeamFleet(ctx context.Context, teamID int64, count int) error

	// --- Raw-material bids ---

	// UpsertRMBid creates or replaces the team's bid for the round.
	UpsertRMBid(ctx context.Context, bid *model.RMBid) error

	// RMBidsForRound returns all RM bids for one round.
	RMBidsForRound(ctx context.Context, round model.Round) ([]model.RMBid, error)

	// RMBidsForQuarter returns all RM bids across a quarter's months.
	RMBidsForQuarter(ctx context.Context, quarter int) ([]model.RMBid, error)

	// SetRMAllocation records a bid's rank and allocated volume.
	SetRMAllocation(ctx context.Context, round model.Round, teamID int64, rank int, allocated int64) error

	// --- Customer bids ---

	// UpsertCustomerBid creates or replaces the team's ask for one customer.
	UpsertCustomerBid(ctx context.Context, bid *model.CustomerBid) error

	// CustomerBidsForRound returns all customer bids for one round.
	CustomerBidsForRound(ctx context.Context, round model.Round) ([]model.CustomerBid, error)

	// SetCustomerAllocation records a customer bid's rank and allocated volume.
	SetCustomerAllocation(ctx context.Context, round model.Round, teamID int64, customerID string, rank int, allocated int64) error

	// CustomerSalesForQuarter returns total allocated sales volume per team
	// across a whole quarter.
	CustomerSalesForQuarter(ctx context.Context, quarter int) (map[int64]int64, error)

	// --- Financial records ---

	// ReplaceFinancialRecord deletes any prior record for the same
	// (team, quarter, month) and inserts the new one.
	ReplaceFinancialRecord(ctx context.Context, rec *model.FinancialRecord) error

	// FinancialRecord returns one team's record for a round.
	FinancialRecord(ctx context.Context, teamID int64, round model.Round) (*model.FinancialRecord, error)

	// RecordsForRound returns every team's record for one round.
	RecordsForRound(ctx context.Context, round model.Round) ([]model.FinancialRecord, error)

	// ListFinancialRecords returns every record in the game.
	ListFinancialRecords(ctx context.Context) ([]model.FinancialRecord, error)

	// ApplyLiquidation credits a team's month-3 record in place: revenue,
	// EBITDA and closing cash each increase by the credit, and the record's
	// liquidation field is set. A record that already carries a credit
	// returns ErrAlreadyLiquidated.
	ApplyLiquidation(ctx context.Context, teamID int64, quarter int, credit int64) error
}
