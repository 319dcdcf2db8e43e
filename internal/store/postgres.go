package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mithai/sim-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as BIGINT paise for exact integer
// arithmetic.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateTeam(ctx context.Context, t *model.Team) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO teams (id, name, pin_code, fleet_base_count)
		 VALUES ($1, $2, $3, $4)`,
		t.ID, t.Name, t.PinCode, t.FleetBaseCount,
	)
	return err
}

func (s *PostgresStore) ListTeams(ctx context.Context) ([]model.Team, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, pin_code, fleet_base_count FROM teams ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teams []model.Team
	for rows.Next() {
		var t model.Team
		if err := rows.Scan(&t.ID, &t.Name, &t.PinCode, &t.FleetBaseCount); err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

func (s *PostgresStore) SetTeamFleet(ctx context.Context, teamID int64, count int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE teams SET fleet_base_count = $2 WHERE id = $1`, teamID, count)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("team %d: %w", teamID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) UpsertRMBid(ctx context.Context, b *model.RMBid) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO rm_bids (id, quarter, month, team_id, price_paise, volume, rank, allocated_volume)
		 VALUES ($1, $2, $3, $4, $5, $6, 0, 0)
		 ON CONFLICT (quarter, month, team_id)
		 DO UPDATE SET price_paise = $5, volume = $6, rank = 0, allocated_volume = 0`,
		b.ID, b.Quarter, b.Month, b.TeamID, b.PricePaise, b.Volume,
	)
	return err
}

func (s *PostgresStore) RMBidsForRound(ctx context.Context, round model.Round) ([]model.RMBid, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, quarter, month, team_id, price_paise, volume, rank, allocated_volume
		 FROM rm_bids WHERE quarter = $1 AND month = $2 ORDER BY team_id`,
		round.Quarter, round.Month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRMBids(rows)
}

func (s *PostgresStore) RMBidsForQuarter(ctx context.Context, quarter int) ([]model.RMBid, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, quarter, month, team_id, price_paise, volume, rank, allocated_volume
		 FROM rm_bids WHERE quarter = $1 ORDER BY month, team_id`, quarter)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRMBids(rows)
}

func (s *PostgresStore) SetRMAllocation(ctx context.Context, round model.Round, teamID int64, rank int, allocated int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE rm_bids SET rank = $4, allocated_volume = $5
		 WHERE quarter = $1 AND month = $2 AND team_id = $3`,
		round.Quarter, round.Month, teamID, rank, allocated)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rm bid q%d m%d team %d: %w", round.Quarter, round.Month, teamID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) UpsertCustomerBid(ctx context.Context, b *model.CustomerBid) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO customer_bids (id, quarter, month, team_id, customer_id, ask_price_paise, ask_qty, rank, allocated_volume)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 0)
		 ON CONFLICT (quarter, month, team_id, customer_id)
		 DO UPDATE SET ask_price_paise = $6, ask_qty = $7, rank = 0, allocated_volume = 0`,
		b.ID, b.Quarter, b.Month, b.TeamID, b.CustomerID, b.AskPrice, b.AskQty,
	)
	return err
}

func (s *PostgresStore) CustomerBidsForRound(ctx context.Context, round model.Round) ([]model.CustomerBid, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, quarter, month, team_id, customer_id, ask_price_paise, ask_qty, rank, allocated_volume
		 FROM customer_bids WHERE quarter = $1 AND month = $2
		 ORDER BY customer_id, team_id`,
		round.Quarter, round.Month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bids []model.CustomerBid
	for rows.Next() {
		var b model.CustomerBid
		if err := rows.Scan(&b.ID, &b.Quarter, &b.Month, &b.TeamID, &b.CustomerID,
			&b.AskPrice, &b.AskQty, &b.Rank, &b.AllocatedVolume); err != nil {
			return nil, err
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

func (s *PostgresStore) SetCustomerAllocation(ctx context.Context, round model.Round, teamID int64, customerID string, rank int, allocated int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE customer_bids SET rank = $5, allocated_volume = $6
		 WHERE quarter = $1 AND month = $2 AND team_id = $3 AND customer_id = $4`,
		round.Quarter, round.Month, teamID, customerID, rank, allocated)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("customer bid q%d m%d team %d %s: %w",
			round.Quarter, round.Month, teamID, customerID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) CustomerSalesForQuarter(ctx context.Context, quarter int) (map[int64]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT team_id, COALESCE(SUM(allocated_volume), 0)
		 FROM customer_bids WHERE quarter = $1 GROUP BY team_id`, quarter)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make(map[int64]int64)
	for rows.Next() {
		var teamID, sold int64
		if err := rows.Scan(&teamID, &sold); err != nil {
			return nil, err
		}
		sales[teamID] = sold
	}
	return sales, rows.Err()
}

func (s *PostgresStore) ReplaceFinancialRecord(ctx context.Context, r *model.FinancialRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO financials (
			id, team_id, quarter, month,
			sales_volume, revenue_paise, rm_cost_paise, tm_cost_paise, prod_cost_paise,
			expenses_paise, ebitda_paise,
			cash_opening_paise, cash_closing_paise, receivables_paise, interest_paise,
			rm_opening_balance, rm_closing_balance, shortage_volume, shortage_unit_cost_paise,
			fleet_count_effective, extra_fleet_units, liquidation_credit_paise, created_at
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		           $16, $17, $18, $19, $20, $21, $22, $23)
		 ON CONFLICT (team_id, quarter, month) DO UPDATE SET
			id = $1, sales_volume = $5, revenue_paise = $6, rm_cost_paise = $7,
			tm_cost_paise = $8, prod_cost_paise = $9, expenses_paise = $10,
			ebitda_paise = $11, cash_opening_paise = $12, cash_closing_paise = $13,
			receivables_paise = $14, interest_paise = $15, rm_opening_balance = $16,
			rm_closing_balance = $17, shortage_volume = $18, shortage_unit_cost_paise = $19,
			fleet_count_effective = $20, extra_fleet_units = $21,
			liquidation_credit_paise = $22, created_at = $23`,
		r.ID, r.TeamID, r.Quarter, r.Month,
		r.SalesVolume, r.Revenue, r.RMCostAccrued, r.TMCost, r.ProdCost,
		r.OtherExpenses, r.EBITDA,
		r.CashOpening, r.CashClosing, r.Receivables, r.Interest,
		r.RMOpeningBalance, r.RMClosingBalance, r.ShortageVolume, r.ShortageUnitCost,
		r.FleetCountEffective, r.ExtraFleetUnits, r.LiquidationCredit, r.CreatedAt,
	)
	return err
}

func (s *PostgresStore) FinancialRecord(ctx context.Context, teamID int64, round model.Round) (*model.FinancialRecord, error) {
	row := s.pool.QueryRow(ctx,
		financialSelect+` WHERE team_id = $1 AND quarter = $2 AND month = $3`,
		teamID, round.Quarter, round.Month)

	rec, err := scanFinancialRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("record team %d q%d m%d: %w", teamID, round.Quarter, round.Month, ErrNotFound)
		}
		return nil, err
	}
	return rec, nil
}

func (s *PostgresStore) RecordsForRound(ctx context.Context, round model.Round) ([]model.FinancialRecord, error) {
	rows, err := s.pool.Query(ctx,
		financialSelect+` WHERE quarter = $1 AND month = $2 ORDER BY team_id`,
		round.Quarter, round.Month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanFinancialRecords(rows)
}

func (s *PostgresStore) ListFinancialRecords(ctx context.Context) ([]model.FinancialRecord, error) {
	rows, err := s.pool.Query(ctx,
		financialSelect+` ORDER BY quarter, month, team_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanFinancialRecords(rows)
}

func (s *PostgresStore) ApplyLiquidation(ctx context.Context, teamID int64, quarter int, credit int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE financials
		 SET revenue_paise = revenue_paise + $3,
		     ebitda_paise = ebitda_paise + $3,
		     cash_closing_paise = cash_closing_paise + $3,
		     liquidation_credit_paise = $3
		 WHERE team_id = $1 AND quarter = $2 AND month = 3
		   AND liquidation_credit_paise = 0`,
		teamID, quarter, credit)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var existing int64
		err := s.pool.QueryRow(ctx,
			`SELECT liquidation_credit_paise FROM financials
			 WHERE team_id = $1 AND quarter = $2 AND month = 3`,
			teamID, quarter).Scan(&existing)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("record team %d q%d m3: %w", teamID, quarter, ErrNotFound)
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("record team %d q%d m3: %w", teamID, quarter, ErrAlreadyLiquidated)
	}
	return nil
}

const financialSelect = `SELECT id, team_id, quarter, month,
	sales_volume, revenue_paise, rm_cost_paise, tm_cost_paise, prod_cost_paise,
	expenses_paise, ebitda_paise,
	cash_opening_paise, cash_closing_paise, receivables_paise, interest_paise,
	rm_opening_balance, rm_closing_balance, shortage_volume, shortage_unit_cost_paise,
	fleet_count_effective, extra_fleet_units, liquidation_credit_paise, created_at
 FROM financials`

func scanRMBids(rows pgx.Rows) ([]model.RMBid, error) {
	var bids []model.RMBid
	for rows.Next() {
		var b model.RMBid
		if err := rows.Scan(&b.ID, &b.Quarter, &b.Month, &b.TeamID,
			&b.PricePaise, &b.Volume, &b.Rank, &b.AllocatedVolume); err != nil {
			return nil, err
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

func scanFinancialRecord(row pgx.Row) (*model.FinancialRecord, error) {
	var r model.FinancialRecord
	if err := row.Scan(&r.ID, &r.TeamID, &r.Quarter, &r.Month,
		&r.SalesVolume, &r.Revenue, &r.RMCostAccrued, &r.TMCost, &r.ProdCost,
		&r.OtherExpenses, &r.EBITDA,
		&r.CashOpening, &r.CashClosing, &r.Receivables, &r.Interest,
		&r.RMOpeningBalance, &r.RMClosingBalance, &r.ShortageVolume, &r.ShortageUnitCost,
		&r.FleetCountEffective, &r.ExtraFleetUnits, &r.LiquidationCredit, &r.CreatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func scanFinancialRecords(rows pgx.Rows) ([]model.FinancialRecord, error) {
	var recs []model.FinancialRecord
	for rows.Next() {
		rec, err := scanFinancialRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}
