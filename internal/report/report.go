// Package report provides read-only rollups over financial records:
// per-quarter and whole-game EBITDA totals and the team leaderboard. No
// state is owned here; callers pass in the records they want summarized.
package report

import (
	"sort"

	"github.com/mithai/sim-engine/internal/model"
)

// TeamStanding is one leaderboard row.
type TeamStanding struct {
	TeamID        int64  `json:"team_id"`
	TeamName      string `json:"team_name"`
	QuarterEBITDA int64  `json:"quarter_ebitda_paise"`
	TotalEBITDA   int64  `json:"total_ebitda_paise"`
}

// QuarterEBITDA sums a team's EBITDA over one quarter's records.
func QuarterEBITDA(records []model.FinancialRecord, teamID int64, quarter int) int64 {
	var total int64
	for _, rec := range records {
		if rec.TeamID == teamID && rec.Quarter == quarter {
			total += rec.EBITDA
		}
	}
	return total
}

// TotalEBITDA sums a team's EBITDA over all records.
func TotalEBITDA(records []model.FinancialRecord, teamID int64) int64 {
	var total int64
	for _, rec := range records {
		if rec.TeamID == teamID {
			total += rec.EBITDA
		}
	}
	return total
}

// Leaderboard builds standings for every team, sorted descending by
// total-game EBITDA. The sort is stable: ties keep the input team order.
func Leaderboard(records []model.FinancialRecord, teams []model.Team, quarter int) []TeamStanding {
	standings := make([]TeamStanding, 0, len(teams))
	for _, team := range teams {
		standings = append(standings, TeamStanding{
			TeamID:        team.ID,
			TeamName:      team.Name,
			QuarterEBITDA: QuarterEBITDA(records, team.ID, quarter),
			TotalEBITDA:   TotalEBITDA(records, team.ID),
		})
	}
	sort.SliceStable(standings, func(i, j int) bool {
		return standings[i].TotalEBITDA > standings[j].TotalEBITDA
	})
	return standings
}
