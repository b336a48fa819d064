package bracket

import (
	"errors"
	"testing"
)

const validTable = `
series:
  SemiA:
    round: Conference Finals
    best_of: 3
    winner: {series: Finals, field: team1_id}
    loser: {series: Consolation, field: team2_id, seed: "4"}
  Consolation:
    round: Play-In
    best_of: 1
  Finals:
    round: Finals
    best_of: 7
`

func TestParse(t *testing.T) {
	t.Parallel()

	table, err := Parse([]byte(validTable))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	rule, ok := table.Rule("SemiA")
	if !ok {
		t.Fatalf("expected SemiA rule")
	}
	if rule.SeriesID != "SemiA" || rule.Round != "Conference Finals" || !rule.IsSeries() || rule.WinsNeeded() != 2 {
		t.Fatalf("unexpected rule: %+v", rule)
	}
	if rule.Winner == nil || rule.Winner.SeriesID != "Finals" || rule.Winner.SeedField() != "team1_seed" {
		t.Fatalf("unexpected winner slot: %+v", rule.Winner)
	}
	if rule.Loser == nil || rule.Loser.Seed != "4" || rule.Loser.SeedField() != "team2_seed" {
		t.Fatalf("unexpected loser slot: %+v", rule.Loser)
	}
	if finals, _ := table.Rule("Finals"); finals.WinsNeeded() != 4 {
		t.Fatalf("best of 7 needs 4 wins, got %d", finals.WinsNeeded())
	}
	if single, _ := table.Rule("Consolation"); single.IsSeries() || single.WinsNeeded() != 1 {
		t.Fatalf("unexpected single game rule: %+v", single)
	}
	if ids := table.SeriesIDs(); len(ids) != 3 || ids[0] != "Consolation" || ids[2] != "SemiA" {
		t.Fatalf("unexpected series ids: %v", ids)
	}
}

func TestParse_RejectsInvalidTables(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{
			name: "malformed yaml",
			raw:  "series: [",
		},
		{
			name: "no series",
			raw:  "series: {}",
		},
		{
			name: "even best_of",
			raw: `
series:
  A: {round: Round 1, best_of: 4}
`,
		},
		{
			name: "missing best_of",
			raw: `
series:
  A: {round: Round 1}
`,
		},
		{
			name: "unknown destination",
			raw: `
series:
  A:
    best_of: 1
    winner: {series: Nowhere, field: team1_id}
`,
		},
		{
			name: "routes into itself",
			raw: `
series:
  A:
    best_of: 3
    winner: {series: A, field: team1_id}
`,
		},
		{
			name: "bad slot field",
			raw: `
series:
  A:
    best_of: 1
    loser: {series: B, field: team3_id}
  B:
    best_of: 1
`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if _, err := Parse([]byte(tc.raw)); !errors.Is(err, ErrInvalidTable) {
				t.Fatalf("expected ErrInvalidTable, got %v", err)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	t.Parallel()

	table, err := Default()
	if err != nil {
		t.Fatalf("load default table: %v", err)
	}
	playIn, ok := table.Rule("W7vW8")
	if !ok || playIn.IsSeries() {
		t.Fatalf("unexpected W7vW8 rule: %+v", playIn)
	}
	if playIn.Winner == nil || playIn.Winner.SeriesID != "W2vW7" || playIn.Winner.Field != FieldTeam2 || playIn.Winner.Seed != "7" {
		t.Fatalf("unexpected W7vW8 winner slot: %+v", playIn.Winner)
	}
	if _, ok := table.Rule(FinalsSeriesID); !ok {
		t.Fatalf("default table has no %s series", FinalsSeriesID)
	}
}
