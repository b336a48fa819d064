package livescoring

import "time"

type FlowPoint struct {
	At           time.Time `json:"at"`
	Team1Total   float64   `json:"team1_total"`
	Team2Total   float64   `json:"team2_total"`
	Differential float64   `json:"differential"`
}

// GameFlow is the running score history of one live game. LastLeader is +1 when
// team1 last held the lead, -1 for team2 and 0 before anyone has led.
type GameFlow struct {
	GameID           string      `json:"game_id"`
	Points           []FlowPoint `json:"points"`
	LeadChanges      int         `json:"lead_changes"`
	Team1BiggestLead float64     `json:"team1_biggest_lead"`
	Team2BiggestLead float64     `json:"team2_biggest_lead"`
	LastLeader       int         `json:"last_leader"`
}

// Record appends a snapshot. A tie never ends a lead, so +5 -> 0 -> -3 counts one change.
func (f *GameFlow) Record(at time.Time, team1Total, team2Total float64) {
	diff := team1Total - team2Total
	f.Points = append(f.Points, FlowPoint{
		At:           at,
		Team1Total:   team1Total,
		Team2Total:   team2Total,
		Differential: diff,
	})

	sign := 0
	switch {
	case diff > 0:
		sign = 1
		if diff > f.Team1BiggestLead {
			f.Team1BiggestLead = diff
		}
	case diff < 0:
		sign = -1
		if -diff > f.Team2BiggestLead {
			f.Team2BiggestLead = -diff
		}
	}
	if sign == 0 {
		return
	}
	if f.LastLeader != 0 && sign != f.LastLeader {
		f.LeadChanges++
	}
	f.LastLeader = sign
}
