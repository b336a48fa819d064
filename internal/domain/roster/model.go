package roster

import (
	"bytes"
	"strconv"
)

type Team struct {
	ID         string `json:"team_id"`
	TeamName   string `json:"team_name,omitempty"`
	Conference string `json:"conference,omitempty"`
	GMHandle   string `json:"current_gm_handle,omitempty"`
}

type TeamSeasonRecord struct {
	TeamName  string  `json:"team_name"`
	Wins      int     `json:"wins"`
	Losses    int     `json:"losses"`
	SortScore float64 `json:"sortscore"`
}

type Player struct {
	ID            string `json:"player_id"`
	PlayerHandle  string `json:"player_handle"`
	CurrentTeamID string `json:"current_team_id"`
	PlayerStatus  string `json:"player_status,omitempty"`
}

type DraftPick struct {
	ID           string       `json:"pick_id"`
	Season       SeasonNumber `json:"season"`
	Round        int          `json:"round"`
	OriginalTeam string       `json:"original_team"`
	CurrentOwner string       `json:"current_owner"`
}

// SeasonNumber accepts both 10 and "10"; older pick documents stored strings.
type SeasonNumber int

func (n *SeasonNumber) UnmarshalJSON(raw []byte) error {
	raw = bytes.Trim(bytes.TrimSpace(raw), `"`)
	if len(raw) == 0 || string(raw) == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.Atoi(string(raw))
	if err != nil {
		return err
	}
	*n = SeasonNumber(v)
	return nil
}
