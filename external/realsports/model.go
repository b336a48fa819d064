package realsports

// rankedDaysEnvelope is the body of GET /rankeddays/{userID}.
type rankedDaysEnvelope struct {
	Days []rankedDay `json:"days"`
}

type rankedDay struct {
	Day   string   `json:"day"`
	Karma *float64 `json:"karma"`
	Rank  *int     `json:"rank"`
}
