package league

import (
	"fmt"
	"strconv"
	"strings"
)

type League string

const (
	Major League = "major"
	Minor League = "minor"
)

const (
	SeasonStatusActive    = "active"
	WeekSeasonComplete    = "Season Complete"
	minorCollectionPrefix = "minor_"
)

func All() []League {
	return []League{Major, Minor}
}

func Parse(raw string) (League, error) {
	switch League(strings.ToLower(strings.TrimSpace(raw))) {
	case Major, "":
		return Major, nil
	case Minor:
		return Minor, nil
	default:
		return "", fmt.Errorf("unknown league %q", raw)
	}
}

func (l League) Other() League {
	if l == Minor {
		return Major
	}
	return Minor
}

// Collection scopes a top-level collection name to the league.
func (l League) Collection(name string) string {
	if l == Minor {
		return minorCollectionPrefix + name
	}
	return name
}

type Season struct {
	ID           string `json:"id"`
	SeasonNumber int    `json:"season_number"`
	Status       string `json:"status"`
	CurrentWeek  string `json:"current_week"`
}

func (s Season) IsComplete() bool {
	return strings.EqualFold(strings.TrimSpace(s.CurrentWeek), WeekSeasonComplete)
}

// Number returns the numeric season, falling back to parsing ids like "S9".
func (s Season) Number() int {
	if s.SeasonNumber > 0 {
		return s.SeasonNumber
	}
	return SeasonNumberFromID(s.ID)
}

func SeasonNumberFromID(id string) int {
	trimmed := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(id)), "S")
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0
	}
	return n
}
