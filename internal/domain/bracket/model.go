package bracket

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// FinalsSeriesID names the championship series of every league.
const FinalsSeriesID = "Finals"

const (
	FieldTeam1 = "team1_id"
	FieldTeam2 = "team2_id"
)

var ErrInvalidTable = errors.New("invalid advancement table")

//go:embed advancement.yaml
var defaultTableYAML []byte

// Slot is a destination field on a downstream series.
type Slot struct {
	SeriesID string `yaml:"series"`
	Field    string `yaml:"field"`
	Seed     string `yaml:"seed,omitempty"`
}

// SeedField is the seed column paired with the slot's team column.
func (s Slot) SeedField() string {
	return strings.TrimSuffix(s.Field, "_id") + "_seed"
}

type Rule struct {
	SeriesID string `yaml:"-"`
	Round    string `yaml:"round"`
	BestOf   int    `yaml:"best_of"`
	Winner   *Slot  `yaml:"winner,omitempty"`
	Loser    *Slot  `yaml:"loser,omitempty"`
}

// IsSeries reports whether the rule describes a multi-game series.
func (r Rule) IsSeries() bool {
	return r.BestOf > 1
}

func (r Rule) WinsNeeded() int {
	if r.BestOf <= 1 {
		return 1
	}
	return r.BestOf/2 + 1
}

// Table is the validated, immutable tournament topology.
type Table struct {
	rules map[string]Rule
}

type tableFile struct {
	Series map[string]Rule `yaml:"series"`
}

func Parse(raw []byte) (Table, error) {
	var file tableFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return Table{}, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	if len(file.Series) == 0 {
		return Table{}, fmt.Errorf("%w: no series defined", ErrInvalidTable)
	}

	rules := make(map[string]Rule, len(file.Series))
	for id, rule := range file.Series {
		rule.SeriesID = id
		rules[id] = rule
	}

	t := Table{rules: rules}
	if err := t.validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}

var loadDefault = sync.OnceValues(func() (Table, error) {
	return Parse(defaultTableYAML)
})

// Default returns the embedded playoff topology, parsed once per process.
func Default() (Table, error) {
	return loadDefault()
}

func (t Table) Rule(seriesID string) (Rule, bool) {
	r, ok := t.rules[seriesID]
	return r, ok
}

func (t Table) SeriesIDs() []string {
	out := make([]string, 0, len(t.rules))
	for id := range t.rules {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (t Table) validate() error {
	for _, id := range t.SeriesIDs() {
		rule := t.rules[id]
		if rule.BestOf < 1 || rule.BestOf%2 == 0 {
			return fmt.Errorf("%w: series %s best_of must be a positive odd number", ErrInvalidTable, id)
		}
		for _, slot := range []*Slot{rule.Winner, rule.Loser} {
			if slot == nil {
				continue
			}
			if slot.SeriesID == id {
				return fmt.Errorf("%w: series %s routes into itself", ErrInvalidTable, id)
			}
			if _, ok := t.rules[slot.SeriesID]; !ok {
				return fmt.Errorf("%w: series %s routes into unknown series %s", ErrInvalidTable, id, slot.SeriesID)
			}
			if slot.Field != FieldTeam1 && slot.Field != FieldTeam2 {
				return fmt.Errorf("%w: series %s has invalid slot field %q", ErrInvalidTable, id, slot.Field)
			}
		}
	}
	return nil
}
