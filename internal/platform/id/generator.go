package id

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates opaque IDs for audit records and job runs.
type Generator interface {
	NewID() (string, error)
}

type UUIDGenerator struct{}

func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{}
}

func (g *UUIDGenerator) NewID() (string, error) {
	v, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	return v.String(), nil
}

// Sequence hands out prefix-1, prefix-2, ... and is meant for tests.
type Sequence struct {
	Prefix string
	next   int
}

func (s *Sequence) NewID() (string, error) {
	s.next++
	return fmt.Sprintf("%s-%d", s.Prefix, s.next), nil
}
