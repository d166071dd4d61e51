package licence

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"licensing-controlplane/pkg/sequence"
)

const (
	NumberingRandom   = "random"
	NumberingSequence = "sequence"

	licenceNoSpace = 10000
)

// Numberer proposes licence numbers. Uniqueness is settled when the number
// is reserved, so a proposal may collide.
type Numberer interface {
	Next(ctx context.Context, year int) (string, error)
}

func FormatLicenceNo(year int, n int64) string {
	return fmt.Sprintf("LIC-%04d-%04d", year, n%licenceNoSpace)
}

type RandomNumberer struct{}

func (RandomNumberer) Next(_ context.Context, year int) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(licenceNoSpace))
	if err != nil {
		return "", fmt.Errorf("draw licence number: %w", err)
	}
	return FormatLicenceNo(year, n.Int64()), nil
}

// SequenceNumberer takes numbers from a per-year shared counter.
type SequenceNumberer struct {
	seq sequence.Generator
}

func NewSequenceNumberer(seq sequence.Generator) *SequenceNumberer {
	return &SequenceNumberer{seq: seq}
}

func (s *SequenceNumberer) Next(ctx context.Context, year int) (string, error) {
	n, err := s.seq.NextLicenceSequence(ctx, year)
	if err != nil {
		return "", err
	}
	return FormatLicenceNo(year, n), nil
}
