// Package cluster partitions a fingerprint table into similarity clusters.
//
// The default Greedy strategy is a single pass over identifiers in
// lexicographic order. Each unassigned identifier becomes a seed and collects
// every other unassigned identifier whose similarity to the seed meets the
// threshold. Membership is judged against the seed only, so two images that
// are both close to a third may still land in different clusters. The
// Transitive strategy instead joins any chain of similar pairs.
package cluster

import (
	"fmt"
	"math"

	"imagedupes/internal/fingerprint"
)

// ErrPreconditionViolation is returned for invalid thresholds.
var ErrPreconditionViolation = fingerprint.ErrPreconditionViolation

// Cluster is a group of two or more identifiers. The first element is the
// seed the other members were compared against.
type Cluster []string

// Seed returns the first member of the cluster.
func (c Cluster) Seed() string {
	if len(c) == 0 {
		return ""
	}
	return c[0]
}

// Strategy selects the clustering policy.
type Strategy string

const (
	// Greedy compares every candidate against the cluster seed only.
	Greedy Strategy = "greedy"
	// Transitive merges chains of similar pairs (single linkage).
	Transitive Strategy = "transitive"
)

// ParseStrategy converts a flag value to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case Greedy, Transitive:
		return Strategy(s), nil
	case "":
		return Greedy, nil
	default:
		return "", fmt.Errorf("unknown clustering strategy %q (want greedy or transitive)", s)
	}
}

// Builder builds clusters from a fingerprint table
type Builder struct {
	strategy Strategy
}

// Option configures a Builder
type Option func(*Builder)

// WithStrategy sets the clustering strategy
func WithStrategy(s Strategy) Option {
	return func(b *Builder) {
		if s != "" {
			b.strategy = s
		}
	}
}

// NewBuilder creates a new Builder
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{strategy: Greedy}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Strategy returns the configured strategy
func (b *Builder) Strategy() Strategy {
	return b.strategy
}

// Build partitions table into clusters of identifiers whose similarity is at
// least threshold. threshold must lie in [0, 1]. Tables with fewer than two
// entries produce no clusters. Output is deterministic for a given table.
func (b *Builder) Build(table *fingerprint.Table, threshold float64) ([]Cluster, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	if table.Len() < 2 {
		return nil, nil
	}

	switch b.strategy {
	case Transitive:
		return transitive(table, threshold), nil
	case Greedy:
		return greedy(table, threshold), nil
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrPreconditionViolation, b.strategy)
	}
}

// Build runs the default greedy builder.
func Build(table *fingerprint.Table, threshold float64) ([]Cluster, error) {
	return NewBuilder().Build(table, threshold)
}

// ValidateThreshold checks that threshold is a fraction in [0, 1].
func ValidateThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return fmt.Errorf("%w: threshold %v outside [0, 1]", ErrPreconditionViolation, threshold)
	}
	return nil
}

// ThresholdFromPercent converts a CLI percentage (0-100) to a fraction.
func ThresholdFromPercent(percent int) (float64, error) {
	if percent < 0 || percent > 100 {
		return 0, fmt.Errorf("%w: threshold %d%% outside 0-100", ErrPreconditionViolation, percent)
	}
	return float64(percent) / 100, nil
}

// tableHashes returns the table's identifiers in order with their hashes.
func tableHashes(table *fingerprint.Table) ([]string, []uint64) {
	ids := table.IDs()
	hashes := make([]uint64, len(ids))
	for i, id := range ids {
		fp, _ := table.Get(id)
		hashes[i] = fp.Bits
	}
	return ids, hashes
}
