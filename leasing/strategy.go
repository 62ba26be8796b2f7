package leasing

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/soc-validation/boardfarm/common/configuration"
	"github.com/soc-validation/boardfarm/registry"
)

// AllocationStrategy decides the order in which candidate boards are tried
// during a matching pass. The matcher walks the arranged slice and takes the
// first board whose lock it wins, so the strategy fully determines placement
// whenever several boards are free.
type AllocationStrategy interface {
	Name() string

	// Arrange returns the candidates in the order they should be attempted.
	// The input slice is not modified.
	Arrange(candidates []*registry.BoardRecord) []*registry.BoardRecord
}

// NewAllocationStrategy resolves a strategy by its configuration name.
func NewAllocationStrategy(name string) (AllocationStrategy, error) {
	switch name {
	case configuration.StrategyFirstAvailable:
		return &firstAvailableStrategy{}, nil
	case configuration.StrategyLeastUsed:
		return &leastUsedStrategy{}, nil
	case configuration.StrategyRandom:
		return &randomStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown allocation strategy \"%s\"", name)
	}
}

// firstAvailableStrategy tries boards in ascending board-ID order. The
// default, because it is deterministic.
type firstAvailableStrategy struct{}

func (s *firstAvailableStrategy) Name() string {
	return configuration.StrategyFirstAvailable
}

func (s *firstAvailableStrategy) Arrange(candidates []*registry.BoardRecord) []*registry.BoardRecord {
	arranged := make([]*registry.BoardRecord, len(candidates))
	copy(arranged, candidates)

	sort.Slice(arranged, func(i, j int) bool {
		return arranged[i].ID() < arranged[j].ID()
	})

	return arranged
}

// leastUsedStrategy tries the board that has gone longest without a lease
// first, spreading wear across the fleet.
type leastUsedStrategy struct{}

func (s *leastUsedStrategy) Name() string {
	return configuration.StrategyLeastUsed
}

func (s *leastUsedStrategy) Arrange(candidates []*registry.BoardRecord) []*registry.BoardRecord {
	arranged := make([]*registry.BoardRecord, len(candidates))
	copy(arranged, candidates)

	sort.SliceStable(arranged, func(i, j int) bool {
		return arranged[i].LastUsed().Before(arranged[j].LastUsed())
	})

	return arranged
}

// randomStrategy shuffles the candidates.
type randomStrategy struct{}

func (s *randomStrategy) Name() string {
	return configuration.StrategyRandom
}

func (s *randomStrategy) Arrange(candidates []*registry.BoardRecord) []*registry.BoardRecord {
	arranged := make([]*registry.BoardRecord, len(candidates))
	copy(arranged, candidates)

	rand.Shuffle(len(arranged), func(i, j int) {
		arranged[i], arranged[j] = arranged[j], arranged[i]
	})

	return arranged
}
