// Package registry holds the immutable-at-runtime board catalog. Boards are
// loaded once from the validated inventory at startup; only their health and
// usage fields change afterwards, and only through the owning BoardRecord.
package registry

import (
	"sort"

	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"
	"github.com/elliotchance/orderedmap/v2"

	"github.com/soc-validation/boardfarm/common/configuration"
	"github.com/soc-validation/boardfarm/common/types"
)

// BoardRegistry is the read-mostly catalog of boards.
type BoardRegistry interface {
	// GetBoard returns the record for the given board ID, or
	// types.ErrBoardNotFound.
	GetBoard(boardID string) (*BoardRecord, error)

	// ListBoards returns all records for the given family, in inventory
	// order. Pass an empty family to list the whole fleet.
	ListBoards(family string) []*BoardRecord

	// HealthyBoards returns the family's records whose health state is
	// Healthy at the time of the call.
	HealthyBoards(family string) []*BoardRecord

	// HasFamily reports whether any board (healthy or not) belongs to the
	// given family.
	HasFamily(family string) bool

	// Families returns the distinct hardware families, sorted.
	Families() []string

	Size() int
}

type boardRegistryImpl struct {
	log logger.Logger

	boards   *orderedmap.OrderedMap[string, *BoardRecord]
	families map[string][]*BoardRecord
}

// NewBoardRegistry builds the registry from a validated inventory. The
// inventory's own Validate has already rejected duplicates and malformed
// entries, so construction cannot fail after that point.
func NewBoardRegistry(inventory *configuration.BoardInventory) BoardRegistry {
	r := &boardRegistryImpl{
		boards:   orderedmap.NewOrderedMap[string, *BoardRecord](),
		families: make(map[string][]*BoardRecord),
	}

	config.InitLogger(&r.log, r)

	for _, board := range inventory.Boards {
		record := newBoardRecord(board)
		r.boards.Set(board.BoardID, record)
		r.families[board.HardwareFamily] = append(r.families[board.HardwareFamily], record)
	}

	r.log.Info("BoardRegistry loaded %d board(s) across %d families.",
		r.boards.Len(), len(r.families))

	return r
}

func (r *boardRegistryImpl) GetBoard(boardID string) (*BoardRecord, error) {
	record, ok := r.boards.Get(boardID)
	if !ok {
		return nil, types.ErrBoardNotFound
	}

	return record, nil
}

func (r *boardRegistryImpl) ListBoards(family string) []*BoardRecord {
	if family == "" {
		records := make([]*BoardRecord, 0, r.boards.Len())
		for el := r.boards.Front(); el != nil; el = el.Next() {
			records = append(records, el.Value)
		}
		return records
	}

	members := r.families[family]
	records := make([]*BoardRecord, len(members))
	copy(records, members)

	return records
}

func (r *boardRegistryImpl) HealthyBoards(family string) []*BoardRecord {
	members := r.families[family]
	healthy := make([]*BoardRecord, 0, len(members))
	for _, record := range members {
		if record.HealthStatus() == types.BoardHealthy {
			healthy = append(healthy, record)
		}
	}

	return healthy
}

func (r *boardRegistryImpl) HasFamily(family string) bool {
	return len(r.families[family]) > 0
}

func (r *boardRegistryImpl) Families() []string {
	families := make([]string, 0, len(r.families))
	for family := range r.families {
		families = append(families, family)
	}
	sort.Strings(families)

	return families
}

func (r *boardRegistryImpl) Size() int {
	return r.boards.Len()
}
