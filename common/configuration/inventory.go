package configuration

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/soc-validation/boardfarm/common/types"
)

const DefaultTelnetPort = 23

// BoardInventory is the static board catalog loaded from boards.yaml.
type BoardInventory struct {
	Boards []types.Board `yaml:"boards"`
}

// LoadBoardInventory reads and validates the board inventory file.
//
// Validation fails fast: a duplicate board ID, an empty board ID, or an empty
// hardware family is a fatal startup error, wrapped around
// types.ErrInvalidConfiguration.
func LoadBoardInventory(path string) (*BoardInventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(types.ErrInvalidConfiguration,
			"could not read board inventory file \"%s\": %v", path, err)
	}

	var inventory BoardInventory
	if err = yaml.Unmarshal(data, &inventory); err != nil {
		return nil, errors.Wrapf(types.ErrInvalidConfiguration,
			"could not parse board inventory file \"%s\": %v", path, err)
	}

	if err = inventory.Validate(); err != nil {
		return nil, err
	}

	return &inventory, nil
}

// Validate checks the inventory for malformed entries and fills in defaults
// (telnet port 23, healthy status) for fields the file omits.
func (inv *BoardInventory) Validate() error {
	seen := make(map[string]struct{}, len(inv.Boards))

	for i := range inv.Boards {
		board := &inv.Boards[i]

		if board.BoardID == "" {
			return errors.Wrapf(types.ErrInvalidConfiguration,
				"board at index %d has an empty board_id", i)
		}

		if board.HardwareFamily == "" {
			return errors.Wrapf(types.ErrInvalidConfiguration,
				"board \"%s\" has an empty hardware_family", board.BoardID)
		}

		if _, duplicate := seen[board.BoardID]; duplicate {
			return errors.Wrapf(types.ErrInvalidConfiguration,
				"duplicate board_id \"%s\"", board.BoardID)
		}
		seen[board.BoardID] = struct{}{}

		if board.TelnetPort == 0 {
			board.TelnetPort = DefaultTelnetPort
		}

		if board.HealthStatus == "" {
			board.HealthStatus = types.BoardHealthy
		} else if _, ok := types.ParseHealthStatus(string(board.HealthStatus)); !ok {
			return errors.Wrapf(types.ErrInvalidConfiguration,
				"board \"%s\" has unknown health_status \"%s\"", board.BoardID, board.HealthStatus)
		}
	}

	return nil
}

func (inv *BoardInventory) String() string {
	return fmt.Sprintf("BoardInventory[%d boards]", len(inv.Boards))
}
