package types

import (
	"time"
)

// HealthStatus describes whether a board is eligible for new leases.
type HealthStatus string

const (
	BoardHealthy     HealthStatus = "healthy"
	BoardQuarantined HealthStatus = "quarantined"
)

// ParseHealthStatus converts the wire/config representation of a health status
// into a HealthStatus, returning false if the value is not recognized.
func ParseHealthStatus(value string) (HealthStatus, bool) {
	switch HealthStatus(value) {
	case BoardHealthy:
		return BoardHealthy, true
	case BoardQuarantined:
		return BoardQuarantined, true
	default:
		return "", false
	}
}

// Board is a single physical test board from the static inventory.
//
// The identity fields (BoardID, HardwareFamily, BoardIP, TelnetPort, Location)
// are immutable once the inventory has been loaded. The health fields are
// mutated exclusively by the health tracker, under the owning record's
// per-board critical section.
type Board struct {
	BoardID        string `yaml:"board_id" json:"board_id"`
	HardwareFamily string `yaml:"hardware_family" json:"hardware_family"`
	BoardIP        string `yaml:"board_ip" json:"board_ip"`
	TelnetPort     int    `yaml:"telnet_port" json:"telnet_port"`
	Location       string `yaml:"location" json:"location"`

	HealthStatus        HealthStatus `yaml:"health_status" json:"health_status"`
	ConsecutiveFailures int          `yaml:"-" json:"consecutive_failures"`
	DailyFailureCount   int          `yaml:"-" json:"daily_failure_count"`
	LastFailureReset    time.Time    `yaml:"-" json:"last_failure_reset"`
	LastUsed            *time.Time   `yaml:"-" json:"last_used,omitempty"`
}

// InUse is not stored on the Board itself; board occupancy is owned by the
// distributed lock backend. BoardStatus is the snapshot shape returned by
// status queries, combining the two.
type BoardStatus struct {
	Board

	InUse          bool       `json:"in_use"`
	LeaseID        string     `json:"lease_id,omitempty"`
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`
}
