package models

import "time"

// RobotStatus is the liveness/availability state of a Robot, per spec §3.
type RobotStatus string

const (
	RobotOnline      RobotStatus = "ONLINE"
	RobotBusy        RobotStatus = "BUSY"
	RobotOffline     RobotStatus = "OFFLINE"
	RobotFailed      RobotStatus = "FAILED"
	RobotMaintenance RobotStatus = "MAINTENANCE"
)

// Robot is an executor agent registered with the orchestrator.
type Robot struct {
	RobotID           string      `gorm:"column:robot_id;type:uuid;primaryKey" json:"robot_id"`
	Name              string      `gorm:"column:name;not null" json:"name"`
	Environment       string      `gorm:"column:environment" json:"environment,omitempty"`
	Tags              Tags        `gorm:"column:tags;type:jsonb" json:"tags,omitempty"`
	Status            RobotStatus `gorm:"column:status;type:varchar(20);not null;default:'ONLINE';index:idx_robots_status_heartbeat" json:"status"`
	CurrentJobCount   int         `gorm:"column:current_job_count;not null;default:0" json:"current_job_count"`
	MaxConcurrentJobs int         `gorm:"column:max_concurrent_jobs;not null;default:1" json:"max_concurrent_jobs"`
	LastHeartbeat     time.Time   `gorm:"column:last_heartbeat;not null;index:idx_robots_status_heartbeat" json:"last_heartbeat"`
	AffinityKey       string      `gorm:"column:affinity_key;index" json:"affinity_key,omitempty"`

	// Capacity hints reported at registration, detected with gopsutil on the
	// robot side. Used only to break LEAST_LOADED ties; never authoritative.
	TotalCPU      int    `gorm:"column:total_cpu" json:"total_cpu,omitempty"`
	TotalMemoryMB uint64 `gorm:"column:total_memory_mb" json:"total_memory_mb,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime" json:"created_at"`
}

func (Robot) TableName() string { return "robots" }

// Dispatchable reports whether r satisfies the predicate from spec §3:
// status in {ONLINE, BUSY}, under capacity, and heartbeat within T_hb.
func (r Robot) Dispatchable(now time.Time, heartbeatTimeout time.Duration) bool {
	if r.Status != RobotOnline && r.Status != RobotBusy {
		return false
	}
	if r.CurrentJobCount >= r.MaxConcurrentJobs {
		return false
	}
	return now.Sub(r.LastHeartbeat) < heartbeatTimeout
}

// Stale reports whether r's heartbeat has lapsed past heartbeatTimeout.
func (r Robot) Stale(now time.Time, heartbeatTimeout time.Duration) bool {
	return now.Sub(r.LastHeartbeat) > heartbeatTimeout
}
