// Package models holds the persisted entities of the orchestrator's job
// lifecycle control plane. Field shapes follow the teacher's
// pkg/models/job.go (GORM struct tags, JSONB Scan/Value helpers); the
// vocabulary (status enum, retry bookkeeping, robot capacity fields) follows
// the orchestrator's own domain instead of the teacher's cron-job domain.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JobStatus is the lifecycle state of a Job, per the DAG in spec §8.
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobQueued    JobStatus = "QUEUED"
	JobClaimed   JobStatus = "CLAIMED"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
	JobCancelled JobStatus = "CANCELLED"
)

// IsTerminal reports whether status is one from which no further transition
// is possible under spec §8 invariant 3.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// Variables is the canonicalized key-to-scalar variable map carried with a
// job submission. Values are restricted to JSON scalars by convention; the
// orchestrator never interprets them beyond hashing for deduplication.
type Variables map[string]interface{}

func (v *Variables) Scan(value interface{}) error {
	if value == nil {
		*v = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("models: Variables.Scan: type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, v)
}

func (v Variables) Value() (driver.Value, error) {
	if v == nil {
		return "{}", nil
	}
	return json.Marshal(v)
}

// Tags is a small string slice persisted as JSON.
type Tags []string

func (t *Tags) Scan(value interface{}) error {
	if value == nil {
		*t = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("models: Tags.Scan: type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, t)
}

func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	return json.Marshal(t)
}

// Job is a single workflow execution request, the row described in spec §3.
type Job struct {
	JobID              string    `gorm:"column:job_id;type:uuid;primaryKey" json:"job_id"`
	WorkflowID         string    `gorm:"column:workflow_id;not null;index" json:"workflow_id"`
	WorkflowName       string    `gorm:"column:workflow_name" json:"workflow_name"`
	WorkflowDefinition string    `gorm:"column:workflow_definition;type:text" json:"workflow_definition"`
	Variables          Variables `gorm:"column:variables;type:jsonb" json:"variables"`
	TenantID           string    `gorm:"column:tenant_id;index" json:"tenant_id,omitempty"`
	Tags               Tags      `gorm:"column:tags;type:jsonb" json:"tags,omitempty"`
	AffinityKey        string    `gorm:"column:affinity_key;index" json:"affinity_key,omitempty"`
	Fingerprint        string    `gorm:"column:fingerprint;index" json:"-"`
	ScheduleID         string    `gorm:"column:schedule_id;index" json:"schedule_id,omitempty"`

	Priority     int       `gorm:"column:priority;not null;default:0" json:"priority"`
	VisibleAfter time.Time `gorm:"column:visible_after;not null;index" json:"visible_after"`
	CreatedAt    time.Time `gorm:"column:created_at;not null;autoCreateTime" json:"created_at"`

	Status      JobStatus  `gorm:"column:status;type:varchar(20);not null;default:'PENDING';index:idx_jobs_status_priority_created" json:"status"`
	RobotID     *string    `gorm:"column:robot_id;index:idx_jobs_robot_status" json:"robot_id,omitempty"`
	ClaimedAt   *time.Time `gorm:"column:claimed_at" json:"claimed_at,omitempty"`
	StartedAt   *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	Progress    int        `gorm:"column:progress;not null;default:0" json:"progress"`
	CurrentStep string     `gorm:"column:current_step" json:"current_step,omitempty"`

	RetryCount   int    `gorm:"column:retry_count;not null;default:0" json:"retry_count"`
	MaxRetries   int    `gorm:"column:max_retries;not null;default:5" json:"max_retries"`
	LastError    string `gorm:"column:last_error;type:text" json:"last_error,omitempty"`
	ErrorMessage string `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
}

func (Job) TableName() string { return "jobs" }

// DLQEntry is an immutable copy of a job that exhausted its retry budget.
type DLQEntry struct {
	JobID              string    `gorm:"column:job_id;type:uuid;primaryKey" json:"job_id"`
	WorkflowID         string    `gorm:"column:workflow_id" json:"workflow_id"`
	WorkflowName       string    `gorm:"column:workflow_name" json:"workflow_name"`
	WorkflowDefinition string    `gorm:"column:workflow_definition;type:text" json:"workflow_definition"`
	Variables          Variables `gorm:"column:variables;type:jsonb" json:"variables"`
	TenantID           string    `gorm:"column:tenant_id" json:"tenant_id,omitempty"`
	Tags               Tags      `gorm:"column:tags;type:jsonb" json:"tags,omitempty"`
	Priority           int       `gorm:"column:priority" json:"priority"`
	RetryCount         int       `gorm:"column:retry_count" json:"retry_count"`
	MaxRetries         int       `gorm:"column:max_retries" json:"max_retries"`
	CreatedAt          time.Time `gorm:"column:created_at" json:"created_at"`
	MovedAt            time.Time `gorm:"column:moved_at;not null;autoCreateTime;index" json:"moved_at"`
	FinalError         string    `gorm:"column:final_error;type:text" json:"final_error"`
	RetryHistory        string   `gorm:"column:retry_history;type:text" json:"retry_history,omitempty"`
}

func (DLQEntry) TableName() string { return "job_dlq" }

// CheckpointState is the resumability state of a Checkpoint, per spec §3.
type CheckpointState string

const (
	CheckpointPending   CheckpointState = "PENDING"
	CheckpointRunning   CheckpointState = "RUNNING"
	CheckpointCompleted CheckpointState = "COMPLETED"
	CheckpointFailed    CheckpointState = "FAILED"
)

// StepList is an ordered list of executed step identifiers.
type StepList []string

func (s *StepList) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("models: StepList.Scan: type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, s)
}

func (s StepList) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	return json.Marshal(s)
}

// Checkpoint is per-job resumable execution state, written by the robot
// executing a job and read by Recovery when that robot disappears.
type Checkpoint struct {
	WorkflowInstanceID string          `gorm:"column:workflow_instance_id;type:uuid;primaryKey" json:"workflow_instance_id"`
	State              CheckpointState `gorm:"column:state;type:varchar(20);not null" json:"state"`
	CurrentStep        int             `gorm:"column:current_step;not null;default:0" json:"current_step"`
	ExecutedNodes      StepList        `gorm:"column:executed_nodes;type:jsonb" json:"executed_nodes"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;not null;autoUpdateTime" json:"updated_at"`
}

func (Checkpoint) TableName() string { return "checkpoints" }
