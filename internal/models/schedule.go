package models

import "time"

// Frequency is the recurrence rule kind for a Schedule, per spec §3/§4.6.
type Frequency string

const (
	FrequencyOnce     Frequency = "ONCE"
	FrequencyInterval Frequency = "INTERVAL"
	FrequencyHourly   Frequency = "HOURLY"
	FrequencyDaily    Frequency = "DAILY"
	FrequencyWeekly   Frequency = "WEEKLY"
	FrequencyMonthly  Frequency = "MONTHLY"
	FrequencyCron     Frequency = "CRON"
)

// Schedule is a recurring submission rule evaluated by the Schedule Engine.
type Schedule struct {
	ScheduleID string    `gorm:"column:schedule_id;type:uuid;primaryKey" json:"schedule_id"`
	Name       string    `gorm:"column:name;not null" json:"name"`
	WorkflowID string    `gorm:"column:workflow_id;not null" json:"workflow_id"`
	Frequency  Frequency `gorm:"column:frequency;type:varchar(20);not null" json:"frequency"`

	CronExpr        string `gorm:"column:cron_expr" json:"cron_expr,omitempty"`
	IntervalSeconds int    `gorm:"column:interval_seconds" json:"interval_seconds,omitempty"`
	DayOfWeek       int    `gorm:"column:day_of_week" json:"day_of_week,omitempty"`
	DayOfMonth      int    `gorm:"column:day_of_month" json:"day_of_month,omitempty"`
	Hour            int    `gorm:"column:hour" json:"hour,omitempty"`
	Minute          int    `gorm:"column:minute" json:"minute,omitempty"`

	Priority int  `gorm:"column:priority;default:0" json:"priority"`
	Enabled  bool `gorm:"column:enabled;not null;default:true;index:idx_schedules_enabled_nextrun" json:"enabled"`

	LastRun        *time.Time `gorm:"column:last_run" json:"last_run,omitempty"`
	NextRun        *time.Time `gorm:"column:next_run;index:idx_schedules_enabled_nextrun" json:"next_run,omitempty"`
	RunCount       int64      `gorm:"column:run_count;not null;default:0" json:"run_count"`
	SuccessCount   int64      `gorm:"column:success_count;not null;default:0" json:"success_count"`
	FailureCount   int64      `gorm:"column:failure_count;not null;default:0" json:"failure_count"`

	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;autoUpdateTime" json:"updated_at"`
}

func (Schedule) TableName() string { return "schedules" }

// ExecutionOutcome is the recorded result of a schedule-fired submission.
type ExecutionOutcome string

const (
	OutcomeSubmitted    ExecutionOutcome = "SUBMITTED"
	OutcomeSubmitFailed ExecutionOutcome = "SUBMIT_FAILED"
	OutcomeCompleted    ExecutionOutcome = "COMPLETED"
	OutcomeFailed       ExecutionOutcome = "FAILED"
)

// ExecutionHistory is a bounded-retention record of one schedule firing.
type ExecutionHistory struct {
	HistoryID  uint             `gorm:"column:history_id;primaryKey;autoIncrement" json:"history_id"`
	ScheduleID string           `gorm:"column:schedule_id;not null;index:idx_history_schedule_started" json:"schedule_id"`
	JobID      string           `gorm:"column:job_id" json:"job_id,omitempty"`
	StartedAt  time.Time        `gorm:"column:started_at;not null;autoCreateTime;index:idx_history_schedule_started" json:"started_at"`
	Outcome    ExecutionOutcome `gorm:"column:outcome;type:varchar(20);not null" json:"outcome"`
	Detail     string           `gorm:"column:detail;type:text" json:"detail,omitempty"`
}

func (ExecutionHistory) TableName() string { return "execution_history" }
