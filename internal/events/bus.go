// Package events implements a best-effort event fan-out bus across
// orchestrator replicas, adapted from the teacher's
// pkg/storage/redis/queue_store.go — repurposed from Redis Streams used as
// authoritative queue state into Redis Pub/Sub used purely for
// observability and cache invalidation. Postgres remains the sole
// authoritative store for job/robot/schedule state; losing an event never
// loses data, only a cache-refresh or log-line opportunity.
package events

import "context"

// Kind names the event types published on the bus.
type Kind string

const (
	JobSubmitted  Kind = "job.submitted"
	JobClaimed    Kind = "job.claimed"
	JobStarted    Kind = "job.started"
	JobProgressed Kind = "job.progressed"
	JobCompleted  Kind = "job.completed"
	JobFailed     Kind = "job.failed"
	JobCancelled  Kind = "job.cancelled"
	JobRequeued   Kind = "job.requeued"
	RobotOnline   Kind = "robot.online"
	RobotOffline  Kind = "robot.offline"
	ScheduleFired Kind = "schedule.fired"
)

// Event is one fan-out message.
type Event struct {
	Kind    Kind                   `json:"kind"`
	JobID   string                 `json:"job_id,omitempty"`
	RobotID string                 `json:"robot_id,omitempty"`
	Attrs   map[string]interface{} `json:"attrs,omitempty"`
}

// Bus publishes events on a best-effort basis to interested subscribers.
// Implementations must never block job-lifecycle operations on delivery.
type Bus interface {
	Publish(ctx context.Context, ev Event)
	Subscribe(ctx context.Context) (<-chan Event, func(), error)
}
