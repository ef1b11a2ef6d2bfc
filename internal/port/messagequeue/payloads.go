package messagequeue

import "time"

// MetricEventPayload is the message body published for every table
// lifecycle event on the metrics.* subjects.
type MetricEventPayload struct {
	MetricID  string    `json:"metric_id"`
	SectorID  string    `json:"sector_id"`
	TableName string    `json:"table_name"`
	Version   int       `json:"version"`
	IsDraft   bool      `json:"is_draft"`
	Op        string    `json:"op,omitempty"` // set for metrics.changed only
	ActorID   string    `json:"actor_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
