package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/CivStat/MetricBoard/internal/port/messagequeue"
)

// Event type constants for WebSocket messages.
const (
	EventTableCreated     = "table.created"
	EventTableChanged     = "table.changed"
	EventTableSubmitted   = "table.submitted"
	EventTableUnsubmitted = "table.unsubmitted"
	EventTableDeleted     = "table.deleted"
)

// TableEvent is broadcast on every table lifecycle change. Clients holding
// a local mirror of the document use Version to decide whether to re-fetch.
type TableEvent struct {
	MetricID  string `json:"metric_id"`
	SectorID  string `json:"sector_id"`
	TableName string `json:"table_name"`
	Version   int    `json:"version"`
	IsDraft   bool   `json:"is_draft"`
	Op        string `json:"op,omitempty"` // set for table.changed only
}

// EventForSubject maps a queue subject to its WebSocket event type.
// Unknown subjects map to "".
func EventForSubject(subject string) string {
	switch subject {
	case messagequeue.SubjectMetricCreated:
		return EventTableCreated
	case messagequeue.SubjectMetricChanged:
		return EventTableChanged
	case messagequeue.SubjectMetricSubmitted:
		return EventTableSubmitted
	case messagequeue.SubjectMetricUnsubmitted:
		return EventTableUnsubmitted
	case messagequeue.SubjectMetricDeleted:
		return EventTableDeleted
	default:
		return ""
	}
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
