package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"bauchermatch/internal/core"
)

// EventType names what happened to the stored statements.
type EventType string

const (
	EventStatementProcessed EventType = "statement.processed"
	EventStatementDeleted   EventType = "statement.deleted"
	EventStatementsCleared  EventType = "statements.cleared"
)

// StatementEvent tells the export worker which years need to be rewritten.
// It carries only identifiers; the worker reads totals from the database.
type StatementEvent struct {
	Type      EventType  `json:"type"`
	ID        int64      `json:"id,omitempty"`
	Month     core.Month `json:"month,omitempty"`
	Years     []int      `json:"years"`
	Timestamp time.Time  `json:"timestamp"`
}

// NewStatementProcessed builds the event for a newly stored statement.
func NewStatementProcessed(s core.ProcessedStatement) *StatementEvent {
	return &StatementEvent{
		Type:      EventStatementProcessed,
		ID:        s.ID,
		Month:     s.Month,
		Years:     []int{s.Year},
		Timestamp: time.Now(),
	}
}

func NewStatementDeleted(id int64, year int) *StatementEvent {
	return &StatementEvent{
		Type:      EventStatementDeleted,
		ID:        id,
		Years:     []int{year},
		Timestamp: time.Now(),
	}
}

// NewStatementsCleared lists the years that held data before the clear.
func NewStatementsCleared(years []int) *StatementEvent {
	return &StatementEvent{
		Type:      EventStatementsCleared,
		Years:     years,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *StatementEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// StatementEventFromJSON decodes and validates a message body.
func StatementEventFromJSON(data []byte) (*StatementEvent, error) {
	var msg StatementEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Type {
	case EventStatementProcessed, EventStatementDeleted, EventStatementsCleared:
	default:
		return nil, fmt.Errorf("unknown event type %q", msg.Type)
	}
	for _, y := range msg.Years {
		if !core.ValidYear(y) {
			return nil, fmt.Errorf("event year %d: %w", y, core.ErrInvalidYear)
		}
	}
	return &msg, nil
}
