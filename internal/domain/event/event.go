package event

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a domain event emitted around workflow transitions and
// SLA escalations. Delivery is best-effort; events never participate in the
// transition transaction.
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	CaseID        string                 `json:"case_id"`
	Category      string                 `json:"category"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates a new domain event with auto-generated ID and timestamp
func NewEvent(eventType Type, caseID, category string, payload map[string]interface{}) *Event {
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		CaseID:        caseID,
		Category:      category,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: uuid.NewString(),
	}
}

// NewEventWithCorrelation creates an event linked to a correlation chain
func NewEventWithCorrelation(eventType Type, caseID, category string, payload map[string]interface{}, correlationID string) *Event {
	evt := NewEvent(eventType, caseID, category, payload)
	evt.CorrelationID = correlationID
	return evt
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
