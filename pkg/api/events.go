package api

import (
	"errors"
	"time"
)

type (
	// EventType names a class of external event
	EventType string

	// Event is a normalized external occurrence targeting one suspended
	// workflow instance, identified by user and wait token
	Event struct {
		Type       EventType      `json:"type"`
		UserID     UserID         `json:"user_id"`
		Token      Token          `json:"token"`
		Payload    map[string]any `json:"payload,omitempty"`
		ReceivedAt time.Time      `json:"received_at"`
	}

	// Notification is a response produced without a synchronous requester,
	// published for delivery over the user's live channel
	Notification struct {
		UserID     UserID     `json:"user_id"`
		WorkflowID WorkflowID `json:"workflow_id"`
		Response   *Response  `json:"response"`
	}
)

const (
	EventPaymentCaptured EventType = "payment_captured"
	EventPaymentFailed   EventType = "payment_failed"
	EventPaymentExpired  EventType = "payment_expired"
)

var (
	ErrEventTypeEmpty  = errors.New("event type empty")
	ErrEventUserEmpty  = errors.New("event user ID empty")
	ErrEventTokenEmpty = errors.New("event token empty")
)

// Validate checks that the event carries everything dispatch requires
func (e *Event) Validate() error {
	if e.Type == "" {
		return ErrEventTypeEmpty
	}
	if e.UserID == "" {
		return ErrEventUserEmpty
	}
	if e.Token == "" {
		return ErrEventTokenEmpty
	}
	return nil
}

// PayloadString retrieves a string payload field, returning defaultValue if
// missing or wrong type
func (e *Event) PayloadString(key, defaultValue string) string {
	val, ok := e.Payload[key]
	if !ok {
		return defaultValue
	}
	str, ok := val.(string)
	if !ok {
		return defaultValue
	}
	return str
}
