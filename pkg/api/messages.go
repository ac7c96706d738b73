package api

import "time"

type (
	// MessageRequest is the HTTP body for an inbound message
	MessageRequest struct {
		UserID UserID   `json:"user_id"`
		Text   string   `json:"text"`
		Intent IntentID `json:"intent,omitempty"`
	}

	// EventRequest is the HTTP body for an external event webhook; user and
	// token arrive in the path
	EventRequest struct {
		Type    EventType      `json:"type"`
		Payload map[string]any `json:"payload,omitempty"`
	}

	// MessageAccepted wraps the engine's response to a message
	MessageAccepted struct {
		Response *Response `json:"response"`
	}

	// EventAccepted reports the outcome of an event delivery. Status is
	// "resumed" when a waiting instance advanced and "ignored" otherwise
	EventAccepted struct {
		Status   string    `json:"status"`
		Response *Response `json:"response,omitempty"`
	}

	// WorkflowsListResponse lists the registered workflow definitions
	WorkflowsListResponse struct {
		Workflows []*Workflow `json:"workflows"`
		Count     int         `json:"count"`
	}

	// InstanceDigest provides summary information about one instance
	InstanceDigest struct {
		Key           InstanceKey `json:"key"`
		CurrentStepID StepID      `json:"current_step_id"`
		Status        Status      `json:"status"`
		Version       int64       `json:"version"`
		UpdatedAt     time.Time   `json:"updated_at"`
	}

	// InstancesListResponse lists a user's workflow instances
	InstancesListResponse struct {
		Instances []*InstanceDigest `json:"instances"`
		Count     int               `json:"count"`
	}

	// HealthResponse provides service health information
	HealthResponse struct {
		Service string `json:"service"`
		Version string `json:"version"`
		Status  string `json:"status"`
		Uptime  string `json:"uptime"`
	}

	// MessageResponse contains a simple message string
	MessageResponse struct {
		Message string `json:"message"`
	}

	// ErrorResponse contains error details for failed requests
	ErrorResponse struct {
		Error  string `json:"error"`
		Status int    `json:"status,omitempty"`
	}
)

const (
	// EventStatusResumed reports that an event advanced a waiting instance
	EventStatusResumed = "resumed"

	// EventStatusIgnored reports that an event matched no waiting instance
	// and was dropped
	EventStatusIgnored = "ignored"
)

// Digest summarizes an instance for listing endpoints
func (in *Instance) Digest() *InstanceDigest {
	return &InstanceDigest{
		Key:           in.Key,
		CurrentStepID: in.CurrentStepID,
		Status:        in.Status,
		Version:       in.Version,
		UpdatedAt:     in.UpdatedAt,
	}
}
