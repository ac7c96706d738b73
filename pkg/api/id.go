package api

import (
	"fmt"
	"regexp"
	"strings"
)

type (
	// UserID uniquely identifies an end user across channels
	UserID string

	// WorkflowID uniquely identifies a workflow definition
	WorkflowID string

	// StepID uniquely identifies a step implementation
	StepID string

	// IntentID names a conversational intent produced by classification or
	// by a deterministic shortcut such as a quick-reply tap
	IntentID string

	// Token correlates a suspended workflow instance with a future external
	// event
	Token string

	// InstanceKey addresses one workflow instance. At most one non-terminal
	// instance exists per key
	InstanceKey struct {
		UserID     UserID     `json:"user_id"`
		WorkflowID WorkflowID `json:"workflow_id"`
	}
)

// InvalidIDChars matches characters not permitted in workflow and step IDs.
// Valid characters are: letters, digits, underscore, dot, hyphen, plus, space
var InvalidIDChars = regexp.MustCompile(`[^a-zA-Z0-9_.\-+ ]`)

// SanitizeID lowercases an ID, removes invalid characters, replaces spaces
// with underscores, and trims leading and trailing underscores
func SanitizeID[T ~string](id T) T {
	lower := strings.ToLower(string(id))
	sanitized := InvalidIDChars.ReplaceAllString(lower, "")
	sanitized = strings.ReplaceAll(sanitized, " ", "_")
	return T(strings.Trim(sanitized, "_"))
}

// NewInstanceKey creates an InstanceKey for the given user and workflow
func NewInstanceKey(userID UserID, workflowID WorkflowID) InstanceKey {
	return InstanceKey{UserID: userID, WorkflowID: workflowID}
}

func (k InstanceKey) String() string {
	return fmt.Sprintf("%s:%s", k.UserID, k.WorkflowID)
}
