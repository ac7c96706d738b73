package api

import (
	"slices"
	"time"
)

type (
	// Status is the lifecycle state of a workflow instance
	Status string

	// AbortReason records why an instance was aborted
	AbortReason string

	// HistoryEntry records one step visit for diagnostics
	HistoryEntry struct {
		StepID StepID    `json:"step_id"`
		At     time.Time `json:"at"`
	}

	// Instance is the mutable runtime state of one workflow conversation.
	// All mutation happens through the engine's versioned read-modify-write
	// cycle; the Set* methods return copies and never modify the receiver
	Instance struct {
		Key           InstanceKey    `json:"key"`
		CurrentStepID StepID         `json:"current_step_id"`
		Context       Context        `json:"context"`
		Status        Status         `json:"status"`
		WaitToken     Token          `json:"wait_token,omitempty"`
		WaitEvent     EventType      `json:"wait_event,omitempty"`
		WaitingSince  time.Time      `json:"waiting_since,omitempty"`
		History       []HistoryEntry `json:"history,omitempty"`
		AbortReason   AbortReason    `json:"abort_reason,omitempty"`
		StaleNotified bool           `json:"stale_notified,omitempty"`
		Version       int64          `json:"version"`
		CreatedAt     time.Time      `json:"created_at"`
		UpdatedAt     time.Time      `json:"updated_at"`
	}
)

const (
	StatusActive    Status = "active"
	StatusWaiting   Status = "waiting"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
)

const (
	AbortStepFailed    AbortReason = "step_failed"
	AbortStaleWait     AbortReason = "stale_wait"
	AbortRequested     AbortReason = "step_requested"
	AbortChainOverflow AbortReason = "chain_overflow"
	AbortSuperseded    AbortReason = "superseded"
)

// NewInstance creates an ACTIVE instance positioned at the given step with
// an empty context
func NewInstance(key InstanceKey, stepID StepID, now time.Time) *Instance {
	return &Instance{
		Key:           key,
		CurrentStepID: stepID,
		Context:       Context{},
		Status:        StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// IsTerminal reports whether the instance has reached a final status
func (in *Instance) IsTerminal() bool {
	return in.Status == StatusCompleted || in.Status == StatusAborted
}

// SetStatus returns a new Instance with the updated status
func (in *Instance) SetStatus(s Status) *Instance {
	res := *in
	res.Status = s
	return &res
}

// SetCurrentStep returns a new Instance positioned at the given step
func (in *Instance) SetCurrentStep(id StepID) *Instance {
	res := *in
	res.CurrentStepID = id
	return &res
}

// MergeContext returns a new Instance with the updates merged into its
// context
func (in *Instance) MergeContext(updates Context) *Instance {
	res := *in
	res.Context = in.Context.Merge(updates)
	return &res
}

// SetWait returns a new WAITING Instance holding the token and the event
// type expected to resume it
func (in *Instance) SetWait(token Token, event EventType, now time.Time) *Instance {
	res := *in
	res.Status = StatusWaiting
	res.WaitToken = token
	res.WaitEvent = event
	res.WaitingSince = now
	return &res
}

// ClearWait returns a new Instance with its wait state consumed
func (in *Instance) ClearWait() *Instance {
	res := *in
	res.WaitToken = ""
	res.WaitEvent = ""
	res.WaitingSince = time.Time{}
	return &res
}

// SetAbortReason returns a new Instance with the abort reason recorded
func (in *Instance) SetAbortReason(reason AbortReason) *Instance {
	res := *in
	res.AbortReason = reason
	return &res
}

// SetStaleNotified returns a new Instance with the stale notice flag set
func (in *Instance) SetStaleNotified(notified bool) *Instance {
	res := *in
	res.StaleNotified = notified
	return &res
}

// SetUpdatedAt returns a new Instance with the update timestamp set
func (in *Instance) SetUpdatedAt(t time.Time) *Instance {
	res := *in
	res.UpdatedAt = t
	return &res
}

// AppendHistory returns a new Instance with a step visit recorded
func (in *Instance) AppendHistory(id StepID, at time.Time) *Instance {
	res := *in
	res.History = append(slices.Clone(in.History), HistoryEntry{
		StepID: id,
		At:     at,
	})
	return &res
}

// Visited reports whether the step appears in the instance history
func (in *Instance) Visited(id StepID) bool {
	return slices.ContainsFunc(in.History, func(h HistoryEntry) bool {
		return h.StepID == id
	})
}
