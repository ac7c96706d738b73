// Package events normalizes external event deliveries into engine
// dispatches. Two ingress adapters feed it: the HTTP webhook and an
// optional NATS subscriber
package events

import (
	"context"
	"strings"
	"time"

	"github.com/parleyhq/parley/internal/engine"
	"github.com/parleyhq/parley/pkg/api"
)

type (
	// Envelope is the adapter-independent wire form of an event. The
	// webhook adapter fills user and token from the request path; the
	// NATS adapter decodes the whole envelope from the message body
	Envelope struct {
		Type    api.EventType  `json:"type"`
		UserID  api.UserID     `json:"user_id"`
		Token   api.Token      `json:"token"`
		Payload map[string]any `json:"payload,omitempty"`
	}

	// Dispatcher validates and normalizes envelopes before handing them
	// to the engine. Idempotency lives below it: a duplicate delivery
	// finds no waiting instance and comes back (nil, nil)
	Dispatcher struct {
		engine *engine.Engine
	}
)

func NewDispatcher(e *engine.Engine) *Dispatcher {
	return &Dispatcher{engine: e}
}

// Event normalizes the envelope into the canonical form, stamping the
// receipt time. Gateways are sloppy about whitespace in echoed tokens
func (env *Envelope) Event(at time.Time) *api.Event {
	return &api.Event{
		Type:       api.EventType(strings.TrimSpace(string(env.Type))),
		UserID:     api.UserID(strings.TrimSpace(string(env.UserID))),
		Token:      api.Token(strings.TrimSpace(string(env.Token))),
		Payload:    env.Payload,
		ReceivedAt: at,
	}
}

// Dispatch hands one normalized event to the engine. A nil response
// with a nil error means the event matched nothing and was dropped
func (d *Dispatcher) Dispatch(
	ctx context.Context, env *Envelope,
) (*api.Response, error) {
	ev := env.Event(d.engine.Now())
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return d.engine.HandleEvent(ctx, ev)
}
