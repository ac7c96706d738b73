package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/parleyhq/parley/internal/metrics"
	"github.com/parleyhq/parley/pkg/api"
	"github.com/parleyhq/parley/pkg/log"
)

var ErrNilEvent = errors.New("nil event")

// HandleEvent delivers an external event to the WAITING instance holding
// its token and resumes the step chain from there. Delivery is idempotent:
// an event whose token matches no waiting instance is logged and dropped,
// which also covers duplicates of an already-consumed token.
func (e *Engine) HandleEvent(
	ctx context.Context, ev *api.Event,
) (*api.Response, error) {
	if ev == nil {
		return nil, ErrNilEvent
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	for attempt := range turnAttempts {
		if attempt > 0 {
			metrics.RecordConflictRetry()
			slog.Warn("Version conflict, redelivering event",
				log.EventType(ev.Type), log.Token(ev.Token))
		}

		res, matched, err := e.dispatch(ctx, ev)
		switch {
		case err == nil && !matched:
			slog.Info("Event matched no waiting instance, dropped",
				log.EventType(ev.Type), log.UserID(ev.UserID),
				log.Token(ev.Token))
			metrics.RecordEvent(string(ev.Type), metrics.OutcomeDropped)
			return nil, nil
		case err == nil:
			metrics.RecordEvent(string(ev.Type), metrics.OutcomeResumed)
			return res, nil
		case !isConflict(err):
			metrics.RecordEvent(string(ev.Type), metrics.OutcomeError)
			return nil, err
		}
	}

	// the token was consumed while we raced; a duplicate delivery
	slog.Info("Event dropped after losing version race",
		log.EventType(ev.Type), log.UserID(ev.UserID), log.Token(ev.Token))
	metrics.RecordEvent(string(ev.Type), metrics.OutcomeDropped)
	return nil, nil
}

// dispatch performs one delivery attempt against freshly loaded state
func (e *Engine) dispatch(
	ctx context.Context, ev *api.Event,
) (*api.Response, bool, error) {
	instances, err := e.store.FindByUser(ctx, ev.UserID)
	if err != nil {
		return nil, false, err
	}
	in := waitingFor(instances, ev.Token)
	if in == nil {
		return nil, false, nil
	}

	wf, ok := e.registry.Workflow(in.Key.WorkflowID)
	if !ok {
		slog.Error("Waiting instance references unregistered workflow",
			log.WorkflowID(in.Key.WorkflowID), log.UserID(ev.UserID))
		return nil, false, nil
	}
	step, ok := e.registry.Step(in.CurrentStepID)
	if !ok {
		slog.Error("Waiting step not registered",
			log.StepID(in.CurrentStepID), log.WorkflowID(wf.ID))
		return nil, false, nil
	}
	es, ok := step.(api.EventStep)
	if !ok {
		slog.Error("Waiting step cannot receive events",
			log.StepID(step.ID()), log.EventType(ev.Type))
		return nil, false, nil
	}

	t := &turn{
		e:  e,
		wf: wf,
		in: in,
		// chain resumption past the event step sees an empty message
		msg: &api.Message{
			UserID:     ev.UserID,
			ReceivedAt: ev.ReceivedAt,
		},
		sess:     e.session(ctx, ev.UserID),
		response: &api.Response{},
		expected: in.Version,
		hops:     1,
	}

	res, err := executeOnEvent(ctx, es, ev, in.Context)
	if err != nil {
		if errors.Is(err, api.ErrEventUnhandled) {
			slog.Warn("Event not handled by waiting step",
				log.StepID(step.ID()), log.EventType(ev.Type))
			return nil, false, nil
		}
		slog.Error("Event handler failed",
			log.StepID(step.ID()), log.EventType(ev.Type),
			log.UserID(ev.UserID), slog.Any("context", in.Context),
			log.Error(err))
		return t.failEvent(ctx)
	}

	done, err := t.apply(ctx, res)
	if err != nil {
		if !isStepFault(err) {
			return nil, true, err
		}
		slog.Error("Event result rejected",
			log.StepID(step.ID()), log.EventType(ev.Type),
			slog.Any("context", in.Context), log.Error(err))
		return t.failEvent(ctx)
	}

	var out *api.Response
	if done {
		if err := t.persist(ctx); err != nil {
			return nil, true, err
		}
		out = t.response
	} else if out, err = t.run(ctx); err != nil {
		return nil, true, err
	}

	e.deliver(ctx, in.Key, out)
	return out, true, nil
}

// failEvent aborts the instance behind a broken event handler and pushes
// the apology out on the live channel
func (t *turn) failEvent(
	ctx context.Context,
) (*api.Response, bool, error) {
	out, err := t.abort(ctx, api.AbortStepFailed)
	if err != nil {
		return nil, true, err
	}
	t.e.deliver(ctx, t.in.Key, out)
	return out, true, nil
}

// deliver publishes an event-produced response on the notification hub and
// records it in the user's session transcript
func (e *Engine) deliver(
	ctx context.Context, key api.InstanceKey, res *api.Response,
) {
	if res.IsEmpty() {
		return
	}
	e.notifier.Publish(&api.Notification{
		UserID:     key.UserID,
		WorkflowID: key.WorkflowID,
		Response:   res,
	})
	if err := e.sessions.RecordAssistant(ctx, key.UserID, res); err != nil {
		slog.Warn("Assistant turn not recorded",
			log.UserID(key.UserID), log.Error(err))
	}
}

// waitingFor finds the WAITING instance holding the token. The expected
// event type recorded at suspension is advisory; failure and expiry
// variants of the awaited event reach the step through the same token.
func waitingFor(
	instances []*api.Instance, token api.Token,
) *api.Instance {
	for _, in := range instances {
		if in.Status == api.StatusWaiting && in.WaitToken == token {
			return in
		}
	}
	return nil
}
