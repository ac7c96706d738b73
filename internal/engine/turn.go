package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/parleyhq/parley/internal/metrics"
	"github.com/parleyhq/parley/internal/store"
	"github.com/parleyhq/parley/pkg/api"
	"github.com/parleyhq/parley/pkg/log"
)

type (
	// turnRoute is the routing decision for one inbound message: the
	// workflow that owns it, an optional preloaded instance, and the
	// intent that selected the workflow (empty under sticky routing)
	turnRoute struct {
		workflow *api.Workflow
		instance *api.Instance
		intent   api.IntentID
	}

	// turn runs one step chain against a single instance. The instance
	// is mutated in memory and persisted once at the end of the chain;
	// a jump additionally persists the completed source mid-chain.
	turn struct {
		e        *Engine
		wf       *api.Workflow
		in       *api.Instance
		msg      *api.Message
		sess     *api.Session
		response *api.Response
		expected int64
		hops     int
		isNew    bool
	}
)

// runTurn executes one routed turn, replaying it once from freshly loaded
// state if a version race is lost, and failing closed with an apology when
// the replay loses again or the store misbehaves
func (e *Engine) runTurn(
	ctx context.Context, route *turnRoute, msg *api.Message,
	sess *api.Session,
) *api.Response {
	started := time.Now()
	workflow := string(route.workflow.ID)

	preloaded := route.instance
	for attempt := range turnAttempts {
		if attempt > 0 {
			metrics.RecordConflictRetry()
			slog.Warn("Version conflict, replaying turn",
				log.WorkflowID(route.workflow.ID),
				log.UserID(msg.UserID))
			preloaded = nil
		}

		t, err := e.newTurn(ctx, route.workflow, preloaded, msg, sess)
		if err == nil {
			var res *api.Response
			if res, err = t.run(ctx); err == nil {
				metrics.RecordMessage(workflow, t.outcome(),
					time.Since(started).Seconds())
				return res
			}
		}
		if !isConflict(err) {
			slog.Error("Turn failed",
				log.WorkflowID(route.workflow.ID),
				log.UserID(msg.UserID), log.Error(err))
			metrics.RecordMessage(workflow, metrics.OutcomeError,
				time.Since(started).Seconds())
			return api.NewResponse(apologyText)
		}
	}

	slog.Error("Turn abandoned after conflict replay",
		log.WorkflowID(route.workflow.ID), log.UserID(msg.UserID))
	metrics.RecordMessage(workflow, metrics.OutcomeError,
		time.Since(started).Seconds())
	return api.NewResponse(apologyText)
}

// newTurn binds a turn to its instance, loading or creating one when the
// router did not supply it. A terminal instance at the key is replaced by
// a fresh one; the store finalizes the replacement on Create.
func (e *Engine) newTurn(
	ctx context.Context, wf *api.Workflow, preloaded *api.Instance,
	msg *api.Message, sess *api.Session,
) (*turn, error) {
	t := &turn{
		e:        e,
		wf:       wf,
		msg:      msg,
		sess:     sess,
		response: &api.Response{},
	}
	if preloaded != nil {
		t.in = preloaded
		t.expected = preloaded.Version
		return t, nil
	}

	key := api.NewInstanceKey(msg.UserID, wf.ID)
	loaded, err := e.store.Load(ctx, key)
	switch {
	case err == nil && !loaded.IsTerminal():
		t.in = loaded
		t.expected = loaded.Version
	case err == nil || errors.Is(err, store.ErrNotFound):
		t.in = api.NewInstance(key, wf.First(), e.Now())
		t.isNew = true
	default:
		return nil, err
	}
	return t, nil
}

// run drives the step chain until a step halts the turn, the instance
// terminates, or the chain exceeds its hop budget
func (t *turn) run(ctx context.Context) (*api.Response, error) {
	for {
		if t.hops >= t.e.cfg.MaxChainLength {
			slog.Error("Step chain exceeded hop budget",
				log.WorkflowID(t.wf.ID), log.UserID(t.in.Key.UserID),
				slog.Int("hops", t.hops))
			return t.abort(ctx, api.AbortChainOverflow)
		}
		t.hops++

		step, ok := t.e.registry.Step(t.in.CurrentStepID)
		if !ok {
			slog.Error("Current step not registered",
				log.StepID(t.in.CurrentStepID), log.WorkflowID(t.wf.ID))
			return t.abort(ctx, api.AbortStepFailed)
		}
		t.in = t.in.AppendHistory(step.ID(), t.e.Now())

		execStarted := time.Now()
		res, err := executeStep(ctx, step, t.msg, t.sess, t.in.Context)
		metrics.RecordStep(string(step.ID()),
			time.Since(execStarted).Seconds(), err != nil)
		if err != nil {
			slog.Error("Step execution failed",
				log.StepID(step.ID()), log.WorkflowID(t.wf.ID),
				log.UserID(t.in.Key.UserID),
				slog.Any("context", t.in.Context), log.Error(err))
			return t.abort(ctx, api.AbortStepFailed)
		}

		done, err := t.apply(ctx, res)
		if err != nil {
			if !isStepFault(err) {
				return nil, err
			}
			slog.Error("Step result rejected",
				log.StepID(step.ID()), log.WorkflowID(t.wf.ID),
				slog.Any("context", t.in.Context), log.Error(err))
			return t.abort(ctx, api.AbortStepFailed)
		}
		if done {
			break
		}
	}

	if err := t.persist(ctx); err != nil {
		return nil, err
	}
	return t.response, nil
}

// apply merges a step result into the turn and reports whether the chain
// is done. Jumps land the turn on a fresh instance and keep the chain
// going; continues either advance or complete the workflow.
func (t *turn) apply(ctx context.Context, res *api.StepResult) (bool, error) {
	if err := res.Validate(); err != nil {
		return false, err
	}
	t.in = t.in.MergeContext(res.Updates)
	if res.Response != nil {
		t.response = t.response.Merge(res.Response)
	}

	switch res.Action {
	case api.ActionRepeat:
		return true, nil

	case api.ActionContinue:
		return t.advance()

	case api.ActionWait:
		t.in = t.in.SetWait(res.WaitToken, res.WaitEvent, t.e.Now())
		return true, nil

	case api.ActionComplete:
		if err := t.finish(api.StatusCompleted); err != nil {
			return false, err
		}
		return true, nil

	case api.ActionAbort:
		if err := t.finish(api.StatusAborted); err != nil {
			return false, err
		}
		t.in = t.in.SetAbortReason(api.AbortRequested)
		return true, nil

	case api.ActionJump:
		return false, t.jump(ctx, res.Jump, res.Handoff)

	default:
		return false, fmt.Errorf("%w: %s", api.ErrInvalidAction, res.Action)
	}
}

// advance moves to the next step in definition order; continuing past the
// final step completes the workflow
func (t *turn) advance() (bool, error) {
	t.resume()
	next, ok := t.wf.NextStep(t.in.CurrentStepID)
	if !ok {
		if err := t.finish(api.StatusCompleted); err != nil {
			return false, err
		}
		return true, nil
	}
	t.in = t.in.SetCurrentStep(next)
	return false, nil
}

// jump completes the source instance, persists it, and replants the turn
// on a fresh instance of the target workflow with the handoff payload
// seeded under the reserved context key. Any live instance already holding
// the target key is displaced first.
func (t *turn) jump(
	ctx context.Context, target *api.JumpTarget, handoff map[string]any,
) error {
	wf, ok := t.e.registry.Workflow(target.WorkflowID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWorkflow, target.WorkflowID)
	}
	stepID := target.StepID
	if stepID == "" {
		stepID = wf.First()
	} else if !wf.ContainsStep(stepID) {
		return fmt.Errorf("%w: %s/%s", ErrStepNotFound, wf.ID, stepID)
	}

	if err := t.finish(api.StatusCompleted); err != nil {
		return err
	}
	if err := t.persist(ctx); err != nil {
		return err
	}

	key := api.NewInstanceKey(t.in.Key.UserID, wf.ID)
	if err := t.displace(ctx, key); err != nil {
		return err
	}

	fresh := api.NewInstance(key, stepID, t.e.Now())
	if len(handoff) > 0 {
		fresh = fresh.MergeContext(api.Context{api.HandoffKey: handoff})
	}
	t.wf = wf
	t.in = fresh
	t.isNew = true
	t.expected = 0
	return nil
}

// displace aborts a live instance occupying the jump target's key
func (t *turn) displace(ctx context.Context, key api.InstanceKey) error {
	existing, err := t.e.store.Load(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.IsTerminal() {
		return nil
	}

	slog.Info("Displacing live instance for jump",
		log.WorkflowID(key.WorkflowID), log.UserID(key.UserID),
		log.Status(existing.Status))
	displaced := existing.ClearWait().
		SetStatus(api.StatusAborted).
		SetAbortReason(api.AbortSuperseded).
		SetUpdatedAt(t.e.Now())
	_, err = t.e.store.Save(ctx, displaced, existing.Version)
	return err
}

// abort force-terminates the instance and answers with an apology. A
// version conflict still bubbles so the turn can replay; other persistence
// failures are logged and the apology stands.
func (t *turn) abort(
	ctx context.Context, reason api.AbortReason,
) (*api.Response, error) {
	if t.in.Status == api.StatusWaiting {
		t.in = t.in.ClearWait()
	}
	t.in = t.in.SetStatus(api.StatusAborted).SetAbortReason(reason)

	if err := t.persist(ctx); err != nil {
		if isConflict(err) {
			return nil, err
		}
		slog.Error("Aborted instance not persisted",
			log.WorkflowID(t.wf.ID), log.UserID(t.in.Key.UserID),
			log.Error(err))
	}
	return api.NewResponse(apologyText), nil
}

// outcome is the metrics label for the status the turn left behind
func (t *turn) outcome() string {
	return strings.ToLower(string(t.in.Status))
}

// resume lifts a waiting instance back to ACTIVE, consuming its wait state
func (t *turn) resume() {
	if t.in.Status != api.StatusWaiting {
		return
	}
	t.in = t.in.ClearWait().SetStatus(api.StatusActive)
}

func (t *turn) finish(status api.Status) error {
	t.resume()
	return t.setStatus(status)
}

func (t *turn) setStatus(status api.Status) error {
	if t.in.Status == status {
		return nil
	}
	if !instanceTransitions.CanTransition(t.in.Status, status) {
		return fmt.Errorf("%w: %s to %s",
			ErrInvalidTransition, t.in.Status, status)
	}
	t.in = t.in.SetStatus(status)
	return nil
}

// persist writes the instance through the store's optimistic concurrency
// gate and adopts the stored copy so later saves carry the right version
func (t *turn) persist(ctx context.Context) error {
	t.in = t.in.SetUpdatedAt(t.e.Now())
	if t.isNew {
		created, err := t.e.store.Create(ctx, t.in)
		if err != nil {
			return err
		}
		t.in = created
		t.isNew = false
		t.expected = created.Version
		return nil
	}

	saved, err := t.e.store.Save(ctx, t.in, t.expected)
	if err != nil {
		return err
	}
	t.in = saved
	t.expected = saved.Version
	return nil
}

// isConflict reports whether the error is a lost optimistic concurrency
// race, including a Create that collided with a concurrent writer
func isConflict(err error) bool {
	return errors.Is(err, store.ErrVersionConflict) ||
		errors.Is(err, store.ErrAlreadyExists)
}

// isStepFault reports whether the error indicts the step's result rather
// than the store, so the engine aborts the instance instead of replaying
func isStepFault(err error) bool {
	for _, fault := range []error{
		api.ErrResultNil,
		api.ErrInvalidAction,
		api.ErrJumpTargetMissing,
		api.ErrWaitTokenMissing,
		api.ErrWaitEventMissing,
		ErrUnknownWorkflow,
		ErrStepNotFound,
		ErrInvalidTransition,
	} {
		if errors.Is(err, fault) {
			return true
		}
	}
	return false
}

// executeStep invokes the step, converting a panic into an error so the
// turn aborts the instance instead of unwinding through the transport
func executeStep(
	ctx context.Context, step api.Step, msg *api.Message,
	sess *api.Session, wc api.Context,
) (res *api.StepResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrStepPanicked, r)
		}
	}()
	return step.Execute(ctx, msg, sess, wc)
}

// executeOnEvent is the event-side counterpart of executeStep
func executeOnEvent(
	ctx context.Context, step api.EventStep, ev *api.Event, wc api.Context,
) (res *api.StepResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrStepPanicked, r)
		}
	}()
	return step.OnEvent(ctx, ev, wc)
}
