// Package engine drives workflow conversations: it routes inbound messages
// to workflow instances, runs step chains against the versioned instance
// store, dispatches external events to waiting instances, and sweeps waits
// that outlived their TTL.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/intent"
	"github.com/parleyhq/parley/internal/metrics"
	"github.com/parleyhq/parley/internal/session"
	"github.com/parleyhq/parley/internal/store"
	"github.com/parleyhq/parley/pkg/api"
	"github.com/parleyhq/parley/pkg/log"
)

type (
	// Engine is the core workflow orchestrator
	Engine struct {
		registry   *Registry
		store      store.Store
		sessions   *session.Manager
		classifier intent.Classifier
		notifier   *Notifier
		cfg        *config.Config
		clock      Clock
		ctx        context.Context
		cancel     context.CancelFunc
		wg         sync.WaitGroup
	}

	// Clock produces the engine's wall time; tests swap it out
	Clock func() time.Time

	// Option configures an Engine at construction
	Option func(*Engine)
)

var (
	ErrNilMessage      = errors.New("nil message")
	ErrStepPanicked    = errors.New("step panicked")
	ErrMissingUser     = errors.New("message has no user")
	ErrNoFallback      = errors.New("no workflow routes the unknown intent")
	ErrShutdownTimeout = errors.New("shutdown timeout exceeded")
)

// turnAttempts bounds how often a turn is replayed after losing a version
// race before the engine fails closed
const turnAttempts = 2

const apologyText = "Sorry, something went wrong on my side. " +
	"Mind sending that again?"

// WithClock overrides the engine's time source
func WithClock(clock Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithNotifier overrides the engine's outbound notification hub
func WithNotifier(n *Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

// New creates an engine over the given registry, instance store, session
// manager, and intent classifier
func New(
	reg *Registry, st store.Store, sessions *session.Manager,
	classifier intent.Classifier, cfg *config.Config, opts ...Option,
) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		registry:   reg,
		store:      st,
		sessions:   sessions,
		classifier: classifier,
		cfg:        cfg,
		clock:      time.Now,
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.notifier == nil {
		e.notifier = NewNotifier(cfg.NotifyBuffer)
	}
	return e
}

// Start freezes the registry and begins the background sweeper
func (e *Engine) Start() {
	slog.Info("Engine starting",
		slog.Int("workflows", len(e.registry.Workflows())))

	e.registry.Freeze()
	e.wg.Go(e.sweepLoop)
}

// Stop gracefully shuts down the engine
func (e *Engine) Stop() error {
	e.cancel()
	defer e.notifier.Close()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Engine stopped")
		return nil
	case <-time.After(e.cfg.ShutdownTimeout):
		return ErrShutdownTimeout
	}
}

// Now returns the current wall time from the engine's configured clock
func (e *Engine) Now() time.Time {
	return e.clock()
}

// Registry exposes the engine's workflow registry for read access
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Notifier exposes the engine's outbound notification hub
func (e *Engine) Notifier() *Notifier {
	return e.notifier
}

// Instances returns every retained instance for the user
func (e *Engine) Instances(
	ctx context.Context, userID api.UserID,
) ([]*api.Instance, error) {
	return e.store.FindByUser(ctx, userID)
}

// HandleMessage routes one inbound message to a workflow instance, runs its
// step chain, and returns the accumulated response. Routing prefers the
// user's most recently updated ACTIVE instance; only when none exists does
// the classifier get a say.
func (e *Engine) HandleMessage(
	ctx context.Context, msg *api.Message,
) (*api.Response, error) {
	if msg == nil {
		return nil, ErrNilMessage
	}
	if msg.UserID == "" {
		return nil, ErrMissingUser
	}

	instances, err := e.store.FindByUser(ctx, msg.UserID)
	if err != nil {
		return nil, err
	}
	notice := e.consumeStaleNotices(ctx, instances)

	sess := e.session(ctx, msg.UserID)
	route, err := e.route(ctx, msg, sess, instances)
	if err != nil {
		return nil, err
	}

	if updated, err := e.sessions.RecordUser(
		ctx, msg, route.intent,
	); err == nil {
		sess = updated
	} else {
		slog.Warn("User turn not recorded",
			log.UserID(msg.UserID), log.Error(err))
	}

	res := e.runTurn(ctx, route, msg, sess)
	if notice != nil {
		res = notice.Merge(res)
	}

	if err := e.sessions.RecordAssistant(ctx, msg.UserID, res); err != nil {
		slog.Warn("Assistant turn not recorded",
			log.UserID(msg.UserID), log.Error(err))
	}
	return res, nil
}

// route decides which workflow owns the message. Deterministic shortcuts
// win outright; otherwise an ACTIVE instance keeps the conversation, then
// a WAITING one replays its reminder; only then is the classifier
// consulted, with its failures collapsing to the unknown-intent fallback
// workflow.
func (e *Engine) route(
	ctx context.Context, msg *api.Message, sess *api.Session,
	instances []*api.Instance,
) (*turnRoute, error) {
	if intentID, ok := intent.Shortcut(msg); ok {
		if wf, ok := e.registry.WorkflowForIntent(intentID); ok {
			metrics.RecordRouting(metrics.SourceShortcut)
			return &turnRoute{
				workflow: wf,
				instance: liveInstance(instances, wf.ID),
				intent:   intentID,
			}, nil
		}
		slog.Warn("Shortcut intent routes nowhere",
			log.Intent(intentID), log.UserID(msg.UserID))
	}

	if in := mostRecentActive(instances); in != nil {
		if wf, ok := e.registry.Workflow(in.Key.WorkflowID); ok {
			metrics.RecordRouting(metrics.SourceSticky)
			return &turnRoute{workflow: wf, instance: in}, nil
		}
		// definition vanished across a deploy; the instance is
		// unrecoverable, so let classification take over
		slog.Error("Instance references unregistered workflow",
			log.WorkflowID(in.Key.WorkflowID), log.UserID(msg.UserID))
	}

	if in := mostRecentWaiting(instances); in != nil {
		if wf, ok := e.registry.Workflow(in.Key.WorkflowID); ok {
			metrics.RecordRouting(metrics.SourceSticky)
			return &turnRoute{workflow: wf, instance: in}, nil
		}
		slog.Error("Instance references unregistered workflow",
			log.WorkflowID(in.Key.WorkflowID), log.UserID(msg.UserID))
	}

	intentID := e.classify(ctx, msg, sess)
	wf, ok := e.registry.WorkflowForIntent(intentID)
	if ok {
		metrics.RecordRouting(metrics.SourceClassifier)
	} else {
		wf, ok = e.registry.WorkflowForIntent(intent.Unknown)
		if !ok {
			return nil, ErrNoFallback
		}
		metrics.RecordRouting(metrics.SourceFallback)
	}
	return &turnRoute{
		workflow: wf,
		instance: liveInstance(instances, wf.ID),
		intent:   intentID,
	}, nil
}

func (e *Engine) classify(
	ctx context.Context, msg *api.Message, sess *api.Session,
) api.IntentID {
	intentID, err := e.classifier.Classify(ctx, msg, sess)
	if err != nil {
		slog.Error("Intent classification failed",
			log.UserID(msg.UserID), log.Error(err))
		return intent.Unknown
	}
	return intentID
}

func (e *Engine) session(
	ctx context.Context, userID api.UserID,
) *api.Session {
	sess, err := e.sessions.Get(ctx, userID)
	if err != nil {
		slog.Warn("Session unavailable",
			log.UserID(userID), log.Error(err))
		return &api.Session{UserID: userID}
	}
	return sess
}

// consumeStaleNotices collects one-time notices for instances the sweeper
// aborted, marking each as notified so the notice is delivered exactly once
func (e *Engine) consumeStaleNotices(
	ctx context.Context, instances []*api.Instance,
) *api.Response {
	var res *api.Response
	for _, in := range instances {
		if in.Status != api.StatusAborted ||
			in.AbortReason != api.AbortStaleWait || in.StaleNotified {
			continue
		}
		notice := api.NewResponse(staleNoticeText(e.workflowName(in)))
		if res == nil {
			res = notice
		} else {
			res = res.Merge(notice)
		}

		flagged := in.SetStaleNotified(true).SetUpdatedAt(e.Now())
		if _, err := e.store.Save(ctx, flagged, in.Version); err != nil {
			// the notice may repeat next turn; harmless
			slog.Warn("Stale notice flag not saved",
				log.WorkflowID(in.Key.WorkflowID),
				log.UserID(in.Key.UserID), log.Error(err))
		}
	}
	return res
}

func (e *Engine) workflowName(in *api.Instance) string {
	if wf, ok := e.registry.Workflow(in.Key.WorkflowID); ok {
		return wf.Name
	}
	return string(in.Key.WorkflowID)
}

// mostRecentActive picks the ACTIVE instance with the newest update stamp
func mostRecentActive(instances []*api.Instance) *api.Instance {
	return mostRecentWithStatus(instances, api.StatusActive)
}

// mostRecentWaiting picks the WAITING instance with the newest update
// stamp. Routing a message there replays the waiting step's reminder.
func mostRecentWaiting(instances []*api.Instance) *api.Instance {
	return mostRecentWithStatus(instances, api.StatusWaiting)
}

func mostRecentWithStatus(
	instances []*api.Instance, status api.Status,
) *api.Instance {
	var res *api.Instance
	for _, in := range instances {
		if in.Status != status {
			continue
		}
		if res == nil || in.UpdatedAt.After(res.UpdatedAt) {
			res = in
		}
	}
	return res
}

// liveInstance returns the user's non-terminal instance of the workflow, if
// any. A WAITING instance routed here replays its current step.
func liveInstance(
	instances []*api.Instance, id api.WorkflowID,
) *api.Instance {
	for _, in := range instances {
		if in.Key.WorkflowID == id && !in.IsTerminal() {
			return in
		}
	}
	return nil
}
