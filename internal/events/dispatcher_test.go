package events_test

import (
	"context"
	"testing"

	"github.com/parleyhq/parley/internal/assert"
	"github.com/parleyhq/parley/internal/assert/helpers"
	"github.com/parleyhq/parley/internal/events"
	"github.com/parleyhq/parley/pkg/api"
)

// installWaitFlow registers a single-step workflow that waits on tok-1
// and completes when the capture event arrives
func installWaitFlow(t *testing.T, env *helpers.TestEnv) {
	t.Helper()

	pay := helpers.NewFakeEventStep("pay",
		func(
			_ context.Context, _ *api.Message, _ *api.Session, _ api.Context,
		) (*api.StepResult, error) {
			return api.NewResult(api.ActionWait).
				WithText("Pay here: https://pay.example/x").
				WithWait("tok-1", api.EventPaymentCaptured), nil
		},
		func(
			_ context.Context, ev *api.Event, _ api.Context,
		) (*api.StepResult, error) {
			if ev.Type != api.EventPaymentCaptured {
				return nil, api.ErrEventUnhandled
			}
			return api.NewResult(api.ActionComplete).
				WithText("Paid!"), nil
		})

	env.Register(t, helpers.NewWorkflow(
		"generate_report", []api.IntentID{"generate_report"}, pay.StepID,
	), pay)
}

func suspendWaiting(t *testing.T, env *helpers.TestEnv) {
	t.Helper()
	as := assert.New(t)

	env.Classifier.Intent = "generate_report"
	_, err := env.Engine.HandleMessage(context.Background(), &api.Message{
		UserID: "user-1", Text: "report please", ReceivedAt: env.Clock.Now(),
	})
	as.Require.NoError(err)

	in, err := env.Store.Load(
		context.Background(),
		api.NewInstanceKey("user-1", "generate_report"),
	)
	as.Require.NoError(err)
	as.InstanceStatus(in, api.StatusWaiting)
}

func captureEnvelope() *events.Envelope {
	return &events.Envelope{
		Type:   api.EventPaymentCaptured,
		UserID: "user-1",
		Token:  "tok-1",
	}
}

func TestDispatchResumes(t *testing.T) {
	helpers.WithEnv(t, func(env *helpers.TestEnv) {
		as := assert.New(t)
		installWaitFlow(t, env)
		suspendWaiting(t, env)

		d := events.NewDispatcher(env.Engine)
		res, err := d.Dispatch(context.Background(), captureEnvelope())
		as.Require.NoError(err)
		as.Require.NotNil(res)
		as.Equal("Paid!", res.Text)

		in, err := env.Store.Load(
			context.Background(),
			api.NewInstanceKey("user-1", "generate_report"),
		)
		as.NoError(err)
		as.InstanceStatus(in, api.StatusCompleted)
	})
}

func TestDispatchNormalizesWhitespace(t *testing.T) {
	helpers.WithEnv(t, func(env *helpers.TestEnv) {
		as := assert.New(t)
		installWaitFlow(t, env)
		suspendWaiting(t, env)

		d := events.NewDispatcher(env.Engine)
		res, err := d.Dispatch(context.Background(), &events.Envelope{
			Type:   api.EventType(" payment_captured\n"),
			UserID: " user-1 ",
			Token:  "\ttok-1 ",
		})
		as.Require.NoError(err)
		as.Require.NotNil(res)
		as.Equal("Paid!", res.Text)
	})
}

func TestDispatchDuplicateIsNoOp(t *testing.T) {
	helpers.WithEnv(t, func(env *helpers.TestEnv) {
		as := assert.New(t)
		installWaitFlow(t, env)
		suspendWaiting(t, env)

		d := events.NewDispatcher(env.Engine)
		_, err := d.Dispatch(context.Background(), captureEnvelope())
		as.Require.NoError(err)

		res, err := d.Dispatch(context.Background(), captureEnvelope())
		as.NoError(err)
		as.Nil(res)
	})
}

func TestDispatchUnmatchedTokenDrops(t *testing.T) {
	helpers.WithEnv(t, func(env *helpers.TestEnv) {
		as := assert.New(t)
		installWaitFlow(t, env)
		suspendWaiting(t, env)

		d := events.NewDispatcher(env.Engine)
		env2 := captureEnvelope()
		env2.Token = "tok-other"
		res, err := d.Dispatch(context.Background(), env2)
		as.NoError(err)
		as.Nil(res)

		in, err := env.Store.Load(
			context.Background(),
			api.NewInstanceKey("user-1", "generate_report"),
		)
		as.NoError(err)
		as.InstanceStatus(in, api.StatusWaiting)
	})
}

func TestDispatchValidation(t *testing.T) {
	helpers.WithEnv(t, func(env *helpers.TestEnv) {
		as := assert.New(t)
		d := events.NewDispatcher(env.Engine)

		_, err := d.Dispatch(context.Background(), &events.Envelope{
			Type: api.EventPaymentCaptured, UserID: "user-1",
		})
		as.ErrorIs(err, api.ErrEventTokenEmpty)

		_, err = d.Dispatch(context.Background(), &events.Envelope{
			UserID: "user-1", Token: "tok-1",
		})
		as.ErrorIs(err, api.ErrEventTypeEmpty)

		// whitespace-only fields normalize to empty and fail the same way
		_, err = d.Dispatch(context.Background(), &events.Envelope{
			Type: api.EventPaymentCaptured, UserID: "  ", Token: "tok-1",
		})
		as.ErrorIs(err, api.ErrEventUserEmpty)
	})
}
