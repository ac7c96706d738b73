package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/parleyhq/parley/internal/metrics"
	"github.com/parleyhq/parley/pkg/api"
	"github.com/parleyhq/parley/pkg/log"
)

// sweepLoop periodically abandons waits that outlived their TTL
func (e *Engine) sweepLoop() {
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.SweepStaleWaits(e.ctx)
		}
	}
}

// SweepStaleWaits aborts every WAITING instance whose wait began at or
// before now minus the configured TTL, flagging each for a one-time notice
// on the user's next message. Returns how many instances were swept.
func (e *Engine) SweepStaleWaits(ctx context.Context) int {
	cutoff := e.Now().Add(-e.cfg.WaitTTL)
	stale, err := e.store.FindStaleWaiting(ctx, cutoff)
	if err != nil {
		slog.Error("Stale wait scan failed", log.Error(err))
		return 0
	}

	swept := 0
	for _, in := range stale {
		if e.sweepOne(ctx, in) {
			swept++
		}
	}
	metrics.RecordSwept(swept)
	if swept > 0 {
		slog.Info("Stale waits swept", slog.Int("count", swept))
	}
	return swept
}

func (e *Engine) sweepOne(ctx context.Context, in *api.Instance) bool {
	abandoned := in.ClearWait().
		SetStatus(api.StatusAborted).
		SetAbortReason(api.AbortStaleWait).
		SetStaleNotified(false).
		SetUpdatedAt(e.Now())

	if _, err := e.store.Save(ctx, abandoned, in.Version); err != nil {
		if isConflict(err) {
			// the instance resumed while we looked; leave it alone
			return false
		}
		slog.Error("Stale wait not swept",
			log.WorkflowID(in.Key.WorkflowID), log.UserID(in.Key.UserID),
			log.Error(err))
		return false
	}

	slog.Info("Stale wait abandoned",
		log.WorkflowID(in.Key.WorkflowID), log.UserID(in.Key.UserID),
		log.Token(in.WaitToken))
	return true
}

func staleNoticeText(workflow string) string {
	return fmt.Sprintf("I didn't hear back in time to finish %q, so I've "+
		"set it aside. Just ask again if you still want it.", workflow)
}
