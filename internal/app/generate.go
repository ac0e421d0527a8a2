package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/newscast/internal/generation"
)

// ErrJobNotCompleted is returned by Generate when the job ends Failed or
// Cancelled.
var ErrJobNotCompleted = errors.New("app: job did not complete")

// Generate runs one job for topic in the foreground and blocks until it is
// terminal. Every snapshot the job produces is handed to onUpdate, which may
// be nil. Cancelling ctx cancels the job; Generate still waits for the job to
// wind down so the final snapshot is reported.
//
// The returned snapshot is the terminal one. The error is nil only when the
// job completed.
func (a *App) Generate(ctx context.Context, topic string, onUpdate func(generation.Snapshot)) (generation.Snapshot, error) {
	snap, err := a.manager.Start(ctx, topic)
	if err != nil {
		return snap, err
	}
	updates, stop, err := a.manager.Watch(snap.JobID)
	if err != nil {
		return snap, err
	}
	defer stop()

	done := ctx.Done()
	for {
		select {
		case <-done:
			if err := a.manager.Cancel(snap.JobID); err != nil && !errors.Is(err, generation.ErrJobFinished) {
				a.log.Warn("cancel job", "job_id", snap.JobID, "err", err)
			}
			done = nil
		case s, ok := <-updates:
			if !ok {
				// The watcher closes after the terminal snapshot.
				final, err := a.manager.Snapshot(snap.JobID)
				if err != nil {
					return snap, err
				}
				return final, outcomeErr(final)
			}
			snap = s
			if onUpdate != nil {
				onUpdate(s)
			}
		}
	}
}

func outcomeErr(s generation.Snapshot) error {
	switch s.Stage {
	case generation.StageCompleted:
		return nil
	case generation.StageCancelled:
		return fmt.Errorf("%w: job %s was cancelled", ErrJobNotCompleted, s.JobID)
	default:
		return fmt.Errorf("%w: job %s failed: %s", ErrJobNotCompleted, s.JobID, s.Err)
	}
}
