// Package generation runs podcast generation jobs.
//
// A [Manager] owns every job. Each job runs on its own goroutine, which is the
// only writer of the job's state; everyone else reads immutable [Snapshot]
// copies through [Manager.Snapshot], [Manager.List], or [Manager.Watch].
//
// A job passes through four stages, each mapped onto a slice of a single
// progress value in [0, 1]:
//
//	fetching      [0.0, 0.3)
//	scripting     [0.3, 0.6)
//	synthesizing  [0.6, 0.9)
//	saving        [0.9, 1.0]
//
// Progress never decreases. A job ends in exactly one terminal stage:
// completed (with a podcast), failed (with a reason), or cancelled.
package generation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrWong99/newscast/pkg/types"
)

// Stage is the pipeline position of a job.
type Stage string

const (
	StageFetching     Stage = "fetching"
	StageScripting    Stage = "scripting"
	StageSynthesizing Stage = "synthesizing"
	StageSaving       Stage = "saving"
	StageCompleted    Stage = "completed"
	StageFailed       Stage = "failed"
	StageCancelled    Stage = "cancelled"
)

// Terminal reports whether s is a final stage.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed || s == StageCancelled
}

// rank orders the running stages; terminal stages rank above all of them.
func (s Stage) rank() int {
	switch s {
	case StageFetching:
		return 1
	case StageScripting:
		return 2
	case StageSynthesizing:
		return 3
	case StageSaving:
		return 4
	case "":
		return 0
	}
	return 5
}

// Strategy names the pipeline shape a job runs.
type Strategy string

const (
	// StrategyStepwise writes a script, synthesises it utterance by
	// utterance, and stitches the result.
	StrategyStepwise Strategy = "stepwise"

	// StrategyIntegrated hands the raw articles to a one-shot service.
	StrategyIntegrated Strategy = "integrated"
)

// Snapshot is an immutable copy of a job's state.
type Snapshot struct {
	JobID      string   `json:"jobId"`
	Topics     []string `json:"topics"`
	Strategy   Strategy `json:"strategy"`
	Stage      Stage    `json:"stage"`
	Progress   float64  `json:"progress"`
	StatusText string   `json:"statusText"`

	// Cancelled is set as soon as cancellation is requested, before the job
	// has reached StageCancelled.
	Cancelled bool `json:"cancelled"`

	// Err and ErrKind describe the failure of a failed job.
	Err     string `json:"error,omitempty"`
	ErrKind string `json:"errorKind,omitempty"`

	PodcastID string         `json:"podcastId,omitempty"`
	Podcast   *types.Podcast `json:"podcast,omitempty"`

	StartedAt time.Time `json:"startedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Terminal reports whether the job has finished.
func (s Snapshot) Terminal() bool { return s.Stage.Terminal() }

// job is the mutable state behind a Snapshot. Only the job goroutine calls
// the advancing methods; Cancel and readers take mu.
type job struct {
	mu        sync.Mutex
	snap      Snapshot
	err       error
	committed bool
	watchers  map[chan Snapshot]struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

func newJob(id, topic string, strategy Strategy, cancel context.CancelFunc) *job {
	now := time.Now().UTC()
	return &job{
		snap: Snapshot{
			JobID:      id,
			Topics:     []string{topic},
			Strategy:   strategy,
			Stage:      StageFetching,
			StatusText: "Queued",
			StartedAt:  now,
			UpdatedAt:  now,
		},
		watchers: make(map[chan Snapshot]struct{}),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// snapshot returns a copy of the current state.
func (j *job) snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.copyLocked()
}

func (j *job) copyLocked() Snapshot {
	s := j.snap
	s.Topics = append([]string(nil), j.snap.Topics...)
	if j.snap.Podcast != nil {
		p := *j.snap.Podcast
		s.Podcast = &p
	}
	return s
}

// advance moves the job to stage at frac of the stage's progress range and
// sets the status text. Updates after cancellation are dropped so progress
// stops moving once a cancel is requested. It returns the new snapshot and
// whether the stage changed.
func (j *job) advance(stage Stage, frac float64, status string) (Snapshot, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.snap.Cancelled || j.snap.Stage.Terminal() {
		return j.copyLocked(), false
	}
	changed := j.snap.Stage != stage
	j.snap.Stage = stage
	j.snap.Progress = monotonic(j.snap.Progress, stageProgress(stage, frac))
	if status != "" {
		j.snap.StatusText = status
	}
	j.snap.UpdatedAt = time.Now().UTC()
	s := j.copyLocked()
	j.notifyLocked(s)
	return s, changed
}

// setProgress is advance for strategies that report progress on their own
// scale: p is mapped linearly into [lo, hi). The stage never moves backwards;
// the bool reports whether it changed.
func (j *job) setProgress(stage Stage, lo, hi, p float64, status string) (Snapshot, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.snap.Cancelled || j.snap.Stage.Terminal() {
		return j.copyLocked(), false
	}
	changed := stage.rank() > j.snap.Stage.rank()
	if changed {
		j.snap.Stage = stage
	}
	j.snap.Progress = monotonic(j.snap.Progress, lerp(lo, hi, p))
	if status != "" {
		j.snap.StatusText = status
	}
	j.snap.UpdatedAt = time.Now().UTC()
	s := j.copyLocked()
	j.notifyLocked(s)
	return s, changed
}

// requestCancel flags the job as cancelled and cancels its context.
func (j *job) requestCancel() error {
	j.mu.Lock()
	if j.snap.Stage.Terminal() || j.committed {
		j.mu.Unlock()
		return ErrJobFinished
	}
	if !j.snap.Cancelled {
		j.snap.Cancelled = true
		j.snap.StatusText = "Cancelling"
		j.snap.UpdatedAt = time.Now().UTC()
		j.notifyLocked(j.copyLocked())
	}
	j.mu.Unlock()
	j.cancel()
	return nil
}

// checkpoint returns ErrCancelled once cancellation was requested or ctx is
// done.
func (j *job) checkpoint(ctx context.Context) error {
	j.mu.Lock()
	cancelled := j.snap.Cancelled
	j.mu.Unlock()
	if cancelled {
		return types.ErrCancelled
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// commit marks the point after which the job can no longer be cancelled.
func (j *job) commit() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.snap.Cancelled {
		return types.ErrCancelled
	}
	j.committed = true
	return nil
}

// finish records the terminal outcome and closes all watchers. Cancellation
// wins over any error. Waiters are released separately by close.
func (j *job) finish(p *types.Podcast, err error) Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := time.Now().UTC()
	j.snap.UpdatedAt = now
	switch {
	case j.snap.Cancelled || (err != nil && errors.Is(err, types.ErrCancelled)):
		j.snap.Stage = StageCancelled
		j.snap.StatusText = "Cancelled"
		j.err = types.ErrCancelled
	case err != nil:
		j.snap.Stage = StageFailed
		j.snap.Err = err.Error()
		j.snap.ErrKind = types.Classify(err)
		j.snap.StatusText = "Failed: " + err.Error()
		j.err = err
	default:
		j.snap.Stage = StageCompleted
		j.snap.Progress = 1
		j.snap.StatusText = "Completed"
		j.snap.PodcastID = p.ID
		j.snap.Podcast = p
	}

	s := j.copyLocked()
	j.notifyLocked(s)
	for ch := range j.watchers {
		close(ch)
		delete(j.watchers, ch)
	}
	return s
}

// close releases Wait callers.
func (j *job) close() { close(j.done) }

// watch registers a latest-wins subscriber. The channel is closed when the
// job finishes or the returned stop function is called.
func (j *job) watch() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	j.mu.Lock()
	ch <- j.copyLocked()
	if j.snap.Stage.Terminal() {
		close(ch)
		j.mu.Unlock()
		return ch, func() {}
	}
	j.watchers[ch] = struct{}{}
	j.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			j.mu.Lock()
			defer j.mu.Unlock()
			if _, ok := j.watchers[ch]; ok {
				delete(j.watchers, ch)
				close(ch)
			}
		})
	}
}

// notifyLocked replaces any unread snapshot in each watcher with s. All sends
// happen under mu, so the drain-then-send never blocks.
func (j *job) notifyLocked(s Snapshot) {
	for ch := range j.watchers {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}
