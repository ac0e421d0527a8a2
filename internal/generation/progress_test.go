package generation

import (
	"math"
	"slices"
	"testing"

	"github.com/MrWong99/newscast/pkg/types"
)

func TestStageProgress(t *testing.T) {
	t.Parallel()
	tests := []struct {
		stage Stage
		frac  float64
		want  float64
	}{
		{StageFetching, 0, 0},
		{StageFetching, 0.5, 0.15},
		{StageScripting, 0, 0.3},
		{StageScripting, 2, 0.6},
		{StageSynthesizing, 0.5, 0.75},
		{StageSynthesizing, -1, 0.6},
		{StageSaving, 1, 1},
		{StageCompleted, 0, 1},
		{StageFailed, 0.7, 0},
	}
	for _, tt := range tests {
		if got := stageProgress(tt.stage, tt.frac); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("stageProgress(%s, %v) = %v, want %v", tt.stage, tt.frac, got, tt.want)
		}
	}
}

func TestMonotonic(t *testing.T) {
	t.Parallel()
	if got := monotonic(0.5, 0.4); got != 0.5 {
		t.Errorf("monotonic(0.5, 0.4) = %v", got)
	}
	if got := monotonic(0.5, 1.7); got != 1 {
		t.Errorf("monotonic(0.5, 1.7) = %v", got)
	}
	if got := monotonic(0, math.NaN()); got != 0 {
		t.Errorf("monotonic(0, NaN) = %v", got)
	}
}

func TestJob_AdvanceNeverRegresses(t *testing.T) {
	t.Parallel()
	j := newJob("j1", "tech", StrategyStepwise, func() {})

	steps := []struct {
		stage Stage
		frac  float64
	}{
		{StageFetching, 0.5},
		{StageFetching, 0.2},
		{StageScripting, 0.1},
		{StageFetching, 1},
		{StageSynthesizing, 0.5},
		{StageScripting, 0.9},
	}
	last := 0.0
	for _, s := range steps {
		snap, _ := j.advance(s.stage, s.frac, "")
		if snap.Progress < last {
			t.Fatalf("progress regressed from %v to %v at %s/%v", last, snap.Progress, s.stage, s.frac)
		}
		last = snap.Progress
	}
	if math.Abs(last-0.75) > 1e-9 {
		t.Errorf("final progress = %v, want 0.75", last)
	}
}

func TestJob_NoUpdatesAfterCancel(t *testing.T) {
	t.Parallel()
	cancelled := false
	j := newJob("j1", "tech", StrategyStepwise, func() { cancelled = true })
	j.advance(StageSynthesizing, 0.5, "half way")

	if err := j.requestCancel(); err != nil {
		t.Fatalf("requestCancel: %v", err)
	}
	if !cancelled {
		t.Error("context not cancelled")
	}
	snap, _ := j.advance(StageSynthesizing, 1, "done")
	if snap.Progress != 0.75 || snap.StatusText != "Cancelling" {
		t.Errorf("snapshot after cancel = %+v", snap)
	}

	final := j.finish(nil, nil)
	if final.Stage != StageCancelled {
		t.Errorf("stage = %s, want cancelled even without an error", final.Stage)
	}
	if err := j.requestCancel(); err != ErrJobFinished {
		t.Errorf("requestCancel after finish = %v", err)
	}
}

func TestJob_CommitBlocksCancel(t *testing.T) {
	t.Parallel()
	j := newJob("j1", "tech", StrategyStepwise, func() {})
	if err := j.commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := j.requestCancel(); err != ErrJobFinished {
		t.Errorf("requestCancel after commit = %v, want ErrJobFinished", err)
	}
}

func TestJob_WatchLatestWins(t *testing.T) {
	t.Parallel()
	j := newJob("j1", "tech", StrategyStepwise, func() {})
	updates, stop := j.watch()
	defer stop()

	for i := 1; i <= 5; i++ {
		j.advance(StageFetching, float64(i)/5, "")
	}
	got := <-updates
	if math.Abs(got.Progress-0.3) > 1e-9 {
		t.Errorf("buffered snapshot progress = %v, want latest 0.3", got.Progress)
	}

	j.finish(nil, types.ErrContent)
	last, ok := <-updates
	if !ok || last.Stage != StageFailed {
		t.Errorf("terminal snapshot = %+v, %v", last, ok)
	}
	if _, ok := <-updates; ok {
		t.Error("channel not closed after terminal snapshot")
	}
}

func TestPrepareUnits(t *testing.T) {
	t.Parallel()
	parsed := []types.DialogueUnit{
		{Index: 0, Speaker: types.SpeakerA, Text: "开场白"},
		{Index: 1, Speaker: types.SpeakerB, Text: "[3]"},
		{Index: 2, Speaker: types.SpeakerA, Text: "第二条新闻[1][2]"},
	}
	units, cites := prepareUnits(parsed, 2)
	if len(units) != 2 || units[1].Index != 2 || units[1].Text != "第二条新闻" {
		t.Fatalf("units = %+v", units)
	}
	if cites[0] != nil || !slices.Equal(cites[1], []int{1}) {
		t.Errorf("cites = %v", cites)
	}
}
