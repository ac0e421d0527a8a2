package generation

// stageRange is the slice of overall progress a stage covers.
type stageRange struct{ lo, hi float64 }

var stageRanges = map[Stage]stageRange{
	StageFetching:     {0.0, 0.3},
	StageScripting:    {0.3, 0.6},
	StageSynthesizing: {0.6, 0.9},
	StageSaving:       {0.9, 1.0},
}

// stageProgress maps frac of stage onto overall progress. Terminal stages
// are not mapped; completed is 1.
func stageProgress(stage Stage, frac float64) float64 {
	r, ok := stageRanges[stage]
	if !ok {
		if stage == StageCompleted {
			return 1
		}
		return 0
	}
	return lerp(r.lo, r.hi, frac)
}

// lerp maps frac, clamped to [0, 1], onto [lo, hi].
func lerp(lo, hi, frac float64) float64 {
	frac = clamp01(frac)
	return lo + (hi-lo)*frac
}

// monotonic returns the larger of cur and next, clamped to [0, 1].
func monotonic(cur, next float64) float64 {
	return clamp01(max(cur, next))
}

func clamp01(v float64) float64 {
	// NaN compares false everywhere; treat it as no progress.
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
