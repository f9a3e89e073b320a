package conversion

// Stage is a state of one conversion run.
type Stage int

const (
	StageIdle Stage = iota
	StageValidating
	StageTranscoding
	StageOptimizing
	StagePublishing
	StageSucceeded
	StageFailed
	StageCancelled
)

var stageNames = map[Stage]string{
	StageIdle:        "idle",
	StageValidating:  "validating",
	StageTranscoding: "transcoding",
	StageOptimizing:  "optimizing",
	StagePublishing:  "publishing",
	StageSucceeded:   "succeeded",
	StageFailed:      "failed",
	StageCancelled:   "cancelled",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further transitions are possible.
func (s Stage) Terminal() bool {
	return s == StageSucceeded || s == StageFailed || s == StageCancelled
}

// ProgressUpdate is a transient progress report for one run. Fraction is the
// progress of Stage alone; Overall combines all stages.
type ProgressUpdate struct {
	Stage    Stage
	Fraction float64
	Overall  float64
}
