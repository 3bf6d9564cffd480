package orchestrator

import "fmt"

// Stage is the lifecycle position of one pipeline run.
type Stage string

const (
	StageRequested        Stage = "Requested"
	StageContentGenerated Stage = "ContentGenerated"
	StageAssetsResolved   Stage = "AssetsResolved"
	StageNarrationReady   Stage = "NarrationReady"
	StageSceneRendered    Stage = "SceneRendered"
	StageComposed         Stage = "Composed"
	StagePublished        Stage = "Published"
	StageDone             Stage = "Done"
)

// stageOrder is the only legal forward path through a run.
var stageOrder = []Stage{
	StageRequested,
	StageContentGenerated,
	StageAssetsResolved,
	StageNarrationReady,
	StageSceneRendered,
	StageComposed,
	StagePublished,
	StageDone,
}

// Next returns the stage that follows s, or false when s is terminal or
// unknown. Transitions are strictly sequential; there is no path backward
// and no skipping except Published, which the runner may pass through when
// publishing is not requested.
func Next(s Stage) (Stage, bool) {
	for i, stage := range stageOrder {
		if stage == s && i+1 < len(stageOrder) {
			return stageOrder[i+1], true
		}
	}
	return "", false
}

// RunError is the terminal failure outcome of a run: the stage that was
// being entered and the cause. The orchestrator never retries across
// stages; each stage owns its own local retry policy.
type RunError struct {
	Stage Stage
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run failed at %s: %v", e.Stage, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }
