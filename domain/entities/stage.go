package entities

// Stage is a point in the per-operation state machine
type Stage string

const (
	StageIdle            Stage = "Idle"
	StageSessionAcquired Stage = "SessionAcquired"
	StageNavigated       Stage = "Navigated"
	StageTargetLocated   Stage = "TargetLocated"
	StageActionPerformed Stage = "ActionPerformed"
	StageStateVerified   Stage = "StateVerified"
	StageTorndown        Stage = "Torndown"

	StageCompleted Stage = "Completed"
	StageFailed    Stage = "Failed"
)

var stageOrder = map[Stage]int{
	StageIdle:            0,
	StageSessionAcquired: 1,
	StageNavigated:       2,
	StageTargetLocated:   3,
	StageActionPerformed: 4,
	StageStateVerified:   5,
	StageTorndown:        6,
}

// Reached - reports whether s is at or past other in the machine
func (s Stage) Reached(other Stage) bool {
	a, ok1 := stageOrder[s]
	b, ok2 := stageOrder[other]
	return ok1 && ok2 && a >= b
}

// Terminal - Completed and Failed end the machine
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}
