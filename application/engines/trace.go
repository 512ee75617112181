package engines

import (
	"sync"

	"social_automation/domain/entities"
)

var stageSequence = []entities.Stage{
	entities.StageIdle,
	entities.StageSessionAcquired,
	entities.StageNavigated,
	entities.StageTargetLocated,
	entities.StageActionPerformed,
	entities.StageStateVerified,
	entities.StageTorndown,
}

// Trace records how far an operation got through the state machine, which
// strategy won for each target and any side effects. It is written by the
// engine goroutine and read by the runner, possibly after a timeout.
type Trace struct {
	mu          sync.Mutex
	stage       entities.Stage
	strategies  map[string]string
	sideEffects []entities.SideEffect
}

// NewTrace - starts in Idle
func NewTrace() *Trace {
	return &Trace{stage: entities.StageIdle, strategies: make(map[string]string)}
}

// Mark - advances to stage; the machine never moves backwards
func (t *Trace) Mark(stage entities.Stage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.stage.Reached(stage) {
		t.stage = stage
	}
}

// Stage - last stage reached
func (t *Trace) Stage() entities.Stage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stage
}

// Pending - the stage being worked on, used to attribute failures that
// interrupt the machine from outside such as timeouts
func (t *Trace) Pending() entities.Stage {
	current := t.Stage()
	for i, s := range stageSequence {
		if s == current && i+1 < len(stageSequence) {
			return stageSequence[i+1]
		}
	}
	return current
}

// Strategy - records the strategy that located target
func (t *Trace) Strategy(target, strategy string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.strategies[target] = strategy
}

// Strategies - copy of target → winning strategy
func (t *Trace) Strategies() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.strategies) == 0 {
		return nil
	}
	out := make(map[string]string, len(t.strategies))
	for k, v := range t.strategies {
		out[k] = v
	}
	return out
}

// SideEffect - records a state change the caller did not ask for
func (t *Trace) SideEffect(effect entities.SideEffect) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sideEffects = append(t.sideEffects, effect)
}

func (t *Trace) SideEffects() []entities.SideEffect {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]entities.SideEffect(nil), t.sideEffects...)
}
