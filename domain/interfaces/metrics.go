package interfaces

import (
	"time"

	"social_automation/domain/entities"
)

// Recorder receives operational measurements
type Recorder interface {
	SessionAcquired(platform entities.Platform, mode entities.BrowserMode)
	SessionReleased(platform entities.Platform)
	SelectorResolved(platform entities.Platform, target string, index int)
	SelectorExhausted(platform entities.Platform, target string)
	OperationFinished(platform entities.Platform, op entities.Operation, kind entities.ErrorKind, d time.Duration)
	OperationRetried(platform entities.Platform, op entities.Operation)
}

// NopRecorder discards everything
type NopRecorder struct{}

func (NopRecorder) SessionAcquired(entities.Platform, entities.BrowserMode) {}
func (NopRecorder) SessionReleased(entities.Platform) {}
func (NopRecorder) SelectorResolved(entities.Platform, string, int) {}
func (NopRecorder) SelectorExhausted(entities.Platform, string) {}
func (NopRecorder) OperationRetried(entities.Platform, entities.Operation) {}
func (NopRecorder) OperationFinished(entities.Platform, entities.Operation, entities.ErrorKind, time.Duration) {}
