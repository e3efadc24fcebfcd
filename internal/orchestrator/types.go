package orchestrator

import (
	"fmt"

	"github.com/lexiqai/voice-button/internal/apperr"
)

// State is the pipeline stage the orchestrator is in
type State int

const (
	StateIdle State = iota
	StateCapturing
	StateTranscribing
	StateTransforming
	StateSynthesizing
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateCapturing:
		return "CAPTURING"
	case StateTranscribing:
		return "TRANSCRIBING"
	case StateTransforming:
		return "TRANSFORMING"
	case StateSynthesizing:
		return "SYNTHESIZING"
	case StatePlaying:
		return "PLAYING"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// PipelineError ends a session. It records the stage that failed and the error kind.
type PipelineError struct {
	Stage   State
	Kind    apperr.Kind
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s failed with %s: %s", e.Stage, e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// newPipelineError classifies err for stage. Unclassified errors from the audio
// stages count as device errors, anything else as service errors.
func newPipelineError(stage State, err error) *PipelineError {
	kind := apperr.KindOf(err)
	if kind == apperr.KindUnknown {
		switch stage {
		case StateCapturing, StatePlaying:
			kind = apperr.KindDevice
		default:
			kind = apperr.KindService
		}
	}
	return &PipelineError{
		Stage:   stage,
		Kind:    kind,
		Message: err.Error(),
		Err:     err,
	}
}
