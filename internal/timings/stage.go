// Package timings reconstructs per-frame stage timings from an untagged stream
// of stage events emitted by a pipelined frame loop.
package timings

import (
	"fmt"
	"strings"
	"time"
)

// Stage is a phase of the per-frame pipeline. Stages are declared in the order
// a single frame passes through them.
type Stage uint8

// Pipeline stages, in frame order.
const (
	Input Stage = iota
	ScriptingStarted
	ScriptingFinished
	ClientSystemsStarted
	ClientSystemsFinished
	DrawingWorld
	DrawingUI
	SubmittingGPUCommands
	RenderingFinished
)

// Bounds of the stage range and its size.
const (
	FirstStage = Input
	LastStage  = RenderingFinished
	StageCount = int(LastStage) + 1
)

var stageNames = [StageCount]string{
	"Input",
	"ScriptingStarted",
	"ScriptingFinished",
	"ClientSystemsStarted",
	"ClientSystemsFinished",
	"DrawingWorld",
	"DrawingUI",
	"SubmittingGPUCommands",
	"RenderingFinished",
}

// Index returns the zero-based position of the stage in the pipeline.
func (s Stage) Index() int {
	return int(s)
}

// Valid reports whether s is one of the declared stages.
func (s Stage) Valid() bool {
	return int(s) < StageCount
}

func (s Stage) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Stage(%d)", uint8(s))
	}
	return stageNames[s]
}

// MarshalText encodes the stage by name.
func (s Stage) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid stage %d", uint8(s))
	}
	return []byte(stageNames[s]), nil
}

// UnmarshalText decodes a stage name, case-insensitively.
func (s *Stage) UnmarshalText(text []byte) error {
	parsed, err := ParseStage(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStage looks up a stage by name.
func ParseStage(name string) (Stage, error) {
	trimmed := strings.TrimSpace(name)
	for i, candidate := range stageNames {
		if strings.EqualFold(candidate, trimmed) {
			return Stage(i), nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", name)
}

// Stages returns every stage in pipeline order.
func Stages() []Stage {
	out := make([]Stage, StageCount)
	for i := range out {
		out[i] = Stage(i)
	}
	return out
}

// Event is a single stage completion observed at Time. Events carry no frame
// identity; the window infers ownership from stage order.
type Event struct {
	Stage Stage
	Time  time.Time
}

// NewEvent builds an event for stage observed at t.
func NewEvent(stage Stage, t time.Time) Event {
	return Event{Stage: stage, Time: t}
}
