package timings

import (
	"encoding/json"
	"strings"
	"time"
)

// frame tracks one in-flight frame. Each slot keeps the first time its stage
// was accepted.
type frame struct {
	last  Stage
	times [StageCount]time.Time
	seen  [StageCount]bool
}

func newFrame() *frame {
	return &frame{last: Input}
}

func (f *frame) accepts(stage Stage) bool {
	if !stage.Valid() {
		return false
	}
	switch {
	case f.last.Index()+1 == stage.Index():
		return true
	case f.last == Input && stage == Input:
		// several input samples can land before the frame moves on
		return true
	case f.last == SubmittingGPUCommands && stage == RenderingFinished:
		// some platforms never deliver the intermediate completion callback
		return true
	}
	return false
}

func (f *frame) accept(ev Event) bool {
	if !f.accepts(ev.Stage) {
		return false
	}
	idx := ev.Stage.Index()
	if !f.seen[idx] {
		f.times[idx] = ev.Time
		f.seen[idx] = true
	}
	f.last = ev.Stage
	return true
}

func (f *frame) acceptingInput() bool {
	return f.last == Input
}

func (f *frame) finished() bool {
	return f.last == LastStage
}

func (f *frame) snapshot() FrameTimings {
	return FrameTimings{times: f.times, seen: f.seen}
}

// FrameTimings is the read-only record of a finished frame.
type FrameTimings struct {
	times [StageCount]time.Time
	seen  [StageCount]bool
}

// StageDelta is the time between two consecutive recorded stages.
type StageDelta struct {
	From     Stage         `json:"from"`
	To       Stage         `json:"to"`
	Duration time.Duration `json:"duration_ns"`
}

// At returns the first time stage was observed for this frame.
func (t FrameTimings) At(stage Stage) (time.Time, bool) {
	if !stage.Valid() || !t.seen[stage] {
		return time.Time{}, false
	}
	return t.times[stage], true
}

// Between returns the elapsed time from one stage to another when both were
// recorded.
func (t FrameTimings) Between(from, to Stage) (time.Duration, bool) {
	start, ok := t.At(from)
	if !ok {
		return 0, false
	}
	end, ok := t.At(to)
	if !ok {
		return 0, false
	}
	return end.Sub(start), true
}

// InputToRendered is the latency from the first input sample to render
// completion.
func (t FrameTimings) InputToRendered() (time.Duration, bool) {
	return t.Between(Input, RenderingFinished)
}

// Total spans the earliest to the latest recorded stage.
func (t FrameTimings) Total() time.Duration {
	first, last := -1, -1
	for i := range t.seen {
		if !t.seen[i] {
			continue
		}
		if first < 0 {
			first = i
		}
		last = i
	}
	if first < 0 {
		return 0
	}
	return t.times[last].Sub(t.times[first])
}

// Deltas lists the durations between consecutive recorded stages, skipping
// stages that were never observed.
func (t FrameTimings) Deltas() []StageDelta {
	var (
		out  []StageDelta
		prev = -1
	)
	for i := range t.seen {
		if !t.seen[i] {
			continue
		}
		if prev >= 0 {
			out = append(out, StageDelta{
				From:     Stage(prev),
				To:       Stage(i),
				Duration: t.times[i].Sub(t.times[prev]),
			})
		}
		prev = i
	}
	return out
}

func (t FrameTimings) String() string {
	var (
		b       strings.Builder
		last    time.Time
		started bool
	)
	for i := range t.seen {
		if !t.seen[i] {
			continue
		}
		if started {
			b.WriteString(" <- ")
			b.WriteString(t.times[i].Sub(last).String())
			b.WriteString(" -> ")
		}
		b.WriteString(Stage(i).String())
		last = t.times[i]
		started = true
	}
	return b.String()
}

type frameTimingsJSON struct {
	Stages            map[string]time.Time `json:"stages"`
	Deltas            []StageDelta         `json:"deltas"`
	TotalNS           time.Duration        `json:"total_ns"`
	InputToRenderedNS *time.Duration       `json:"input_to_rendered_ns"`
}

// MarshalJSON exposes the recorded stage times and derived deltas.
func (t FrameTimings) MarshalJSON() ([]byte, error) {
	payload := frameTimingsJSON{
		Stages:  make(map[string]time.Time, StageCount),
		Deltas:  t.Deltas(),
		TotalNS: t.Total(),
	}
	if payload.Deltas == nil {
		payload.Deltas = []StageDelta{}
	}
	for i := range t.seen {
		if t.seen[i] {
			payload.Stages[Stage(i).String()] = t.times[i]
		}
	}
	if d, ok := t.InputToRendered(); ok {
		payload.InputToRenderedNS = &d
	}
	return json.Marshal(payload)
}

// UnmarshalJSON restores the stage times written by MarshalJSON; derived
// fields are recomputed.
func (t *FrameTimings) UnmarshalJSON(data []byte) error {
	var payload frameTimingsJSON
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	*t = FrameTimings{}
	for name, at := range payload.Stages {
		stage, err := ParseStage(name)
		if err != nil {
			return err
		}
		t.times[stage] = at
		t.seen[stage] = true
	}
	return nil
}
