package timings

// Window holds the frames currently in flight, oldest first. The newest frame
// is the one still collecting input.
type Window struct {
	frames []*frame
}

// NewWindow returns a window holding a single open frame.
func NewWindow() *Window {
	// at most two frames are normally in flight
	frames := make([]*frame, 0, 2)
	frames = append(frames, newFrame())
	return &Window{frames: frames}
}

// Process feeds a batch of events, in arrival order, to every frame in flight
// and returns the snapshots of frames that finished, oldest first.
func (w *Window) Process(events []Event) []FrameTimings {
	if len(events) == 0 {
		return nil
	}

	if len(w.frames) == 0 {
		w.frames = append(w.frames, newFrame())
	}

	for _, ev := range events {
		for _, f := range w.frames {
			f.accept(ev)
		}
		if !w.newest().acceptingInput() {
			w.frames = append(w.frames, newFrame())
		}
	}

	var done []FrameTimings
	for len(w.frames) > 0 && w.frames[0].finished() {
		done = append(done, w.frames[0].snapshot())
		w.frames[0] = nil
		w.frames = w.frames[1:]
	}
	if len(w.frames) == 0 {
		w.frames = append(w.frames, newFrame())
	}
	return done
}

// Len reports how many frames are in flight.
func (w *Window) Len() int {
	return len(w.frames)
}

func (w *Window) newest() *frame {
	return w.frames[len(w.frames)-1]
}
