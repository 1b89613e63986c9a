package timings

// MaxSamples is the default number of finished frames kept in a History.
const MaxSamples = 128

// History is a bounded FIFO of finished frame timings. Pushing into a full
// history evicts the oldest sample.
type History struct {
	buf   []FrameTimings
	start int
	size  int
}

// NewHistory returns an empty history. Non-positive capacities fall back to
// MaxSamples.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = MaxSamples
	}
	return &History{buf: make([]FrameTimings, capacity)}
}

// Push appends a sample, evicting the oldest one when the history is full.
func (h *History) Push(sample FrameTimings) {
	if h.size == len(h.buf) {
		h.buf[h.start] = sample
		h.start = (h.start + 1) % len(h.buf)
		return
	}
	h.buf[(h.start+h.size)%len(h.buf)] = sample
	h.size++
}

func (h *History) Len() int {
	return h.size
}

func (h *History) Cap() int {
	return len(h.buf)
}

// Samples copies the history out, oldest first.
func (h *History) Samples() []FrameTimings {
	out := make([]FrameTimings, h.size)
	for i := range out {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

// Latest returns the most recently pushed sample.
func (h *History) Latest() (FrameTimings, bool) {
	if h.size == 0 {
		return FrameTimings{}, false
	}
	return h.buf[(h.start+h.size-1)%len(h.buf)], true
}
