package timings

// Scope identifies the execution context a system runs in. Only ScopeApp
// processes timing events.
type Scope uint8

const (
	ScopeApp Scope = iota
	ScopeClient
	ScopeServer
)

func (s Scope) String() string {
	switch s {
	case ScopeApp:
		return "app"
	case ScopeClient:
		return "client"
	case ScopeServer:
		return "server"
	default:
		return "unknown"
	}
}

// Marker reports a fixed stage, but only when run in its own scope.
type Marker struct {
	Scope Scope
	Stage Stage
}

func (m Marker) Run(scope Scope, r *Reporter) {
	if scope != m.Scope {
		return
	}
	r.ReportEvent(m.Stage)
}

// ClientSystemsStartedMarker marks the start of client system execution.
func ClientSystemsStartedMarker() Marker {
	return Marker{Scope: ScopeClient, Stage: ClientSystemsStarted}
}

// ClientSystemsFinishedMarker marks the end of client system execution.
func ClientSystemsFinishedMarker() Marker {
	return Marker{Scope: ScopeClient, Stage: ClientSystemsFinished}
}

// InputKind classifies window and device events fed to ReportInput.
type InputKind uint8

const (
	InputKeyboard InputKind = iota
	InputMouseButton
	InputMouseWheel
	InputMouseMotion
	InputModifiersChanged
	InputResize
	InputFocus
	InputRedraw
)

// IsUserInput reports whether the kind comes from the user rather than the
// windowing system.
func (k InputKind) IsUserInput() bool {
	switch k {
	case InputKeyboard, InputMouseButton, InputMouseWheel, InputMouseMotion, InputModifiersChanged:
		return true
	}
	return false
}

// ReportInput reports an Input stage for user input and ignores everything
// else.
func (r *Reporter) ReportInput(kind InputKind) {
	if !kind.IsUserInput() {
		return
	}
	r.ReportEvent(Input)
}
