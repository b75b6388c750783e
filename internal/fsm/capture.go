package fsm

// CaptureState is the lifecycle of one audio capture owner.
type CaptureState string

// CaptureEvent drives CaptureState transitions.
type CaptureEvent string

const (
	CaptureIdle      CaptureState = "idle"
	CapturePrewarmed CaptureState = "prewarmed"
	CaptureActive    CaptureState = "capturing"
)

const (
	CapturePrewarm CaptureEvent = "prewarm"
	CaptureStart   CaptureEvent = "start"
	CaptureStop    CaptureEvent = "stop"
	CaptureRelease CaptureEvent = "release"
)

// Stopping always returns to idle; the hardware pipeline is re-warmed on
// demand. Release is valid everywhere so Close never fails.
var captureTable = table[CaptureState, CaptureEvent]{
	CaptureIdle: {
		CapturePrewarm: CapturePrewarmed,
		CaptureStart:   CaptureActive,
		CaptureRelease: CaptureIdle,
	},
	CapturePrewarmed: {
		CapturePrewarm: CapturePrewarmed,
		CaptureStart:   CaptureActive,
		CaptureRelease: CaptureIdle,
	},
	CaptureActive: {
		CaptureStop:    CaptureIdle,
		CaptureRelease: CaptureIdle,
	},
}

// TransitionCapture advances the capture machine.
func TransitionCapture(current CaptureState, event CaptureEvent) (CaptureState, error) {
	return captureTable.next("capture ", current, event)
}

func (s CaptureState) String() string { return string(s) }

func (e CaptureEvent) String() string { return string(e) }
