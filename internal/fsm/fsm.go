// Package fsm holds the dictation session and capture state machines.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle         State = "idle"
	StateRecording    State = "recording"
	StateTranscribing State = "transcribing"
	StateEnhancing    State = "enhancing"
	StateError        State = "error"
)

const (
	EventStart       Event = "start"
	EventStop        Event = "stop"
	EventCancel      Event = "cancel"
	EventTranscribed Event = "transcribed"
	EventEnhanced    Event = "enhanced"
	EventFail        Event = "fail"
	EventReset       Event = "reset"
)

// table maps state -> event -> next state. A state missing from the table
// is unknown; an event missing from a state's row is invalid there.
type table[S, E ~string] map[S]map[E]S

func (t table[S, E]) next(kind string, current S, event E) (S, error) {
	row, ok := t[current]
	if !ok {
		return current, fmt.Errorf("unknown %sstate %q", kind, current)
	}
	if to, ok := row[event]; ok {
		return to, nil
	}
	return current, fmt.Errorf("invalid transition: %s --(%s)--> ?", current, event)
}

// idle -> recording -> transcribing -> enhancing -> idle. Cancel leaves
// recording and transcribing; once enhancing, the session runs to commit.
var sessionTable = table[State, Event]{
	StateIdle:         {EventStart: StateRecording},
	StateRecording:    {EventStop: StateTranscribing, EventCancel: StateIdle},
	StateTranscribing: {EventTranscribed: StateEnhancing, EventCancel: StateIdle},
	StateEnhancing:    {EventEnhanced: StateIdle},
	StateError:        {EventReset: StateIdle},
}

// Transition advances the dictation session machine. EventFail moves any
// state, known or not, to StateError.
func Transition(current State, event Event) (State, error) {
	if event == EventFail {
		return StateError, nil
	}
	return sessionTable.next("", current, event)
}

func (s State) String() string { return string(s) }

func (e Event) String() string { return string(e) }
