package cassandra

import (
	"context"

	"github.com/cuemby/embedded-cassandra/pkg/events"
	"github.com/looplab/fsm"
)

// State is the lifecycle state of an instance.
type State string

const (
	StateNew              State = "NEW"
	StateStarting         State = "STARTING"
	StateStarted          State = "STARTED"
	StateStartFailed      State = "START_FAILED"
	StateStartInterrupted State = "START_INTERRUPTED"
	StateStopping         State = "STOPPING"
	StateStopped          State = "STOPPED"
	StateStopFailed       State = "STOP_FAILED"
	StateStopInterrupted  State = "STOP_INTERRUPTED"
)

// Lifecycle events driving the machine.
const (
	eventStart            = "start"
	eventStarted          = "started"
	eventStartFailed      = "start_failed"
	eventStartInterrupted = "start_interrupted"
	eventStop             = "stop"
	eventStopped          = "stopped"
	eventStopFailed       = "stop_failed"
	eventStopInterrupted  = "stop_interrupted"
)

var eventTypes = map[State]events.EventType{
	StateStarting:         events.EventStarting,
	StateStarted:          events.EventStarted,
	StateStartFailed:      events.EventStartFailed,
	StateStartInterrupted: events.EventStartInterrupted,
	StateStopping:         events.EventStopping,
	StateStopped:          events.EventStopped,
	StateStopFailed:       events.EventStopFailed,
	StateStopInterrupted:  events.EventStopInterrupted,
}

func states(s ...State) []string {
	out := make([]string, len(s))
	for i, st := range s {
		out[i] = string(st)
	}
	return out
}

// newMachine builds the lifecycle machine. onEnter runs after every
// transition.
func newMachine(onEnter func(from, to State)) *fsm.FSM {
	return fsm.NewFSM(
		string(StateNew),
		fsm.Events{
			{
				Name: eventStart,
				Src: states(StateNew, StateStopped, StateStartFailed, StateStartInterrupted,
					StateStopFailed, StateStopInterrupted),
				Dst: string(StateStarting),
			},
			{Name: eventStarted, Src: states(StateStarting), Dst: string(StateStarted)},
			{Name: eventStartFailed, Src: states(StateStarting), Dst: string(StateStartFailed)},
			{Name: eventStartInterrupted, Src: states(StateStarting), Dst: string(StateStartInterrupted)},

			{Name: eventStop, Src: states(StateStarted, StateStopFailed, StateStopInterrupted), Dst: string(StateStopping)},
			{Name: eventStopped, Src: states(StateStopping), Dst: string(StateStopped)},
			{Name: eventStopFailed, Src: states(StateStopping), Dst: string(StateStopFailed)},
			{Name: eventStopInterrupted, Src: states(StateStopping), Dst: string(StateStopInterrupted)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				onEnter(State(e.Src), State(e.Dst))
			},
		},
	)
}
