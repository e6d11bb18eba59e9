package relay

import (
	"github.com/franksops/filerelay/engine"
)

// State is a step of the relay state machine.
type State string

const (
	StateIdle         State = "idle"
	StateSizeChecked  State = "size_checked"
	StateFetching     State = "fetching"
	StateStreaming    State = "streaming"
	StateInterpreting State = "interpreting"
	StateDone         State = "done"
)

// Observer receives the lifecycle of every relay. Implementations must be
// safe for concurrent use; Progress runs on the streaming goroutine and
// must not block.
type Observer interface {
	RelayStarted(id string, ref engine.FileReference)
	StateChanged(id string, state State)
	Progress(id string, bytesRead, bytesWritten int64)
	RelayFinished(res Result)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) RelayStarted(string, engine.FileReference) {}
func (NopObserver) StateChanged(string, State)                {}
func (NopObserver) Progress(string, int64, int64)             {}
func (NopObserver) RelayFinished(Result)                      {}

// MultiObserver fans events out to several observers in order.
type MultiObserver []Observer

func (m MultiObserver) RelayStarted(id string, ref engine.FileReference) {
	for _, o := range m {
		o.RelayStarted(id, ref)
	}
}

func (m MultiObserver) StateChanged(id string, state State) {
	for _, o := range m {
		o.StateChanged(id, state)
	}
}

func (m MultiObserver) Progress(id string, bytesRead, bytesWritten int64) {
	for _, o := range m {
		o.Progress(id, bytesRead, bytesWritten)
	}
}

func (m MultiObserver) RelayFinished(res Result) {
	for _, o := range m {
		o.RelayFinished(res)
	}
}
