package purchase

import (
	"sync"

	pkgerrors "github.com/fafportal/checkout/pkg/errors"
)

// State is the lifecycle position of one settlement attempt.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateSettled    State = "settled"
	StateFailed     State = "failed"
)

var allowedTransitions = map[State][]State{
	StateIdle:       {StateSubmitting},
	StateSubmitting: {StateSettled, StateFailed},
}

// Attempt tracks one settlement from confirmation to outcome. Settled and Failed are terminal.
type Attempt struct {
	mu    sync.Mutex
	state State
}

func NewAttempt() *Attempt {
	return &Attempt{state: StateIdle}
}

func (a *Attempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Attempt) Submit() error  { return a.transition(StateSubmitting) }
func (a *Attempt) Succeed() error { return a.transition(StateSettled) }
func (a *Attempt) Fail() error    { return a.transition(StateFailed) }

func (a *Attempt) transition(to State) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, next := range allowedTransitions[a.state] {
		if next == to {
			a.state = to
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, "settlement state transition not allowed").
		WithDetails(map[string]any{"from": a.state, "to": to})
}
