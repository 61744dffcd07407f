package dictation

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrBusy is returned when another capture or processing run holds the
	// machine, or when the transition is not allowed from the current state.
	ErrBusy = errors.New("dictation: a dictation is already in progress")

	// ErrNotOwner is returned when a caller tries to move a run it does not
	// hold.
	ErrNotOwner = errors.New("dictation: caller does not own the current dictation")
)

// State is the phase of the dictation machine.
type State int

const (
	// StateIdle accepts a new capture or a one-shot processing run.
	StateIdle State = iota
	// StateCapturing means a client is recording audio.
	StateCapturing
	// StateProcessing means a recording is being transcribed and turned
	// into a report.
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Info describes the machine at one point in time.
type Info struct {
	State State     `json:"state"`
	Owner string    `json:"owner,omitempty"`
	Since time.Time `json:"since"`
}

// Machine serialises dictations: at most one capture or processing run is in
// progress, and only the owner that started it may advance or end it.
//
//	Idle ──StartCapture──► Capturing ──BeginProcessing──► Processing ──Finish──► Idle
//	  │                        │                                                  ▲
//	  │                        └──StopCapture──► Idle                             │
//	  └──────────────────────BeginProcessing (one-shot)───────────────────────────┘
//
// All methods are safe for concurrent use.
type Machine struct {
	mu    sync.Mutex
	state State
	owner string
	since time.Time

	onChange func(Info)
	now      func() time.Time
}

// NewMachine returns an idle Machine. onChange, when non-nil, is called after
// every transition with the machine lock released.
func NewMachine(onChange func(Info)) *Machine {
	return &Machine{onChange: onChange, now: time.Now, since: time.Now()}
}

// Info returns the current state and owner.
func (m *Machine) Info() Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info()
}

func (m *Machine) info() Info {
	return Info{State: m.state, Owner: m.owner, Since: m.since}
}

// StartCapture moves Idle → Capturing for owner.
func (m *Machine) StartCapture(owner string) error {
	return m.transition(owner, func() (State, error) {
		if m.state != StateIdle {
			return 0, ErrBusy
		}
		return StateCapturing, nil
	})
}

// StopCapture abandons owner's capture: Capturing → Idle.
func (m *Machine) StopCapture(owner string) error {
	return m.transition(owner, func() (State, error) {
		if m.state == StateIdle || m.owner != owner {
			return 0, ErrNotOwner
		}
		if m.state != StateCapturing {
			return 0, ErrBusy
		}
		return StateIdle, nil
	})
}

// BeginProcessing moves owner's capture to Processing, or starts a one-shot
// run from Idle.
func (m *Machine) BeginProcessing(owner string) error {
	return m.transition(owner, func() (State, error) {
		switch {
		case m.state == StateIdle:
			return StateProcessing, nil
		case m.state == StateCapturing && m.owner == owner:
			return StateProcessing, nil
		default:
			return 0, ErrBusy
		}
	})
}

// Finish ends owner's processing run: Processing → Idle.
func (m *Machine) Finish(owner string) error {
	return m.transition(owner, func() (State, error) {
		if m.state != StateProcessing || m.owner != owner {
			return 0, ErrNotOwner
		}
		return StateIdle, nil
	})
}

// Release returns the machine to Idle if owner holds it in any state. It is
// used when a client disconnects mid-capture. It reports whether anything was
// released.
func (m *Machine) Release(owner string) bool {
	err := m.transition(owner, func() (State, error) {
		if m.state == StateIdle || m.owner != owner {
			return 0, ErrNotOwner
		}
		return StateIdle, nil
	})
	return err == nil
}

// transition applies next under the lock and notifies onChange on success.
func (m *Machine) transition(owner string, next func() (State, error)) error {
	m.mu.Lock()
	from := m.state
	to, err := next()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.state = to
	m.since = m.now()
	if to == StateIdle {
		m.owner = ""
	} else {
		m.owner = owner
	}
	info := m.info()
	m.mu.Unlock()

	slog.Debug("dictation state changed",
		"from", from.String(),
		"to", to.String(),
		"owner", owner,
	)
	if m.onChange != nil {
		m.onChange(info)
	}
	return nil
}
