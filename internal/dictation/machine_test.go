package dictation_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/MrWong99/cystoscribe/internal/dictation"
)

func TestMachine_CaptureLifecycle(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		states []dictation.State
	)
	m := dictation.NewMachine(func(i dictation.Info) {
		mu.Lock()
		states = append(states, i.State)
		mu.Unlock()
	})

	if err := m.StartCapture("a"); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	if info := m.Info(); info.State != dictation.StateCapturing || info.Owner != "a" {
		t.Fatalf("Info = %+v, want capturing by a", info)
	}
	if err := m.BeginProcessing("a"); err != nil {
		t.Fatalf("BeginProcessing: %v", err)
	}
	if err := m.Finish("a"); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if info := m.Info(); info.State != dictation.StateIdle || info.Owner != "" {
		t.Fatalf("Info = %+v, want idle without owner", info)
	}

	want := []dictation.State{dictation.StateCapturing, dictation.StateProcessing, dictation.StateIdle}
	mu.Lock()
	defer mu.Unlock()
	if len(states) != len(want) {
		t.Fatalf("transitions = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, states[i], want[i])
		}
	}
}

func TestMachine_OneShotFromIdle(t *testing.T) {
	t.Parallel()

	m := dictation.NewMachine(nil)
	if err := m.BeginProcessing("upload"); err != nil {
		t.Fatalf("BeginProcessing: %v", err)
	}
	if err := m.StartCapture("other"); !errors.Is(err, dictation.ErrBusy) {
		t.Errorf("StartCapture while processing: err = %v, want ErrBusy", err)
	}
	if err := m.Finish("upload"); err != nil {
		t.Fatalf("Finish: %v", err)
	}
}

func TestMachine_Transitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(m *dictation.Machine)
		op    func(m *dictation.Machine) error
		want  error
	}{
		{
			name:  "second capture is busy",
			setup: func(m *dictation.Machine) { _ = m.StartCapture("a") },
			op:    func(m *dictation.Machine) error { return m.StartCapture("b") },
			want:  dictation.ErrBusy,
		},
		{
			name:  "same owner cannot start twice",
			setup: func(m *dictation.Machine) { _ = m.StartCapture("a") },
			op:    func(m *dictation.Machine) error { return m.StartCapture("a") },
			want:  dictation.ErrBusy,
		},
		{
			name:  "other owner cannot process a capture",
			setup: func(m *dictation.Machine) { _ = m.StartCapture("a") },
			op:    func(m *dictation.Machine) error { return m.BeginProcessing("b") },
			want:  dictation.ErrBusy,
		},
		{
			name:  "other owner cannot stop a capture",
			setup: func(m *dictation.Machine) { _ = m.StartCapture("a") },
			op:    func(m *dictation.Machine) error { return m.StopCapture("b") },
			want:  dictation.ErrNotOwner,
		},
		{
			name:  "stop while idle",
			setup: func(m *dictation.Machine) {},
			op:    func(m *dictation.Machine) error { return m.StopCapture("a") },
			want:  dictation.ErrNotOwner,
		},
		{
			name:  "stop while processing",
			setup: func(m *dictation.Machine) { _ = m.BeginProcessing("a") },
			op:    func(m *dictation.Machine) error { return m.StopCapture("a") },
			want:  dictation.ErrBusy,
		},
		{
			name:  "finish a capture",
			setup: func(m *dictation.Machine) { _ = m.StartCapture("a") },
			op:    func(m *dictation.Machine) error { return m.Finish("a") },
			want:  dictation.ErrNotOwner,
		},
		{
			name:  "finish someone else's run",
			setup: func(m *dictation.Machine) { _ = m.BeginProcessing("a") },
			op:    func(m *dictation.Machine) error { return m.Finish("b") },
			want:  dictation.ErrNotOwner,
		},
		{
			name:  "stop own capture",
			setup: func(m *dictation.Machine) { _ = m.StartCapture("a") },
			op:    func(m *dictation.Machine) error { return m.StopCapture("a") },
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := dictation.NewMachine(nil)
			tt.setup(m)
			before := m.Info()
			err := tt.op(m)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if err != nil && m.Info().State != before.State {
				t.Errorf("failed transition changed state %v → %v", before.State, m.Info().State)
			}
		})
	}
}

func TestMachine_Release(t *testing.T) {
	t.Parallel()

	m := dictation.NewMachine(nil)
	_ = m.StartCapture("a")
	if m.Release("b") {
		t.Error("Release by non-owner succeeded")
	}
	if !m.Release("a") {
		t.Error("Release by owner failed")
	}
	if m.Info().State != dictation.StateIdle {
		t.Errorf("state = %v, want idle", m.Info().State)
	}
	if m.Release("a") {
		t.Error("Release on idle machine succeeded")
	}
}

func TestMachine_ConcurrentStart(t *testing.T) {
	t.Parallel()

	m := dictation.NewMachine(nil)
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.StartCapture(string(rune('a'+i))) == nil {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if won != 1 {
		t.Errorf("%d captures started, want exactly 1", won)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	for s, want := range map[dictation.State]string{
		dictation.StateIdle:       "idle",
		dictation.StateCapturing:  "capturing",
		dictation.StateProcessing: "processing",
		dictation.State(9):        "unknown",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
