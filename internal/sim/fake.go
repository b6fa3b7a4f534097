package sim

import (
	"sync"

	"github.com/gvance/cyclebridge/internal/control"
)

// Fake records everything sent to the simulator for test assertions.
type Fake struct {
	mu       sync.Mutex
	Commands []control.Command
	Views    []string
	Replays  []string
	Destroys int
	Neutral  int

	// State is returned by Vehicle when HaveState is set.
	State     control.VehicleState
	HaveState bool

	// ApplyError, if set, is returned by Apply.
	ApplyError error
}

// NewFake creates an empty Fake.
func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) Apply(cmd control.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ApplyError != nil {
		return f.ApplyError
	}
	f.Commands = append(f.Commands, cmd)
	return nil
}

func (f *Fake) Neutralize() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Neutral++
	return nil
}

func (f *Fake) SwitchView(target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Views = append(f.Views, target)
	return nil
}

func (f *Fake) Replay(file string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Replays = append(f.Replays, file)
	return nil
}

func (f *Fake) DestroyVehicles() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Destroys++
	return nil
}

func (f *Fake) Vehicle() (control.VehicleState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.State, f.HaveState
}

func (f *Fake) Close() error { return nil }

// AppliedCommands returns a copy of the commands received so far.
func (f *Fake) AppliedCommands() []control.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]control.Command(nil), f.Commands...)
}
