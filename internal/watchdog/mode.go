package watchdog

import "sync/atomic"

// Mode tells the control loop what the next wake-up should do.
type Mode int

const (
	// ModeNormal: plain (re)start on the main port.
	ModeNormal Mode = iota
	// ModeTransferring: blue/green restart.
	ModeTransferring
)

func (m Mode) String() string {
	switch m {
	case ModeTransferring:
		return "transferring"
	default:
		return "normal"
	}
}

// modeFlag tracks reload requests as two counters instead of a bare
// boolean. The signal handler bumps requested; the loop records how far it
// got in handled once a blue/green restart finishes. A reload that lands
// while a restart is in flight therefore keeps the mode transferring for
// the next iteration instead of being cleared with the current one.
type modeFlag struct {
	requested atomic.Uint64
	handled   atomic.Uint64
}

// request marks a blue/green restart as wanted.
func (f *modeFlag) request() {
	f.requested.Add(1)
}

// snapshot returns the request count a restart starting now will satisfy.
func (f *modeFlag) snapshot() uint64 {
	return f.requested.Load()
}

// complete marks every request up to seq as handled.
func (f *modeFlag) complete(seq uint64) {
	for {
		cur := f.handled.Load()
		if seq <= cur || f.handled.CompareAndSwap(cur, seq) {
			return
		}
	}
}

func (f *modeFlag) load() Mode {
	if f.requested.Load() > f.handled.Load() {
		return ModeTransferring
	}
	return ModeNormal
}
