package poller

import "sync/atomic"

type State int32

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "idle"
}

// Guard admits one poll cycle at a time.
type Guard struct{ state atomic.Int32 }

// TryAcquire moves Idle to Running. It reports false if a cycle is running.
func (g *Guard) TryAcquire() bool {
	return g.state.CompareAndSwap(int32(StateIdle), int32(StateRunning))
}

func (g *Guard) Release() { g.state.Store(int32(StateIdle)) }

func (g *Guard) State() State { return State(g.state.Load()) }
