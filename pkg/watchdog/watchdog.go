package watchdog

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// AgentState mirrors the remote agent's lifecycle as reported by the room.
type AgentState string

const (
	AgentConnecting   AgentState = "connecting"
	AgentInitializing AgentState = "initializing"
	AgentListening    AgentState = "listening"
	AgentThinking     AgentState = "thinking"
	AgentSpeaking     AgentState = "speaking"
	AgentUnavailable  AgentState = "unavailable"
)

// Available reports whether the state means the agent is reachable and
// responsive.
func (s AgentState) Available() bool {
	return s == AgentListening || s == AgentThinking || s == AgentSpeaking
}

// State is the watchdog's own lifecycle. StateAvailable and StateTimedOut are
// terminal; the watchdog is torn down after either.
type State string

const (
	StateWaitingForAgent State = "waiting_for_agent"
	StateAvailable       State = "available"
	StateTimedOut        State = "timed_out"
)

// DefaultDeadline bounds how long the agent gets to become available after the
// session starts.
const DefaultDeadline = 20 * time.Second

// Report describes a timeout to the owning session. Reason differentiates an
// agent that never joined from one that joined but stalled during init, based
// on the last state observed before the deadline.
type Report struct {
	LastState AgentState
	Reason    string
}

// Watchdog supervises session start-up health: once started it waits for the
// agent to reach an available state within the deadline, and otherwise invokes
// the timeout callback exactly once. The callback owns teardown (disconnect,
// user-facing surface); the watchdog never retries.
type Watchdog struct {
	deadline  time.Duration
	onTimeout func(Report)

	mu       sync.Mutex
	state    State
	last     AgentState
	timer    *time.Timer
	started  bool
	disposed bool
}

type Option func(*Watchdog)

func WithDeadline(d time.Duration) Option {
	return func(w *Watchdog) {
		if d > 0 {
			w.deadline = d
		}
	}
}

func New(onTimeout func(Report), opts ...Option) *Watchdog {
	w := &Watchdog{
		deadline:  DefaultDeadline,
		onTimeout: onTimeout,
		state:     StateWaitingForAgent,
		last:      AgentConnecting,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start arms the deadline timer. Call it when the session-started signal is
// asserted. Starting an already-armed or terminal watchdog is a no-op.
func (w *Watchdog) Start() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.disposed || w.state != StateWaitingForAgent {
		return
	}
	w.started = true
	w.timer = time.AfterFunc(w.deadline, w.fire)
	log.Debug().Str("component", "watchdog").Dur("deadline", w.deadline).Msg("session health watchdog armed")
}

// Observe records an agent-state transition. The first available state moves
// the watchdog to StateAvailable and cancels the pending timer; the watchdog
// will never fire afterwards.
func (w *Watchdog) Observe(s AgentState) {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.last = s
	if w.state != StateWaitingForAgent || !s.Available() {
		return
	}
	w.state = StateAvailable
	w.stopTimerLocked()
	log.Debug().Str("component", "watchdog").Str("agent_state", string(s)).Msg("agent available, watchdog cancelled")
}

func (w *Watchdog) fire() {
	w.mu.Lock()
	if w.disposed || w.state != StateWaitingForAgent {
		w.mu.Unlock()
		return
	}
	w.state = StateTimedOut
	w.timer = nil
	last := w.last
	w.mu.Unlock()

	reason := "Agent connected but did not complete initializing."
	if last == AgentConnecting {
		reason = "Agent did not join the room."
	}
	log.Warn().Str("component", "watchdog").Str("last_agent_state", string(last)).Msg("agent never became available, tearing session down")
	if w.onTimeout != nil {
		w.onTimeout(Report{LastState: last, Reason: reason})
	}
}

// Stop disposes the watchdog early (e.g. the owning session is discarded
// before either terminal state). A pending timer is cancelled and will not
// fire.
func (w *Watchdog) Stop() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopTimerLocked()
	w.started = false
	w.disposed = true
}

func (w *Watchdog) stopTimerLocked() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *Watchdog) State() State {
	if w == nil {
		return StateWaitingForAgent
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Watchdog) LastAgentState() AgentState {
	if w == nil {
		return AgentConnecting
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}
