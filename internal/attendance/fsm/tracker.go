// Package fsm holds the location tracker state machine that mobile clients
// run against an open attendance session. The machine turns raw location
// readings into propose/cancel actions for the auto-checkout API; it keeps
// no authority of its own, the server decides what actually happens.
package fsm

import "time"

// State is the tracker's position in the auto-checkout lifecycle.
type State string

const (
	// StateIdle means the employee looks fine: GPS on, inside the branch.
	StateIdle State = "IDLE"
	// StateWarning means outside readings are accumulating but have not
	// reached the verification threshold yet.
	StateWarning State = "WARNING"
	// StateCountdown means a proposal is live and the deadline is running.
	StateCountdown State = "COUNTDOWN"
	// StateDone means the deadline passed; the server owns the session now.
	StateDone State = "DONE"
)

// Reason mirrors the proposal reasons the server accepts.
type Reason string

const (
	ReasonGPSBlocked    Reason = "GPS_BLOCKED"
	ReasonOutsideBranch Reason = "OUTSIDE_BRANCH"
)

// recoveryReadings is how many consecutive healthy readings it takes to
// stand down from WARNING or call a countdown off. One good reading can be
// a GPS glitch; two are not.
const recoveryReadings = 2

// Reading is one location sample.
type Reading struct {
	At       time.Time
	GPSOk    bool
	InBranch bool
}

// ActionKind tells the client what API call, if any, a reading produced.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionPropose
	ActionCancel
)

// Action is the tracker's output for one reading.
type Action struct {
	Kind   ActionKind
	Reason Reason
	EndsAt time.Time
}

// Tracker is the client-side location state machine. Not safe for
// concurrent use; clients feed it from a single sampling loop.
type Tracker struct {
	// verifyReadings is how many consecutive outside-branch readings are
	// needed before proposing. A GPS-off reading skips verification
	// entirely, there is nothing to double-check when the signal is gone.
	verifyReadings int
	countdown      time.Duration

	state          State
	reason         Reason
	endsAt         time.Time
	outsideStreak  int
	recoveryStreak int
}

// NewTracker creates a tracker with the company's verification threshold and
// auto-checkout delay.
func NewTracker(verifyReadings int, countdown time.Duration) *Tracker {
	if verifyReadings < 1 {
		verifyReadings = 1
	}
	return &Tracker{
		verifyReadings: verifyReadings,
		countdown:      countdown,
		state:          StateIdle,
	}
}

// State returns the current state.
func (t *Tracker) State() State {
	return t.state
}

// Deadline returns the live countdown deadline, zero when no countdown runs.
func (t *Tracker) Deadline() time.Time {
	if t.state != StateCountdown {
		return time.Time{}
	}
	return t.endsAt
}

// Reset returns the tracker to IDLE for a new session.
func (t *Tracker) Reset() {
	t.state = StateIdle
	t.reason = ""
	t.endsAt = time.Time{}
	t.outsideStreak = 0
	t.recoveryStreak = 0
}

// Observe feeds one reading through the machine and returns the action the
// client should take.
func (t *Tracker) Observe(r Reading) Action {
	switch t.state {
	case StateIdle, StateWarning:
		return t.observeTracking(r)
	case StateCountdown:
		return t.observeCountdown(r)
	default:
		return Action{Kind: ActionNone}
	}
}

func (t *Tracker) observeTracking(r Reading) Action {
	if !r.GPSOk {
		// No signal means no verification is possible; propose at once.
		return t.startCountdown(ReasonGPSBlocked, r.At)
	}

	if r.InBranch {
		if t.state == StateWarning {
			t.recoveryStreak++
			if t.recoveryStreak < recoveryReadings {
				return Action{Kind: ActionNone}
			}
		}
		t.state = StateIdle
		t.outsideStreak = 0
		t.recoveryStreak = 0
		return Action{Kind: ActionNone}
	}

	t.recoveryStreak = 0
	t.outsideStreak++
	if t.outsideStreak >= t.verifyReadings {
		return t.startCountdown(ReasonOutsideBranch, r.At)
	}

	t.state = StateWarning
	return Action{Kind: ActionNone}
}

func (t *Tracker) observeCountdown(r Reading) Action {
	if !r.At.Before(t.endsAt) {
		// Deadline passed; whatever happens now is the server's call.
		t.state = StateDone
		return Action{Kind: ActionNone}
	}

	if r.GPSOk && r.InBranch {
		t.recoveryStreak++
		if t.recoveryStreak >= recoveryReadings {
			t.Reset()
			return Action{Kind: ActionCancel}
		}
		return Action{Kind: ActionNone}
	}
	t.recoveryStreak = 0

	// Losing GPS while counting down for being outside is a different
	// condition; re-propose so the server supersedes the live pending.
	if !r.GPSOk && t.reason != ReasonGPSBlocked {
		return t.startCountdown(ReasonGPSBlocked, r.At)
	}

	return Action{Kind: ActionNone}
}

func (t *Tracker) startCountdown(reason Reason, at time.Time) Action {
	t.state = StateCountdown
	t.reason = reason
	t.endsAt = at.Add(t.countdown)
	t.outsideStreak = 0
	t.recoveryStreak = 0
	return Action{Kind: ActionPropose, Reason: reason, EndsAt: t.endsAt}
}
