package model

import "time"

// SessionState is the vault session's lifecycle state.
type SessionState string

const (
	StateUninitialized SessionState = "uninitialized"
	StateLocked        SessionState = "locked"
	StateUnlocked      SessionState = "unlocked"
)

// EventType distinguishes core notifications.
type EventType string

const (
	EventLocked    EventType = "locked"
	EventUnlocked  EventType = "unlocked"
	EventOperation EventType = "operation"
)

// Haptic names the Telegram haptic notification the Mini App should play.
type Haptic string

const (
	HapticSuccess Haptic = "success"
	HapticError   Haptic = "error"
	HapticWarning Haptic = "warning"
)

// Event is emitted by the vault after state transitions and operations.
// Kind is the error kind for failed operations and empty on success.
type Event struct {
	Type   EventType
	State  SessionState
	Op     string
	Kind   string
	Haptic Haptic
	At     time.Time
}
