// Package model defines shared message structures for SerialShell.
package model

import "time"

// EventKind classifies an output event.
type EventKind string

const (
	// KindOutput is text received from the device.
	KindOutput EventKind = "output"
	// KindInfo is local informational text (port lists, help).
	KindInfo EventKind = "info"
	// KindStatus reports a change of device health or identity.
	KindStatus EventKind = "status"
	// KindError is a diagnostic line for a failed operation.
	KindError EventKind = "error"
)

// Well-known event sources besides command names.
const (
	SourceListener = "listener"
	SourceSession  = "session"
)

// Event is one entry of the session output log. Events are appended in
// arrival order and never modified afterwards.
type Event struct {
	Seq    uint64    `json:"seq" cbor:"1,keyasint"`
	Time   time.Time `json:"time" cbor:"2,keyasint"`
	Kind   EventKind `json:"kind" cbor:"3,keyasint"`
	Source string    `json:"source" cbor:"4,keyasint"`
	Text   string    `json:"text" cbor:"5,keyasint"`
}

// StatusReport is the device/session snapshot served by the monitor and the
// status command.
type StatusReport struct {
	SessionID  string `json:"session_id"`
	Device     string `json:"device"`
	Degraded   string `json:"degraded,omitempty"`
	Generation uint64 `json:"generation"`
	Events     int    `json:"events"`
	InFlight   int    `json:"in_flight"`
}
