// Killfeed - Real-Time Killmail Tracking and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package stream

import (
	"time"
)

// State is the stream client's connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Authenticating
	Subscribing
	Active
	Reconnecting
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Authenticating:
		return "authenticating"
	case Subscribing:
		return "subscribing"
	case Active:
		return "active"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// subscription is the per-connection state. It is owned by the client's
// run loop: created on connect, replaced wholesale on every reconnect,
// never mutated piecemeal across connections.
type subscription struct {
	connectionID string
	connectedAt  time.Time
	systems      []int64
	characters   []int64
}

// Status is a point-in-time snapshot of the client for the operational
// surface. Safe to hand out; it shares no state with the run loop.
type Status struct {
	State             string    `json:"state"`
	Connected         bool      `json:"connected"`
	ConnectionID      string    `json:"connection_id,omitempty"`
	ConnectedAt       time.Time `json:"connected_at,omitempty"`
	ReconnectAttempts int       `json:"reconnect_attempts"`
	SubscribedSystems int       `json:"subscribed_systems"`
	SubscribedChars   int       `json:"subscribed_characters"`
}

// controlMessage is the outbound handshake/subscription frame.
type controlMessage struct {
	Action     string  `json:"action"`
	Token      string  `json:"token,omitempty"`
	Systems    []int64 `json:"systems,omitempty"`
	Characters []int64 `json:"characters,omitempty"`
}

// ackMessage is the inbound acknowledgement frame.
type ackMessage struct {
	Type  string `json:"type"`
	Error string `json:"error,omitempty"`
}

// Acknowledgement frame types.
const (
	ackAuthOK     = "auth_ok"
	ackSubscribed = "subscribed"
	ackError      = "error"
)
