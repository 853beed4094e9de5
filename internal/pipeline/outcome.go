// Killfeed - Real-Time Killmail Tracking and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package pipeline

// Kind is the terminal outcome class for one killmail.
type Kind int

const (
	// Notified means the killmail was handed to the dispatcher.
	Notified Kind = iota

	// Skipped means the killmail was deliberately not notified.
	Skipped

	// Errored means the killmail could not be processed.
	Errored
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case Notified:
		return "notified"
	case Skipped:
		return "skipped"
	default:
		return "error"
	}
}

// Reason qualifies a Skipped or Errored outcome.
type Reason string

const (
	ReasonNone                  Reason = ""
	ReasonDuplicate             Reason = "duplicate"
	ReasonNotificationsDisabled Reason = "notifications_disabled"
	ReasonNotTracked            Reason = "not_tracked"
	ReasonMissingKillmailID     Reason = "missing_killmail_id"
	ReasonMissingSystemID       Reason = "missing_system_id"
	ReasonInvalidSystemID       Reason = "invalid_system_id"
	ReasonPipelineCrash         Reason = "pipeline_crash"
)

// Outcome is the terminal result of running the pipeline for one killmail.
type Outcome struct {
	Kind       Kind
	Reason     Reason
	KillmailID string
}

// Counters is a snapshot of pipeline outcome totals for the operational
// surface.
type Counters struct {
	Notified int64 `json:"notified"`
	Skipped  int64 `json:"skipped"`
	Errored  int64 `json:"errored"`
	Dropped  int64 `json:"dropped"`
}
