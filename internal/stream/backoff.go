// Killfeed - Real-Time Killmail Tracking and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package stream

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// newReconnectBackoff builds the reconnect schedule: base × 2^attempt with
// ±10% jitter, capped at max, never giving up. A persistent outage degrades
// to slow polling at the cap rather than terminating the client.
func newReconnectBackoff(base, max time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = 2
	b.RandomizationFactor = 0.1
	b.MaxInterval = max
	b.MaxElapsedTime = 0 // retry forever
	b.Reset()
	return b
}
