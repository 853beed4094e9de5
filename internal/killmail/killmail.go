// Killfeed - Real-Time Killmail Tracking and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

// Package killmail defines the killmail event model and the payload
// extraction rules for the stream's legacy key-naming variants.
package killmail

import (
	"errors"
	"time"

	"github.com/goccy/go-json"
)

// Extraction errors. Each is terminal for the single event that produced
// it; the same payload will not become valid on retry.
var (
	// ErrMissingKillmailID is returned when no killmail id field is present.
	ErrMissingKillmailID = errors.New("missing killmail id")

	// ErrMissingSystemID is returned when no system id field is present.
	ErrMissingSystemID = errors.New("missing system id")

	// ErrInvalidSystemID is returned when a system id field is present but
	// not coercible to an integer.
	ErrInvalidSystemID = errors.New("invalid system id")
)

// EntityRef identifies the parties attached to a killmail. All fields are
// optional; zero means absent.
type EntityRef struct {
	CharacterID   int64 `json:"character_id,omitempty"`
	CorporationID int64 `json:"corporation_id,omitempty"`
	AllianceID    int64 `json:"alliance_id,omitempty"`
	ShipTypeID    int64 `json:"ship_type_id,omitempty"`
}

// Empty reports whether the reference carries no identifiers at all.
func (r EntityRef) Empty() bool {
	return r.CharacterID == 0 && r.CorporationID == 0 && r.AllianceID == 0 && r.ShipTypeID == 0
}

// Attacker is an EntityRef plus the final-blow flag.
type Attacker struct {
	EntityRef
	FinalBlow bool `json:"final_blow,omitempty"`
}

// Item is a single priced item from the victim's fitting or cargo.
// Populated lazily by enrichment.
type Item struct {
	TypeID   int64   `json:"type_id"`
	Name     string  `json:"name,omitempty"`
	Quantity int64   `json:"quantity"`
	Value    float64 `json:"value,omitempty"`
}

// Killmail is the immutable event value the pipeline operates on.
// ID and SystemID are always set after successful construction.
type Killmail struct {
	ID         string          `json:"killmail_id"`
	SystemID   int64           `json:"system_id"`
	Victim     EntityRef       `json:"victim"`
	Attackers  []Attacker      `json:"attackers,omitempty"`
	TotalValue float64         `json:"total_value,omitempty"`
	Items      []Item          `json:"items,omitempty"`
	OccurredAt time.Time       `json:"occurred_at,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
	Raw        json.RawMessage `json:"-"`
}

// WithItems returns a copy of the killmail carrying the priced item list
// and total value. The receiver is not mutated; enrichment always yields a
// new value.
func (k *Killmail) WithItems(items []Item, totalValue float64) *Killmail {
	enriched := *k
	enriched.Items = items
	enriched.TotalValue = totalValue
	return &enriched
}

// FinalBlow returns the attacker flagged as having landed the final blow,
// or an empty Attacker when none is flagged.
func (k *Killmail) FinalBlow() Attacker {
	for _, a := range k.Attackers {
		if a.FinalBlow {
			return a
		}
	}
	return Attacker{}
}
