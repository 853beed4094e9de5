// Killfeed - Real-Time Killmail Tracking and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package killmail

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// The stream has shipped several payload generations; id and system fields
// appear under different keys depending on the producer version. Each
// naming variant is an extraction strategy, tried in order. The first
// strategy whose key is present wins; later strategies are not consulted
// even when the winning value fails to coerce.

// idStrategies lists the accepted killmail id keys, newest first.
var idStrategies = []string{"killmail_id", "kill_id"}

// systemStrategy is one accepted location for the system id field.
type systemStrategy struct {
	key    string
	nested string // non-empty = look inside this top-level object
}

// systemStrategies lists the accepted system id locations, newest first.
// The nested variant covers producers that wrap the killmail body under a
// "killmail" envelope key.
var systemStrategies = []systemStrategy{
	{key: "solar_system_id"},
	{key: "system_id"},
	{key: "solar_system_id", nested: "killmail"},
}

// ExtractID pulls the killmail id out of a decoded payload. Numeric ids
// are normalized to their decimal string form. Returns ErrMissingKillmailID
// when no id field is present or the value is empty.
func ExtractID(payload map[string]any) (string, error) {
	for _, key := range idStrategies {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		id := coerceID(raw)
		if id == "" {
			return "", ErrMissingKillmailID
		}
		return id, nil
	}
	return "", ErrMissingKillmailID
}

// ExtractSystemID pulls the system id out of a decoded payload. Returns
// ErrMissingSystemID when no known field is present, ErrInvalidSystemID
// when a field is present but not coercible to an integer.
func ExtractSystemID(payload map[string]any) (int64, error) {
	for _, strategy := range systemStrategies {
		source := payload
		if strategy.nested != "" {
			nested, ok := payload[strategy.nested].(map[string]any)
			if !ok {
				continue
			}
			source = nested
		}

		raw, ok := source[strategy.key]
		if !ok {
			continue
		}
		id, ok := coerceInt64(raw)
		if !ok {
			return 0, ErrInvalidSystemID
		}
		return id, nil
	}
	return 0, ErrMissingSystemID
}

// FromPayload constructs a Killmail from a raw stream payload. The id and
// system id must resolve through the extraction strategies; victim and
// attacker fields are best-effort.
func FromPayload(raw []byte) (*Killmail, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, ErrMissingKillmailID
	}
	return FromDecoded(raw, payload)
}

// FromDecoded constructs a Killmail from an already-decoded payload,
// avoiding a second unmarshal on the pipeline hot path.
func FromDecoded(raw []byte, payload map[string]any) (*Killmail, error) {
	id, err := ExtractID(payload)
	if err != nil {
		return nil, err
	}

	systemID, err := ExtractSystemID(payload)
	if err != nil {
		return nil, err
	}

	k := &Killmail{
		ID:         id,
		SystemID:   systemID,
		Victim:     decodeEntityRef(payload["victim"]),
		Attackers:  decodeAttackers(payload["attackers"]),
		ReceivedAt: time.Now().UTC(),
		Raw:        append(json.RawMessage(nil), raw...),
	}

	if value, ok := coerceFloat(payload["total_value"]); ok {
		k.TotalValue = value
	} else if zkb, ok := payload["zkb"].(map[string]any); ok {
		// zkb envelope carries the appraised value on some producers
		if value, ok := coerceFloat(zkb["totalValue"]); ok {
			k.TotalValue = value
		}
	}

	if ts, ok := payload["killmail_time"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			k.OccurredAt = parsed.UTC()
		}
	}

	return k, nil
}

func decodeEntityRef(raw any) EntityRef {
	obj, ok := raw.(map[string]any)
	if !ok {
		return EntityRef{}
	}
	ref := EntityRef{}
	if v, ok := coerceInt64(obj["character_id"]); ok {
		ref.CharacterID = v
	}
	if v, ok := coerceInt64(obj["corporation_id"]); ok {
		ref.CorporationID = v
	}
	if v, ok := coerceInt64(obj["alliance_id"]); ok {
		ref.AllianceID = v
	}
	if v, ok := coerceInt64(obj["ship_type_id"]); ok {
		ref.ShipTypeID = v
	}
	return ref
}

func decodeAttackers(raw any) []Attacker {
	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return nil
	}
	attackers := make([]Attacker, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		attacker := Attacker{EntityRef: decodeEntityRef(item)}
		if flag, ok := obj["final_blow"].(bool); ok {
			attacker.FinalBlow = flag
		}
		attackers = append(attackers, attacker)
	}
	return attackers
}

// coerceID normalizes an id value to its decimal string form.
// Returns "" when the value is empty or not id-shaped.
func coerceID(raw any) string {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v != math.Trunc(v) {
			return ""
		}
		return strconv.FormatInt(int64(v), 10)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// coerceInt64 converts a decoded JSON value to an integer. Fractional
// numbers and non-numeric strings do not coerce.
func coerceInt64(raw any) (int64, bool) {
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int64(v), true
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	case json.Number:
		parsed, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func coerceFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
