// Package punishments derives a punishment's current status from its base
// fields and append-only modification history. Both the live display path
// and imported data go through Derive, so the two can never disagree on what
// "active", "expired" and "pardoned" mean.
package punishments

import (
	"sort"
	"time"

	"github.com/wardenpanel/warden-backend/internal/models"
)

// EffectiveState is a punishment's status after folding its modification
// events over the base fields.
type EffectiveState struct {
	Active bool `json:"active"`
	// Expiry is nil for permanent punishments.
	Expiry *time.Time `json:"expiry,omitempty"`
	// Duration is the effective duration in milliseconds, nil when the base
	// punishment carried none and no duration change arrived.
	Duration         *int64 `json:"duration,omitempty"`
	HasModifications bool   `json:"has_modifications"`
}

// Derive folds p's modification events, in issued order (ties keep insertion
// order), over its base fields. It is deterministic and side-effect free.
//
// A pardon or accepted appeal is terminal: it deactivates the punishment and
// no later event re-activates it, though a later duration change still
// updates the recorded expiry and duration. An original expiry in the past is
// authoritative over a stale stored active flag.
func Derive(p *models.Punishment, now time.Time) EffectiveState {
	st := EffectiveState{
		Active:           p.Active,
		Expiry:           p.Expiry,
		Duration:         p.Duration,
		HasModifications: len(p.Modifications) > 0,
	}

	// Lazy expiry: nothing un-expires a punishment whose window has passed.
	if p.Expiry != nil && !p.Expiry.After(now) {
		st.Active = false
	}
	if len(p.Modifications) == 0 {
		return st
	}

	events := make([]models.ModificationEvent, len(p.Modifications))
	copy(events, p.Modifications)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].IssuedAt.Before(events[j].IssuedAt)
	})

	pardoned := false
	for _, ev := range events {
		switch ev.Type {
		case models.ModPardon, models.ModAppealAccept:
			st.Active = false
			pardoned = true
		case models.ModDurationChange:
			if ev.NewDuration == nil {
				continue
			}
			d := *ev.NewDuration
			st.Duration = &d
			if d <= 0 {
				// Permanent from here on.
				st.Expiry = nil
				if !pardoned {
					st.Active = true
				}
			} else {
				expiry := ev.IssuedAt.Add(time.Duration(d) * time.Millisecond)
				st.Expiry = &expiry
				if !pardoned {
					st.Active = expiry.After(now)
				}
			}
		}
	}
	return st
}
