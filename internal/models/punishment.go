package models

import "time"

type PunishmentType int

const (
	PunishmentBan PunishmentType = iota
	PunishmentMute
	PunishmentWarn
	PunishmentKick
)

// Punishment is a moderation action with an append-only edit trail. Base
// fields are never rewritten after issue; later changes arrive as
// ModificationEvents, and the current status is always derived from the fold
// of base fields and events (see internal/punishments).
type Punishment struct {
	// ID is the stable punishment id, unique per tenant.
	ID       string         `bson:"id" json:"id"`
	Type     PunishmentType `bson:"type" json:"type"`
	Issuer   string         `bson:"issuer" json:"issuer"`
	IssuedAt time.Time      `bson:"issued_at" json:"issued_at"`
	// StartedAt is set when execution was deferred past issue time.
	StartedAt *time.Time `bson:"started_at,omitempty" json:"started_at,omitempty"`
	// Duration is the base duration in milliseconds. 0 and -1 mean permanent.
	Duration *int64     `bson:"duration,omitempty" json:"duration,omitempty"`
	Reason   string     `bson:"reason,omitempty" json:"reason,omitempty"`
	Active   bool       `bson:"active" json:"active"`
	Expiry   *time.Time `bson:"expiry,omitempty" json:"expiry,omitempty"`

	Notes         []StaffNote         `bson:"notes,omitempty" json:"notes,omitempty"`
	Evidence      []Evidence          `bson:"evidence,omitempty" json:"evidence,omitempty"`
	TicketIDs     []string            `bson:"ticket_ids,omitempty" json:"ticket_ids,omitempty"`
	Modifications []ModificationEvent `bson:"modifications,omitempty" json:"modifications,omitempty"`
	Data          map[string]Value    `bson:"data,omitempty" json:"data,omitempty"`
}

// Evidence is one piece of attached evidence (a link, screenshot reference, etc.).
type Evidence struct {
	Issuer  string    `bson:"issuer,omitempty" json:"issuer,omitempty"`
	Text    string    `bson:"text" json:"text"`
	AddedAt time.Time `bson:"added_at" json:"added_at"`
}

type ModificationType string

const (
	ModDurationChange ModificationType = "duration_change"
	ModPardon         ModificationType = "pardon"
	ModAppealAccept   ModificationType = "appeal_accept"
	ModAltBlocking    ModificationType = "alt_blocking"
	ModWipe           ModificationType = "wipe"
)

// ModificationEvent is one later edit to a punishment. Events only ever get
// appended; they never touch the punishment's base fields.
type ModificationEvent struct {
	Type     ModificationType `bson:"type" json:"type"`
	Issuer   string           `bson:"issuer" json:"issuer"`
	IssuedAt time.Time        `bson:"issued_at" json:"issued_at"`
	// NewDuration is the new effective duration in milliseconds for
	// duration_change events. <= 0 means permanent.
	NewDuration *int64 `bson:"new_duration,omitempty" json:"new_duration,omitempty"`
	Reason      string `bson:"reason,omitempty" json:"reason,omitempty"`
}
