package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Player is the durable per-player document for one tenant. It aggregates
// everything known about a player: name history, staff notes, IP sessions and
// punishments. Players are created on first sighting of their stable id and
// are never hard-deleted.
type Player struct {
	ObjectID  primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`

	// ID is the stable player id (e.g. the game account UUID), unique per tenant.
	ID string `bson:"id" json:"id"`

	Usernames   []UsernameEntry  `bson:"usernames,omitempty" json:"usernames,omitempty"`
	Notes       []StaffNote      `bson:"notes,omitempty" json:"notes,omitempty"`
	IPs         []IPSession      `bson:"ips,omitempty" json:"ips,omitempty"`
	Punishments []Punishment     `bson:"punishments,omitempty" json:"punishments,omitempty"`
	Data        map[string]Value `bson:"data,omitempty" json:"data,omitempty"`
}

// UsernameEntry is one entry in a player's ordered username history.
type UsernameEntry struct {
	Name string    `bson:"name" json:"name"`
	At   time.Time `bson:"at" json:"at"`
}

// StaffNote is an append-only staff note on a player or punishment.
type StaffNote struct {
	Author  string    `bson:"author,omitempty" json:"author,omitempty"`
	Text    string    `bson:"text" json:"text"`
	AddedAt time.Time `bson:"added_at" json:"added_at"`
}

// IPSession records one IP address seen for a player, keyed by address
// within the player. The classification fields are filled by enrichment and
// kept once set.
type IPSession struct {
	Address    string      `bson:"address" json:"address"`
	Country    string      `bson:"country,omitempty" json:"country,omitempty"`
	Region     string      `bson:"region,omitempty" json:"region,omitempty"`
	ASN        string      `bson:"asn,omitempty" json:"asn,omitempty"`
	Proxy      *bool       `bson:"proxy,omitempty" json:"proxy,omitempty"`
	Hosting    *bool       `bson:"hosting,omitempty" json:"hosting,omitempty"`
	FirstLogin time.Time   `bson:"first_login" json:"first_login"`
	Logins     []time.Time `bson:"logins,omitempty" json:"logins,omitempty"`
}
