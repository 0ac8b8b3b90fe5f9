package model

import "time"

// Profile is the per-account record holding Patreon linkage, tier and role.
// ID is the owning Account's id, never generated independently.
type Profile struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	ExternalID string    `json:"external_id"`
	Tier       Tier      `json:"-"`
	DiscordID  string    `json:"discord_id,omitempty"`
	Role       string    `json:"role"`
	UpdatedAt  time.Time `json:"updated_at"`
}
