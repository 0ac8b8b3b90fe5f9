package model

import "time"

// Deck is a Commander deck in the catalog.  MinTier gates who may view the
// full entry.  SourceURL identifies the deck on the deck-building platform
// it was imported from and is unique, so re-imports update in place.
type Deck struct {
	ID            uint64
	Title         string
	Commander     string
	ColorIdentity string
	SourceURL     string
	Description   string
	MinTier       Tier
	CreatedBy     string // account id, empty for imported decks
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
