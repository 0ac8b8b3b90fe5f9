// Package queue defines message payloads exchanged over RabbitMQ and the
// consumer for deck import results.
package queue

import "time"

// Queue names.  Every queue is durable and published to through the
// default exchange with the queue name as routing key.
const (
	DeckImportRequestedQueue = "deck.import.requested"
	DeckImportCompletedQueue = "deck.import.completed"
	ProfileSyncedQueue       = "profile.synced"
)

// DeckImportRequested asks the external deck scraper to import a deck.
type DeckImportRequested struct {
	RequestID   string    `json:"request_id"`
	SourceURL   string    `json:"source_url"`
	RequestedBy string    `json:"requested_by"`
	RequestedAt time.Time `json:"requested_at"`
}

// DeckImportCompleted is reported by the scraper once a deck was read.
type DeckImportCompleted struct {
	RequestID     string `json:"request_id"`
	SourceURL     string `json:"source_url"`
	Title         string `json:"title"`
	Commander     string `json:"commander"`
	ColorIdentity string `json:"color_identity"`
	Description   string `json:"description"`
	MinTier       string `json:"min_tier"`
}

// ProfileSynced is published after a successful Patreon link.
type ProfileSynced struct {
	AccountID    string    `json:"account_id"`
	Tier         string    `json:"tier"`
	Role         string    `json:"role"`
	IsNewAccount bool      `json:"is_new_account"`
	SyncedAt     time.Time `json:"synced_at"`
}
