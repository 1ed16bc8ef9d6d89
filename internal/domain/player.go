package domain

import "time"

// Item categories written by the ingestion path
const (
	ItemTypeSword = "Sword"
	ItemTypeGun   = "Gun"
)

// Snapshot is one point-in-time capture of a player's stats. Rows are
// append-only and never updated
type Snapshot struct {
	ID            int64     `json:"id"`
	PlayerName    string    `json:"player_name"`
	UserID        int64     `json:"user_id"`
	Level         int64     `json:"level"`
	Beli          int64     `json:"beli"`
	Fragments     int64     `json:"fragments"`
	Bounty        int64     `json:"bounty"`
	Honor         int64     `json:"honor"`
	EquippedFruit string    `json:"equipped_fruit"`
	FightingStyle string    `json:"fighting_style"`
	SessionID     string    `json:"session_id"`
	CreatedAt     time.Time `json:"timestamp"`
}

// AbilityOwnership records that a player owns a fighting style.
// The logical key is (PlayerName, StyleName)
type AbilityOwnership struct {
	ID         int64     `json:"id"`
	PlayerName string    `json:"player_name"`
	UserID     int64     `json:"user_id"`
	StyleName  string    `json:"style_name"`
	Owned      bool      `json:"owned"`
	UpdatedAt  time.Time `json:"timestamp"`
}

// Item is a weapon held by a player
type Item struct {
	ID         int64     `json:"id"`
	PlayerName string    `json:"player_name"`
	UserID     int64     `json:"user_id"`
	ItemName   string    `json:"item_name"`
	ItemType   string    `json:"item_type"`
	Rarity     *string   `json:"rarity"`
	CreatedAt  time.Time `json:"timestamp"`
}

// ProgressEvent is a recorded change in a player's progression
// (level_up, new_fruit, new_weapon, ...)
type ProgressEvent struct {
	ID         int64     `json:"id"`
	PlayerName string    `json:"player_name"`
	UserID     int64     `json:"user_id"`
	EventType  string    `json:"event_type"`
	OldValue   string    `json:"old_value"`
	NewValue   string    `json:"new_value"`
	CreatedAt  time.Time `json:"timestamp"`
}

// AccountSummary is the latest-snapshot projection used by the roster and
// the recent accounts list
type AccountSummary struct {
	Name          string    `json:"name"`
	UserID        int64     `json:"user_id"`
	Level         int64     `json:"level"`
	Beli          int64     `json:"beli"`
	Fragments     int64     `json:"fragments"`
	FightingStyle string    `json:"fighting_style"`
	EquippedFruit string    `json:"equipped_fruit"`
	LastUpdate    time.Time `json:"last_update"`
}

// OwnedStyle is a fighting style entry in an account detail
type OwnedStyle struct {
	Name  string `json:"name"`
	Owned bool   `json:"owned"`
}

// HeldItem is an item entry in an account detail
type HeldItem struct {
	Name   string  `json:"name"`
	Type   string  `json:"type"`
	Rarity *string `json:"rarity,omitempty"`
}

// AccountDetail is the latest snapshot of a player plus everything it owns
type AccountDetail struct {
	Name           string       `json:"name"`
	UserID         int64        `json:"user_id"`
	Level          int64        `json:"level"`
	Beli           int64        `json:"beli"`
	Fragments      int64        `json:"fragments"`
	FightingStyle  string       `json:"fighting_style"`
	EquippedFruit  string       `json:"equipped_fruit"`
	Bounty         int64        `json:"bounty"`
	Honor          int64        `json:"honor"`
	SessionID      string       `json:"session_id"`
	LastUpdate     time.Time    `json:"last_update"`
	FightingStyles []OwnedStyle `json:"fighting_styles"`
	Items          []HeldItem   `json:"items"`
}

// Session is the last known state of a player as seen by the session tracker
type Session struct {
	Name       string    `json:"name"`
	UserID     int64     `json:"user_id"`
	Level      int64     `json:"level"`
	Beli       int64     `json:"beli"`
	SessionID  string    `json:"session_id"`
	LastUpdate time.Time `json:"last_update"`
}
