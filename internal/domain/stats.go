package domain

import "time"

// StatsPayload is the body a game client posts on every update.
// Numeric fields default to 0 and strings to "" when omitted; integral
// floats such as 500.0 are accepted for numeric fields
type StatsPayload struct {
	PlayerName     string         `json:"player_name" validate:"required"`
	UserID         Number         `json:"user_id"`
	Level          Number         `json:"level"`
	Beli           Number         `json:"beli"`
	Fragments      Number         `json:"fragments"`
	Bounty         Number         `json:"bounty"`
	Honor          Number         `json:"honor"`
	EquippedFruit  string         `json:"equipped_fruit"`
	FightingStyle  string         `json:"fighting_style"`
	SessionID      string         `json:"session_id"`
	FightingStyles *StylesPayload `json:"fighting_styles,omitempty"`
	Items          *ItemsPayload  `json:"items,omitempty"`
}

// StylesPayload lists the fighting styles a player owns
type StylesPayload struct {
	Owned []string `json:"owned"`
}

// ItemsPayload is the complete set of weapons a player holds
type ItemsPayload struct {
	Swords []string `json:"swords"`
	Guns   []string `json:"guns"`
}

// IngestResult is returned after a payload has been persisted
type IngestResult struct {
	Timestamp time.Time `json:"timestamp"`
	Player    string    `json:"player"`
}

// ActivityEntry is one line of the recent-activity feed
type ActivityEntry struct {
	Timestamp  string `json:"timestamp"`
	PlayerName string `json:"player_name"`
	Message    string `json:"message"`
}

// AggregateCounts summarizes the whole store for the dashboard header
type AggregateCounts struct {
	TotalPlayers int64 `json:"total_players"`
	TotalUpdates int64 `json:"total_updates"`
	AvgLevel     int64 `json:"avg_level"`
	ActiveNow    int64 `json:"active_now"`
}

// RecentAccounts is a page of the all-time account list
type RecentAccounts struct {
	Accounts   []AccountSummary `json:"accounts"`
	TotalCount int64            `json:"total_count"`
	Showing    int              `json:"showing"`
}

// Export is a point-in-time dump of every table
type Export struct {
	ExportTime     time.Time          `json:"export_time"`
	PlayerStats    []Snapshot         `json:"player_stats"`
	FightingStyles []AbilityOwnership `json:"fighting_styles"`
	PlayerItems    []Item             `json:"player_items"`
	ProgressLog    []ProgressEvent    `json:"progress_log"`
}

// PingInfo is the liveness probe response
type PingInfo struct {
	Message       string `json:"message"`
	Timestamp     string `json:"timestamp"`
	ActivePlayers int64  `json:"active_players"`
}

// Dashboard bundles everything the dashboard page renders
type Dashboard struct {
	Counts        AggregateCounts  `json:"counts"`
	ActivePlayers []AccountSummary `json:"active_players"`
	RecentUpdates []ActivityEntry  `json:"recent_updates"`
	GeneratedAt   time.Time        `json:"generated_at"`
}
