package domain

import "time"

// SyncStats holds statistics about one reconciliation run.
type SyncStats struct {
	Processed   int
	Added       int
	Updated     int
	Blacklisted int
	Skipped     int
	Errors      int
	Duration    time.Duration
}

// Stats summarizes the stored catalog for the read API.
type Stats struct {
	TotalGames       int64      `json:"total_games"`
	TotalBlacklisted int64      `json:"total_blacklisted"`
	FreeGames        int64      `json:"free_games"`
	DiscountedGames  int64      `json:"discounted_games"`
	OldestUpdate     *time.Time `json:"oldest_update"`
	NewestUpdate     *time.Time `json:"newest_update"`
}
