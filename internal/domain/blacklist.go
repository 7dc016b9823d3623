package domain

import "time"

// BlacklistEntry marks an app id known to yield no usable detail data.
// Repeated failures bump AttemptCount instead of creating duplicates.
type BlacklistEntry struct {
	ID           int64     `db:"id"`
	AppID        int64     `db:"app_id"`
	Name         string    `db:"name"`
	Reason       string    `db:"reason"`
	AttemptCount int       `db:"attempt_count"`
	LastAttempt  time.Time `db:"last_attempt"`
	CreatedAt    time.Time `db:"created_at"`
}
