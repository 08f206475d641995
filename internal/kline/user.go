package kline

import "time"

// User is one registered account: a login name, a bcrypt password hash, and
// the anomaly-filter configuration the session registry restores whenever
// that name logs in again. It is the unit the user store persists.
type User struct {
	ID           int64
	Name         string
	PasswordHash string
	Config       UserConfig
	CreatedAt    time.Time
	LastLogin    time.Time
}
