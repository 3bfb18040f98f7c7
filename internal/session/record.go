package session

import "time"

// Record binds a locally held account to the pairing topic that is allowed to
// use it. Expiry is a unix timestamp in seconds.
type Record struct {
	Account string `json:"account"`
	Topic   string `json:"topic"`
	Expiry  int64  `json:"expiry"`
}

// Expired reports whether the record is no longer usable at now.
// A record expires at its expiry second, not after it.
func (r Record) Expired(now time.Time) bool {
	return now.Unix() >= r.Expiry
}

// Backend persists the complete record table. Save must be durable when it
// returns nil.
type Backend interface {
	Load() ([]Record, error)
	Save(records []Record) error
}
