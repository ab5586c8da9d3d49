package models

import "time"

// RejectedRecord is the quarantine ledger entry for a raw record that failed
// any validation stage. Payload holds the inbound data verbatim for forensics.
type RejectedRecord struct {
	ID         string
	Payload    string
	Reason     Reason
	Detail     string // human-readable specifics, e.g. "Missing field: receiver_id"
	Source     string
	RejectedAt time.Time
}
