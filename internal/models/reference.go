package models

// User is a reference entity owned by the admin subsystem. The ingestion
// core reads it, never writes it; a soft-deleted user counts as unknown.
type User struct {
	ID      string
	Name    string
	Deleted bool
}

// Currency is a reference entity. Precision is the number of decimal places
// the currency allows, used to validate amount formatting exactly.
type Currency struct {
	Code      string
	Name      string
	Precision int32
	Deleted   bool
}
