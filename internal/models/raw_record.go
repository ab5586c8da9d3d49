package models

// RawRecord is an unvalidated inbound payment event from any source.
// All domain fields stay as strings until the schema validator has parsed
// them; Payload keeps the original bytes verbatim so a rejection can be
// replayed later.
type RawRecord struct {
	TransactionID string // optional; generated when the source omits it
	SenderID      string
	ReceiverID    string
	Amount        string
	Currency      string
	Timestamp     string
	Status        string

	// Delivery metadata, never validated.
	Source    string // "queue" or "csv"
	MessageID string
	Payload   []byte // original payload as delivered
}
