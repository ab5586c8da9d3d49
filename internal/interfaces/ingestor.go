package interfaces

import (
	"context"

	"github.com/acme/txingest/internal/models"
)

// Ingestor is what a source adapter hands records to. A returned error is an
// operational fault and the adapter must retry the record; a returned
// Outcome means the record reached a terminal ledger state and may be
// acknowledged.
type Ingestor interface {
	// Process runs the full validation flow for one raw record.
	Process(ctx context.Context, rec models.RawRecord) (models.Outcome, error)
	// RejectRaw quarantines input that never became a RawRecord, with a
	// parse-error reason.
	RejectRaw(ctx context.Context, payload []byte, source, detail string) (models.Outcome, error)
}
