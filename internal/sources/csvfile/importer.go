// Package csvfile adapts bulk CSV files to the ingestion coordinator. An
// import is a fold over the rows: every row ends as an accepted transaction
// or a rejected record and the run continues, except for operational faults,
// which abort the run with the summary so far so the caller can flag it
// incomplete and re-run. Re-running a partially imported file is safe: rows
// already accepted reject as duplicates.
package csvfile

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/acme/txingest/internal/interfaces"
	"github.com/acme/txingest/internal/models"
)

// SourceTag marks records imported from CSV files in both ledgers.
const SourceTag = "csv"

// Summary is the result of an import run.
type Summary struct {
	Accepted int
	Rejected int
}

// Importer streams rows from CSV files into the coordinator.
type Importer struct {
	ingestor interfaces.Ingestor
	log      zerolog.Logger
}

// NewImporter builds an Importer over the given ingestor.
func NewImporter(ingestor interfaces.Ingestor, log zerolog.Logger) *Importer {
	return &Importer{ingestor: ingestor, log: log}
}

// ImportFile imports the file at path. See Import.
func (im *Importer) ImportFile(ctx context.Context, path string) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()
	return im.Import(ctx, f)
}

// Import reads delimited rows from r in order and runs each through the
// coordinator. It returns a non-nil error only for operational faults; a
// file full of invalid rows still completes with err == nil and everything
// in the rejection ledger. Every row's original bytes are preserved through
// to the rejection ledger, including rows the csv parser itself chokes on.
func (im *Importer) Import(ctx context.Context, r io.Reader) (Summary, error) {
	tracker := &rawTracker{r: r}
	reader := csv.NewReader(tracker)
	reader.FieldsPerRecord = -1 // column-count mismatches are handled per row

	header, err := reader.Read()
	if err != nil {
		return Summary{}, fmt.Errorf("read header: %w", err)
	}
	tracker.rawUpTo(reader.InputOffset()) // drop the header bytes
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}

	var summary Summary
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		line++
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		// The raw bytes the reader consumed for this row, verbatim.
		raw := tracker.rawUpTo(reader.InputOffset())
		var parseDetail string
		switch {
		case err != nil:
			// Unparseable line (bad quoting etc). The csv reader
			// recovers at the next line.
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return summary, fmt.Errorf("read row %d: %w", line, err)
			}
			parseDetail = fmt.Sprintf("row %d: %v", line, err)
		case len(row) != len(header):
			parseDetail = fmt.Sprintf("row %d: expected %d columns, got %d", line, len(header), len(row))
		}

		var outcome models.Outcome
		if parseDetail != "" {
			outcome, err = im.ingestor.RejectRaw(ctx, raw, SourceTag, parseDetail)
		} else {
			rec := rowToRecord(index, row, raw)
			outcome, err = im.ingestor.Process(ctx, rec)
		}
		if err != nil {
			// Operational fault: abort, the run is incomplete.
			return summary, fmt.Errorf("row %d: %w", line, err)
		}
		if outcome.Accepted {
			summary.Accepted++
		} else {
			summary.Rejected++
		}
	}

	im.log.Info().
		Int("accepted", summary.Accepted).
		Int("rejected", summary.Rejected).
		Msg("csv import complete")
	return summary, nil
}

// rowToRecord maps a well-formed row into a RawRecord by header position.
// Missing columns simply leave fields empty for the schema validator to
// report.
func rowToRecord(index map[string]int, row []string, raw []byte) models.RawRecord {
	field := func(name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	return models.RawRecord{
		TransactionID: field("transaction_id"),
		SenderID:      field("sender_id"),
		ReceiverID:    field("receiver_id"),
		Amount:        field("amount"),
		Currency:      field("currency"),
		Timestamp:     field("timestamp"),
		Status:        field("status"),
		Source:        SourceTag,
		Payload:       raw,
	}
}

// rawTracker sits between the input and the csv reader and keeps the bytes
// the reader has consumed, so each row's original text can be recovered via
// the reader's InputOffset. Consumed bytes are released as soon as a row
// claims them, so memory stays bounded by one row.
type rawTracker struct {
	r   io.Reader
	buf bytes.Buffer
	off int64 // stream offset of the start of buf
}

func (t *rawTracker) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	t.buf.Write(p[:n])
	return n, err
}

// rawUpTo returns the bytes between the previous call's offset and offset,
// without the trailing line ending.
func (t *rawTracker) rawUpTo(offset int64) []byte {
	n := offset - t.off
	if n <= 0 {
		return nil
	}
	chunk := t.buf.Next(int(n))
	t.off = offset
	// Copy: the buffer reuses chunk's backing array on the next write.
	return bytes.Clone(bytes.TrimRight(chunk, "\r\n"))
}
