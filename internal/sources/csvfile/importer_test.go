package csvfile

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/acme/txingest/internal/detect"
	"github.com/acme/txingest/internal/ingest"
	"github.com/acme/txingest/internal/interfaces"
	"github.com/acme/txingest/internal/logger"
	"github.com/acme/txingest/internal/models"
	"github.com/acme/txingest/internal/storage/memory"
	"github.com/acme/txingest/internal/validate"
)

const header = "transaction_id,sender_id,receiver_id,amount,currency,timestamp,status\n"

func newFixture(t *testing.T) (*memory.Store, *Importer) {
	t.Helper()
	store := memory.NewStore()
	store.AddUser(models.User{ID: "user1", Name: "Alice"})
	store.AddUser(models.User{ID: "user2", Name: "Bob"})
	store.AddCurrency(models.Currency{Code: "USD", Name: "US Dollar", Precision: 2})

	detector := detect.New(detect.Config{
		SuspiciousAmount: decimal.NewFromInt(10000),
		VelocityMaxCount: 10,
		VelocityWindow:   time.Minute,
	})
	coordinator := ingest.New(store, detector, validate.Limits{
		MaxAmount: decimal.NewFromInt(1000000),
		ClockSkew: 5 * time.Minute,
	}, logger.NewWithWriter(io.Discard))
	return store, NewImporter(coordinator, logger.NewWithWriter(io.Discard))
}

func TestImportMixedFile(t *testing.T) {
	store, importer := newFixture(t)

	data := header +
		"tx1,user1,user2,250.00,USD,2025-05-01T12:00:00Z,completed\n" +
		"tx2,user1,user2,100.00,XXX,2025-05-01T12:01:00Z,completed\n" +
		"tx3,user1\n" // wrong column count

	summary, err := importer.Import(context.Background(), strings.NewReader(data))
	if err != nil {
		t.Fatalf("mixed file must complete, got %v", err)
	}
	if summary.Accepted != 1 || summary.Rejected != 2 {
		t.Fatalf("summary = %+v, want 1 accepted / 2 rejected", summary)
	}

	if len(store.Transactions()) != 1 {
		t.Fatalf("transactions = %d, want 1", len(store.Transactions()))
	}
	rejected := store.Rejected()
	if len(rejected) != 2 {
		t.Fatalf("rejected = %d, want 2", len(rejected))
	}
	reasons := map[models.Reason]string{}
	for _, r := range rejected {
		reasons[r.Reason] = r.Payload
		if r.Source != SourceTag {
			t.Errorf("source = %s, want %s", r.Source, SourceTag)
		}
	}
	if _, ok := reasons[models.ReasonUnknownCurrency]; !ok {
		t.Fatalf("reasons = %v, want unknown_currency present", reasons)
	}
	if _, ok := reasons[models.ReasonParseError]; !ok {
		t.Fatalf("reasons = %v, want parse_error present", reasons)
	}
	// Both rejections keep the original row text verbatim.
	if got := reasons[models.ReasonUnknownCurrency]; got != "tx2,user1,user2,100.00,XXX,2025-05-01T12:01:00Z,completed" {
		t.Errorf("unknown-currency payload = %q, want the original row", got)
	}
	if got := reasons[models.ReasonParseError]; got != "tx3,user1" {
		t.Errorf("parse-error payload = %q, want the original row", got)
	}
}

func TestImportUnparseableRowKeepsPayload(t *testing.T) {
	store, importer := newFixture(t)

	// Bare quote mid-field: the csv reader itself fails on this row.
	badRow := `tx3,us"er1,user2,30.00,USD,2025-05-01T12:02:00Z,completed`
	data := header +
		"tx1,user1,user2,250.00,USD,2025-05-01T12:00:00Z,completed\n" +
		badRow + "\n" +
		"tx2,user1,user2,300.00,USD,2025-05-01T12:03:00Z,completed\n"

	summary, err := importer.Import(context.Background(), strings.NewReader(data))
	if err != nil {
		t.Fatalf("bad quoting must not abort the run, got %v", err)
	}
	if summary.Accepted != 2 || summary.Rejected != 1 {
		t.Fatalf("summary = %+v, want 2 accepted / 1 rejected", summary)
	}

	rejected := store.Rejected()
	if len(rejected) != 1 {
		t.Fatalf("rejected = %d, want 1", len(rejected))
	}
	if rejected[0].Reason != models.ReasonParseError {
		t.Fatalf("reason = %s, want parse_error", rejected[0].Reason)
	}
	if rejected[0].Payload == "" {
		t.Fatal("payload empty: the offending row must be preserved verbatim")
	}
	if rejected[0].Payload != badRow {
		t.Errorf("payload = %q, want %q", rejected[0].Payload, badRow)
	}
}

func TestImportRowOrderPreserved(t *testing.T) {
	store, importer := newFixture(t)

	data := header +
		"tx1,user1,user2,10.00,USD,2025-05-01T12:00:00Z,completed\n" +
		"tx2,user1,user2,20.00,USD,2025-05-01T12:00:01Z,completed\n" +
		"tx3,user1,user2,30.00,USD,2025-05-01T12:00:02Z,completed\n"

	if _, err := importer.Import(context.Background(), strings.NewReader(data)); err != nil {
		t.Fatal(err)
	}
	if len(store.Transactions()) != 3 {
		t.Fatalf("transactions = %d, want 3", len(store.Transactions()))
	}
}

func TestReimportRejectsAllAsDuplicates(t *testing.T) {
	store, importer := newFixture(t)

	data := header +
		"tx1,user1,user2,250.00,USD,2025-05-01T12:00:00Z,completed\n" +
		"tx2,user1,user2,300.00,USD,2025-05-01T12:01:00Z,completed\n"

	ctx := context.Background()
	if _, err := importer.Import(ctx, strings.NewReader(data)); err != nil {
		t.Fatal(err)
	}
	summary, err := importer.Import(ctx, strings.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if summary.Accepted != 0 || summary.Rejected != 2 {
		t.Fatalf("re-import summary = %+v, want 0 accepted / 2 rejected", summary)
	}
	if len(store.Transactions()) != 2 {
		t.Fatalf("transactions = %d, want 2 (no double-counting)", len(store.Transactions()))
	}
	for _, r := range store.Rejected() {
		if r.Reason != models.ReasonDuplicate {
			t.Errorf("reason = %s, want duplicate", r.Reason)
		}
	}
}

func TestImportShuffledHeader(t *testing.T) {
	store, importer := newFixture(t)

	data := "amount,currency,transaction_id,sender_id,receiver_id,timestamp,status\n" +
		"250.00,USD,tx1,user1,user2,2025-05-01T12:00:00Z,completed\n"

	summary, err := importer.Import(context.Background(), strings.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if summary.Accepted != 1 {
		t.Fatalf("summary = %+v, want 1 accepted", summary)
	}
	tx := store.Transactions()[0]
	if tx.ID != "tx1" || !tx.Amount.Equal(decimal.RequireFromString("250.00")) {
		t.Fatalf("columns mapped wrong: %+v", tx)
	}
}

func TestImportEmptyReaderFails(t *testing.T) {
	_, importer := newFixture(t)
	if _, err := importer.Import(context.Background(), strings.NewReader("")); err == nil {
		t.Fatal("expected error for missing header")
	}
}

// failingIngestor simulates the store going away mid-file.
type failingIngestor struct {
	succeed int // records to handle before failing
	handled int
}

func (f *failingIngestor) Process(ctx context.Context, rec models.RawRecord) (models.Outcome, error) {
	if f.handled >= f.succeed {
		return models.Outcome{}, errors.New("store unreachable")
	}
	f.handled++
	return models.Outcome{Accepted: true, TransactionID: rec.TransactionID}, nil
}

func (f *failingIngestor) RejectRaw(ctx context.Context, payload []byte, source, detail string) (models.Outcome, error) {
	return models.Outcome{Reason: models.ReasonParseError}, nil
}

var _ interfaces.Ingestor = (*failingIngestor)(nil)

func TestImportOperationalFaultAbortsRun(t *testing.T) {
	importer := NewImporter(&failingIngestor{succeed: 1}, logger.NewWithWriter(io.Discard))

	data := header +
		"tx1,user1,user2,10.00,USD,2025-05-01T12:00:00Z,completed\n" +
		"tx2,user1,user2,20.00,USD,2025-05-01T12:01:00Z,completed\n" +
		"tx3,user1,user2,30.00,USD,2025-05-01T12:02:00Z,completed\n"

	summary, err := importer.Import(context.Background(), strings.NewReader(data))
	if err == nil {
		t.Fatal("expected operational fault to abort the run")
	}
	if summary.Accepted != 1 {
		t.Fatalf("summary = %+v, want the 1 record handled before the fault", summary)
	}
}

func TestImportCanceledContext(t *testing.T) {
	_, importer := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	data := header + "tx1,user1,user2,10.00,USD,2025-05-01T12:00:00Z,completed\n"
	if _, err := importer.Import(ctx, strings.NewReader(data)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
