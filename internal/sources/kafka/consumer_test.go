package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/acme/txingest/internal/interfaces"
	"github.com/acme/txingest/internal/logger"
	"github.com/acme/txingest/internal/models"
)

// fakeFetcher replays a fixed message list and records commits. Once the
// list is drained, FetchMessage reports context.Canceled the way a closed
// reader does.
type fakeFetcher struct {
	mu        sync.Mutex
	msgs      []kafkago.Message
	next      int
	committed []kafkago.Message
	closed    bool
}

func (f *fakeFetcher) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	if err := ctx.Err(); err != nil {
		return kafkago.Message{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.next >= len(f.msgs) {
		return kafkago.Message{}, context.Canceled
	}
	msg := f.msgs[f.next]
	f.next++
	return msg, nil
}

func (f *fakeFetcher) CommitMessages(ctx context.Context, msgs ...kafkago.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *fakeFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeFetcher) commits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.committed)
}

// stubIngestor scripts outcomes and faults per call.
type stubIngestor struct {
	mu           sync.Mutex
	faultsLeft   int // Process calls to fail before succeeding
	processCalls int
	rejectCalls  int
	lastRecord   models.RawRecord
}

func (s *stubIngestor) Process(ctx context.Context, rec models.RawRecord) (models.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processCalls++
	s.lastRecord = rec
	if s.faultsLeft > 0 {
		s.faultsLeft--
		return models.Outcome{}, errors.New("store unreachable")
	}
	return models.Outcome{Accepted: true, TransactionID: rec.TransactionID}, nil
}

func (s *stubIngestor) RejectRaw(ctx context.Context, payload []byte, source, detail string) (models.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectCalls++
	return models.Outcome{Reason: models.ReasonParseError}, nil
}

var _ interfaces.Ingestor = (*stubIngestor)(nil)

func testConsumer(f fetcher, ing interfaces.Ingestor) *Consumer {
	return newConsumer(f, Config{RetryInterval: time.Millisecond}, ing, logger.NewWithWriter(io.Discard))
}

func msg(value string) kafkago.Message {
	return kafkago.Message{Topic: "transactions", Partition: 0, Offset: 1, Value: []byte(value)}
}

const validPayload = `{"transaction_id":"tx100","sender_id":"user1","receiver_id":"user2","amount":250.00,"currency":"USD","timestamp":"2025-05-01T12:00:00Z","status":"completed"}`

func TestRunProcessesAndCommits(t *testing.T) {
	f := &fakeFetcher{msgs: []kafkago.Message{msg(validPayload)}}
	ing := &stubIngestor{}

	if err := testConsumer(f, ing).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if ing.processCalls != 1 {
		t.Fatalf("process calls = %d, want 1", ing.processCalls)
	}
	if f.commits() != 1 {
		t.Fatalf("commits = %d, want 1", f.commits())
	}
	rec := ing.lastRecord
	if rec.TransactionID != "tx100" || rec.Amount != "250.00" || rec.Source != SourceTag {
		t.Fatalf("decoded record = %+v", rec)
	}
	if rec.MessageID == "" {
		t.Error("message id not set")
	}
	if !f.closed {
		t.Error("reader not closed on shutdown")
	}
}

func TestRunRetriesOperationalFaultBeforeCommit(t *testing.T) {
	f := &fakeFetcher{msgs: []kafkago.Message{msg(validPayload)}}
	ing := &stubIngestor{faultsLeft: 2}

	if err := testConsumer(f, ing).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Two faults, then success: three attempts, exactly one commit,
	// committed only after the terminal outcome.
	if ing.processCalls != 3 {
		t.Fatalf("process calls = %d, want 3", ing.processCalls)
	}
	if f.commits() != 1 {
		t.Fatalf("commits = %d, want 1", f.commits())
	}
}

func TestRunQuarantinesMalformedPayload(t *testing.T) {
	f := &fakeFetcher{msgs: []kafkago.Message{msg("not json")}}
	ing := &stubIngestor{}

	if err := testConsumer(f, ing).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if ing.rejectCalls != 1 {
		t.Fatalf("reject calls = %d, want 1", ing.rejectCalls)
	}
	if ing.processCalls != 0 {
		t.Fatalf("process calls = %d, want 0 for undecodable payload", ing.processCalls)
	}
	// Quarantined is handled: the offset moves on.
	if f.commits() != 1 {
		t.Fatalf("commits = %d, want 1", f.commits())
	}
}

func TestRunNeverCommitsDuringFault(t *testing.T) {
	f := &fakeFetcher{msgs: []kafkago.Message{msg(validPayload)}}
	ing := &stubIngestor{faultsLeft: 1 << 30} // never recovers

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- testConsumer(f, ing).Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run = %v, want nil on cancel", err)
		}
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop on cancel")
	}
	if f.commits() != 0 {
		t.Fatalf("commits = %d, want 0: faulted message must be redelivered", f.commits())
	}
	if ing.processCalls == 0 {
		t.Fatal("message was never attempted")
	}
}

func TestDecodeMessageAmountForms(t *testing.T) {
	// Producers send the amount as a number or as a string; both decode
	// to the same raw text.
	cases := []struct {
		name    string
		payload string
		want    string
	}{
		{"number", `{"sender_id":"user1","amount":250.00}`, "250.00"},
		{"string", `{"sender_id":"user1","amount":"250.00"}`, "250.00"},
		{"integer", `{"sender_id":"user1","amount":250}`, "250"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, err := decodeMessage(msg(tc.payload))
			if err != nil {
				t.Fatalf("decode = %v, want success", err)
			}
			if rec.Amount != tc.want {
				t.Fatalf("amount = %q, want %q", rec.Amount, tc.want)
			}
		})
	}
}

func TestRunProcessesStringAmountPayload(t *testing.T) {
	payload := `{"transaction_id":"tx200","sender_id":"user1","receiver_id":"user2","amount":"99.50","currency":"USD","timestamp":"2025-05-01T12:00:00Z","status":"completed"}`
	f := &fakeFetcher{msgs: []kafkago.Message{msg(payload)}}
	ing := &stubIngestor{}

	if err := testConsumer(f, ing).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if ing.rejectCalls != 0 {
		t.Fatalf("reject calls = %d, want 0: string amounts are not parse errors", ing.rejectCalls)
	}
	if ing.processCalls != 1 || ing.lastRecord.Amount != "99.50" {
		t.Fatalf("process calls = %d, amount = %q", ing.processCalls, ing.lastRecord.Amount)
	}
}

func TestDecodeMessageMissingFieldsStillDecodes(t *testing.T) {
	// A structurally incomplete but well-formed JSON object is not a
	// parse error; the schema validator owns that rejection.
	rec, err := decodeMessage(msg(`{"transaction_id":"tx1","sender_id":"user1"}`))
	if err != nil {
		t.Fatalf("decode = %v, want success", err)
	}
	if rec.SenderID != "user1" || rec.ReceiverID != "" || rec.Amount != "" {
		t.Fatalf("record = %+v", rec)
	}
}
