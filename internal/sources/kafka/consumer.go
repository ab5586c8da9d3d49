// Package kafka adapts the message-queue delivery model to the ingestion
// coordinator. Delivery is at-least-once: an offset is committed only after
// the record has reached a terminal ledger state (ack-after-commit), so a
// crash or an operational fault leaves the message uncommitted and it is
// redelivered. The storage-level duplicate guard makes the redelivery
// idempotent.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/acme/txingest/internal/interfaces"
	"github.com/acme/txingest/internal/models"
)

// SourceTag marks records delivered through the queue in both ledgers.
const SourceTag = "queue"

// fetcher is the slice of kafka.Reader the consumer needs, extracted so
// tests can drive the loop without a broker.
type fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// wireRecord is the JSON shape the producing systems put on the topic.
type wireRecord struct {
	TransactionID string     `json:"transaction_id"`
	SenderID      string     `json:"sender_id"`
	ReceiverID    string     `json:"receiver_id"`
	Amount        wireAmount `json:"amount"`
	Currency      string     `json:"currency"`
	Timestamp     string     `json:"timestamp"`
	Status        string     `json:"status"`
}

// wireAmount tolerates producers sending the amount as either a JSON number
// or a string ("250.00" vs 250.00). Which it was does not matter: the schema
// validator parses the text either way.
type wireAmount string

func (a *wireAmount) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = wireAmount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*a = wireAmount(n.String())
	return nil
}

func (a wireAmount) String() string { return string(a) }

// Consumer drains one topic and feeds each message to the ingestor.
type Consumer struct {
	reader        fetcher
	ingestor      interfaces.Ingestor
	log           zerolog.Logger
	retryInterval time.Duration
}

// Config wires a Consumer to a broker and consumer group.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
	// RetryInterval is the pause before reprocessing a message after an
	// operational fault.
	RetryInterval time.Duration
}

// NewConsumer builds a consumer-group reader over the configured topic.
func NewConsumer(cfg Config, ingestor interfaces.Ingestor, log zerolog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		GroupID: cfg.GroupID,
	})
	return newConsumer(reader, cfg, ingestor, log)
}

func newConsumer(reader fetcher, cfg Config, ingestor interfaces.Ingestor, log zerolog.Logger) *Consumer {
	retry := cfg.RetryInterval
	if retry <= 0 {
		retry = 5 * time.Second
	}
	return &Consumer{
		reader:        reader,
		ingestor:      ingestor,
		log:           log,
		retryInterval: retry,
	}
}

// Run consumes until ctx is canceled. It returns nil on a clean shutdown and
// the fetch error otherwise.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}
		if err := c.handle(ctx, msg); err != nil {
			// Only a canceled context exits the per-message retry
			// loop; the message stays uncommitted and will be
			// redelivered.
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}

// handle processes one message to a terminal state, retrying operational
// faults in place so the commit order of offsets stays monotonic. Both
// accepted and rejected count as handled; only then is the offset committed.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	rec, parseErr := decodeMessage(msg)
	for {
		var outcome models.Outcome
		var err error
		if parseErr != nil {
			outcome, err = c.ingestor.RejectRaw(ctx, msg.Value, SourceTag, parseErr.Error())
		} else {
			outcome, err = c.ingestor.Process(ctx, rec)
		}
		if err == nil {
			c.log.Debug().
				Str("message_id", rec.MessageID).
				Bool("accepted", outcome.Accepted).
				Str("reason", string(outcome.Reason)).
				Msg("message handled")
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				return fmt.Errorf("commit offset: %w", err)
			}
			return nil
		}
		c.log.Error().Err(err).
			Str("message_id", rec.MessageID).
			Dur("retry_in", c.retryInterval).
			Msg("operational fault, will retry message")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryInterval):
		}
	}
}

// decodeMessage turns a queue message into a RawRecord. A decode failure is
// a parse error, not an operational fault: the message is quarantined, not
// redelivered.
func decodeMessage(msg kafka.Message) (models.RawRecord, error) {
	messageID := fmt.Sprintf("%s-%d-%d", msg.Topic, msg.Partition, msg.Offset)
	var w wireRecord
	if err := json.Unmarshal(msg.Value, &w); err != nil {
		return models.RawRecord{Source: SourceTag, MessageID: messageID, Payload: msg.Value},
			fmt.Errorf("malformed JSON: %w", err)
	}
	return models.RawRecord{
		TransactionID: w.TransactionID,
		SenderID:      w.SenderID,
		ReceiverID:    w.ReceiverID,
		Amount:        w.Amount.String(),
		Currency:      w.Currency,
		Timestamp:     w.Timestamp,
		Status:        w.Status,
		Source:        SourceTag,
		MessageID:     messageID,
		Payload:       msg.Value,
	}, nil
}
