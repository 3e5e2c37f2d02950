package pub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ledger-service/internal/domain"

	"github.com/segmentio/kafka-go"
)

const TransactionEventsTopic = "ledger.transactions"

// TransactionEventPublisher pushes committed ledger operations onto a
// kafka topic for downstream consumers (notifications, reporting).
// Publishing is best-effort: the ledger operation has already committed
// by the time an event is emitted, so a broker failure is logged by the
// caller and never fails the operation.
type TransactionEventPublisher struct {
	writer *kafka.Writer
}

// NewTransactionEventPublisher builds a publisher for the given brokers.
// With no brokers configured it returns a nil-writer publisher whose
// Publish is a no-op, so local and test runs need no kafka.
func NewTransactionEventPublisher(brokers []string) *TransactionEventPublisher {
	if len(brokers) == 0 {
		return &TransactionEventPublisher{}
	}
	return &TransactionEventPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        TransactionEventsTopic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
	}
}

type TransactionEvent struct {
	EventType     string    `json:"event_type"` // transaction.completed | transaction.pending
	TransactionID string    `json:"transaction_id"`
	UserID        string    `json:"user_id"`
	Kind          string    `json:"transfer_type"`
	Status        string    `json:"status"`
	Amount        string    `json:"amount"`
	FromAccount   string    `json:"from_account,omitempty"`
	ToAccount     string    `json:"to_account,omitempty"`
	Confirmation  string    `json:"confirmation_number,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Publish emits an event for a committed transaction record.
func (p *TransactionEventPublisher) Publish(ctx context.Context, t *domain.Transaction) error {
	if p == nil || p.writer == nil {
		return nil
	}

	event := TransactionEvent{
		EventType:     "transaction." + string(t.Status),
		TransactionID: t.ID,
		UserID:        t.UserID,
		Kind:          string(t.Kind),
		Status:        string(t.Status),
		Amount:        t.Amount.String(),
		Confirmation:  t.ConfirmationCode,
		Timestamp:     time.Now().UTC(),
	}
	if t.FromAccountID != nil {
		event.FromAccount = *t.FromAccountID
	}
	if t.ToAccountID != nil {
		event.ToAccount = *t.ToAccountID
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(t.ID),
		Value: payload,
	}); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *TransactionEventPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
