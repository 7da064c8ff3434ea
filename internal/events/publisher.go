package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// TransactionEvent is the JSON payload published after a ledger entry
// commits. Consumers (notification, reporting) key on the account number so
// per-account ordering is preserved within a partition.
type TransactionEvent struct {
	TransactionID   string    `json:"transactionId"`
	Type            string    `json:"type"`
	Result          string    `json:"result"`
	AccountNumber   string    `json:"accountNumber"`
	Counterparty    string    `json:"counterparty,omitempty"`
	Amount          int64     `json:"amount"`
	BalanceSnapshot int64     `json:"balanceSnapshot"`
	TransactedAt    time.Time `json:"transactedAt"`
}

type Publisher interface {
	PublishTransaction(ctx context.Context, event TransactionEvent) error
	Close() error
}

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
	}
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) PublishTransaction(ctx context.Context, event TransactionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: marshal transaction event: %w", err)
	}

	produceCtx, cancel := context.WithTimeout(ctx, p.writer.WriteTimeout)
	defer cancel()

	err = p.writer.WriteMessages(produceCtx, kafka.Message{
		Key:   []byte(event.AccountNumber),
		Value: payload,
	})
	if err != nil {
		log.Printf("[EVENTS] Failed to publish transaction %s: %v", event.TransactionID, err)
		return fmt.Errorf("events: publish transaction %s: %w", event.TransactionID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
