package brokers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Kafka реализует MessageBroker для Apache Kafka
type Kafka struct {
	config Config
	writer *kafka.Writer

	mu          sync.Mutex
	reader      *kafka.Reader
	lastMessage *kafka.Message // для manual commit
}

// NewKafka создает новый Kafka брокер
func NewKafka(cfg Config) (*Kafka, error) {
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic name is required for Kafka")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker address is required for Kafka")
	}
	if cfg.ConsumerGroup == "" {
		cfg.ConsumerGroup = "ezsearch-watch"
	}
	return &Kafka{config: cfg}, nil
}

// Connect проверяет доступность и создает writer
func (k *Kafka) Connect(ctx context.Context) error {
	if err := k.Ping(ctx); err != nil {
		return err
	}

	k.writer = &kafka.Writer{
		Addr:         kafka.TCP(k.config.Brokers...),
		Topic:        k.config.Topic,
		Balancer:     &kafka.Hash{}, // одна операция = одна партиция
		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Snappy,
		MaxAttempts:  3,
		WriteTimeout: 5 * time.Second,
	}
	return nil
}

// reader создается при первом Receive: notifier не вступает в consumer group
func (k *Kafka) ensureReader() *kafka.Reader {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.reader == nil {
		k.reader = kafka.NewReader(kafka.ReaderConfig{
			Brokers:        k.config.Brokers,
			GroupID:        k.config.ConsumerGroup,
			Topic:          k.config.Topic,
			MinBytes:       1,
			MaxBytes:       1e6,
			CommitInterval: 0, // Manual commit
			StartOffset:    kafka.LastOffset,
			MaxWait:        time.Second,
		})
	}
	return k.reader
}

// Close закрывает writer и reader
func (k *Kafka) Close() error {
	var errs []error

	if k.writer != nil {
		if err := k.writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close writer: %w", err))
		}
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.reader != nil {
		if err := k.reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close reader: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Send отправляет сообщение в Kafka topic
func (k *Kafka) Send(ctx context.Context, key string, message []byte) error {
	if k.writer == nil {
		return fmt.Errorf("not connected to Kafka")
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: message,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "producer", Value: []byte("ezsearch")},
		},
	}

	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}
	return nil
}

// Receive получает сообщение из Kafka topic
// offset не коммитится автоматически: вызовите CommitLast после обработки
func (k *Kafka) Receive(ctx context.Context) ([]byte, error) {
	msg, err := k.ensureReader().FetchMessage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message: %w", err)
	}

	k.mu.Lock()
	k.lastMessage = &msg
	k.mu.Unlock()
	return msg.Value, nil
}

// CommitLast подтверждает последнее полученное сообщение (commit offset)
func (k *Kafka) CommitLast(ctx context.Context) error {
	k.mu.Lock()
	last := k.lastMessage
	k.lastMessage = nil
	k.mu.Unlock()

	if last == nil {
		return fmt.Errorf("no message to commit")
	}
	if err := k.ensureReader().CommitMessages(ctx, *last); err != nil {
		return fmt.Errorf("failed to commit message: %w", err)
	}
	return nil
}

// Ping проверяет доступность Kafka и наличие topic
func (k *Kafka) Ping(ctx context.Context) error {
	conn, err := kafka.DialContext(ctx, "tcp", k.config.Brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial Kafka broker: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ReadPartitions(k.config.Topic); err != nil {
		return fmt.Errorf("failed to read topic partitions: %w", err)
	}
	return nil
}

// GetBrokerType возвращает тип брокера
func (k *Kafka) GetBrokerType() string {
	return "kafka"
}

// GetStats возвращает статистику writer
func (k *Kafka) GetStats() kafka.WriterStats {
	if k.writer == nil {
		return kafka.WriterStats{}
	}
	return k.writer.Stats()
}
