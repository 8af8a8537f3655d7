// Package brokers рассылает итоги операций сеанса в очереди сообщений.
//
// Поддерживаются RabbitMQ и Apache Kafka. Notifier реализует diag.Reporter
// и отправляет каждый итог как JSON diag.Record; команда watch читает их обратно.
package brokers

import (
	"context"
	"fmt"
)

// MessageBroker представляет универсальный интерфейс для работы с очередями сообщений
type MessageBroker interface {
	// Connect устанавливает соединение с брокером
	Connect(ctx context.Context) error

	// Close закрывает соединение с брокером
	Close() error

	// Send отправляет сообщение (JSON итога операции)
	Send(ctx context.Context, key string, message []byte) error

	// Receive получает сообщение из очереди
	// Блокирующий вызов - ждет пока не придет сообщение или не истечет ctx
	Receive(ctx context.Context) ([]byte, error)

	// Ping проверяет доступность брокера
	Ping(ctx context.Context) error

	// GetBrokerType возвращает тип брокера (rabbitmq, kafka)
	GetBrokerType() string
}

// Config содержит параметры подключения к message broker
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Type    string `yaml:"type"` // rabbitmq, kafka

	// RabbitMQ
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Queue      string `yaml:"queue"`
	VHost      string `yaml:"vhost"`       // по умолчанию "/"
	UseTLS     bool   `yaml:"use_tls"`     // amqps://
	Exchange   string `yaml:"exchange"`    // пустая строка = default exchange
	RoutingKey string `yaml:"routing_key"` // пустой = имя очереди

	// Параметры очереди RabbitMQ (должны совпадать с существующей очередью)
	Durable    bool `yaml:"durable"`
	AutoDelete bool `yaml:"auto_delete"`
	Exclusive  bool `yaml:"exclusive"`

	// Kafka
	Brokers       []string `yaml:"brokers"`
	Topic         string   `yaml:"topic"`
	ConsumerGroup string   `yaml:"consumer_group"` // по умолчанию "ezsearch-watch"
}

// New создает новый MessageBroker на основе конфигурации
func New(cfg Config) (MessageBroker, error) {
	switch cfg.Type {
	case "rabbitmq":
		return NewRabbitMQ(cfg)
	case "kafka":
		return NewKafka(cfg)
	default:
		return nil, fmt.Errorf("unsupported broker type: %s (supported: rabbitmq, kafka)", cfg.Type)
	}
}
