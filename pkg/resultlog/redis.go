// Package resultlog публикует итоги операций сеанса в Redis.
package resultlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ruslano69/ezsearch/pkg/diag"
)

// Config - настройки публикации в Redis
type Config struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// Name - имя сеанса в ключах Redis
	Name string `yaml:"name"`

	// TTL - время жизни ключа состояния, секунды (0 = без ограничения)
	TTL int `yaml:"ttl"`
}

// Redis-ключи:
//
//	SET  ezsearch:session:<name>:<operation>:state  <JSON diag.Record>  EX <ttl>  - последнее состояние для GET
//	PUB  ezsearch:session:<name>                                                 - поток событий для SUBSCRIBE

// RedisPublisher публикует итоги операций в Redis
type RedisPublisher struct {
	client *redis.Client
	config Config
}

// NewRedisPublisher создает новый Redis publisher на основе конфигурации
func NewRedisPublisher(config Config) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
	})
	return NewRedisPublisherWithClient(client, config)
}

// NewRedisPublisherWithClient использует готовый клиент
func NewRedisPublisherWithClient(client *redis.Client, config Config) *RedisPublisher {
	if config.Name == "" {
		config.Name = "default"
	}
	return &RedisPublisher{client: client, config: config}
}

// StateKey - ключ последнего состояния операции
func (p *RedisPublisher) StateKey(op diag.Operation) string {
	return fmt.Sprintf("ezsearch:session:%s:%s:state", p.config.Name, op)
}

// Channel - канал событий сеанса
func (p *RedisPublisher) Channel() string {
	return fmt.Sprintf("ezsearch:session:%s", p.config.Name)
}

// Report публикует итог операции:
//   - SET ezsearch:session:<name>:<operation>:state <JSON> EX <ttl>  → для опроса (polling)
//   - PUBLISH ezsearch:session:<name> <JSON>                        → для подписки (pub/sub)
//
// Вызывается независимо от результата операции.
func (p *RedisPublisher) Report(ctx context.Context, outcome diag.Outcome) error {
	payload, err := json.Marshal(diag.NewRecord(p.config.Name, outcome))
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	ttl := time.Duration(p.config.TTL) * time.Second

	// SET ключ с TTL - внешний монитор может GET последнее состояние
	if err := p.client.Set(ctx, p.StateKey(outcome.Operation), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}

	// PUBLISH событие - подписчики получают каждую операцию
	if err := p.client.Publish(ctx, p.Channel(), payload).Err(); err != nil {
		return fmt.Errorf("redis PUBLISH failed: %w", err)
	}

	return nil
}

// Close закрывает соединение с Redis
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
