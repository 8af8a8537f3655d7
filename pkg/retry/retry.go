// Package retry повторяет запрос к источнику при временных сбоях подключения.
//
// По умолчанию повторяются только ошибки ConnectionFailed: ошибка выполнения
// запроса (QueryFailed) при повторе воспроизведется так же.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/ruslano69/ezsearch/pkg/diag"
)

// RetryableFunc - функция которую можно повторить
type RetryableFunc func(ctx context.Context) error

// Retryer выполняет повторы
type Retryer struct {
	config Config
}

// NewRetryer создает новый Retryer
func NewRetryer(config Config) (*Retryer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry config: %w", err)
	}
	return &Retryer{config: config}, nil
}

// Do выполняет функцию с повторами.
// Возвращается последняя ошибка функции без дополнительной обертки,
// чтобы код ошибки (diag.Kind) оставался доступен вызывающему.
func (r *Retryer) Do(ctx context.Context, fn RetryableFunc) error {
	if !r.config.Enabled {
		return fn(ctx)
	}

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		if !r.IsRetryable(err) || attempt >= r.config.MaxAttempts {
			return err
		}

		if ctx.Err() != nil {
			return err
		}

		delay := r.calculateDelay(attempt)

		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return err
		}
	}
}

// calculateDelay вычисляет задержку для текущей попытки
func (r *Retryer) calculateDelay(attempt int) time.Duration {
	var delay time.Duration

	switch r.config.BackoffStrategy {
	case BackoffLinear:
		delay = r.config.InitialDelay * time.Duration(attempt)

	case BackoffExponential:
		multiplier := math.Pow(r.config.BackoffMultiplier, float64(attempt-1))
		delay = time.Duration(float64(r.config.InitialDelay) * multiplier)

	default:
		delay = r.config.InitialDelay
	}

	if delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}

	if r.config.Jitter > 0 {
		jitter := time.Duration(float64(delay) * r.config.Jitter * (rand.Float64()*2 - 1))
		delay += jitter
		if delay < 0 {
			delay = r.config.InitialDelay
		}
	}

	return delay
}

// IsRetryable проверяет нужен ли повтор для ошибки
func (r *Retryer) IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	kind := diag.KindOf(err)
	if len(r.config.RetryableKinds) == 0 {
		return kind == diag.KindConnectionFailed
	}

	for _, k := range r.config.RetryableKinds {
		if k == kind {
			return true
		}
	}
	return false
}
