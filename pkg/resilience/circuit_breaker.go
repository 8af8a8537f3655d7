// Package resilience защищает fan-out от повторных обращений к недоступному источнику.
//
// Каждому источнику соответствует свой CircuitBreaker. После MaxFailures
// последовательных сбоев источник пропускается (ErrCircuitOpen) до истечения Timeout,
// затем один пробный запрос решает, закрыть ли его снова.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrCircuitOpen - источник временно отключен
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ExecuteFunc - функция для выполнения с circuit breaker
type ExecuteFunc func(ctx context.Context) error

// CircuitBreaker - защита одного источника
type CircuitBreaker struct {
	config Config
	now    func() time.Time

	mu              sync.Mutex
	state           State
	generation      uint64
	counts          Counts
	expiry          time.Time
	lastStateChange time.Time
}

// New - создать Circuit Breaker
func New(config Config) (*CircuitBreaker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid circuit breaker config: %w", err)
	}

	return &CircuitBreaker{
		config:          config,
		now:             time.Now,
		state:           StateClosed,
		lastStateChange: time.Now(),
	}, nil
}

// Execute - выполнить функцию с защитой circuit breaker
func (cb *CircuitBreaker) Execute(ctx context.Context, fn ExecuteFunc) error {
	if !cb.config.Enabled {
		return fn(ctx)
	}

	cb.mu.Lock()
	generation, tr, err := cb.beforeRequestLocked(cb.now())
	cb.mu.Unlock()
	cb.notify(tr)

	if err != nil {
		return fmt.Errorf("%s: %w", cb.config.Name, err)
	}

	err = fn(ctx)

	cb.mu.Lock()
	tr = cb.afterRequestLocked(generation, !cb.isFailure(err), cb.now())
	cb.mu.Unlock()
	cb.notify(tr)

	return err
}

// isFailure - true если ошибка учитывается как сбой источника
func (cb *CircuitBreaker) isFailure(err error) bool {
	if err == nil {
		return false
	}
	if cb.config.ShouldCount != nil {
		return cb.config.ShouldCount(err)
	}
	return !errors.Is(err, context.Canceled)
}

func (cb *CircuitBreaker) notify(tr *transition) {
	if tr != nil && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, tr.from, tr.to)
	}
}

// State - текущее состояние
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Counts - счетчики текущего поколения
func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

// Stats - полная статистика
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	var untilHalfOpen time.Duration
	if cb.state == StateOpen {
		if remaining := cb.expiry.Sub(cb.now()); remaining > 0 {
			untilHalfOpen = remaining
		}
	}

	return Stats{
		Name:              cb.config.Name,
		State:             cb.state,
		Generation:        cb.generation,
		Counts:            cb.counts,
		LastStateChange:   cb.lastStateChange,
		TimeUntilHalfOpen: untilHalfOpen,
	}
}

// Reset - сбросить состояние в Closed
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.generation++
	cb.counts = Counts{}
	cb.expiry = time.Time{}
	cb.lastStateChange = cb.now()
}

// Name - имя источника
func (cb *CircuitBreaker) Name() string {
	return cb.config.Name
}

// String - строковое представление
func (cb *CircuitBreaker) String() string {
	stats := cb.Stats()
	return fmt.Sprintf("CircuitBreaker(%s state=%s failures=%d/%d)",
		cb.config.Name,
		stats.State,
		stats.Counts.ConsecutiveFailures,
		cb.config.MaxFailures,
	)
}

// ========== Group ==========

// Group - circuit breakers источников, создаваемые по первому обращению
type Group struct {
	config Config

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewGroup - создать группу с общей конфигурацией
func NewGroup(config Config) (*Group, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid circuit breaker config: %w", err)
	}
	return &Group{
		config:   config,
		breakers: make(map[string]*CircuitBreaker),
	}, nil
}

// Get - получить или создать circuit breaker источника
func (g *Group) Get(name string) *CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	if cb, ok := g.breakers[name]; ok {
		return cb
	}

	cfg := g.config
	cfg.Name = name
	// конфигурация уже проверена в NewGroup
	cb, _ := New(cfg)
	g.breakers[name] = cb
	return cb
}

// Execute - выполнить функцию с circuit breaker источника
func (g *Group) Execute(ctx context.Context, name string, fn ExecuteFunc) error {
	return g.Get(name).Execute(ctx, fn)
}

// ResetAll - сбросить все circuit breakers
func (g *Group) ResetAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, cb := range g.breakers {
		cb.Reset()
	}
}

// StatsAll - статистика всех circuit breakers, отсортированная по имени
func (g *Group) StatsAll() []Stats {
	g.mu.Lock()
	names := make([]string, 0, len(g.breakers))
	for name := range g.breakers {
		names = append(names, name)
	}
	breakers := make(map[string]*CircuitBreaker, len(g.breakers))
	for k, v := range g.breakers {
		breakers[k] = v
	}
	g.mu.Unlock()

	sort.Strings(names)
	result := make([]Stats, 0, len(names))
	for _, name := range names {
		result = append(result, breakers[name].Stats())
	}
	return result
}
