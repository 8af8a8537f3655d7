package resilience

import (
	"fmt"
	"time"
)

// State - состояние Circuit Breaker
type State int

const (
	// StateClosed - нормальная работа, запросы к источнику проходят
	StateClosed State = iota

	// StateHalfOpen - пробный запрос после таймаута
	StateHalfOpen

	// StateOpen - источник считается недоступным, запросы отклоняются без обращения к СУБД
	StateOpen
)

// String - строковое представление состояния
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// transition - смена состояния для вызова callback вне блокировки
type transition struct {
	from, to State
}

// Stats - статистика Circuit Breaker
type Stats struct {
	Name              string
	State             State
	Generation        uint64
	Counts            Counts
	LastStateChange   time.Time
	TimeUntilHalfOpen time.Duration
}

// ========== State machine (вызывается под cb.mu) ==========

// setStateLocked меняет состояние, сбрасывает счетчики и возвращает переход
func (cb *CircuitBreaker) setStateLocked(to State, now time.Time) *transition {
	if cb.state == to {
		return nil
	}

	from := cb.state
	cb.state = to
	cb.generation++
	cb.counts = Counts{}
	cb.lastStateChange = now

	if to == StateOpen {
		cb.expiry = now.Add(cb.config.Timeout)
	}

	return &transition{from: from, to: to}
}

// beforeRequestLocked проверяет, можно ли выполнить запрос
func (cb *CircuitBreaker) beforeRequestLocked(now time.Time) (uint64, *transition, error) {
	var tr *transition
	if cb.state == StateOpen && now.After(cb.expiry) {
		tr = cb.setStateLocked(StateHalfOpen, now)
	}

	if cb.state == StateOpen {
		return cb.generation, tr, ErrCircuitOpen
	}

	return cb.generation, tr, nil
}

// afterRequestLocked учитывает результат запроса текущего поколения
func (cb *CircuitBreaker) afterRequestLocked(generation uint64, success bool, now time.Time) *transition {
	if generation != cb.generation {
		return nil
	}

	cb.counts.Requests++

	if success {
		cb.counts.TotalSuccesses++
		cb.counts.ConsecutiveSuccesses++
		cb.counts.ConsecutiveFailures = 0

		if cb.state == StateHalfOpen && cb.counts.ConsecutiveSuccesses >= cb.config.SuccessThreshold {
			return cb.setStateLocked(StateClosed, now)
		}
		return nil
	}

	cb.counts.TotalFailures++
	cb.counts.ConsecutiveFailures++
	cb.counts.ConsecutiveSuccesses = 0

	switch cb.state {
	case StateClosed:
		if cb.counts.ConsecutiveFailures >= cb.config.MaxFailures {
			return cb.setStateLocked(StateOpen, now)
		}
	case StateHalfOpen:
		return cb.setStateLocked(StateOpen, now)
	}

	return nil
}
