package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		Enabled:          true,
		Name:             "Source1",
		MaxFailures:      3,
		Timeout:          time.Minute,
		SuccessThreshold: 1,
	}
}

// fakeClock - управляемое время
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(t *testing.T, cfg Config) (*CircuitBreaker, *fakeClock) {
	t.Helper()
	cb, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create circuit breaker: %v", err)
	}
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb.now = clock.Now
	return cb, clock
}

func fail(ctx context.Context) error    { return errors.New("connection refused") }
func succeed(ctx context.Context) error { return nil }

func TestCircuitBreaker_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	cb, _ := newTestBreaker(t, cfg)

	for i := 0; i < 10; i++ {
		_ = cb.Execute(context.Background(), fail)
	}

	if cb.State() != StateClosed {
		t.Errorf("Expected StateClosed for disabled breaker, got %v", cb.State())
	}
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb, _ := newTestBreaker(t, testConfig())

	for i := 0; i < 3; i++ {
		if err := cb.Execute(context.Background(), fail); err == nil {
			t.Fatalf("Expected source error on call %d", i)
		}
	}

	if cb.State() != StateOpen {
		t.Fatalf("Expected StateOpen, got %v", cb.State())
	}

	called := false
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("Function must not run while circuit is open")
	}
}

func TestCircuitBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(t, testConfig())

	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), succeed)
	_ = cb.Execute(context.Background(), fail)

	if cb.State() != StateClosed {
		t.Errorf("Expected StateClosed, got %v", cb.State())
	}
	if got := cb.Counts().ConsecutiveFailures; got != 1 {
		t.Errorf("Expected 1 consecutive failure, got %d", got)
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	var transitions []string
	cfg := testConfig()
	cfg.OnStateChange = func(name string, from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	}
	cb, clock := newTestBreaker(t, cfg)

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), fail)
	}
	clock.Advance(2 * time.Minute)

	if err := cb.Execute(context.Background(), succeed); err != nil {
		t.Fatalf("Expected probe to pass, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected StateClosed after probe, got %v", cb.State())
	}

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("Expected transitions %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("Transition %d: expected %s, got %s", i, want[i], transitions[i])
		}
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(t, testConfig())

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), fail)
	}
	clock.Advance(2 * time.Minute)
	_ = cb.Execute(context.Background(), fail)

	if cb.State() != StateOpen {
		t.Errorf("Expected StateOpen after failed probe, got %v", cb.State())
	}
	if cb.Stats().TimeUntilHalfOpen != time.Minute {
		t.Errorf("Expected full timeout, got %v", cb.Stats().TimeUntilHalfOpen)
	}
}

func TestCircuitBreaker_CancellationIsNotFailure(t *testing.T) {
	cb, _ := newTestBreaker(t, testConfig())

	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error {
			return context.Canceled
		})
	}

	if cb.State() != StateClosed {
		t.Errorf("Superseded requests must not open the circuit, got %v", cb.State())
	}
}

func TestCircuitBreaker_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.MaxFailures = 0
	if _, err := New(cfg); err == nil {
		t.Error("Expected error for MaxFailures = 0")
	}

	cfg = testConfig()
	cfg.Timeout = 0
	if _, err := New(cfg); err == nil {
		t.Error("Expected error for Timeout = 0")
	}
}

func TestGroup_PerSourceIsolation(t *testing.T) {
	cfg := testConfig()
	cfg.Name = ""
	group, err := NewGroup(cfg)
	if err != nil {
		t.Fatalf("Failed to create group: %v", err)
	}

	for i := 0; i < 3; i++ {
		_ = group.Execute(context.Background(), "Source1", fail)
	}

	if err := group.Execute(context.Background(), "Source2", succeed); err != nil {
		t.Errorf("Source2 must not be affected by Source1, got %v", err)
	}
	if err := group.Execute(context.Background(), "Source1", succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected Source1 open, got %v", err)
	}

	stats := group.StatsAll()
	if len(stats) != 2 || stats[0].Name != "Source1" || stats[1].Name != "Source2" {
		t.Fatalf("Unexpected stats: %+v", stats)
	}

	group.ResetAll()
	if group.Get("Source1").State() != StateClosed {
		t.Error("Expected Source1 closed after ResetAll")
	}
}

func TestGroup_ConcurrentGet(t *testing.T) {
	group, err := NewGroup(testConfig())
	if err != nil {
		t.Fatalf("Failed to create group: %v", err)
	}

	var wg sync.WaitGroup
	breakers := make([]*CircuitBreaker, 20)
	for i := range breakers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			breakers[i] = group.Get("Source1")
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(breakers); i++ {
		if breakers[i] != breakers[0] {
			t.Fatal("Expected the same breaker instance for one source")
		}
	}
}
