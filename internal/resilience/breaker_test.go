package resilience_test

import (
	"errors"
	"testing"
	"time"

	"github.com/ATAboukhadra/T30-Mazad/internal/resilience"
)

func TestBreaker_TripsAfterMaxFailures(t *testing.T) {
	t.Parallel()

	b := resilience.NewBreaker(resilience.BreakerConfig{
		Name:        "test",
		MaxFailures: 3,
		Cooldown:    time.Hour,
	})
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		if err := b.Do(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("call %d: err = %v, want boom", i, err)
		}
	}
	if !b.Open() {
		t.Fatal("breaker should be open after 3 consecutive failures")
	}

	called := false
	err := b.Do(func() error { called = true; return nil })
	if !errors.Is(err, resilience.ErrBreakerOpen) {
		t.Errorf("err = %v, want ErrBreakerOpen", err)
	}
	if called {
		t.Error("open breaker must not call the backend")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	b := resilience.NewBreaker(resilience.BreakerConfig{MaxFailures: 2, Cooldown: time.Hour})
	boom := errors.New("boom")

	_ = b.Do(func() error { return boom })
	_ = b.Do(func() error { return nil })
	_ = b.Do(func() error { return boom })

	if b.Open() {
		t.Error("interleaved success should prevent the breaker from tripping")
	}
}

func TestBreaker_ProbeClosesAfterCooldown(t *testing.T) {
	t.Parallel()

	b := resilience.NewBreaker(resilience.BreakerConfig{
		MaxFailures: 1,
		Cooldown:    10 * time.Millisecond,
	})
	_ = b.Do(func() error { return errors.New("boom") })
	if !b.Open() {
		t.Fatal("breaker should trip on the first failure")
	}

	time.Sleep(20 * time.Millisecond)

	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("probe after cooldown: %v", err)
	}
	if b.Open() {
		t.Error("successful probe should close the breaker")
	}
}

func TestBreaker_FailedProbeStaysOpen(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	b := resilience.NewBreaker(resilience.BreakerConfig{
		MaxFailures: 1,
		Cooldown:    10 * time.Millisecond,
	})
	_ = b.Do(func() error { return boom })

	time.Sleep(20 * time.Millisecond)

	if err := b.Do(func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("probe err = %v, want boom", err)
	}
	if err := b.Do(func() error { return nil }); !errors.Is(err, resilience.ErrBreakerOpen) {
		t.Errorf("err after failed probe = %v, want ErrBreakerOpen", err)
	}
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()

	b := resilience.NewBreaker(resilience.BreakerConfig{MaxFailures: 1, Cooldown: time.Hour})
	_ = b.Do(func() error { return errors.New("boom") })
	if !b.Open() {
		t.Fatal("breaker should be open")
	}

	b.Reset()
	if b.Open() {
		t.Error("reset breaker should be closed")
	}
	if err := b.Do(func() error { return nil }); err != nil {
		t.Errorf("call after reset: %v", err)
	}
}
