package util

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestRetry(t *testing.T) {
	attempts := 0
	targetAttempts := 3

	err := Retry(context.Background(), 5, 0, func(context.Context) error {
		attempts++
		if attempts < targetAttempts {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry returned unexpected error: %v", err)
	}
	if attempts != targetAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, targetAttempts)
	}
}

func TestRetryAllFail(t *testing.T) {
	attempts := 0
	maxAttempts := 3

	err := Retry(context.Background(), maxAttempts, 0, func(context.Context) error {
		attempts++
		return errors.New("persistent error")
	})

	if err == nil {
		t.Fatal("Retry should return error when all attempts fail")
	}
	if attempts != maxAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, maxAttempts)
	}
}

func TestRetryPermanent(t *testing.T) {
	bad := errors.New("bad request")
	attempts := 0
	err := Retry(context.Background(), 5, 0, func(context.Context) error {
		attempts++
		return Permanent(bad)
	})
	if err != bad {
		t.Errorf("Retry error = %v, want %v", err, bad)
	}
	if attempts != 1 {
		t.Errorf("Retry called fn %d times, want 1", attempts)
	}
}

func TestRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	err := Retry(ctx, 5, time.Hour, func(context.Context) error {
		cancel()
		return errors.New("transient error")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry error = %v, want context.Canceled", err)
	}
}

func TestRateLimiterBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	rl.lastTime = now

	for i := 0; i < 3; i++ {
		if wait := rl.reserve(); wait != 0 {
			t.Fatalf("reserve() #%d = %v, want 0", i, wait)
		}
	}
	if wait := rl.reserve(); wait != time.Second {
		t.Errorf("reserve() on empty bucket = %v, want %v", wait, time.Second)
	}

	now = now.Add(time.Second)
	if wait := rl.reserve(); wait != 0 {
		t.Errorf("reserve() after refill = %v, want 0", wait)
	}
}

func TestRateLimiterWaitCancelled(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait() = %v, want nil", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() = %v, want context.DeadlineExceeded", err)
	}
}

func TestDailySessions(t *testing.T) {
	bar := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	if got := NextSessionStart(bar.Add(5 * time.Hour)); !got.Equal(bar.AddDate(0, 0, 1)) {
		t.Errorf("NextSessionStart = %v, want %v", got, bar.AddDate(0, 0, 1))
	}
	if IsCompleteDailyBar(bar, bar.Add(23*time.Hour)) {
		t.Error("IsCompleteDailyBar = true during the session, want false")
	}
	if !IsCompleteDailyBar(bar, bar.Add(24*time.Hour)) {
		t.Error("IsCompleteDailyBar = false at next session start, want true")
	}
}

func TestNewLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "warn", "text").Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info record written at warn level: %q", buf.String())
	}

	newLogger(&buf, "debug", "json").Debug("kept", "run_id", "abc")
	if !strings.Contains(buf.String(), `"run_id":"abc"`) {
		t.Errorf("json output = %q, want run_id attribute", buf.String())
	}

	if ParseLevel("bogus") != slog.LevelInfo {
		t.Errorf("ParseLevel(bogus) = %v, want %v", ParseLevel("bogus"), slog.LevelInfo)
	}
}
