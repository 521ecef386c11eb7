package timeouts_test

import (
	"context"
	"testing"
	"time"

	"github.com/sheltrhq/sheltr/internal/app/system/timeouts"
	"go.uber.org/zap"
)

func TestDefaults(t *testing.T) {
	timeouts.Reset()
	if timeouts.Short() != timeouts.DefaultShort || timeouts.Sync() != timeouts.DefaultSync {
		t.Errorf("unexpected defaults: %+v", timeouts.Current())
	}
}

func TestConfigure_IgnoresZero(t *testing.T) {
	timeouts.Reset()
	defer timeouts.Reset()

	timeouts.Configure(timeouts.Config{Medium: 42 * time.Second})

	if timeouts.Medium() != 42*time.Second {
		t.Errorf("Medium: got %v", timeouts.Medium())
	}
	if timeouts.Ping() != timeouts.DefaultPing {
		t.Errorf("Ping should keep default, got %v", timeouts.Ping())
	}
}

func TestConfigureFromEnv(t *testing.T) {
	timeouts.Reset()
	defer timeouts.Reset()

	t.Setenv("SHELTR_TIMEOUT_SYNC", "5m")
	t.Setenv("SHELTR_TIMEOUT_SHORT", "not-a-duration")
	t.Setenv("SHELTR_TIMEOUT_LONG", "-1s")

	if n := timeouts.ConfigureFromEnv(); n != 1 {
		t.Errorf("configured: got %d, want 1", n)
	}
	if timeouts.Sync() != 5*time.Minute {
		t.Errorf("Sync: got %v", timeouts.Sync())
	}
	if timeouts.Short() != timeouts.DefaultShort {
		t.Errorf("Short: got %v", timeouts.Short())
	}
}

func TestWithTimeout(t *testing.T) {
	ctx, cancel := timeouts.WithTimeout(context.Background(), time.Millisecond, zap.NewNop(), "test")
	defer cancel()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context did not time out")
	}
	if ctx.Err() != context.DeadlineExceeded {
		t.Errorf("Err: got %v", ctx.Err())
	}
}
