package timeouts

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestConfigure_KeepsZeroFields(t *testing.T) {
	t.Cleanup(Reset)

	Configure(Config{Short: time.Second, Batch: 5 * time.Minute})

	if Short() != time.Second {
		t.Errorf("Short() = %v, want 1s", Short())
	}
	if Batch() != 5*time.Minute {
		t.Errorf("Batch() = %v, want 5m", Batch())
	}
	if Medium() != DefaultMedium {
		t.Errorf("Medium() = %v, want default %v", Medium(), DefaultMedium)
	}
	if Ping() != DefaultPing {
		t.Errorf("Ping() = %v, want default %v", Ping(), DefaultPing)
	}
}

func TestReset(t *testing.T) {
	Configure(Config{Long: time.Hour})
	Reset()
	if Long() != DefaultLong {
		t.Errorf("Long() after Reset = %v, want %v", Long(), DefaultLong)
	}
}

func TestWithTimeout_LogsDeadline(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	ctx, cancel := WithTimeout(context.Background(), time.Millisecond, zap.New(core), "list recipes")
	<-ctx.Done()
	cancel()

	if logs.Len() != 1 {
		t.Fatalf("expected 1 warning, got %d", logs.Len())
	}
	if got := logs.All()[0].ContextMap()["operation"]; got != "list recipes" {
		t.Errorf("operation = %v", got)
	}
}

func TestWithTimeout_QuietWhenCancelledEarly(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	_, cancel := WithTimeout(context.Background(), time.Hour, zap.New(core), "get recipe")
	cancel()

	if logs.Len() != 0 {
		t.Errorf("expected no warning, got %d", logs.Len())
	}
}
