package audit

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestLogger(t *testing.T) (Logger, *Config) {
	t.Helper()
	tmpDir := t.TempDir()

	config := &Config{
		AuditLogPath: filepath.Join(tmpDir, "audit.log"),
		AppLogPath:   filepath.Join(tmpDir, "app.log"),
		MaxSize:      10,
		MaxBackups:   3,
		MaxAge:       7,
		LogLevel:     "info",
		Format:       "json",
	}

	logger, err := NewLogger(config)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	t.Cleanup(func() { _ = logger.Close() })
	return logger, config
}

func readAuditEvents(t *testing.T, path string) []Event {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}

	var events []Event
	for _, line := range strings.Split(strings.TrimSpace(string(content)), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("Invalid JSON line %q: %v", line, err)
		}
		var event Event
		if err := json.Unmarshal([]byte(entry["message"].(string)), &event); err != nil {
			t.Fatalf("Invalid event payload: %v", err)
		}
		events = append(events, event)
	}
	return events
}

func TestNewLogger(t *testing.T) {
	logger, _ := newTestLogger(t)
	if logger == nil {
		t.Fatal("Expected logger to be non-nil")
	}
	if logger.AppLogger() == nil {
		t.Fatal("Expected app logger to be non-nil")
	}
}

func TestNewLoggerWithInvalidLevel(t *testing.T) {
	_, err := NewLogger(&Config{LogLevel: "invalid"})
	if err == nil {
		t.Fatal("Expected error for invalid log level")
	}

	if !strings.Contains(err.Error(), "invalid log level") {
		t.Errorf("Expected 'invalid log level' error, got: %v", err)
	}
}

func TestNewLoggerWithoutPaths(t *testing.T) {
	logger, err := NewLogger(&Config{LogLevel: "warn", Format: "console"})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	if err := logger.LogCaseOpened(context.Background(), "case_1", "alice"); err != nil {
		t.Fatalf("LogCaseOpened failed: %v", err)
	}
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync with audit file disabled should not fail: %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.AuditLogPath != "logs/audit.log" {
		t.Errorf("Expected audit log path 'logs/audit.log', got %s", config.AuditLogPath)
	}
	if config.MaxSize != 100 {
		t.Errorf("Expected max size 100, got %d", config.MaxSize)
	}
	if config.LogLevel != "info" {
		t.Errorf("Expected log level 'info', got %s", config.LogLevel)
	}
	if config.Format != "json" {
		t.Errorf("Expected format 'json', got %s", config.Format)
	}
}

func TestLogEvent(t *testing.T) {
	logger, config := newTestLogger(t)

	ctx := context.Background()
	event := NewEvent(EventCaseOpened).
		WithCorrelationID("test-123").
		WithUser("test-user").
		WithCase("case_abc", 0).
		WithResult(ResultSuccess)

	if err := logger.Log(ctx, event); err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	events := readAuditEvents(t, config.AuditLogPath)
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	got := events[0]
	if got.CorrelationID != "test-123" {
		t.Errorf("Expected correlation ID test-123, got %s", got.CorrelationID)
	}
	if got.EventType != EventCaseOpened {
		t.Errorf("Expected event type %s, got %s", EventCaseOpened, got.EventType)
	}
	if got.User != "test-user" || got.CaseID != "case_abc" {
		t.Errorf("Unexpected actor/case: %+v", got)
	}
}

func TestCaseLifecycleEvents(t *testing.T) {
	logger, config := newTestLogger(t)
	ctx := WithCorrelationID(context.Background(), "corr-1")

	calls := []func() error{
		func() error { return logger.LogCaseOpened(ctx, "case_1", "alice") },
		func() error { return logger.LogStatusChanged(ctx, "case_1", 2, "consulting", "investigating") },
		func() error { return logger.LogTurnProcessed(ctx, "case_1", 2, "milestone_completed", 150*time.Millisecond) },
		func() error { return logger.LogDegradedEntered(ctx, "case_1", 5, "no_progress", "No progress for 3 consecutive turns") },
		func() error { return logger.LogDegradedExited(ctx, "case_1", 6) },
		func() error { return logger.LogTurnFailed(ctx, "case_1", errors.New("boom")) },
		func() error { return logger.LogCaseClosed(ctx, "case_1", "abandoned") },
		func() error { return logger.LogConfigLoaded(ctx, "/etc/kubilitics/investigator.yaml") },
	}
	for i, call := range calls {
		if err := call(); err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
	}
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	events := readAuditEvents(t, config.AuditLogPath)
	wantTypes := []EventType{
		EventCaseOpened,
		EventCaseStatusChanged,
		EventTurnProcessed,
		EventDegradedEntered,
		EventDegradedExited,
		EventTurnFailed,
		EventCaseClosed,
		EventConfigLoaded,
	}
	if len(events) != len(wantTypes) {
		t.Fatalf("Expected %d events, got %d", len(wantTypes), len(events))
	}
	for i, want := range wantTypes {
		if events[i].EventType != want {
			t.Errorf("event %d: expected %s, got %s", i, want, events[i].EventType)
		}
		if events[i].CorrelationID != "corr-1" {
			t.Errorf("event %d: correlation ID not taken from context", i)
		}
	}

	if events[1].Metadata["to"] != "investigating" {
		t.Errorf("Expected status change metadata, got %v", events[1].Metadata)
	}
	if events[2].DurationMs != 150 {
		t.Errorf("Expected duration 150ms, got %d", events[2].DurationMs)
	}
	if events[5].Result != ResultFailure || events[5].Error != "boom" {
		t.Errorf("Expected failed turn event, got %+v", events[5])
	}
}

func TestBufferFlushesAtCapacity(t *testing.T) {
	logger, config := newTestLogger(t)
	ctx := context.Background()

	for i := 0; i < bufferSize; i++ {
		if err := logger.LogCaseOpened(ctx, "case_x", "bob"); err != nil {
			t.Fatalf("LogCaseOpened failed: %v", err)
		}
	}

	// The hundredth event flushes without an explicit Sync.
	info, err := os.Stat(config.AuditLogPath)
	if err != nil {
		t.Fatalf("Audit log not written at capacity: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("Audit log is empty after buffer filled")
	}
}

func TestConcurrentLogging(t *testing.T) {
	logger, config := newTestLogger(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				_ = logger.LogTurnProcessed(ctx, "case_c", j, "conversation", time.Millisecond)
			}
		}()
	}
	wg.Wait()

	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if got := len(readAuditEvents(t, config.AuditLogPath)); got != 50 {
		t.Errorf("Expected 50 events, got %d", got)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	logger, _ := newTestLogger(t)
	if err := logger.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestCorrelationID(t *testing.T) {
	ctx := context.Background()
	if id := GetCorrelationID(ctx); id != "" {
		t.Errorf("Expected empty correlation ID, got %s", id)
	}

	id := GenerateCorrelationID()
	if id == "" {
		t.Fatal("Expected generated correlation ID")
	}
	if got := GetCorrelationID(WithCorrelationID(ctx, id)); got != id {
		t.Errorf("Expected %s, got %s", id, got)
	}
}

func TestEventBuilder(t *testing.T) {
	event := NewEvent(EventTurnFailed).
		WithCase("case_9", 4).
		WithAction("process_turn").
		WithError(errors.New("timeout"), "E_TIMEOUT").
		WithMetadata("attempt", 2)

	if event.Result != ResultFailure {
		t.Errorf("Expected failure result, got %s", event.Result)
	}
	if event.Turn != 4 || event.Action != "process_turn" {
		t.Errorf("Unexpected event fields: %+v", event)
	}
	if event.ErrorCode != "E_TIMEOUT" {
		t.Errorf("Expected error code, got %s", event.ErrorCode)
	}

	// A nil error leaves the result untouched.
	ok := NewEvent(EventCaseOpened).WithResult(ResultSuccess).WithError(nil, "x")
	if ok.Result != ResultSuccess || ok.ErrorCode != "" {
		t.Errorf("nil error should not mark failure: %+v", ok)
	}
}
