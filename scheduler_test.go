package agentcore

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestScheduler(t *testing.T, reminders []RecurringReminder, hb HeartbeatConfig, submit SubmitFunc) *Scheduler {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scheduler-state.json")
	exec := NewExecutor(ResiliencePolicy{
		Retry:   RetryPolicy{MaxAttempts: 1},
		Breaker: BreakerPolicy{FailureThreshold: 3, CooldownMs: 60_000},
	}, nil)
	return NewScheduler(path, 1, reminders, hb, submit, exec, nil)
}

func TestScheduler_RecurringReminderFiresAndReschedules(t *testing.T) {
	var mu sync.Mutex
	var fired []string
	submit := func(ctx context.Context, run scheduledRun) (string, error) {
		mu.Lock()
		fired = append(fired, run.id)
		mu.Unlock()
		return "done: " + run.prompt, nil
	}

	s := newTestScheduler(t, []RecurringReminder{
		{ID: "daily", Prompt: "say hi", IntervalMinutes: 0, Lane: LaneFast, Enabled: true},
	}, HeartbeatConfig{}, submit)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	// Ticks come every second and the first one only sets the next run,
	// so the second fire lands on the third tick, about 3 s in.
	deadline := time.Now().Add(4 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(fired)
		mu.Unlock()
		if n >= 2 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(fired) < 2 {
		t.Fatalf("expected the recurring reminder to fire at least twice, fired=%v", fired)
	}
}

func TestScheduler_OneTimeReminderAtMostOnce(t *testing.T) {
	var mu sync.Mutex
	var fired []string
	submit := func(ctx context.Context, run scheduledRun) (string, error) {
		mu.Lock()
		fired = append(fired, run.id)
		mu.Unlock()
		return "ok", nil
	}

	s := newTestScheduler(t, nil, HeartbeatConfig{}, submit)
	id, err := s.ScheduleOneTimeIn(0, "wake up", LaneBackground)
	if err != nil {
		t.Fatalf("ScheduleOneTimeIn failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	// The first tick comes one tick interval (1 s) after Start.
	time.Sleep(1500 * time.Millisecond)

	mu.Lock()
	count := 0
	for _, f := range fired {
		if f == id {
			count++
		}
	}
	mu.Unlock()
	if count != 1 {
		t.Fatalf("expected one-time reminder to fire exactly once, fired %d times", count)
	}

	if len(s.ListOneTime()) != 0 {
		t.Error("expected one-time reminder to be removed from pending list after firing")
	}
}

func TestScheduler_CancelOneTime(t *testing.T) {
	s := newTestScheduler(t, nil, HeartbeatConfig{}, func(ctx context.Context, run scheduledRun) (string, error) {
		return "", nil
	})
	id, err := s.ScheduleOneTimeIn(60, "later", LaneBackground)
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	ok, err := s.CancelOneTime(id)
	if err != nil || !ok {
		t.Fatalf("expected cancel to succeed, ok=%v err=%v", ok, err)
	}
	ok, _ = s.CancelOneTime(id)
	if ok {
		t.Error("expected second cancel of same id to report not-found")
	}
}

func TestScheduler_SetHeartbeatResetsNextRun(t *testing.T) {
	s := newTestScheduler(t, nil, HeartbeatConfig{}, func(ctx context.Context, run scheduledRun) (string, error) {
		return "", nil
	})
	s.mu.Lock()
	s.state.NextRunByID[heartbeatReminderID] = 999
	s.mu.Unlock()

	if err := s.SetHeartbeat(5, "ping"); err != nil {
		t.Fatalf("SetHeartbeat failed: %v", err)
	}

	s.mu.Lock()
	_, exists := s.state.NextRunByID[heartbeatReminderID]
	s.mu.Unlock()
	if exists {
		t.Error("expected heartbeat's nextRunById entry to be cleared on SetHeartbeat")
	}
}

func TestScheduler_PersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	exec := NewExecutor(ResiliencePolicy{Retry: RetryPolicy{MaxAttempts: 1}, Breaker: BreakerPolicy{FailureThreshold: 3, CooldownMs: 1000}}, nil)
	submit := func(ctx context.Context, run scheduledRun) (string, error) { return "", nil }

	s1 := NewScheduler(path, 1, nil, HeartbeatConfig{}, submit, exec, nil)
	if _, err := s1.ScheduleOneTimeIn(60, "persisted reminder", LaneSlow); err != nil {
		t.Fatalf("schedule failed: %v", err)
	}

	s2 := NewScheduler(path, 1, nil, HeartbeatConfig{}, submit, exec, nil)
	pending := s2.ListOneTime()
	if len(pending) != 1 || pending[0].Prompt != "persisted reminder" {
		t.Fatalf("expected reloaded scheduler to see the persisted reminder, got %v", pending)
	}
}

func TestScheduler_LoadStateDropsMalformedEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	badJSON := `{"nextRunById":{"":123,"valid":456},"oneTimeReminders":[{"id":"x","prompt":"p","run_at_ms":0,"lane":"bogus","enabled":true}],"heartbeat":{"enabled":false,"interval_minutes":0},"updatedAt":""}`
	if err := os.WriteFile(path, []byte(badJSON), 0o644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	exec := NewExecutor(ResiliencePolicy{Retry: RetryPolicy{MaxAttempts: 1}, Breaker: BreakerPolicy{FailureThreshold: 3, CooldownMs: 1000}}, nil)
	s := NewScheduler(path, 1, nil, HeartbeatConfig{}, func(ctx context.Context, run scheduledRun) (string, error) { return "", nil }, exec, nil)

	s.mu.Lock()
	_, hasEmpty := s.state.NextRunByID[""]
	_, hasValid := s.state.NextRunByID["valid"]
	s.mu.Unlock()
	if hasEmpty {
		t.Error("expected entry with empty id to be dropped")
	}
	if !hasValid {
		t.Error("expected valid entry to survive")
	}

	pending := s.ListOneTime()
	if len(pending) != 1 || pending[0].Lane != LaneBackground {
		t.Errorf("expected unknown lane to default to background, got %v", pending)
	}
}
