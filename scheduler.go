package agentcore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	schedulerHistoryCap = 50
	defaultTickSeconds  = 5
)

// scheduledRun is what the scheduler hands to a submit function for one
// due reminder (periodic or one-time).
type scheduledRun struct {
	id     string
	prompt string
	lane   Lane
}

// SubmitFunc enqueues a reminder's prompt as an agent turn and returns
// the assistant's reply (or an error). The scheduler wraps every call
// in the resilient executor under op "scheduler:<id>".
type SubmitFunc func(ctx context.Context, run scheduledRun) (string, error)

// scheduler ticks on an interval, advances the effective recurring set
// (configured reminders plus a synthetic heartbeat), fires due one-time
// reminders, and persists its state atomically after every mutation.
type Scheduler struct {
	statePath   string
	tickSeconds int
	submit      SubmitFunc
	exec        ResilientExecutor
	logger      *slog.Logger

	mu        sync.Mutex
	reminders map[string]RecurringReminder
	state     SchedulerState
	running   map[string]bool
	history   []ChatMessage

	stopC chan struct{}
	wg    sync.WaitGroup
}

// NewScheduler builds a scheduler backed by a JSON state file at statePath.
// reminders is the configured recurring set; heartbeat may be zero-valued
// (disabled). If statePath already holds valid state, it is loaded and
// takes precedence over a fresh nextRunById.
func NewScheduler(statePath string, tickSeconds int, reminders []RecurringReminder, heartbeat HeartbeatConfig, submit SubmitFunc, exec ResilientExecutor, logger *slog.Logger) *Scheduler {
	if tickSeconds < 1 {
		tickSeconds = defaultTickSeconds
	}
	if logger == nil {
		logger = nopLogger
	}
	s := &Scheduler{
		statePath:   statePath,
		tickSeconds: tickSeconds,
		submit:      submit,
		exec:        exec,
		logger:      logger,
		reminders:   make(map[string]RecurringReminder, len(reminders)),
		running:     make(map[string]bool),
		state: SchedulerState{
			NextRunByID:      make(map[string]int64),
			OneTimeReminders: nil,
			Heartbeat:        heartbeat,
		},
	}
	for _, r := range reminders {
		s.reminders[r.ID] = r
	}
	s.loadState()
	return s
}

// loadState reads statePath if present, dropping malformed entries (empty
// ids, negative timestamps); a one-time reminder with an empty or unknown
// lane is kept on the background lane. Load failures are treated as an
// empty initial state, not a fatal error.
func (s *Scheduler) loadState() {
	data, err := os.ReadFile(s.statePath)
	if err != nil {
		return
	}
	var loaded SchedulerState
	if err := json.Unmarshal(data, &loaded); err != nil {
		s.logger.Warn("scheduler: failed to parse state file, starting fresh", "err", err)
		return
	}

	nextRun := make(map[string]int64, len(loaded.NextRunByID))
	for id, ts := range loaded.NextRunByID {
		if id == "" || !validTimestamp(ts) {
			continue
		}
		nextRun[id] = ts
	}

	var oneTime []OneTimeReminder
	for _, r := range loaded.OneTimeReminders {
		if r.ID == "" || !validTimestamp(r.RunAtMs) {
			continue
		}
		if r.Lane == "" {
			r.Lane = LaneBackground
		}
		if _, ok := laneCaps[r.Lane]; !ok {
			r.Lane = LaneBackground
		}
		oneTime = append(oneTime, r)
	}

	hb := loaded.Heartbeat
	if hb.IntervalMinutes < 1 {
		hb.IntervalMinutes = 1
	}

	s.mu.Lock()
	s.state.NextRunByID = nextRun
	s.state.OneTimeReminders = oneTime
	s.state.Heartbeat = hb
	s.mu.Unlock()
}

func validTimestamp(ts int64) bool {
	return ts >= 0
}

// persist writes the full state atomically: write to a sibling temp
// file, then rename over statePath.
func (s *Scheduler) persist() error {
	s.mu.Lock()
	s.state.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	data, err := json.MarshalIndent(s.state, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.statePath)
	tmp, err := os.CreateTemp(dir, ".scheduler-state-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, s.statePath)
}

// Start runs the tick loop in the background until Stop is called or
// ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.stopC = make(chan struct{})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(time.Duration(s.tickSeconds) * time.Second)
		defer ticker.Stop()
		s.logger.Info("scheduler started", "tick_seconds", s.tickSeconds)
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("scheduler stopped")
				return
			case <-s.stopC:
				s.logger.Info("scheduler stopped")
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop halts the tick loop and waits for any in-flight tick to finish.
func (s *Scheduler) Stop() {
	if s.stopC != nil {
		close(s.stopC)
	}
	s.wg.Wait()
}

// effectiveRecurringSet returns the configured reminders filtered to
// Enabled, plus the synthetic heartbeat reminder when enabled.
func (s *Scheduler) effectiveRecurringSet() []RecurringReminder {
	hb := s.state.Heartbeat

	var set []RecurringReminder
	for _, r := range s.reminders {
		if r.Enabled {
			set = append(set, r)
		}
	}
	if hb.Enabled {
		set = append(set, RecurringReminder{
			ID:              heartbeatReminderID,
			Prompt:          hb.Prompt,
			IntervalMinutes: hb.IntervalMinutes,
			Lane:            LaneBackground,
			Enabled:         true,
		})
	}
	return set
}

// tick performs one scheduler pass: advance recurring reminders due for
// firing, then fire any due one-time reminders. A late-arriving tick
// still processes everything due since the previous tick in one pass.
func (s *Scheduler) tick(ctx context.Context) {
	now := nowMs()
	var toRun []scheduledRun
	dirty := false

	s.mu.Lock()
	for _, r := range s.effectiveRecurringSet() {
		intervalMs := int64(r.IntervalMinutes) * 60_000
		next, ok := s.state.NextRunByID[r.ID]
		if !ok {
			s.state.NextRunByID[r.ID] = now + intervalMs
			dirty = true
			continue
		}
		if now < next {
			continue
		}
		s.state.NextRunByID[r.ID] = now + intervalMs
		dirty = true
		if s.running[r.ID] {
			continue
		}
		toRun = append(toRun, scheduledRun{id: r.ID, prompt: r.Prompt, lane: r.Lane})
	}

	var remaining []OneTimeReminder
	for _, r := range s.state.OneTimeReminders {
		if !r.Enabled || now < r.RunAtMs {
			remaining = append(remaining, r)
			continue
		}
		if s.running[r.ID] {
			remaining = append(remaining, r)
			continue
		}
		toRun = append(toRun, scheduledRun{id: r.ID, prompt: r.Prompt, lane: r.Lane})
		// Removed from state before execution: at-most-once delivery.
	}
	s.state.OneTimeReminders = remaining

	for _, run := range toRun {
		s.running[run.id] = true
	}
	s.mu.Unlock()

	if dirty || len(toRun) > 0 {
		if err := s.persist(); err != nil {
			s.logger.Error("scheduler: persist failed", "err", err)
		}
	}

	for _, run := range toRun {
		go s.execute(ctx, run)
	}
}

// execute runs one due reminder through the resilient executor and the
// lane queue's submit function, then appends the reply to the rolling
// assistant history on success.
func (s *Scheduler) execute(ctx context.Context, run scheduledRun) {
	defer func() {
		s.mu.Lock()
		delete(s.running, run.id)
		s.mu.Unlock()
	}()

	var reply string
	op := fmt.Sprintf("scheduler:%s", run.id)
	err := s.exec.Execute(op, func() error {
		r, err := s.submit(ctx, run)
		if err != nil {
			return err
		}
		reply = r
		return nil
	})
	if err != nil {
		s.logger.Warn("scheduler: reminder run failed", "id", run.id, "err", err)
		return
	}

	s.mu.Lock()
	s.history = append(s.history, AssistantMessage(reply))
	if len(s.history) > schedulerHistoryCap {
		s.history = s.history[len(s.history)-schedulerHistoryCap:]
	}
	s.mu.Unlock()
}

// SetHeartbeat enables the heartbeat at the given interval (floored to
// whole minutes, minimum 1) with the given prompt, and clears its
// nextRunById entry so the next tick reinitializes the schedule.
func (s *Scheduler) SetHeartbeat(minutes int, prompt string) error {
	if minutes < 1 {
		minutes = 1
	}
	s.mu.Lock()
	s.state.Heartbeat = HeartbeatConfig{Enabled: true, IntervalMinutes: minutes, Prompt: prompt}
	delete(s.state.NextRunByID, heartbeatReminderID)
	s.mu.Unlock()
	return s.persist()
}

// DisableHeartbeat turns the heartbeat off.
func (s *Scheduler) DisableHeartbeat() error {
	s.mu.Lock()
	s.state.Heartbeat.Enabled = false
	s.mu.Unlock()
	return s.persist()
}

// ScheduleOneTimeIn schedules prompt to fire in minutes minutes, on lane
// (default background), and returns the new reminder's id.
func (s *Scheduler) ScheduleOneTimeIn(minutes int, prompt string, lane Lane) (string, error) {
	return s.ScheduleOneTimeAt(nowMs()+int64(minutes)*60_000, prompt, lane)
}

// ScheduleOneTimeAt schedules prompt to fire at runAtMs.
func (s *Scheduler) ScheduleOneTimeAt(runAtMs int64, prompt string, lane Lane) (string, error) {
	if lane == "" {
		lane = LaneBackground
	}
	if _, ok := laneCaps[lane]; !ok {
		lane = LaneBackground
	}
	id := "onetime-" + NewID()
	s.mu.Lock()
	s.state.OneTimeReminders = append(s.state.OneTimeReminders, OneTimeReminder{
		ID: id, Prompt: prompt, RunAtMs: runAtMs, Lane: lane, Enabled: true,
	})
	s.mu.Unlock()
	return id, s.persist()
}

// CancelOneTime removes the one-time reminder with the given id, if
// present, and reports whether anything was removed.
func (s *Scheduler) CancelOneTime(id string) (bool, error) {
	s.mu.Lock()
	found := false
	var remaining []OneTimeReminder
	for _, r := range s.state.OneTimeReminders {
		if r.ID == id {
			found = true
			continue
		}
		remaining = append(remaining, r)
	}
	s.state.OneTimeReminders = remaining
	s.mu.Unlock()
	if !found {
		return false, nil
	}
	return true, s.persist()
}

// ListOneTime returns a snapshot of pending one-time reminders.
func (s *Scheduler) ListOneTime() []OneTimeReminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]OneTimeReminder, len(s.state.OneTimeReminders))
	copy(out, s.state.OneTimeReminders)
	return out
}

// GetHealthMetrics returns the resilient executor's per-reminder metrics,
// keyed by reminder id, for every reminder the scheduler knows about.
func (s *Scheduler) GetHealthMetrics() map[string]OpMetrics {
	s.mu.Lock()
	ids := make(map[string]struct{})
	for id := range s.reminders {
		ids[id] = struct{}{}
	}
	for id := range s.state.NextRunByID {
		ids[id] = struct{}{}
	}
	s.mu.Unlock()

	out := make(map[string]OpMetrics, len(ids))
	for id := range ids {
		out[id] = s.exec.Metrics(fmt.Sprintf("scheduler:%s", id))
	}
	return out
}

// History returns a snapshot of the rolling assistant-reply history.
func (s *Scheduler) History() []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatMessage, len(s.history))
	copy(out, s.history)
	return out
}

// Heartbeat returns the currently configured heartbeat.
func (s *Scheduler) Heartbeat() HeartbeatConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Heartbeat
}
