package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeClock drives timers deterministically. Timers fire during advance, in
// due order, never synchronously inside AfterFunc.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	due     time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, due: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.stopped && !t.fired
	t.stopped = true
	return was
}

// advance moves the clock and fires every due timer in order.
func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.due.After(c.now) {
				continue
			}
			if next == nil || t.due.Before(next.due) {
				next = t
			}
		}
		if next != nil {
			next.fired = true
		}
		c.mu.Unlock()

		if next == nil {
			return
		}
		next.f()
	}
}

type fakeExtendBackend struct {
	mu    sync.Mutex
	end   time.Time
	err   error
	calls []int
}

func (b *fakeExtendBackend) Extend(_ context.Context, minutes int) (time.Time, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, minutes)
	if b.err != nil {
		return time.Time{}, b.err
	}
	b.end = b.end.Add(time.Duration(minutes) * time.Minute)
	return b.end, nil
}

type fakeBus struct {
	mu        sync.Mutex
	published []ControlMessage
	handlers  []func(ControlMessage)
}

func (b *fakeBus) Publish(_ context.Context, msg ControlMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, msg)
	return nil
}

func (b *fakeBus) OnMessage(h func(ControlMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

type countdownFixture struct {
	clock    *fakeClock
	backend  *fakeExtendBackend
	bus      *fakeBus
	cd       *Countdown
	warnings []time.Duration
	endings  int
	mu       sync.Mutex
}

func newCountdownFixture(t *testing.T, remaining time.Duration, isHost bool) *countdownFixture {
	t.Helper()
	start := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	end := start.Add(remaining)

	f := &countdownFixture{
		clock:   newFakeClock(start),
		backend: &fakeExtendBackend{end: end},
		bus:     &fakeBus{},
	}
	f.cd = NewCountdown(CountdownConfig{
		End:     end,
		IsHost:  isHost,
		Backend: f.backend,
		Bus:     f.bus,
		Clock:   f.clock,
		OnWarning: func(remaining time.Duration) {
			f.mu.Lock()
			f.warnings = append(f.warnings, remaining)
			f.mu.Unlock()
		},
		OnEnded: func() {
			f.mu.Lock()
			f.endings++
			f.mu.Unlock()
		},
		Log: zerolog.Nop(),
	})
	f.cd.Start()
	t.Cleanup(f.cd.Stop)
	return f
}

func (f *countdownFixture) warningCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.warnings)
}

func TestCountdown_WarningFiresExactlyOnce(t *testing.T) {
	f := newCountdownFixture(t, 30*time.Minute, true)

	f.clock.advance(19 * time.Minute)
	if got := f.warningCount(); got != 0 {
		t.Fatalf("warning fired %d times before the threshold", got)
	}

	f.clock.advance(time.Minute)
	if got := f.warningCount(); got != 1 {
		t.Fatalf("expected exactly one warning at the threshold, got %d", got)
	}

	// Scheduling jitter: re-evaluating at the same instant and after it
	// must not fire again for the same effective end.
	f.clock.advance(0)
	f.clock.advance(time.Second)
	if got := f.warningCount(); got != 1 {
		t.Fatalf("warning re-fired for the same end value, got %d", got)
	}

	if state := f.cd.State(); state != StateWarningShown {
		t.Errorf("expected warning_shown state, got %s", state)
	}
}

func TestCountdown_WarningImmediateWhenJoiningInsideThreshold(t *testing.T) {
	f := newCountdownFixture(t, 5*time.Minute, false)

	f.clock.advance(0)
	if got := f.warningCount(); got != 1 {
		t.Fatalf("expected immediate warning with 5m remaining, got %d", got)
	}
	f.mu.Lock()
	remaining := f.warnings[0]
	f.mu.Unlock()
	if remaining != 5*time.Minute {
		t.Errorf("warning remaining = %v, want 5m", remaining)
	}
}

func TestCountdown_ExtendAddsExactlyRequestedMinutes(t *testing.T) {
	f := newCountdownFixture(t, 30*time.Minute, true)
	before := f.cd.EffectiveEnd()

	if err := f.cd.Extend(context.Background(), 15); err != nil {
		t.Fatalf("extend: %v", err)
	}
	if got := f.cd.EffectiveEnd(); !got.Equal(before.Add(15 * time.Minute)) {
		t.Fatalf("end after first extend = %v, want %v", got, before.Add(15*time.Minute))
	}

	// Effect size is the same no matter how much time remains.
	f.clock.advance(27 * time.Minute)
	second := f.cd.EffectiveEnd()
	if err := f.cd.Extend(context.Background(), 15); err != nil {
		t.Fatalf("second extend: %v", err)
	}
	if got := f.cd.EffectiveEnd(); !got.Equal(second.Add(15 * time.Minute)) {
		t.Fatalf("end after second extend = %v, want %v", got, second.Add(15*time.Minute))
	}
}

func TestCountdown_ExtendDefaultsMinutes(t *testing.T) {
	f := newCountdownFixture(t, 30*time.Minute, true)

	if err := f.cd.Extend(context.Background(), 0); err != nil {
		t.Fatalf("extend: %v", err)
	}
	f.backend.mu.Lock()
	defer f.backend.mu.Unlock()
	if len(f.backend.calls) != 1 || f.backend.calls[0] != DefaultExtendMinutes {
		t.Fatalf("backend called with %v, want [%d]", f.backend.calls, DefaultExtendMinutes)
	}
}

func TestCountdown_ExtensionResetsWarning(t *testing.T) {
	f := newCountdownFixture(t, 30*time.Minute, true)

	f.clock.advance(20 * time.Minute)
	if got := f.warningCount(); got != 1 {
		t.Fatalf("expected first warning, got %d", got)
	}

	if err := f.cd.Extend(context.Background(), 15); err != nil {
		t.Fatalf("extend: %v", err)
	}
	if state := f.cd.State(); state != StateRunning {
		t.Fatalf("expected running after extension, got %s", state)
	}

	// 25m remain now; the warning may fire again for the new end value.
	f.clock.advance(15 * time.Minute)
	if got := f.warningCount(); got != 2 {
		t.Fatalf("expected one warning per end value, got %d total", got)
	}
}

func TestCountdown_ExtendPublishesTimeExtended(t *testing.T) {
	f := newCountdownFixture(t, 30*time.Minute, true)

	if err := f.cd.Extend(context.Background(), 15); err != nil {
		t.Fatalf("extend: %v", err)
	}

	f.bus.mu.Lock()
	defer f.bus.mu.Unlock()
	if len(f.bus.published) != 1 {
		t.Fatalf("expected one published message, got %d", len(f.bus.published))
	}
	msg, ok := f.bus.published[0].(TimeExtended)
	if !ok {
		t.Fatalf("published %T, want TimeExtended", f.bus.published[0])
	}
	if msg.MinutesAdded != 15 {
		t.Errorf("MinutesAdded = %d, want 15", msg.MinutesAdded)
	}
	if !msg.NewEndTime.Equal(f.cd.EffectiveEnd()) {
		t.Errorf("broadcast end %v does not match adopted end %v", msg.NewEndTime, f.cd.EffectiveEnd())
	}
}

func TestCountdown_NonHostCannotExtend(t *testing.T) {
	f := newCountdownFixture(t, 30*time.Minute, false)

	err := f.cd.Extend(context.Background(), 15)
	if !errors.Is(err, ErrNotHost) {
		t.Fatalf("expected ErrNotHost, got %v", err)
	}
	f.backend.mu.Lock()
	defer f.backend.mu.Unlock()
	if len(f.backend.calls) != 0 {
		t.Error("backend must not be called for a non-host extend")
	}
}

func TestCountdown_FailedExtendLeavesEndUnchanged(t *testing.T) {
	f := newCountdownFixture(t, 30*time.Minute, true)
	f.backend.err = errors.New("backend down")
	before := f.cd.EffectiveEnd()

	if err := f.cd.Extend(context.Background(), 15); err == nil {
		t.Fatal("expected error from failing backend")
	}
	if got := f.cd.EffectiveEnd(); !got.Equal(before) {
		t.Fatalf("end changed after failed extend: %v", got)
	}
	f.bus.mu.Lock()
	defer f.bus.mu.Unlock()
	if len(f.bus.published) != 0 {
		t.Error("nothing may be broadcast for a failed extend")
	}
}

func TestCountdown_EndsWithTerminalDisplay(t *testing.T) {
	f := newCountdownFixture(t, 30*time.Minute, true)

	f.clock.advance(31 * time.Minute)

	if state := f.cd.State(); state != StateEnded {
		t.Fatalf("expected ended state, got %s", state)
	}
	if got := f.cd.Display(); got != TerminalDisplay {
		t.Errorf("display = %q, want %q", got, TerminalDisplay)
	}
	if got := f.cd.Remaining(); got != 0 {
		t.Errorf("remaining = %v, want 0", got)
	}
	f.mu.Lock()
	endings := f.endings
	f.mu.Unlock()
	if endings != 1 {
		t.Errorf("OnEnded fired %d times, want 1", endings)
	}
}

func TestCountdown_AdoptEndIsMonotonicAndIdempotent(t *testing.T) {
	f := newCountdownFixture(t, 30*time.Minute, false)
	before := f.cd.EffectiveEnd()

	// Out-of-order and duplicate notifications must be no-ops.
	f.cd.AdoptEnd(before.Add(-5 * time.Minute))
	f.cd.AdoptEnd(before)
	if got := f.cd.EffectiveEnd(); !got.Equal(before) {
		t.Fatalf("end moved backwards to %v", got)
	}

	newEnd := before.Add(15 * time.Minute)
	f.cd.AdoptEnd(newEnd)
	f.cd.AdoptEnd(newEnd)
	if got := f.cd.EffectiveEnd(); !got.Equal(newEnd) {
		t.Fatalf("end = %v, want %v", got, newEnd)
	}
}

func TestCountdown_DisplayFloorsWholeUnits(t *testing.T) {
	f := newCountdownFixture(t, 30*time.Minute, false)

	f.clock.advance(17*time.Minute + 30*time.Second)
	if got := f.cd.Display(); got != "12:30" {
		t.Errorf("display = %q, want 12:30", got)
	}

	f.clock.advance(12*time.Minute + 29*time.Second + 900*time.Millisecond)
	if got := f.cd.Display(); got != "00:00" {
		// 100ms remain; sub-second remainders floor to zero units but the
		// session has not ended yet.
		t.Errorf("display = %q, want 00:00", got)
	}
	if state := f.cd.State(); state == StateEnded {
		t.Error("session must not be ended with time still remaining")
	}
}

func TestCountdown_TimerOrderIsStable(t *testing.T) {
	// Warning and expiry armed together fire warning first.
	f := newCountdownFixture(t, 30*time.Minute, false)
	var order []string
	f.cd.Stop()

	cd := NewCountdown(CountdownConfig{
		End:       f.clock.Now().Add(11 * time.Minute),
		Clock:     f.clock,
		OnWarning: func(time.Duration) { order = append(order, "warning") },
		OnEnded:   func() { order = append(order, "ended") },
		Log:       zerolog.Nop(),
	})
	cd.Start()
	defer cd.Stop()

	f.clock.advance(11 * time.Minute)
	if len(order) != 2 || order[0] != "warning" || order[1] != "ended" {
		t.Fatalf("fire order = %v, want [warning ended]", order)
	}
}
