package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotHost is returned when a non-host invokes a host-only operation. The
// capability is fixed at bootstrap; there is no way to acquire it mid-session.
var ErrNotHost = errors.New("operation requires the host capability")

const (
	// WarningThreshold is how much remaining time triggers the one-shot
	// ending-soon warning.
	WarningThreshold = 10 * time.Minute

	// DefaultExtendMinutes is added per extension when unspecified.
	DefaultExtendMinutes = 15

	// TerminalDisplay replaces the remaining-time readout once the
	// session has ended.
	TerminalDisplay = "00:00"
)

type CountdownState int

const (
	StateRunning CountdownState = iota
	StateWarningShown
	StateEnded
)

func (s CountdownState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateWarningShown:
		return "warning_shown"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// ExtendBackend persists a new effective end. The returned instant is the
// durable value; the countdown adopts it rather than computing its own.
type ExtendBackend interface {
	Extend(ctx context.Context, minutes int) (time.Time, error)
}

// Countdown tracks the session's effective end with two one-shot timers:
// one armed at end minus the warning threshold, one at the end itself. Both
// are cancelled and re-armed whenever the effective end changes, so the
// warning fires exactly once per end value and cannot double-fire.
type Countdown struct {
	mu sync.Mutex

	clock   Clock
	log     zerolog.Logger
	backend ExtendBackend
	bus     EphemeralBus
	isHost  bool

	end    time.Time
	warned bool
	ended  bool

	warnTimer Timer
	endTimer  Timer

	onWarning func(remaining time.Duration)
	onEnded   func()
}

type CountdownConfig struct {
	// End is the effective end from bootstrap.
	End     time.Time
	IsHost  bool
	Backend ExtendBackend
	Bus     EphemeralBus
	Clock   Clock // nil means wall clock

	OnWarning func(remaining time.Duration)
	OnEnded   func()

	Log zerolog.Logger
}

func NewCountdown(cfg CountdownConfig) *Countdown {
	clock := cfg.Clock
	if clock == nil {
		clock = RealClock()
	}
	return &Countdown{
		clock:     clock,
		log:       cfg.Log.With().Str("component", "countdown").Logger(),
		backend:   cfg.Backend,
		bus:       cfg.Bus,
		isHost:    cfg.IsHost,
		end:       cfg.End,
		onWarning: cfg.OnWarning,
		onEnded:   cfg.OnEnded,
	}
}

// Start arms the timers for the current end.
func (c *Countdown) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.arm()
}

// Stop cancels both timers. Used on session teardown.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disarm()
}

// EffectiveEnd returns the current authoritative end instant.
func (c *Countdown) EffectiveEnd() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.end
}

// State reports the controller's phase.
func (c *Countdown) State() CountdownState {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.ended:
		return StateEnded
	case c.warned:
		return StateWarningShown
	default:
		return StateRunning
	}
}

// Remaining is the time left, floored at zero.
func (c *Countdown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	remaining := c.end.Sub(c.clock.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Display renders remaining time as MM:SS, floored to whole units. Once
// ended it is the fixed terminal string, never a negative value.
func (c *Countdown) Display() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	remaining := c.end.Sub(c.clock.Now())
	if c.ended || remaining <= 0 {
		return TerminalDisplay
	}
	total := int(remaining.Seconds())
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// AdoptEnd applies a new effective end learned from any source: an extend
// call, a TimeExtended message, or a metadata snapshot. It is idempotent and
// monotonic; an end at or before the current one is ignored, so duplicate
// and out-of-order notifications are harmless. Moving the end forward
// resets the warning flag and re-arms both timers.
func (c *Countdown) AdoptEnd(end time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !end.After(c.end) {
		return
	}

	c.end = end
	c.warned = false
	c.ended = false
	c.arm()

	c.log.Debug().Time("end", end).Msg("adopted new effective end")
}

// Extend asks the backend to push the end forward, adopts the persisted
// value, then tells currently connected peers over the ephemeral bus. There
// is no optimistic update: the end moves only after the backend confirms,
// so a failed call leaves nothing to roll back. A peer that misses the
// broadcast learns the new end from its next bootstrap.
func (c *Countdown) Extend(ctx context.Context, minutes int) error {
	if !c.isHost {
		return ErrNotHost
	}
	if minutes <= 0 {
		minutes = DefaultExtendMinutes
	}

	newEnd, err := c.backend.Extend(ctx, minutes)
	if err != nil {
		return fmt.Errorf("extending session: %w", err)
	}

	c.AdoptEnd(newEnd)

	if c.bus != nil {
		msg := TimeExtended{NewEndTime: newEnd, MinutesAdded: minutes}
		if err := c.bus.Publish(ctx, msg); err != nil {
			// Best effort: disconnected peers reconverge via bootstrap.
			c.log.Warn().Err(err).Msg("time_extended broadcast failed")
		}
	}
	return nil
}

// arm re-arms both timers for the current end. Callers hold c.mu.
func (c *Countdown) arm() {
	c.disarm()

	armedEnd := c.end
	remaining := armedEnd.Sub(c.clock.Now())

	if remaining <= 0 {
		c.ended = true
		if c.onEnded != nil {
			ended := c.onEnded
			c.clock.AfterFunc(0, ended)
		}
		return
	}

	warnIn := remaining - WarningThreshold
	if warnIn < 0 {
		warnIn = 0
	}
	c.warnTimer = c.clock.AfterFunc(warnIn, func() { c.fireWarning(armedEnd) })
	c.endTimer = c.clock.AfterFunc(remaining, func() { c.fireEnded(armedEnd) })
}

func (c *Countdown) disarm() {
	if c.warnTimer != nil {
		c.warnTimer.Stop()
		c.warnTimer = nil
	}
	if c.endTimer != nil {
		c.endTimer.Stop()
		c.endTimer = nil
	}
}

// fireWarning runs when the warning timer for armedEnd elapses. The end
// identity check plus the warned flag make it a strict one-shot per end
// value, even if a stale timer slips past Stop.
func (c *Countdown) fireWarning(armedEnd time.Time) {
	c.mu.Lock()
	if !c.end.Equal(armedEnd) || c.warned || c.ended {
		c.mu.Unlock()
		return
	}
	c.warned = true
	remaining := c.end.Sub(c.clock.Now())
	if remaining < 0 {
		remaining = 0
	}
	handler := c.onWarning
	c.mu.Unlock()

	c.log.Info().Dur("remaining", remaining).Msg("session ending soon")
	if handler != nil {
		handler(remaining)
	}
}

func (c *Countdown) fireEnded(armedEnd time.Time) {
	c.mu.Lock()
	if !c.end.Equal(armedEnd) || c.ended {
		c.mu.Unlock()
		return
	}
	c.ended = true
	handler := c.onEnded
	c.mu.Unlock()

	c.log.Info().Msg("session ended")
	if handler != nil {
		handler()
	}
}
