// Package vtime implements the compressed clock: conversions between real
// durations and virtual units, per-sprint time contexts, the standup and
// review meeting scheduler, and the time-event processor.
package vtime

import (
	"math"
	"sync"
	"time"

	"github.com/squadronhq/squadron/internal/logging"
	"github.com/squadronhq/squadron/pkg/errs"
	"github.com/squadronhq/squadron/pkg/models"
)

// HoursPerDay is the fixed length of a virtual day.
const HoursPerDay = 6.0

// Config holds the time-compression ratios.
type Config struct {
	// RealPerVirtualHour is how much wall-clock time one virtual hour takes.
	RealPerVirtualHour time.Duration
	// DaysPerSprint is the sprint length in virtual days.
	DaysPerSprint int
	// StandupIntervalHours is the standup cadence in virtual hours.
	StandupIntervalHours float64
}

// DefaultConfig compresses one virtual hour into one real minute, with
// five-day sprints and a standup every virtual day.
func DefaultConfig() Config {
	return Config{
		RealPerVirtualHour:   time.Minute,
		DaysPerSprint:        5,
		StandupIntervalHours: HoursPerDay,
	}
}

// Calculator converts between real and virtual time and tracks sprint
// contexts. Conversions are deterministic and stateless; only the sprint
// table carries state.
type Calculator struct {
	mu      sync.RWMutex
	cfg     Config
	sprints map[string]*models.SprintContext

	log   *logging.Logger
	clock func() time.Time
}

// NewCalculator creates a calculator, filling missing config from defaults.
func NewCalculator(cfg Config, log *logging.Logger) *Calculator {
	if log == nil {
		log = logging.Nop()
	}
	def := DefaultConfig()
	if cfg.RealPerVirtualHour <= 0 {
		cfg.RealPerVirtualHour = def.RealPerVirtualHour
	}
	if cfg.DaysPerSprint <= 0 {
		cfg.DaysPerSprint = def.DaysPerSprint
	}
	if cfg.StandupIntervalHours <= 0 {
		cfg.StandupIntervalHours = def.StandupIntervalHours
	}
	return &Calculator{
		cfg:     cfg,
		sprints: make(map[string]*models.SprintContext),
		log:     log,
		clock:   time.Now,
	}
}

// SetClock overrides the time source. Used by tests.
func (c *Calculator) SetClock(clock func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if clock != nil {
		c.clock = clock
	}
}

// Config returns the effective time configuration.
func (c *Calculator) Config() Config {
	return c.cfg
}

// SprintHours is the sprint length in virtual hours.
func (c *Calculator) SprintHours() float64 {
	return float64(c.cfg.DaysPerSprint) * HoursPerDay
}

// ToVirtualHours flattens a virtual value to hours.
func (c *Calculator) ToVirtualHours(v models.VirtualTime) float64 {
	switch v.Unit {
	case models.UnitDay:
		return v.Amount * HoursPerDay
	case models.UnitSprint:
		return v.Amount * c.SprintHours()
	default:
		return v.Amount
	}
}

// FromVirtualHours expresses an hour count in the largest unit that
// divides it evenly: sprints first, then days, else hours. The choice
// keeps ToVirtualHours(FromVirtualHours(h)) = h exactly.
func (c *Calculator) FromVirtualHours(hours float64) models.VirtualTime {
	if hours > 0 {
		if sprint := c.SprintHours(); math.Mod(hours, sprint) == 0 {
			return models.VirtualSprints(hours / sprint)
		}
		if math.Mod(hours, HoursPerDay) == 0 {
			return models.VirtualDays(hours / HoursPerDay)
		}
	}
	return models.VirtualHours(hours)
}

// RealToVirtual converts elapsed wall-clock time to a virtual value.
func (c *Calculator) RealToVirtual(elapsed time.Duration) models.VirtualTime {
	hours := float64(elapsed) / float64(c.cfg.RealPerVirtualHour)
	return c.FromVirtualHours(hours)
}

// VirtualToReal converts a virtual value to wall-clock time.
func (c *Calculator) VirtualToReal(v models.VirtualTime) time.Duration {
	return time.Duration(c.ToVirtualHours(v) * float64(c.cfg.RealPerVirtualHour))
}

// StartSprint opens a sprint context. Starting an already-running sprint
// fails with invalid input.
func (c *Calculator) StartSprint(sprintID string) (*models.SprintContext, error) {
	const op = "vtime.StartSprint"

	if sprintID == "" {
		return nil, errs.E(errs.KindInvalidInput, op, "sprint id must be non-empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.sprints[sprintID]; ok {
		return nil, errs.E(errs.KindInvalidInput, op, "sprint %q already running", sprintID)
	}
	ctx := &models.SprintContext{
		SprintID:          sprintID,
		StartedAt:         c.clock(),
		TotalVirtualHours: c.SprintHours(),
		Active:            true,
	}
	c.sprints[sprintID] = ctx
	c.log.Infof("vtime", "sprint %s started (%.0f virtual hours)", sprintID, ctx.TotalVirtualHours)
	return ctx.Clone(), nil
}

// CurrentTime refreshes and returns the sprint's position on the virtual
// clock.
func (c *Calculator) CurrentTime(sprintID string) (*models.SprintContext, error) {
	const op = "vtime.CurrentTime"

	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, ok := c.sprints[sprintID]
	if !ok {
		return nil, errs.E(errs.KindNotFound, op, "sprint %q not found", sprintID)
	}
	ctx.ElapsedReal = c.clock().Sub(ctx.StartedAt)
	ctx.CurrentVirtualHours = float64(ctx.ElapsedReal) / float64(c.cfg.RealPerVirtualHour)
	return ctx.Clone(), nil
}

// StopSprint closes a sprint context and removes it.
func (c *Calculator) StopSprint(sprintID string) error {
	const op = "vtime.StopSprint"

	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, ok := c.sprints[sprintID]
	if !ok {
		return errs.E(errs.KindNotFound, op, "sprint %q not found", sprintID)
	}
	ctx.Active = false
	delete(c.sprints, sprintID)
	c.log.Infof("vtime", "sprint %s stopped", sprintID)
	return nil
}

// ActiveSprints snapshots every running sprint context.
func (c *Calculator) ActiveSprints() []*models.SprintContext {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*models.SprintContext, 0, len(c.sprints))
	for _, ctx := range c.sprints {
		out = append(out, ctx.Clone())
	}
	return out
}
