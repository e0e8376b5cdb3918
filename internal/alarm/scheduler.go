package alarm

import (
	"context"
	"log/slog"
	"time"
)

// FireFunc handles one claimed alarm. The scheduler calls it from its own
// goroutine; implementations hand off to the conversation machine rather
// than blocking.
type FireFunc func(a Alarm)

// SchedulerConfig tunes the polling scheduler. Zero fields get defaults.
type SchedulerConfig struct {
	// TickInterval is the store polling period. Default: 1 s.
	TickInterval time.Duration

	// SnoozeDuration is the delay applied by Snooze. Default: 9 min.
	SnoozeDuration time.Duration
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.SnoozeDuration <= 0 {
		c.SnoozeDuration = 9 * time.Minute
	}
	return c
}

// Scheduler polls the store and fires due alarms. One alarm fires per tick;
// when several are overdue (for example after downtime) they drain one per
// second in fire-time order instead of stacking announcements.
type Scheduler struct {
	cfg    SchedulerConfig
	store  *Store
	fire   FireFunc
	logger *slog.Logger
	now    func() time.Time
}

// NewScheduler builds a scheduler over the store. fire must not be nil.
func NewScheduler(cfg SchedulerConfig, store *Store, fire FireFunc, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:    cfg.withDefaults(),
		store:  store,
		fire:   fire,
		logger: logger,
		now:    time.Now,
	}
}

// Run polls until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick claims and fires at most one due alarm.
func (s *Scheduler) tick(ctx context.Context) {
	a, err := s.store.ClaimDue(ctx, s.now())
	if err != nil {
		s.logger.Error("alarm claim failed", "error", err)
		return
	}
	if a == nil {
		return
	}
	s.logger.Info("alarm fired",
		"id", a.ID, "fire_time", a.FireTime, "late", s.now().Sub(a.FireTime))
	s.fire(*a)
}

// Snooze deactivates nothing (the fired alarm is already inactive) and
// creates a fresh alarm SnoozeDuration from now carrying the same message,
// theme, and cheerword.
func (s *Scheduler) Snooze(ctx context.Context, fired Alarm) (Alarm, error) {
	return s.store.Create(ctx, Alarm{
		FireTime:  s.now().Add(s.cfg.SnoozeDuration),
		Message:   fired.Message,
		Theme:     fired.Theme,
		Cheerword: fired.Cheerword,
	})
}
