package store

import (
	"fmt"
	"time"

	robfigcron "github.com/robfig/cron/v3"

	"github.com/agentpipe/agentpipe/logger"
)

// Sweeper deletes chats that have been idle longer than the retention TTL.
// It runs on a cron schedule so long-lived deployments don't accumulate
// stale conversation files.
type Sweeper struct {
	store    *Store
	ttl      time.Duration
	schedule string
	cron     *robfigcron.Cron
}

// NewSweeper creates a retention sweeper. schedule is a cron expression
// (e.g. "@hourly"); ttl is how long an idle chat is kept.
func NewSweeper(s *Store, schedule string, ttl time.Duration) (*Sweeper, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("retention ttl must be positive")
	}
	sw := &Sweeper{
		store:    s,
		ttl:      ttl,
		schedule: schedule,
		cron:     robfigcron.New(),
	}
	if _, err := sw.cron.AddFunc(schedule, sw.Sweep); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return sw, nil
}

// Start begins the sweep schedule.
func (sw *Sweeper) Start() {
	sw.cron.Start()
	logger.Info("retention sweeper started", "schedule", sw.schedule, "ttl", sw.ttl)
}

// Stop halts the sweep schedule.
func (sw *Sweeper) Stop() {
	sw.cron.Stop()
}

// Sweep deletes every chat idle beyond the TTL. Exported so callers can run
// a pass on demand.
func (sw *Sweeper) Sweep() {
	cutoff := time.Now().Add(-sw.ttl)
	chats, err := sw.store.Chats()
	if err != nil {
		logger.Warn("retention sweep failed to list chats", "err", err)
		return
	}

	removed := 0
	for _, c := range chats {
		if c.UpdatedAt.After(cutoff) {
			continue
		}
		if err := sw.store.DeleteChat(c.ID); err != nil {
			logger.Warn("retention sweep failed to delete chat", "chat", c.ID, "err", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.Info("retention sweep removed idle chats", "removed", removed)
	}
}
