package cache

import (
	"context"
	"log/slog"
)

// SweepJob implements cron.Job, periodically evicting expired entries from
// the local tier. The LRU package itself has no TTL sweep, so without this
// job expired entries would only clear out on the next Lookup for that key.
type SweepJob struct {
	cache  *Cache
	logger *slog.Logger
}

// NewSweepJob builds a SweepJob against cache, logging at debug level via
// logger (slog.Default() if nil).
func NewSweepJob(cache *Cache, logger *slog.Logger) *SweepJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SweepJob{cache: cache, logger: logger}
}

// Name implements cron.Job.
func (j *SweepJob) Name() string { return "cache.sweep" }

// Schedule implements cron.Job: every five minutes.
func (j *SweepJob) Schedule() string { return "*/5 * * * *" }

// Run implements cron.Job.
func (j *SweepJob) Run(_ context.Context) error {
	removed := j.cache.Sweep()
	if removed > 0 {
		j.logger.Debug("cache: swept expired entries", "removed", removed)
	}
	return nil
}

// HealthRecheckJob implements cron.Job, periodically pinging a degraded
// remote tier so the cache can silently promote back to using it.
type HealthRecheckJob struct {
	cache *Cache
}

// NewHealthRecheckJob builds a HealthRecheckJob against cache.
func NewHealthRecheckJob(cache *Cache) *HealthRecheckJob {
	return &HealthRecheckJob{cache: cache}
}

// Name implements cron.Job.
func (j *HealthRecheckJob) Name() string { return "cache.remote_health_recheck" }

// Schedule implements cron.Job: every minute (the scheduler's parser is
// 5-field, minute resolution — there is no finer-grained recheck cadence).
func (j *HealthRecheckJob) Schedule() string { return "* * * * *" }

// Run implements cron.Job.
func (j *HealthRecheckJob) Run(ctx context.Context) error {
	j.cache.RecheckRemoteHealth(ctx)
	return nil
}
