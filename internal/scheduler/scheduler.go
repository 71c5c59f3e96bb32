// -----------------------------------------------------------------------
// Maintenance Scheduler - stale-job sweep and storage garbage collection
// -----------------------------------------------------------------------

package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/backlot/internal/common"
	"github.com/ternarybob/backlot/internal/interfaces"
	"github.com/ternarybob/backlot/internal/models"
)

// ValueLogGC is implemented by the storage backend to reclaim space.
type ValueLogGC interface {
	RunValueLogGC()
}

// Scheduler runs periodic maintenance: failing registry records whose
// pollers died without reporting, and compacting the value log.
type Scheduler struct {
	config   *common.Config
	logger   arbor.ILogger
	registry interfaces.TaskRegistry
	gc       ValueLogGC
	cron     *cron.Cron

	staleAfter time.Duration
}

// New creates a maintenance scheduler. gc may be nil when the storage
// backend does not need compaction.
func New(config *common.Config, logger arbor.ILogger, registry interfaces.TaskRegistry, gc ValueLogGC) *Scheduler {
	staleAfter, err := config.StaleAfter()
	if err != nil {
		staleAfter = 30 * time.Minute
	}
	return &Scheduler{
		config:     config,
		logger:     logger,
		registry:   registry,
		gc:         gc,
		cron:       cron.New(),
		staleAfter: staleAfter,
	}
}

// Start registers the maintenance jobs and begins the cron loop.
func (s *Scheduler) Start() error {
	if !s.config.Scheduler.Enabled {
		s.logger.Info().Msg("Maintenance scheduler disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.config.Scheduler.SweepSchedule, s.sweepStaleJobs); err != nil {
		return err
	}
	if s.gc != nil {
		if _, err := s.cron.AddFunc(s.config.Scheduler.GCSchedule, s.runGC); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.logger.Info().
		Str("sweep_schedule", s.config.Scheduler.SweepSchedule).
		Str("stale_after", s.staleAfter.String()).
		Msg("Maintenance scheduler started")
	return nil
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Maintenance scheduler stopped")
}

// sweepStaleJobs fails active records that have not been touched within
// the staleness horizon. Their pollers are gone, so without the sweep
// they would show as processing forever.
func (s *Scheduler) sweepStaleJobs() {
	cutoff := time.Now().Add(-s.staleAfter)
	swept := 0

	for _, record := range s.registry.All() {
		if !record.Status.IsActive() || record.LastUpdatedAt.After(cutoff) {
			continue
		}

		record.Status = models.StatusFailed
		record.Error = "job went stale without a status update"
		record.ErrorKind = models.ErrorKindTimeout
		record.Touch()
		if s.registry.Sync(record) {
			swept++
			s.logger.Warn().
				Str("job_id", record.ID).
				Str("key", record.Key().String()).
				Msg("Swept stale generation job")
		}
	}

	if swept > 0 {
		s.logger.Info().Int("swept", swept).Msg("Stale job sweep complete")
	}
}

func (s *Scheduler) runGC() {
	s.logger.Debug().Msg("Running value log GC")
	s.gc.RunValueLogGC()
}
