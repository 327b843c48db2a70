package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/allocator/internal/database"
	"github.com/rs/zerolog"
)

// walWarnFrames is the WAL size above which a checkpoint is logged as overdue
const walWarnFrames = 1000

// HistoryMaintenanceJob checks integrity of the price history database and
// checkpoints its WAL file.
type HistoryMaintenanceJob struct {
	log zerolog.Logger
	db  *database.DB
}

// NewHistoryMaintenanceJob creates a new maintenance job for db
func NewHistoryMaintenanceJob(db *database.DB, log zerolog.Logger) *HistoryMaintenanceJob {
	return &HistoryMaintenanceJob{
		log: log.With().Str("job", "history_maintenance").Logger(),
		db:  db,
	}
}

// Name returns the job name
func (j *HistoryMaintenanceJob) Name() string {
	return "history_maintenance"
}

// Run executes the integrity check followed by a TRUNCATE checkpoint
func (j *HistoryMaintenanceJob) Run() error {
	if j.db == nil {
		j.log.Debug().Msg("No database configured, skipping")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := j.db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("history database integrity check failed: %w", err)
	}

	// PRAGMA wal_checkpoint returns: busy, log, checkpointed
	var busy, frames, checkpointed int
	err := j.db.Conn().QueryRowContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)").Scan(&busy, &frames, &checkpointed)
	if err != nil {
		return fmt.Errorf("failed to checkpoint history database: %w", err)
	}

	event := j.log.Debug()
	if frames > walWarnFrames || busy != 0 {
		event = j.log.Warn()
	}
	event.
		Str("database", j.db.Name()).
		Int("busy", busy).
		Int("wal_frames", frames).
		Int("checkpointed", checkpointed).
		Msg("WAL checkpoint completed")

	return nil
}
