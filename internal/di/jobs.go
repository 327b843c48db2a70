package di

import (
	"fmt"

	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/scheduler"
	"github.com/rs/zerolog"
)

// RegisterJobs creates the background jobs and registers the scheduled ones.
// A job whose schedule is empty is still returned for manual triggering.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil || container.Scheduler == nil {
		return nil, fmt.Errorf("container and scheduler cannot be nil")
	}

	instances := &JobInstances{
		PriceSync: scheduler.NewPriceSyncJob(scheduler.PriceSyncJobConfig{
			Log:     log,
			Tickers: container.AnalysisService,
			Syncer:  container.MarketData,
		}),
		HistoryMaintenance: scheduler.NewHistoryMaintenanceJob(container.HistoryDB, log),
	}

	if cfg.PriceSyncSchedule != "" {
		if err := container.Scheduler.AddJob(cfg.PriceSyncSchedule, instances.PriceSync); err != nil {
			return nil, err
		}
	} else {
		log.Info().Msg("Price sync schedule empty, job available for manual runs only")
	}

	if cfg.MaintenanceSchedule != "" {
		if err := container.Scheduler.AddJob(cfg.MaintenanceSchedule, instances.HistoryMaintenance); err != nil {
			return nil, err
		}
	}

	return instances, nil
}
