// Package di provides dependency injection type definitions.
//
// The Container holds every application dependency and is passed to the
// server so handlers share one instance of each service.
package di

import (
	"github.com/aristath/allocator/internal/database"
	"github.com/aristath/allocator/internal/modules/analysis"
	"github.com/aristath/allocator/internal/modules/marketdata"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/scheduler"
)

// Container holds all application dependencies
type Container struct {
	// Databases
	HistoryDB *database.DB // history.db - daily closes and sync bookkeeping

	// Market data
	HistoryStore *marketdata.HistoryDB
	YahooClient  *marketdata.YahooClient
	MarketData   *marketdata.Provider

	// Services
	Optimizer       *optimization.Optimizer
	AnalysisService *analysis.Service

	// Background jobs
	Scheduler *scheduler.Scheduler
}

// JobInstances holds job references for manual triggering via API
type JobInstances struct {
	PriceSync          *scheduler.PriceSyncJob
	HistoryMaintenance *scheduler.HistoryMaintenanceJob
}

// Close releases the container's databases
func (c *Container) Close() error {
	if c == nil || c.HistoryDB == nil {
		return nil
	}
	return c.HistoryDB.Close()
}
