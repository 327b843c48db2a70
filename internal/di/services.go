package di

import (
	"fmt"

	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/modules/analysis"
	"github.com/aristath/allocator/internal/modules/marketdata"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/scheduler"
	"github.com/rs/zerolog"
)

// InitializeServices creates the market-data stack, the optimizer and the
// analysis service. Databases must already be initialized.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.HistoryDB == nil {
		return fmt.Errorf("history database must be initialized before services")
	}

	container.HistoryStore = marketdata.NewHistoryDB(container.HistoryDB.Conn(), log)
	container.YahooClient = marketdata.NewYahooClient(cfg.YahooBaseURL, log)
	container.MarketData = marketdata.NewProvider(container.HistoryStore, container.YahooClient, cfg.HistoryRange, log)

	container.Optimizer = optimization.NewOptimizer(log)
	container.AnalysisService = analysis.NewService(
		container.MarketData,
		container.MarketData,
		container.Optimizer,
		log,
	)

	container.Scheduler = scheduler.New(log)

	log.Info().Msg("Services initialized")
	return nil
}
