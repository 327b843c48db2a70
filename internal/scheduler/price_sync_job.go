package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// TickerLister returns the tickers currently held
type TickerLister interface {
	Tickers() []string
}

// TickerSyncer refreshes stored price history for one ticker
type TickerSyncer interface {
	SyncTicker(ctx context.Context, ticker string) error
}

// PriceSyncJob refreshes the price history of every held asset so that
// market-derived parameters and correlations use recent closes.
type PriceSyncJob struct {
	log     zerolog.Logger
	tickers TickerLister
	syncer  TickerSyncer
	timeout time.Duration
}

// PriceSyncJobConfig holds configuration for the price sync job
type PriceSyncJobConfig struct {
	Log     zerolog.Logger
	Tickers TickerLister
	Syncer  TickerSyncer
	Timeout time.Duration // per run; defaults to 5 minutes
}

// NewPriceSyncJob creates a new price sync job
func NewPriceSyncJob(cfg PriceSyncJobConfig) *PriceSyncJob {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &PriceSyncJob{
		log:     cfg.Log.With().Str("job", "price_sync").Logger(),
		tickers: cfg.Tickers,
		syncer:  cfg.Syncer,
		timeout: timeout,
	}
}

// Name returns the job name
func (j *PriceSyncJob) Name() string {
	return "price_sync"
}

// Run syncs every held ticker. A failing ticker does not stop the others;
// the run fails only if every ticker failed.
func (j *PriceSyncJob) Run() error {
	if j.tickers == nil || j.syncer == nil {
		return fmt.Errorf("price sync job is not configured")
	}

	tickers := j.tickers.Tickers()
	if len(tickers) == 0 {
		j.log.Debug().Msg("No holdings, skipping price sync")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	startTime := time.Now()
	synced, failed := 0, 0
	var lastErr error
	for _, ticker := range tickers {
		if err := j.syncer.SyncTicker(ctx, ticker); err != nil {
			j.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to sync price history")
			failed++
			lastErr = err
			continue
		}
		synced++
	}

	j.log.Info().
		Int("synced", synced).
		Int("failed", failed).
		Dur("duration", time.Since(startTime)).
		Msg("Price sync completed")

	if synced == 0 {
		return fmt.Errorf("price sync failed for all %d tickers: %w", failed, lastErr)
	}
	return nil
}
