package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/portfolio"
	"github.com/aristath/allocator/internal/modules/risk"
	"github.com/aristath/allocator/pkg/formulas"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// MinReturns is the fewest daily returns accepted for parameter estimation
// and, after alignment, for a correlation matrix.
const MinReturns = 20

// maxConcurrentLoads bounds parallel history loads in FetchCorrelationMatrix
const maxConcurrentLoads = 4

// sharedLoadTimeout bounds a coalesced history load. The load outlives any
// single caller's cancellation.
const sharedLoadTimeout = 60 * time.Second

// PriceStore is the local close history
type PriceStore interface {
	GetDailyCloses(ticker string, limit int) ([]DailyPrice, error)
	UpsertDailyPrices(ticker string, prices []DailyPrice) error
}

// PriceSource downloads close history
type PriceSource interface {
	GetDailyCloses(ctx context.Context, ticker, rangeParam string) ([]DailyPrice, error)
}

// Provider builds assets and correlation matrices from daily closes. Stored
// history is used when available; otherwise it is downloaded and written
// through to the store.
type Provider struct {
	store      PriceStore
	source     PriceSource
	rangeParam string
	group      singleflight.Group
	log        zerolog.Logger
}

// NewProvider creates a market-data provider. rangeParam is the Yahoo history
// range, e.g. "1y".
func NewProvider(store PriceStore, source PriceSource, rangeParam string, log zerolog.Logger) *Provider {
	if rangeParam == "" {
		rangeParam = "1y"
	}
	return &Provider{
		store:      store,
		source:     source,
		rangeParam: rangeParam,
		log:        log.With().Str("component", "market_data").Logger(),
	}
}

// FetchAsset derives an asset from ticker's daily log returns: price is the
// last close, expected return and volatility are annualized over 252 days.
func (p *Provider) FetchAsset(ctx context.Context, ticker string) (portfolio.Asset, error) {
	returns, closes, err := p.loadReturns(ctx, ticker)
	if err != nil {
		return portfolio.Asset{}, err
	}

	mu, sigma := formulas.AnnualizedMeanAndVolatility(returns)
	asset, err := portfolio.NewAsset(ticker, closes[len(closes)-1], mu, sigma)
	if err != nil {
		return portfolio.Asset{}, fmt.Errorf("%w: %s: %v", domain.ErrData, ticker, err)
	}

	p.log.Info().
		Str("ticker", ticker).
		Float64("price", asset.Price()).
		Float64("expected_return", mu).
		Float64("volatility", sigma).
		Int("returns", len(returns)).
		Msg("Derived asset parameters")
	return asset, nil
}

// FetchCorrelationMatrix computes the Pearson correlation of daily log returns
// for tickers, in the given order. Series are aligned to the shortest one,
// keeping the most recent observations.
func (p *Provider) FetchCorrelationMatrix(ctx context.Context, tickers []string) (risk.CorrelationMatrix, error) {
	n := len(tickers)
	if n == 0 {
		return risk.CorrelationMatrix{}, nil
	}

	series := make([][]float64, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLoads)
	for i, ticker := range tickers {
		i, ticker := i, ticker
		g.Go(func() error {
			returns, _, err := p.loadReturns(gctx, ticker)
			if err != nil {
				return err
			}
			series[i] = returns
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	aligned := formulas.AlignTail(series)
	if len(aligned[0]) < MinReturns {
		return nil, fmt.Errorf("%w: not enough aligned returns for a correlation matrix (got %d, need %d)",
			domain.ErrData, len(aligned[0]), MinReturns)
	}

	m := risk.Identity(n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			c := formulas.Correlation(aligned[i], aligned[j])
			m[i][j] = c
			m[j][i] = c
		}
	}

	p.log.Info().Strs("tickers", tickers).Int("observations", len(aligned[0])).Msg("Computed correlation matrix")
	return m, nil
}

// SyncTicker downloads ticker's history and stores it.
func (p *Provider) SyncTicker(ctx context.Context, ticker string) error {
	_, err := p.download(ctx, ticker)
	return err
}

// loadReturns returns ticker's daily log returns and the closes they came from.
func (p *Provider) loadReturns(ctx context.Context, ticker string) ([]float64, []float64, error) {
	closes, err := p.loadCloses(ctx, ticker)
	if err != nil {
		return nil, nil, err
	}

	returns := formulas.LogReturns(closes)
	if len(returns) < MinReturns {
		return nil, nil, fmt.Errorf("%w: not enough valid returns for %s (got %d, need %d)",
			domain.ErrData, ticker, len(returns), MinReturns)
	}
	return returns, closes, nil
}

// loadCloses reads closes from the store, downloading when fewer than
// MinCloses are stored. Concurrent loads of one ticker share a single call.
// The shared call is detached from ctx, so a caller that gives up only stops
// waiting and does not fail the others.
func (p *Provider) loadCloses(ctx context.Context, ticker string) ([]float64, error) {
	ch := p.group.DoChan(ticker, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLoadTimeout)
		defer cancel()

		stored, err := p.store.GetDailyCloses(ticker, rangeLimit(p.rangeParam))
		if err != nil {
			return nil, err
		}
		if len(stored) >= MinCloses {
			return closeValues(stored), nil
		}

		prices, err := p.download(loadCtx, ticker)
		if err != nil {
			return nil, err
		}
		return closeValues(prices), nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]float64), nil
	}
}

func (p *Provider) download(ctx context.Context, ticker string) ([]DailyPrice, error) {
	start := time.Now()
	prices, err := p.source.GetDailyCloses(ctx, ticker, p.rangeParam)
	if err != nil {
		return nil, err
	}
	if err := p.store.UpsertDailyPrices(ticker, prices); err != nil {
		return nil, fmt.Errorf("failed to store history for %s: %w", ticker, err)
	}

	p.log.Debug().
		Str("ticker", ticker).
		Int("closes", len(prices)).
		Dur("duration", time.Since(start)).
		Msg("Downloaded price history")
	return prices, nil
}

func closeValues(prices []DailyPrice) []float64 {
	out := make([]float64, len(prices))
	for i, p := range prices {
		out[i] = p.Close
	}
	return out
}

// rangeLimit is the number of trading days a Yahoo range covers.
func rangeLimit(rangeParam string) int {
	switch rangeParam {
	case "3mo":
		return 63
	case "6mo":
		return 126
	case "2y":
		return 504
	case "5y":
		return 1260
	case "10y":
		return 2520
	default:
		return formulas.TradingDaysPerYear
	}
}
