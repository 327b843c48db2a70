package analysis

import (
	"context"

	"github.com/aristath/allocator/internal/modules/portfolio"
	"github.com/aristath/allocator/internal/modules/risk"
)

// AssetFetcher builds an Asset (last price, annualized expected return and
// volatility) for a ticker from market data.
type AssetFetcher interface {
	FetchAsset(ctx context.Context, ticker string) (portfolio.Asset, error)
}

// CorrelationFetcher builds a correlation matrix whose axes follow tickers.
type CorrelationFetcher interface {
	FetchCorrelationMatrix(ctx context.Context, tickers []string) (risk.CorrelationMatrix, error)
}
