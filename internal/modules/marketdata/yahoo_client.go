package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aristath/allocator/internal/domain"
	"github.com/rs/zerolog"
)

// DefaultYahooBaseURL is the public Yahoo Finance API host
const DefaultYahooBaseURL = "https://query1.finance.yahoo.com"

// MinCloses is the fewest daily closes accepted from a history download
const MinCloses = 30

// YahooClient downloads daily close history from the Yahoo chart API
type YahooClient struct {
	client  *http.Client
	baseURL string
	log     zerolog.Logger
}

// NewYahooClient creates a new Yahoo Finance chart client
func NewYahooClient(baseURL string, log zerolog.Logger) *YahooClient {
	if baseURL == "" {
		baseURL = DefaultYahooBaseURL
	}
	return &YahooClient{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log.With().Str("client", "yahoo").Logger(),
	}
}

// chartResponse is the subset of /v8/finance/chart we read
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// GetDailyCloses fetches daily closes for ticker over rangeParam (e.g. "1y"),
// oldest first. Null closes are dropped. Fewer than MinCloses is an error.
func (c *YahooClient) GetDailyCloses(ctx context.Context, ticker, rangeParam string) ([]DailyPrice, error) {
	reqURL := fmt.Sprintf("%s/v8/finance/chart/%s?range=%s&interval=1d",
		c.baseURL, url.PathEscape(ticker), url.QueryEscape(rangeParam))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request for %s failed: %v", domain.ErrData, ticker, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: Yahoo Finance returned status %d for %s: %s",
			domain.ErrData, resp.StatusCode, ticker, strings.TrimSpace(string(body)))
	}

	var chart chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		return nil, fmt.Errorf("%w: failed to decode chart for %s: %v", domain.ErrData, ticker, err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("%w: Yahoo Finance error for %s: %s", domain.ErrData, ticker, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%w: no chart data for %s", domain.ErrData, ticker)
	}

	result := chart.Chart.Result[0]
	closes := result.Indicators.Quote[0].Close
	prices := make([]DailyPrice, 0, len(closes))
	for i, v := range closes {
		if v == nil || i >= len(result.Timestamp) {
			continue
		}
		prices = append(prices, DailyPrice{
			Date:  time.Unix(result.Timestamp[i], 0).UTC(),
			Close: *v,
		})
	}

	if len(prices) < MinCloses {
		return nil, fmt.Errorf("%w: not enough close prices for %s (got %d, need %d)",
			domain.ErrData, ticker, len(prices), MinCloses)
	}

	c.log.Debug().Str("ticker", ticker).Int("closes", len(prices)).Msg("Fetched daily closes")
	return prices, nil
}
