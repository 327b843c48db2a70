// Package formulas holds the return and correlation statistics used to turn
// daily price history into asset parameters.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear annualizes daily statistics.
const TradingDaysPerYear = 252

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation (n-1 denominator)
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// AnnualizedVolatility calculates annualized volatility from daily returns
// Formula: Std Dev of Daily Returns × sqrt(252 trading days)
func AnnualizedVolatility(dailyReturns []float64) float64 {
	return StdDev(dailyReturns) * math.Sqrt(TradingDaysPerYear)
}

// LogReturns converts closes to daily log returns ln(p[i]/p[i-1]).
// Pairs where either price is not positive are skipped.
func LogReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return []float64{}
	}

	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			continue
		}
		returns = append(returns, math.Log(closes[i]/closes[i-1]))
	}
	return returns
}

// AnnualizedMeanAndVolatility returns (mean × 252, sample stdev × sqrt(252))
// for a series of daily returns.
func AnnualizedMeanAndVolatility(dailyReturns []float64) (mu, sigma float64) {
	return Mean(dailyReturns) * TradingDaysPerYear, AnnualizedVolatility(dailyReturns)
}

// Correlation calculates the Pearson correlation coefficient between two
// equal-length series. A constant series has correlation 0 with anything,
// and the result is clamped to [-1, 1].
func Correlation(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	if stat.Variance(x, nil) <= 0 || stat.Variance(y, nil) <= 0 {
		return 0
	}

	c := stat.Correlation(x, y, nil)
	if math.IsNaN(c) {
		return 0
	}
	return math.Max(-1, math.Min(1, c))
}

// AlignTail truncates every series to the length of the shortest one, keeping
// the most recent observations. The inputs are not modified.
func AlignTail(series [][]float64) [][]float64 {
	if len(series) == 0 {
		return nil
	}

	minLen := len(series[0])
	for _, s := range series[1:] {
		minLen = min(minLen, len(s))
	}

	out := make([][]float64, len(series))
	for i, s := range series {
		out[i] = append([]float64(nil), s[len(s)-minLen:]...)
	}
	return out
}
