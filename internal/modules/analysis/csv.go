package analysis

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/portfolio"
	"github.com/aristath/allocator/internal/modules/risk"
)

// ParseCSV reads positions as rows of name,price,mu,sigma,qty. The delimiter
// is ';' when the first line has more semicolons than commas, else ','.
// A first row starting with "name" or "asset" is treated as a header.
func ParseCSV(r io.Reader) (*portfolio.Portfolio, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}

	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: csv is empty", domain.ErrInvalidInput)
	}

	reader := csv.NewReader(strings.NewReader(strings.Join(lines, "\n")))
	reader.Comma = ','
	if strings.Count(lines[0], ";") > strings.Count(lines[0], ",") {
		reader.Comma = ';'
	}
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse csv: %v", domain.ErrInvalidInput, err)
	}

	start := 0
	if len(records[0]) >= 5 {
		h := strings.ToLower(strings.TrimSpace(records[0][0]))
		if h == "name" || h == "asset" {
			start = 1
		}
	}

	imported := portfolio.New()
	for i := start; i < len(records); i++ {
		line := i + 1
		cols := records[i]
		if len(cols) < 5 {
			return nil, fmt.Errorf("%w: csv line %d: expected 5 columns (name,price,mu,sigma,qty)", domain.ErrInvalidInput, line)
		}

		var values [4]float64
		for k := range values {
			v, err := strconv.ParseFloat(strings.TrimSpace(cols[k+1]), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: csv line %d: invalid numeric value %q", domain.ErrInvalidInput, line, cols[k+1])
			}
			values[k] = v
		}

		asset, err := portfolio.NewAsset(strings.TrimSpace(cols[0]), values[0], values[1], values[2])
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		if err := imported.AddPosition(asset, values[3]); err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
	}

	if imported.IsEmpty() {
		return nil, fmt.Errorf("%w: csv contains no data row", domain.ErrInvalidInput)
	}
	return imported, nil
}

// ImportCSV parses r and replaces the live portfolio with the result. It
// returns the number of imported assets.
func (s *Service) ImportCSV(r io.Reader) (int, error) {
	p, err := ParseCSV(r)
	if err != nil {
		return 0, err
	}
	s.Replace(p)
	return p.Size(), nil
}

// ExportCSV writes the positions table (name,qty,price,mu,sigma,value)
// followed by a metric,value table. Volatility and per-asset risk shares are
// included when a compatible matrix is cached.
func (s *Service) ExportCSV(w io.Writer) error {
	s.mu.Lock()
	p := s.portfolio.Clone()
	var m risk.CorrelationMatrix
	if s.corr.compatible(p.AssetOrder()) {
		m = s.corr.Matrix.Clone()
	}
	s.mu.Unlock()

	return writeCSV(w, p, m)
}

func writeCSV(w io.Writer, p *portfolio.Portfolio, m risk.CorrelationMatrix) error {
	cw := csv.NewWriter(w)
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

	rows := [][]string{{"name", "qty", "price", "mu", "sigma", "value"}}
	for _, pos := range p.Positions() {
		rows = append(rows, []string{
			pos.Asset.Name(),
			f(pos.Quantity),
			f(pos.Asset.Price()),
			f(pos.Asset.ExpectedReturn()),
			f(pos.Asset.Volatility()),
			f(pos.Value()),
		})
	}

	rows = append(rows,
		[]string{},
		[]string{"metric", "value"},
		[]string{"total_value", f(p.TotalValue())},
		[]string{"expected_return", f(p.ExpectedReturn())},
	)

	if m != nil {
		breakdown, err := risk.Breakdown(p, m)
		if err != nil {
			return err
		}
		rows = append(rows, []string{"volatility", f(breakdown.Volatility)})
		if breakdown.Variance > 0 {
			for _, a := range breakdown.Assets {
				rows = append(rows, []string{"risk_share_" + a.Name, f(a.Share)})
			}
		}
	}

	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}
