package marketdata

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/volarb/internal/types"
)

// barColumns is the fixed leading column layout for bar files.
// Columns beyond these parse into Bar.Aux keyed by header name.
const barColumns = 7

// LoadBars reads bars from a CSV file.
// Format: symbol,timestamp,open,high,low,close,volume[,aux...]
func LoadBars(path string) ([]types.Bar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	bars, err := ParseBars(file)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return bars, nil
}

// ParseBars parses bars from a CSV reader. A first row naming a "symbol"
// column is treated as a header; extra header columns beyond the fixed
// layout become auxiliary fields. Malformed rows are skipped.
func ParseBars(r io.Reader) ([]types.Bar, error) {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	var (
		bars    []types.Bar
		auxCols map[int]string
		lineNum int
	)

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		lineNum++

		if lineNum == 1 && isBarHeader(record) {
			auxCols = auxColumns(record)
			continue
		}

		bar, err := parseBarRecord(record, auxCols)
		if err != nil {
			// Skip invalid rows instead of failing
			continue
		}
		bars = append(bars, bar)
	}

	return bars, nil
}

// parseBarRecord parses a single CSV record into a Bar.
func parseBarRecord(record []string, auxCols map[int]string) (types.Bar, error) {
	var bar types.Bar
	if len(record) < barColumns {
		return bar, fmt.Errorf("%w: %d columns, need %d", types.ErrValidation, len(record), barColumns)
	}

	bar.Symbol = record[0]
	if bar.Symbol == "" {
		return bar, fmt.Errorf("%w: empty symbol", types.ErrValidation)
	}

	ts, err := parseTimestamp(record[1])
	if err != nil {
		return bar, fmt.Errorf("parse timestamp: %w", err)
	}
	bar.Timestamp = ts

	bar.Open, err = decimal.NewFromString(record[2])
	if err != nil {
		return bar, fmt.Errorf("parse open: %w", err)
	}
	bar.High, err = decimal.NewFromString(record[3])
	if err != nil {
		return bar, fmt.Errorf("parse high: %w", err)
	}
	bar.Low, err = decimal.NewFromString(record[4])
	if err != nil {
		return bar, fmt.Errorf("parse low: %w", err)
	}
	bar.Close, err = decimal.NewFromString(record[5])
	if err != nil {
		return bar, fmt.Errorf("parse close: %w", err)
	}

	vol, err := strconv.ParseFloat(record[6], 64)
	if err != nil {
		return bar, fmt.Errorf("parse volume: %w", err)
	}
	bar.Volume = int64(vol)

	for i, key := range auxCols {
		if i >= len(record) {
			continue
		}
		if v, err := strconv.ParseFloat(record[i], 64); err == nil {
			if bar.Aux == nil {
				bar.Aux = make(map[string]float64)
			}
			bar.Aux[key] = v
		}
	}

	return bar, nil
}

// parseTimestamp tries multiple timestamp formats.
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02T15:04:05Z",
		"2006-01-02",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unknown timestamp format: %s", s)
}

// isBarHeader checks if a record looks like a bar header row.
func isBarHeader(record []string) bool {
	for _, field := range record {
		if strings.EqualFold(strings.TrimSpace(field), "symbol") {
			return true
		}
	}
	return false
}

// auxColumns maps header columns beyond the fixed layout to aux keys.
func auxColumns(header []string) map[int]string {
	if len(header) <= barColumns {
		return nil
	}
	cols := make(map[int]string, len(header)-barColumns)
	for i := barColumns; i < len(header); i++ {
		name := strings.TrimSpace(header[i])
		if name != "" {
			cols[i] = name
		}
	}
	return cols
}

// WriteBars writes bars to a CSV writer with a header row. Auxiliary keys
// present on any bar become trailing columns.
func WriteBars(w io.Writer, bars []types.Bar) error {
	auxKeys := collectAuxKeys(bars)

	cw := csv.NewWriter(w)
	header := []string{"symbol", "timestamp", "open", "high", "low", "close", "volume"}
	header = append(header, auxKeys...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, bar := range bars {
		record := []string{
			bar.Symbol,
			bar.Timestamp.Format("2006-01-02 15:04:05"),
			bar.Open.String(),
			bar.High.String(),
			bar.Low.String(),
			bar.Close.String(),
			strconv.FormatInt(bar.Volume, 10),
		}
		for _, key := range auxKeys {
			if v, ok := bar.Aux[key]; ok {
				record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
			} else {
				record = append(record, "")
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write bar: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func collectAuxKeys(bars []types.Bar) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, bar := range bars {
		for key := range bar.Aux {
			if !seen[key] {
				seen[key] = true
				keys = append(keys, key)
			}
		}
	}
	// Deterministic column order
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}

// WriteSeries writes a series to a CSV writer as timestamp,value rows.
func WriteSeries(w io.Writer, s *Series) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "value"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := 0; i < s.Len(); i++ {
		p, err := s.PointAt(i)
		if err != nil {
			return err
		}
		record := []string{
			p.Timestamp.Format("2006-01-02 15:04:05"),
			strconv.FormatFloat(p.Value, 'g', -1, 64),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write point: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// LoadSeries reads a series from a CSV file using named columns.
func LoadSeries(path, valueColumn, timestampColumn string) (*Series, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	s, err := ParseSeries(file, path, valueColumn, timestampColumn)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return s, nil
}

// ParseSeries reads a series from a CSV reader. The first row must be a
// header naming both columns. Malformed rows are skipped.
func ParseSeries(r io.Reader, name, valueColumn, timestampColumn string) (*Series, error) {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	tsIdx, valIdx := -1, -1
	for i, field := range header {
		switch strings.TrimSpace(field) {
		case timestampColumn:
			tsIdx = i
		case valueColumn:
			valIdx = i
		}
	}
	if tsIdx == -1 || valIdx == -1 {
		return nil, fmt.Errorf("%w: columns %q and %q not both present",
			types.ErrValidation, timestampColumn, valueColumn)
	}

	s := NewSeries(name)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if tsIdx >= len(record) || valIdx >= len(record) {
			continue
		}
		ts, err := parseTimestamp(record[tsIdx])
		if err != nil {
			continue
		}
		v, err := strconv.ParseFloat(record[valIdx], 64)
		if err != nil {
			continue
		}
		s.Add(ts, v)
	}

	return s, nil
}

// ExtractSeries pulls one bar field across bars into a series.
// Field is one of open, high, low, close, volume.
func ExtractSeries(bars []types.Bar, field string) (*Series, error) {
	s := NewSeries(field)
	for _, bar := range bars {
		var v float64
		switch field {
		case "open":
			v = bar.Open.InexactFloat64()
		case "high":
			v = bar.High.InexactFloat64()
		case "low":
			v = bar.Low.InexactFloat64()
		case "close":
			v = bar.Close.InexactFloat64()
		case "volume":
			v = float64(bar.Volume)
		default:
			return nil, fmt.Errorf("%w: unknown field %q", types.ErrValidation, field)
		}
		s.Add(bar.Timestamp, v)
	}
	return s, nil
}
