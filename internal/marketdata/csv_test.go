package marketdata

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/volarb/internal/types"
)

const barCSV = `symbol,timestamp,open,high,low,close,volume,implied_volatility
SPY,2026-01-05 00:00:00,100.0,101.5,99.5,101.0,1000000,0.22
SPY,2026-01-06 00:00:00,101.0,102.0,100.5,101.5,1100000,0.24
SPY,not-a-date,101.5,102.5,101.0,102.0,1200000,0.25
SPY,2026-01-07 00:00:00,101.5,103.0,101.0,102.5,900000,0.21
`

// TestParseBars tests header handling, aux columns and row skipping.
func TestParseBars(t *testing.T) {
	bars, err := ParseBars(strings.NewReader(barCSV))
	if err != nil {
		t.Fatalf("ParseBars error: %v", err)
	}
	// The malformed timestamp row is dropped.
	if len(bars) != 3 {
		t.Fatalf("ParseBars returned %d bars, want 3", len(bars))
	}

	first := bars[0]
	if first.Symbol != "SPY" {
		t.Errorf("Symbol = %s, want SPY", first.Symbol)
	}
	if !first.Close.Equal(decimal.NewFromFloat(101.0)) {
		t.Errorf("Close = %s, want 101", first.Close)
	}
	if first.Volume != 1000000 {
		t.Errorf("Volume = %d, want 1000000", first.Volume)
	}

	iv, err := first.AuxValue(types.AuxImpliedVol)
	if err != nil {
		t.Fatalf("AuxValue error: %v", err)
	}
	if math.Abs(iv-0.22) > 1e-12 {
		t.Errorf("implied vol = %v, want 0.22", iv)
	}
}

// TestParseBars_NoHeader tests headerless input.
func TestParseBars_NoHeader(t *testing.T) {
	raw := "SPY,2026-01-05,100,101,99,100.5,500000\n"
	bars, err := ParseBars(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("ParseBars error: %v", err)
	}
	if len(bars) != 1 {
		t.Fatalf("ParseBars returned %d bars, want 1", len(bars))
	}
	if bars[0].HasAux(types.AuxImpliedVol) {
		t.Error("headerless bar should have no aux fields")
	}
}

// TestWriteBars tests the output layout.
func TestWriteBars(t *testing.T) {
	bars, err := ParseBars(strings.NewReader(barCSV))
	if err != nil {
		t.Fatalf("ParseBars error: %v", err)
	}

	var buf strings.Builder
	if err := WriteBars(&buf, bars); err != nil {
		t.Fatalf("WriteBars error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("WriteBars wrote %d lines, want 4", len(lines))
	}
	if lines[0] != "symbol,timestamp,open,high,low,close,volume,implied_volatility" {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "SPY,2026-01-05 00:00:00,") {
		t.Errorf("first row = %q", lines[1])
	}
}

// TestParseSeries tests named column selection.
func TestParseSeries(t *testing.T) {
	raw := `date,price,noise
2026-01-05,100.5,x
2026-01-06,101.25,y
bad-date,102.0,z
2026-01-07,103.0,w
`
	s, err := ParseSeries(strings.NewReader(raw), "prices", "price", "date")
	if err != nil {
		t.Fatalf("ParseSeries error: %v", err)
	}
	if s.Len() != 3 {
		t.Fatalf("ParseSeries len = %d, want 3", s.Len())
	}
	if s.Name() != "prices" {
		t.Errorf("Name = %s, want prices", s.Name())
	}
	v, _ := s.At(1)
	if v != 101.25 {
		t.Errorf("At(1) = %v, want 101.25", v)
	}

	_, err = ParseSeries(strings.NewReader(raw), "prices", "missing", "date")
	if !errors.Is(err, types.ErrValidation) {
		t.Errorf("missing column error = %v, want ErrValidation", err)
	}
}

// TestWriteSeries tests the two-column output.
func TestWriteSeries(t *testing.T) {
	s := NewSeries("prices")
	s.Add(day(5), 100.5)
	s.Add(day(6), 101)

	var buf strings.Builder
	if err := WriteSeries(&buf, s); err != nil {
		t.Fatalf("WriteSeries error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("WriteSeries wrote %d lines, want 3", len(lines))
	}
	if lines[0] != "timestamp,value" {
		t.Errorf("header = %q, want timestamp,value", lines[0])
	}
	if lines[1] != "2026-01-05 00:00:00,100.5" {
		t.Errorf("first row = %q", lines[1])
	}
}

// TestExtractSeries tests pulling bar fields into a series.
func TestExtractSeries(t *testing.T) {
	bars, err := ParseBars(strings.NewReader(barCSV))
	if err != nil {
		t.Fatalf("ParseBars error: %v", err)
	}

	closes, err := ExtractSeries(bars, "close")
	if err != nil {
		t.Fatalf("ExtractSeries error: %v", err)
	}
	if closes.Len() != len(bars) {
		t.Errorf("close series len = %d, want %d", closes.Len(), len(bars))
	}
	v, _ := closes.At(0)
	if v != 101.0 {
		t.Errorf("close[0] = %v, want 101", v)
	}

	vols, err := ExtractSeries(bars, "volume")
	if err != nil {
		t.Fatalf("ExtractSeries volume error: %v", err)
	}
	v, _ = vols.At(0)
	if v != 1000000 {
		t.Errorf("volume[0] = %v, want 1000000", v)
	}

	if _, err := ExtractSeries(bars, "vwap"); !errors.Is(err, types.ErrValidation) {
		t.Errorf("unknown field error = %v, want ErrValidation", err)
	}
}
