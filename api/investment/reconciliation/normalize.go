package reconciliation

import (
	"strconv"
	"strings"

	"FundFolioSaas/internal/config"
)

// parsePercentLiteral extracts a float from a raw percentage cell. Commas,
// currency junk and the '%' marker itself are stripped; the marker presence
// is tracked separately on the RawHolding.
func parsePercentLiteral(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || s == "-" || strings.EqualFold(s, "nil") || strings.EqualFold(s, "nan") {
		return 0, false
	}
	s = strings.ReplaceAll(s, "%", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// normalizeRow turns one raw literal into a percentage candidate.
//
// Marker present: a 0<v<1 value is a decimal that kept its marker (0.0856%
// meaning 8.56%); anything else is already a percentage.
// Marker absent: 0<v<1 is a plain decimal fraction; 1..100 is a percentage;
// v>100 is read as basis points and divided by 100, rejected when even that
// leaves an implausible value.
func normalizeRow(v float64, hadMarker bool) (float64, bool) {
	if v <= 0 {
		return 0, false
	}
	if hadMarker {
		if v < 1 {
			return v * 100, true
		}
		return v, true
	}
	if v < 1 {
		return v * 100, true
	}
	if v <= 100 {
		return v, true
	}
	bp := v / 100
	if bp <= 10000 {
		return bp, true
	}
	return 0, false
}

// NormalizeSheet converts a sheet's raw holdings into ParsedHoldings with
// valid percentages. Rows that fail to parse or normalize are dropped
// silently; they never fail the sheet.
//
// After per-row normalization a sheet-wide correction runs: when the sum
// exceeds the correction floor AND more than half of the retained rows had
// no '%' marker, every retained percentage is divided by 100. Whole sheets
// recorded at x100 scale (an intended 18.06 stored as 1806) are common in
// AMC files, and marker presence is only a reliable signal in aggregate, so
// the correction is never applied per row.
func NormalizeSheet(raw []RawHolding) ([]ParsedHolding, bool) {
	var holdings []ParsedHolding
	sum := 0.0
	markerless := 0

	for _, r := range raw {
		v, ok := parsePercentLiteral(r.RawPercent)
		if !ok {
			continue
		}
		pct, ok := normalizeRow(v, r.HadPercentMark)
		if !ok {
			continue
		}
		if !r.HadPercentMark {
			markerless++
		}
		sum += pct
		holdings = append(holdings, ParsedHolding{
			InstrumentName: r.InstrumentName,
			ISIN:           r.ISIN,
			Percent:        pct,
			Industry:       r.Industry,
			MarketCap:      r.MarketCap,
			Foreign:        r.Foreign,
		})
	}

	corrected := false
	if sum > config.BatchCorrectionFloor && markerless*2 > len(holdings) {
		for i := range holdings {
			holdings[i].Percent /= 100
		}
		corrected = true
	}

	return holdings, corrected
}

// SheetPercentSum is the post-correction percentage total of a sheet.
func SheetPercentSum(holdings []ParsedHolding) float64 {
	sum := 0.0
	for _, h := range holdings {
		sum += h.Percent
	}
	return sum
}
