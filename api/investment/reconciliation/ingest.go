package reconciliation

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"

	"FundFolioSaas/api/constants"
	"FundFolioSaas/internal/config"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// SheetGrid is the raw rectangular cell grid of one worksheet tab or CSV
// file. No header row is assumed; locating it is the ingestor's job.
type SheetGrid struct {
	Name string
	Rows [][]string
}

// ParseWorkbook turns an uploaded file into one grid per sheet. XLSX and XLS
// workbooks yield one grid per tab; a CSV yields a single grid named after
// the file.
func ParseWorkbook(data []byte, filename string) ([]SheetGrid, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf(constants.ErrEmptyFile)
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return parseXLSXGrids(data)
	case ".xls":
		return parseXLSGrids(data)
	case ".csv":
		rows, err := parseCSVRows(data)
		if err != nil {
			return nil, err
		}
		name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
		return []SheetGrid{{Name: name, Rows: rows}}, nil
	default:
		return nil, fmt.Errorf("%s: %s", constants.ErrInvalidFileFormat, filename)
	}
}

func parseXLSXGrids(data []byte) ([]SheetGrid, error) {
	xl, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %v", constants.ErrFileParsingFailed, err)
	}
	defer xl.Close()

	var grids []SheetGrid
	for _, sheetName := range xl.GetSheetList() {
		rows, err := xl.GetRows(sheetName)
		if err != nil {
			continue
		}
		grids = append(grids, SheetGrid{Name: sheetName, Rows: rows})
	}
	if len(grids) == 0 {
		return nil, fmt.Errorf("%s: workbook has no readable sheets", constants.ErrFileParsingFailed)
	}
	return grids, nil
}

func parseXLSGrids(data []byte) ([]SheetGrid, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("%s: %v", constants.ErrFileParsingFailed, err)
	}

	var grids []SheetGrid
	for i := 0; i < wb.NumSheets(); i++ {
		sheet := wb.GetSheet(i)
		if sheet == nil {
			continue
		}
		rows := [][]string{}
		for r := 0; r <= int(sheet.MaxRow); r++ {
			row := sheet.Row(r)
			if row == nil {
				rows = append(rows, []string{})
				continue
			}
			cells := []string{}
			for c := 0; c <= row.LastCol(); c++ {
				cells = append(cells, row.Col(c))
			}
			rows = append(rows, cells)
		}
		grids = append(grids, SheetGrid{Name: sheet.Name, Rows: rows})
	}
	if len(grids) == 0 {
		return nil, fmt.Errorf("%s: workbook has no readable sheets", constants.ErrFileParsingFailed)
	}
	return grids, nil
}

func parseCSVRows(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %v", constants.ErrFileParsingFailed, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%s", constants.ErrEmptyFile)
	}
	return rows, nil
}

// normalizeCell trims, removes non-breaking spaces and collapses whitespace
func normalizeCell(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, constants.NBSP, " ")
	return strings.Join(strings.Fields(s), " ")
}

// allEmptyRow returns true when every cell in the row is empty or whitespace
func allEmptyRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// headerKeywords identify a holdings header row. A row counts as the header
// when at least two cells contain distinct keywords from this set.
var headerKeywords = []string{"name", "isin", "instrument", "percentage", "security", "company"}

func locateHeaderRow(rows [][]string) (int, bool) {
	limit := config.HeaderScanRows
	if limit > len(rows) {
		limit = len(rows)
	}
	for i := 0; i < limit; i++ {
		hits := map[string]bool{}
		for _, cell := range rows[i] {
			lower := strings.ToLower(normalizeCell(cell))
			if lower == "" {
				continue
			}
			for _, kw := range headerKeywords {
				if strings.Contains(lower, kw) {
					hits[kw] = true
				}
			}
		}
		if len(hits) >= 2 {
			return i, true
		}
	}
	return 0, false
}

// columnIndexes holds the resolved column positions for one sheet. Resolved
// once from the header row; rows are never re-probed.
type columnIndexes struct {
	name      int
	isin      int
	percent   int
	industry  int
	marketCap int
}

// Ordered synonym lists per column. First header cell containing a synonym
// wins; longer, more specific synonyms come first.
var (
	nameSynonyms = []string{
		"name of the instrument", "name of instrument", "instrument name",
		"security name", "company name", "stock name",
		"instrument", "security", "company", "name",
	}
	isinSynonyms    = []string{"isin"}
	percentSynonyms = []string{
		"% to net assets", "% of net assets", "% to nav", "% of nav",
		"percentage to net assets", "percentage of net assets",
		"% to net", "percentage", "weightage", "weight", "% age", "%",
	}
	industrySynonyms  = []string{"industry", "sector"}
	marketCapSynonyms = []string{"market cap", "market-cap", "m-cap", "mcap"}
)

func findColumn(header []string, synonyms []string) int {
	for _, syn := range synonyms {
		for idx, cell := range header {
			lower := strings.ToLower(normalizeCell(cell))
			if lower == "" {
				continue
			}
			if strings.Contains(lower, syn) {
				return idx
			}
		}
	}
	return -1
}

func resolveColumns(header []string) columnIndexes {
	return columnIndexes{
		name:      findColumn(header, nameSynonyms),
		isin:      findColumn(header, isinSynonyms),
		percent:   findColumn(header, percentSynonyms),
		industry:  findColumn(header, industrySynonyms),
		marketCap: findColumn(header, marketCapSynonyms),
	}
}

// Fund-name extraction. Tried in order until one succeeds; each strategy is
// a pure function over the grid.
var fundKeywords = []string{"fund", "scheme", "plan"}

func containsFundKeyword(s string) bool {
	lower := strings.ToLower(s)
	for _, kw := range fundKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// looksLikeLabel rejects cells that are report labels rather than names,
// e.g. "Scheme Name:" or "Monthly Portfolio Statement".
func looksLikeLabel(s string) bool {
	lower := strings.ToLower(strings.TrimSpace(s))
	if strings.HasSuffix(lower, ":") {
		return true
	}
	for _, label := range []string{"statement", "scheme name", "fund name", "portfolio as on", "as on"} {
		if strings.Contains(lower, label) {
			return true
		}
	}
	return false
}

type fundNameStrategy func(rows [][]string, sheetName string) (string, bool)

var fundNameStrategies = []fundNameStrategy{
	fundNameFromFirstRow,
	fundNameNearStatementMarker,
	fundNameFromEarlyRows,
	fundNameFromSheetName,
	fundNameFallbackSheetName,
}

// Strategy (a): the very first row, a long cell mentioning fund/scheme.
func fundNameFromFirstRow(rows [][]string, _ string) (string, bool) {
	if len(rows) == 0 {
		return "", false
	}
	for _, cell := range rows[0] {
		v := normalizeCell(cell)
		if len(v) > 15 && containsFundKeyword(v) && !looksLikeLabel(v) {
			return v, true
		}
	}
	return "", false
}

// Strategy (b): a window around "portfolio statement" / "scheme name" style
// marker rows. The fund name usually sits beside or directly below them.
func fundNameNearStatementMarker(rows [][]string, _ string) (string, bool) {
	limit := config.FundNameScanRows
	if limit > len(rows) {
		limit = len(rows)
	}
	for i := 0; i < limit; i++ {
		markerCol := -1
		for c, cell := range rows[i] {
			lower := strings.ToLower(normalizeCell(cell))
			if strings.Contains(lower, "portfolio statement") || strings.Contains(lower, "scheme name") {
				markerCol = c
				break
			}
		}
		if markerCol < 0 {
			continue
		}
		// same row, cells after the marker
		for c := markerCol + 1; c < len(rows[i]); c++ {
			v := normalizeCell(rows[i][c])
			if len(v) > 5 && !looksLikeLabel(v) {
				return v, true
			}
		}
		// next two rows
		for j := i + 1; j <= i+2 && j < len(rows); j++ {
			for _, cell := range rows[j] {
				v := normalizeCell(cell)
				if len(v) > 15 && containsFundKeyword(v) && !looksLikeLabel(v) {
					return v, true
				}
			}
		}
	}
	return "", false
}

// Strategy (c): any fund-keyword cell in the first rows, label text excluded.
func fundNameFromEarlyRows(rows [][]string, _ string) (string, bool) {
	limit := config.FundNameScanRows
	if limit > len(rows) {
		limit = len(rows)
	}
	for i := 0; i < limit; i++ {
		for _, cell := range rows[i] {
			v := normalizeCell(cell)
			if len(v) > 10 && containsFundKeyword(v) && !looksLikeLabel(v) {
				return v, true
			}
		}
	}
	return "", false
}

// Strategy (d): the worksheet tab name, when it names a fund.
func fundNameFromSheetName(_ [][]string, sheetName string) (string, bool) {
	v := normalizeCell(sheetName)
	if v != "" && containsFundKeyword(v) {
		return v, true
	}
	return "", false
}

// Strategy (e): last resort, the raw tab name.
func fundNameFallbackSheetName(_ [][]string, sheetName string) (string, bool) {
	v := normalizeCell(sheetName)
	return v, v != ""
}

func extractFundName(rows [][]string, sheetName string) string {
	for _, strategy := range fundNameStrategies {
		if name, ok := strategy(rows, sheetName); ok {
			return name
		}
	}
	return sheetName
}

// Terminal markers end the equity holdings section. Matching is on the
// row's first non-empty cell.
var terminalMarkers = []string{"grand total", "sub total", "subtotal", "total"}

var sectionBreakMarkers = []string{
	"debt", "money market", "government securities",
	"treasury bill", "corporate bond", "reverse repo", "treps",
}

func firstNonEmptyCell(row []string) string {
	for _, c := range row {
		if v := normalizeCell(c); v != "" {
			return v
		}
	}
	return ""
}

func isTerminalRow(row []string) bool {
	lower := strings.ToLower(firstNonEmptyCell(row))
	if lower == "" {
		return false
	}
	for _, m := range terminalMarkers {
		if strings.HasPrefix(lower, m) {
			return true
		}
	}
	return false
}

func isSectionBreakRow(row []string) bool {
	lower := strings.ToLower(firstNonEmptyCell(row))
	if lower == "" {
		return false
	}
	for _, m := range sectionBreakMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return normalizeCell(row[idx])
}

// looksLikeISIN does a conservative shape check: 2 letters, 9 alphanumerics,
// 1 check digit.
func looksLikeISIN(s string) bool {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 12 {
		return false
	}
	for i, r := range s {
		switch {
		case i < 2:
			if r < 'A' || r > 'Z' {
				return false
			}
		case i == 11:
			if r < '0' || r > '9' {
				return false
			}
		default:
			if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
				return false
			}
		}
	}
	return true
}

// IngestSheet extracts a FundSheet from one raw grid. Percentages are NOT
// normalized here; the raw literal and marker flag are preserved for the
// normalizer. Failures are per-sheet and never abort the batch.
func IngestSheet(grid SheetGrid, sourceFile string) (*FundSheet, error) {
	headerIdx, ok := locateHeaderRow(grid.Rows)
	if !ok {
		return nil, &IngestError{Sheet: grid.Name, Reason: "no holdings header row found"}
	}

	fundName := extractFundName(grid.Rows[:headerIdx+1], grid.Name)
	if fundName == "" {
		return nil, &IngestError{Sheet: grid.Name, Reason: "no fund name found"}
	}

	cols := resolveColumns(grid.Rows[headerIdx])
	if cols.name < 0 {
		return nil, &IngestError{Sheet: grid.Name, Reason: "no instrument name column found"}
	}
	if cols.percent < 0 {
		return nil, &NormalizationError{Sheet: grid.Name, Reason: "no usable percentage column found"}
	}

	sheet := &FundSheet{
		FundName:   fundName,
		SourceFile: sourceFile,
		SheetName:  grid.Name,
	}

	for i := headerIdx + 1; i < len(grid.Rows); i++ {
		row := grid.Rows[i]
		if allEmptyRow(row) {
			continue
		}
		if isTerminalRow(row) || isSectionBreakRow(row) {
			break
		}

		name := cellAt(row, cols.name)
		if name == "" || strings.EqualFold(name, "nan") {
			continue
		}

		rawPct := cellAt(row, cols.percent)
		isin := cellAt(row, cols.isin)
		if isin != "" && !looksLikeISIN(isin) {
			isin = ""
		}

		industry := cellAt(row, cols.industry)
		holding := RawHolding{
			InstrumentName: name,
			ISIN:           isin,
			RawPercent:     rawPct,
			HadPercentMark: strings.Contains(rawPct, "%"),
			Industry:       industry,
			MarketCap:      cellAt(row, cols.marketCap),
			Foreign:        isForeignInstrument(name, isin, industry),
		}
		sheet.Raw = append(sheet.Raw, holding)
	}

	return sheet, nil
}

// isForeignInstrument flags overseas holdings: non-Indian ISIN prefix or an
// explicit foreign/overseas tag in the row text.
func isForeignInstrument(name, isin, industry string) bool {
	if isin != "" && !strings.HasPrefix(strings.ToUpper(isin), "IN") {
		return true
	}
	lower := strings.ToLower(name + " " + industry)
	return strings.Contains(lower, "foreign") || strings.Contains(lower, "overseas") ||
		strings.Contains(lower, " adr") || strings.Contains(lower, " gdr")
}
