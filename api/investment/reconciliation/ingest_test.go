package reconciliation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func disclosureGrid() SheetGrid {
	return SheetGrid{
		Name: "Sheet1",
		Rows: [][]string{
			{"ICICI Prudential Bluechip Fund - Growth"},
			{"Portfolio as on 31-Jul-2026"},
			{},
			{"Name of the Instrument", "ISIN", "Industry", "% to Net Assets"},
			{"HDFC Bank Ltd", "INE040A01034", "Banks", "8.5%"},
			{"Infosys Ltd", "INE009A01021", "IT - Software", "7.2"},
			{"", "", "", ""},
			{"Microsoft Corp", "US5949181045", "IT - Software", "1.1"},
			{"Total", "", "", "100.00"},
			{"Debt Instruments"},
			{"91 Day T-Bill", "IN002026X019", "", "2.0"},
		},
	}
}

func TestIngestSheet(t *testing.T) {
	sheet, err := IngestSheet(disclosureGrid(), "monthly.xlsx")
	require.NoError(t, err)

	assert.Equal(t, "ICICI Prudential Bluechip Fund - Growth", sheet.FundName)
	assert.Equal(t, "monthly.xlsx", sheet.SourceFile)
	assert.Equal(t, "Sheet1", sheet.SheetName)

	// blank row skipped, TOTAL row terminates, debt section never reached
	require.Len(t, sheet.Raw, 3)
	assert.Equal(t, "HDFC Bank Ltd", sheet.Raw[0].InstrumentName)
	assert.Equal(t, "INE040A01034", sheet.Raw[0].ISIN)
	assert.True(t, sheet.Raw[0].HadPercentMark)
	assert.Equal(t, "8.5%", sheet.Raw[0].RawPercent)
	assert.False(t, sheet.Raw[1].HadPercentMark)
	assert.Equal(t, "Banks", sheet.Raw[0].Industry)

	// US ISIN prefix flags the holding as foreign
	assert.True(t, sheet.Raw[2].Foreign)
	assert.False(t, sheet.Raw[0].Foreign)
}

func TestIngestSheetSectionBreakStops(t *testing.T) {
	grid := SheetGrid{
		Name: "Holdings",
		Rows: [][]string{
			{"Name of the Instrument", "ISIN", "% to NAV"},
			{"HDFC Bank Ltd", "INE040A01034", "8.5"},
			{"Money Market Instruments", "", ""},
			{"TREPS", "", "4.2"},
		},
	}
	sheet, err := IngestSheet(grid, "f.xlsx")
	require.NoError(t, err)
	require.Len(t, sheet.Raw, 1)
}

func TestIngestSheetNoHeader(t *testing.T) {
	grid := SheetGrid{
		Name: "Notes",
		Rows: [][]string{
			{"Disclaimer"},
			{"Mutual fund investments are subject to market risks."},
		},
	}
	_, err := IngestSheet(grid, "f.xlsx")
	var ingestErr *IngestError
	require.ErrorAs(t, err, &ingestErr)
	assert.Equal(t, "Notes", ingestErr.Sheet)
}

func TestIngestSheetNoPercentColumn(t *testing.T) {
	grid := SheetGrid{
		Name: "Sheet1",
		Rows: [][]string{
			{"Name of the Instrument", "ISIN", "Quantity"},
			{"HDFC Bank Ltd", "INE040A01034", "1200"},
		},
	}
	_, err := IngestSheet(grid, "f.xlsx")
	var normErr *NormalizationError
	require.ErrorAs(t, err, &normErr)
}

func TestLocateHeaderRowSkipsPreamble(t *testing.T) {
	grid := disclosureGrid()
	idx, ok := locateHeaderRow(grid.Rows)
	require.True(t, ok)
	assert.Equal(t, 3, idx)
}

func TestResolveColumnsSynonyms(t *testing.T) {
	cases := []struct {
		header  []string
		percent int
		name    int
	}{
		{[]string{"Company Name", "ISIN", "Weightage"}, 2, 0},
		{[]string{"ISIN", "Security Name", "% of NAV"}, 2, 1},
		{[]string{"Instrument", "% to Net Assets", "% Change"}, 1, 0},
	}
	for _, c := range cases {
		cols := resolveColumns(c.header)
		assert.Equal(t, c.percent, cols.percent, "header=%v", c.header)
		assert.Equal(t, c.name, cols.name, "header=%v", c.header)
	}
}

func TestExtractFundNameStrategies(t *testing.T) {
	t.Run("first row wins", func(t *testing.T) {
		rows := [][]string{{"Parag Parikh Flexi Cap Fund - Direct - Growth"}}
		assert.Equal(t, "Parag Parikh Flexi Cap Fund - Direct - Growth", extractFundName(rows, "Sheet1"))
	})

	t.Run("statement marker row", func(t *testing.T) {
		rows := [][]string{
			{"Monthly Portfolio Statement"},
			{"Scheme Name:", "Quant Small Cap Fund - Growth"},
		}
		assert.Equal(t, "Quant Small Cap Fund - Growth", extractFundName(rows, "Sheet1"))
	})

	t.Run("tab name with fund keyword", func(t *testing.T) {
		rows := [][]string{{"As on 31-Jul-2026"}}
		assert.Equal(t, "Bluechip Fund", extractFundName(rows, "Bluechip Fund"))
	})

	t.Run("raw tab name fallback", func(t *testing.T) {
		rows := [][]string{{"x"}}
		assert.Equal(t, "Annexure 1", extractFundName(rows, "Annexure 1"))
	})

	t.Run("labels are never names", func(t *testing.T) {
		rows := [][]string{{"Scheme Name:"}}
		assert.Equal(t, "Sheet1", extractFundName(rows, "Sheet1"))
	})
}

func TestLooksLikeISIN(t *testing.T) {
	assert.True(t, looksLikeISIN("INE040A01034"))
	assert.True(t, looksLikeISIN("US5949181045"))
	assert.False(t, looksLikeISIN("INE040A0103"))   // 11 chars
	assert.False(t, looksLikeISIN("1NE040A01034"))  // digit prefix
	assert.False(t, looksLikeISIN("INE040A0103X"))  // letter check digit
	assert.False(t, looksLikeISIN("Banking"))
}

func TestIsTerminalRow(t *testing.T) {
	assert.True(t, isTerminalRow([]string{"", "Grand Total", "100.00"}))
	assert.True(t, isTerminalRow([]string{"Sub Total"}))
	assert.True(t, isTerminalRow([]string{"TOTAL", "", ""}))
	assert.False(t, isTerminalRow([]string{"HDFC Bank Ltd"}))
	assert.False(t, isTerminalRow([]string{"", "", ""}))
}

func TestNormalizeCellStripsNBSP(t *testing.T) {
	assert.Equal(t, "HDFC Bank Ltd", normalizeCell("HDFC\u00a0Bank  Ltd "))
}

func TestParseWorkbookCSV(t *testing.T) {
	csvData := strings.Join([]string{
		"Nippon India Growth Fund,,",
		"Name of the Instrument,ISIN,% to Net Assets",
		"HDFC Bank Ltd,INE040A01034,8.5",
	}, "\n")
	grids, err := ParseWorkbook([]byte(csvData), "nippon_july.csv")
	require.NoError(t, err)
	require.Len(t, grids, 1)
	assert.Equal(t, "nippon_july", grids[0].Name)
	assert.Len(t, grids[0].Rows, 3)
}

func TestParseWorkbookRejectsUnknownFormat(t *testing.T) {
	_, err := ParseWorkbook([]byte("x"), "holdings.pdf")
	require.Error(t, err)
}

func TestParseWorkbookRejectsEmptyFile(t *testing.T) {
	_, err := ParseWorkbook(nil, "holdings.xlsx")
	require.Error(t, err)
}
