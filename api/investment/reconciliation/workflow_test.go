package reconciliation

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"FundFolioSaas/api/investment/portfolio"
	"FundFolioSaas/internal/session"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockAssetStore struct {
	mu     sync.Mutex
	assets []portfolio.Asset
	writes map[string]int
	last   map[string][]portfolio.HoldingRow
}

func newMockAssetStore(assets ...portfolio.Asset) *mockAssetStore {
	return &mockAssetStore{
		assets: assets,
		writes: map[string]int{},
		last:   map[string][]portfolio.HoldingRow{},
	}
}

func (m *mockAssetStore) AssetsByUser(_ context.Context, userID string) ([]portfolio.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []portfolio.Asset
	for _, a := range m.assets {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockAssetStore) ReplaceHoldings(_ context.Context, assetID string, holdings []portfolio.HoldingRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes[assetID]++
	m.last[assetID] = holdings
	return nil
}

func (m *mockAssetStore) writeCount(assetID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[assetID]
}

func testAsset(id, userID, name string) portfolio.Asset {
	return portfolio.Asset{
		AssetID:   id,
		UserID:    userID,
		AssetName: name,
		Units:     decimal.NewFromInt(1000),
		NAV:       decimal.RequireFromString("25.50"),
	}
}

func disclosureCSV() []byte {
	return []byte(strings.Join([]string{
		"ICICI Prudential Bluechip Fund,,,",
		"Name of the Instrument,ISIN,Industry,% to Net Assets",
		"HDFC Bank Ltd,INE040A01034,Banks,8.5%",
		"Infosys Ltd,INE009A01021,IT - Software,7.2",
		"Total,,,100.0",
	}, "\n"))
}

func newTestWorkflow(store AssetStore, ttl time.Duration) (*Workflow, *session.MemoryStore) {
	sessions := session.NewMemoryStore()
	return NewWorkflow(store, sessions, nil, ttl), sessions
}

func TestSubmitAutoImportable(t *testing.T) {
	store := newMockAssetStore(testAsset("A-1", "u1", "ICICI Prudential Bluechip Fund"))
	wf, _ := newTestWorkflow(store, time.Minute)

	result, err := wf.Submit(context.Background(), disclosureCSV(), "icici_july.csv", "u1")
	require.NoError(t, err)
	require.Len(t, result.Sheets, 1)
	assert.NotEmpty(t, result.SessionID)

	preview := result.Sheets[0]
	assert.Equal(t, "ICICI Prudential Bluechip Fund", preview.FundName)
	assert.Equal(t, 2, preview.HoldingsCount)
	assert.Equal(t, ClassAutoImportable, preview.Classification)
	assert.True(t, preview.AutoImportable)
	require.NotEmpty(t, preview.Suggested)
	assert.Equal(t, "A-1", preview.Suggested[0].TargetID)
}

func TestSubmitNeedsConfirmation(t *testing.T) {
	store := newMockAssetStore(
		testAsset("A-1", "u1", "ICICI Prudential Bluechip Fund - Direct Plan"),
		testAsset("A-2", "u1", "ICICI Prudential Bluechip Fund - Regular Plan"),
	)
	wf, _ := newTestWorkflow(store, time.Minute)

	result, err := wf.Submit(context.Background(), disclosureCSV(), "icici_july.csv", "u1")
	require.NoError(t, err)
	preview := result.Sheets[0]
	assert.Equal(t, ClassNeedsConfirmation, preview.Classification)
	assert.False(t, preview.AutoImportable)
	assert.Len(t, preview.Suggested, 2)
}

func TestSubmitNoMatchWithEmptyPortfolio(t *testing.T) {
	store := newMockAssetStore()
	wf, _ := newTestWorkflow(store, time.Minute)

	result, err := wf.Submit(context.Background(), disclosureCSV(), "icici_july.csv", "u1")
	require.NoError(t, err)
	assert.Equal(t, ClassNoMatch, result.Sheets[0].Classification)
}

func TestSubmitBadSheetReportedNotFatal(t *testing.T) {
	store := newMockAssetStore(testAsset("A-1", "u1", "ICICI Prudential Bluechip Fund"))
	wf, _ := newTestWorkflow(store, time.Minute)

	csvData := []byte("Disclaimer,notes\nNothing here,either\n")
	result, err := wf.Submit(context.Background(), csvData, "junk.csv", "u1")
	require.NoError(t, err)
	require.Len(t, result.Sheets, 1)
	assert.Equal(t, ClassNoMatch, result.Sheets[0].Classification)
	assert.NotEmpty(t, result.Sheets[0].Error)
}

func TestConfirmImportsHoldings(t *testing.T) {
	store := newMockAssetStore(testAsset("A-1", "u1", "ICICI Prudential Bluechip Fund"))
	wf, _ := newTestWorkflow(store, time.Minute)

	submitted, err := wf.Submit(context.Background(), disclosureCSV(), "icici_july.csv", "u1")
	require.NoError(t, err)

	result, err := wf.Confirm(context.Background(), submitted.SessionID, "u1", map[int][]string{0: {"A-1"}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ResolvedCount)
	assert.Equal(t, 0, result.FailedCount)
	assert.False(t, result.AlreadyConfirmed)

	require.Equal(t, 1, store.writeCount("A-1"))
	rows := store.last["A-1"]
	require.Len(t, rows, 2)
	// 8.5% of 1000 units priced at 25.50
	assert.Equal(t, "85", rows[0].QuantityHeld.String())
	assert.Equal(t, "2167.5", rows[0].HoldingValue.String())
}

func TestConfirmIsIdempotent(t *testing.T) {
	store := newMockAssetStore(testAsset("A-1", "u1", "ICICI Prudential Bluechip Fund"))
	wf, _ := newTestWorkflow(store, time.Minute)

	submitted, err := wf.Submit(context.Background(), disclosureCSV(), "icici_july.csv", "u1")
	require.NoError(t, err)

	mappings := map[int][]string{0: {"A-1"}}
	_, err = wf.Confirm(context.Background(), submitted.SessionID, "u1", mappings)
	require.NoError(t, err)

	second, err := wf.Confirm(context.Background(), submitted.SessionID, "u1", mappings)
	require.NoError(t, err)
	assert.True(t, second.AlreadyConfirmed)
	assert.Equal(t, 0, second.ResolvedCount)
	assert.Equal(t, 1, store.writeCount("A-1"))
}

func TestConfirmConcurrentRetriesWriteOnce(t *testing.T) {
	store := newMockAssetStore(testAsset("A-1", "u1", "ICICI Prudential Bluechip Fund"))
	wf, _ := newTestWorkflow(store, time.Minute)

	submitted, err := wf.Submit(context.Background(), disclosureCSV(), "icici_july.csv", "u1")
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = wf.Confirm(context.Background(), submitted.SessionID, "u1", map[int][]string{0: {"A-1"}})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, store.writeCount("A-1"))
}

func TestConfirmUnknownSession(t *testing.T) {
	store := newMockAssetStore(testAsset("A-1", "u1", "ICICI Prudential Bluechip Fund"))
	wf, _ := newTestWorkflow(store, time.Minute)

	_, err := wf.Confirm(context.Background(), "nope", "u1", nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestConfirmWrongUser(t *testing.T) {
	store := newMockAssetStore(testAsset("A-1", "u1", "ICICI Prudential Bluechip Fund"))
	wf, _ := newTestWorkflow(store, time.Minute)

	submitted, err := wf.Submit(context.Background(), disclosureCSV(), "icici_july.csv", "u1")
	require.NoError(t, err)

	_, err = wf.Confirm(context.Background(), submitted.SessionID, "u2", map[int][]string{0: {"A-1"}})
	assert.ErrorIs(t, err, ErrSessionWrongUser)
	assert.Equal(t, 0, store.writeCount("A-1"))
}

func TestConfirmExpiredSession(t *testing.T) {
	store := newMockAssetStore(testAsset("A-1", "u1", "ICICI Prudential Bluechip Fund"))
	wf, _ := newTestWorkflow(store, time.Millisecond)

	submitted, err := wf.Submit(context.Background(), disclosureCSV(), "icici_july.csv", "u1")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	_, err = wf.Confirm(context.Background(), submitted.SessionID, "u1", map[int][]string{0: {"A-1"}})
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, 0, store.writeCount("A-1"))
}

func TestConfirmRejectsUnownedAsset(t *testing.T) {
	store := newMockAssetStore(testAsset("A-1", "u1", "ICICI Prudential Bluechip Fund"))
	wf, _ := newTestWorkflow(store, time.Minute)

	submitted, err := wf.Submit(context.Background(), disclosureCSV(), "icici_july.csv", "u1")
	require.NoError(t, err)

	_, err = wf.Confirm(context.Background(), submitted.SessionID, "u1", map[int][]string{0: {"A-999"}})
	assert.ErrorIs(t, err, ErrUnknownAsset)
	assert.Equal(t, 0, store.writeCount("A-1"))
}

func TestConfirmSheetIndexOutOfRange(t *testing.T) {
	store := newMockAssetStore(testAsset("A-1", "u1", "ICICI Prudential Bluechip Fund"))
	wf, _ := newTestWorkflow(store, time.Minute)

	submitted, err := wf.Submit(context.Background(), disclosureCSV(), "icici_july.csv", "u1")
	require.NoError(t, err)

	result, err := wf.Confirm(context.Background(), submitted.SessionID, "u1", map[int][]string{7: {"A-1"}})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ResolvedCount)
	assert.Equal(t, 1, result.FailedCount)
	assert.NotEmpty(t, result.Errors)
}

func TestConfirmOneSheetToManyAssets(t *testing.T) {
	store := newMockAssetStore(
		testAsset("A-1", "u1", "ICICI Prudential Bluechip Fund"),
		testAsset("A-2", "u1", "ICICI Prudential Bluechip Fund (Folio 2)"),
	)
	wf, _ := newTestWorkflow(store, time.Minute)

	submitted, err := wf.Submit(context.Background(), disclosureCSV(), "icici_july.csv", "u1")
	require.NoError(t, err)

	result, err := wf.Confirm(context.Background(), submitted.SessionID, "u1", map[int][]string{0: {"A-1", "A-2"}})
	require.NoError(t, err)
	assert.Equal(t, 2, result.ResolvedCount)
	assert.Equal(t, 1, store.writeCount("A-1"))
	assert.Equal(t, 1, store.writeCount("A-2"))
}

func TestBuildHoldingRowsDropsOutOfRange(t *testing.T) {
	asset := testAsset("A-1", "u1", "Fund")
	rows := buildHoldingRows(asset, []ParsedHolding{
		{InstrumentName: "Good", Percent: 8.5},
		{InstrumentName: "Zero", Percent: 0},
		{InstrumentName: "TooBig", Percent: 180},
	})
	require.Len(t, rows, 1)
	assert.Equal(t, "Good", rows[0].InstrumentName)
}
