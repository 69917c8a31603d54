package reconciliation

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"FundFolioSaas/api/investment/portfolio"
	"FundFolioSaas/internal/config"
	"FundFolioSaas/internal/session"

	"github.com/shopspring/decimal"
)

// AssetStore is the slice of the portfolio store the workflow needs: assets
// are read during matching and commit, holding rows written only at commit.
type AssetStore interface {
	AssetsByUser(ctx context.Context, userID string) ([]portfolio.Asset, error)
	ReplaceHoldings(ctx context.Context, assetID string, holdings []portfolio.HoldingRow) error
}

// Workflow drives the two-phase reconciliation: Submit builds a previewed
// session, Confirm commits it exactly once.
type Workflow struct {
	assets   AssetStore
	sessions session.Store
	matcher  *Matcher
	ttl      time.Duration
}

func NewWorkflow(assets AssetStore, sessions session.Store, matcher *Matcher, ttl time.Duration) *Workflow {
	if matcher == nil {
		matcher = NewMatcher(nil)
	}
	if ttl <= 0 {
		ttl = config.DefaultSessionTTL
	}
	return &Workflow{assets: assets, sessions: sessions, matcher: matcher, ttl: ttl}
}

// Submit ingests every sheet of the uploaded file, normalizes percentages,
// matches each sheet's fund name against the caller's portfolio assets and
// stages the result as a PREVIEWED session. Per-sheet failures are collected
// and reported; they never abort the batch.
func (w *Workflow) Submit(ctx context.Context, fileBytes []byte, filename, userID string) (*SubmitResult, error) {
	grids, err := ParseWorkbook(fileBytes, filename)
	if err != nil {
		return nil, err
	}

	assets, err := w.assets.AssetsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	universe := make([]MatchTarget, 0, len(assets))
	for _, a := range assets {
		universe = append(universe, MatchTarget{ID: a.AssetID, Name: a.AssetName})
	}

	payload := &sessionPayload{}
	for _, grid := range grids {
		sheet, err := IngestSheet(grid, filename)
		if err != nil {
			log.Printf("[RECON-UPLOAD] sheet %q skipped: %v", grid.Name, err)
			payload.Sheets = append(payload.Sheets, FundSheet{SheetName: grid.Name, SourceFile: filename})
			payload.Previews = append(payload.Previews, SheetPreview{
				SheetName:      grid.Name,
				Classification: ClassNoMatch,
				Error:          err.Error(),
			})
			continue
		}

		holdings, corrected := NormalizeSheet(sheet.Raw)
		sheet.Holdings = holdings
		if corrected {
			log.Printf("[RECON-UPLOAD] sheet %q: applied sheet-wide /100 scale correction", grid.Name)
		}
		if sum := SheetPercentSum(holdings); sum > 100+config.SheetSumTolerance {
			log.Printf("[RECON-UPLOAD] sheet %q: percentages sum to %.2f", grid.Name, sum)
		}

		candidates := w.matcher.Match(sheet.FundName, universe)
		preview := classify(sheet, candidates, w.matcher.Config())
		payload.Sheets = append(payload.Sheets, *sheet)
		payload.Previews = append(payload.Previews, preview)
	}

	rec := w.sessions.Put(userID, w.ttl, payload)
	log.Printf("[RECON-UPLOAD] session %s created for user %s: %d sheet(s)", rec.ID, userID, len(payload.Sheets))

	return &SubmitResult{
		SessionID: rec.ID,
		ExpiresAt: rec.ExpiresAt,
		Sheets:    payload.Previews,
	}, nil
}

func classify(sheet *FundSheet, candidates []MatchCandidate, cfg *MatcherConfig) SheetPreview {
	preview := SheetPreview{
		FundName:      sheet.FundName,
		SheetName:     sheet.SheetName,
		HoldingsCount: len(sheet.Holdings),
		Suggested:     candidates,
	}
	if len(candidates) == 0 || candidates[0].Score < cfg.ScoreFloor {
		preview.Classification = ClassNoMatch
		if len(candidates) > 0 {
			preview.TopScore = candidates[0].Score
		}
		return preview
	}
	preview.TopScore = candidates[0].Score

	margin := candidates[0].Score
	if len(candidates) > 1 {
		margin = candidates[0].Score - candidates[1].Score
	}
	if candidates[0].Score >= cfg.AutoImportScore && margin >= cfg.AutoImportMargin {
		preview.Classification = ClassAutoImportable
		preview.AutoImportable = true
	} else {
		preview.Classification = ClassNeedsConfirmation
	}
	return preview
}

// Confirm transitions a PREVIEWED session to CONFIRMED and imports the
// mapped sheets. The status flip is a compare-and-swap, so concurrent
// retries for the same session execute the import exactly once; a repeat
// call on an already-CONFIRMED session returns success without re-writing.
//
// mappings is sheet index -> asset ids; a sheet may map to several assets
// (the same fund held in two accounts).
func (w *Workflow) Confirm(ctx context.Context, sessionID, userID string, mappings map[int][]string) (*ConfirmResult, error) {
	rec, ok := w.sessions.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	if rec.UserID != userID {
		return nil, ErrSessionWrongUser
	}
	switch rec.Status {
	case session.StatusExpired:
		return nil, ErrSessionExpired
	case session.StatusConfirmed:
		return &ConfirmResult{AlreadyConfirmed: true, Errors: []string{}}, nil
	}

	payload, ok := rec.Payload.(*sessionPayload)
	if !ok {
		return nil, fmt.Errorf("session %s: corrupt payload", sessionID)
	}

	assets, err := w.assets.AssetsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	owned := make(map[string]portfolio.Asset, len(assets))
	for _, a := range assets {
		owned[a.AssetID] = a
	}
	for _, assetIDs := range mappings {
		for _, id := range assetIDs {
			if _, ok := owned[id]; !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, id)
			}
		}
	}

	if !w.sessions.CompareAndSwapStatus(sessionID, session.StatusPreviewed, session.StatusConfirmed) {
		// Lost the race, or the TTL lapsed between Get and CAS.
		rec, ok := w.sessions.Get(sessionID)
		if ok && rec.Status == session.StatusConfirmed {
			return &ConfirmResult{AlreadyConfirmed: true, Errors: []string{}}, nil
		}
		return nil, ErrSessionExpired
	}

	result := &ConfirmResult{Errors: []string{}}
	for _, sheetIdx := range sortedKeys(mappings) {
		if sheetIdx < 0 || sheetIdx >= len(payload.Sheets) {
			result.FailedCount++
			result.Errors = append(result.Errors, fmt.Sprintf("sheet index %d out of range", sheetIdx))
			continue
		}
		sheet := payload.Sheets[sheetIdx]
		if len(sheet.Holdings) == 0 {
			result.FailedCount++
			result.Errors = append(result.Errors, fmt.Sprintf("sheet %q has no holdings to import", sheet.SheetName))
			continue
		}
		for _, assetID := range mappings[sheetIdx] {
			asset := owned[assetID]
			rows := buildHoldingRows(asset, sheet.Holdings)
			if err := w.assets.ReplaceHoldings(ctx, assetID, rows); err != nil {
				result.FailedCount++
				result.Errors = append(result.Errors, fmt.Sprintf("asset %s: %v", assetID, err))
				continue
			}
			result.ResolvedCount++
			log.Printf("[RECON-CONFIRM] session %s: replaced %d holding(s) on asset %s", sessionID, len(rows), assetID)
		}
	}
	return result, nil
}

// buildHoldingRows derives the persisted rows from the asset's current
// units and NAV: quantity is the unit share attributable to the holding,
// value is that share priced at NAV. Rows outside [0,100] after
// normalization are dropped here so the persisted invariant always holds.
func buildHoldingRows(asset portfolio.Asset, holdings []ParsedHolding) []portfolio.HoldingRow {
	rows := make([]portfolio.HoldingRow, 0, len(holdings))
	for _, h := range holdings {
		if h.Percent <= 0 || h.Percent > 100 {
			continue
		}
		frac := decimal.NewFromFloat(h.Percent).Div(decimal.NewFromInt(100))
		qty := asset.Units.Mul(frac)
		rows = append(rows, portfolio.HoldingRow{
			AssetID:        asset.AssetID,
			InstrumentName: h.InstrumentName,
			ISIN:           h.ISIN,
			Percent:        h.Percent,
			QuantityHeld:   qty.Round(4),
			HoldingValue:   qty.Mul(asset.NAV).Round(2),
			Industry:       h.Industry,
			MarketCap:      h.MarketCap,
			Foreign:        h.Foreign,
		})
	}
	return rows
}

func sortedKeys(m map[int][]string) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
