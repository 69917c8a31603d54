package portfolio

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Asset is one tracked fund in a user's portfolio: the read-only collaborator
// during matching, read/write during commit.
type Asset struct {
	AssetID   string
	UserID    string
	AssetName string
	Units     decimal.Decimal
	NAV       decimal.Decimal
}

// HoldingRow is one persisted constituent of an asset. QuantityHeld and
// HoldingValue are derived from the owning asset's units and NAV at commit
// time.
type HoldingRow struct {
	AssetID        string
	InstrumentName string
	ISIN           string
	Percent        float64
	QuantityHeld   decimal.Decimal
	HoldingValue   decimal.Decimal
	Industry       string
	MarketCap      string
	Foreign        bool
}

// Store reads portfolio assets and writes holding rows.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func pqUserFriendlyMessage(err error) string {
	if err == nil {
		return ""
	}
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return err.Error()
	}
	switch pqErr.Code {
	case "23505":
		return "A record with the same unique value already exists."
	case "23503":
		return "Some referenced data was not found (please refresh and try again)."
	case "23514":
		return "Some fields have invalid values. Please check and try again."
	default:
		return "Database error while processing the request. Please try again."
	}
}

// AssetsByUser returns the user's tracked funds with current units and NAV.
func (s *Store) AssetsByUser(ctx context.Context, userID string) ([]Asset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT asset_id, user_id, asset_name,
		       COALESCE(units, 0), COALESCE(current_nav, 0)
		FROM investment.portfolio_assets
		WHERE user_id = $1
		ORDER BY asset_name`, userID)
	if err != nil {
		return nil, fmt.Errorf("query portfolio assets: %s", pqUserFriendlyMessage(err))
	}
	defer rows.Close()

	var assets []Asset
	for rows.Next() {
		var a Asset
		var units, nav string
		if err := rows.Scan(&a.AssetID, &a.UserID, &a.AssetName, &units, &nav); err != nil {
			return nil, fmt.Errorf("scan portfolio asset: %v", err)
		}
		if a.Units, err = decimal.NewFromString(units); err != nil {
			a.Units = decimal.Zero
		}
		if a.NAV, err = decimal.NewFromString(nav); err != nil {
			a.NAV = decimal.Zero
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read portfolio assets: %v", err)
	}
	return assets, nil
}

// ReplaceHoldings swaps an asset's entire holding set for the given rows in
// one transaction. Delete-then-insert keeps no stale leftovers from an
// earlier disclosure file.
func (s *Store) ReplaceHoldings(ctx context.Context, assetID string, holdings []HoldingRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %v", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM investment.portfolio_holdings WHERE asset_id = $1`, assetID); err != nil {
		return fmt.Errorf("clear existing holdings: %s", pqUserFriendlyMessage(err))
	}

	const insertSQL = `
		INSERT INTO investment.portfolio_holdings
		(asset_id, instrument_name, isin, percentage, quantity_held, holding_value,
		 industry, market_cap, is_foreign, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())`
	for _, h := range holdings {
		_, err := tx.ExecContext(ctx, insertSQL,
			assetID, sanitizeText(h.InstrumentName), nullable(h.ISIN), h.Percent,
			h.QuantityHeld.String(), h.HoldingValue.String(),
			nullable(sanitizeText(h.Industry)), nullable(h.MarketCap), h.Foreign)
		if err != nil {
			return fmt.Errorf("insert holding %q: %s", h.InstrumentName, pqUserFriendlyMessage(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}
	return nil
}

// HoldingsByAsset returns the persisted holding rows for one asset.
func (s *Store) HoldingsByAsset(ctx context.Context, assetID string) ([]HoldingRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT asset_id, instrument_name, COALESCE(isin, ''), percentage,
		       COALESCE(quantity_held, 0), COALESCE(holding_value, 0),
		       COALESCE(industry, ''), COALESCE(market_cap, ''), COALESCE(is_foreign, false)
		FROM investment.portfolio_holdings
		WHERE asset_id = $1
		ORDER BY percentage DESC`, assetID)
	if err != nil {
		return nil, fmt.Errorf("query holdings: %s", pqUserFriendlyMessage(err))
	}
	defer rows.Close()

	var holdings []HoldingRow
	for rows.Next() {
		var h HoldingRow
		var qty, val string
		if err := rows.Scan(&h.AssetID, &h.InstrumentName, &h.ISIN, &h.Percent,
			&qty, &val, &h.Industry, &h.MarketCap, &h.Foreign); err != nil {
			return nil, fmt.Errorf("scan holding: %v", err)
		}
		if h.QuantityHeld, err = decimal.NewFromString(qty); err != nil {
			h.QuantityHeld = decimal.Zero
		}
		if h.HoldingValue, err = decimal.NewFromString(val); err != nil {
			h.HoldingValue = decimal.Zero
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

// sanitizeText strips characters that break PostgreSQL text literals
// (NUL bytes, stray control whitespace from Excel exports).
func sanitizeText(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.TrimSpace(s)
}

func nullable(s string) interface{} {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
