package reconciliation

import (
	"errors"
	"fmt"
	"time"
)

// RawHolding is one extracted spreadsheet row before percentage
// normalization. The raw literal and the presence of a '%' marker are both
// preserved because the normalizer needs them in aggregate.
type RawHolding struct {
	InstrumentName string
	ISIN           string
	RawPercent     string
	HadPercentMark bool
	Industry       string
	MarketCap      string
	Foreign        bool
}

// ParsedHolding is a normalized holding: percentage is a valid 0-100 value.
type ParsedHolding struct {
	InstrumentName string  `json:"instrument_name"`
	ISIN           string  `json:"isin,omitempty"`
	Percent        float64 `json:"percentage"`
	Industry       string  `json:"industry,omitempty"`
	MarketCap      string  `json:"market_cap,omitempty"`
	Foreign        bool    `json:"foreign,omitempty"`
}

// FundSheet is the outcome of ingesting one worksheet tab or CSV file.
type FundSheet struct {
	FundName   string          `json:"fund_name_from_file"`
	SourceFile string          `json:"source_file"`
	SheetName  string          `json:"sheet_name"`
	Raw        []RawHolding    `json:"-"`
	Holdings   []ParsedHolding `json:"holdings"`
}

// ScoreComponents is the per-signal breakdown behind a composite match
// score, kept for auditability.
type ScoreComponents struct {
	Sequence    float64 `json:"sequence"`
	TokenSet    float64 `json:"token_jaccard"`
	Containment float64 `json:"containment"`
	PlanBonus   float64 `json:"plan_bonus"`
}

// MatchCandidate is one scored target from the candidate universe.
type MatchCandidate struct {
	TargetID   string          `json:"target_id"`
	TargetName string          `json:"target_name"`
	Score      float64         `json:"score"`
	Components ScoreComponents `json:"component_scores"`
}

// Sheet classification after matching.
const (
	ClassAutoImportable    = "auto_importable"
	ClassNeedsConfirmation = "needs_confirmation"
	ClassNoMatch           = "no_match"
)

// SheetPreview is the per-sheet entry of a submit() response.
type SheetPreview struct {
	FundName       string           `json:"fund_name_from_file"`
	SheetName      string           `json:"sheet_name"`
	HoldingsCount  int              `json:"holdings_count"`
	Suggested      []MatchCandidate `json:"suggested_asset_ids"`
	TopScore       float64          `json:"top_score"`
	AutoImportable bool             `json:"auto_importable"`
	Classification string           `json:"classification"`
	Error          string           `json:"error,omitempty"`
}

// SubmitResult is the preview returned by Workflow.Submit.
type SubmitResult struct {
	SessionID string         `json:"session_id"`
	ExpiresAt time.Time      `json:"expires_at"`
	Sheets    []SheetPreview `json:"sheets"`
}

// ConfirmResult is returned by Workflow.Confirm.
type ConfirmResult struct {
	ResolvedCount    int      `json:"resolved_count"`
	FailedCount      int      `json:"failed_count"`
	Errors           []string `json:"errors"`
	AlreadyConfirmed bool     `json:"already_confirmed,omitempty"`
}

// sessionPayload is what a reconciliation session stores between preview and
// confirm. It never reaches the durable store.
type sessionPayload struct {
	Sheets   []FundSheet
	Previews []SheetPreview
}

// IngestError marks a sheet that could not be ingested (no header row, no
// fund name, no instrument-name column). The batch continues without it.
type IngestError struct {
	Sheet  string
	Reason string
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("sheet %q: %s", e.Sheet, e.Reason)
}

// NormalizationError marks a sheet with no usable percentage column.
type NormalizationError struct {
	Sheet  string
	Reason string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("sheet %q: %s", e.Sheet, e.Reason)
}

// Session-level errors. These are request-fatal, unlike per-sheet failures.
var (
	ErrSessionNotFound  = errors.New("reconciliation session not found")
	ErrSessionExpired   = errors.New("reconciliation session expired")
	ErrSessionWrongUser = errors.New("reconciliation session belongs to another user")
	ErrUnknownAsset     = errors.New("mapping references an asset the user does not own")
)
