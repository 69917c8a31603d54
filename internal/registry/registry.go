package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SchemeRecord is one canonical AMFI scheme. Immutable once loaded; plan and
// option flags are derived from the scheme name at load time so matching
// never re-parses them.
type SchemeRecord struct {
	SchemeCode   int64
	ISIN         string
	SchemeName   string
	IssuerName   string
	NAV          float64
	PlanDirect   bool
	PlanRegular  bool
	OptionGrowth bool
	OptionIDCW   bool
}

type snapshot struct {
	schemes     []SchemeRecord
	byIssuer    map[string][]int
	issuers     []string
	refreshedAt time.Time
}

// Registry is the process-wide scheme universe cache. Refresh is explicit
// (Reload or ReplaceAll) and swaps a copy-on-write snapshot; readers always
// see a complete snapshot and never block on a refresh in progress.
type Registry struct {
	pool *pgxpool.Pool
	snap atomic.Pointer[snapshot]
}

func New(pool *pgxpool.Pool) *Registry {
	r := &Registry{pool: pool}
	r.snap.Store(&snapshot{byIssuer: map[string][]int{}})
	return r
}

// Reload rebuilds the snapshot from the scheme master tables. Caller decides
// when; nothing in the match path triggers this implicitly.
func (r *Registry) Reload(ctx context.Context) error {
	if r.pool == nil {
		return fmt.Errorf("registry reload: no database pool configured")
	}
	rows, err := r.pool.Query(ctx, `
		SELECT s.scheme_code,
		       COALESCE(s.isin_div_payout_growth, ''),
		       s.scheme_name,
		       s.amc_name,
		       COALESCE(n.nav_value, 0)
		FROM investment.scheme_master s
		LEFT JOIN LATERAL (
			SELECT nav_value FROM investment.scheme_nav
			WHERE scheme_code = s.scheme_code
			ORDER BY nav_date DESC LIMIT 1
		) n ON true
		ORDER BY s.scheme_code`)
	if err != nil {
		return fmt.Errorf("registry reload query: %w", err)
	}
	defer rows.Close()

	var records []SchemeRecord
	for rows.Next() {
		var rec SchemeRecord
		if err := rows.Scan(&rec.SchemeCode, &rec.ISIN, &rec.SchemeName, &rec.IssuerName, &rec.NAV); err != nil {
			return fmt.Errorf("registry reload scan: %w", err)
		}
		rec.PlanDirect, rec.PlanRegular, rec.OptionGrowth, rec.OptionIDCW = ParsePlanFlags(rec.SchemeName)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("registry reload rows: %w", err)
	}
	r.ReplaceAll(records)
	return nil
}

// ReplaceAll installs a new snapshot built from the given records. Used by
// Reload and by callers that source the universe elsewhere.
func (r *Registry) ReplaceAll(records []SchemeRecord) {
	snap := &snapshot{
		schemes:     records,
		byIssuer:    make(map[string][]int),
		refreshedAt: time.Now(),
	}
	for i, rec := range records {
		key := issuerKey(rec.IssuerName)
		if key == "" {
			continue
		}
		snap.byIssuer[key] = append(snap.byIssuer[key], i)
	}
	snap.issuers = make([]string, 0, len(snap.byIssuer))
	seen := make(map[string]bool)
	for _, rec := range records {
		if rec.IssuerName != "" && !seen[issuerKey(rec.IssuerName)] {
			seen[issuerKey(rec.IssuerName)] = true
			snap.issuers = append(snap.issuers, rec.IssuerName)
		}
	}
	sort.Strings(snap.issuers)
	r.snap.Store(snap)
}

// Schemes returns the full universe in registry sort order.
func (r *Registry) Schemes() []SchemeRecord {
	return r.snap.Load().schemes
}

// SchemesByIssuer returns all schemes of one issuer (case-insensitive).
func (r *Registry) SchemesByIssuer(issuer string) []SchemeRecord {
	snap := r.snap.Load()
	idxs, ok := snap.byIssuer[issuerKey(issuer)]
	if !ok {
		return nil
	}
	out := make([]SchemeRecord, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, snap.schemes[i])
	}
	return out
}

func (r *Registry) IssuerNames() []string {
	return r.snap.Load().issuers
}

func (r *Registry) LastRefreshed() time.Time {
	return r.snap.Load().refreshedAt
}

func issuerKey(issuer string) string {
	return strings.ToUpper(strings.TrimSpace(issuer))
}

// ParsePlanFlags derives direct/regular and growth/IDCW indicators from a
// scheme name. AMFI names carry these as free text ("... - Direct Plan -
// Growth Option", "Regular IDCW Payout", etc.).
func ParsePlanFlags(schemeName string) (direct, regular, growth, idcw bool) {
	name := strings.ToUpper(schemeName)
	direct = strings.Contains(name, "DIRECT")
	regular = strings.Contains(name, "REGULAR")
	growth = strings.Contains(name, "GROWTH")
	idcw = strings.Contains(name, "IDCW") ||
		strings.Contains(name, "DIVIDEND") ||
		strings.Contains(name, "INCOME DISTRIBUTION")
	return
}
