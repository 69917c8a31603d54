package reconciliation

import (
	"sort"
	"strconv"
	"strings"

	"FundFolioSaas/internal/config"
	"FundFolioSaas/internal/registry"
)

// MatchTarget is one candidate in the universe the matcher scores against:
// either a scheme record or a portfolio asset name. Issuer is set for
// registry records and empty for portfolio assets.
type MatchTarget struct {
	ID     string
	Name   string
	Issuer string
}

// MatcherConfig carries the composite-score weights and ranking knobs. The
// weights are tunable configuration, not fixed law.
type MatcherConfig struct {
	SequenceWeight    float64
	TokenWeight       float64
	ContainmentWeight float64
	PlanWeight        float64
	TopK              int
	AutoImportScore   float64
	AutoImportMargin  float64
	ScoreFloor        float64
}

func DefaultMatcherConfig() *MatcherConfig {
	return &MatcherConfig{
		SequenceWeight:    config.DefaultSequenceWeight,
		TokenWeight:       config.DefaultTokenWeight,
		ContainmentWeight: config.DefaultContainmentWeight,
		PlanWeight:        config.DefaultPlanWeight,
		TopK:              config.DefaultMatchTopK,
		AutoImportScore:   config.DefaultAutoImportScore,
		AutoImportMargin:  config.DefaultAutoImportMargin,
		ScoreFloor:        config.DefaultMatchScoreFloor,
	}
}

// issuerFragment maps a fund-name fragment to a canonical issuer. The table
// is ordered longest-fragment-first so "ICICI PRUDENTIAL" wins over "ICICI".
type issuerFragment struct {
	Fragment string
	Issuer   string
}

var issuerFragments = []issuerFragment{
	{"ADITYA BIRLA SUN LIFE", "Aditya Birla Sun Life Mutual Fund"},
	{"ICICI PRUDENTIAL", "ICICI Prudential Mutual Fund"},
	{"FRANKLIN TEMPLETON", "Franklin Templeton Mutual Fund"},
	{"MOTILAL OSWAL", "Motilal Oswal Mutual Fund"},
	{"CANARA ROBECO", "Canara Robeco Mutual Fund"},
	{"NIPPON INDIA", "Nippon India Mutual Fund"},
	{"PARAG PARIKH", "PPFAS Mutual Fund"},
	{"MIRAE ASSET", "Mirae Asset Mutual Fund"},
	{"EDELWEISS", "Edelweiss Mutual Fund"},
	{"BANDHAN", "Bandhan Mutual Fund"},
	{"INVESCO", "Invesco Mutual Fund"},
	{"BARODA", "Baroda BNP Paribas Mutual Fund"},
	{"PPFAS", "PPFAS Mutual Fund"},
	{"KOTAK", "Kotak Mahindra Mutual Fund"},
	{"QUANT", "Quant Mutual Fund"},
	{"HDFC", "HDFC Mutual Fund"},
	{"AXIS", "Axis Mutual Fund"},
	{"TATA", "Tata Mutual Fund"},
	{"HSBC", "HSBC Mutual Fund"},
	{"ABSL", "Aditya Birla Sun Life Mutual Fund"},
	{"SBI", "SBI Mutual Fund"},
	{"UTI", "UTI Mutual Fund"},
	{"DSP", "DSP Mutual Fund"},
}

// IssuerForFundName returns the canonical issuer for a free-text fund name,
// longest matching fragment first.
func IssuerForFundName(name string) (string, bool) {
	upper := strings.ToUpper(name)
	for _, f := range issuerFragments {
		if strings.Contains(upper, f.Fragment) {
			return f.Issuer, true
		}
	}
	return "", false
}

// Matcher scores a free-text fund name against a candidate universe. It is
// pure and synchronous; no I/O happens anywhere in the scoring path.
type Matcher struct {
	cfg *MatcherConfig
}

func NewMatcher(cfg *MatcherConfig) *Matcher {
	if cfg == nil {
		cfg = DefaultMatcherConfig()
	}
	return &Matcher{cfg: cfg}
}

func (m *Matcher) Config() *MatcherConfig { return m.cfg }

// Match ranks the universe against the query and returns the top-K
// candidates with per-signal breakdowns. Ties break on higher raw sequence
// similarity, then on universe order.
func (m *Matcher) Match(query string, universe []MatchTarget) []MatchCandidate {
	if strings.TrimSpace(query) == "" || len(universe) == 0 {
		return nil
	}

	candidates := m.narrowByIssuer(query, universe)
	candidates = m.narrowByPlanType(query, candidates)

	q := canonicalName(query)
	qTokens := nameTokens(q)
	qDirect, qRegular, qGrowth, qIDCW := registry.ParsePlanFlags(query)

	type scored struct {
		cand MatchCandidate
		pos  int
	}
	results := make([]scored, 0, len(candidates))
	for pos, target := range candidates {
		c := canonicalName(target.Name)
		cTokens := nameTokens(c)
		tDirect, tRegular, tGrowth, tIDCW := registry.ParsePlanFlags(target.Name)

		comp := ScoreComponents{
			Sequence:    sequenceSimilarity(q, c),
			TokenSet:    tokenJaccard(qTokens, cTokens),
			Containment: tokenContainment(qTokens, c),
		}
		planBonus := 0.0
		if (qDirect && tDirect) || (qRegular && tRegular) {
			planBonus += 0.5
		}
		if (qGrowth && tGrowth) || (qIDCW && tIDCW) {
			planBonus += 0.5
		}
		comp.PlanBonus = planBonus

		score := m.cfg.SequenceWeight*comp.Sequence +
			m.cfg.TokenWeight*comp.TokenSet +
			m.cfg.ContainmentWeight*comp.Containment +
			m.cfg.PlanWeight*comp.PlanBonus

		results = append(results, scored{
			cand: MatchCandidate{
				TargetID:   target.ID,
				TargetName: target.Name,
				Score:      score,
				Components: comp,
			},
			pos: pos,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].cand.Score != results[j].cand.Score {
			return results[i].cand.Score > results[j].cand.Score
		}
		if results[i].cand.Components.Sequence != results[j].cand.Components.Sequence {
			return results[i].cand.Components.Sequence > results[j].cand.Components.Sequence
		}
		return results[i].pos < results[j].pos
	})

	k := m.cfg.TopK
	if k <= 0 || k > len(results) {
		k = len(results)
	}
	out := make([]MatchCandidate, 0, k)
	for _, r := range results[:k] {
		out = append(out, r.cand)
	}
	return out
}

// narrowByIssuer restricts the universe to the issuer named by the query,
// with fallback to the unfiltered universe when the narrowed set is empty.
// Registry targets narrow on their Issuer field; bare name targets (the
// user's portfolio assets) narrow on the fragment appearing in their name.
func (m *Matcher) narrowByIssuer(query string, universe []MatchTarget) []MatchTarget {
	upper := strings.ToUpper(query)
	var frag issuerFragment
	found := false
	for _, f := range issuerFragments {
		if strings.Contains(upper, f.Fragment) {
			frag = f
			found = true
			break
		}
	}
	if !found {
		return universe
	}

	narrowed := make([]MatchTarget, 0, len(universe))
	for _, t := range universe {
		if t.Issuer != "" {
			if strings.EqualFold(t.Issuer, frag.Issuer) {
				narrowed = append(narrowed, t)
			}
			continue
		}
		if strings.Contains(strings.ToUpper(t.Name), frag.Fragment) {
			narrowed = append(narrowed, t)
		}
	}
	if len(narrowed) == 0 {
		return universe
	}
	return narrowed
}

// narrowByPlanType soft-filters on a strong DIRECT/REGULAR signal in the
// query. The filter never reduces the candidate set to empty.
func (m *Matcher) narrowByPlanType(query string, universe []MatchTarget) []MatchTarget {
	qDirect, qRegular, _, _ := registry.ParsePlanFlags(query)
	if qDirect == qRegular {
		// no signal, or contradictory
		return universe
	}

	narrowed := make([]MatchTarget, 0, len(universe))
	for _, t := range universe {
		tDirect, tRegular, _, _ := registry.ParsePlanFlags(t.Name)
		if qDirect && tDirect {
			narrowed = append(narrowed, t)
		} else if qRegular && tRegular {
			narrowed = append(narrowed, t)
		}
	}
	if len(narrowed) == 0 {
		return universe
	}
	return narrowed
}

// canonicalName uppercases and strips punctuation so "ICICI Pru. Bluechip"
// and "ICICI PRU BLUECHIP" compare equal.
func canonicalName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// matchStopwords are tokens too common in scheme names to signal identity.
var matchStopwords = map[string]bool{
	"FUND": true, "SCHEME": true, "PLAN": true, "OPTION": true,
	"MUTUAL": true, "MF": true, "THE": true, "OF": true, "AND": true,
	"AN": true, "A": true,
}

func nameTokens(canonical string) []string {
	return strings.Fields(canonical)
}

// sequenceSimilarity is a character-level longest-common-subsequence ratio:
// 2*LCS / (len(a)+len(b)), the difflib-style measure.
func sequenceSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	lcs := prev[len(rb)]
	return 2 * float64(lcs) / float64(len(ra)+len(rb))
}

// tokenJaccard is word-set overlap between the two names.
func tokenJaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(a))
	for _, t := range a {
		setA[t] = true
	}
	setB := make(map[string]bool, len(b))
	for _, t := range b {
		setB[t] = true
	}
	inter := 0
	for t := range setA {
		if setB[t] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// tokenContainment rewards every significant (non-stopword) query token
// literally present in the candidate name.
func tokenContainment(queryTokens []string, candidate string) float64 {
	significant := 0
	contained := 0
	for _, t := range queryTokens {
		if matchStopwords[t] {
			continue
		}
		significant++
		if strings.Contains(candidate, t) {
			contained++
		}
	}
	if significant == 0 {
		return 0
	}
	return float64(contained) / float64(significant)
}

// TargetsFromSchemes adapts registry records to the matcher universe.
func TargetsFromSchemes(schemes []registry.SchemeRecord) []MatchTarget {
	out := make([]MatchTarget, 0, len(schemes))
	for _, s := range schemes {
		out = append(out, MatchTarget{
			ID:     strconv.FormatInt(s.SchemeCode, 10),
			Name:   s.SchemeName,
			Issuer: s.IssuerName,
		})
	}
	return out
}
