package reconciliation

import (
	"testing"

	"FundFolioSaas/internal/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assetUniverse() []MatchTarget {
	return []MatchTarget{
		{ID: "a1", Name: "ICICI Prudential Bluechip Fund - Direct Plan - Growth"},
		{ID: "a2", Name: "ICICI Prudential Bluechip Fund - Regular Plan - Growth"},
		{ID: "a3", Name: "HDFC Flexi Cap Fund - Direct Plan - Growth"},
		{ID: "a4", Name: "Parag Parikh Flexi Cap Fund - Direct - Growth"},
		{ID: "a5", Name: "SBI Small Cap Fund - Regular Plan - IDCW"},
	}
}

func TestMatchExactNameWins(t *testing.T) {
	m := NewMatcher(nil)
	got := m.Match("ICICI Prudential Bluechip Fund - Direct Plan - Growth", assetUniverse())
	require.NotEmpty(t, got)
	assert.Equal(t, "a1", got[0].TargetID)
	assert.InDelta(t, 1.0, got[0].Components.Sequence, 1e-9)
	assert.InDelta(t, 1.0, got[0].Components.TokenSet, 1e-9)
	assert.InDelta(t, 1.0, got[0].Components.Containment, 1e-9)
	assert.InDelta(t, 1.0, got[0].Components.PlanBonus, 1e-9)
}

func TestMatchIssuerNarrowing(t *testing.T) {
	m := NewMatcher(nil)
	got := m.Match("ICICI PRUDENTIAL BLUECHIP FUND", assetUniverse())
	require.Len(t, got, 2)
	for _, c := range got {
		assert.Contains(t, c.TargetName, "ICICI Prudential")
	}
}

func TestMatchIssuerFallbackWhenNarrowingEmpties(t *testing.T) {
	// Query names an issuer absent from the universe: narrowing would
	// produce zero candidates, so the full universe is scored instead.
	m := NewMatcher(nil)
	got := m.Match("Kotak Emerging Equity Fund", assetUniverse())
	assert.NotEmpty(t, got)
}

func TestMatchPlanTypeFilter(t *testing.T) {
	m := NewMatcher(nil)
	got := m.Match("ICICI Prudential Bluechip Fund Direct Growth", assetUniverse())
	require.NotEmpty(t, got)
	assert.Equal(t, "a1", got[0].TargetID)

	got = m.Match("ICICI Prudential Bluechip Fund Regular Growth", assetUniverse())
	require.NotEmpty(t, got)
	assert.Equal(t, "a2", got[0].TargetID)
}

func TestMatchPlanFilterNeverEmpties(t *testing.T) {
	universe := []MatchTarget{
		{ID: "r1", Name: "Axis Bluechip Fund - Regular Plan - Growth"},
	}
	m := NewMatcher(nil)
	got := m.Match("Axis Bluechip Fund - Direct Plan - Growth", universe)
	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0].TargetID)
}

func TestMatchTopK(t *testing.T) {
	cfg := DefaultMatcherConfig()
	cfg.TopK = 2
	m := NewMatcher(cfg)
	got := m.Match("Flexi Cap Fund Direct Growth", assetUniverse())
	assert.Len(t, got, 2)
}

func TestMatchScoresDescend(t *testing.T) {
	m := NewMatcher(nil)
	got := m.Match("Parag Parikh Flexi Cap Fund", assetUniverse())
	require.NotEmpty(t, got)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
}

func TestMatchEmptyInputs(t *testing.T) {
	m := NewMatcher(nil)
	assert.Nil(t, m.Match("", assetUniverse()))
	assert.Nil(t, m.Match("  ", assetUniverse()))
	assert.Nil(t, m.Match("Some Fund", nil))
}

func TestMatchIsPure(t *testing.T) {
	m := NewMatcher(nil)
	universe := assetUniverse()
	first := m.Match("ICICI Prudential Bluechip Fund", universe)
	second := m.Match("ICICI Prudential Bluechip Fund", universe)
	assert.Equal(t, first, second)
	assert.Equal(t, assetUniverse(), universe)
}

func TestIssuerForFundName(t *testing.T) {
	cases := []struct {
		name   string
		issuer string
		ok     bool
	}{
		{"ICICI Prudential Bluechip Fund", "ICICI Prudential Mutual Fund", true},
		{"Parag Parikh Flexi Cap Fund", "PPFAS Mutual Fund", true},
		{"Aditya Birla Sun Life Frontline Equity", "Aditya Birla Sun Life Mutual Fund", true},
		{"ABSL Frontline Equity", "Aditya Birla Sun Life Mutual Fund", true},
		{"Some Unbranded Fund", "", false},
	}
	for _, c := range cases {
		issuer, ok := IssuerForFundName(c.name)
		assert.Equal(t, c.ok, ok, c.name)
		assert.Equal(t, c.issuer, issuer, c.name)
	}
}

func TestCanonicalName(t *testing.T) {
	assert.Equal(t, "ICICI PRU BLUECHIP", canonicalName("ICICI Pru. Bluechip"))
	assert.Equal(t, "HDFC TOP 100 FUND", canonicalName("  HDFC Top-100  (Fund) "))
	assert.Equal(t, "", canonicalName("---"))
}

func TestSequenceSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, sequenceSimilarity("ABC", "ABC"), 1e-9)
	assert.InDelta(t, 0.0, sequenceSimilarity("", "ABC"), 1e-9)
	assert.Greater(t,
		sequenceSimilarity("BLUECHIP FUND", "BLUECHIP EQUITY FUND"),
		sequenceSimilarity("BLUECHIP FUND", "SMALL CAP FUND"))
}

func TestTokenContainmentIgnoresStopwords(t *testing.T) {
	q := nameTokens(canonicalName("Bluechip Mutual Fund"))
	assert.InDelta(t, 1.0, tokenContainment(q, "ICICI PRUDENTIAL BLUECHIP"), 1e-9)
	assert.InDelta(t, 0.0, tokenContainment(q, "SMALL CAP"), 1e-9)
}

func TestTargetsFromSchemes(t *testing.T) {
	schemes := []registry.SchemeRecord{
		{SchemeCode: 120503, SchemeName: "SBI Bluechip Fund - Direct - Growth", IssuerName: "SBI Mutual Fund"},
	}
	targets := TargetsFromSchemes(schemes)
	require.Len(t, targets, 1)
	assert.Equal(t, "120503", targets[0].ID)
	assert.Equal(t, "SBI Mutual Fund", targets[0].Issuer)
}

func TestMatchRegistryTargetsNarrowOnIssuerField(t *testing.T) {
	universe := []MatchTarget{
		{ID: "1", Name: "Bluechip Fund - Direct - Growth", Issuer: "SBI Mutual Fund"},
		{ID: "2", Name: "Bluechip Fund - Direct - Growth", Issuer: "HDFC Mutual Fund"},
	}
	m := NewMatcher(nil)
	got := m.Match("SBI Bluechip Fund Direct Growth", universe)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].TargetID)
}
