package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func consistentForest() []Category {
	now := time.Unix(0, 0)
	a := node("a", nil)
	b := node("b", a)
	a.AddChild("b")
	b.Metrics.ApplyOwn(MetricsDelta{Products: 3, Auctions: 2}, now)
	a.Metrics.ApplyTotal(MetricsDelta{Products: 3, Auctions: 2}, now)
	a.IsFeatured = true
	return []Category{*a, *b}
}

func rules(vs []Violation) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.Rule)
	}
	return out
}

func TestCheckInvariantsAcceptsConsistentForest(t *testing.T) {
	assert.Empty(t, CheckInvariants(consistentForest(), 5))
}

func TestCheckInvariantsDetectsEachRule(t *testing.T) {
	cases := map[string]struct {
		mutate func(list []Category)
		rule   string
	}{
		"tier":     {func(l []Category) { l[1].Tier = 3 }, RuleTier},
		"root":     {func(l []Category) { l[1].RootID = "b" }, RuleRoot},
		"leaf":     {func(l []Category) { l[0].IsLeaf = true }, RuleLeaf},
		"links":    {func(l []Category) { l[0].ChildrenIDs = []string{}; l[0].IsLeaf = true }, RuleLinks},
		"cycle":    {func(l []Category) { l[1].ParentIDs = []string{"b"}; l[1].RootID = "b" }, RuleCycle},
		"totals":   {func(l []Category) { l[0].Metrics.TotalProductCount++ }, RuleTotals},
		"featured": {func(l []Category) { l[1].IsFeatured = true; l[1].Metrics.ApplyOwn(MetricsDelta{Products: -1}, time.Now()) }, RuleFeatured},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			list := consistentForest()
			tc.mutate(list)
			vs := CheckInvariants(list, 5)
			require.NotEmpty(t, vs)
			assert.Contains(t, rules(vs), tc.rule)
		})
	}
}

func TestCheckInvariantsFindsCycleAcrossCategories(t *testing.T) {
	now := time.Unix(0, 0)
	a := NewCategory("a", "a", "a", Hierarchy{Tier: 1, ParentIDs: []string{"b"}, RootID: "b"}, now)
	b := NewCategory("b", "b", "b", Hierarchy{Tier: 1, ParentIDs: []string{"a"}, RootID: "a"}, now)
	a.AddChild("b")
	b.AddChild("a")

	vs := CheckInvariants([]Category{*a, *b}, 5)
	var cyclic []string
	for _, v := range vs {
		if v.Rule == RuleCycle {
			cyclic = append(cyclic, v.CategoryID)
		}
	}
	assert.ElementsMatch(t, []string{"a", "b"}, cyclic)
}

func TestViolationString(t *testing.T) {
	v := Violation{CategoryID: "a", Rule: RuleLeaf, Detail: "is_leaf=true with 1 children"}
	assert.Equal(t, "a [leaf]: is_leaf=true with 1 children", v.String())
}
