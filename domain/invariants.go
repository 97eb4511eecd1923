package domain

import (
	"fmt"
	"slices"
)

// Violation describes one broken structural or aggregation rule.
type Violation struct {
	CategoryID string `json:"category_id"`
	Rule       string `json:"rule"`
	Detail     string `json:"detail"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s [%s]: %s", v.CategoryID, v.Rule, v.Detail)
}

// Rule names reported by CheckInvariants.
const (
	RuleTier     = "tier"
	RuleRoot     = "root"
	RuleLinks    = "links"
	RuleLeaf     = "leaf"
	RuleCycle    = "cycle"
	RuleTotals   = "totals"
	RuleFeatured = "featured"
)

// CheckInvariants validates a complete listing. It performs a full traversal
// and is meant for tests and audits, not for the write path.
func CheckInvariants(categories []Category, minItems int) []Violation {
	byID := make(map[string]*Category, len(categories))
	for i := range categories {
		byID[categories[i].ID] = &categories[i]
	}

	expected := make(map[string]MetricsDelta, len(categories))
	var out []Violation
	report := func(id, rule, format string, args ...any) {
		out = append(out, Violation{CategoryID: id, Rule: rule, Detail: fmt.Sprintf(format, args...)})
	}

	for i := range categories {
		c := &categories[i]

		if c.Tier != len(c.ParentIDs) {
			report(c.ID, RuleTier, "tier %d but %d ancestors", c.Tier, len(c.ParentIDs))
		}
		wantRoot := c.ID
		if len(c.ParentIDs) > 0 {
			wantRoot = c.ParentIDs[0]
		}
		if c.RootID != wantRoot {
			report(c.ID, RuleRoot, "root %q, want %q", c.RootID, wantRoot)
		}
		if c.IsLeaf != (len(c.ChildrenIDs) == 0) {
			report(c.ID, RuleLeaf, "is_leaf=%t with %d children", c.IsLeaf, len(c.ChildrenIDs))
		}
		if slices.Contains(c.ParentIDs, c.ID) || onParentCycle(c, byID) {
			report(c.ID, RuleCycle, "category is its own ancestor")
		}

		if parentID := c.ParentID(); parentID != "" {
			parent, ok := byID[parentID]
			switch {
			case !ok:
				report(c.ID, RuleLinks, "parent %q missing", parentID)
			case !slices.Contains(parent.ChildrenIDs, c.ID):
				report(c.ID, RuleLinks, "parent %q does not list it as a child", parentID)
			case !slices.Equal(c.ParentIDs[:len(c.ParentIDs)-1], parent.ParentIDs):
				report(c.ID, RuleLinks, "ancestor chain diverges from parent %q", parentID)
			}
		}
		for _, childID := range c.ChildrenIDs {
			child, ok := byID[childID]
			if !ok {
				report(c.ID, RuleLinks, "child %q missing", childID)
				continue
			}
			if child.ParentID() != c.ID {
				report(c.ID, RuleLinks, "child %q points to parent %q", childID, child.ParentID())
			}
		}

		if c.Metrics.TotalItemCount != c.Metrics.TotalProductCount+c.Metrics.TotalAuctionCount {
			report(c.ID, RuleTotals, "total items %d != products %d + auctions %d",
				c.Metrics.TotalItemCount, c.Metrics.TotalProductCount, c.Metrics.TotalAuctionCount)
		}
		if c.IsFeatured && !CanBeFeatured(c, minItems) {
			report(c.ID, RuleFeatured, "featured with %d items, threshold %d", c.Metrics.TotalItemCount, minItems)
		}

		own := MetricsDelta{Products: c.Metrics.ProductCount, Auctions: c.Metrics.AuctionCount}
		for _, id := range append(slices.Clone(c.ParentIDs), c.ID) {
			sum := expected[id]
			sum.Products += own.Products
			sum.Auctions += own.Auctions
			expected[id] = sum
		}
	}

	for i := range categories {
		c := &categories[i]
		want := expected[c.ID]
		if c.Metrics.TotalProductCount != want.Products || c.Metrics.TotalAuctionCount != want.Auctions {
			report(c.ID, RuleTotals, "totals products=%d auctions=%d, subtree sums products=%d auctions=%d",
				c.Metrics.TotalProductCount, c.Metrics.TotalAuctionCount, want.Products, want.Auctions)
		}
	}
	return out
}

// onParentCycle follows parent links from c and reports whether they lead
// back to c. Cycles that do not pass through c are left to their members.
func onParentCycle(c *Category, byID map[string]*Category) bool {
	seen := make(map[string]bool)
	for cur := c; cur != nil; {
		parentID := cur.ParentID()
		switch {
		case parentID == "":
			return false
		case parentID == c.ID:
			return true
		case seen[parentID]:
			return false
		}
		seen[parentID] = true
		cur = byID[parentID]
	}
	return false
}
