package domain

import (
	"slices"
	"time"
)

// DefaultMinItemsForFeatured is the featuring threshold used when none is configured.
const DefaultMinItemsForFeatured = 5

// ItemKind distinguishes the catalog items counted by category metrics.
type ItemKind string

const (
	ItemKindProduct ItemKind = "product"
	ItemKindAuction ItemKind = "auction"
)

// Valid reports whether the kind is one the metrics know how to count.
func (k ItemKind) Valid() bool {
	return k == ItemKindProduct || k == ItemKindAuction
}

// Category is a node of the catalog taxonomy.
type Category struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Slug             string    `json:"slug"`
	Tier             int       `json:"tier"`
	ParentIDs        []string  `json:"parent_ids"`
	RootID           string    `json:"root_id"`
	ChildrenIDs      []string  `json:"children_ids"`
	IsLeaf           bool      `json:"is_leaf"`
	IsActive         bool      `json:"is_active"`
	IsFeatured       bool      `json:"is_featured"`
	FeaturedPriority int       `json:"featured_priority"`
	Order            int       `json:"order"`
	Metrics          Metrics   `json:"metrics"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewCategory returns a fresh leaf with zeroed metrics placed at the given hierarchy position.
func NewCategory(id, name, slug string, h Hierarchy, now time.Time) *Category {
	c := &Category{
		ID:          id,
		Name:        name,
		Slug:        slug,
		ChildrenIDs: []string{},
		IsLeaf:      true,
		IsActive:    true,
		Metrics:     Metrics{ProductIDs: []string{}},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	c.SetHierarchy(h)
	return c
}

// ParentID returns the immediate parent id, or "" for a root.
func (c *Category) ParentID() string {
	if c == nil || len(c.ParentIDs) == 0 {
		return ""
	}
	return c.ParentIDs[len(c.ParentIDs)-1]
}

// IsRoot reports whether the category sits at tier 0.
func (c *Category) IsRoot() bool {
	return c != nil && c.Tier == 0
}

// Hierarchy returns the position fields of the category.
func (c *Category) Hierarchy() Hierarchy {
	return Hierarchy{
		Tier:      c.Tier,
		ParentIDs: slices.Clone(c.ParentIDs),
		RootID:    c.RootID,
	}
}

// SetHierarchy replaces the position fields.
func (c *Category) SetHierarchy(h Hierarchy) {
	c.Tier = h.Tier
	c.ParentIDs = slices.Clone(h.ParentIDs)
	if c.ParentIDs == nil {
		c.ParentIDs = []string{}
	}
	c.RootID = h.RootID
}

// AddChild inserts a child id if absent and marks the category as a branch.
func (c *Category) AddChild(childID string) {
	if !slices.Contains(c.ChildrenIDs, childID) {
		c.ChildrenIDs = append(c.ChildrenIDs, childID)
	}
	c.IsLeaf = false
}

// RemoveChild drops a child id; the category becomes a leaf once no children remain.
func (c *Category) RemoveChild(childID string) {
	c.ChildrenIDs = slices.DeleteFunc(c.ChildrenIDs, func(id string) bool { return id == childID })
	c.IsLeaf = len(c.ChildrenIDs) == 0
}

// DemoteIfBelow clears the featured flag when the total no longer reaches the threshold.
func (c *Category) DemoteIfBelow(minItems int) {
	if c.IsFeatured && !CanBeFeatured(c, minItems) {
		c.IsFeatured = false
	}
}

// Touch bumps the update timestamp.
func (c *Category) Touch(now time.Time) {
	c.UpdatedAt = now
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
}

// Clone returns a deep copy safe to mutate independently.
func (c *Category) Clone() *Category {
	if c == nil {
		return nil
	}
	out := *c
	out.ParentIDs = slices.Clone(c.ParentIDs)
	out.ChildrenIDs = slices.Clone(c.ChildrenIDs)
	out.Metrics.ProductIDs = slices.Clone(c.Metrics.ProductIDs)
	return &out
}

// CanBeFeatured reports whether the category holds enough items for promotional placement.
func CanBeFeatured(c *Category, minItems int) bool {
	return c != nil && c.Metrics.TotalItemCount >= int64(minItems)
}

// OrderPair assigns a display order to one category.
type OrderPair struct {
	ID    string `json:"id"`
	Order int    `json:"order"`
}
