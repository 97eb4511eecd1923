package domain

import (
	"regexp"
	"slices"
	"strings"
)

// Hierarchy is the position of a category in the forest.
type Hierarchy struct {
	Tier      int      `json:"tier"`
	ParentIDs []string `json:"parent_ids"`
	RootID    string   `json:"root_id"`
}

// ComputeHierarchy derives tier, ancestor chain and root id from the (optional) parent.
func ComputeHierarchy(parent *Category, selfID string) Hierarchy {
	if parent == nil {
		return Hierarchy{Tier: 0, ParentIDs: []string{}, RootID: selfID}
	}
	chain := make([]string, 0, len(parent.ParentIDs)+1)
	chain = append(chain, parent.ParentIDs...)
	chain = append(chain, parent.ID)

	rootID := parent.RootID
	if parent.Tier == 0 {
		rootID = parent.ID
	}
	return Hierarchy{Tier: parent.Tier + 1, ParentIDs: chain, RootID: rootID}
}

// IsValidMove reports whether categoryID may be re-parented under newParent.
// An empty newParentID detaches the category to a root and is always allowed.
// The check relies on newParent.ParentIDs being current, which moves keep true
// by cascading hierarchy changes to descendants.
func IsValidMove(categoryID, newParentID string, newParent *Category) bool {
	if newParentID == "" {
		return true
	}
	if newParentID == categoryID {
		return false
	}
	if newParent == nil {
		return true
	}
	return !slices.Contains(newParent.ParentIDs, categoryID)
}

// RebaseHierarchy recomputes the position of a descendant after its ancestor
// movedID was relocated to moved. The part of the chain below movedID is kept.
func RebaseHierarchy(descendant *Category, movedID string, moved Hierarchy) (Hierarchy, bool) {
	idx := slices.Index(descendant.ParentIDs, movedID)
	if idx < 0 {
		return Hierarchy{}, false
	}
	chain := make([]string, 0, len(moved.ParentIDs)+len(descendant.ParentIDs)-idx)
	chain = append(chain, moved.ParentIDs...)
	chain = append(chain, descendant.ParentIDs[idx:]...)

	return Hierarchy{Tier: len(chain), ParentIDs: chain, RootID: chain[0]}, true
}

var (
	slugInvalid = regexp.MustCompile(`[^\p{L}\p{N}\s-]`)
	slugSpaces  = regexp.MustCompile(`[\s-]+`)
)

// Slugify turns a display name into a lowercase, hyphen separated token.
// Letters and digits of any script are kept.
func Slugify(s string) string {
	out := strings.ToLower(strings.TrimSpace(s))
	out = slugInvalid.ReplaceAllString(out, "")
	out = slugSpaces.ReplaceAllString(out, "-")
	return strings.Trim(out, "-")
}

// NewCategoryID derives a stable, readable id from the name, prefixed by the
// parent id so that equal names under different parents do not collide.
// Collisions that remain surface as ErrCategoryExists on insert.
func NewCategoryID(name string, parent *Category) string {
	slug := Slugify(name)
	if parent == nil {
		return slug
	}
	return parent.ID + "-" + slug
}
