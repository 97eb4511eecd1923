package domain

import (
	"cmp"
	"slices"
)

// TreeNode is a category nested with its children for display.
type TreeNode struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Slug       string      `json:"slug"`
	Tier       int         `json:"tier"`
	IsActive   bool        `json:"is_active"`
	IsFeatured bool        `json:"is_featured"`
	Order      int         `json:"order"`
	Metrics    Metrics     `json:"metrics"`
	Children   []*TreeNode `json:"children"`
}

// BuildTree nests a flat list of categories. When rootID is set only that
// root's tree is returned. Nodes whose parent is missing from the input are
// returned at the top level; siblings are ordered by Order, then Name.
func BuildTree(categories []Category, rootID string) []*TreeNode {
	nodes := make(map[string]*TreeNode, len(categories))
	scoped := make([]Category, 0, len(categories))
	for _, c := range categories {
		if rootID != "" && c.RootID != rootID {
			continue
		}
		scoped = append(scoped, c)
		nodes[c.ID] = &TreeNode{
			ID:         c.ID,
			Name:       c.Name,
			Slug:       c.Slug,
			Tier:       c.Tier,
			IsActive:   c.IsActive,
			IsFeatured: c.IsFeatured,
			Order:      c.Order,
			Metrics:    c.Metrics,
			Children:   []*TreeNode{},
		}
	}

	roots := make([]*TreeNode, 0)
	for _, c := range scoped {
		node := nodes[c.ID]
		if parent, ok := nodes[c.ParentID()]; ok && parent != node {
			parent.Children = append(parent.Children, node)
			continue
		}
		roots = append(roots, node)
	}

	sortNodes(roots)
	return roots
}

func sortNodes(nodes []*TreeNode) {
	slices.SortFunc(nodes, func(a, b *TreeNode) int {
		if c := cmp.Compare(a.Order, b.Order); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	for _, n := range nodes {
		sortNodes(n.Children)
	}
}
