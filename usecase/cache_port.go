package usecase

import (
	"context"

	"github.com/fastygo/catalog/domain"
)

// TreeCache stores built category trees. Entries are tagged with the cache
// version observed before the tree was built, so a tree computed from data
// that was invalidated meanwhile is never served.
type TreeCache interface {
	Load(ctx context.Context, rootID string) (tree []*domain.TreeNode, version int64, found bool, err error)
	Store(ctx context.Context, rootID string, version int64, tree []*domain.TreeNode) error
	Invalidate(ctx context.Context) error
}
