package repository

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/fastygo/catalog/domain"
)

// SetName identifies a set-valued field of a category record.
type SetName string

const (
	SetChildren SetName = "children_ids"
	SetProducts SetName = "product_ids"
)

// OpKind enumerates the mutations a unit of work can carry.
type OpKind int

const (
	OpInsert OpKind = iota + 1
	OpIncrementOwn
	OpIncrementTotals
	OpAddMember
	OpRemoveMember
	OpSetHierarchy
	OpSetFeatured
	OpSetActive
	OpSetOrder
	OpExpectHierarchy
	OpExpectChildren
	OpExpectTotals
)

func (k OpKind) String() string {
	switch k {
	case OpInsert:
		return "insert"
	case OpIncrementOwn:
		return "increment_own"
	case OpIncrementTotals:
		return "increment_totals"
	case OpAddMember:
		return "add_member"
	case OpRemoveMember:
		return "remove_member"
	case OpSetHierarchy:
		return "set_hierarchy"
	case OpSetFeatured:
		return "set_featured"
	case OpSetActive:
		return "set_active"
	case OpSetOrder:
		return "set_order"
	case OpExpectHierarchy:
		return "expect_hierarchy"
	case OpExpectChildren:
		return "expect_children"
	case OpExpectTotals:
		return "expect_totals"
	default:
		return fmt.Sprintf("op(%d)", int(k))
	}
}

// Op is a single record mutation. Only the fields relevant to Kind are set.
type Op struct {
	Kind       OpKind
	CategoryID string

	Category    *domain.Category
	Delta       domain.MetricsDelta
	MinFeatured int
	Set         SetName
	Member      string
	Hierarchy   domain.Hierarchy
	Flag        bool
	Value       int
	Members     []string
}

// IsGuard reports whether the op only checks the stored record.
func (op Op) IsGuard() bool {
	return op.Kind == OpExpectHierarchy || op.Kind == OpExpectChildren || op.Kind == OpExpectTotals
}

// UnitOfWork collects mutations that must be committed all-or-nothing.
// Guards are checked first; mutations are then applied in the order they
// were added.
type UnitOfWork struct {
	ops []Op
}

// NewUnitOfWork returns an empty unit of work.
func NewUnitOfWork() *UnitOfWork {
	return &UnitOfWork{}
}

// Ops returns the queued operations.
func (u *UnitOfWork) Ops() []Op {
	return u.ops
}

// Guards returns the guard ops ordered by category id. They are checked
// against the stored records before any mutation runs, and row-locking
// backends lock in this order.
func (u *UnitOfWork) Guards() []Op {
	var guards []Op
	for _, op := range u.ops {
		if op.IsGuard() {
			guards = append(guards, op)
		}
	}
	slices.SortStableFunc(guards, func(a, b Op) int { return cmp.Compare(a.CategoryID, b.CategoryID) })
	return guards
}

// Mutations returns the non-guard ops in the order they were added.
func (u *UnitOfWork) Mutations() []Op {
	out := make([]Op, 0, len(u.ops))
	for _, op := range u.ops {
		if !op.IsGuard() {
			out = append(out, op)
		}
	}
	return out
}

// Len returns the number of queued operations.
func (u *UnitOfWork) Len() int {
	return len(u.ops)
}

func (u *UnitOfWork) add(op Op) *UnitOfWork {
	u.ops = append(u.ops, op)
	return u
}

// Insert creates a new record; it fails with ErrCategoryExists when the id is taken.
func (u *UnitOfWork) Insert(c *domain.Category) *UnitOfWork {
	return u.add(Op{Kind: OpInsert, CategoryID: c.ID, Category: c.Clone()})
}

// IncrementOwn adds delta to the own counts and totals of a record.
// A featured record whose total drops below minFeatured is demoted.
func (u *UnitOfWork) IncrementOwn(id string, delta domain.MetricsDelta, minFeatured int) *UnitOfWork {
	return u.add(Op{Kind: OpIncrementOwn, CategoryID: id, Delta: delta, MinFeatured: minFeatured})
}

// IncrementTotals adds delta to the totals of a record.
func (u *UnitOfWork) IncrementTotals(id string, delta domain.MetricsDelta, minFeatured int) *UnitOfWork {
	return u.add(Op{Kind: OpIncrementTotals, CategoryID: id, Delta: delta, MinFeatured: minFeatured})
}

// AddMember adds member to a set field. Adding a child also clears is_leaf.
func (u *UnitOfWork) AddMember(id string, set SetName, member string) *UnitOfWork {
	return u.add(Op{Kind: OpAddMember, CategoryID: id, Set: set, Member: member})
}

// RemoveMember removes member from a set field. Removing the last child sets is_leaf.
func (u *UnitOfWork) RemoveMember(id string, set SetName, member string) *UnitOfWork {
	return u.add(Op{Kind: OpRemoveMember, CategoryID: id, Set: set, Member: member})
}

// SetHierarchy replaces tier, ancestor chain and root id.
func (u *UnitOfWork) SetHierarchy(id string, h domain.Hierarchy) *UnitOfWork {
	return u.add(Op{Kind: OpSetHierarchy, CategoryID: id, Hierarchy: h})
}

// SetFeatured sets the featured flag. Featuring is conditional on the stored
// total reaching minFeatured at commit time.
func (u *UnitOfWork) SetFeatured(id string, featured bool, minFeatured int) *UnitOfWork {
	return u.add(Op{Kind: OpSetFeatured, CategoryID: id, Flag: featured, MinFeatured: minFeatured})
}

// SetActive sets the active flag.
func (u *UnitOfWork) SetActive(id string, active bool) *UnitOfWork {
	return u.add(Op{Kind: OpSetActive, CategoryID: id, Flag: active})
}

// SetOrder sets the display order.
func (u *UnitOfWork) SetOrder(id string, order int) *UnitOfWork {
	return u.add(Op{Kind: OpSetOrder, CategoryID: id, Value: order})
}

// ExpectHierarchy fails the commit with ErrConcurrentChange unless the stored
// ancestor chain of id still equals parentIDs.
func (u *UnitOfWork) ExpectHierarchy(id string, parentIDs []string) *UnitOfWork {
	return u.add(Op{Kind: OpExpectHierarchy, CategoryID: id, Members: slices.Clone(parentIDs)})
}

// ExpectChildren fails the commit unless the stored children of id are
// exactly childIDs, in any order.
func (u *UnitOfWork) ExpectChildren(id string, childIDs []string) *UnitOfWork {
	return u.add(Op{Kind: OpExpectChildren, CategoryID: id, Members: slices.Clone(childIDs)})
}

// ExpectTotals fails the commit unless the stored subtree totals of id equal totals.
func (u *UnitOfWork) ExpectTotals(id string, totals domain.MetricsDelta) *UnitOfWork {
	return u.add(Op{Kind: OpExpectTotals, CategoryID: id, Delta: totals})
}

// Check evaluates a guard op against the stored record.
func (op Op) Check(c *domain.Category) error {
	if c == nil {
		return domain.CategoryNotFound(op.CategoryID)
	}
	var ok bool
	switch op.Kind {
	case OpExpectHierarchy:
		ok = slices.Equal(c.ParentIDs, op.Members)
	case OpExpectChildren:
		ok = SameMembers(c.ChildrenIDs, op.Members)
	case OpExpectTotals:
		ok = c.Metrics.Totals() == op.Delta
	default:
		return fmt.Errorf("%s is not a guard", op.Kind)
	}
	if !ok {
		return domain.WrapError(domain.ErrCodeConflict, fmt.Sprintf("%s %s", op.Kind, op.CategoryID), domain.ErrConcurrentChange)
	}
	return nil
}

// SameMembers compares two id lists as sets.
func SameMembers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa, sb := slices.Clone(a), slices.Clone(b)
	slices.Sort(sa)
	slices.Sort(sb)
	return slices.Equal(sa, sb)
}

// Apply mutates an in-memory record. Backends that hold whole records (memory,
// bolt) use it inside their own transaction; c is nil only for OpInsert.
func (op Op) Apply(c *domain.Category, now time.Time) (*domain.Category, error) {
	if op.Kind == OpInsert {
		if c != nil {
			return nil, domain.ErrCategoryExists
		}
		created := op.Category.Clone()
		created.Touch(now)
		return created, nil
	}
	if op.IsGuard() {
		if err := op.Check(c); err != nil {
			return nil, err
		}
		return c, nil
	}
	if c == nil {
		return nil, domain.CategoryNotFound(op.CategoryID)
	}

	switch op.Kind {
	case OpIncrementOwn:
		c.Metrics.ApplyOwn(op.Delta, now)
		c.DemoteIfBelow(op.MinFeatured)
	case OpIncrementTotals:
		c.Metrics.ApplyTotal(op.Delta, now)
		c.DemoteIfBelow(op.MinFeatured)
	case OpAddMember:
		switch op.Set {
		case SetChildren:
			c.AddChild(op.Member)
		case SetProducts:
			c.Metrics.AddProduct(op.Member)
			c.Metrics.LastUpdated = now
		default:
			return nil, fmt.Errorf("unknown set %q", op.Set)
		}
	case OpRemoveMember:
		switch op.Set {
		case SetChildren:
			c.RemoveChild(op.Member)
		case SetProducts:
			c.Metrics.RemoveProduct(op.Member)
			c.Metrics.LastUpdated = now
		default:
			return nil, fmt.Errorf("unknown set %q", op.Set)
		}
	case OpSetHierarchy:
		c.SetHierarchy(op.Hierarchy)
	case OpSetFeatured:
		if op.Flag && !domain.CanBeFeatured(c, op.MinFeatured) {
			return nil, domain.ErrNotFeaturable
		}
		c.IsFeatured = op.Flag
	case OpSetActive:
		c.IsActive = op.Flag
	case OpSetOrder:
		c.Order = op.Value
	default:
		return nil, fmt.Errorf("unsupported operation %s", op.Kind)
	}
	c.Touch(now)
	return c, nil
}
