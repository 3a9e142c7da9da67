package permissions

import (
	"math"
	"sort"
)

// Predicate selects which permissions participate in a tree build.
type Predicate func(Permission) bool

// All admits every permission. Used for the full resource tree.
func All(Permission) bool { return true }

// VisibleMenus admits enabled, visible MENU permissions. Used for the
// routing menu shown to principals.
func VisibleMenus(p Permission) bool {
	return p.Kind == KindMenu && p.Enable && p.Show
}

// AnyMenus admits MENU permissions regardless of state. Used by
// management UIs that must show disabled entries.
func AnyMenus(p Permission) bool {
	return p.Kind == KindMenu
}

// Build assembles a forest from a flat parent-pointer set in two passes:
// first every admitted permission gets a node, then each node is linked
// under its parent. A node whose parent is not in the admitted set is an
// orphan and is dropped silently, not promoted to root. Roots and
// children are ordered by ascending Order with nil last.
func Build(perms []Permission, pred Predicate) []*Node {
	if pred == nil {
		pred = All
	}

	admitted := make([]Permission, 0, len(perms))
	for _, p := range perms {
		if pred(p) {
			admitted = append(admitted, p)
		}
	}
	sort.SliceStable(admitted, func(i, j int) bool {
		return orderWeight(admitted[i]) < orderWeight(admitted[j])
	})

	nodes := make(map[int64]*Node, len(admitted))
	for _, p := range admitted {
		nodes[p.ID] = &Node{Permission: p, Children: []*Node{}}
	}

	roots := make([]*Node, 0)
	for _, p := range admitted {
		node := nodes[p.ID]
		if p.ParentID == nil {
			roots = append(roots, node)
			continue
		}
		parent, ok := nodes[*p.ParentID]
		if !ok {
			continue
		}
		parent.Children = append(parent.Children, node)
	}
	return roots
}

// Filter prunes a forest to nodes whose own id is granted, recursing into
// children and preserving order. Inclusion is decided per node: a granted
// child under an ungranted parent disappears with the parent's subtree.
func Filter(forest []*Node, granted map[int64]struct{}) []*Node {
	result := make([]*Node, 0, len(forest))
	for _, node := range forest {
		if _, ok := granted[node.ID]; !ok {
			continue
		}
		copied := &Node{Permission: node.Permission, Children: []*Node{}}
		if len(node.Children) > 0 {
			copied.Children = Filter(node.Children, granted)
		}
		result = append(result, copied)
	}
	return result
}

// CountNodes returns the total node count across the forest, nested
// children included.
func CountNodes(forest []*Node) int {
	total := 0
	for _, node := range forest {
		total += 1 + CountNodes(node.Children)
	}
	return total
}

func orderWeight(p Permission) int {
	if p.Order == nil {
		return math.MaxInt
	}
	return *p.Order
}
