package tree

import (
	"github.com/arcanist/spelltree/pkg/spelltree/spell"
)

// TreeNode is one placed item in an output tree. Children and
// prerequisites are kept as mutual inverses by Link/Unlink; nothing else
// should touch them.
type TreeNode struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	School        string   `json:"category"`
	Tier          string   `json:"tier"`
	Theme         string   `json:"theme,omitempty"`
	Depth         int      `json:"depth"`
	IsRoot        bool     `json:"isRoot,omitempty"`
	Section       string   `json:"section,omitempty"`
	Children      []string `json:"children"`
	Prerequisites []string `json:"prerequisites"`

	item *spell.Item
}

// NodeFromItem creates an unlinked node for an item.
func NodeFromItem(it *spell.Item) *TreeNode {
	return &TreeNode{
		ID:     it.ID,
		Name:   it.Name,
		School: it.School,
		Tier:   it.Tier,
		item:   it,
	}
}

// Item returns the input record the node was built from, or nil for
// nodes rebuilt from serialized output.
func (n *TreeNode) Item() *spell.Item { return n.item }

// TierIndex returns the node's tier ordinal.
func (n *TreeNode) TierIndex() int { return spell.TierIndex(n.Tier) }

func (n *TreeNode) addChild(id string) {
	for _, c := range n.Children {
		if c == id {
			return
		}
	}
	n.Children = append(n.Children, id)
}

func (n *TreeNode) addPrerequisite(id string) {
	for _, p := range n.Prerequisites {
		if p == id {
			return
		}
	}
	n.Prerequisites = append(n.Prerequisites, id)
}

func (n *TreeNode) removeChild(id string) {
	out := n.Children[:0]
	for _, c := range n.Children {
		if c != id {
			out = append(out, c)
		}
	}
	n.Children = out
}

func (n *TreeNode) removePrerequisite(id string) {
	out := n.Prerequisites[:0]
	for _, p := range n.Prerequisites {
		if p != id {
			out = append(out, p)
		}
	}
	n.Prerequisites = out
}

// Link makes parent->child a structural edge and sets the child's depth.
func Link(parent, child *TreeNode) {
	parent.addChild(child.ID)
	child.addPrerequisite(parent.ID)
	child.Depth = parent.Depth + 1
}

// Unlink removes the parent->child edge on both sides.
func Unlink(parent, child *TreeNode) {
	parent.removeChild(child.ID)
	child.removePrerequisite(parent.ID)
}

// AddConvergence adds an extra prerequisite edge without reparenting:
// the child's depth is left alone.
func AddConvergence(source, target *TreeNode) {
	source.addChild(target.ID)
	target.addPrerequisite(source.ID)
}

// Arena holds one category's nodes with a stable insertion order so that
// iteration (and therefore every seeded build) is deterministic.
type Arena struct {
	nodes map[string]*TreeNode
	order []string
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{nodes: make(map[string]*TreeNode)}
}

// Add inserts a node; re-adding an id is a no-op.
func (a *Arena) Add(n *TreeNode) {
	if _, ok := a.nodes[n.ID]; ok {
		return
	}
	a.nodes[n.ID] = n
	a.order = append(a.order, n.ID)
}

// Get returns the node with the given id, or nil.
func (a *Arena) Get(id string) *TreeNode { return a.nodes[id] }

// Len returns the node count.
func (a *Arena) Len() int { return len(a.order) }

// IDs returns ids in insertion order. The slice is shared; do not mutate.
func (a *Arena) IDs() []string { return a.order }

// Nodes returns all nodes in insertion order.
func (a *Arena) Nodes() []*TreeNode {
	out := make([]*TreeNode, len(a.order))
	for i, id := range a.order {
		out[i] = a.nodes[id]
	}
	return out
}

// AssignSections tags each node root/trunk/branch by relative depth:
// the shallowest fifth is root territory, up to 70% is trunk, the rest
// branch.
func (a *Arena) AssignSections() {
	maxDepth := 0
	for _, n := range a.Nodes() {
		if n.Depth > maxDepth {
			maxDepth = n.Depth
		}
	}
	for _, n := range a.Nodes() {
		switch {
		case maxDepth == 0 || float64(n.Depth) <= 0.2*float64(maxDepth):
			n.Section = "root"
		case float64(n.Depth) <= 0.7*float64(maxDepth):
			n.Section = "trunk"
		default:
			n.Section = "branch"
		}
	}
}

// RecomputeDepths walks structural edges breadth-first from the root and
// rewrites every node's depth as its shortest prerequisite distance.
func (a *Arena) RecomputeDepths(rootID string) {
	root := a.Get(rootID)
	if root == nil {
		return
	}
	root.Depth = 0

	visited := map[string]struct{}{rootID: {}}
	queue := []string{rootID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		n := a.Get(id)
		for _, childID := range n.Children {
			if _, ok := visited[childID]; ok {
				continue
			}
			child := a.Get(childID)
			if child == nil {
				continue
			}
			visited[childID] = struct{}{}
			child.Depth = n.Depth + 1
			queue = append(queue, childID)
		}
	}
}
