package spawner

import (
	"sync"

	"github.com/mbenham/taskforge/pkg/models"
)

// Arena owns every AgentNode created during a spawn hierarchy. Nodes
// reference each other by ID only; the arena is the single place a node
// pointer lives, so parent and child records never hold cross-references
// that could disagree.
type Arena struct {
	mu    sync.RWMutex
	nodes map[string]*models.AgentNode
	order []string
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{nodes: make(map[string]*models.AgentNode)}
}

// Add registers a node. Later adds with the same ID overwrite, which
// never happens with generated IDs.
func (a *Arena) Add(node *models.AgentNode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.nodes[node.ID]; !exists {
		a.order = append(a.order, node.ID)
	}
	a.nodes[node.ID] = node
}

// Node returns the node with the given ID, or nil.
func (a *Arena) Node(id string) *models.AgentNode {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.nodes[id]
}

// Children returns a parent's children in spawn order.
func (a *Arena) Children(parentID string) []*models.AgentNode {
	a.mu.RLock()
	defer a.mu.RUnlock()
	parent := a.nodes[parentID]
	if parent == nil {
		return nil
	}
	children := make([]*models.AgentNode, 0, len(parent.ChildIDs))
	for _, id := range parent.ChildIDs {
		if child := a.nodes[id]; child != nil {
			children = append(children, child)
		}
	}
	return children
}

// Nodes returns every node in creation order.
func (a *Arena) Nodes() []*models.AgentNode {
	a.mu.RLock()
	defer a.mu.RUnlock()
	nodes := make([]*models.AgentNode, 0, len(a.order))
	for _, id := range a.order {
		nodes = append(nodes, a.nodes[id])
	}
	return nodes
}

// Size returns the number of nodes in the arena.
func (a *Arena) Size() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.nodes)
}
