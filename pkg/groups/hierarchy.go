// Package groups models the parent/child relationships between groups.
package groups

import (
	"errors"
	"fmt"

	"github.com/dominikbraun/graph"
	"github.com/google/uuid"

	"github.com/mhrivnak/orderflow/pkg/database/models"
	"github.com/mhrivnak/orderflow/pkg/errdef"
)

// Hierarchy is a directed graph with an edge from every group to its parent.
type Hierarchy struct {
	graph graph.Graph[string, models.Group]
	names map[uuid.UUID]string
}

// NewHierarchy builds the hierarchy of groups. A parent chain that loops back on itself is
// rejected with a bad request error.
func NewHierarchy(groups []models.Group) (*Hierarchy, error) {
	g := graph.New(func(group models.Group) string {
		return group.Name
	}, graph.Directed(), graph.PreventCycles())

	names := make(map[uuid.UUID]string, len(groups))
	for _, group := range groups {
		if err := g.AddVertex(group); err != nil {
			return nil, fmt.Errorf("failed adding vertex for group %q: %v", group.Name, err)
		}
		names[group.ID] = group.Name
	}

	for _, group := range groups {
		if group.ParentID == nil {
			continue
		}
		parent, ok := names[*group.ParentID]
		if !ok {
			return nil, errdef.NewNotFound("parent %s of group %q not found", group.ParentID, group.Name)
		}
		if parent == group.Name {
			return nil, errdef.NewBadRequest("group %q cannot be its own parent", group.Name)
		}
		if err := g.AddEdge(group.Name, parent); err != nil {
			if errors.Is(err, graph.ErrEdgeCreatesCycle) {
				return nil, errdef.NewBadRequest("making %q the parent of %q creates a cycle", parent, group.Name)
			}
			return nil, fmt.Errorf("failed adding edge from group %q to %q: %v", group.Name, parent, err)
		}
	}

	return &Hierarchy{graph: g, names: names}, nil
}

// ValidateParent checks that giving child the parent would keep the hierarchy acyclic.
func ValidateParent(all []models.Group, child, parent uuid.UUID) error {
	proposed := make([]models.Group, len(all))
	copy(proposed, all)
	found := false
	for i := range proposed {
		if proposed[i].ID == child {
			p := parent
			proposed[i].ParentID = &p
			found = true
		}
	}
	if !found {
		return errdef.NewNotFound("group %s not found", child)
	}
	_, err := NewHierarchy(proposed)
	return err
}

// Lineage returns name followed by its ancestors, nearest first.
func (h *Hierarchy) Lineage(name string) ([]string, error) {
	if _, err := h.graph.Vertex(name); err != nil {
		return nil, errdef.NewNotFound("group %q not found", name)
	}

	var lineage []string
	err := graph.BFS(h.graph, name, func(n string) bool {
		lineage = append(lineage, n)
		return false
	})
	if err != nil {
		return nil, err
	}
	return lineage, nil
}

// Ancestors returns the parents of name, nearest first.
func (h *Hierarchy) Ancestors(name string) ([]string, error) {
	lineage, err := h.Lineage(name)
	if err != nil {
		return nil, err
	}
	return lineage[1:], nil
}

// Descendants returns every group below name, breadth first.
func (h *Hierarchy) Descendants(name string) ([]string, error) {
	if _, err := h.graph.Vertex(name); err != nil {
		return nil, errdef.NewNotFound("group %q not found", name)
	}
	children, err := h.graph.PredecessorMap()
	if err != nil {
		return nil, err
	}

	var result []string
	queue := []string{name}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for child := range children[current] {
			result = append(result, child)
			queue = append(queue, child)
		}
	}
	return result, nil
}

// Group returns the group with name.
func (h *Hierarchy) Group(name string) (models.Group, bool) {
	group, err := h.graph.Vertex(name)
	return group, err == nil
}
