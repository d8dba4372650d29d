package graph

import (
	"slices"

	"github.com/JoshuaRamirez/ACS-sub004/internal/domain"
)

// AddGroup makes child a child group of parent.
//
// The edge is rejected with an InvariantViolationError when child is parent
// or when parent is already reachable from child, since either would close a
// cycle. Nothing is modified on rejection.
func (s *Store) AddGroup(parentID, childID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.groups[parentID]
	if !ok {
		return domain.ErrNotFound("group %d not found", parentID)
	}
	if _, ok := s.groups[childID]; !ok {
		return domain.ErrNotFound("group %d not found", childID)
	}
	if parentID == childID {
		return domain.ErrInvariantViolation("group %d cannot contain itself", parentID)
	}
	if slices.Contains(parent.children, childID) {
		return domain.ErrConflict("group %d already contains group %d", parentID, childID)
	}
	if s.reachableLocked(childID, parentID) {
		return domain.ErrInvariantViolation("adding group %d to group %d would create a cycle", childID, parentID)
	}

	parent.children = append(parent.children, childID)
	return nil
}

// RemoveGroup deletes the parent → child edge.
func (s *Store) RemoveGroup(parentID, childID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.groups[parentID]
	if !ok {
		return domain.ErrNotFound("group %d not found", parentID)
	}
	idx := slices.Index(parent.children, childID)
	if idx < 0 {
		return domain.ErrNotFound("group %d does not contain group %d", parentID, childID)
	}
	parent.children = slices.Delete(parent.children, idx, idx+1)
	return nil
}

// IsDescendant reports whether target is reachable from root by following
// child edges. A group is not its own descendant.
func (s *Store) IsDescendant(rootID, targetID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rootID == targetID {
		return false
	}
	return s.reachableLocked(rootID, targetID)
}

// reachableLocked runs an iterative depth-first search over child edges from
// "from" and reports whether "to" is visited. Cost is bounded by the edges
// reachable from "from".
func (s *Store) reachableLocked(from, to int64) bool {
	visited := map[int64]struct{}{from: {}}
	stack := []int64{from}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if current == to {
			return true
		}
		node, ok := s.groups[current]
		if !ok {
			continue
		}
		for _, child := range node.children {
			if _, seen := visited[child]; seen {
				continue
			}
			visited[child] = struct{}{}
			stack = append(stack, child)
		}
	}
	return false
}

// ancestorsLocked returns every group that contains one of the seed groups,
// directly or transitively, together with the seeds themselves.
func (s *Store) ancestorsLocked(seeds []int64) []int64 {
	parents := make(map[int64][]int64)
	for id, g := range s.groups {
		for _, child := range g.children {
			parents[child] = append(parents[child], id)
		}
	}

	visited := make(map[int64]struct{}, len(seeds))
	queue := make([]int64, 0, len(seeds))
	for _, id := range seeds {
		if _, seen := visited[id]; seen {
			continue
		}
		visited[id] = struct{}{}
		queue = append(queue, id)
	}
	for i := 0; i < len(queue); i++ {
		for _, p := range parents[queue[i]] {
			if _, seen := visited[p]; seen {
				continue
			}
			visited[p] = struct{}{}
			queue = append(queue, p)
		}
	}
	return queue
}
