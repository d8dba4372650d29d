package graph

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoshuaRamirez/ACS-sub004/internal/domain"
)

func newGroups(t *testing.T, s *Store, names ...string) []int64 {
	t.Helper()
	ids := make([]int64, 0, len(names))
	for _, n := range names {
		g, err := s.CreateGroup(n)
		require.NoError(t, err)
		ids = append(ids, g.ID)
	}
	return ids
}

func childrenOf(t *testing.T, s *Store, id int64) []int64 {
	t.Helper()
	g, err := s.Group(id)
	require.NoError(t, err)
	return g.Groups
}

func TestAddGroup_SelfReferenceRejected(t *testing.T) {
	s := NewStore()
	ids := newGroups(t, s, "root", "child", "grandchild")
	require.NoError(t, s.AddGroup(ids[0], ids[1]))
	require.NoError(t, s.AddGroup(ids[1], ids[2]))

	for _, id := range ids {
		err := s.AddGroup(id, id)
		require.Error(t, err)
		var invariant *domain.InvariantViolationError
		assert.ErrorAs(t, err, &invariant)
		assert.NotContains(t, childrenOf(t, s, id), id)
	}
}

func TestAddGroup_CycleRejectedAndGraphUnchanged(t *testing.T) {
	s := NewStore()
	ids := newGroups(t, s, "A", "B", "C")
	a, b, c := ids[0], ids[1], ids[2]

	require.NoError(t, s.AddGroup(a, b))
	require.NoError(t, s.AddGroup(b, c))

	beforeA := childrenOf(t, s, a)
	beforeB := childrenOf(t, s, b)
	beforeC := childrenOf(t, s, c)

	err := s.AddGroup(c, a)
	require.Error(t, err)
	var invariant *domain.InvariantViolationError
	require.ErrorAs(t, err, &invariant)
	assert.Contains(t, err.Error(), "cycle")

	assert.Equal(t, beforeA, childrenOf(t, s, a))
	assert.Equal(t, beforeB, childrenOf(t, s, b))
	assert.Equal(t, beforeC, childrenOf(t, s, c))
}

func TestAddGroup(t *testing.T) {
	tests := []struct {
		name    string
		edges   [][2]int // indexes into the group list, applied in order
		add     [2]int
		errType any
	}{
		{name: "simple_edge", add: [2]int{0, 1}},
		{name: "diamond_is_allowed", edges: [][2]int{{0, 1}, {0, 2}, {1, 3}}, add: [2]int{2, 3}},
		{name: "two_node_cycle", edges: [][2]int{{0, 1}}, add: [2]int{1, 0}, errType: new(*domain.InvariantViolationError)},
		{name: "long_cycle", edges: [][2]int{{0, 1}, {1, 2}, {2, 3}}, add: [2]int{3, 0}, errType: new(*domain.InvariantViolationError)},
		{name: "duplicate_edge", edges: [][2]int{{0, 1}}, add: [2]int{0, 1}, errType: new(*domain.ConflictError)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			ids := newGroups(t, s, "g0", "g1", "g2", "g3")
			for _, e := range tt.edges {
				require.NoError(t, s.AddGroup(ids[e[0]], ids[e[1]]))
			}

			err := s.AddGroup(ids[tt.add[0]], ids[tt.add[1]])
			if tt.errType != nil {
				require.Error(t, err)
				assert.ErrorAs(t, err, tt.errType)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, childrenOf(t, s, ids[tt.add[0]]), ids[tt.add[1]])
		})
	}
}

func TestAddGroup_UnknownGroups(t *testing.T) {
	s := NewStore()
	ids := newGroups(t, s, "only")

	var notFound *domain.NotFoundError
	assert.ErrorAs(t, s.AddGroup(ids[0], 99), &notFound)
	assert.ErrorAs(t, s.AddGroup(99, ids[0]), &notFound)
}

func TestAddGroup_PreservesChildOrder(t *testing.T) {
	s := NewStore()
	ids := newGroups(t, s, "parent", "c1", "c2", "c3")
	require.NoError(t, s.AddGroup(ids[0], ids[3]))
	require.NoError(t, s.AddGroup(ids[0], ids[1]))
	require.NoError(t, s.AddGroup(ids[0], ids[2]))

	assert.Equal(t, []int64{ids[3], ids[1], ids[2]}, childrenOf(t, s, ids[0]))
}

func TestRemoveGroup(t *testing.T) {
	s := NewStore()
	ids := newGroups(t, s, "A", "B")
	require.NoError(t, s.AddGroup(ids[0], ids[1]))

	require.NoError(t, s.RemoveGroup(ids[0], ids[1]))
	assert.Empty(t, childrenOf(t, s, ids[0]))

	var notFound *domain.NotFoundError
	assert.ErrorAs(t, s.RemoveGroup(ids[0], ids[1]), &notFound)

	// Once the edge is gone the reverse edge is legal.
	require.NoError(t, s.AddGroup(ids[1], ids[0]))
}

func TestIsDescendant(t *testing.T) {
	s := NewStore()
	ids := newGroups(t, s, "A", "B", "C", "D")
	require.NoError(t, s.AddGroup(ids[0], ids[1]))
	require.NoError(t, s.AddGroup(ids[1], ids[2]))

	assert.True(t, s.IsDescendant(ids[0], ids[2]))
	assert.False(t, s.IsDescendant(ids[2], ids[0]))
	assert.False(t, s.IsDescendant(ids[0], ids[0]))
	assert.False(t, s.IsDescendant(ids[0], ids[3]))
}

// Racing opposite edges between the same pair must never leave both in place.
func TestAddGroup_ConcurrentOppositeEdges(t *testing.T) {
	for i := 0; i < 50; i++ {
		s := NewStore()
		ids := newGroups(t, s, "A", "B")

		var wg sync.WaitGroup
		errs := make([]error, 2)
		wg.Add(2)
		go func() { defer wg.Done(); errs[0] = s.AddGroup(ids[0], ids[1]) }()
		go func() { defer wg.Done(); errs[1] = s.AddGroup(ids[1], ids[0]) }()
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
			}
		}
		require.Equal(t, 1, succeeded, "exactly one of the opposite edges must win")
		assert.False(t, s.IsDescendant(ids[0], ids[1]) && s.IsDescendant(ids[1], ids[0]))
	}
}

func TestAddGroup_DeepChain(t *testing.T) {
	s := NewStore()
	const depth = 500
	ids := make([]int64, depth)
	for i := range ids {
		g, err := s.CreateGroup("level")
		require.NoError(t, err)
		ids[i] = g.ID
		if i > 0 {
			require.NoError(t, s.AddGroup(ids[i-1], ids[i]))
		}
	}

	err := s.AddGroup(ids[depth-1], ids[0])
	var invariant *domain.InvariantViolationError
	assert.ErrorAs(t, err, &invariant)
}
