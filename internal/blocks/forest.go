// Package blocks resolves block jurisdiction over a community's block tree.
package blocks

import (
	"slices"

	"residia/internal/model"
)

const noParent = -1

// Forest is an immutable adjacency view of a community's blocks.
// Nodes are addressed by stable indices into ids; parent and children are index based.
type Forest struct {
	ids      []int64
	index    map[int64]int
	parent   []int
	children [][]int
}

// NewForest builds the adjacency structure. Blocks whose parent is unknown are treated as roots.
func NewForest(blocks []model.Block) *Forest {
	sorted := slices.Clone(blocks)
	slices.SortFunc(sorted, func(a, b model.Block) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	sorted = slices.CompactFunc(sorted, func(a, b model.Block) bool { return a.ID == b.ID })

	f := &Forest{
		ids:      make([]int64, len(sorted)),
		index:    make(map[int64]int, len(sorted)),
		parent:   make([]int, len(sorted)),
		children: make([][]int, len(sorted)),
	}
	for i, b := range sorted {
		f.ids[i] = b.ID
		f.index[b.ID] = i
	}
	for i, b := range sorted {
		f.parent[i] = noParent
		if b.ParentID == nil {
			continue
		}
		p, ok := f.index[*b.ParentID]
		if !ok || p == i {
			continue
		}
		f.parent[i] = p
		f.children[p] = append(f.children[p], i)
	}
	return f
}

// Len returns the number of blocks.
func (f *Forest) Len() int {
	return len(f.ids)
}

// Contains reports whether the block id is part of the forest.
func (f *Forest) Contains(id int64) bool {
	_, ok := f.index[id]
	return ok
}

// All returns every block id in ascending order.
func (f *Forest) All() []int64 {
	return slices.Clone(f.ids)
}

// Expand returns base ∪ descendants(base), sorted ascending.
// Each node is visited at most once, so malformed parent cycles terminate.
// Base ids that are not part of the forest are dropped.
func (f *Forest) Expand(base []int64) []int64 {
	visited := make([]bool, len(f.ids))
	out := make(map[int64]struct{}, len(base))
	queue := make([]int, 0, len(base))

	for _, id := range base {
		if !f.Contains(id) {
			continue
		}
		i := f.index[id]
		if visited[i] {
			continue
		}
		visited[i] = true
		out[id] = struct{}{}
		queue = append(queue, i)
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range f.children[cur] {
			if visited[child] {
				continue
			}
			visited[child] = true
			out[f.ids[child]] = struct{}{}
			queue = append(queue, child)
		}
	}

	result := make([]int64, 0, len(out))
	for id := range out {
		result = append(result, id)
	}
	slices.Sort(result)
	return result
}
