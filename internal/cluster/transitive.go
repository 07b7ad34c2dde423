package cluster

import "imagedupes/internal/fingerprint"

// transitive groups identifiers connected by any chain of similar pairs.
// Clusters are ordered by their smallest identifier and members are sorted.
func transitive(table *fingerprint.Table, threshold float64) []Cluster {
	ids, hashes := tableHashes(table)
	maxDist := fingerprint.MaxDistance(threshold)

	uf := newUnionFind(len(ids))
	tree := newBKTree(fingerprint.HammingDistance)

	for i, h := range hashes {
		for _, j := range tree.findWithinDistance(h, maxDist) {
			uf.union(i, j)
		}
		tree.insert(h, i)
	}

	// ids are sorted, so first-seen roots give clusters in seed order
	index := make(map[int]int)
	var groups [][]int
	for i := range ids {
		root := uf.find(i)
		k, ok := index[root]
		if !ok {
			k = len(groups)
			index[root] = k
			groups = append(groups, nil)
		}
		groups[k] = append(groups[k], i)
	}

	var clusters []Cluster
	for _, members := range groups {
		if len(members) < 2 {
			continue
		}
		c := make(Cluster, len(members))
		for k, m := range members {
			c[k] = ids[m]
		}
		clusters = append(clusters, c)
	}
	return clusters
}

// Union-Find data structure for efficient grouping
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	rank := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent, rank: rank}
}

func (uf *unionFind) find(x int) int {
	if uf.parent[x] != x {
		uf.parent[x] = uf.find(uf.parent[x]) // Path compression
	}
	return uf.parent[x]
}

func (uf *unionFind) union(x, y int) {
	px, py := uf.find(x), uf.find(y)
	if px == py {
		return
	}
	if uf.rank[px] < uf.rank[py] {
		px, py = py, px
	}
	uf.parent[py] = px
	if uf.rank[px] == uf.rank[py] {
		uf.rank[px]++
	}
}
