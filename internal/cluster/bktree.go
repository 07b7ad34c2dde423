package cluster

// bkTree indexes 64-bit hashes under a metric distance so that all hashes
// within a radius of a query can be found without a full scan.
type bkTree struct {
	root     *bkNode
	distance func(a, b uint64) int
}

type bkNode struct {
	hash     uint64
	index    int
	children map[int]*bkNode // keyed by distance to this node
}

func newBKTree(distanceFn func(a, b uint64) int) *bkTree {
	return &bkTree{distance: distanceFn}
}

// insert adds hash under the caller's position index.
func (t *bkTree) insert(hash uint64, index int) {
	node := &bkNode{
		hash:     hash,
		index:    index,
		children: make(map[int]*bkNode),
	}

	if t.root == nil {
		t.root = node
		return
	}

	current := t.root
	for {
		dist := t.distance(hash, current.hash)
		child, ok := current.children[dist]
		if !ok {
			current.children[dist] = node
			return
		}
		current = child
	}
}

// findWithinDistance returns the indices of all hashes at most radius away.
// A negative radius matches nothing.
func (t *bkTree) findWithinDistance(hash uint64, radius int) []int {
	if t.root == nil || radius < 0 {
		return nil
	}

	var results []int
	t.search(t.root, hash, radius, &results)
	return results
}

func (t *bkTree) search(node *bkNode, hash uint64, radius int, results *[]int) {
	dist := t.distance(hash, node.hash)
	if dist <= radius {
		*results = append(*results, node.index)
	}

	// Triangle inequality: only children in [dist-radius, dist+radius] can match
	lo, hi := dist-radius, dist+radius
	for childDist, child := range node.children {
		if childDist >= lo && childDist <= hi {
			t.search(child, hash, radius, results)
		}
	}
}
