// Package btree implements the secondary index structure backing nyarudb's
// indexed fields: an ordered multi-map from a comparable key to a list of
// raw document payloads, persisted as a gzip-compressed tree and safe for
// concurrent search/insert from a single serialization domain per instance.
//
// © 2025 nyarudb authors. MIT License.
package btree

import (
	"cmp"
	"sync"
)

// node is one B-tree node. keys and values are parallel arrays; children is
// non-empty only for internal nodes (leaf == false). Every key occurring in
// the tree is stored exactly once, with payloads accumulated in values.
type node[K cmp.Ordered] struct {
	keys     []K
	values   [][][]byte
	children []*node[K]
	leaf     bool
}

func newNode[K cmp.Ordered](leaf bool) *node[K] {
	return &node[K]{leaf: leaf}
}

// Tree is a B-tree of minimum degree t (every non-root node has between t-1
// and 2t-1 keys). All mutating and traversal operations are serialized by
// mu, matching the teacher's per-instance actor pattern.
type Tree[K cmp.Ordered] struct {
	mu    sync.RWMutex
	root  *node[K]
	t     int
	count int
}

// New constructs an empty tree with the given minimum degree. t must be >= 2.
func New[K cmp.Ordered](t int) *Tree[K] {
	if t < 2 {
		t = 2
	}
	return &Tree[K]{
		root: newNode[K](true),
		t:    t,
	}
}

// Search returns the value list stored under key, if any.
func (tr *Tree[K]) Search(key K) ([][]byte, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return searchNode(tr.root, key)
}

func searchNode[K cmp.Ordered](n *node[K], key K) ([][]byte, bool) {
	i := 0
	for i < len(n.keys) && key > n.keys[i] {
		i++
	}
	if i < len(n.keys) && key == n.keys[i] {
		return n.values[i], true
	}
	if n.leaf {
		return nil, false
	}
	return searchNode(n.children[i], key)
}

// Insert appends payload to key's value list, creating the key (and
// splitting nodes as needed) if it does not already exist anywhere in the
// tree.
func (tr *Tree[K]) Insert(key K, payload []byte) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if appendIfExists(tr.root, key, payload) {
		tr.count++
		return
	}

	root := tr.root
	if len(root.keys) == 2*tr.t-1 {
		newRoot := newNode[K](false)
		newRoot.children = append(newRoot.children, root)
		splitChild(newRoot, 0, tr.t)
		tr.root = newRoot
		insertNonFull(newRoot, key, payload, tr.t)
	} else {
		insertNonFull(root, key, payload, tr.t)
	}
	tr.count++
}

// appendIfExists walks the tree looking for an existing key; if found, the
// payload is appended in place and no structural change is made.
func appendIfExists[K cmp.Ordered](n *node[K], key K, payload []byte) bool {
	i := 0
	for i < len(n.keys) && key > n.keys[i] {
		i++
	}
	if i < len(n.keys) && key == n.keys[i] {
		n.values[i] = append(n.values[i], payload)
		return true
	}
	if n.leaf {
		return false
	}
	return appendIfExists(n.children[i], key, payload)
}

// splitChild splits the full child at index i of parent, moving the median
// key up into parent.
func splitChild[K cmp.Ordered](parent *node[K], i int, t int) {
	full := parent.children[i]
	mid := t - 1

	right := newNode[K](full.leaf)
	right.keys = append(right.keys, full.keys[mid+1:]...)
	right.values = append(right.values, full.values[mid+1:]...)
	if !full.leaf {
		right.children = append(right.children, full.children[mid+1:]...)
	}

	midKey := full.keys[mid]
	midValues := full.values[mid]

	full.keys = full.keys[:mid]
	full.values = full.values[:mid]
	if !full.leaf {
		full.children = full.children[:mid+1]
	}

	parent.children = append(parent.children, nil)
	copy(parent.children[i+2:], parent.children[i+1:])
	parent.children[i+1] = right

	parent.keys = append(parent.keys, *new(K))
	copy(parent.keys[i+1:], parent.keys[i:])
	parent.keys[i] = midKey

	parent.values = append(parent.values, nil)
	copy(parent.values[i+1:], parent.values[i:])
	parent.values[i] = midValues
}

// insertNonFull inserts key/payload into n, which is guaranteed not full.
// Children are pre-split before recursing into them.
func insertNonFull[K cmp.Ordered](n *node[K], key K, payload []byte, t int) {
	i := len(n.keys) - 1

	if n.leaf {
		n.keys = append(n.keys, *new(K))
		n.values = append(n.values, nil)
		for i >= 0 && key < n.keys[i] {
			n.keys[i+1] = n.keys[i]
			n.values[i+1] = n.values[i]
			i--
		}
		n.keys[i+1] = key
		n.values[i+1] = [][]byte{payload}
		return
	}

	for i >= 0 && key < n.keys[i] {
		i--
	}
	i++

	if len(n.children[i].keys) == 2*t-1 {
		// appendIfExists already ruled out key existing anywhere in the
		// tree, so the median key pulled up by the split can never equal
		// key: only > or < is possible here.
		splitChild(n, i, t)
		if key > n.keys[i] {
			i++
		}
	}
	insertNonFull(n.children[i], key, payload, t)
}

// InOrder yields every payload across every key in non-decreasing key
// order.
func (tr *Tree[K]) InOrder() [][]byte {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	out := make([][]byte, 0, tr.count)
	collect(tr.root, &out)
	return out
}

func collect[K cmp.Ordered](n *node[K], out *[][]byte) {
	if n.leaf {
		for _, vs := range n.values {
			*out = append(*out, vs...)
		}
		return
	}
	for i, child := range n.children {
		collect(child, out)
		if i < len(n.keys) {
			*out = append(*out, n.values[i]...)
		}
	}
}

// Page returns the slice of InOrder() covering [offset, min(offset+limit,
// total)); an empty slice if offset >= total.
func (tr *Tree[K]) Page(offset, limit int) [][]byte {
	all := tr.InOrder()
	if offset >= len(all) {
		return nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}

// TotalCount returns the number of payloads across all keys.
func (tr *Tree[K]) TotalCount() int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return tr.count
}

// DistinctKeys returns the number of distinct keys stored in the tree.
func (tr *Tree[K]) DistinctKeys() int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return countKeys(tr.root)
}

func countKeys[K cmp.Ordered](n *node[K]) int {
	total := len(n.keys)
	for _, c := range n.children {
		total += countKeys(c)
	}
	return total
}
