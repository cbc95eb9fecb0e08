package detour

import (
	"container/heap"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	nodeOpen   = 0x01
	nodeClosed = 0x02
)

type node struct {
	ref    PolygonRef
	pos    mgl32.Vec3
	cost   float32 // cost from the start
	total  float32 // cost plus heuristic
	parent *node
	flags  uint8
	index  int // position in the open list
}

// nodePool hands out one node per polygon for a single search.
type nodePool struct {
	nodes map[PolygonRef]*node
}

func newNodePool() *nodePool {
	return &nodePool{nodes: make(map[PolygonRef]*node)}
}

func (p *nodePool) get(ref PolygonRef) *node {
	n, ok := p.nodes[ref]
	if !ok {
		n = &node{ref: ref, index: -1}
		p.nodes[ref] = n
	}
	return n
}

// nodeQueue is a min-heap on total cost.
type nodeQueue []*node

func (q nodeQueue) Len() int           { return len(q) }
func (q nodeQueue) Less(i, j int) bool { return q[i].total < q[j].total }
func (q nodeQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *nodeQueue) Push(x any) {
	n := x.(*node)
	n.index = len(*q)
	*q = append(*q, n)
}

func (q *nodeQueue) Pop() any {
	old := *q
	n := old[len(old)-1]
	old[len(old)-1] = nil
	n.index = -1
	*q = old[:len(old)-1]
	return n
}

func (q *nodeQueue) offer(n *node)  { heap.Push(q, n) }
func (q *nodeQueue) poll() *node    { return heap.Pop(q).(*node) }
func (q *nodeQueue) update(n *node) { heap.Fix(q, n.index) }
