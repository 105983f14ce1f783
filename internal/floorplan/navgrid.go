package floorplan

import (
	"container/heap"
	"math"
)

// --- A* pathfinding ---

type pathNode struct {
	cx, cy int
	g, h   float64
	seq    int // insertion order, breaks f-cost ties deterministically
	parent *pathNode
	index  int // heap index
}

type openList []*pathNode

func (ol openList) Len() int { return len(ol) }
func (ol openList) Less(i, j int) bool {
	fi, fj := ol[i].g+ol[i].h, ol[j].g+ol[j].h
	if fi != fj {
		return fi < fj
	}
	return ol[i].seq < ol[j].seq
}
func (ol openList) Swap(i, j int)       { ol[i], ol[j] = ol[j], ol[i]; ol[i].index = i; ol[j].index = j }
func (ol *openList) Push(x interface{}) { n := x.(*pathNode); n.index = len(*ol); *ol = append(*ol, n) }
func (ol *openList) Pop() interface{} {
	old := *ol
	n := old[len(old)-1]
	old[len(old)-1] = nil
	*ol = old[:len(old)-1]
	return n
}

var dirs = [8][2]int{
	{1, 0}, {-1, 0}, {0, 1}, {0, -1},
	{1, 1}, {1, -1}, {-1, 1}, {-1, -1},
}

// FindPath returns the cells from (sx,sy) to (gx,gy), excluding the start cell
// and including the goal. Returns nil if either end is blocked, no route
// exists, or start equals goal.
func (p *Plan) FindPath(sx, sy, gx, gy int) [][2]int {
	if p.IsBlocked(sx, sy) || p.IsBlocked(gx, gy) {
		return nil
	}
	if sx == gx && sy == gy {
		return nil
	}

	key := func(cx, cy int) int { return cy*p.cols + cx }
	heuristic := func(ax, ay, bx, by int) float64 {
		dx := math.Abs(float64(ax - bx))
		dy := math.Abs(float64(ay - by))
		return dx + dy + (math.Sqrt2-2)*math.Min(dx, dy)
	}

	seq := 0
	start := &pathNode{cx: sx, cy: sy, h: heuristic(sx, sy, gx, gy)}
	ol := &openList{start}
	heap.Init(ol)

	closed := make(map[int]bool)
	best := make(map[int]*pathNode)
	best[key(sx, sy)] = start

	for ol.Len() > 0 {
		cur := heap.Pop(ol).(*pathNode)
		if cur.cx == gx && cur.cy == gy {
			return buildPath(cur)
		}
		k := key(cur.cx, cur.cy)
		if closed[k] {
			continue
		}
		closed[k] = true

		for _, d := range dirs {
			nx, ny := cur.cx+d[0], cur.cy+d[1]
			if p.IsBlocked(nx, ny) {
				continue
			}
			// No diagonal corner-cutting past walls.
			if d[0] != 0 && d[1] != 0 {
				if p.IsBlocked(cur.cx+d[0], cur.cy) || p.IsBlocked(cur.cx, cur.cy+d[1]) {
					continue
				}
			}
			nk := key(nx, ny)
			if closed[nk] {
				continue
			}
			cost := 1.0
			if d[0] != 0 && d[1] != 0 {
				cost = math.Sqrt2
			}
			g := cur.g + cost
			if prev, ok := best[nk]; ok && g >= prev.g {
				continue
			}
			seq++
			node := &pathNode{cx: nx, cy: ny, g: g, h: heuristic(nx, ny, gx, gy), seq: seq, parent: cur}
			best[nk] = node
			heap.Push(ol, node)
		}
	}
	return nil
}

func buildPath(end *pathNode) [][2]int {
	var cells [][2]int
	for n := end; n.parent != nil; n = n.parent {
		cells = append(cells, [2]int{n.cx, n.cy})
	}
	for i, j := 0, len(cells)-1; i < j; i, j = i+1, j-1 {
		cells[i], cells[j] = cells[j], cells[i]
	}
	return cells
}
