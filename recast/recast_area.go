package recast

// ErodeWalkableArea marks every span within radius cells of an obstacle or
// the grid edge as not walkable. Distance counts link steps, diagonals
// included, so the eroded band is at least radius cells wide in every
// direction.
func ErodeWalkableArea(oh *OpenHeightfield, radius int) {
	if radius <= 0 {
		return
	}
	n := len(oh.Spans)
	dist := make([]int, n)
	queue := make([]int, 0, n/4)
	for i := range oh.Spans {
		dist[i] = -1
		if !oh.Spans[i].Area.Walkable() {
			continue
		}
		if oh.isBoundary(i) {
			dist[i] = 1
			queue = append(queue, i)
		}
	}
	for head := 0; head < len(queue); head++ {
		i := queue[head]
		if dist[i] >= radius {
			continue
		}
		for dir := 0; dir < 4; dir++ {
			for _, j := range [2]int{oh.neighbour(i, dir), oh.diagonal(i, dir)} {
				if j == notConnected || dist[j] != -1 || !oh.Spans[j].Area.Walkable() {
					continue
				}
				dist[j] = dist[i] + 1
				queue = append(queue, j)
			}
		}
	}
	for i, d := range dist {
		if d != -1 && d <= radius {
			oh.Spans[i].Area = NotWalkable
		}
	}
}

// isBoundary reports whether a span misses a link or links to a span that
// cannot be walked on.
func (oh *OpenHeightfield) isBoundary(i int) bool {
	for dir := 0; dir < 4; dir++ {
		n := oh.neighbour(i, dir)
		if n == notConnected || !oh.Spans[n].Area.Walkable() {
			return true
		}
	}
	return false
}
