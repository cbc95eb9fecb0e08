package recast

import (
	"sort"

	"go.uber.org/zap"

	"tilednav/config"
)

const (
	expandIterations = 8
	maxRegionID      = 0xffff
)

// BuildDistanceField stores in every span its chamfer distance, in half
// cells, to the closest boundary, smoothed by a 3x3 box blur.
func BuildDistanceField(oh *OpenHeightfield) {
	n := len(oh.Spans)
	src := make([]int, n)
	for i := range oh.Spans {
		s := &oh.Spans[i]
		if !s.Area.Walkable() {
			continue
		}
		src[i] = 0xffff
		for dir := 0; dir < 4; dir++ {
			a := oh.neighbour(i, dir)
			if a == notConnected || oh.Spans[a].Area != s.Area {
				src[i] = 0
				break
			}
		}
	}

	relax := func(i, a, cost int) {
		if a != notConnected && src[a]+cost < src[i] {
			src[i] = src[a] + cost
		}
	}
	for z := 0; z < oh.Side; z++ {
		for x := 0; x < oh.Side; x++ {
			start, end := oh.Column(x, z)
			for i := start; i < end; i++ {
				if src[i] == 0 {
					continue
				}
				// (-1,0) then (-1,-1); (0,-1) then (1,-1)
				if a := oh.neighbour(i, 0); a != notConnected {
					relax(i, a, 2)
					relax(i, oh.neighbour(a, 3), 3)
				}
				if a := oh.neighbour(i, 3); a != notConnected {
					relax(i, a, 2)
					relax(i, oh.neighbour(a, 2), 3)
				}
			}
		}
	}
	for z := oh.Side - 1; z >= 0; z-- {
		for x := oh.Side - 1; x >= 0; x-- {
			start, end := oh.Column(x, z)
			for i := start; i < end; i++ {
				if src[i] == 0 {
					continue
				}
				// (1,0) then (1,1); (0,1) then (-1,1)
				if a := oh.neighbour(i, 2); a != notConnected {
					relax(i, a, 2)
					relax(i, oh.neighbour(a, 1), 3)
				}
				if a := oh.neighbour(i, 1); a != notConnected {
					relax(i, a, 2)
					relax(i, oh.neighbour(a, 0), 3)
				}
			}
		}
	}

	dst := boxBlur(oh, 1, src)
	oh.MaxDistance = 0
	for i := range oh.Spans {
		d := uint16(min(dst[i], 0xffff))
		oh.Spans[i].Distance = d
		oh.MaxDistance = max(oh.MaxDistance, d)
	}
}

func boxBlur(oh *OpenHeightfield, thr int, src []int) []int {
	thr *= 2
	dst := make([]int, len(src))
	for i := range oh.Spans {
		cd := src[i]
		if cd <= thr {
			dst[i] = cd
			continue
		}
		d := cd
		for dir := 0; dir < 4; dir++ {
			a := oh.neighbour(i, dir)
			if a == notConnected {
				d += cd * 2
				continue
			}
			d += src[a]
			if a2 := oh.neighbour(a, (dir+1)&0x3); a2 != notConnected {
				d += src[a2]
			} else {
				d += cd
			}
		}
		dst[i] = (d + 5) / 9
	}
	return dst
}

// Region summarises one labelled region after filtering and merging.
type Region struct {
	ID            uint16
	Area          Area
	SpanCount     int
	TouchesBorder bool
}

// BuildRegions partitions walkable spans into regions by watershed from
// distance maxima, then drops or merges small regions. Region ids are
// compacted to 1..n; spans left outside any region become not walkable.
func BuildRegions(oh *OpenHeightfield, settings *config.Settings, log *zap.Logger) []Region {
	if log == nil {
		log = zap.NewNop()
	}
	n := len(oh.Spans)
	reg := make([]int, n)
	dist := make([]int, n)

	regionID := 1
	level := int(oh.MaxDistance+1) &^ 1
	for level > 0 {
		level = max(level-2, 0)
		expandRegions(oh, reg, dist, level, expandIterations)
		for i := range oh.Spans {
			s := &oh.Spans[i]
			if !s.Area.Walkable() || int(s.Distance) < level || reg[i] != 0 {
				continue
			}
			if regionID >= maxRegionID {
				break
			}
			if floodRegion(oh, i, level, regionID, reg, dist) {
				regionID++
			}
		}
	}
	expandRegions(oh, reg, dist, 0, 0)
	if regionID >= maxRegionID {
		log.Warn("region id space exhausted, some spans stay unlabelled", zap.Int("regions", regionID))
	}

	regions := newRegionSet(oh, reg, regionID)
	regions.filter(settings.MinRegionArea)
	regions.merge(settings.MergeRegionArea)
	return regions.apply(oh, reg)
}

func floodRegion(oh *OpenHeightfield, start, level, r int, reg, dist []int) bool {
	area := oh.Spans[start].Area
	lev := max(level-2, 0)
	stack := []int{start}
	reg[start] = r
	dist[start] = 0
	count := 0
	for len(stack) > 0 {
		ci := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		// Give up on spans already touching another region, 8-neighbourhood.
		ar := 0
		for dir := 0; dir < 4 && ar == 0; dir++ {
			a := oh.neighbour(ci, dir)
			if a == notConnected || oh.Spans[a].Area != area {
				continue
			}
			if nr := reg[a]; nr != 0 && nr != r {
				ar = nr
				break
			}
			a2 := oh.neighbour(a, (dir+1)&0x3)
			if a2 == notConnected || oh.Spans[a2].Area != area {
				continue
			}
			if nr := reg[a2]; nr != 0 && nr != r {
				ar = nr
			}
		}
		if ar != 0 {
			reg[ci] = 0
			continue
		}
		count++

		for dir := 0; dir < 4; dir++ {
			a := oh.neighbour(ci, dir)
			if a == notConnected || oh.Spans[a].Area != area {
				continue
			}
			if int(oh.Spans[a].Distance) >= lev && reg[a] == 0 {
				reg[a] = r
				dist[a] = 0
				stack = append(stack, a)
			}
		}
	}
	return count > 0
}

type dirtyEntry struct {
	index, region, dist int
}

// expandRegions grows labelled regions into unlabelled spans at or above
// level. maxIter 0 runs until nothing changes. Ties go to the closer
// region, then to the smaller region id.
func expandRegions(oh *OpenHeightfield, reg, dist []int, level, maxIter int) {
	var stack []int
	for i := range oh.Spans {
		s := &oh.Spans[i]
		if s.Area.Walkable() && reg[i] == 0 && int(s.Distance) >= level {
			stack = append(stack, i)
		}
	}
	var dirty []dirtyEntry
	for iter := 0; len(stack) > 0; {
		failed := 0
		dirty = dirty[:0]
		for j, i := range stack {
			if i < 0 {
				failed++
				continue
			}
			area := oh.Spans[i].Area
			r, d2 := 0, 0xffff
			for dir := 0; dir < 4; dir++ {
				a := oh.neighbour(i, dir)
				if a == notConnected || oh.Spans[a].Area != area || reg[a] == 0 {
					continue
				}
				if d := dist[a] + 2; d < d2 || (d == d2 && reg[a] < r) {
					r, d2 = reg[a], d
				}
			}
			if r != 0 {
				stack[j] = -1
				dirty = append(dirty, dirtyEntry{i, r, d2})
			} else {
				failed++
			}
		}
		for _, e := range dirty {
			reg[e.index] = e.region
			dist[e.index] = e.dist
		}
		if failed == len(stack) {
			break
		}
		if maxIter > 0 {
			iter++
			if iter >= maxIter {
				break
			}
		}
	}
}

type regionInfo struct {
	id            int
	area          Area
	spanCount     int
	touchesBorder bool
	// shared span edges with same-area neighbour regions
	neighbours map[int]int
}

type regionSet struct {
	regions []*regionInfo
	// parent maps merged ids onto their survivor; -1 marks discarded ids.
	parent []int
}

func newRegionSet(oh *OpenHeightfield, reg []int, count int) *regionSet {
	rs := &regionSet{regions: make([]*regionInfo, count), parent: make([]int, count)}
	for id := 1; id < count; id++ {
		rs.parent[id] = id
	}
	bs := oh.BorderSide
	for i, r := range reg {
		if r == 0 {
			continue
		}
		info := rs.regions[r]
		if info == nil {
			info = &regionInfo{id: r, area: oh.Spans[i].Area, neighbours: map[int]int{}}
			rs.regions[r] = info
		}
		info.spanCount++
		x, z := oh.SpanCell(i)
		if x <= bs || z <= bs || x >= oh.Side-1-bs || z >= oh.Side-1-bs {
			info.touchesBorder = true
		}
		for dir := 0; dir < 4; dir++ {
			a := oh.neighbour(i, dir)
			if a == notConnected {
				continue
			}
			if nr := reg[a]; nr != 0 && nr != r && oh.Spans[a].Area == info.area {
				info.neighbours[nr]++
			}
		}
	}
	return rs
}

// live returns surviving regions, smallest first.
func (rs *regionSet) live() []*regionInfo {
	var out []*regionInfo
	for _, r := range rs.regions {
		if r != nil {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].spanCount != out[j].spanCount {
			return out[i].spanCount < out[j].spanCount
		}
		return out[i].id < out[j].id
	})
	return out
}

// absorb folds victim into target.
func (rs *regionSet) absorb(target, victim *regionInfo) {
	target.spanCount += victim.spanCount
	target.touchesBorder = target.touchesBorder || victim.touchesBorder
	for nb, c := range victim.neighbours {
		other := rs.regions[nb]
		delete(other.neighbours, victim.id)
		if nb == target.id {
			continue
		}
		target.neighbours[nb] += c
		other.neighbours[target.id] += c
	}
	delete(target.neighbours, victim.id)
	rs.parent[victim.id] = target.id
	rs.regions[victim.id] = nil
}

func (rs *regionSet) discard(victim *regionInfo) {
	for nb := range victim.neighbours {
		delete(rs.regions[nb].neighbours, victim.id)
	}
	rs.parent[victim.id] = -1
	rs.regions[victim.id] = nil
}

// filter removes regions smaller than minArea: each is absorbed into the
// neighbour it shares the longest boundary with, or dropped when it has no
// neighbour. Regions on the tile edge are never dropped.
func (rs *regionSet) filter(minArea int) {
	for changed := true; changed; {
		changed = false
		for _, r := range rs.live() {
			if rs.regions[r.id] == nil || r.spanCount >= minArea {
				continue
			}
			if len(r.neighbours) == 0 {
				if !r.touchesBorder {
					rs.discard(r)
					changed = true
				}
				continue
			}
			var best *regionInfo
			bestEdges := 0
			for nb, edges := range r.neighbours {
				cand := rs.regions[nb]
				if edges > bestEdges || (edges == bestEdges && cand.id < best.id) {
					best, bestEdges = cand, edges
				}
			}
			rs.absorb(best, r)
			changed = true
		}
	}
}

// merge joins a region below mergeArea with its smallest neighbour as long
// as the combined region stays below mergeArea.
func (rs *regionSet) merge(mergeArea int) {
	for changed := true; changed; {
		changed = false
		for _, r := range rs.live() {
			if rs.regions[r.id] == nil || r.spanCount >= mergeArea {
				continue
			}
			var best *regionInfo
			for nb := range r.neighbours {
				cand := rs.regions[nb]
				if r.spanCount+cand.spanCount >= mergeArea {
					continue
				}
				if best == nil || cand.spanCount < best.spanCount ||
					(cand.spanCount == best.spanCount && cand.id < best.id) {
					best = cand
				}
			}
			if best == nil {
				continue
			}
			if best.id < r.id {
				rs.absorb(best, r)
			} else {
				rs.absorb(r, best)
			}
			changed = true
		}
	}
}

func (rs *regionSet) find(id int) int {
	for id > 0 && rs.parent[id] != id {
		id = rs.parent[id]
	}
	return id
}

// apply writes compacted region ids back into the spans.
func (rs *regionSet) apply(oh *OpenHeightfield, reg []int) []Region {
	remap := make([]int, len(rs.regions))
	var out []Region
	for id, r := range rs.regions {
		if r == nil {
			continue
		}
		out = append(out, Region{
			ID:            uint16(len(out) + 1),
			Area:          r.area,
			SpanCount:     r.spanCount,
			TouchesBorder: r.touchesBorder,
		})
		remap[id] = len(out)
	}
	for i, r := range reg {
		s := &oh.Spans[i]
		s.Region = 0
		if r == 0 {
			if s.Area.Walkable() {
				s.Area = NotWalkable
			}
			continue
		}
		root := rs.find(r)
		if root <= 0 {
			s.Area = NotWalkable
			continue
		}
		s.Region = uint16(remap[root])
	}
	return out
}
