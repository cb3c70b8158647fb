package skirmish

import "math"

// Position is a point on the board in inches. Y grows toward the second
// player's table edge.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the straight-line distance to another position.
func (p Position) Distance(q Position) float64 {
	dx, dy := p.X-q.X, p.Y-q.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Rect is an axis-aligned rectangle.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Contains reports whether the point lies inside the rectangle.
func (r Rect) Contains(p Position) bool {
	return p.X >= r.X && p.X <= r.X+r.W && p.Y >= r.Y && p.Y <= r.Y+r.H
}

// TerrainFeature is a piece of terrain on the board. Obscuring features
// block line of sight through (not into) their footprint; features taller
// than the engine's climb threshold add vertical cost to paths crossing
// them.
type TerrainFeature struct {
	ID        string  `json:"id"`
	Footprint Rect    `json:"footprint"`
	Height    float64 `json:"height"`
	Obscuring bool    `json:"obscuring,omitempty"`
	Cover     bool    `json:"cover,omitempty"`
}

// Objective is a scoring marker controlled by objective-control totals.
type Objective struct {
	ID       string   `json:"id"`
	Position Position `json:"position"`
	Radius   float64  `json:"radius"`
}

// Board holds the battlefield layout.
type Board struct {
	Width           float64          `json:"width"`
	Height          float64          `json:"height"`
	Terrain         []TerrainFeature `json:"terrain,omitempty"`
	DeploymentZones map[string]Rect  `json:"deployment_zones,omitempty"`
	Objectives      []Objective      `json:"objectives,omitempty"`
}

func (b Board) clone() Board {
	c := b
	if b.Terrain != nil {
		c.Terrain = make([]TerrainFeature, len(b.Terrain))
		copy(c.Terrain, b.Terrain)
	}
	if b.DeploymentZones != nil {
		c.DeploymentZones = make(map[string]Rect, len(b.DeploymentZones))
		for k, v := range b.DeploymentZones {
			c.DeploymentZones[k] = v
		}
	}
	if b.Objectives != nil {
		c.Objectives = make([]Objective, len(b.Objectives))
		copy(c.Objectives, b.Objectives)
	}
	return c
}

// OnBoard reports whether the point lies on the battlefield.
func (b Board) OnBoard(p Position) bool {
	return p.X >= 0 && p.X <= b.Width && p.Y >= 0 && p.Y <= b.Height
}

// unitDistance returns the shortest model-to-model distance between two
// units, measuring between base edges. Units with no deployed living
// models are infinitely far away.
func unitDistance(a, b *Unit) float64 {
	best := math.Inf(1)
	for i := range a.Models {
		am := &a.Models[i]
		if !am.Alive || am.Position == nil {
			continue
		}
		for j := range b.Models {
			bm := &b.Models[j]
			if !bm.Alive || bm.Position == nil {
				continue
			}
			d := am.Position.Distance(*bm.Position) - am.Base - bm.Base
			if d < 0 {
				d = 0
			}
			if d < best {
				best = d
			}
		}
	}
	return best
}

// modelToUnitDistance returns the shortest base-to-base distance from a
// point (with base radius) to any living deployed model of the unit.
func modelToUnitDistance(p Position, base float64, u *Unit) float64 {
	best := math.Inf(1)
	for i := range u.Models {
		m := &u.Models[i]
		if !m.Alive || m.Position == nil {
			continue
		}
		d := p.Distance(*m.Position) - base - m.Base
		if d < 0 {
			d = 0
		}
		if d < best {
			best = d
		}
	}
	return best
}

// coherent reports whether every position is within the coherency
// distance of at least one other (single positions are always coherent).
func coherent(positions []Position, bases []float64, coherency float64) bool {
	if len(positions) <= 1 {
		return true
	}
	for i := range positions {
		ok := false
		for j := range positions {
			if i == j {
				continue
			}
			d := positions[i].Distance(positions[j]) - bases[i] - bases[j]
			if d <= coherency {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// segmentIntersectsRect reports whether the segment from a to b crosses
// the rectangle's interior.
func segmentIntersectsRect(a, b Position, r Rect) bool {
	if r.Contains(a) || r.Contains(b) {
		return true
	}
	corners := [4]Position{
		{r.X, r.Y}, {r.X + r.W, r.Y},
		{r.X + r.W, r.Y + r.H}, {r.X, r.Y + r.H},
	}
	for i := 0; i < 4; i++ {
		if segmentsCross(a, b, corners[i], corners[(i+1)%4]) {
			return true
		}
	}
	return false
}

func segmentsCross(p1, p2, q1, q2 Position) bool {
	d1 := cross(q1, q2, p1)
	d2 := cross(q1, q2, p2)
	d3 := cross(p1, p2, q1)
	d4 := cross(p1, p2, q2)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return false
}

func cross(a, b, c Position) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

// hasLineOfSight reports whether any living model of the attacker can see
// any living model of the target. Sight is blocked when the sight line
// crosses an obscuring terrain footprint that contains neither endpoint.
func hasLineOfSight(board Board, attacker, target *Unit) bool {
	for i := range attacker.Models {
		am := &attacker.Models[i]
		if !am.Alive || am.Position == nil {
			continue
		}
		for j := range target.Models {
			tm := &target.Models[j]
			if !tm.Alive || tm.Position == nil {
				continue
			}
			if sightLineClear(board, *am.Position, *tm.Position) {
				return true
			}
		}
	}
	return false
}

func sightLineClear(board Board, from, to Position) bool {
	for _, t := range board.Terrain {
		if !t.Obscuring {
			continue
		}
		// Models inside or touching the feature can see out of it.
		if t.Footprint.Contains(from) || t.Footprint.Contains(to) {
			continue
		}
		if segmentIntersectsRect(from, to, t.Footprint) {
			return false
		}
	}
	return true
}

// inCoverFrom reports whether the target unit benefits from cover against
// fire originating at the attacker: some living target model stands on
// cover terrain, or the sight line to it passes through cover terrain.
func inCoverFrom(board Board, attacker, target *Unit) bool {
	for j := range target.Models {
		tm := &target.Models[j]
		if !tm.Alive || tm.Position == nil {
			continue
		}
		for _, t := range board.Terrain {
			if !t.Cover {
				continue
			}
			if t.Footprint.Contains(*tm.Position) {
				return true
			}
			for i := range attacker.Models {
				am := &attacker.Models[i]
				if !am.Alive || am.Position == nil {
					continue
				}
				if segmentIntersectsRect(*am.Position, *tm.Position, t.Footprint) {
					return true
				}
			}
		}
	}
	return false
}

// pathCost returns the effective length of a straight move from a to b,
// adding vertical traversal for tall terrain crossed on the way. Crossing
// a tall feature costs climb up plus climb down; starting or ending inside
// one charges half. Movers that ignore elevation (FLY) pay nothing extra.
func pathCost(board Board, from, to Position, tallThreshold float64, ignoresElevation bool) float64 {
	dist := from.Distance(to)
	if ignoresElevation {
		return dist
	}
	for _, t := range board.Terrain {
		if t.Height <= tallThreshold {
			continue
		}
		fromIn := t.Footprint.Contains(from)
		toIn := t.Footprint.Contains(to)
		switch {
		case fromIn && toIn:
			// Moving along the top: no vertical change.
		case fromIn || toIn:
			dist += t.Height
		case segmentIntersectsRect(from, to, t.Footprint):
			dist += 2 * t.Height
		}
	}
	return dist
}
