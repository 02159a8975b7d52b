package geometry

import "math"

// Arena dimensions are shared with the client renderer.
const (
	ArenaWidth  = 800.0
	ArenaHeight = 500.0
	MinDistance = 60.0
	EdgeMargin  = 40.0
)

const (
	ellipseFraction = 0.35
	spawnScanPoints = 36
	ringStep        = 20.0
	ringAngles      = 24
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Clamp constrains both axes independently to [EdgeMargin, dimension-EdgeMargin].
func Clamp(p Point) Point {
	return Point{
		X: clampAxis(p.X, ArenaWidth),
		Y: clampAxis(p.Y, ArenaHeight),
	}
}

func clampAxis(v, dim float64) float64 {
	return math.Max(EdgeMargin, math.Min(dim-EdgeMargin, v))
}

// Collides reports whether p is closer than MinDistance to any of others.
func Collides(p Point, others []Point) bool {
	for _, o := range others {
		if Distance(p, o) < MinDistance {
			return true
		}
	}
	return false
}

func ellipsePoint(theta float64) Point {
	return Point{
		X: ArenaWidth/2 + ArenaWidth*ellipseFraction*math.Cos(theta),
		Y: ArenaHeight/2 + ArenaHeight*ellipseFraction*math.Sin(theta),
	}
}

// SpawnPosition places participant index of total on the spawn ellipse,
// starting at the top. When that slot is taken it scans the ellipse for a
// free point and falls back to the original slot if none is free.
func SpawnPosition(index, total int, occupied []Point) Point {
	if total <= 0 {
		total = 1
	}
	slot := ellipsePoint(2*math.Pi*float64(index)/float64(total) - math.Pi/2)
	if !Collides(slot, occupied) {
		return slot
	}
	for k := 0; k < spawnScanPoints; k++ {
		p := ellipsePoint(2*math.Pi*float64(k)/spawnScanPoints - math.Pi/2)
		if !Collides(p, occupied) {
			return p
		}
	}
	return slot
}

// ResolveMove clamps target into the arena and, if it collides with others,
// searches outward in rings for the nearest free point. The search is bounded;
// when it is exhausted the clamped target is returned as is.
func ResolveMove(target Point, others []Point) Point {
	target = Clamp(target)
	if !Collides(target, others) {
		return target
	}
	for r := MinDistance; r <= ArenaWidth; r += ringStep {
		for a := 0; a < ringAngles; a++ {
			theta := 2 * math.Pi * float64(a) / ringAngles
			cand := Clamp(Point{
				X: target.X + r*math.Cos(theta),
				Y: target.Y + r*math.Sin(theta),
			})
			if !Collides(cand, others) {
				return cand
			}
		}
	}
	return target
}
