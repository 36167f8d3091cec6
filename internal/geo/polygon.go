// Package geo implements the counting-area predicate: a point-in-polygon
// test over integer pixel coordinates.
package geo

// Point is a 2-D integer coordinate in frame-pixel space.
type Point struct {
	X int
	Y int
}

// Polygon is an ordered, closed sequence of vertices. The implicit edge
// from the last vertex back to the first closes the shape.
type Polygon []Point

// Contains reports whether p lies inside or on the boundary of the
// polygon. The result does not depend on which vertex the polygon starts
// from: rotating poly's vertex list left or right never changes the
// outcome for any point, since the algorithm only ever looks at
// consecutive-edge pairs and the edge set is invariant under rotation.
//
// Edge case: a point exactly on an edge counts as inside.
func Contains(p Point, poly Polygon) bool {
	n := len(poly)
	if n < 3 {
		return false
	}

	for i := 0; i < n; i++ {
		a := poly[i]
		b := poly[(i+1)%n]
		if onSegment(a, b, p) {
			return true
		}
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a := poly[i]
		b := poly[j]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			xIntersect := float64(b.X-a.X)*float64(p.Y-a.Y)/float64(b.Y-a.Y) + float64(a.X)
			if float64(p.X) < xIntersect {
				inside = !inside
			}
		}
	}
	return inside
}

// onSegment reports whether p lies exactly on the closed segment a-b.
func onSegment(a, b, p Point) bool {
	cross := (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
	if cross != 0 {
		return false
	}
	if p.X < min(a.X, b.X) || p.X > max(a.X, b.X) {
		return false
	}
	if p.Y < min(a.Y, b.Y) || p.Y > max(a.Y, b.Y) {
		return false
	}
	return true
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Centroid returns the center point of an axis-aligned box given as
// (x1, y1, x2, y2).
func Centroid(x1, y1, x2, y2 float32) Point {
	return Point{
		X: int((x1 + x2) / 2),
		Y: int((y1 + y2) / 2),
	}
}

// Rotate returns a copy of poly with its vertex list rotated so that the
// vertex at index k becomes the first vertex. Used by tests to assert
// rotational invariance of Contains.
func Rotate(poly Polygon, k int) Polygon {
	n := len(poly)
	if n == 0 {
		return nil
	}
	k = ((k % n) + n) % n
	out := make(Polygon, n)
	for i := 0; i < n; i++ {
		out[i] = poly[(i+k)%n]
	}
	return out
}
