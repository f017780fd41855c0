package normalize

import (
	"image"
	"math"
	"sort"
)

type point struct{ x, y int }

// EstimateSkew returns the rotation, in degrees counter-clockwise, that
// levels the ink of a binary raster. The result lies in (-45, 45]. ok is
// false when the raster has no ink.
func EstimateSkew(binary *image.Gray) (angle float64, ok bool) {
	points := inkExtremes(binary)
	if len(points) == 0 {
		return 0, false
	}
	return correctionAngle(minAreaRectAngle(convexHull(points))), true
}

// correctionAngle turns a rectangle angle in [-90, 0) into the rotation that
// undoes it.
func correctionAngle(theta float64) float64 {
	if theta < -45 {
		return -(90 + theta)
	}
	return -theta
}

// inkExtremes returns the leftmost and rightmost ink pixel of every row.
// The convex hull of all ink pixels is the hull of these points.
func inkExtremes(g *image.Gray) []point {
	b := g.Bounds()
	var points []point
	for y := 0; y < b.Dy(); y++ {
		row := g.Pix[g.PixOffset(b.Min.X, b.Min.Y+y):]
		first, last := -1, -1
		for x := 0; x < b.Dx(); x++ {
			if row[x] == Ink {
				if first < 0 {
					first = x
				}
				last = x
			}
		}
		if first < 0 {
			continue
		}
		points = append(points, point{first, y})
		if last != first {
			points = append(points, point{last, y})
		}
	}
	return points
}

// convexHull uses the monotone chain algorithm. Collinear points are dropped.
func convexHull(pts []point) []point {
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].x != pts[j].x {
			return pts[i].x < pts[j].x
		}
		return pts[i].y < pts[j].y
	})
	if len(pts) < 3 {
		return pts
	}

	hull := make([]point, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

func cross(o, a, b point) int64 {
	return int64(a.x-o.x)*int64(b.y-o.y) - int64(a.y-o.y)*int64(b.x-o.x)
}

// minAreaRectAngle finds the smallest rectangle enclosing the hull; one of
// its sides is collinear with a hull edge. It returns that side's angle
// folded into [-90, 0).
func minAreaRectAngle(hull []point) float64 {
	best, bestArea := -90.0, math.Inf(1)
	n := len(hull)
	if n < 2 {
		return best
	}
	for i := 0; i < n; i++ {
		a, b := hull[i], hull[(i+1)%n]
		dx, dy := float64(b.x-a.x), float64(b.y-a.y)
		length := math.Hypot(dx, dy)
		if length == 0 {
			continue
		}
		ux, uy := dx/length, dy/length

		minU, maxU := math.Inf(1), math.Inf(-1)
		minV, maxV := math.Inf(1), math.Inf(-1)
		for _, p := range hull {
			px, py := float64(p.x), float64(p.y)
			u := px*ux + py*uy
			v := py*ux - px*uy
			minU, maxU = math.Min(minU, u), math.Max(maxU, u)
			minV, maxV = math.Min(minV, v), math.Max(maxV, v)
		}
		if area := (maxU - minU) * (maxV - minV); area < bestArea {
			bestArea = area
			best = edgeAngle(dx, dy)
		}
	}
	return best
}

// edgeAngle is the on-screen counter-clockwise angle of (dx, dy) in pixel
// coordinates, folded into [-90, 0).
func edgeAngle(dx, dy float64) float64 {
	deg := math.Mod(math.Atan2(-dy, dx)*180/math.Pi, 90)
	if deg >= 0 {
		deg -= 90
	}
	return deg
}
