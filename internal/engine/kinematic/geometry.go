package kinematic

import "math"

type vec [2]float64

func (a vec) add(b vec) vec       { return vec{a[0] + b[0], a[1] + b[1]} }
func (a vec) sub(b vec) vec       { return vec{a[0] - b[0], a[1] - b[1]} }
func (a vec) scale(s float64) vec { return vec{a[0] * s, a[1] * s} }
func (a vec) dot(b vec) float64   { return a[0]*b[0] + a[1]*b[1] }
func (a vec) norm() float64       { return math.Hypot(a[0], a[1]) }

// rotate turns a counter-clockwise by theta.
func (a vec) rotate(theta float64) vec {
	s, c := math.Sincos(theta)
	return vec{c*a[0] - s*a[1], s*a[0] + c*a[1]}
}

// segmentDistance is the distance from p to the segment ab.
func segmentDistance(p, a, b vec) float64 {
	ab := b.sub(a)
	l2 := ab.dot(ab)
	if l2 == 0 {
		return p.sub(a).norm()
	}
	t := p.sub(a).dot(ab) / l2
	t = math.Max(0, math.Min(1, t))
	return p.sub(a.add(ab.scale(t))).norm()
}

// box is an oriented rectangle.
type box struct {
	center  vec
	heading float64
	length  float64
	width   float64
}

func (b box) corners() [4]vec {
	hl, hw := b.length/2, b.width/2
	local := [4]vec{{hl, hw}, {-hl, hw}, {-hl, -hw}, {hl, -hw}}
	var out [4]vec
	for i, c := range local {
		out[i] = b.center.add(c.rotate(b.heading))
	}
	return out
}

// overlaps runs a separating-axis test on two oriented rectangles.
func (b box) overlaps(o box) bool {
	if b.length <= 0 || b.width <= 0 || o.length <= 0 || o.width <= 0 {
		return false
	}
	// Cheap reject on bounding circles.
	rb := math.Hypot(b.length, b.width) / 2
	ro := math.Hypot(o.length, o.width) / 2
	if b.center.sub(o.center).norm() > rb+ro {
		return false
	}

	cb, co := b.corners(), o.corners()
	axes := [4]vec{
		vec{1, 0}.rotate(b.heading),
		vec{0, 1}.rotate(b.heading),
		vec{1, 0}.rotate(o.heading),
		vec{0, 1}.rotate(o.heading),
	}
	for _, ax := range axes {
		minB, maxB := project(cb, ax)
		minO, maxO := project(co, ax)
		if maxB < minO || maxO < minB {
			return false
		}
	}
	return true
}

func project(pts [4]vec, axis vec) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, p := range pts {
		d := p.dot(axis)
		lo = math.Min(lo, d)
		hi = math.Max(hi, d)
	}
	return lo, hi
}

// reducePolyline drops interior points that lie within threshold of the
// segment joining the last kept point and the next point. Endpoints are
// always kept.
func reducePolyline(points [][2]float64, threshold float64) [][2]float64 {
	if len(points) <= 2 {
		return append([][2]float64(nil), points...)
	}
	out := [][2]float64{points[0]}
	for i := 1; i < len(points)-1; i++ {
		last := vec(out[len(out)-1])
		if segmentDistance(vec(points[i]), last, vec(points[i+1])) <= threshold {
			continue
		}
		out = append(out, points[i])
	}
	return append(out, points[len(points)-1])
}
