package geom

import "math"

type Vector4 struct {
	X Element
	Y Element
	Z Element
	W Element
}

type Quaternion = Vector4

// squared length below which a quaternion is treated as degenerate
const degenerateLenSqr = 1e-10

func NewVector4(x, y, z, w float32) *Vector4 {
	return &Vector4{X: x, Y: y, Z: z, W: w}
}

func NewQuaternion(x, y, z, w float32) *Vector4 {
	return &Vector4{X: x, Y: y, Z: z, W: w}
}

func NewQuaternionFromArray(arr [4]Element) *Vector4 {
	return &Vector4{X: arr[0], Y: arr[1], Z: arr[2], W: arr[3]}
}

func IdentityQuaternion() *Quaternion {
	return &Quaternion{W: 1}
}

// NewQuaternionFromAxisAngle returns the rotation of rad radians around axis.
// The axis is normalized when its length exceeds 0.0001.
func NewQuaternionFromAxisAngle(axis *Vector3, rad float64) *Quaternion {
	a := *axis
	if l := a.Len(); l > 0.0001 {
		a.X /= l
		a.Y /= l
		a.Z /= l
	}
	s := Element(math.Sin(rad / 2))
	return &Quaternion{X: a.X * s, Y: a.Y * s, Z: a.Z * s, W: Element(math.Cos(rad / 2))}
}

func (v *Vector4) Add(v2 *Vector4) *Vector4 {
	return &Vector4{X: v.X + v2.X, Y: v.Y + v2.Y, Z: v.Z + v2.Z, W: v.W + v2.W}
}

func (v *Vector4) Sub(v2 *Vector4) *Vector4 {
	return &Vector4{X: v.X - v2.X, Y: v.Y - v2.Y, Z: v.Z - v2.Z, W: v.W - v2.W}
}

func (v *Vector4) Scale(s Element) *Vector4 {
	return &Vector4{X: v.X * s, Y: v.Y * s, Z: v.Z * s, W: v.W * s}
}

func (v *Vector4) Dot(v2 *Vector4) Element {
	return v.X*v2.X + v.Y*v2.Y + v.Z*v2.Z + v.W*v2.W
}

func (v *Vector4) Len() Element {
	return Element(math.Sqrt(float64(v.X*v.X + v.Y*v.Y + v.Z*v.Z + v.W*v.W)))
}

func (v *Vector4) LenSqr() Element {
	return v.X*v.X + v.Y*v.Y + v.Z*v.Z + v.W*v.W
}

func (v *Vector4) Normalize() *Vector4 {
	l := v.Len()
	if l > 0 {
		v.X /= l
		v.Y /= l
		v.Z /= l
		v.W /= l
	} else {
		v.W = 1
	}
	return v
}

// Normalized returns a unit copy of q, or identity if q is degenerate.
func (q *Quaternion) Normalized() *Quaternion {
	l2 := q.LenSqr()
	if l2 <= degenerateLenSqr || !isFinite(l2) {
		return IdentityQuaternion()
	}
	l := Element(math.Sqrt(float64(l2)))
	return &Quaternion{X: q.X / l, Y: q.Y / l, Z: q.Z / l, W: q.W / l}
}

// Inverse returns the conjugate, which is the inverse of a unit quaternion.
func (v *Vector4) Inverse() *Vector4 {
	return &Vector4{X: -v.X, Y: -v.Y, Z: -v.Z, W: v.W}
}

// Mul returns a*b (b is applied first).
func (a *Vector4) Mul(b *Vector4) *Vector4 {
	return &Vector4{
		X: a.W*b.X + a.X*b.W + a.Y*b.Z - a.Z*b.Y,
		Y: a.W*b.Y - a.X*b.Z + a.Y*b.W + a.Z*b.X,
		Z: a.W*b.Z + a.X*b.Y - a.Y*b.X + a.Z*b.W,
		W: a.W*b.W - a.X*b.X - a.Y*b.Y - a.Z*b.Z,
	}
}

// ApplyTo rotates v by q (q * v * q^-1).
func (q *Quaternion) ApplyTo(v *Vector3) *Vector3 {
	p := q.Mul(&Quaternion{X: v.X, Y: v.Y, Z: v.Z}).Mul(q.Inverse())
	return &Vector3{X: p.X, Y: p.Y, Z: p.Z}
}

// Nlerp interpolates along the shortest path and renormalizes.
func (q *Quaternion) Nlerp(q2 *Quaternion, t Element) *Quaternion {
	b := *q2
	if q.Dot(&b) < 0 {
		b = Quaternion{X: -b.X, Y: -b.Y, Z: -b.Z, W: -b.W}
	}
	r := &Quaternion{
		X: q.X + (b.X-q.X)*t,
		Y: q.Y + (b.Y-q.Y)*t,
		Z: q.Z + (b.Z-q.Z)*t,
		W: q.W + (b.W-q.W)*t,
	}
	return r.Normalized()
}

func (v *Vector4) IsFinite() bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z) && isFinite(v.W)
}

func (v *Vector4) Array() [4]Element {
	return [4]Element{v.X, v.Y, v.Z, v.W}
}

// AxisAngle returns the rotation axis and angle in radians.
// The axis is (0,0,1) for rotations too small to define one.
func (q *Quaternion) AxisAngle() (*Vector3, float64) {
	w := math.Max(-1, math.Min(1, float64(q.W)))
	angle := 2 * math.Acos(w)
	s := Element(math.Sqrt(1 - w*w))
	if s > 0.001 {
		return &Vector3{X: q.X / s, Y: q.Y / s, Z: q.Z / s}, angle
	}
	return &Vector3{Z: 1}, angle
}
