package geom

import (
	"math"

	"github.com/pkg/errors"
)

var ErrSingular = errors.New("matrix is not invertible")

// columns shorter than this are treated as degenerate
const minScale = 1e-6

// Matrix34 is a row-major 3x4 affine matrix. The implicit bottom row is [0 0 0 1].
type Matrix34 [3][4]Element

func NewMatrix34() *Matrix34 {
	return &Matrix34{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
	}
}

// NewMatrix34FromQuaternion builds a rotation+translation matrix.
func NewMatrix34FromQuaternion(q *Quaternion, t *Vector3) *Matrix34 {
	tx, ty, tz, tw := 2*q.X, 2*q.Y, 2*q.Z, 2*q.W
	txx, tyy, tzz := tx*q.X, ty*q.Y, tz*q.Z
	txy, txz, tyz := tx*q.Y, tx*q.Z, ty*q.Z
	twx, twy, twz := tw*q.X, tw*q.Y, tw*q.Z
	return &Matrix34{
		{1 - (tyy + tzz), txy - twz, txz + twy, t.X},
		{txy + twz, 1 - (txx + tzz), tyz - twx, t.Y},
		{txz - twy, tyz + twx, 1 - (txx + tyy), t.Z},
	}
}

// Mul returns a * b.
func (a *Matrix34) Mul(b *Matrix34) *Matrix34 {
	r := &Matrix34{}
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			var sum Element
			for k := 0; k < 3; k++ {
				sum += a[i][k] * b[k][j]
			}
			if j == 3 {
				sum += a[i][3]
			}
			r[i][j] = sum
		}
	}
	return r
}

func (m *Matrix34) columnScale() (sx, sy, sz Element) {
	col := func(c int) Element {
		return Element(math.Sqrt(float64(m[0][c]*m[0][c] + m[1][c]*m[1][c] + m[2][c]*m[2][c])))
	}
	return col(0), col(1), col(2)
}

// Inverse inverts a rotation*scale+translation matrix by transposing
// and dividing by the squared column scales.
func (m *Matrix34) Inverse() *Matrix34 {
	sx, sy, sz := m.columnScale()
	if sx < minScale {
		sx = 1
	}
	if sy < minScale {
		sy = 1
	}
	if sz < minScale {
		sz = 1
	}
	inv := [3]Element{1 / (sx * sx), 1 / (sy * sy), 1 / (sz * sz)}

	r := &Matrix34{}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = m[j][i] * inv[i]
		}
	}
	tx, ty, tz := m[0][3], m[1][3], m[2][3]
	for i := 0; i < 3; i++ {
		r[i][3] = -(r[i][0]*tx + r[i][1]*ty + r[i][2]*tz)
	}
	return r
}

func (m *Matrix34) Translation() *Vector3 {
	return &Vector3{X: m[0][3], Y: m[1][3], Z: m[2][3]}
}

// Decompose returns translation, rotation and per-axis scale.
// Degenerate columns fall back to the unit axis for rotation extraction.
func (m *Matrix34) Decompose() (*Vector3, *Quaternion, *Vector3) {
	sx, sy, sz := m.columnScale()
	var r [3][3]Element
	for c, s := range [3]Element{sx, sy, sz} {
		for row := 0; row < 3; row++ {
			if s > minScale {
				r[row][c] = m[row][c] / s
			} else if row == c {
				r[row][c] = 1
			}
		}
	}
	return m.Translation(), rotationToQuaternion(&r), &Vector3{X: sx, Y: sy, Z: sz}
}

func (m *Matrix34) ToMatrix4() *Matrix4 {
	return &Matrix4{
		m[0][0], m[1][0], m[2][0], 0,
		m[0][1], m[1][1], m[2][1], 0,
		m[0][2], m[1][2], m[2][2], 0,
		m[0][3], m[1][3], m[2][3], 1,
	}
}

// rotationToQuaternion converts an orthonormal r[row][col] matrix,
// branching on the largest diagonal term.
func rotationToQuaternion(r *[3][3]Element) *Quaternion {
	var q Quaternion
	trace := r[0][0] + r[1][1] + r[2][2]
	if trace > 0 {
		s := 0.5 / Element(math.Sqrt(float64(trace+1)))
		q.W = 0.25 / s
		q.X = (r[2][1] - r[1][2]) * s
		q.Y = (r[0][2] - r[2][0]) * s
		q.Z = (r[1][0] - r[0][1]) * s
	} else if r[0][0] > r[1][1] && r[0][0] > r[2][2] {
		s := 2 * Element(math.Sqrt(float64(1+r[0][0]-r[1][1]-r[2][2])))
		q.W = (r[2][1] - r[1][2]) / s
		q.X = 0.25 * s
		q.Y = (r[0][1] + r[1][0]) / s
		q.Z = (r[0][2] + r[2][0]) / s
	} else if r[1][1] > r[2][2] {
		s := 2 * Element(math.Sqrt(float64(1+r[1][1]-r[0][0]-r[2][2])))
		q.W = (r[0][2] - r[2][0]) / s
		q.X = (r[0][1] + r[1][0]) / s
		q.Y = 0.25 * s
		q.Z = (r[1][2] + r[2][1]) / s
	} else {
		s := 2 * Element(math.Sqrt(float64(1+r[2][2]-r[0][0]-r[1][1])))
		q.W = (r[1][0] - r[0][1]) / s
		q.X = (r[0][2] + r[2][0]) / s
		q.Y = (r[1][2] + r[2][1]) / s
		q.Z = 0.25 * s
	}
	return q.Normalized()
}
