// Package coord maps Z-up source-engine coordinates to the Y-up runtime convention.
package coord

import "github.com/binzume/glaconv/geom"

// UnitScale converts source units (inches) to meters.
const UnitScale = 0.0254

// Converter applies a -90 degree rotation around X followed by a uniform scale.
// The mapping is not its own inverse.
type Converter struct {
	Scale geom.Element
}

var Default = Converter{Scale: UnitScale}

// Position maps (x, y, z) to (x*s, z*s, -y*s).
func (c Converter) Position(v *geom.Vector3) *geom.Vector3 {
	s := c.Scale
	return &geom.Vector3{X: v.X * s, Y: v.Z * s, Z: -v.Y * s}
}

// Rotation maps (x, y, z, w) to normalize(x, z, -y, w).
func (c Converter) Rotation(q *geom.Quaternion) *geom.Quaternion {
	return (&geom.Quaternion{X: q.X, Y: q.Z, Z: -q.Y, W: q.W}).Normalized()
}

func ConvertPosition(v *geom.Vector3) *geom.Vector3 {
	return Default.Position(v)
}

func ConvertQuaternion(q *geom.Quaternion) *geom.Quaternion {
	return Default.Rotation(q)
}
