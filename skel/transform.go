// Package skel is the runtime skeleton and animation container produced by
// the importers and consumed by the retargeter and the glTF exporter.
package skel

import (
	"github.com/binzume/glaconv/geom"
	"github.com/pkg/errors"
)

// ErrValidation is returned when raw skeleton or animation data breaks an
// invariant required by the builders.
var ErrValidation = errors.New("validation failed")

func validationErrorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrValidation, format, args...)
}

// Transform is a decomposed affine transform.
type Transform struct {
	Translation geom.Vector3
	Rotation    geom.Quaternion
	Scale       geom.Vector3
}

func IdentityTransform() Transform {
	return Transform{
		Rotation: geom.Quaternion{W: 1},
		Scale:    geom.Vector3{X: 1, Y: 1, Z: 1},
	}
}

func (t *Transform) IsFinite() bool {
	return t.Translation.IsFinite() && t.Rotation.IsFinite() && t.Scale.IsFinite()
}

func (t *Transform) Matrix() *geom.Matrix4 {
	return geom.NewTRSMatrix4(&t.Translation, &t.Rotation, &t.Scale)
}

// SoaWidth is the number of joints packed in one SoaTransform.
const SoaWidth = 4

type SoaFloat3 struct {
	X, Y, Z [SoaWidth]float32
}

type SoaQuaternion struct {
	X, Y, Z, W [SoaWidth]float32
}

// SoaTransform stores the transforms of four consecutive joints.
type SoaTransform struct {
	Translation SoaFloat3
	Rotation    SoaQuaternion
	Scale       SoaFloat3
}

func SoaIdentity() SoaTransform {
	var s SoaTransform
	for i := 0; i < SoaWidth; i++ {
		s.SetLane(i, IdentityTransform())
	}
	return s
}

// NumSoa returns how many SoaTransforms hold n joints.
func NumSoa(n int) int {
	return (n + SoaWidth - 1) / SoaWidth
}

func (s *SoaTransform) Lane(i int) Transform {
	return Transform{
		Translation: geom.Vector3{X: s.Translation.X[i], Y: s.Translation.Y[i], Z: s.Translation.Z[i]},
		Rotation:    geom.Quaternion{X: s.Rotation.X[i], Y: s.Rotation.Y[i], Z: s.Rotation.Z[i], W: s.Rotation.W[i]},
		Scale:       geom.Vector3{X: s.Scale.X[i], Y: s.Scale.Y[i], Z: s.Scale.Z[i]},
	}
}

func (s *SoaTransform) SetLane(i int, t Transform) {
	s.Translation.X[i], s.Translation.Y[i], s.Translation.Z[i] = t.Translation.X, t.Translation.Y, t.Translation.Z
	s.Rotation.X[i], s.Rotation.Y[i], s.Rotation.Z[i], s.Rotation.W[i] = t.Rotation.X, t.Rotation.Y, t.Rotation.Z, t.Rotation.W
	s.Scale.X[i], s.Scale.Y[i], s.Scale.Z[i] = t.Scale.X, t.Scale.Y, t.Scale.Z
}

// JointTransform unpacks joint from a SoA buffer.
func JointTransform(soa []SoaTransform, joint int) Transform {
	return soa[joint/SoaWidth].Lane(joint % SoaWidth)
}

func SetJointTransform(soa []SoaTransform, joint int, t Transform) {
	soa[joint/SoaWidth].SetLane(joint%SoaWidth, t)
}
