package skel

import (
	"github.com/binzume/glaconv/geom"
	"github.com/pkg/errors"
)

// LocalToModel composes local joint transforms into model space matrices.
// locals holds one lane per skeleton joint, e.g. the output of Animation.Sample
// or Skeleton.RestPoses.
func LocalToModel(s *Skeleton, locals []SoaTransform) ([]*geom.Matrix4, error) {
	if len(locals) < s.NumSoaJoints() {
		return nil, errors.Errorf("local transform buffer too small: %d < %d", len(locals), s.NumSoaJoints())
	}
	models := make([]*geom.Matrix4, s.NumJoints())
	for i, parent := range s.parents {
		t := JointTransform(locals, i)
		m := t.Matrix()
		if parent != NoParent {
			m = models[parent].Mul(m)
		}
		models[i] = m
	}
	return models, nil
}
