package gla

import (
	"github.com/binzume/glaconv/geom"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// BindPose decomposes the world space bind matrix of bone.
func (f *File) BindPose(bone int) (*geom.Vector3, *geom.Quaternion, *geom.Vector3) {
	return f.Bones[bone].BasePose.Decompose()
}

// LocalBindPose returns the bind transform of bone relative to its parent.
// Roots return their world bind transform. Children always have unit scale.
func (f *File) LocalBindPose(bone int) (*geom.Vector3, *geom.Quaternion, *geom.Vector3) {
	b := f.Bones[bone]
	if b.IsRoot() {
		return f.BindPose(bone)
	}
	pos, rot, _ := f.BindPose(bone)
	ppos, prot, _ := f.BindPose(b.Parent)
	inv := prot.Inverse()
	return inv.ApplyTo(pos.Sub(ppos)), inv.Mul(rot).Normalized(), geom.NewVector3(1, 1, 1)
}

// Pose caches the composed bone matrices of a single frame.
type Pose struct {
	file   *File
	frame  int
	bone   []*geom.Matrix34
	pos    []*geom.Vector3
	rot    []*geom.Quaternion
	lookup []int
}

func (f *File) NewPose(frame int) *Pose {
	n := f.NumBones()
	return &Pose{
		file:  f,
		frame: frame,
		bone:  make([]*geom.Matrix34, n),
		pos:   make([]*geom.Vector3, n),
		rot:   make([]*geom.Quaternion, n),
	}
}

func (p *Pose) Frame() int {
	return p.frame
}

func (p *Pose) localMatrix(bone int) (*geom.Matrix34, error) {
	t, q, err := p.file.BoneTransform(p.frame, bone)
	if err != nil {
		return nil, err
	}
	return geom.NewMatrix34FromQuaternion(q, t), nil
}

// BoneMatrix returns parentBoneMatrix * localAnim for bone, filling the
// cache for every uncomputed ancestor first.
func (p *Pose) BoneMatrix(bone int) (*geom.Matrix34, error) {
	if bone < 0 || bone >= len(p.bone) {
		return nil, errors.Errorf("bone %d out of range", bone)
	}
	if m := p.bone[bone]; m != nil {
		return m, nil
	}

	chain := p.lookup[:0]
	for b := bone; b >= 0 && p.bone[b] == nil; b = p.file.Bones[b].Parent {
		if len(chain) > len(p.bone) {
			return nil, formatErrorf("cyclic parent chain at bone %d", bone)
		}
		chain = append(chain, b)
	}
	p.lookup = chain

	for i := len(chain) - 1; i >= 0; i-- {
		b := chain[i]
		local, err := p.localMatrix(b)
		if err != nil {
			return nil, err
		}
		if parent := p.file.Bones[b].Parent; parent >= 0 {
			local = p.bone[parent].Mul(local)
		}
		p.bone[b] = local
	}
	return p.bone[bone], nil
}

// WorldTransform returns the animated world position and rotation of bone:
// boneMatrix * bindPose.
func (p *Pose) WorldTransform(bone int) (*geom.Vector3, *geom.Quaternion, error) {
	if bone >= 0 && bone < len(p.pos) && p.pos[bone] != nil {
		return p.pos[bone], p.rot[bone], nil
	}
	m, err := p.BoneMatrix(bone)
	if err != nil {
		return nil, nil, err
	}
	w := m.Mul(&p.file.Bones[bone].BasePose)
	_, rot, _ := w.Decompose()
	p.pos[bone], p.rot[bone] = w.Translation(), rot
	return p.pos[bone], p.rot[bone], nil
}

// LocalTransform returns bone relative to parent, where parent may be any
// bone (not necessarily the one recorded in the file). parent < 0 yields the
// world transform.
func (p *Pose) LocalTransform(bone, parent int) (*geom.Vector3, *geom.Quaternion, error) {
	pos, rot, err := p.WorldTransform(bone)
	if err != nil || parent < 0 {
		return pos, rot, err
	}
	ppos, prot, err := p.WorldTransform(parent)
	if err != nil {
		return nil, nil, err
	}
	inv := prot.Inverse()
	return inv.ApplyTo(pos.Sub(ppos)), inv.Mul(rot).Normalized(), nil
}

// Trace logs every intermediate transform of bone at frame at debug level.
func (f *File) Trace(frame, bone int, log *zap.Logger) error {
	if log == nil || bone < 0 || bone >= f.NumBones() {
		return nil
	}
	b := f.Bones[bone]
	pose := f.NewPose(frame)

	t, q, err := f.BoneTransform(frame, bone)
	if err != nil {
		return err
	}
	bpos, brot, bscale := f.BindPose(bone)
	wpos, wrot, err := pose.WorldTransform(bone)
	if err != nil {
		return err
	}
	lpos, lrot, err := pose.LocalTransform(bone, b.Parent)
	if err != nil {
		return err
	}
	fields := []zap.Field{
		zap.String("bone", b.Name), zap.Int("index", bone), zap.Int("parent", b.Parent), zap.Int("frame", frame),
		zap.Any("deltaPos", t), zap.Any("deltaRot", q),
		zap.Any("bindPos", bpos), zap.Any("bindRot", brot), zap.Any("bindScale", bscale),
		zap.Any("worldPos", wpos), zap.Any("worldRot", wrot),
		zap.Any("localPos", lpos), zap.Any("localRot", lrot),
	}
	if b.Parent >= 0 {
		ppos, prot, err := pose.WorldTransform(b.Parent)
		if err != nil {
			return err
		}
		recomposed := ppos.Add(prot.ApplyTo(lpos))
		fields = append(fields, zap.Float32("recomposeError", recomposed.Sub(wpos).Len()))
	}
	log.Debug("bone trace", fields...)
	return nil
}
