package gla

import (
	"encoding/binary"

	"github.com/binzume/glaconv/geom"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DecompressBone unpacks a 14 byte record: quaternion w,x,y,z followed by
// translation x,y,z, each a little-endian uint16 in fixed point.
// The rotation is renormalized; a degenerate one becomes identity.
// Records shorter than CompressedBoneSize are a format error.
func DecompressBone(rec []byte) (*geom.Vector3, *geom.Quaternion, error) {
	if len(rec) < CompressedBoneSize {
		return nil, nil, formatErrorf("compressed bone record has %d bytes, need %d", len(rec), CompressedBoneSize)
	}
	u := func(i int) float32 {
		return float32(binary.LittleEndian.Uint16(rec[i*2:]))
	}
	q := &geom.Quaternion{
		W: u(0)/quatScale - quatOffset,
		X: u(1)/quatScale - quatOffset,
		Y: u(2)/quatScale - quatOffset,
		Z: u(3)/quatScale - quatOffset,
	}
	t := &geom.Vector3{
		X: u(4)/transScale - transOffset,
		Y: u(5)/transScale - transOffset,
		Z: u(6)/transScale - transOffset,
	}
	return t, q.Normalized(), nil
}

// ReadFrameIndex returns the pool index of bone at frame. Out of range
// arguments yield 0.
func (f *File) ReadFrameIndex(frame, bone int) uint32 {
	if frame < 0 || frame >= f.NumFrames() || bone < 0 || bone >= int(f.Header.NumBones) {
		return 0
	}
	o := (frame*int(f.Header.NumBones) + bone) * FrameIndexSize
	b := f.frames[o : o+FrameIndexSize]
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

// FrameIndex is ReadFrameIndex with range checking.
func (f *File) FrameIndex(frame, bone int) (uint32, error) {
	if frame < 0 || frame >= f.NumFrames() {
		return 0, errors.Errorf("frame %d out of range [0,%d)", frame, f.NumFrames())
	}
	if bone < 0 || bone >= int(f.Header.NumBones) {
		return 0, errors.Errorf("bone %d out of range [0,%d)", bone, f.Header.NumBones)
	}
	return f.ReadFrameIndex(frame, bone), nil
}

// BoneTransform returns the decompressed local delta of bone at frame.
func (f *File) BoneTransform(frame, bone int) (*geom.Vector3, *geom.Quaternion, error) {
	var idx uint32
	if f.strict {
		var err error
		if idx, err = f.FrameIndex(frame, bone); err != nil {
			return nil, nil, err
		}
	} else {
		idx = f.ReadFrameIndex(frame, bone)
	}

	ofs := int64(idx) * CompressedBoneSize
	if ofs+CompressedBoneSize > int64(len(f.pool)) {
		if f.strict {
			return nil, nil, formatErrorf("frame %d bone %d: pool index %d out of range", frame, bone, idx)
		}
		f.log.Warn("bone pool index out of range, using identity",
			zap.Int("frame", frame), zap.Int("bone", bone), zap.Uint32("index", idx))
		return &geom.Vector3{}, geom.IdentityQuaternion(), nil
	}
	return DecompressBone(f.pool[ofs : ofs+CompressedBoneSize])
}
