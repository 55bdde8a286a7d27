// Package glatest builds small synthetic GLA files for tests.
package glatest

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/binzume/glaconv/geom"
)

const (
	ident          = 0x32474C41
	version        = 6
	headerSize     = 100
	boneHeaderSize = 172
	frameIndexSize = 3
	recordSize     = 14
)

type Bone struct {
	Name   string
	Parent int32
	Pose   geom.Matrix34
}

// Record holds the seven raw 16-bit values of a compressed bone: w x y z tx ty tz.
type Record [7]uint16

var IdentityRecord = Record{49149, 32766, 32766, 32766, 32768, 32768, 32768}

func encodeTranslation(v float32) uint16 {
	return uint16((v + 512) * 64)
}

func encodeQuat(v float32) uint16 {
	return uint16(math.Round(float64((v + 2) * 16383)))
}

// TranslationRecord encodes a pure translation; components must be multiples of 1/64.
func TranslationRecord(x, y, z float32) Record {
	return Record{49149, 32766, 32766, 32766, encodeTranslation(x), encodeTranslation(y), encodeTranslation(z)}
}

// NewRecord encodes q and t with the fixed point precision of the format.
func NewRecord(q *geom.Quaternion, t *geom.Vector3) Record {
	return Record{encodeQuat(q.W), encodeQuat(q.X), encodeQuat(q.Y), encodeQuat(q.Z),
		encodeTranslation(t.X), encodeTranslation(t.Y), encodeTranslation(t.Z)}
}

// GLA describes a file: Frames[frame][bone] indexes Pool.
type GLA struct {
	Name   string
	Bones  []Bone
	Frames [][]uint32
	Pool   []Record
}

type header struct {
	Ident           uint32
	Version         uint32
	Name            [64]byte
	Scale           float32
	NumFrames       int32
	OfsFrames       int32
	NumBones        int32
	OfsCompBonePool int32
	OfsSkel         int32
	OfsEnd          int32
}

type bone struct {
	Name        [64]byte
	Flags       uint32
	Parent      int32
	BasePose    [3][4]float32
	BasePoseInv [3][4]float32
	NumChildren int32
}

// Bytes lays out header | bone offsets | bones | frame indices | pool.
func (g *GLA) Bytes() []byte {
	nb := len(g.Bones)
	ofsFrames := headerSize + nb*4 + nb*boneHeaderSize
	ofsPool := ofsFrames + len(g.Frames)*nb*frameIndexSize
	ofsEnd := ofsPool + len(g.Pool)*recordSize

	var buf bytes.Buffer
	w := func(v interface{}) {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			panic(err)
		}
	}
	h := header{
		Ident:           ident,
		Version:         version,
		Scale:           1,
		NumFrames:       int32(len(g.Frames)),
		OfsFrames:       int32(ofsFrames),
		NumBones:        int32(nb),
		OfsCompBonePool: int32(ofsPool),
		OfsSkel:         headerSize,
		OfsEnd:          int32(ofsEnd),
	}
	name := g.Name
	if name == "" {
		name = "models/test/_humanoid"
	}
	copy(h.Name[:], name)
	w(&h)
	for i := range g.Bones {
		w(int32(nb*4 + i*boneHeaderSize))
	}
	for i, b := range g.Bones {
		rb := bone{Parent: b.Parent, BasePose: [3][4]float32(b.Pose), BasePoseInv: [3][4]float32(*b.Pose.Inverse())}
		for _, c := range g.Bones {
			if int(c.Parent) == i {
				rb.NumChildren++
			}
		}
		copy(rb.Name[:], b.Name)
		w(&rb)
	}
	for _, f := range g.Frames {
		for _, idx := range f {
			buf.Write([]byte{byte(idx), byte(idx >> 8), byte(idx >> 16)})
		}
	}
	for _, r := range g.Pool {
		w(r)
	}
	return buf.Bytes()
}

// BoneMatrix is a bind matrix with a uniform scale baked into the rotation part.
func BoneMatrix(q *geom.Quaternion, t *geom.Vector3, scale float32) geom.Matrix34 {
	m := *geom.NewMatrix34FromQuaternion(q, t)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i][j] *= scale
		}
	}
	return m
}

// TwoBone is a pelvis/spine skeleton rotated 90 degrees about Z with the
// legacy 0.64 build scale in the bind matrices. Every frame uses the
// identity record.
func TwoBone(frames int) *GLA {
	rot := geom.NewQuaternionFromAxisAngle(geom.NewVector3(0, 0, 1), math.Pi/2)
	g := &GLA{
		Bones: []Bone{
			{Name: "pelvis", Parent: -1, Pose: BoneMatrix(rot, geom.NewVector3(10, 0, 40), 0.64)},
			{Name: "spine", Parent: 0, Pose: BoneMatrix(rot, geom.NewVector3(10, 5, 50), 0.64)},
		},
		Pool: []Record{IdentityRecord},
	}
	for i := 0; i < frames; i++ {
		g.Frames = append(g.Frames, []uint32{0, 0})
	}
	return g
}
