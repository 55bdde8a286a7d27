package gla

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/binzume/glaconv/coord"
	"github.com/binzume/glaconv/geom"
	"github.com/binzume/glaconv/gla/glatest"
)

func TestParse(t *testing.T) {
	g := glatest.TwoBone(3)
	f, err := Parse(g.Bytes(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if f.Header.Name != "models/test/_humanoid" {
		t.Error("name: ", f.Header.Name)
	}
	if f.NumFrames() != 3 || f.NumBones() != 2 {
		t.Error("counts: ", f.NumFrames(), f.NumBones())
	}
	if f.Bones[0].Name != "pelvis" || !f.Bones[0].IsRoot() {
		t.Error("bone 0: ", f.Bones[0])
	}
	if f.Bones[1].Name != "spine" || f.Bones[1].Parent != 0 {
		t.Error("bone 1: ", f.Bones[1])
	}
	if f.BoneIndex("spine") != 1 || f.BoneIndex("head") != -1 {
		t.Error("BoneIndex")
	}
	if r := f.Roots(); len(r) != 1 || r[0] != 0 {
		t.Error("roots: ", r)
	}
	if c := f.Children(0); len(c) != 1 || c[0] != 1 {
		t.Error("children: ", c)
	}
}

func TestParseBoneNameEncoding(t *testing.T) {
	g := glatest.TwoBone(1)
	g.Bones[1].Name = "caf\xe9"
	f, err := Parse(g.Bytes(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if f.Bones[1].Name != "café" {
		t.Errorf("name: %q", f.Bones[1].Name)
	}
}

func TestParseFormatErrors(t *testing.T) {
	valid := glatest.TwoBone(2).Bytes()
	putI32 := func(b []byte, ofs int, v int32) []byte {
		c := append([]byte{}, b...)
		binary.LittleEndian.PutUint32(c[ofs:], uint32(v))
		return c
	}
	const (
		ofsVersion   = 4
		ofsNumFrames = 76
		ofsFrames    = 80
		ofsNumBones  = 84
		ofsPool      = 88
		ofsSkel      = 92
		ofsEnd       = 96
	)
	withParents := func(parents ...int32) []byte {
		g := glatest.TwoBone(2)
		for len(g.Bones) < len(parents) {
			b := g.Bones[1]
			b.Name = fmt.Sprintf("extra%d", len(g.Bones))
			g.Bones = append(g.Bones, b)
		}
		for i, p := range parents {
			g.Bones[i].Parent = p
		}
		for i := range g.Frames {
			g.Frames[i] = make([]uint32, len(g.Bones))
		}
		return g.Bytes()
	}

	for _, c := range []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", valid[:HeaderSize-1]},
		{"magic", putI32(valid, 0, 0x12345678)},
		{"version", putI32(valid, ofsVersion, 5)},
		{"skeleton offset zero", putI32(valid, ofsSkel, 0)},
		{"skeleton offset past end", putI32(valid, ofsSkel, int32(len(valid)))},
		{"bone offset table", putI32(valid, ofsNumBones, 1<<20)},
		{"bone past end", putI32(valid, HeaderSize+4, int32(len(valid)))},
		{"bone negative offset", putI32(valid, HeaderSize, -8)},
		{"frame offset", putI32(valid, ofsFrames, 0)},
		{"frame data past end", putI32(valid, ofsNumFrames, 1<<16)},
		{"pool offset", putI32(valid, ofsPool, int32(len(valid)))},
		{"pool negative size", putI32(valid, ofsEnd, 50)},
		{"self parent", withParents(-1, 1)},
		{"parent cycle", withParents(-1, 2, 1)},
		{"cycle without root", withParents(1, 0)},
		{"cycle below root", withParents(-1, 0, 3, 2)},
	} {
		t.Run(c.name, func(t *testing.T) {
			_, err := Parse(c.data, nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrFormat) {
				t.Error("not a format error: ", err)
			}
		})
	}
}

func TestDecompressBoneIdentity(t *testing.T) {
	rec := make([]byte, CompressedBoneSize)
	for i, v := range glatest.IdentityRecord {
		binary.LittleEndian.PutUint16(rec[i*2:], v)
	}
	pos, rot, err := DecompressBone(rec)
	if err != nil {
		t.Fatal(err)
	}
	if *pos != (geom.Vector3{}) {
		t.Error("translation: ", pos)
	}
	if *rot != *geom.IdentityQuaternion() {
		t.Error("rotation: ", rot)
	}

	if _, _, err := DecompressBone(rec[:10]); !errors.Is(err, ErrFormat) {
		t.Error("short record should be a format error: ", err)
	}
}

func TestDecompressBoneUnitLength(t *testing.T) {
	values := []uint16{0, 1, 8191, 16383, 32766, 32767, 32768, 49149, 65534, 65535}
	rec := make([]byte, CompressedBoneSize)
	for _, w := range values {
		for _, x := range values {
			for _, y := range values {
				for _, z := range values {
					for i, v := range []uint16{w, x, y, z} {
						binary.LittleEndian.PutUint16(rec[i*2:], v)
					}
					_, q, _ := DecompressBone(rec)
					if math.Abs(float64(q.Len()-1)) > 1e-3 {
						t.Fatal("not unit length: ", w, x, y, z, q)
					}
				}
			}
		}
	}
}

func TestDecompressBoneTranslation(t *testing.T) {
	rec := make([]byte, CompressedBoneSize)
	for i, v := range glatest.TranslationRecord(1.5, -2, 300) {
		binary.LittleEndian.PutUint16(rec[i*2:], v)
	}
	pos, _, _ := DecompressBone(rec)
	if *pos != *geom.NewVector3(1.5, -2, 300) {
		t.Error("translation: ", pos)
	}

	for i := 8; i < 14; i += 2 {
		binary.LittleEndian.PutUint16(rec[i:], 0)
	}
	pos, _, _ = DecompressBone(rec)
	if *pos != *geom.NewVector3(-512, -512, -512) {
		t.Error("min translation: ", pos)
	}
}

func TestReadFrameIndex(t *testing.T) {
	g := glatest.TwoBone(2)
	g.Pool = append(g.Pool, glatest.IdentityRecord, glatest.IdentityRecord)
	g.Frames[1] = []uint32{2, 1}
	f, err := Parse(g.Bytes(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if f.ReadFrameIndex(1, 0) != 2 || f.ReadFrameIndex(1, 1) != 1 || f.ReadFrameIndex(0, 1) != 0 {
		t.Error("frame indices")
	}
	for _, c := range [][2]int{{-1, 0}, {2, 0}, {0, -1}, {0, 2}, {100, 100}} {
		if v := f.ReadFrameIndex(c[0], c[1]); v != 0 {
			t.Error("out of range should be 0: ", c, v)
		}
		if _, err := f.FrameIndex(c[0], c[1]); err == nil {
			t.Error("FrameIndex should fail: ", c)
		}
	}
}

func TestStrictFrameIndex(t *testing.T) {
	g := glatest.TwoBone(2)
	g.Frames[1][1] = 5 // only one record in the pool
	data := g.Bytes()

	if _, err := Parse(data, &Options{Strict: true}); !errors.Is(err, ErrFormat) {
		t.Error("strict parse should fail: ", err)
	}

	f, err := Parse(data, nil)
	if err != nil {
		t.Fatal(err)
	}
	pos, rot, err := f.BoneTransform(1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if *pos != (geom.Vector3{}) || *rot != *geom.IdentityQuaternion() {
		t.Error("lenient fallback: ", pos, rot)
	}
}

func TestLocalBindPose(t *testing.T) {
	const eps = 0.0001
	f, err := Parse(glatest.TwoBone(1).Bytes(), nil)
	if err != nil {
		t.Fatal(err)
	}

	pos, rot, scale := f.LocalBindPose(0)
	if pos.Sub(geom.NewVector3(10, 0, 40)).Len() > eps {
		t.Error("root pos: ", pos)
	}
	if math.Abs(float64(scale.X-0.64)) > eps {
		t.Error("root scale: ", scale)
	}
	want := geom.NewQuaternionFromAxisAngle(geom.NewVector3(0, 0, 1), math.Pi/2)
	if rot.Sub(want).Len() > eps {
		t.Error("root rot: ", rot)
	}

	// world offset (0,5,10) seen from a parent rotated +90 degrees about Z.
	pos, rot, scale = f.LocalBindPose(1)
	if pos.Sub(geom.NewVector3(5, 0, 10)).Len() > eps {
		t.Error("spine pos: ", pos)
	}
	if rot.Sub(geom.IdentityQuaternion()).Len() > eps {
		t.Error("spine rot: ", rot)
	}
	if *scale != *geom.NewVector3(1, 1, 1) {
		t.Error("spine scale: ", scale)
	}

	cpos := coord.ConvertPosition(pos)
	crot := coord.ConvertQuaternion(rot)
	if cpos.Sub(geom.NewVector3(5*0.0254, 10*0.0254, 0)).Len() > eps {
		t.Error("converted spine pos: ", cpos)
	}
	if crot.Sub(geom.IdentityQuaternion()).Len() > eps {
		t.Error("converted spine rot: ", crot)
	}
}

func TestPoseWorldTransform(t *testing.T) {
	const eps = 0.001

	g := glatest.TwoBone(2)
	g.Pool = append(g.Pool, glatest.TranslationRecord(1, 2, 3))
	g.Frames[1] = []uint32{1, 0}
	f, err := Parse(g.Bytes(), nil)
	if err != nil {
		t.Fatal(err)
	}

	// identity deltas reproduce the bind pose.
	pose := f.NewPose(0)
	for i := range f.Bones {
		pos, rot, err := pose.WorldTransform(i)
		if err != nil {
			t.Fatal(err)
		}
		bpos, brot, _ := f.BindPose(i)
		if pos.Sub(bpos).Len() > eps || rot.Sub(brot).Len() > eps {
			t.Error("frame 0 bone ", i, pos, rot, bpos, brot)
		}
	}

	// translating the root moves every descendant.
	pose = f.NewPose(1)
	spos, srot, err := pose.WorldTransform(1)
	if err != nil {
		t.Fatal(err)
	}
	if spos.Sub(geom.NewVector3(11, 7, 53)).Len() > eps {
		t.Error("spine world pos: ", spos)
	}
	lpos, lrot, err := pose.LocalTransform(1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if lpos.Sub(geom.NewVector3(5, 0, 10)).Len() > eps || lrot.Sub(geom.IdentityQuaternion()).Len() > eps {
		t.Error("spine local: ", lpos, lrot)
	}
	wpos, wrot, err := pose.LocalTransform(1, -1)
	if err != nil {
		t.Fatal(err)
	}
	if wpos != spos || wrot != srot {
		t.Error("parent -1 should return the cached world transform")
	}

	fresh, _, err := f.NewPose(1).WorldTransform(1)
	if err != nil {
		t.Fatal(err)
	}
	if fresh.Sub(spos).Len() > eps {
		t.Error("new pose: ", fresh, spos)
	}
}

func TestPoseCyclicParents(t *testing.T) {
	f, err := Parse(glatest.TwoBone(1).Bytes(), nil)
	if err != nil {
		t.Fatal(err)
	}
	f.Bones[0].Parent = 1
	if _, _, err := f.NewPose(0).WorldTransform(1); !errors.Is(err, ErrFormat) {
		t.Error("cycle should be reported: ", err)
	}
}
