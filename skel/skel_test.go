package skel

import (
	"bytes"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/binzume/glaconv/geom"
)

func translation(x, y, z float32) Transform {
	t := IdentityTransform()
	t.Translation = geom.Vector3{X: x, Y: y, Z: z}
	return t
}

// root
//
//	+- spine
//	|   +- head
//	+- leg
func testRawSkeleton() *RawSkeleton {
	return &RawSkeleton{Roots: []*RawJoint{
		{Name: "root", Transform: translation(0, 1, 0), Children: []*RawJoint{
			{Name: "spine", Transform: translation(0, 0.5, 0), Children: []*RawJoint{
				{Name: "head", Transform: translation(0, 0.3, 0)},
			}},
			{Name: "leg", Transform: translation(0.2, -0.5, 0)},
		}},
	}}
}

func TestBuildSkeleton(t *testing.T) {
	s, err := BuildSkeleton(testRawSkeleton())
	if err != nil {
		t.Fatal(err)
	}
	if s.NumJoints() != 4 || s.NumSoaJoints() != 1 {
		t.Fatal("joints: ", s.NumJoints(), s.NumSoaJoints())
	}
	names := []string{"root", "spine", "head", "leg"}
	parents := []int{NoParent, 0, 1, 0}
	for i := range names {
		if s.JointNames()[i] != names[i] || s.JointParents()[i] != parents[i] {
			t.Error("joint ", i, s.JointNames()[i], s.JointParents()[i])
		}
		if p := s.JointParents()[i]; p >= i {
			t.Error("parent must precede child: ", i, p)
		}
	}
	if s.JointIndex("leg") != 3 || s.JointIndex("tail") != -1 {
		t.Error("JointIndex")
	}
	if r := s.RestPose(3); r.Translation != (geom.Vector3{X: 0.2, Y: -0.5}) || r.Scale != (geom.Vector3{X: 1, Y: 1, Z: 1}) {
		t.Error("rest pose: ", r)
	}
	if c := s.Children(0); len(c) != 2 || c[0] != 1 || c[1] != 3 {
		t.Error("children: ", c)
	}
	if s.Depth(2) != 2 || s.Depth(0) != 0 {
		t.Error("depth")
	}
}

func TestRawSkeletonValidate(t *testing.T) {
	if _, err := BuildSkeleton(&RawSkeleton{}); !errors.Is(err, ErrValidation) {
		t.Error("empty skeleton: ", err)
	}
	raw := testRawSkeleton()
	raw.Roots[0].Children[1].Name = ""
	if _, err := BuildSkeleton(raw); !errors.Is(err, ErrValidation) {
		t.Error("empty name: ", err)
	}
	raw = testRawSkeleton()
	raw.Roots[0].Transform.Translation.X = float32(math.Inf(1))
	if _, err := BuildSkeleton(raw); !errors.Is(err, ErrValidation) {
		t.Error("non-finite: ", err)
	}
}

func TestSoaLanes(t *testing.T) {
	soa := make([]SoaTransform, NumSoa(6))
	if len(soa) != 2 || NumSoa(8) != 2 || NumSoa(0) != 0 {
		t.Fatal("NumSoa")
	}
	for i := 0; i < 6; i++ {
		SetJointTransform(soa, i, translation(float32(i), 0, 0))
	}
	for i := 0; i < 6; i++ {
		if tr := JointTransform(soa, i); tr.Translation.X != float32(i) || tr.Rotation.W != 1 {
			t.Error("lane ", i, tr)
		}
	}
	if soa[1].Translation.X[1] != 5 {
		t.Error("joint 5 should be lane 1 of soa 1")
	}
}

func testRawAnimation() *RawAnimation {
	q := geom.NewQuaternionFromAxisAngle(geom.NewVector3(0, 1, 0), math.Pi/2)
	return &RawAnimation{
		Name:     "walk",
		Duration: 2,
		Tracks: []JointTrack{
			{
				Translations: []TranslationKey{{Time: 0, Value: geom.Vector3{}}, {Time: 2, Value: geom.Vector3{X: 4}}},
				Rotations:    []RotationKey{{Time: 0, Value: geom.Quaternion{W: 1}}, {Time: 1, Value: *q}},
			},
			{},
			{Scales: []ScaleKey{{Time: 1, Value: geom.Vector3{X: 2, Y: 2, Z: 2}}}},
		},
	}
}

func TestRawAnimationValidate(t *testing.T) {
	if err := testRawAnimation().Validate(); err != nil {
		t.Fatal(err)
	}
	for _, c := range []struct {
		name   string
		modify func(a *RawAnimation)
	}{
		{"zero duration", func(a *RawAnimation) { a.Duration = 0 }},
		{"nan duration", func(a *RawAnimation) { a.Duration = float32(math.NaN()) }},
		{"key after end", func(a *RawAnimation) { a.Tracks[0].Translations[1].Time = 3 }},
		{"negative time", func(a *RawAnimation) { a.Tracks[2].Scales[0].Time = -1 }},
		{"not ascending", func(a *RawAnimation) { a.Tracks[0].Rotations[1].Time = 0 }},
		{"non-finite value", func(a *RawAnimation) { a.Tracks[0].Rotations[1].Value.X = float32(math.NaN()) }},
	} {
		t.Run(c.name, func(t *testing.T) {
			a := testRawAnimation()
			c.modify(a)
			if _, err := BuildAnimation(a); !errors.Is(err, ErrValidation) {
				t.Error("expected validation error: ", err)
			}
		})
	}
}

func TestAnimationSample(t *testing.T) {
	const eps = 0.0001
	a, err := BuildAnimation(testRawAnimation())
	if err != nil {
		t.Fatal(err)
	}
	if a.Name() != "walk" || a.Duration() != 2 || a.NumTracks() != 3 || a.NumSoaTracks() != 1 {
		t.Fatal("animation: ", a.Name(), a.Duration(), a.NumTracks())
	}
	out := make([]SoaTransform, 1)

	if err := a.Sample(0.25, out); err != nil {
		t.Fatal(err)
	}
	tr := JointTransform(out, 0)
	if math.Abs(float64(tr.Translation.X-1)) > eps {
		t.Error("translation: ", tr.Translation)
	}
	want := geom.NewQuaternionFromAxisAngle(geom.NewVector3(0, 1, 0), math.Pi/4)
	if tr.Rotation.Sub(want).Len() > eps {
		t.Error("rotation: ", tr.Rotation, want)
	}
	if empty := JointTransform(out, 1); empty != IdentityTransform() {
		t.Error("empty track: ", empty)
	}
	// before the first key the first value holds
	if s := JointTransform(out, 2); s.Scale != (geom.Vector3{X: 2, Y: 2, Z: 2}) {
		t.Error("scale: ", s.Scale)
	}

	if err := a.Sample(5, out); err != nil {
		t.Fatal(err)
	}
	if tr := JointTransform(out, 0); tr.Translation.X != 4 {
		t.Error("ratio should clamp to 1: ", tr.Translation)
	}
	if err := a.Sample(0.5, nil); err == nil {
		t.Error("short buffer should fail")
	}
}

func TestLocalToModel(t *testing.T) {
	const eps = 0.0001
	s, err := BuildSkeleton(testRawSkeleton())
	if err != nil {
		t.Fatal(err)
	}
	models, err := LocalToModel(s, s.RestPoses())
	if err != nil {
		t.Fatal(err)
	}
	head := models[2].ApplyTo(&geom.Vector3{})
	if head.Sub(geom.NewVector3(0, 1.8, 0)).Len() > eps {
		t.Error("head: ", head)
	}

	locals := append([]SoaTransform{}, s.RestPoses()...)
	root := s.RestPose(0)
	root.Rotation = *geom.NewQuaternionFromAxisAngle(geom.NewVector3(0, 0, 1), math.Pi/2)
	SetJointTransform(locals, 0, root)
	models, err = LocalToModel(s, locals)
	if err != nil {
		t.Fatal(err)
	}
	leg := models[3].ApplyTo(&geom.Vector3{})
	if leg.Sub(geom.NewVector3(0.5, 1.2, 0)).Len() > eps {
		t.Error("leg: ", leg)
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	const eps = 0.00001
	dir := t.TempDir()
	s, err := BuildSkeleton(testRawSkeleton())
	if err != nil {
		t.Fatal(err)
	}
	a, err := BuildAnimation(testRawAnimation())
	if err != nil {
		t.Fatal(err)
	}

	skelPath := filepath.Join(dir, "test.skel")
	animPath := filepath.Join(dir, "walk.anim")
	if err := SaveSkeleton(skelPath, s); err != nil {
		t.Fatal(err)
	}
	if err := SaveAnimation(animPath, a); err != nil {
		t.Fatal(err)
	}

	s2, err := LoadSkeleton(skelPath)
	if err != nil {
		t.Fatal(err)
	}
	if s2.NumJoints() != s.NumJoints() {
		t.Fatal("joints: ", s2.NumJoints())
	}
	for i := 0; i < s.NumJoints(); i++ {
		if s2.JointNames()[i] != s.JointNames()[i] || s2.JointParents()[i] != s.JointParents()[i] || s2.RestPose(i) != s.RestPose(i) {
			t.Error("joint ", i)
		}
	}

	a2, err := LoadAnimation(animPath)
	if err != nil {
		t.Fatal(err)
	}
	if a2.Name() != "walk" || a2.Duration() != 2 || a2.NumTracks() != 3 {
		t.Fatal("animation: ", a2.Name(), a2.Duration(), a2.NumTracks())
	}
	out1, out2 := make([]SoaTransform, 1), make([]SoaTransform, 1)
	a.Sample(0.3, out1)
	a2.Sample(0.3, out2)
	for i := 0; i < 3; i++ {
		t1, t2 := JointTransform(out1, i), JointTransform(out2, i)
		if t1.Translation.Sub(&t2.Translation).Len() > eps || t1.Rotation.Sub(&t2.Rotation).Len() > eps {
			t.Error("track ", i, t1, t2)
		}
	}
}

func TestArchiveTagMismatch(t *testing.T) {
	s, err := BuildSkeleton(testRawSkeleton())
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := WriteSkeleton(&buf, s); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadAnimation(bytes.NewReader(buf.Bytes())); !errors.Is(err, ErrArchive) {
		t.Error("expected archive error: ", err)
	}
	if _, err := ReadSkeleton(bytes.NewReader(buf.Bytes()[:buf.Len()-4])); err == nil {
		t.Error("truncated archive should fail")
	}
}
