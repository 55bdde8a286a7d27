package main

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/binzume/glaconv/config"
	"github.com/binzume/glaconv/gla/glatest"
	"github.com/binzume/glaconv/skel"
	"go.uber.org/zap"
)

func TestDefaultOutputFile(t *testing.T) {
	for _, c := range []struct {
		in       string
		retarget bool
		want     string
	}{
		{"models/_humanoid.gla", false, "models/_humanoid.skel"},
		{"a.GLB", false, "a.skel"},
		{"a.skel", false, "a.glb"},
		{"walk.anim", true, "walk.retargeted.anim"},
		{"walk.anim", false, "walk.anim.skel"},
	} {
		if got := defaultOutputFile(c.in, c.retarget); got != c.want {
			t.Errorf("defaultOutputFile(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSplitNames(t *testing.T) {
	if got := splitNames(" walk, ,idle,"); !reflect.DeepEqual(got, []string{"walk", "idle"}) {
		t.Error("splitNames: ", got)
	}
	if got := splitNames(""); got != nil {
		t.Error("empty: ", got)
	}
}

func newTestApp() *app {
	return &app{cfg: config.Default(), log: zap.NewNop(), out: &bytes.Buffer{}}
}

func writeFile(t *testing.T, path, content string) {
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestPipeline(t *testing.T) {
	dir := t.TempDir()
	glaPath := filepath.Join(dir, "_humanoid.gla")
	writeFile(t, glaPath, string(glatest.TwoBone(3).Bytes()))
	writeFile(t, filepath.Join(dir, "animation.cfg"), "walk 0 3 -1 10\nbroken 1 9 0 10\n")

	a := newTestApp()
	skelPath := filepath.Join(dir, "humanoid.skel")
	if err := a.glaToSkel(glaPath, skelPath, nil, false); err == nil || !strings.Contains(err.Error(), "broken") {
		t.Fatal("broken clip should be reported: ", err)
	}
	s, err := skel.LoadSkeleton(skelPath)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(s.JointNames(), []string{"pelvis", "spine"}) {
		t.Error("joints: ", s.JointNames())
	}
	walkPath := filepath.Join(dir, "walk.anim")
	walk, err := skel.LoadAnimation(walkPath)
	if err != nil {
		t.Fatal(err)
	}
	if walk.NumTracks() != 2 || walk.Duration() != 0.2 {
		t.Error("walk: ", walk.NumTracks(), walk.Duration())
	}
	if _, err := os.Stat(filepath.Join(dir, "broken.anim")); !os.IsNotExist(err) {
		t.Error("failed clip must not be written")
	}

	glbPath := filepath.Join(dir, "humanoid.glb")
	if err := a.skelToGLTF(skelPath, glbPath, []string{walkPath}); err != nil {
		t.Fatal(err)
	}
	backPath := filepath.Join(dir, "back.skel")
	if err := a.gltfToSkel(glbPath, backPath); err != nil {
		t.Fatal(err)
	}
	back, err := skel.LoadSkeleton(backPath)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(back.JointNames(), s.JointNames()) || !reflect.DeepEqual(back.JointParents(), s.JointParents()) {
		t.Error("glTF round trip: ", back.JointNames(), back.JointParents())
	}

	mappingPath := filepath.Join(dir, "mapping.json")
	writeFile(t, mappingPath, `{"mappings":[{"target":"pelvis","source":"pelvis"},{"target":"spine","source":"spine"}]}`)
	outPath := filepath.Join(dir, "walk_out.anim")
	if err := a.retarget(walkPath, outPath, skelPath, backPath, mappingPath); err != nil {
		t.Fatal(err)
	}
	out, err := skel.LoadAnimation(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if out.NumTracks() != 2 {
		t.Error("retargeted tracks: ", out.NumTracks())
	}
	if err := a.retarget(walkPath, outPath, skelPath, "", mappingPath); err == nil {
		t.Error("missing -dst-skel should fail")
	}
}

func TestDump(t *testing.T) {
	dir := t.TempDir()
	glaPath := filepath.Join(dir, "_humanoid.gla")
	writeFile(t, glaPath, string(glatest.TwoBone(1).Bytes()))

	a := newTestApp()
	a.dump = true
	out := filepath.Join(dir, "x.skel")
	if err := a.glaToSkel(glaPath, out, nil, false); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("dump must not write output")
	}
	text := a.out.(*bytes.Buffer).String()
	if !strings.Contains(text, "pelvis") || !strings.Contains(text, "  spine") {
		t.Error("dump output: ", text)
	}
}

func TestDumpGLTFSkins(t *testing.T) {
	dir := t.TempDir()
	glaPath := filepath.Join(dir, "_humanoid.gla")
	writeFile(t, glaPath, string(glatest.TwoBone(1).Bytes()))
	glbPath := filepath.Join(dir, "humanoid.glb")

	a := newTestApp()
	if err := a.glaToSkel(glaPath, glbPath, nil, true); err != nil {
		t.Fatal(err)
	}
	a.dump = true
	if err := a.gltfToSkel(glbPath, filepath.Join(dir, "x.skel")); err != nil {
		t.Fatal(err)
	}
	text := a.out.(*bytes.Buffer).String()
	if !strings.Contains(text, "InverseBindMatrices") || !strings.Contains(text, `"skeleton"`) {
		t.Error("skin dump: ", text)
	}
}

func TestUnsupportedInputs(t *testing.T) {
	a := newTestApp()
	if _, err := loadSkeleton(a, "model.fbx"); err == nil {
		t.Error("fbx skeleton should fail")
	}
	if _, err := loadAnimations([]string{"clip.bvh"}); err == nil {
		t.Error("non .anim should fail")
	}
}
