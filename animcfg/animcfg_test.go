package animcfg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleCfg = `// comment line
   // indented comment

BOTH_STAND1      0      40      -1      20
BOTH_WALK1       40     16      0       -20
//BOTH_DISABLED  56     10      -1      20
BROKEN           x      10      -1      20
TOOSHORT 1 2 3
ZEROCOUNT        60     0       -1      20
NEGSTART         -1     5       -1      20
SINGLE           70     1       -1      20
BOTH_STAND1      80     2       -1      10
`

func TestParse(t *testing.T) {
	tbl, err := Parse(strings.NewReader(sampleCfg), nil)
	if err != nil {
		t.Fatal(err)
	}

	names := tbl.Names()
	want := []string{"BOTH_STAND1", "BOTH_WALK1", "SINGLE", "BOTH_STAND1"}
	if len(names) != len(want) {
		t.Fatalf("names: %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d]: %v != %v", i, names[i], want[i])
		}
	}

	walk := tbl.Find("BOTH_WALK1")
	if walk == nil {
		t.Fatal("BOTH_WALK1 not found")
	}
	if walk.FPS != 20 || walk.StartFrame != 40 || walk.FrameCount != 16 || walk.LoopFrame != 0 {
		t.Error("BOTH_WALK1: ", walk)
	}
	if d := walk.Duration(); d != 15.0/20 {
		t.Error("duration: ", d)
	}
	if walk.EndFrame() != 55 {
		t.Error("end frame: ", walk.EndFrame())
	}

	// duplicates are kept; lookup returns the first one.
	if c := tbl.Find("BOTH_STAND1"); c == nil || c.StartFrame != 0 {
		t.Error("first match: ", c)
	}

	if c := tbl.Find("SINGLE"); c == nil || c.Duration() != 0 {
		t.Error("single frame clip: ", c)
	}

	if tbl.Find("MISSING") != nil {
		t.Error("unexpected clip")
	}
}

func TestLoadFromGLADirectory(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadFromGLADirectory(filepath.Join(dir, "_humanoid.gla"), nil); err == nil {
		t.Error("missing animation.cfg should fail")
	}

	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("// nothing here\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromGLADirectory(filepath.Join(dir, "_humanoid.gla"), nil); err == nil {
		t.Error("animation.cfg without clips should fail")
	}

	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(sampleCfg), 0644); err != nil {
		t.Fatal(err)
	}
	tbl, err := LoadFromGLADirectory(filepath.Join(dir, "_humanoid.gla"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(tbl.Clips) != 4 {
		t.Error("clips: ", len(tbl.Clips))
	}
}
