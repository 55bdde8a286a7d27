// Package animcfg reads animation.cfg clip tables that accompany GLA files.
package animcfg

import (
	"bufio"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const FileName = "animation.cfg"

// Clip is a named frame range inside a GLA.
type Clip struct {
	Name       string
	StartFrame int
	FrameCount int
	LoopFrame  int // -1: no loop
	FPS        float32
}

// Duration is (FrameCount-1)/FPS, or 0 for single frame clips.
func (c *Clip) Duration() float32 {
	if c.FPS <= 0 || c.FrameCount <= 1 {
		return 0
	}
	return float32(c.FrameCount-1) / c.FPS
}

func (c *Clip) EndFrame() int {
	return c.StartFrame + c.FrameCount - 1
}

type Table struct {
	Clips []*Clip
}

// Find returns the first clip named name, or nil.
func (t *Table) Find(name string) *Clip {
	for _, c := range t.Clips {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Names returns clip names in file order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.Clips))
	for _, c := range t.Clips {
		names = append(names, c.Name)
	}
	return names
}

func isComment(s string) bool {
	return strings.HasPrefix(s, "//")
}

func parseLine(line string) (*Clip, bool) {
	f := strings.Fields(line)
	if len(f) < 5 || isComment(f[0]) {
		return nil, false
	}
	start, err := strconv.Atoi(f[1])
	if err != nil {
		return nil, false
	}
	count, err := strconv.Atoi(f[2])
	if err != nil {
		return nil, false
	}
	loop, err := strconv.Atoi(f[3])
	if err != nil {
		return nil, false
	}
	fps, err := strconv.ParseFloat(f[4], 32)
	if err != nil {
		return nil, false
	}
	if count <= 0 || start < 0 {
		return nil, false
	}
	// negative fps marks reverse playback in some files; direction is not kept.
	return &Clip{Name: f[0], StartFrame: start, FrameCount: count, LoopFrame: loop, FPS: float32(math.Abs(fps))}, true
}

// Parse reads a clip table. Malformed lines are logged and skipped.
func Parse(r io.Reader, log *zap.Logger) (*Table, error) {
	if log == nil {
		log = zap.NewNop()
	}
	t := &Table{}
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || isComment(line) {
			continue
		}
		clip, ok := parseLine(line)
		if !ok {
			log.Warn("skipping animation.cfg line", zap.Int("line", lineNum), zap.String("text", line))
			continue
		}
		t.Clips = append(t.Clips, clip)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read animation.cfg")
	}
	return t, nil
}

// Load reads a clip table from path. A file without any valid clip is an error.
func Load(path string, log *zap.Logger) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := Parse(f, log)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	if len(t.Clips) == 0 {
		return nil, errors.Errorf("%s: no animation clips", path)
	}
	if log != nil {
		log.Debug("loaded animation clips", zap.String("path", path), zap.Int("clips", len(t.Clips)))
	}
	return t, nil
}

// LoadFromGLADirectory loads animation.cfg next to the given GLA file.
func LoadFromGLADirectory(glaPath string, log *zap.Logger) (*Table, error) {
	return Load(filepath.Join(filepath.Dir(glaPath), FileName), log)
}
