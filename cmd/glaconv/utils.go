package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/binzume/glaconv/converter"
	"github.com/binzume/glaconv/coord"
	"github.com/binzume/glaconv/geom"
	"github.com/binzume/glaconv/gltfutil"
	"github.com/binzume/glaconv/skel"
	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var spewConfig *spew.ConfigState

func init() {
	spewConfig = spew.NewDefaultConfig()
	spewConfig.DisableCapacities = true
	spewConfig.DisablePointerAddresses = true
	spewConfig.SortKeys = true
}

func dump(w io.Writer, a ...interface{}) {
	fmt.Fprintln(w, spewConfig.Sdump(a...))
}

func ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

func isGLTF(path string) bool {
	e := ext(path)
	return e == ".gltf" || e == ".glb"
}

func replaceExt(path, newExt string) string {
	return path[0:len(path)-len(filepath.Ext(path))] + newExt
}

func newGLAImporter(app *app) *converter.GLAImporter {
	return converter.NewGLAImporter(&converter.GLAImporterOption{
		Strict:     app.cfg.GLA.StrictFrameIndex,
		DefaultFPS: app.cfg.Import.DefaultFPS,
		Coord:      &coord.Converter{Scale: geom.Element(app.cfg.GLA.UnitScale)},
		Logger:     app.log,
	})
}

// loadSkeleton reads a skeleton from a .skel archive, a .gla or a glTF file.
func loadSkeleton(app *app, path string) (*skel.Skeleton, error) {
	var raw *skel.RawSkeleton
	switch {
	case ext(path) == ".skel":
		return skel.LoadSkeleton(path)
	case ext(path) == ".gla":
		imp := newGLAImporter(app)
		if err := imp.Load(path); err != nil {
			return nil, err
		}
		var err error
		if raw, err = imp.ImportSkeleton(); err != nil {
			return nil, err
		}
	case isGLTF(path):
		doc, err := gltfutil.Load(path)
		if err != nil {
			return nil, err
		}
		if raw, err = converter.GLTFToSkeleton(doc, app.log); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Errorf("%s: unsupported skeleton type", path)
	}
	s, err := skel.BuildSkeleton(raw)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	app.log.Info("skeleton loaded", zap.String("path", path), zap.Int("joints", s.NumJoints()))
	return s, nil
}

func loadAnimations(paths []string) ([]*skel.Animation, error) {
	var anims []*skel.Animation
	for _, p := range paths {
		if ext(p) != ".anim" {
			return nil, errors.Errorf("%s: not an animation archive", p)
		}
		a, err := skel.LoadAnimation(p)
		if err != nil {
			return nil, errors.Wrap(err, p)
		}
		anims = append(anims, a)
	}
	return anims, nil
}

func splitNames(s string) []string {
	var names []string
	for _, n := range strings.Split(s, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}

type skeletonDump struct {
	Names   []string
	Parents []int
	Rest    []skel.Transform
}

func dumpSkeleton(w io.Writer, s *skel.Skeleton) {
	d := skeletonDump{Names: s.JointNames(), Parents: s.JointParents()}
	for i := 0; i < s.NumJoints(); i++ {
		d.Rest = append(d.Rest, s.RestPose(i))
	}
	dump(w, d)
	converter.PrintHierarchy(w, s)
}

type skinDump struct {
	Name                string
	Joints              []string
	InverseBindMatrices [][4][4]float32
}

// dumpSkins prints every skin of the glTF file with its inverse bind matrices.
func dumpSkins(w io.Writer, path string) error {
	doc, err := gltfutil.Load(path)
	if err != nil {
		return err
	}
	for i, skin := range doc.Skins {
		ibms, err := gltfutil.InverseBindMatrices(doc, skin)
		if err != nil {
			return errors.Wrapf(err, "skin %d", i)
		}
		d := skinDump{Name: skin.Name}
		for k, n := range skin.Joints {
			d.Joints = append(d.Joints, doc.Nodes[n].Name)
			d.InverseBindMatrices = append(d.InverseBindMatrices, ibms[k].Columns())
		}
		dump(w, d)
	}
	return nil
}
