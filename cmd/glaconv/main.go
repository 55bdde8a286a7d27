package main

import (
	"flag"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path/filepath"

	"github.com/binzume/glaconv/config"
	"github.com/binzume/glaconv/converter"
	"github.com/binzume/glaconv/gltfutil"
	"github.com/binzume/glaconv/logger"
	"github.com/binzume/glaconv/retarget"
	"github.com/binzume/glaconv/skel"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type app struct {
	cfg  *config.Config
	log  *zap.Logger
	out  io.Writer
	dump bool
}

func defaultOutputFile(input string, retargetMode bool) string {
	switch ext(input) {
	case ".gla", ".gltf", ".glb":
		return replaceExt(input, ".skel")
	case ".skel":
		return replaceExt(input, ".glb")
	case ".anim":
		if retargetMode {
			return replaceExt(input, ".retargeted.anim")
		}
	}
	return input + ".skel"
}

func (a *app) saveGLTF(s *skel.Skeleton, anims []*skel.Animation, output string) error {
	conv := converter.NewSkelToGLTFConverter(&converter.SkelToGLTFOption{
		SampleRate: a.cfg.Export.SampleRate,
		Logger:     a.log,
	})
	doc, err := conv.Convert(s, anims)
	if err != nil {
		return err
	}
	a.log.Info("writing glTF", zap.String("path", output), zap.Int("nodes", len(doc.Nodes)), zap.Int("animations", len(doc.Animations)))
	return gltfutil.SaveAs(doc, output, a.cfg.Export.Format)
}

// glaToSkel writes the skeleton archive and one .anim per clip next to it,
// or everything into a single glTF when output is .gltf/.glb.
func (a *app) glaToSkel(input, output string, names []string, skeletonOnly bool) error {
	imp := newGLAImporter(a)
	if err := imp.Load(input); err != nil {
		return err
	}
	raw, err := imp.ImportSkeleton()
	if err != nil {
		return err
	}
	s, err := skel.BuildSkeleton(raw)
	if err != nil {
		return err
	}
	if a.dump {
		dump(a.out, imp.File.Header, imp.File.Bones, imp.Clips)
		dumpSkeleton(a.out, s)
		return nil
	}

	var anims []*converter.ImportedAnimation
	var importErr error
	if !skeletonOnly {
		if len(names) == 0 && len(imp.AnimationNames()) == 0 {
			a.log.Info("no animation clips to convert")
		} else {
			anims, importErr = converter.ImportAll(imp, s, names, a.cfg.Import.SamplingRate, a.log)
		}
	}

	if isGLTF(output) {
		var list []*skel.Animation
		for _, anim := range anims {
			list = append(list, anim.Animation)
		}
		return multierr.Append(a.saveGLTF(s, list, output), importErr)
	}

	if err := skel.SaveSkeleton(output, s); err != nil {
		return err
	}
	a.log.Info("skeleton written", zap.String("path", output), zap.Int("joints", s.NumJoints()))
	dir := filepath.Dir(output)
	for _, anim := range anims {
		path := filepath.Join(dir, anim.Name+".anim")
		if err := skel.SaveAnimation(path, anim.Animation); err != nil {
			importErr = multierr.Append(importErr, err)
			continue
		}
		a.log.Info("animation written", zap.String("path", path), zap.Float32("duration", anim.Animation.Duration()))
	}
	return importErr
}

func (a *app) skelToGLTF(input, output string, animPaths []string) error {
	s, err := loadSkeleton(a, input)
	if err != nil {
		return err
	}
	anims, err := loadAnimations(animPaths)
	if err != nil {
		return err
	}
	if a.dump {
		dumpSkeleton(a.out, s)
		return nil
	}
	if !isGLTF(output) {
		return errors.Errorf("unsupported output type: %v", ext(output))
	}
	return a.saveGLTF(s, anims, output)
}

func (a *app) gltfToSkel(input, output string) error {
	s, err := loadSkeleton(a, input)
	if err != nil {
		return err
	}
	if a.dump {
		dumpSkeleton(a.out, s)
		return dumpSkins(a.out, input)
	}
	if ext(output) != ".skel" {
		return errors.Errorf("unsupported output type: %v", ext(output))
	}
	return skel.SaveSkeleton(output, s)
}

func (a *app) retarget(input, output, srcPath, dstPath, mappingPath string) error {
	if srcPath == "" || dstPath == "" || mappingPath == "" {
		return errors.New("-retarget requires -src-skel, -dst-skel and -mapping")
	}
	src, err := loadSkeleton(a, srcPath)
	if err != nil {
		return err
	}
	dst, err := loadSkeleton(a, dstPath)
	if err != nil {
		return err
	}
	mapper, err := retarget.LoadBoneMapper(mappingPath, a.log)
	if err != nil {
		return err
	}
	anim, err := skel.LoadAnimation(input)
	if err != nil {
		return err
	}
	out, err := retarget.Retarget(src, dst, anim, mapper, &retarget.Options{
		SampleRate: a.cfg.Retarget.SampleRate,
		Workers:    a.cfg.Retarget.Workers,
		Logger:     a.log,
	})
	if err != nil {
		return err
	}
	if isGLTF(output) {
		return a.saveGLTF(dst, []*skel.Animation{out}, output)
	}
	return skel.SaveAnimation(output, out)
}

func (a *app) dumpAnimation(input string) error {
	anim, err := skel.LoadAnimation(input)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s: %v sec, %d tracks\n", anim.Name(), anim.Duration(), anim.NumTracks())
	for i := 0; i < anim.NumTracks(); i++ {
		dump(a.out, anim.Track(i))
	}
	return nil
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s input.gla [output.skel|output.glb]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "       %s input.skel [clip.anim ...] output.glb\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "       %s input.glb output.skel\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "       %s -retarget -src-skel a.skel -dst-skel b.skel -mapping m.json input.anim output.anim\n", os.Args[0])
		flag.PrintDefaults()
	}
	configFile := flag.String("config", "", "YAML config file")
	verbose := flag.Bool("v", false, "debug logging")
	logFile := flag.String("log", "", "also write logs to this file")
	animNames := flag.String("anim", "", "comma separated clip names (.gla, default: all)")
	skeletonOnly := flag.Bool("skeleton-only", false, "convert the skeleton only (.gla)")
	strict := flag.Bool("strict", false, "reject out of range frame indices (.gla)")
	rate := flag.Float64("rate", 0, "sampling rate for clips without fps (.gla)")
	retargetMode := flag.Bool("retarget", false, "retarget input.anim onto -dst-skel")
	srcSkel := flag.String("src-skel", "", "source skeleton (.skel, .gla, .gltf, .glb)")
	dstSkel := flag.String("dst-skel", "", "target skeleton (.skel, .gla, .gltf, .glb)")
	mapping := flag.String("mapping", "", "bone mapping JSON")
	workers := flag.Int("workers", 0, "retarget worker goroutines")
	format := flag.String("format", "", "glTF output format: auto, gltf or glb")
	dumpFlag := flag.Bool("dump", false, "print the decoded input and exit")
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		stdlog.Fatal(err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "v":
			if *verbose {
				cfg.Log.Level = "debug"
			}
		case "log":
			cfg.Log.File.Path = *logFile
		case "strict":
			cfg.GLA.StrictFrameIndex = *strict
		case "rate":
			cfg.Import.SamplingRate = float32(*rate)
		case "workers":
			cfg.Retarget.Workers = *workers
		case "format":
			cfg.Export.Format = *format
		}
	})
	if err := cfg.Validate(); err != nil {
		stdlog.Fatal(err)
	}
	log, err := logger.NewConsole(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		stdlog.Fatal(err)
	}
	defer log.Sync()

	input := flag.Arg(0)
	output := ""
	inputN := flag.NArg() - 1
	if inputN < 1 {
		inputN = 1
		output = defaultOutputFile(input, *retargetMode)
	} else {
		output = flag.Arg(inputN)
	}

	a := &app{cfg: cfg, log: log, out: os.Stdout, dump: *dumpFlag}
	inputExt := ext(input)
	switch {
	case *retargetMode:
		err = a.retarget(input, output, *srcSkel, *dstSkel, *mapping)
	case inputExt == ".gla":
		err = a.glaToSkel(input, output, splitNames(*animNames), *skeletonOnly)
	case inputExt == ".skel":
		err = a.skelToGLTF(input, output, flag.Args()[1:inputN])
	case isGLTF(input):
		err = a.gltfToSkel(input, output)
	case inputExt == ".anim" && *dumpFlag:
		err = a.dumpAnimation(input)
	default:
		err = errors.Errorf("unsupported input type: %v", inputExt)
	}
	if err != nil {
		log.Error("conversion failed", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	log.Info("done", zap.String("output", output))
}
