package converter

import (
	"github.com/binzume/glaconv/animcfg"
	"github.com/binzume/glaconv/coord"
	"github.com/binzume/glaconv/geom"
	"github.com/binzume/glaconv/gla"
	"github.com/binzume/glaconv/skel"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DefaultFPS is used when neither the clip nor the caller provides a rate.
const DefaultFPS = 20

type GLAImporterOption struct {
	Strict     bool
	DefaultFPS float32
	// Coord converts every transform from source to runtime space. nil: coord.Default
	Coord  *coord.Converter
	Logger *zap.Logger
}

// GLAImporter reads a .gla skeleton and the clips of its animation.cfg.
type GLAImporter struct {
	options GLAImporterOption
	conv    coord.Converter
	log     *zap.Logger

	File  *gla.File
	Clips *animcfg.Table
}

var _ Importer = (*GLAImporter)(nil)

func NewGLAImporter(options *GLAImporterOption) *GLAImporter {
	if options == nil {
		options = &GLAImporterOption{}
	}
	imp := &GLAImporter{options: *options, conv: coord.Default, log: options.Logger}
	if options.Coord != nil {
		imp.conv = *options.Coord
	}
	if imp.options.DefaultFPS <= 0 {
		imp.options.DefaultFPS = DefaultFPS
	}
	if imp.log == nil {
		imp.log = zap.NewNop()
	}
	return imp
}

// Load parses the GLA and looks for animation.cfg next to it. A missing clip
// table only limits the importer to skeleton export.
func (imp *GLAImporter) Load(path string) error {
	imp.log.Info("loading GLA", zap.String("path", path))
	f, err := gla.Load(path, &gla.Options{Strict: imp.options.Strict, Logger: imp.log})
	if err != nil {
		return err
	}
	imp.File = f

	clips, err := animcfg.LoadFromGLADirectory(path, imp.log)
	if err != nil {
		imp.log.Info("no animation.cfg found, only skeleton export is available", zap.Error(err))
		clips = &animcfg.Table{}
	}
	imp.Clips = clips
	return nil
}

func (imp *GLAImporter) loaded() error {
	if imp.File == nil {
		return errors.New("GLA not loaded")
	}
	return nil
}

// ImportSkeleton builds one joint per bone, roots in file order and children
// in file order below them, using converted bind pose locals with unit scale.
func (imp *GLAImporter) ImportSkeleton() (*skel.RawSkeleton, error) {
	if err := imp.loaded(); err != nil {
		return nil, err
	}
	if imp.File.NumBones() == 0 {
		return nil, errors.New("no bones found in GLA")
	}
	roots := imp.File.Roots()
	if len(roots) == 0 {
		return nil, errors.New("no root bones found in GLA")
	}
	imp.log.Info("importing skeleton", zap.Int("bones", imp.File.NumBones()), zap.Int("roots", len(roots)))

	raw := &skel.RawSkeleton{}
	visited := make([]bool, imp.File.NumBones())
	for _, r := range roots {
		j, err := imp.buildJoint(r, visited)
		if err != nil {
			return nil, err
		}
		raw.Roots = append(raw.Roots, j)
	}
	if n := raw.NumJoints(); n < imp.File.NumBones() {
		return nil, errors.Errorf("%d of %d bones are not reachable from a root bone", imp.File.NumBones()-n, imp.File.NumBones())
	}
	if err := raw.Validate(); err != nil {
		return nil, err
	}
	return raw, nil
}

func (imp *GLAImporter) buildJoint(bone int, visited []bool) (*skel.RawJoint, error) {
	if visited[bone] {
		return nil, errors.Errorf("bone %d is reachable twice", bone)
	}
	visited[bone] = true

	pos, rot, _ := imp.File.LocalBindPose(bone)
	j := &skel.RawJoint{
		Name: imp.File.Bones[bone].Name,
		Transform: skel.Transform{
			Translation: *imp.conv.Position(pos),
			Rotation:    *imp.conv.Rotation(rot),
			Scale:       geom.Vector3{X: 1, Y: 1, Z: 1},
		},
	}
	imp.log.Debug("skeleton joint", zap.Int("bone", bone), zap.String("name", j.Name),
		zap.Int("parent", imp.File.Bones[bone].Parent), zap.Any("translation", j.Transform.Translation),
		zap.Any("rotation", j.Transform.Rotation))

	for _, c := range imp.File.Children(bone) {
		child, err := imp.buildJoint(c, visited)
		if err != nil {
			return nil, err
		}
		j.Children = append(j.Children, child)
	}
	return j, nil
}

func (imp *GLAImporter) AnimationNames() []string {
	if imp.Clips == nil {
		return nil
	}
	return imp.Clips.Names()
}

// ClipFPS resolves the playback rate of clip: its own fps, else
// samplingRate, else the default.
func (imp *GLAImporter) ClipFPS(clip *animcfg.Clip, samplingRate float32) float32 {
	if clip.FPS > 0 {
		return clip.FPS
	}
	if samplingRate > 0 {
		return samplingRate
	}
	return imp.options.DefaultFPS
}

// ImportAnimation converts clip name for skeleton s. Joints are matched to
// bones by name. The first joint's world position is removed from every
// joint per frame, so the result carries no root motion.
func (imp *GLAImporter) ImportAnimation(name string, s *skel.Skeleton, samplingRate float32) (*skel.RawAnimation, error) {
	if err := imp.loaded(); err != nil {
		return nil, err
	}
	var clip *animcfg.Clip
	if imp.Clips != nil {
		clip = imp.Clips.Find(name)
	}
	if clip == nil {
		return nil, errors.Errorf("animation %q not found in %s", name, animcfg.FileName)
	}
	if clip.StartFrame+clip.FrameCount > imp.File.NumFrames() {
		return nil, errors.Errorf("frames %d-%d exceed the GLA frame count %d", clip.StartFrame, clip.EndFrame(), imp.File.NumFrames())
	}

	fps := imp.ClipFPS(clip, samplingRate)
	frameDuration := 1 / fps
	duration := frameDuration
	if clip.FrameCount > 1 {
		duration = float32(clip.FrameCount-1) * frameDuration
	}
	imp.log.Info("importing animation", zap.String("animation", name), zap.Int("start", clip.StartFrame),
		zap.Int("end", clip.EndFrame()), zap.Float32("fps", fps))

	numJoints := s.NumJoints()
	parents := s.JointParents()
	bones := make([]int, numJoints)
	for j, jointName := range s.JointNames() {
		bones[j] = imp.File.BoneIndex(jointName)
		if bones[j] < 0 {
			imp.log.Warn("joint has no GLA bone, using rest pose", zap.String("animation", name), zap.String("joint", jointName))
		}
	}

	anim := &skel.RawAnimation{Name: name, Duration: duration, Tracks: make([]skel.JointTrack, numJoints)}
	for j := range anim.Tracks {
		if bones[j] < 0 {
			continue
		}
		anim.Tracks[j] = skel.JointTrack{
			Translations: make([]skel.TranslationKey, 0, clip.FrameCount),
			Rotations:    make([]skel.RotationKey, 0, clip.FrameCount),
			Scales:       make([]skel.ScaleKey, 0, clip.FrameCount),
		}
	}

	worldPos := make([]geom.Vector3, numJoints)
	worldRot := make([]geom.Quaternion, numJoints)
	for f := 0; f < clip.FrameCount; f++ {
		frame := clip.StartFrame + f
		time := float32(f) * frameDuration
		if f == 0 && imp.log.Core().Enabled(zap.DebugLevel) {
			for _, b := range bones {
				if err := imp.File.Trace(frame, b, imp.log); err != nil {
					return nil, err
				}
			}
		}

		pose := imp.File.NewPose(frame)
		for j, b := range bones {
			if b < 0 {
				worldPos[j], worldRot[j] = geom.Vector3{}, geom.Quaternion{W: 1}
				continue
			}
			pos, rot, err := pose.WorldTransform(b)
			if err != nil {
				return nil, errors.Wrapf(err, "frame %d", frame)
			}
			worldPos[j], worldRot[j] = *imp.conv.Position(pos), *imp.conv.Rotation(rot)
		}

		if numJoints > 0 && bones[0] >= 0 {
			root := worldPos[0]
			for j, b := range bones {
				if b >= 0 {
					worldPos[j] = *worldPos[j].Sub(&root)
				}
			}
		}

		for j, parent := range parents {
			if bones[j] < 0 {
				continue
			}
			pos, rot := worldPos[j], worldRot[j]
			if parent >= 0 {
				inv := worldRot[parent].Inverse()
				pos = *inv.ApplyTo(pos.Sub(&worldPos[parent]))
				rot = *inv.Mul(&rot).Normalized()
			}
			tr := &anim.Tracks[j]
			tr.Translations = append(tr.Translations, skel.TranslationKey{Time: time, Value: pos})
			tr.Rotations = append(tr.Rotations, skel.RotationKey{Time: time, Value: rot})
			tr.Scales = append(tr.Scales, skel.ScaleKey{Time: time, Value: geom.Vector3{X: 1, Y: 1, Z: 1}})
		}
	}

	for j := range anim.Tracks {
		tr := &anim.Tracks[j]
		if bones[j] < 0 {
			rest := s.RestPose(j)
			tr.Translations = []skel.TranslationKey{{Time: 0, Value: rest.Translation}}
			tr.Rotations = []skel.RotationKey{{Time: 0, Value: rest.Rotation}}
			tr.Scales = []skel.ScaleKey{{Time: 0, Value: rest.Scale}}
		}
		padTrack(tr, duration)
	}

	if err := anim.Validate(); err != nil {
		return nil, errors.Wrapf(err, "animation %s", name)
	}
	imp.log.Info("animation imported", zap.String("animation", name), zap.Float32("duration", duration),
		zap.Int("frames", clip.FrameCount))
	return anim, nil
}

// padTrack repeats the value of single-key channels at duration.
func padTrack(tr *skel.JointTrack, duration float32) {
	if duration <= 0 {
		return
	}
	if len(tr.Translations) == 1 {
		tr.Translations = append(tr.Translations, skel.TranslationKey{Time: duration, Value: tr.Translations[0].Value})
	}
	if len(tr.Rotations) == 1 {
		tr.Rotations = append(tr.Rotations, skel.RotationKey{Time: duration, Value: tr.Rotations[0].Value})
	}
	if len(tr.Scales) == 1 {
		tr.Scales = append(tr.Scales, skel.ScaleKey{Time: duration, Value: tr.Scales[0].Value})
	}
}

// ImportTrack always declines: GLA files carry no user property tracks.
func (imp *GLAImporter) ImportTrack(animation, node, track string) (*skel.RawFloatTrack, bool) {
	return nil, false
}
