// Package retarget transfers joint rotations of an animation between two
// skeletons with different topologies, matching joints through a BoneMapper.
package retarget

import (
	"sync"

	"github.com/binzume/glaconv/geom"
	"github.com/binzume/glaconv/skel"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	DefaultSampleRate = 30
	OutputName        = "retargeted"
)

type Options struct {
	// SampleRate is the number of output keys per second. 0 means DefaultSampleRate.
	SampleRate float32
	// Workers > 1 retargets frames concurrently.
	Workers int
	Logger  *zap.Logger
}

// jointMapping is a Mapping resolved against the source skeleton.
type jointMapping struct {
	sources       []int
	combined      bool
	correction    geom.Quaternion
	hasCorrection bool
}

func (j *jointMapping) mapped() bool {
	return len(j.sources) > 0
}

type retargeter struct {
	src, dst *skel.Skeleton
	anim     *skel.Animation
	joints   []jointMapping
	tracks   []skel.JointTrack
	numKeys  int
	step     float32
	log      *zap.Logger
}

// frameState is the per-goroutine scratch space.
type frameState struct {
	locals   []skel.SoaTransform
	srcWorld []geom.Quaternion
	dstWorld []geom.Quaternion
}

func (r *retargeter) newFrameState() *frameState {
	return &frameState{
		locals:   make([]skel.SoaTransform, r.src.NumSoaJoints()),
		srcWorld: make([]geom.Quaternion, r.src.NumJoints()),
		dstWorld: make([]geom.Quaternion, r.dst.NumJoints()),
	}
}

// normalize returns identity for quaternions shorter than 0.0001.
func normalize(q *geom.Quaternion) geom.Quaternion {
	if l := q.Len(); l > 0.0001 {
		return *q.Scale(1 / l)
	}
	return geom.Quaternion{W: 1}
}

func resolveMappings(src, dst *skel.Skeleton, mapper *BoneMapper, log *zap.Logger) []jointMapping {
	mapper.BuildSourceIndex(src.JointNames())
	mapper.BuildTargetIndex(dst.JointNames())
	for _, m := range mapper.Mappings() {
		if mapper.TargetIndex(m.Target) < 0 {
			log.Warn("mapping target not in target skeleton", zap.String("target", m.Target))
		}
	}

	joints := make([]jointMapping, dst.NumJoints())
	for i, name := range dst.JointNames() {
		m := mapper.Mapping(name)
		if m == nil || m.IsUnmapped() {
			log.Debug("unmapped joint uses rest pose", zap.String("joint", name))
			continue
		}
		j := &joints[i]
		j.combined = m.IsCombined()
		j.correction = m.Correction
		j.hasCorrection = m.HasCorrection
		for _, s := range m.Sources {
			if idx := mapper.SourceIndex(s); idx >= 0 {
				j.sources = append(j.sources, idx)
			} else {
				log.Warn("source joint not found", zap.String("target", name), zap.String("source", s))
			}
		}
		if !j.mapped() {
			log.Warn("no source joint resolved, using rest pose", zap.String("joint", name))
		}
	}
	return joints
}

// Retarget samples anim (played on src) at opts.SampleRate and produces an
// animation for dst. Mapped joints copy the source world rotation into the
// target hierarchy; unmapped joints keep their rest pose.
func Retarget(src, dst *skel.Skeleton, anim *skel.Animation, mapper *BoneMapper, opts *Options) (*skel.Animation, error) {
	if opts == nil {
		opts = &Options{}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	rate := opts.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	duration := anim.Duration()
	if duration <= 0 {
		return nil, errors.Errorf("animation %q has no duration", anim.Name())
	}
	if anim.NumTracks() != src.NumJoints() {
		return nil, errors.Errorf("animation has %d tracks but the source skeleton has %d joints", anim.NumTracks(), src.NumJoints())
	}

	numKeys := int(duration*rate) + 1
	step := duration / float32(max(1, numKeys-1))
	r := &retargeter{
		src:     src,
		dst:     dst,
		anim:    anim,
		joints:  resolveMappings(src, dst, mapper, log),
		tracks:  make([]skel.JointTrack, dst.NumJoints()),
		numKeys: numKeys,
		step:    step,
		log:     log,
	}
	for i := range r.tracks {
		r.tracks[i] = skel.JointTrack{
			Translations: make([]skel.TranslationKey, numKeys),
			Rotations:    make([]skel.RotationKey, numKeys),
			Scales:       make([]skel.ScaleKey, numKeys),
		}
	}
	log.Info("retargeting", zap.String("animation", anim.Name()), zap.Float32("duration", duration),
		zap.Int("keys", numKeys), zap.Int("sourceJoints", src.NumJoints()), zap.Int("targetJoints", dst.NumJoints()))

	if err := r.run(numKeys, opts.Workers); err != nil {
		return nil, err
	}

	raw := &skel.RawAnimation{Name: OutputName, Duration: duration, Tracks: r.tracks}
	out, err := skel.BuildAnimation(raw)
	if err != nil {
		return nil, errors.Wrap(err, "build retargeted animation")
	}
	return out, nil
}

func (r *retargeter) run(numKeys, workers int) error {
	if workers <= 1 || numKeys < 2 {
		st := r.newFrameState()
		for f := 0; f < numKeys; f++ {
			if err := r.frame(f, st); err != nil {
				return err
			}
		}
		return nil
	}

	if workers > numKeys {
		workers = numKeys
	}
	errs := make([]error, workers)
	chunk := (numKeys + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		begin, end := w*chunk, min((w+1)*chunk, numKeys)
		if begin >= end {
			continue
		}
		wg.Add(1)
		go func(w, begin, end int) {
			defer wg.Done()
			st := r.newFrameState()
			for f := begin; f < end; f++ {
				if err := r.frame(f, st); err != nil {
					errs[w] = err
					return
				}
			}
		}(w, begin, end)
	}
	wg.Wait()
	return multierr.Combine(errs...)
}

// frame fills key f of every output track.
func (r *retargeter) frame(f int, st *frameState) error {
	duration := r.anim.Duration()
	time := float32(f) * r.step
	if time > duration || (f > 0 && f == r.numKeys-1) {
		time = duration
	}
	if err := r.anim.Sample(time/duration, st.locals); err != nil {
		return errors.Wrapf(err, "sample frame %d", f)
	}

	for i, parent := range r.src.JointParents() {
		local := skel.JointTransform(st.locals, i).Rotation
		if parent < 0 {
			st.srcWorld[i] = local
		} else {
			st.srcWorld[i] = *st.srcWorld[parent].Mul(&local)
		}
	}

	for i, parent := range r.dst.JointParents() {
		parentWorld := geom.Quaternion{W: 1}
		if parent >= 0 {
			parentWorld = st.dstWorld[parent]
		}

		var local skel.Transform
		j := &r.joints[i]
		if !j.mapped() {
			local = r.dst.RestPose(i)
		} else {
			first := skel.JointTransform(st.locals, j.sources[0])
			var sourceWorld geom.Quaternion
			if j.combined && len(j.sources) > 1 {
				rots := make([]*geom.Quaternion, len(j.sources))
				for k, s := range j.sources {
					t := skel.JointTransform(st.locals, s)
					rots[k] = &t.Rotation
				}
				combined := CombineRotations(rots)
				firstParentWorld := geom.Quaternion{W: 1}
				if p := r.src.JointParents()[j.sources[0]]; p >= 0 {
					firstParentWorld = st.srcWorld[p]
				}
				sourceWorld = *firstParentWorld.Mul(combined)
			} else {
				sourceWorld = st.srcWorld[j.sources[0]]
			}
			if j.hasCorrection {
				sourceWorld = normalize(sourceWorld.Mul(&j.correction))
			}
			local = skel.Transform{
				Translation: first.Translation,
				Rotation:    normalize(parentWorld.Inverse().Mul(&sourceWorld)),
				Scale:       geom.Vector3{X: 1, Y: 1, Z: 1},
			}
			if f == 0 {
				r.log.Debug("retarget joint", zap.String("joint", r.dst.JointNames()[i]), zap.Ints("sources", j.sources),
					zap.Any("sourceWorld", sourceWorld), zap.Any("parentWorld", parentWorld), zap.Any("local", local.Rotation))
			}
		}
		st.dstWorld[i] = *parentWorld.Mul(&local.Rotation)

		tr := &r.tracks[i]
		tr.Translations[f] = skel.TranslationKey{Time: time, Value: local.Translation}
		tr.Rotations[f] = skel.RotationKey{Time: time, Value: local.Rotation}
		tr.Scales[f] = skel.ScaleKey{Time: time, Value: local.Scale}
	}
	return nil
}
