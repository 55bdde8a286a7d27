package skel

import (
	"math"
	"sort"

	"github.com/binzume/glaconv/geom"
	"github.com/pkg/errors"
)

type TranslationKey struct {
	Time  float32
	Value geom.Vector3
}

type RotationKey struct {
	Time  float32
	Value geom.Quaternion
}

type ScaleKey struct {
	Time  float32
	Value geom.Vector3
}

// JointTrack holds the keyframes of one joint. Key times are in seconds.
type JointTrack struct {
	Translations []TranslationKey
	Rotations    []RotationKey
	Scales       []ScaleKey
}

type FloatKey struct {
	Time  float32
	Value float32
}

// RawFloatTrack is a user property track. No importer in this module produces one.
type RawFloatTrack struct {
	Keys []FloatKey
}

// RawAnimation is the mutable animation handed to BuildAnimation.
// Tracks are indexed by skeleton joint.
type RawAnimation struct {
	Name     string
	Duration float32
	Tracks   []JointTrack
}

func (a *RawAnimation) NumTracks() int {
	return len(a.Tracks)
}

func finite(v float32) bool {
	return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}

func (a *RawAnimation) validateTimes(track int, channel string, n int, time func(int) float32) error {
	prev := float32(-1)
	for i := 0; i < n; i++ {
		t := time(i)
		if !finite(t) || t < 0 || t > a.Duration {
			return validationErrorf("track %d %s key %d: time %v outside [0,%v]", track, channel, i, t, a.Duration)
		}
		if t <= prev {
			return validationErrorf("track %d %s key %d: time %v not ascending", track, channel, i, t)
		}
		prev = t
	}
	return nil
}

// Validate checks the duration is positive and every channel has finite
// values at strictly ascending times inside [0, Duration].
func (a *RawAnimation) Validate() error {
	if !finite(a.Duration) || a.Duration <= 0 {
		return validationErrorf("animation %q: invalid duration %v", a.Name, a.Duration)
	}
	for i := range a.Tracks {
		tr := &a.Tracks[i]
		if err := a.validateTimes(i, "translation", len(tr.Translations), func(k int) float32 { return tr.Translations[k].Time }); err != nil {
			return err
		}
		if err := a.validateTimes(i, "rotation", len(tr.Rotations), func(k int) float32 { return tr.Rotations[k].Time }); err != nil {
			return err
		}
		if err := a.validateTimes(i, "scale", len(tr.Scales), func(k int) float32 { return tr.Scales[k].Time }); err != nil {
			return err
		}
		for k := range tr.Translations {
			if !tr.Translations[k].Value.IsFinite() {
				return validationErrorf("track %d translation key %d is not finite", i, k)
			}
		}
		for k := range tr.Rotations {
			if !tr.Rotations[k].Value.IsFinite() {
				return validationErrorf("track %d rotation key %d is not finite", i, k)
			}
		}
		for k := range tr.Scales {
			if !tr.Scales[k].Value.IsFinite() {
				return validationErrorf("track %d scale key %d is not finite", i, k)
			}
		}
	}
	return nil
}

// Animation is an immutable, validated animation.
type Animation struct {
	name     string
	duration float32
	tracks   []JointTrack
}

func BuildAnimation(raw *RawAnimation) (*Animation, error) {
	if err := raw.Validate(); err != nil {
		return nil, err
	}
	a := &Animation{name: raw.Name, duration: raw.Duration, tracks: make([]JointTrack, len(raw.Tracks))}
	for i, tr := range raw.Tracks {
		a.tracks[i] = JointTrack{
			Translations: append([]TranslationKey(nil), tr.Translations...),
			Rotations:    make([]RotationKey, len(tr.Rotations)),
			Scales:       append([]ScaleKey(nil), tr.Scales...),
		}
		for k, r := range tr.Rotations {
			a.tracks[i].Rotations[k] = RotationKey{Time: r.Time, Value: *r.Value.Normalized()}
		}
	}
	return a, nil
}

func (a *Animation) Name() string {
	return a.name
}

func (a *Animation) Duration() float32 {
	return a.duration
}

func (a *Animation) NumTracks() int {
	return len(a.tracks)
}

func (a *Animation) NumSoaTracks() int {
	return NumSoa(len(a.tracks))
}

// Track returns the keys of track i. The result must not be modified.
func (a *Animation) Track(i int) *JointTrack {
	return &a.tracks[i]
}

// keyPair finds the keys surrounding t: i0 == i1 outside the key range.
func keyPair(n int, t float32, time func(int) float32) (i0, i1 int, alpha float32) {
	i1 = sort.Search(n, func(i int) bool { return time(i) >= t })
	if i1 == 0 {
		return 0, 0, 0
	}
	if i1 == n {
		return n - 1, n - 1, 0
	}
	i0 = i1 - 1
	t0, t1 := time(i0), time(i1)
	return i0, i1, (t - t0) / (t1 - t0)
}

// SampleTrack evaluates track i at time t (seconds).
func (a *Animation) SampleTrack(i int, t float32) Transform {
	tr := &a.tracks[i]
	r := IdentityTransform()
	if n := len(tr.Translations); n > 0 {
		i0, i1, alpha := keyPair(n, t, func(k int) float32 { return tr.Translations[k].Time })
		r.Translation = *tr.Translations[i0].Value.Lerp(&tr.Translations[i1].Value, alpha)
	}
	if n := len(tr.Rotations); n > 0 {
		i0, i1, alpha := keyPair(n, t, func(k int) float32 { return tr.Rotations[k].Time })
		r.Rotation = *tr.Rotations[i0].Value.Nlerp(&tr.Rotations[i1].Value, alpha)
	}
	if n := len(tr.Scales); n > 0 {
		i0, i1, alpha := keyPair(n, t, func(k int) float32 { return tr.Scales[k].Time })
		r.Scale = *tr.Scales[i0].Value.Lerp(&tr.Scales[i1].Value, alpha)
	}
	return r
}

// Sample evaluates every track at ratio (clamped to [0,1]) of the duration
// and writes the local transforms to out.
func (a *Animation) Sample(ratio float32, out []SoaTransform) error {
	if len(out) < a.NumSoaTracks() {
		return errors.Errorf("sample buffer too small: %d < %d", len(out), a.NumSoaTracks())
	}
	if ratio < 0 || !finite(ratio) {
		ratio = 0
	} else if ratio > 1 {
		ratio = 1
	}
	t := ratio * a.duration
	for i := range out {
		out[i] = SoaIdentity()
	}
	for i := range a.tracks {
		SetJointTransform(out, i, a.SampleTrack(i, t))
	}
	return nil
}
