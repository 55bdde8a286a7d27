package converter

import (
	"github.com/binzume/glaconv/skel"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Importer reads a source asset into raw skeleton and animation data.
type Importer interface {
	Load(path string) error
	ImportSkeleton() (*skel.RawSkeleton, error)
	AnimationNames() []string
	// ImportAnimation converts clip name for skeleton s. samplingRate is used
	// when the source does not define its own rate.
	ImportAnimation(name string, s *skel.Skeleton, samplingRate float32) (*skel.RawAnimation, error)
	// ImportTrack imports a user property track. ok is false when the importer
	// does not provide one.
	ImportTrack(animation, node, track string) (t *skel.RawFloatTrack, ok bool)
}

// ImportedAnimation is a successfully built clip.
type ImportedAnimation struct {
	Name      string
	Animation *skel.Animation
}

// ImportAll imports and builds the named clips (all clips when names is
// empty). Repeated names are imported once. A failing clip does not stop the others; the returned error
// combines every failure.
func ImportAll(imp Importer, s *skel.Skeleton, names []string, samplingRate float32, log *zap.Logger) ([]*ImportedAnimation, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if len(names) == 0 {
		names = imp.AnimationNames()
	}
	var result []*ImportedAnimation
	var errs error
	seen := map[string]bool{}
	for _, name := range names {
		if seen[name] {
			log.Warn("duplicate animation name, converted once", zap.String("animation", name))
			continue
		}
		seen[name] = true
		raw, err := imp.ImportAnimation(name, s, samplingRate)
		if err == nil {
			var anim *skel.Animation
			if anim, err = skel.BuildAnimation(raw); err == nil {
				result = append(result, &ImportedAnimation{Name: name, Animation: anim})
				continue
			}
		}
		log.Error("animation import failed", zap.String("animation", name), zap.Error(err))
		errs = multierr.Append(errs, errors.Wrapf(err, "animation %s", name))
	}
	return result, errs
}
