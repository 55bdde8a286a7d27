package retarget

import (
	"encoding/json"
	"math"
	"os"

	"github.com/binzume/glaconv/geom"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Mapping describes where a target joint takes its rotation from.
type Mapping struct {
	Target  string
	Sources []string

	// Correction is applied to the source world rotation when HasCorrection is set.
	Correction    geom.Quaternion
	HasCorrection bool
}

func (m *Mapping) IsUnmapped() bool {
	return len(m.Sources) == 0
}

// IsCombined reports whether the local rotations of several source joints
// are multiplied together.
func (m *Mapping) IsCombined() bool {
	return len(m.Sources) > 1
}

// mapping file layout:
//
//	{"mappings": [
//	  {"target": "Hips", "source": "pelvis"},
//	  {"target": "Spine", "source": ["lower_lumbar", "upper_lumbar"], "correction_axis_angle": [90, 0, 1, 0]},
//	  {"target": "HeadTop_End", "source": null}
//	]}
type mappingEntry struct {
	Target     json.RawMessage `json:"target"`
	Source     json.RawMessage `json:"source"`
	Correction json.RawMessage `json:"correction_axis_angle"`
}

// BoneMapper holds the target to source joint table and the name to index
// lookups of both skeletons.
type BoneMapper struct {
	mappings []*Mapping
	source   map[string]int
	target   map[string]int
}

func LoadBoneMapper(path string, log *zap.Logger) (*BoneMapper, error) {
	if log == nil {
		log = zap.NewNop()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := ParseBoneMapper(data, log)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	log.Info("loaded bone mappings", zap.String("path", path), zap.Int("count", len(m.mappings)))
	return m, nil
}

// ParseBoneMapper decodes a mapping file. Malformed entries are skipped with
// a warning; a missing mappings array is an error.
func ParseBoneMapper(data []byte, log *zap.Logger) (*BoneMapper, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var doc struct {
		Mappings json.RawMessage `json:"mappings"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "parse bone mapping")
	}
	var entries []json.RawMessage
	if len(doc.Mappings) == 0 || json.Unmarshal(doc.Mappings, &entries) != nil {
		return nil, errors.New("bone mapping must contain a 'mappings' array")
	}

	m := &BoneMapper{}
	for i, raw := range entries {
		var e mappingEntry
		var target string
		if json.Unmarshal(raw, &e) != nil || json.Unmarshal(e.Target, &target) != nil {
			log.Warn("mapping without a target string, skipped", zap.Int("index", i))
			continue
		}
		mapping := &Mapping{Target: target, Correction: geom.Quaternion{W: 1}}
		mapping.Sources = parseSources(e.Source, target, log)

		if len(e.Correction) > 0 {
			var aa []float64
			if json.Unmarshal(e.Correction, &aa) == nil && len(aa) == 4 {
				rad := aa[0] * math.Pi / 180
				mapping.Correction = *geom.NewQuaternionFromAxisAngle(geom.NewVector3(float32(aa[1]), float32(aa[2]), float32(aa[3])), rad)
				mapping.HasCorrection = true
				log.Debug("rotation correction", zap.String("target", target), zap.Float64("degrees", aa[0]),
					zap.Float64s("axis", aa[1:]))
			} else {
				log.Warn("correction_axis_angle must be [degrees, x, y, z], ignored", zap.String("target", target))
			}
		}
		m.mappings = append(m.mappings, mapping)
	}
	return m, nil
}

func parseSources(raw json.RawMessage, target string, log *zap.Logger) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var single string
	if json.Unmarshal(raw, &single) == nil {
		return []string{single}
	}
	var list []interface{}
	if json.Unmarshal(raw, &list) == nil {
		var sources []string
		for _, v := range list {
			if s, ok := v.(string); ok {
				sources = append(sources, s)
			}
		}
		return sources
	}
	log.Warn("invalid source type, joint left unmapped", zap.String("target", target))
	return nil
}

// Mapping returns the first mapping for target, or nil.
func (m *BoneMapper) Mapping(target string) *Mapping {
	for _, mapping := range m.mappings {
		if mapping.Target == target {
			return mapping
		}
	}
	return nil
}

func (m *BoneMapper) Mappings() []*Mapping {
	return m.mappings
}

func (m *BoneMapper) NumMappings() int {
	return len(m.mappings)
}

func indexNames(names []string) map[string]int {
	idx := make(map[string]int, len(names))
	for i, n := range names {
		idx[n] = i
	}
	return idx
}

func (m *BoneMapper) BuildSourceIndex(names []string) {
	m.source = indexNames(names)
}

func (m *BoneMapper) BuildTargetIndex(names []string) {
	m.target = indexNames(names)
}

// SourceIndex returns the source joint index of name, or -1.
func (m *BoneMapper) SourceIndex(name string) int {
	if i, ok := m.source[name]; ok {
		return i
	}
	return -1
}

// TargetIndex returns the target joint index of name, or -1.
func (m *BoneMapper) TargetIndex(name string) int {
	if i, ok := m.target[name]; ok {
		return i
	}
	return -1
}

// CombineRotations returns q[0]*q[1]*...*q[n-1], normalized when its length
// exceeds 0.0001. An empty list yields identity.
func CombineRotations(rotations []*geom.Quaternion) *geom.Quaternion {
	if len(rotations) == 0 {
		return geom.IdentityQuaternion()
	}
	r := *rotations[0]
	for _, q := range rotations[1:] {
		r = *r.Mul(q)
	}
	if l := r.Len(); l > 0.0001 {
		return r.Scale(1 / l)
	}
	return &r
}
