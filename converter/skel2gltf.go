package converter

import (
	"fmt"
	"io"
	"strings"

	"github.com/binzume/glaconv/geom"
	"github.com/binzume/glaconv/gltfutil"
	"github.com/binzume/glaconv/skel"
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"go.uber.org/zap"
)

// DefaultExportSampleRate is the key rate of exported glTF animations.
const DefaultExportSampleRate = 30

type SkelToGLTFOption struct {
	// SampleRate of animation channels. 0: DefaultExportSampleRate
	SampleRate float32
	Logger     *zap.Logger
}

type skelToGltf struct {
	*SkelToGLTFOption
	*gltf.Document
	log *zap.Logger
}

func NewSkelToGLTFConverter(options *SkelToGLTFOption) *skelToGltf {
	if options == nil {
		options = &SkelToGLTFOption{}
	}
	if options.SampleRate <= 0 {
		options.SampleRate = DefaultExportSampleRate
	}
	log := options.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &skelToGltf{SkelToGLTFOption: options, log: log}
}

// Convert builds a document holding the skeleton nodes, one skin and an
// animation for each of anims.
func (c *skelToGltf) Convert(s *skel.Skeleton, anims []*skel.Animation) (*gltf.Document, error) {
	doc, err := SkeletonToGLTF(s)
	if err != nil {
		return nil, err
	}
	c.Document = doc
	for _, a := range anims {
		if err := AddAnimationToGLTF(doc, s, a, c.SampleRate); err != nil {
			return nil, errors.Wrapf(err, "animation %s", a.Name())
		}
		c.log.Debug("added animation", zap.String("animation", a.Name()), zap.Int("channels", len(doc.Animations[len(doc.Animations)-1].Channels)))
	}
	return doc, nil
}

func transformToNode(name string, t *skel.Transform) *gltf.Node {
	return &gltf.Node{
		Name:        name,
		Translation: t.Translation.Array(),
		Rotation:    t.Rotation.Array(),
		Scale:       t.Scale.Array(),
	}
}

// SkeletonToGLTF creates one node per joint (node i is joint i) and a skin
// over all joints whose inverse bind matrices come from the rest pose.
func SkeletonToGLTF(s *skel.Skeleton) (*gltf.Document, error) {
	doc := gltf.NewDocument()
	joints := make([]uint32, s.NumJoints())
	for i, name := range s.JointNames() {
		rest := s.RestPose(i)
		doc.Nodes = append(doc.Nodes, transformToNode(name, &rest))
		joints[i] = uint32(i)
	}
	for i, parent := range s.JointParents() {
		if parent == skel.NoParent {
			doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, uint32(i))
		} else {
			doc.Nodes[parent].Children = append(doc.Nodes[parent].Children, uint32(i))
		}
	}

	models, err := skel.LocalToModel(s, s.RestPoses())
	if err != nil {
		return nil, err
	}
	invmats := make([][4][4]float32, len(models))
	for i, m := range models {
		inv, err := m.TryInverse()
		if err != nil {
			return nil, errors.Wrapf(err, "joint %s: bind matrix is not invertible", s.JointNames()[i])
		}
		invmats[i] = inv.Columns()
	}
	if len(joints) > 0 {
		doc.Skins = append(doc.Skins, &gltf.Skin{
			Name:                "skeleton",
			Skeleton:            gltf.Index(doc.Scenes[0].Nodes[0]),
			Joints:              joints,
			InverseBindMatrices: gltf.Index(gltfutil.AddMatrices(doc, invmats)),
		})
	}
	return doc, nil
}

const constantChannelEpsilon = 1e-6

func isConstant3(samples [][3]float32, v [3]float32) bool {
	for _, s := range samples {
		for i := range s {
			if geom.Abs(s[i]-v[i]) > constantChannelEpsilon {
				return false
			}
		}
	}
	return true
}

func isConstant4(samples [][4]float32, v [4]float32) bool {
	for _, s := range samples {
		for i := range s {
			if geom.Abs(s[i]-v[i]) > constantChannelEpsilon {
				return false
			}
		}
	}
	return true
}

func addChannel(a *gltf.Animation, input, output uint32, node uint32, path gltf.TRSProperty) {
	a.Samplers = append(a.Samplers, &gltf.AnimationSampler{
		Input:         gltf.Index(input),
		Output:        gltf.Index(output),
		Interpolation: gltf.InterpolationLinear,
	})
	a.Channels = append(a.Channels, &gltf.Channel{
		Sampler: gltf.Index(uint32(len(a.Samplers) - 1)),
		Target: gltf.ChannelTarget{
			Node: gltf.Index(node),
			Path: path,
		},
	})
}

// AddAnimationToGLTF samples anim at sampleRate and appends it as linear
// channels. Joint i targets node i when that node carries the joint's name
// (documents from SkeletonToGLTF), otherwise the first node with the name.
// Channels that never leave the node's rest value are omitted.
func AddAnimationToGLTF(doc *gltf.Document, s *skel.Skeleton, anim *skel.Animation, sampleRate float32) error {
	if anim.NumTracks() != s.NumJoints() {
		return errors.Errorf("animation has %d tracks but the skeleton has %d joints", anim.NumTracks(), s.NumJoints())
	}
	if sampleRate <= 0 {
		sampleRate = DefaultExportSampleRate
	}
	nodeByName := map[string]uint32{}
	for i, n := range doc.Nodes {
		if _, ok := nodeByName[n.Name]; !ok {
			nodeByName[n.Name] = uint32(i)
		}
	}
	nodes := make([]uint32, s.NumJoints())
	for i, name := range s.JointNames() {
		if i < len(doc.Nodes) && doc.Nodes[i].Name == name {
			nodes[i] = uint32(i)
			continue
		}
		n, ok := nodeByName[name]
		if !ok {
			return errors.Errorf("no node for joint %s", name)
		}
		nodes[i] = n
	}

	duration := anim.Duration()
	numKeys := int(duration*sampleRate) + 1
	step := duration / float32(max(1, numKeys-1))
	keys := make([]float32, numKeys)
	translations := make([][][3]float32, s.NumJoints())
	rotations := make([][][4]float32, s.NumJoints())
	scales := make([][][3]float32, s.NumJoints())
	locals := make([]skel.SoaTransform, anim.NumSoaTracks())
	for k := range keys {
		t := float32(k) * step
		if t > duration || (k > 0 && k == numKeys-1) {
			t = duration
		}
		keys[k] = t
		if err := anim.Sample(t/duration, locals); err != nil {
			return err
		}
		for j := range nodes {
			tr := skel.JointTransform(locals, j)
			translations[j] = append(translations[j], tr.Translation.Array())
			rotations[j] = append(rotations[j], tr.Rotation.Array())
			scales[j] = append(scales[j], tr.Scale.Array())
		}
	}

	keysAcc := modeler.WriteAccessor(doc, gltf.TargetNone, keys)
	doc.Accessors[keysAcc].Min = []float32{0}
	doc.Accessors[keysAcc].Max = []float32{keys[numKeys-1]}

	a := &gltf.Animation{Name: anim.Name()}
	for j, n := range nodes {
		node := doc.Nodes[n]
		if !isConstant3(translations[j], node.Translation) {
			addChannel(a, keysAcc, modeler.WritePosition(doc, translations[j]), n, gltf.TRSTranslation)
		}
		if !isConstant4(rotations[j], node.Rotation) {
			addChannel(a, keysAcc, modeler.WriteTangent(doc, rotations[j]), n, gltf.TRSRotation)
		}
		if !isConstant3(scales[j], node.Scale) {
			addChannel(a, keysAcc, modeler.WritePosition(doc, scales[j]), n, gltf.TRSScale)
		}
	}
	doc.Animations = append(doc.Animations, a)
	return nil
}

// PrintHierarchy writes one line per joint, indented by depth.
func PrintHierarchy(w io.Writer, s *skel.Skeleton) {
	for i, name := range s.JointNames() {
		rest := s.RestPose(i)
		fmt.Fprintf(w, "%s%s %v\n", strings.Repeat("  ", s.Depth(i)), name, rest.Translation.Array())
	}
}
