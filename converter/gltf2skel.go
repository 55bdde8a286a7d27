package converter

import (
	"fmt"

	"github.com/binzume/glaconv/geom"
	"github.com/binzume/glaconv/skel"
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"go.uber.org/zap"
)

type GLTFToSkelOption struct {
	// Skin selects the skin whose joints form the skeleton. Documents without
	// skins use every node.
	Skin   int
	Logger *zap.Logger
}

type gltfToSkel struct {
	*GLTFToSkelOption
	doc    *gltf.Document
	joints map[uint32]bool
	seen   map[uint32]bool
	names  map[string]bool
	log    *zap.Logger
}

func NewGLTFToSkelConverter(options *GLTFToSkelOption) *gltfToSkel {
	if options == nil {
		options = &GLTFToSkelOption{}
	}
	log := options.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &gltfToSkel{GLTFToSkelOption: options, log: log}
}

// GLTFToSkeleton builds a raw skeleton from the first skin of doc.
func GLTFToSkeleton(doc *gltf.Document, log *zap.Logger) (*skel.RawSkeleton, error) {
	return NewGLTFToSkelConverter(&GLTFToSkelOption{Logger: log}).Convert(doc)
}

func isZeroMatrix(m *[16]float32) bool {
	return *m == [16]float32{}
}

// nodeTransform returns the local transform of n. Zero valued TRS fields of
// programmatically built nodes are read as their glTF defaults.
func nodeTransform(n *gltf.Node) skel.Transform {
	identity := *geom.NewMatrix4()
	if m := n.Matrix; !isZeroMatrix(&m) && m != [16]float32(identity) {
		pos, rot, scale := geom.NewMatrix4FromSlice(m[:]).Decompose()
		return skel.Transform{Translation: *pos, Rotation: *rot.Normalized(), Scale: *scale}
	}
	t := skel.IdentityTransform()
	t.Translation = *geom.NewVector3FromArray(n.Translation)
	if n.Rotation != [4]float32{} {
		t.Rotation = *geom.NewQuaternionFromArray(n.Rotation).Normalized()
	}
	if n.Scale != [3]float32{} {
		t.Scale = *geom.NewVector3FromArray(n.Scale)
	}
	return t
}

func (c *gltfToSkel) Convert(doc *gltf.Document) (*skel.RawSkeleton, error) {
	c.doc = doc
	c.seen = map[uint32]bool{}
	c.names = map[string]bool{}
	c.joints = nil
	if len(doc.Skins) > 0 {
		if c.Skin < 0 || c.Skin >= len(doc.Skins) {
			return nil, errors.Errorf("skin %d out of range (%d skins)", c.Skin, len(doc.Skins))
		}
		c.joints = map[uint32]bool{}
		for _, j := range doc.Skins[c.Skin].Joints {
			c.joints[j] = true
		}
		c.log.Info("importing skin joints", zap.Int("skin", c.Skin), zap.Int("joints", len(c.joints)))
	} else {
		c.log.Info("document has no skin, importing every node", zap.Int("nodes", len(doc.Nodes)))
	}

	isChild := make([]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		for _, ch := range n.Children {
			if int(ch) >= len(doc.Nodes) {
				return nil, errors.Errorf("node child %d out of range", ch)
			}
			isChild[ch] = true
		}
	}

	raw := &skel.RawSkeleton{}
	for i := range doc.Nodes {
		if isChild[i] {
			continue
		}
		if err := c.visit(uint32(i), nil, nil, raw); err != nil {
			return nil, err
		}
	}
	if err := raw.Validate(); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *gltfToSkel) isJoint(n uint32) bool {
	return c.joints == nil || c.joints[n]
}

// visit walks node n. acc accumulates the matrices of non-joint nodes between
// parent and n; nil means none.
func (c *gltfToSkel) visit(n uint32, parent *skel.RawJoint, acc *geom.Matrix4, raw *skel.RawSkeleton) error {
	if c.seen[n] {
		return errors.Errorf("node %d is reachable twice", n)
	}
	c.seen[n] = true
	node := c.doc.Nodes[n]
	local := nodeTransform(node)

	if !c.isJoint(n) {
		m := local.Matrix()
		if acc != nil {
			m = acc.Mul(m)
		}
		for _, ch := range node.Children {
			if err := c.visit(ch, parent, m, raw); err != nil {
				return err
			}
		}
		return nil
	}

	if acc != nil {
		pos, rot, scale := acc.Mul(local.Matrix()).Decompose()
		local = skel.Transform{Translation: *pos, Rotation: *rot.Normalized(), Scale: *scale}
	}
	name := node.Name
	if name == "" {
		name = fmt.Sprintf("node_%d", n)
	}
	if c.names[name] {
		c.log.Warn("duplicate joint name", zap.String("name", name), zap.Uint32("node", n))
	}
	c.names[name] = true

	j := &skel.RawJoint{Name: name, Transform: local}
	if parent == nil {
		raw.Roots = append(raw.Roots, j)
	} else {
		parent.Children = append(parent.Children, j)
	}
	for _, ch := range node.Children {
		if err := c.visit(ch, j, nil, raw); err != nil {
			return err
		}
	}
	return nil
}
