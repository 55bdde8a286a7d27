package gla

import (
	"bytes"
	"encoding/binary"
	"os"

	"github.com/binzume/glaconv/geom"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// File is a decoded GLA. Frame and pool data are views into the loaded buffer.
type File struct {
	Header Header
	Bones  []*Bone

	data   []byte
	frames []byte
	pool   []byte

	strict bool
	log    *zap.Logger
}

type baseParser struct {
	r *bytes.Reader
}

func (p *baseParser) read(v interface{}) error {
	return binary.Read(p.r, binary.LittleEndian, v)
}

func readString(b []byte) string {
	s, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), bytes.SplitN(b, []byte{0}, 2)[0])
	if err != nil {
		return string(bytes.SplitN(b, []byte{0}, 2)[0])
	}
	return string(s)
}

// Load reads and decodes a GLA file.
func Load(path string, opts *Options) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(data, opts)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return f, nil
}

// Parse decodes a GLA held in data. The returned File keeps references into data.
func Parse(data []byte, opts *Options) (*File, error) {
	if opts == nil {
		opts = &Options{}
	}
	f := &File{data: data, strict: opts.Strict, log: opts.Logger}
	if f.log == nil {
		f.log = zap.NewNop()
	}

	if err := f.parseHeader(); err != nil {
		return nil, err
	}
	if err := f.parseSkeleton(); err != nil {
		return nil, err
	}
	if err := f.parseFrames(); err != nil {
		return nil, err
	}
	if err := f.parsePool(); err != nil {
		return nil, err
	}
	if f.strict {
		if err := f.validateFrameIndices(); err != nil {
			return nil, err
		}
	}
	f.log.Debug("gla loaded",
		zap.String("name", f.Header.Name),
		zap.Float32("scale", f.Header.Scale),
		zap.Int32("frames", f.Header.NumFrames),
		zap.Int32("bones", f.Header.NumBones),
		zap.Int("poolRecords", len(f.pool)/CompressedBoneSize))
	return f, nil
}

func (f *File) parseHeader() error {
	if len(f.data) < HeaderSize {
		return formatErrorf("file too small for header: %d bytes", len(f.data))
	}
	var h rawHeader
	p := &baseParser{r: bytes.NewReader(f.data[:HeaderSize])}
	if err := p.read(&h); err != nil {
		return errors.Wrap(err, "read header")
	}
	if h.Ident != Ident {
		return formatErrorf("bad magic: %#x != %#x", h.Ident, Ident)
	}
	if h.Version != Version {
		return formatErrorf("unsupported version: %v != %v", h.Version, Version)
	}
	f.Header = Header{
		Ident:           h.Ident,
		Version:         h.Version,
		Name:            readString(h.Name[:]),
		Scale:           h.Scale,
		NumFrames:       h.NumFrames,
		OfsFrames:       h.OfsFrames,
		NumBones:        h.NumBones,
		OfsCompBonePool: h.OfsCompBonePool,
		OfsSkel:         h.OfsSkel,
		OfsEnd:          h.OfsEnd,
	}
	return nil
}

func (f *File) parseSkeleton() error {
	size := int64(len(f.data))
	h := &f.Header
	if h.OfsSkel <= 0 || int64(h.OfsSkel) >= size {
		return formatErrorf("invalid skeleton offset: %d", h.OfsSkel)
	}
	if h.NumBones < 0 {
		return formatErrorf("invalid bone count: %d", h.NumBones)
	}
	if HeaderSize+int64(h.NumBones)*4 > size {
		return formatErrorf("file too small for bone offset table (%d bones)", h.NumBones)
	}

	offsets := make([]int32, h.NumBones)
	p := &baseParser{r: bytes.NewReader(f.data[HeaderSize:])}
	if err := p.read(offsets); err != nil {
		return errors.Wrap(err, "read bone offsets")
	}

	f.Bones = make([]*Bone, 0, h.NumBones)
	for i, ofs := range offsets {
		start := HeaderSize + int64(ofs)
		if ofs < 0 || start+BoneHeaderSize > size {
			return formatErrorf("bone %d (offset=%d) extends past end of file", i, ofs)
		}
		var rb rawBone
		p := &baseParser{r: bytes.NewReader(f.data[start : start+BoneHeaderSize])}
		if err := p.read(&rb); err != nil {
			return errors.Wrapf(err, "read bone %d", i)
		}
		if rb.Parent < -1 || rb.Parent >= h.NumBones {
			return formatErrorf("bone %d has invalid parent %d", i, rb.Parent)
		}
		b := &Bone{
			Index:       i,
			Name:        readString(rb.Name[:]),
			Flags:       rb.Flags,
			Parent:      int(rb.Parent),
			BasePose:    geom.Matrix34(rb.BasePose),
			BasePoseInv: geom.Matrix34(rb.BasePoseInv),
			NumChildren: int(rb.NumChildren),
		}
		f.Bones = append(f.Bones, b)
		f.log.Debug("bone", zap.Int("index", i), zap.String("name", b.Name),
			zap.Int("parent", b.Parent), zap.Int("children", b.NumChildren))
	}
	return f.checkHierarchy()
}

// checkHierarchy rejects self parents and parent chains that loop.
func (f *File) checkHierarchy() error {
	n := len(f.Bones)
	for i, b := range f.Bones {
		if b.Parent == i {
			return formatErrorf("bone %d is its own parent", i)
		}
		depth := 0
		for p := b.Parent; p >= 0; p = f.Bones[p].Parent {
			if depth++; depth > n {
				return formatErrorf("bone %d has a cyclic parent chain", i)
			}
		}
	}
	return nil
}

func (f *File) parseFrames() error {
	size := int64(len(f.data))
	h := &f.Header
	if h.OfsFrames <= 0 || int64(h.OfsFrames) >= size {
		return formatErrorf("invalid frame data offset: %d", h.OfsFrames)
	}
	if h.NumFrames < 0 {
		return formatErrorf("invalid frame count: %d", h.NumFrames)
	}
	n := int64(h.NumFrames) * int64(h.NumBones) * FrameIndexSize
	if int64(h.OfsFrames)+n > size {
		return formatErrorf("frame data extends past end of file (%d frames)", h.NumFrames)
	}
	f.frames = f.data[h.OfsFrames : int64(h.OfsFrames)+n]
	return nil
}

func (f *File) parsePool() error {
	size := int64(len(f.data))
	h := &f.Header
	if h.OfsCompBonePool <= 0 || int64(h.OfsCompBonePool) >= size {
		return formatErrorf("invalid compressed bone pool offset: %d", h.OfsCompBonePool)
	}
	// the pool runs up to the skeleton section when that follows it,
	// otherwise to the end marker or the end of the buffer.
	end := size
	if h.OfsSkel > h.OfsCompBonePool {
		end = int64(h.OfsSkel)
	} else if h.OfsEnd > 0 && int64(h.OfsEnd) <= size {
		end = int64(h.OfsEnd)
	}
	if end < int64(h.OfsCompBonePool) {
		return formatErrorf("compressed bone pool has negative size (%d..%d)", h.OfsCompBonePool, end)
	}
	f.pool = f.data[h.OfsCompBonePool:end]
	return nil
}

func (f *File) validateFrameIndices() error {
	records := uint32(len(f.pool) / CompressedBoneSize)
	for frame := 0; frame < f.NumFrames(); frame++ {
		for bone := 0; bone < f.NumBones(); bone++ {
			if idx := f.ReadFrameIndex(frame, bone); idx >= records {
				return formatErrorf("frame %d bone %d: pool index %d out of range (%d records)", frame, bone, idx, records)
			}
		}
	}
	return nil
}

func (f *File) NumFrames() int {
	return int(f.Header.NumFrames)
}

func (f *File) NumBones() int {
	return len(f.Bones)
}

func (f *File) Strict() bool {
	return f.strict
}

// BoneIndex returns the index of the named bone, or -1.
func (f *File) BoneIndex(name string) int {
	for i, b := range f.Bones {
		if b.Name == name {
			return i
		}
	}
	return -1
}

// Roots returns the indices of bones without a parent.
func (f *File) Roots() []int {
	var roots []int
	for i, b := range f.Bones {
		if b.IsRoot() {
			roots = append(roots, i)
		}
	}
	return roots
}

// Children returns the direct children of bone in file order.
func (f *File) Children(bone int) []int {
	var children []int
	for i, b := range f.Bones {
		if b.Parent == bone {
			children = append(children, i)
		}
	}
	return children
}
