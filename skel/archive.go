package skel

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"
)

// ErrArchive is returned for archives with an unexpected tag or version.
var ErrArchive = errors.New("invalid archive")

const (
	skeletonTag     = "glaconv-skeleton"
	animationTag    = "glaconv-animation"
	skeletonVersion = 1
	animVersion     = 1

	maxStringLength = 1 << 16
	maxCount        = 1 << 24
)

type baseWriter struct {
	w   io.Writer
	err error
}

func (p *baseWriter) write(v interface{}) {
	if p.err == nil {
		p.err = binary.Write(p.w, binary.LittleEndian, v)
	}
}

func (p *baseWriter) writeInt(v int) {
	p.write(int32(v))
}

func (p *baseWriter) writeString(s string) {
	p.writeInt(len(s))
	p.write([]byte(s))
}

func (p *baseWriter) writeTransform(t *Transform) {
	p.write(&t.Translation)
	p.write(&t.Rotation)
	p.write(&t.Scale)
}

type baseParser struct {
	r   io.Reader
	err error
}

func (p *baseParser) read(v interface{}) {
	if p.err == nil {
		p.err = binary.Read(p.r, binary.LittleEndian, v)
	}
}

func (p *baseParser) readInt() int {
	var v int32
	p.read(&v)
	return int(v)
}

func (p *baseParser) readCount() int {
	n := p.readInt()
	if p.err == nil && (n < 0 || n > maxCount) {
		p.err = errors.Wrapf(ErrArchive, "invalid count %d", n)
	}
	if p.err != nil {
		return 0
	}
	return n
}

func (p *baseParser) readString() string {
	n := p.readCount()
	if p.err != nil || n > maxStringLength {
		if p.err == nil {
			p.err = errors.Wrapf(ErrArchive, "string too long (%d)", n)
		}
		return ""
	}
	b := make([]byte, n)
	p.read(b)
	return string(b)
}

func (p *baseParser) readTransform() Transform {
	var t Transform
	p.read(&t.Translation)
	p.read(&t.Rotation)
	p.read(&t.Scale)
	return t
}

func (p *baseParser) readHeader(tag string, version uint32) {
	if s := p.readString(); p.err == nil && s != tag {
		p.err = errors.Wrapf(ErrArchive, "unexpected tag %q, want %q", s, tag)
	}
	var v uint32
	p.read(&v)
	if p.err == nil && v != version {
		p.err = errors.Wrapf(ErrArchive, "unsupported %s version %d", tag, v)
	}
}

// WriteSkeleton serializes s.
func WriteSkeleton(w io.Writer, s *Skeleton) error {
	bw := &baseWriter{w: w}
	bw.writeString(skeletonTag)
	bw.write(uint32(skeletonVersion))
	bw.writeInt(s.NumJoints())
	for i, name := range s.names {
		bw.writeString(name)
		bw.writeInt(s.parents[i])
		t := s.RestPose(i)
		bw.writeTransform(&t)
	}
	return bw.err
}

// ReadSkeleton deserializes a skeleton written by WriteSkeleton.
func ReadSkeleton(r io.Reader) (*Skeleton, error) {
	p := &baseParser{r: r}
	p.readHeader(skeletonTag, skeletonVersion)
	n := p.readCount()
	if p.err == nil && n == 0 {
		p.err = errors.Wrap(ErrArchive, "skeleton has no joints")
	}
	if p.err != nil {
		return nil, errors.Wrap(p.err, "read skeleton")
	}
	s := &Skeleton{}
	var rest []Transform
	for i := 0; i < n && p.err == nil; i++ {
		name := p.readString()
		parent := p.readInt()
		t := p.readTransform()
		if p.err == nil && (parent < NoParent || parent >= i) {
			p.err = errors.Wrapf(ErrArchive, "joint %d has invalid parent %d", i, parent)
		}
		s.names = append(s.names, name)
		s.parents = append(s.parents, parent)
		rest = append(rest, t)
	}
	if p.err != nil {
		return nil, errors.Wrap(p.err, "read skeleton")
	}
	s.rest = packTransforms(rest)
	return s, nil
}

// WriteAnimation serializes a.
func WriteAnimation(w io.Writer, a *Animation) error {
	bw := &baseWriter{w: w}
	bw.writeString(animationTag)
	bw.write(uint32(animVersion))
	bw.writeString(a.name)
	bw.write(a.duration)
	bw.writeInt(len(a.tracks))
	for _, tr := range a.tracks {
		bw.writeInt(len(tr.Translations))
		bw.write(tr.Translations)
		bw.writeInt(len(tr.Rotations))
		bw.write(tr.Rotations)
		bw.writeInt(len(tr.Scales))
		bw.write(tr.Scales)
	}
	return bw.err
}

// ReadAnimation deserializes and revalidates an animation written by WriteAnimation.
func ReadAnimation(r io.Reader) (*Animation, error) {
	p := &baseParser{r: r}
	p.readHeader(animationTag, animVersion)
	raw := &RawAnimation{Name: p.readString()}
	p.read(&raw.Duration)
	n := p.readCount()
	for i := 0; i < n && p.err == nil; i++ {
		var tr JointTrack
		tr.Translations = make([]TranslationKey, p.readCount())
		p.read(tr.Translations)
		tr.Rotations = make([]RotationKey, p.readCount())
		p.read(tr.Rotations)
		tr.Scales = make([]ScaleKey, p.readCount())
		p.read(tr.Scales)
		raw.Tracks = append(raw.Tracks, tr)
	}
	if p.err != nil {
		return nil, errors.Wrap(p.err, "read animation")
	}
	return BuildAnimation(raw)
}

func SaveSkeleton(path string, s *Skeleton) error {
	return saveFile(path, func(w io.Writer) error { return WriteSkeleton(w, s) })
}

func SaveAnimation(path string, a *Animation) error {
	return saveFile(path, func(w io.Writer) error { return WriteAnimation(w, a) })
}

func LoadSkeleton(path string) (*Skeleton, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s, err := ReadSkeleton(bufio.NewReader(f))
	return s, errors.Wrap(err, path)
}

func LoadAnimation(path string) (*Animation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	a, err := ReadAnimation(bufio.NewReader(f))
	return a, errors.Wrap(err, path)
}

func saveFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := write(w); err != nil {
		return errors.Wrap(err, path)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}
