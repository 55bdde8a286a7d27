// Package gla decodes Ghoul2 animation files (.gla): skeleton, per-frame
// compressed bone transforms and the bind pose matrices.
package gla

import (
	"github.com/binzume/glaconv/geom"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	Ident   = 0x32474C41 // "2LGA"
	Version = 6

	MaxNameLength = 64

	HeaderSize         = 100
	BoneHeaderSize     = 172
	FrameIndexSize     = 3
	CompressedBoneSize = 14
)

// fixed point mapping of compressed records
const (
	quatScale   = 16383.0
	quatOffset  = 2.0
	transScale  = 64.0
	transOffset = 512.0
)

var ErrFormat = errors.New("gla format error")

func formatErrorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrFormat, format, args...)
}

type Header struct {
	Ident           uint32
	Version         uint32
	Name            string
	Scale           float32
	NumFrames       int32
	OfsFrames       int32
	NumBones        int32
	OfsCompBonePool int32
	OfsSkel         int32
	OfsEnd          int32
}

type Bone struct {
	Index       int
	Name        string
	Flags       uint32
	Parent      int // -1: root
	BasePose    geom.Matrix34
	BasePoseInv geom.Matrix34
	NumChildren int
}

func (b *Bone) IsRoot() bool {
	return b.Parent < 0
}

type Options struct {
	// Strict rejects files containing frame indices outside the bone pool
	// and makes out-of-range lookups fail instead of falling back to index 0.
	Strict bool
	Logger *zap.Logger
}

// on-disk layouts
type rawHeader struct {
	Ident           uint32
	Version         uint32
	Name            [MaxNameLength]byte
	Scale           float32
	NumFrames       int32
	OfsFrames       int32
	NumBones        int32
	OfsCompBonePool int32
	OfsSkel         int32
	OfsEnd          int32
}

type rawBone struct {
	Name        [MaxNameLength]byte
	Flags       uint32
	Parent      int32
	BasePose    [3][4]float32
	BasePoseInv [3][4]float32
	NumChildren int32
}
