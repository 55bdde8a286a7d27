package gltfutil

import (
	"encoding/binary"
	"math"
	"path/filepath"
	"strings"

	"github.com/binzume/glaconv/geom"
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

const (
	FormatAuto = "auto"
	FormatGLTF = "gltf"
	FormatGLB  = "glb"
)

func Load(path string) (*gltf.Document, error) {
	return gltf.Open(path)
}

// FormatFromPath returns the output format implied by the file extension.
func FormatFromPath(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gltf":
		return FormatGLTF, nil
	case ".glb", ".vrm":
		return FormatGLB, nil
	}
	return "", errors.Errorf("%s: unsupported glTF extension", path)
}

// Save writes doc as JSON (.gltf) or binary (.glb) depending on path.
func Save(doc *gltf.Document, path string) error {
	return SaveAs(doc, path, FormatAuto)
}

// SaveAs writes doc in format; FormatAuto picks it from the extension.
func SaveAs(doc *gltf.Document, path, format string) error {
	if format == "" || format == FormatAuto {
		var err error
		if format, err = FormatFromPath(path); err != nil {
			return err
		}
	}
	switch format {
	case FormatGLTF:
		return gltf.Save(doc, path)
	case FormatGLB:
		return gltf.SaveBinary(doc, path)
	}
	return errors.Errorf("unknown glTF format %q", format)
}

// AddMatrices stores column-major 4x4 matrices as a MAT4 accessor.
func AddMatrices(doc *gltf.Document, mat [][4][4]float32) uint32 {
	a := make([][4]float32, len(mat)*4)
	for i, m := range mat {
		a[i*4+0] = m[0]
		a[i*4+1] = m[1]
		a[i*4+2] = m[2]
		a[i*4+3] = m[3]
	}
	acc := modeler.WriteTangent(doc, a)
	doc.Accessors[acc].Type = gltf.AccessorMat4
	doc.Accessors[acc].Count /= 4
	doc.BufferViews[*doc.Accessors[acc].BufferView].ByteStride *= 4
	return acc
}

func readMatrix(data []byte) [16]float32 {
	var mat [16]float32
	for i := 0; i < 16; i++ {
		d := binary.LittleEndian.Uint32(data[i*4 : i*4+4])
		mat[i] = math.Float32frombits(d)
	}
	return mat
}

// InverseBindMatrices reads the inverse bind matrices of skin. Skins without
// them get identity matrices.
func InverseBindMatrices(doc *gltf.Document, skin *gltf.Skin) ([]*geom.Matrix4, error) {
	mats := make([]*geom.Matrix4, len(skin.Joints))
	if skin.InverseBindMatrices == nil {
		for i := range mats {
			mats[i] = geom.NewMatrix4()
		}
		return mats, nil
	}
	accessor := doc.Accessors[*skin.InverseBindMatrices]
	if accessor.BufferView == nil || accessor.Sparse != nil {
		return nil, errors.New("inverse bind matrices must be a dense buffer view")
	}
	if accessor.Type != gltf.AccessorMat4 || accessor.ComponentType != gltf.ComponentFloat {
		return nil, errors.New("inverse bind matrices must be float MAT4")
	}
	bufferView := doc.BufferViews[*accessor.BufferView]
	data := doc.Buffers[bufferView.Buffer].Data
	stride := bufferView.ByteStride
	if stride == 0 {
		stride = 64
	}
	for i := range mats {
		offset := bufferView.ByteOffset + accessor.ByteOffset + uint32(i)*stride
		if int(offset)+64 > len(data) {
			return nil, errors.Errorf("inverse bind matrix %d out of buffer", i)
		}
		m := readMatrix(data[offset : offset+64])
		mats[i] = geom.NewMatrix4FromSlice(m[:])
	}
	return mats, nil
}
