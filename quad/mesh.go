package quad

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"
)

// LoadOBJ reads a Wavefront OBJ file into a Mesh. A material library next to
// the file (same name, .mtl extension) is used when present. Polygons are
// fanned into triangles and vertices are shared by position index.
func LoadOBJ(path string) (Mesh, error) {
	objFile, err := os.Open(path)
	if err != nil {
		return Mesh{}, errors.Wrap(err, "open mesh")
	}
	defer objFile.Close()

	var mtl io.Reader = strings.NewReader("")
	mtlPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".mtl"
	if mtlFile, err := os.Open(mtlPath); err == nil {
		defer mtlFile.Close()
		mtl = mtlFile
	}

	return DecodeOBJ(objFile, mtl)
}

// DecodeOBJ decodes OBJ and MTL streams into a Mesh.
func DecodeOBJ(objReader, mtlReader io.Reader) (Mesh, error) {
	decoder, err := obj.DecodeReader(objReader, mtlReader)
	if err != nil {
		return Mesh{}, errors.Wrap(err, "decode obj")
	}

	b := meshBuilder{decoder: decoder, shared: map[int]uint32{}}
	for _, object := range decoder.Objects {
		for _, face := range object.Faces {
			for i := 2; i < len(face.Vertices); i++ {
				b.add(face, 0)
				b.add(face, i-1)
				b.add(face, i)
			}
		}
	}

	if len(b.mesh.Indices) == 0 {
		return Mesh{}, errors.New("obj contains no faces")
	}
	return b.mesh, nil
}

type meshBuilder struct {
	decoder *obj.Decoder
	shared  map[int]uint32
	mesh    Mesh
}

func (b *meshBuilder) add(face obj.Face, corner int) {
	position := face.Vertices[corner]
	index, ok := b.shared[position]
	if !ok {
		v := Vertex{
			Position: mgl32.Vec3{
				b.decoder.Vertices[position*3],
				b.decoder.Vertices[position*3+1],
				b.decoder.Vertices[position*3+2],
			},
			Color: mgl32.Vec3{1, 1, 1},
		}

		if corner < len(face.Uvs) {
			uv := face.Uvs[corner]
			if uv >= 0 && uv*2+1 < len(b.decoder.Uvs) {
				// OBJ puts the texture origin bottom left.
				v.TexCoord = mgl32.Vec2{b.decoder.Uvs[uv*2], 1 - b.decoder.Uvs[uv*2+1]}
			}
		}

		index = uint32(len(b.mesh.Vertices))
		b.mesh.Vertices = append(b.mesh.Vertices, v)
		b.shared[position] = index
	}

	b.mesh.Indices = append(b.mesh.Indices, index)
}
