package renderer

import (
	"unsafe"

	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/texturedquad/quad"
)

func vertexBindingDescriptions() []core1_0.VertexInputBindingDescription {
	return []core1_0.VertexInputBindingDescription{
		{
			Binding:   0,
			Stride:    int(unsafe.Sizeof(quad.Vertex{})),
			InputRate: core1_0.VertexInputRateVertex,
		},
	}
}

func vertexAttributeDescriptions() []core1_0.VertexInputAttributeDescription {
	v := quad.Vertex{}
	return []core1_0.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Position)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Color)),
		},
		{
			Binding:  0,
			Location: 2,
			Format:   core1_0.FormatR32G32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.TexCoord)),
		},
	}
}

type meshBuffers struct {
	vertices   *allocation[core1_0.Buffer]
	indices    *allocation[core1_0.Buffer]
	indexCount int
}

func (r *Renderer) createMeshBuffers(mesh quad.Mesh) error {
	var err error
	r.mesh.vertices, err = r.uploadBuffer(r.arena, "vertex", core1_0.BufferUsageVertexBuffer, mesh.Vertices)
	if err != nil {
		return err
	}

	r.mesh.indices, err = r.uploadBuffer(r.arena, "index", core1_0.BufferUsageIndexBuffer, mesh.Indices)
	if err != nil {
		return err
	}

	r.mesh.indexCount = len(mesh.Indices)
	return nil
}
