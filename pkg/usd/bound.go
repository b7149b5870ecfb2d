package usd

import (
	"fmt"
	"path/filepath"

	"github.com/assetpipe/usdthumb/pkg/math"
)

// maxReferenceDepth bounds reference chasing so that cyclic layers terminate.
const maxReferenceDepth = 8

// ComputeWorldBound returns the world-space axis-aligned bound of the stage's
// default prim subtree, following external references. Authored extent
// attributes are preferred; a prim without one falls back to its points.
func ComputeWorldBound(s *Stage) (math.BBox, error) {
	root := s.DefaultRoot()
	if root == nil {
		return math.BBox{}, fmt.Errorf("%w: stage has no prims", ErrNotBoundable)
	}
	box := primBound(s, root, maxReferenceDepth)
	if box.IsEmpty() {
		return math.BBox{}, fmt.Errorf("%w: %s", ErrNotBoundable, root.Path())
	}
	return box, nil
}

func primBound(s *Stage, p *Prim, depth int) math.BBox {
	box := math.EmptyBBox()

	if extent, ok := p.Vec3Array("extent"); ok && len(extent) == 2 {
		box = box.ExtendPoint(vec3(extent[0])).ExtendPoint(vec3(extent[1]))
	} else if points, ok := p.Vec3Array("points"); ok {
		for _, pt := range points {
			box = box.ExtendPoint(vec3(pt))
		}
	}

	if depth > 0 {
		for _, ref := range p.References {
			box = box.Union(referenceBound(s, ref, depth-1))
		}
	}

	for _, c := range p.Children {
		box = box.Union(primBound(s, c, depth))
	}

	if rot, ok := p.Float("xformOp:rotateX"); ok {
		box = box.RotateX(rot)
	}
	if a := p.GetAttr("xformOp:translate"); a != nil {
		if t, ok := a.Value.([3]float64); ok {
			box = box.Translate(vec3(t))
		}
	}
	return box
}

func referenceBound(s *Stage, ref Reference, depth int) math.BBox {
	path := ref.AssetPath
	if !filepath.IsAbs(path) && s.Path != "" {
		path = filepath.Join(filepath.Dir(s.Path), path)
	}
	target, err := Open(path)
	if err != nil {
		return math.EmptyBBox()
	}
	var prim *Prim
	if ref.PrimPath != "" {
		prim = target.GetPrim(ref.PrimPath)
	} else {
		prim = target.DefaultRoot()
	}
	if prim == nil {
		return math.EmptyBBox()
	}
	return primBound(target, prim, depth)
}

func vec3(v [3]float64) math.Vec3 {
	return math.Vec3{X: v[0], Y: v[1], Z: v[2]}
}
