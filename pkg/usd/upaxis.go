package usd

import (
	"fmt"
	"path/filepath"
)

// upAxisFixRotation rotates Z-up content into the Y-up frame the camera
// system assumes. 270 degrees about X maps +Z onto +Y.
const upAxisFixRotation = 270.0

// wrapperRootName is the root prim of the generated rotated wrapper layer.
const wrapperRootName = "YUpRoot"

// NormalizeUpAxis presents a Z-up subject in a canonical Y-up frame. It
// writes a new layer at outPath whose root Xform carries the corrective
// rotation and references the subject's default prim. Material bindings are
// resolved in the subject graph and reauthored over the wrapper paths, since
// a plain reference does not carry resolved bindings in every case.
//
// A subject already declared Y-up is returned unchanged. A subject with no
// default prim yields an empty wrapper; bounding the wrapper then degenerates
// to an empty box downstream.
func NormalizeUpAxis(subject *Stage, outPath string) (*Stage, error) {
	if subject.UpAxis != "Z" {
		return subject, nil
	}

	wrapper := New(outPath)
	wrapper.MetersPerUnit = subject.MetersPerUnit
	wrapper.DefaultPrim = wrapperRootName

	root := wrapper.DefinePrim("/"+wrapperRootName, "Xform")
	root.SetAttr("xformOp:rotateX", "double", upAxisFixRotation)
	root.SetAttr("xformOpOrder", "uniform token[]", []string{"xformOp:rotateX"})

	subjectRoot := subject.DefaultRoot()
	if subjectRoot == nil {
		if err := wrapper.Save(); err != nil {
			return nil, err
		}
		return wrapper, nil
	}

	assetPath := subject.Path
	if rel, err := filepath.Rel(filepath.Dir(outPath), subject.Path); err == nil {
		assetPath = rel
	}

	holder := wrapper.DefinePrim("/"+wrapperRootName+"/"+subjectRoot.Name, subjectRoot.Type)
	holder.AddReference(assetPath, subjectRoot.Path())

	reapplyBindings(wrapper, subjectRoot)

	if err := wrapper.Save(); err != nil {
		return nil, fmt.Errorf("saving up-axis wrapper: %w", err)
	}
	return wrapper, nil
}

// reapplyBindings walks the subject graph and mirrors every material:binding
// onto the corresponding wrapper path.
func reapplyBindings(wrapper *Stage, prim *Prim) {
	if target, ok := prim.Rels["material:binding"]; ok {
		over := wrapper.DefinePrim("/"+wrapperRootName+prim.Path(), prim.Type)
		over.SetRel("material:binding", "/"+wrapperRootName+target)
	}
	for _, c := range prim.Children {
		reapplyBindings(wrapper, c)
	}
}
