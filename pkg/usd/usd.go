// Package usd reads and writes the subset of the usda text format needed to
// stage a subject for thumbnailing: stage metadata, prim hierarchies, typed
// attributes, sublayers, references and material bindings.
package usd

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Scene description errors.
var (
	ErrNotFound     = errors.New("scene file not found")
	ErrMalformed    = errors.New("malformed usda layer")
	ErrNotBoundable = errors.New("subject has no boundable geometry")
)

// DefaultMetersPerUnit is assumed when a layer declares no linear unit.
// USD's fallback is centimeters.
const DefaultMetersPerUnit = 0.01

// Stage is an in-memory usda layer.
type Stage struct {
	Path          string
	DefaultPrim   string
	UpAxis        string
	MetersPerUnit float64
	SubLayers     []string
	Roots         []*Prim
}

// Reference points a prim at (part of) another layer.
type Reference struct {
	AssetPath string
	PrimPath  string
}

// Attr is a typed prim attribute. TypeName is the usda type token as written
// ("double", "float3[]", "uniform token[]", ...); Value holds float64, int64,
// string, [2]float64, [3]float64 or [][3]float64 depending on the type.
type Attr struct {
	Name     string
	TypeName string
	Value    any
}

// Prim is a node in the stage hierarchy.
type Prim struct {
	Name       string
	Type       string
	Parent     *Prim
	Children   []*Prim
	Attrs      []*Attr
	Rels       map[string]string
	References []Reference
	APISchemas []string
}

// New creates an empty stage that will save to path.
func New(path string) *Stage {
	return &Stage{Path: path, UpAxis: "Y", MetersPerUnit: DefaultMetersPerUnit}
}

// Open reads a usda layer from disk.
func Open(path string) (*Stage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("opening layer: %w", err)
	}
	stage, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	stage.Path = path
	return stage, nil
}

// Save writes the stage back to its path.
func (s *Stage) Save() error {
	return s.SaveAs(s.Path)
}

// SaveAs writes the stage to path and records it as the stage path.
func (s *Stage) SaveAs(path string) error {
	if err := os.WriteFile(path, s.Encode(), 0o644); err != nil {
		return fmt.Errorf("saving layer: %w", err)
	}
	s.Path = path
	return nil
}

// UnitsToMm converts the stage's declared linear unit to a scene-unit ->
// millimeter factor. Centimeter scenes yield 10.
func (s *Stage) UnitsToMm() float64 {
	mpu := s.MetersPerUnit
	if mpu <= 0 {
		mpu = DefaultMetersPerUnit
	}
	return mpu * 1000
}

// Path returns the prim's absolute scene path.
func (p *Prim) Path() string {
	if p.Parent == nil {
		return "/" + p.Name
	}
	return p.Parent.Path() + "/" + p.Name
}

// Child returns the direct child with the given name, or nil.
func (p *Prim) Child(name string) *Prim {
	for _, c := range p.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// GetPrim resolves an absolute prim path ("/Root/Child"), or nil.
func (s *Stage) GetPrim(path string) *Prim {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return nil
	}
	var cur *Prim
	for _, r := range s.Roots {
		if r.Name == parts[0] {
			cur = r
			break
		}
	}
	for _, name := range parts[1:] {
		if cur == nil {
			return nil
		}
		cur = cur.Child(name)
	}
	return cur
}

// DefaultRoot returns the prim named by the stage's defaultPrim metadata,
// falling back to the first root prim.
func (s *Stage) DefaultRoot() *Prim {
	if s.DefaultPrim != "" {
		if p := s.GetPrim("/" + s.DefaultPrim); p != nil {
			return p
		}
	}
	if len(s.Roots) > 0 {
		return s.Roots[0]
	}
	return nil
}

// DefinePrim creates (or returns) the prim at the given absolute path.
// Missing ancestors are created as Xforms; the leaf gets the given type.
func (s *Stage) DefinePrim(path, typeName string) *Prim {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	var cur *Prim
	for i, name := range parts {
		var next *Prim
		if cur == nil {
			for _, r := range s.Roots {
				if r.Name == name {
					next = r
					break
				}
			}
		} else {
			next = cur.Child(name)
		}
		if next == nil {
			t := "Xform"
			if i == len(parts)-1 {
				t = typeName
			}
			next = &Prim{Name: name, Type: t, Parent: cur, Rels: map[string]string{}}
			if cur == nil {
				s.Roots = append(s.Roots, next)
			} else {
				cur.Children = append(cur.Children, next)
			}
		}
		cur = next
	}
	return cur
}

// SetAttr authors an attribute, replacing any existing one with the same name.
func (p *Prim) SetAttr(name, typeName string, value any) {
	for _, a := range p.Attrs {
		if a.Name == name {
			a.TypeName = typeName
			a.Value = value
			return
		}
	}
	p.Attrs = append(p.Attrs, &Attr{Name: name, TypeName: typeName, Value: value})
}

// GetAttr returns the attribute with the given name, or nil.
func (p *Prim) GetAttr(name string) *Attr {
	for _, a := range p.Attrs {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// Float returns a scalar attribute as float64.
func (p *Prim) Float(name string) (float64, bool) {
	a := p.GetAttr(name)
	if a == nil {
		return 0, false
	}
	switch v := a.Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Vec3Array returns a float3[]-style attribute value.
func (p *Prim) Vec3Array(name string) ([][3]float64, bool) {
	a := p.GetAttr(name)
	if a == nil {
		return nil, false
	}
	v, ok := a.Value.([][3]float64)
	return v, ok
}

// SetRel authors a single-target relationship.
func (p *Prim) SetRel(name, target string) {
	if p.Rels == nil {
		p.Rels = map[string]string{}
	}
	p.Rels[name] = target
}

// AddReference appends an external reference to the prim.
func (p *Prim) AddReference(assetPath, primPath string) {
	p.References = append(p.References, Reference{AssetPath: assetPath, PrimPath: primPath})
}

// ApplyAPI records an applied API schema on the prim. Idempotent.
func (p *Prim) ApplyAPI(schema string) {
	for _, s := range p.APISchemas {
		if s == schema {
			return
		}
	}
	p.APISchemas = append(p.APISchemas, schema)
}
