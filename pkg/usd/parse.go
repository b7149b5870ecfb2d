package usd

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse decodes usda text. The reader is deliberately permissive: lines it
// does not understand are skipped so that layers authored by richer
// implementations still yield their hierarchy, metadata and attributes.
func Parse(data []byte) (*Stage, error) {
	lines := strings.Split(string(data), "\n")
	if len(lines) == 0 || !strings.HasPrefix(strings.TrimSpace(lines[0]), "#usda") {
		return nil, fmt.Errorf("%w: missing #usda header", ErrMalformed)
	}

	s := &Stage{MetersPerUnit: DefaultMetersPerUnit, UpAxis: "Y"}
	p := &parser{lines: lines, pos: 1}
	p.skipBlank()

	if p.peek() == "(" {
		p.pos++
		p.parseStageMetadata(s)
	}

	for !p.done() {
		line := p.peek()
		if isPrimHeader(line) {
			prim, err := p.parsePrim(nil)
			if err != nil {
				return nil, err
			}
			if prim != nil {
				s.Roots = append(s.Roots, prim)
			}
		} else {
			p.pos++
		}
	}
	return s, nil
}

type parser struct {
	lines []string
	pos   int
}

func (p *parser) done() bool { return p.pos >= len(p.lines) }

func (p *parser) peek() string {
	if p.done() {
		return ""
	}
	return strings.TrimSpace(p.lines[p.pos])
}

func (p *parser) next() string {
	line := p.peek()
	p.pos++
	return line
}

func (p *parser) skipBlank() {
	for !p.done() && p.peek() == "" {
		p.pos++
	}
}

func (p *parser) parseStageMetadata(s *Stage) {
	for !p.done() {
		line := p.next()
		switch {
		case line == ")":
			return
		case strings.HasPrefix(line, "defaultPrim"):
			s.DefaultPrim = unquoteRHS(line)
		case strings.HasPrefix(line, "upAxis"):
			s.UpAxis = unquoteRHS(line)
		case strings.HasPrefix(line, "metersPerUnit"):
			if v, err := strconv.ParseFloat(rhs(line), 64); err == nil {
				s.MetersPerUnit = v
			}
		case strings.HasPrefix(line, "subLayers"):
			s.SubLayers = p.parseAssetList(line)
		}
	}
}

// parseAssetList handles both inline and multi-line @asset@ lists.
func (p *parser) parseAssetList(first string) []string {
	var out []string
	collect := func(s string) {
		for {
			start := strings.Index(s, "@")
			if start < 0 {
				return
			}
			rest := s[start+1:]
			end := strings.Index(rest, "@")
			if end < 0 {
				return
			}
			out = append(out, rest[:end])
			s = rest[end+1:]
		}
	}
	collect(first)
	if strings.Contains(first, "]") {
		return out
	}
	for !p.done() {
		line := p.next()
		collect(line)
		if strings.Contains(line, "]") {
			break
		}
	}
	return out
}

func isPrimHeader(line string) bool {
	return strings.HasPrefix(line, "def ") || strings.HasPrefix(line, "def\"") ||
		strings.HasPrefix(line, "over ") || strings.HasPrefix(line, "class ")
}

// parsePrim consumes one def block (header, optional metadata, body).
func (p *parser) parsePrim(parent *Prim) (*Prim, error) {
	header := p.next()
	hasBrace := strings.HasSuffix(header, "{")
	openMeta := strings.HasSuffix(header, "(")
	header = strings.TrimSuffix(strings.TrimSuffix(header, "{"), "(")
	header = strings.TrimSpace(header)

	name, typeName := parsePrimHeader(header)
	if name == "" {
		return nil, fmt.Errorf("%w: bad prim header %q", ErrMalformed, header)
	}
	prim := &Prim{Name: name, Type: typeName, Parent: parent, Rels: map[string]string{}}

	if openMeta {
		p.parsePrimMetadata(prim)
	}
	if !hasBrace {
		p.skipBlank()
		if p.peek() == "(" {
			p.pos++
			p.parsePrimMetadata(prim)
			p.skipBlank()
		}
		if p.peek() != "{" {
			return nil, fmt.Errorf("%w: prim %q has no body", ErrMalformed, name)
		}
		p.pos++
	}

	for !p.done() {
		line := p.peek()
		switch {
		case line == "}":
			p.pos++
			return prim, nil
		case line == "":
			p.pos++
		case isPrimHeader(line):
			child, err := p.parsePrim(prim)
			if err != nil {
				return nil, err
			}
			prim.Children = append(prim.Children, child)
		case strings.HasPrefix(line, "rel "):
			p.pos++
			if t := pathRHS(line); t != "" {
				field := strings.Fields(strings.TrimPrefix(line, "rel "))
				if len(field) > 0 {
					prim.Rels[field[0]] = t
				}
			}
		case strings.HasSuffix(line, "= {"):
			// timeSamples or dictionary-valued field; not needed here.
			p.pos++
			p.skipBalanced("{", "}")
		default:
			p.pos++
			p.parseAttrLine(prim, line)
		}
	}
	return nil, fmt.Errorf("%w: unterminated prim %q", ErrMalformed, name)
}

func parsePrimHeader(header string) (name, typeName string) {
	fields := strings.SplitN(header, " ", 3)
	// Forms: `def "Name"`, `def Type "Name"`, `over "Name"`, `class Type "Name"`.
	switch len(fields) {
	case 2:
		name = strings.Trim(fields[1], "\"")
	case 3:
		typeName = fields[1]
		name = strings.Trim(fields[2], "\"")
	}
	return name, typeName
}

func (p *parser) parsePrimMetadata(prim *Prim) {
	for !p.done() {
		line := p.next()
		if line == ")" {
			return
		}
		switch {
		case strings.Contains(line, "apiSchemas"):
			for _, s := range strings.Split(between(line, "[", "]"), ",") {
				s = strings.Trim(strings.TrimSpace(s), "\"")
				if s != "" {
					prim.APISchemas = append(prim.APISchemas, s)
				}
			}
		case strings.Contains(line, "references"):
			asset := between(line, "@", "@")
			primPath := between(line, "<", ">")
			if asset != "" || primPath != "" {
				prim.References = append(prim.References, Reference{AssetPath: asset, PrimPath: primPath})
			}
		}
	}
}

func (p *parser) skipBalanced(open, close string) {
	depth := 1
	for !p.done() && depth > 0 {
		line := p.next()
		depth += strings.Count(line, open) - strings.Count(line, close)
	}
}

// parseAttrLine decodes `[uniform] <type> name = value`. Values whose
// brackets span lines are accumulated first.
func (p *parser) parseAttrLine(prim *Prim, line string) {
	eq := strings.Index(line, "=")
	if eq < 0 {
		return
	}
	lhs := strings.Fields(strings.TrimSpace(line[:eq]))
	value := strings.TrimSpace(line[eq+1:])

	for strings.Count(value, "[") > strings.Count(value, "]") ||
		strings.Count(value, "(") > strings.Count(value, ")") {
		if p.done() {
			return
		}
		value += " " + p.next()
	}

	if len(lhs) < 2 {
		return
	}
	name := lhs[len(lhs)-1]
	typeName := strings.Join(lhs[:len(lhs)-1], " ")
	typeName = strings.TrimPrefix(typeName, "uniform ")
	typeName = strings.TrimPrefix(typeName, "custom ")

	prim.Attrs = append(prim.Attrs, &Attr{
		Name:     name,
		TypeName: typeName,
		Value:    parseValue(value),
	})
}

func parseValue(v string) any {
	switch {
	case v == "":
		return ""
	case v[0] == '"':
		return strings.Trim(v, "\"")
	case v[0] == '@':
		return between(v, "@", "@")
	case v[0] == '<':
		return between(v, "<", ">")
	case v[0] == '(':
		return parseTuple(v)
	case v[0] == '[':
		return parseList(v)
	default:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			if !strings.ContainsAny(v, ".eE") {
				if i, err := strconv.ParseInt(v, 10, 64); err == nil {
					return i
				}
			}
			return f
		}
		return v
	}
}

func parseTuple(v string) any {
	parts := strings.Split(between(v, "(", ")"), ",")
	nums := make([]float64, 0, len(parts))
	for _, s := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return v
		}
		nums = append(nums, f)
	}
	switch len(nums) {
	case 2:
		return [2]float64{nums[0], nums[1]}
	case 3:
		return [3]float64{nums[0], nums[1], nums[2]}
	}
	return v
}

func parseList(v string) any {
	inner := between(v, "[", "]")
	if strings.Contains(inner, "(") {
		var out [][3]float64
		for {
			start := strings.Index(inner, "(")
			if start < 0 {
				break
			}
			end := strings.Index(inner[start:], ")")
			if end < 0 {
				break
			}
			if t, ok := parseTuple(inner[start : start+end+1]).([3]float64); ok {
				out = append(out, t)
			}
			inner = inner[start+end+1:]
		}
		return out
	}
	if strings.Contains(inner, "\"") {
		var out []string
		for _, s := range strings.Split(inner, ",") {
			s = strings.Trim(strings.TrimSpace(s), "\"")
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return v
}

func rhs(line string) string {
	if i := strings.Index(line, "="); i >= 0 {
		return strings.TrimSpace(line[i+1:])
	}
	return ""
}

func unquoteRHS(line string) string {
	return strings.Trim(rhs(line), "\"")
}

func pathRHS(line string) string {
	return between(rhs(line), "<", ">")
}

func between(s, open, close string) string {
	start := strings.Index(s, open)
	if start < 0 {
		return ""
	}
	rest := s[start+len(open):]
	end := strings.Index(rest, close)
	if end < 0 {
		return ""
	}
	return rest[:end]
}
