package usd

import (
	"fmt"
	"strconv"
	"strings"
)

// Encode serializes the stage as usda text.
func (s *Stage) Encode() []byte {
	var b strings.Builder
	b.WriteString("#usda 1.0\n(\n")
	if s.DefaultPrim != "" {
		fmt.Fprintf(&b, "    defaultPrim = %q\n", s.DefaultPrim)
	}
	if s.MetersPerUnit > 0 {
		fmt.Fprintf(&b, "    metersPerUnit = %s\n", formatFloat(s.MetersPerUnit))
	}
	if s.UpAxis != "" {
		fmt.Fprintf(&b, "    upAxis = %q\n", s.UpAxis)
	}
	if len(s.SubLayers) > 0 {
		b.WriteString("    subLayers = [\n")
		for _, l := range s.SubLayers {
			fmt.Fprintf(&b, "        @%s@\n", l)
		}
		b.WriteString("    ]\n")
	}
	b.WriteString(")\n")

	for _, p := range s.Roots {
		b.WriteString("\n")
		writePrim(&b, p, 0)
	}
	return []byte(b.String())
}

func writePrim(b *strings.Builder, p *Prim, depth int) {
	ind := strings.Repeat("    ", depth)
	if p.Type != "" {
		fmt.Fprintf(b, "%sdef %s %q", ind, p.Type, p.Name)
	} else {
		fmt.Fprintf(b, "%sdef %q", ind, p.Name)
	}

	if len(p.APISchemas) > 0 || len(p.References) > 0 {
		b.WriteString(" (\n")
		if len(p.APISchemas) > 0 {
			fmt.Fprintf(b, "%s    prepend apiSchemas = [%s]\n", ind, quotedList(p.APISchemas))
		}
		for _, r := range p.References {
			if r.PrimPath != "" {
				fmt.Fprintf(b, "%s    prepend references = @%s@<%s>\n", ind, r.AssetPath, r.PrimPath)
			} else {
				fmt.Fprintf(b, "%s    prepend references = @%s@\n", ind, r.AssetPath)
			}
		}
		fmt.Fprintf(b, "%s)\n", ind)
	} else {
		b.WriteString("\n")
	}

	fmt.Fprintf(b, "%s{\n", ind)
	for _, a := range p.Attrs {
		fmt.Fprintf(b, "%s    %s %s = %s\n", ind, a.TypeName, a.Name, formatValue(a.TypeName, a.Value))
	}
	for name, target := range p.Rels {
		fmt.Fprintf(b, "%s    rel %s = <%s>\n", ind, name, target)
	}
	for _, c := range p.Children {
		b.WriteString("\n")
		writePrim(b, c, depth+1)
	}
	fmt.Fprintf(b, "%s}\n", ind)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func quotedList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = strconv.Quote(s)
	}
	return strings.Join(quoted, ", ")
}

func formatValue(typeName string, v any) string {
	switch val := v.(type) {
	case float64:
		return formatFloat(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case string:
		if strings.Contains(typeName, "asset") {
			return "@" + val + "@"
		}
		return strconv.Quote(val)
	case [2]float64:
		return fmt.Sprintf("(%s, %s)", formatFloat(val[0]), formatFloat(val[1]))
	case [3]float64:
		return fmt.Sprintf("(%s, %s, %s)", formatFloat(val[0]), formatFloat(val[1]), formatFloat(val[2]))
	case [][3]float64:
		parts := make([]string, len(val))
		for i, t := range val {
			parts[i] = fmt.Sprintf("(%s, %s, %s)", formatFloat(t[0]), formatFloat(t[1]), formatFloat(t[2]))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []string:
		return "[" + quotedList(val) + "]"
	}
	return fmt.Sprintf("%v", v)
}
