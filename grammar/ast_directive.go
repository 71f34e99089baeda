package grammar

import (
	"github.com/koine-lang/koine/koinedata"
	"github.com/koine-lang/koine/koineerr"
)

// parseAstDirective reads the optional "ast" sub-map carried by a rule or a
// part within a sequence. It returns (nil, nil) when no ast key is present.
func parseAstDirective(m map[string]any) (*AstDirective, error) {
	raw, ok := koinedata.MapField(m, "ast")
	if !ok {
		return nil, nil
	}

	d := &AstDirective{}
	d.Tag, _ = koinedata.StringField(raw, "tag")
	d.Discard = koinedata.BoolField(raw, "discard")
	d.Promote = koinedata.BoolField(raw, "promote")
	d.Leaf = koinedata.BoolField(raw, "leaf")
	d.Type, _ = koinedata.StringField(raw, "type")
	d.Name, _ = koinedata.StringField(raw, "name")

	switch d.Type {
	case "", "number", "bool", "null":
	default:
		return nil, &koineerr.GrammarError{Kind: koineerr.MalformedDirective, Message: "ast.type must be one of number|bool|null, got " + d.Type}
	}

	structVal, present := raw["structure"]
	if !present || structVal == nil {
		return d, nil
	}

	if s, ok := koinedata.AsString(structVal); ok {
		sd := &StructureDirective{}
		switch s {
		case "left_associative_op":
			sd.Struct = StructureLeftAssoc
		case "right_associative_op":
			sd.Struct = StructureRightAssoc
		default:
			return nil, &koineerr.GrammarError{Kind: koineerr.MalformedDirective, Message: "ast.structure string form must be left_associative_op or right_associative_op, got " + s}
		}
		d.Structure = sd
		return d, nil
	}

	structMap, ok := koinedata.AsMap(structVal)
	if !ok {
		return nil, &koineerr.GrammarError{Kind: koineerr.MalformedDirective, Message: "ast.structure must be a string or a map"}
	}

	sd := &StructureDirective{Struct: StructureMapChildren}
	sd.Tag, _ = koinedata.StringField(structMap, "tag")

	mc, ok := koinedata.MapField(structMap, "map_children")
	if !ok {
		return nil, &koineerr.GrammarError{Kind: koineerr.MalformedDirective, Message: "ast.structure map form requires map_children"}
	}
	sd.MapChildren = map[string]int{}
	// Keys are recorded in Go's map iteration order: a map[string]any
	// keeps no declaration order, so MapChildrenOrder is not stable from
	// one compile to the next.
	for k, v := range mc {
		idx, ok := koinedata.AsInt(v)
		if !ok {
			return nil, &koineerr.GrammarError{Kind: koineerr.MalformedDirective, Message: "map_children values must be integers"}
		}
		sd.MapChildren[k] = idx
		sd.MapChildrenOrder = append(sd.MapChildrenOrder, k)
	}

	d.Structure = sd
	return d, nil
}
