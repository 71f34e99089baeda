// Package transpiler walks a shaped ast.Node tree and renders it to text
// using a small template-and-rules grammar of its own: one rule per node
// tag, selecting its output via a plain template, a literal use/value
// passthrough, or a cases list dispatching on a path expression, with an
// optional indent bump and state_set writes into the shared traversal
// state.
package transpiler

import (
	"github.com/koine-lang/koine/koinedata"
	"github.com/koine-lang/koine/koineerr"
)

// Condition is a cases entry's if clause: path, rooted in "node." or
// "state.", is compared against Equals (when HasEquals is true) or
// simply checked for existence (when it isn't).
type Condition struct {
	Path      string
	Equals    any
	HasEquals bool
	Negate    bool
}

// CaseEntry is one entry of a rule's cases list: either an {if, then}
// pair, or a {default} fallback that always matches.
type CaseEntry struct {
	If        *Condition
	Then      string
	IsDefault bool
}

// Rule is one compiled transpiler rule, keyed by ast.Node.Tag in Grammar.
type Rule struct {
	Template string

	// Use, when non-empty, is "value" or "text": emit that node field
	// directly, stringified, with no placeholder resolution.
	Use string

	// Value, when HasValue is true, is a literal string emitted as-is,
	// with no placeholder resolution.
	Value    string
	HasValue bool

	Cases []CaseEntry

	// JoinChildrenWith joins a list {children} substitution; default "".
	JoinChildrenWith string

	// Indent marks this rule's immediate joined-children text ({children}
	// substitutions only) as one nesting level deeper than its parent.
	Indent bool

	StateSet      map[string]string
	StateSetOrder []string
}

// Grammar is the compiled transpiler rule set.
type Grammar struct {
	Rules      map[string]*Rule
	IndentUnit string
}

const defaultIndentUnit = "    "

// Compile builds a Grammar from its map[string]any source form: an
// optional top-level "transpiler: { indent }" plus a "rules" map.
func Compile(root map[string]any) (*Grammar, error) {
	g := &Grammar{Rules: map[string]*Rule{}, IndentUnit: defaultIndentUnit}

	if cfg, ok := koinedata.MapField(root, "transpiler"); ok {
		if unit, ok := koinedata.StringField(cfg, "indent"); ok && unit != "" {
			g.IndentUnit = unit
		}
	}

	rawRules, ok := koinedata.MapField(root, "rules")
	if !ok {
		return g, nil
	}
	for tag, raw := range rawRules {
		rm, ok := koinedata.AsMap(raw)
		if !ok {
			return nil, &koineerr.TranspileError{NodeTag: tag, Message: "transpiler rule must be a map"}
		}
		rule, err := compileRule(tag, rm)
		if err != nil {
			return nil, err
		}
		g.Rules[tag] = rule
	}
	return g, nil
}

func compileRule(tag string, rm map[string]any) (*Rule, error) {
	r := &Rule{}
	r.Template, _ = koinedata.StringField(rm, "template")
	r.Use, _ = koinedata.StringField(rm, "use")
	r.JoinChildrenWith, _ = koinedata.StringField(rm, "join_children_with")
	r.Indent = koinedata.BoolField(rm, "indent")

	if v, ok := koinedata.Field(rm, "value"); ok {
		s, ok := koinedata.AsString(v)
		if !ok {
			return nil, &koineerr.TranspileError{NodeTag: tag, Message: "value must be a string"}
		}
		r.Value = s
		r.HasValue = true
	}

	switch r.Use {
	case "", "value", "text":
	default:
		return nil, &koineerr.TranspileError{NodeTag: tag, Message: "use must be value or text, got " + r.Use}
	}

	if rawCases, ok := koinedata.SliceField(rm, "cases"); ok {
		for _, rc := range rawCases {
			cm, ok := koinedata.AsMap(rc)
			if !ok {
				return nil, &koineerr.TranspileError{NodeTag: tag, Message: "cases entries must be maps"}
			}
			entry, err := compileCaseEntry(tag, cm)
			if err != nil {
				return nil, err
			}
			r.Cases = append(r.Cases, entry)
		}
	}

	if rawSet, ok := koinedata.MapField(rm, "state_set"); ok {
		r.StateSet = map[string]string{}
		for k, v := range rawSet {
			s, ok := koinedata.AsString(v)
			if !ok {
				return nil, &koineerr.TranspileError{NodeTag: tag, Message: "state_set values must be string templates"}
			}
			r.StateSet[k] = s
			r.StateSetOrder = append(r.StateSetOrder, k)
		}
	}

	return r, nil
}

func compileCaseEntry(tag string, cm map[string]any) (CaseEntry, error) {
	if def, ok := koinedata.StringField(cm, "default"); ok {
		return CaseEntry{IsDefault: true, Then: def}, nil
	}

	ifMap, ok := koinedata.MapField(cm, "if")
	if !ok {
		return CaseEntry{}, &koineerr.TranspileError{NodeTag: tag, Message: "cases entry needs if or default"}
	}
	then, _ := koinedata.StringField(cm, "then")

	cond := &Condition{Negate: koinedata.BoolField(ifMap, "negate")}
	cond.Path, _ = koinedata.StringField(ifMap, "path")
	if cond.Path == "" {
		return CaseEntry{}, &koineerr.TranspileError{NodeTag: tag, Message: "cases if clause missing path"}
	}
	if v, present := koinedata.Field(ifMap, "equals"); present {
		cond.Equals = v
		cond.HasEquals = true
	}

	return CaseEntry{If: cond, Then: then}, nil
}
