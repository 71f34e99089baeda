package transpiler

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/koine-lang/koine/ast"
	"github.com/koine-lang/koine/koineerr"
)

// State is the transpiler's persistent, mutable context: state_set writes
// into Values as nodes are transpiled in document order, visible to every
// node transpiled afterward (its later siblings and their descendants,
// and any ancestor's own cases once control returns to it) — not to
// nodes already transpiled before the write happened.
type State struct {
	Values map[string]any
}

// NewState builds an empty transpiler state.
func NewState() *State {
	return &State{Values: map[string]any{}}
}

// Transpile renders node to text using g, starting from a fresh State.
func Transpile(node *ast.Node, g *Grammar) (string, error) {
	return TranspileWithState(node, g, NewState())
}

// TranspileWithState is Transpile but against caller-supplied state,
// useful for transpiling a sequence of top-level nodes that should share
// one running state (e.g. a file's statements).
func TranspileWithState(node *ast.Node, g *Grammar, st *State) (string, error) {
	return transpileNode(node, g, st)
}

func transpileNode(node *ast.Node, g *Grammar, st *State) (string, error) {
	rule, ok := g.Rules[node.Tag]
	if !ok {
		return transpileFallback(node, g, st)
	}

	list, named, err := transpileChildren(node, g, st)
	if err != nil {
		return "", err
	}

	out, err := renderRule(node, rule, g, list, named, st)
	if err != nil {
		return "", err
	}

	for _, key := range rule.StateSetOrder {
		valTemplate := rule.StateSet[key]
		val, err := fillPlaceholders(valTemplate, node, rule, g, list, named, st.Values, false)
		if err != nil {
			return "", err
		}
		if err := setStatePath(key, val, named, st.Values); err != nil {
			return "", &koineerr.TranspileError{NodeTag: node.Tag, Message: err.Error()}
		}
	}

	return out, nil
}

// renderRule picks the rule's output according to the fixed precedence:
// cases (each entry resolved to a template, then rendered normally),
// then use (direct value/text passthrough, no placeholder resolution),
// then a literal value (also no placeholder resolution), then template.
func renderRule(node *ast.Node, rule *Rule, g *Grammar, list []string, named map[string]string, st *State) (string, error) {
	if len(rule.Cases) > 0 {
		tmpl, err := evalCases(node, rule, named, st)
		if err != nil {
			return "", err
		}
		return fillPlaceholders(tmpl, node, rule, g, list, named, st.Values, rule.Indent)
	}

	switch rule.Use {
	case "value":
		if !node.HasValue {
			return "", &koineerr.TranspileError{NodeTag: node.Tag, Message: "use: value on a node with no coerced value"}
		}
		return stringifyValue(node.Value), nil
	case "text":
		return node.Text, nil
	}

	if rule.HasValue {
		return rule.Value, nil
	}

	return fillPlaceholders(rule.Template, node, rule, g, list, named, st.Values, rule.Indent)
}

// transpileFallback is used for tags with no compiled rule: a coerced
// leaf value stringifies directly, a childless node emits its own text,
// and an interior node joins its children with no separator.
func transpileFallback(node *ast.Node, g *Grammar, st *State) (string, error) {
	if node.HasValue {
		return stringifyValue(node.Value), nil
	}
	if node.Children.Kind == ast.ChildrenNone && node.Left == nil && node.Right == nil {
		return node.Text, nil
	}
	list, _, err := transpileChildren(node, g, st)
	if err != nil {
		return "", err
	}
	return strings.Join(list, ""), nil
}

func transpileChildren(node *ast.Node, g *Grammar, st *State) ([]string, map[string]string, error) {
	var list []string
	var named map[string]string

	switch node.Children.Kind {
	case ast.ChildrenList:
		list = make([]string, len(node.Children.List))
		for i, c := range node.Children.List {
			txt, err := transpileNode(c, g, st)
			if err != nil {
				return nil, nil, err
			}
			list[i] = txt
		}
	case ast.ChildrenNamed:
		named = make(map[string]string, len(node.Children.Named))
		// Keyed children are visited in source order (line, then column,
		// then key) so their state_set writes follow document order.
		keys := make([]string, 0, len(node.Children.Named))
		for k := range node.Children.Named {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			a, b := node.Children.Named[keys[i]], node.Children.Named[keys[j]]
			if a.Line != b.Line {
				return a.Line < b.Line
			}
			if a.Col != b.Col {
				return a.Col < b.Col
			}
			return keys[i] < keys[j]
		})
		for _, k := range keys {
			c := node.Children.Named[k]
			txt, err := transpileNode(c, g, st)
			if err != nil {
				return nil, nil, err
			}
			named[k] = txt
		}
	}

	if node.Left != nil || node.Right != nil {
		if named == nil {
			named = map[string]string{}
		}
		if node.Left != nil {
			txt, err := transpileNode(node.Left, g, st)
			if err != nil {
				return nil, nil, err
			}
			named["left"] = txt
		}
		if node.Right != nil {
			txt, err := transpileNode(node.Right, g, st)
			if err != nil {
				return nil, nil, err
			}
			named["right"] = txt
		}
	}

	return list, named, nil
}

// evalCases walks the ordered cases list, evaluating each condition
// until one matches (a {default} entry always matches), and returns the
// matched entry's then template.
func evalCases(node *ast.Node, rule *Rule, named map[string]string, st *State) (string, error) {
	for _, ce := range rule.Cases {
		if ce.IsDefault {
			return ce.Then, nil
		}
		cond := ce.If
		val, ok := resolvePath(cond.Path, node, named, st.Values)

		var matched bool
		if cond.HasEquals {
			matched = ok && valuesEqual(val, cond.Equals)
		} else {
			matched = ok && val != nil && val != ""
		}
		if cond.Negate {
			matched = !matched
		}
		if matched {
			return ce.Then, nil
		}
	}
	return "", &koineerr.TranspileError{NodeTag: node.Tag, Message: "no cases branch matched and no default was given"}
}

// stringifyValue renders a coerced leaf value as output text. A null
// coercion stores nil as its absent-value marker, which prints as the
// literal "null" rather than Go's "<nil>".
func stringifyValue(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprint(v)
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ab, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ab == bb
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

var placeholderRe = regexp.MustCompile(`\{([^{}]+)\}`)

func fillPlaceholders(tmpl string, node *ast.Node, rule *Rule, g *Grammar, list []string, named map[string]string, state map[string]any, indentChildren bool) (string, error) {
	var outerErr error
	result := placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		if outerErr != nil {
			return ""
		}
		inner := m[1 : len(m)-1]

		switch {
		case inner == "children":
			if node.Children.Kind == ast.ChildrenNamed {
				outerErr = &koineerr.TranspileError{NodeTag: node.Tag, Message: "{children} is forbidden on a node with keyed children"}
				return ""
			}
			joiner := ""
			if rule != nil {
				joiner = rule.JoinChildrenWith
			}
			joined := strings.Join(list, joiner)
			if indentChildren {
				joined = indentLines(joined, g.IndentUnit)
			}
			return joined

		case inner == "op":
			return node.Op

		case inner == "value":
			if txt, ok := named[inner]; ok {
				return txt
			}
			if node.HasValue {
				return stringifyValue(node.Value)
			}
			outerErr = &koineerr.TranspileError{NodeTag: node.Tag, Message: "{value} used on a node with no coerced value"}
			return ""

		case inner == "text":
			return node.Text

		case strings.HasPrefix(inner, "children."):
			idx, err := strconv.Atoi(strings.TrimPrefix(inner, "children."))
			if err != nil || idx < 0 || idx >= len(list) {
				outerErr = &koineerr.TranspileError{NodeTag: node.Tag, Message: "invalid children index: " + inner}
				return ""
			}
			return list[idx]

		case strings.HasPrefix(inner, "state."):
			v, ok := resolvePath(inner, node, named, state)
			if !ok {
				outerErr = &koineerr.TranspileError{NodeTag: node.Tag, Message: "unresolved state placeholder: " + inner}
				return ""
			}
			return fmt.Sprint(v)

		default:
			if txt, ok := named[inner]; ok {
				return txt
			}
			outerErr = &koineerr.TranspileError{NodeTag: node.Tag, Message: "unresolved placeholder: " + inner}
			return ""
		}
	})
	if outerErr != nil {
		return "", outerErr
	}
	return result, nil
}

// indentLines prefixes every non-empty line with one indent unit. Blank
// lines are left untouched so indenting a block never introduces
// trailing whitespace.
func indentLines(s, unit string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l == "" {
			continue
		}
		lines[i] = unit + l
	}
	return strings.Join(lines, "\n")
}
