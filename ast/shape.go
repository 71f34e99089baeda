package ast

import (
	"fmt"
	"strings"

	"github.com/koine-lang/koine/grammar"
	"github.com/koine-lang/koine/koineerr"
	"github.com/koine-lang/koine/peg"
	"github.com/koine-lang/koine/token"
)

// Shape turns a raw parse fragment into the shaped tree the transpiler
// walks, applying every rule's ast directive bottom-up (spec.md §4.4):
// children are shaped before their parent so that promote/discard/leaf/
// type/structure directives on an outer rule always see the already-
// shaped form of its parts.
func Shape(frag *peg.Fragment, cg *grammar.CompiledGrammar) (*Node, error) {
	sh, err := shapeRule(frag, frag.Rule, cg)
	if err != nil {
		return nil, err
	}
	return sh.node, nil
}

// shaped is the internal carrier between a child's shaping and its
// parent's assembly: discard/promote only have meaning relative to a
// parent sequence, so they travel alongside the node rather than living
// on Node itself.
type shaped struct {
	node    *Node
	discard bool
	promote bool
	// listKind is true when, upon promotion, this node's own children
	// should be spliced into the parent's list (Sequence/quantifiers);
	// false means the node itself is spliced in as a single child
	// (Choice).
	listKind bool
}

func shapeRule(frag *peg.Fragment, name string, cg *grammar.CompiledGrammar) (*shaped, error) {
	rule, ok := cg.Rules[name]
	if !ok {
		return nil, &koineerr.ShapeError{Pos: frag.Start, Message: "no compiled rule named " + name}
	}
	sh, err := shapeExpr(frag, rule.Body, cg)
	if err != nil {
		return nil, err
	}
	// Default tagging (spec.md §4.4 item 7): a rule whose own ast carries
	// no explicit tag (and isn't a binary_op/map_children structure node,
	// which already picked their own tag) is tagged with the rule's own
	// name. This is scoped to exactly the node this rule itself produced,
	// not to parts nested inside it that belong to other rules/literals.
	if sh.node.Tag == "" {
		sh.node.Tag = name
	}
	return sh, nil
}

func shapeExpr(frag *peg.Fragment, expr *grammar.RuleExpr, cg *grammar.CompiledGrammar) (*shaped, error) {
	// leaf short-circuits before any recursion into children: the spec
	// calls for the fragment's own text, nothing else, so there's no
	// reason to shape parts we're about to throw away.
	if expr.Ast != nil && expr.Ast.Leaf {
		node := NewLeaf("", frag.Text, frag.Start.Line, frag.Start.Col)
		return applyAst(node, expr.Ast, frag)
	}

	var node *Node
	var err error
	listKind := isListKind(expr.Kind)
	var refDiscard, refPromote bool

	switch expr.Kind {
	case grammar.KLiteral, grammar.KRegex:
		node = NewLeaf("", frag.Text, frag.Start.Line, frag.Start.Col)

	case grammar.KToken:
		// A token's own def may already carry an ast.type coercion
		// (spec.md §3 Token.value, §4.2), computed once at lex time and
		// carried on the fragment (Fragment.Value/HasValue) rather than the
		// text being re-coerced at every consuming site; applyAst below
		// copies it onto the leaf unless an occurrence-level ast.type
		// overrides it.
		node = NewLeaf("", frag.Text, frag.Start.Line, frag.Start.Col)

	case grammar.KRef:
		// The rule is named by the RuleExpr, not by frag.Rule: a rule whose
		// body is itself a reference (or a choice whose matched alternative
		// is one) returns the referenced rule's fragment, relabelled with
		// the outer rule's name.
		inner, serr := shapeRule(frag, expr.RefName, cg)
		if serr != nil {
			return nil, serr
		}
		// A rule referenced by name carries its own rule-level discard/
		// promote decision (e.g. a filler rule marked ast.discard so
		// every reference to it vanishes without every call site having
		// to repeat the directive); this occurrence's own ast, applied
		// below via expr.Ast, can independently ALSO mark this
		// particular reference as discarded/promoted, so the two are
		// combined rather than one replacing the other. A promote here
		// flattens/singles according to the *referenced* rule's own
		// body kind, not KRef itself.
		node = inner.node
		refDiscard = inner.discard
		refPromote = inner.promote
		if rule, ok := cg.Rules[expr.RefName]; ok {
			listKind = isListKind(rule.Body.Kind)
		}

	case grammar.KSequence:
		node, err = shapeSequence(frag, expr, cg)

	case grammar.KChoice:
		if frag.Alt < 0 || frag.Alt >= len(expr.Parts) {
			return nil, &koineerr.ShapeError{Pos: frag.Start, Message: "choice fragment carries no alternative index"}
		}
		return shapeExprAndApply(frag, expr.Parts[frag.Alt], cg, expr.Ast)

	case grammar.KZeroOrMore, grammar.KOneOrMore:
		node, err = shapeRepeat(frag, expr, cg)

	case grammar.KOptional:
		node, err = shapeOptional(frag, expr, cg)

	case grammar.KPosLookahead, grammar.KNegLookahead:
		node = NewLeaf("", "", frag.Start.Line, frag.Start.Col)

	default:
		return nil, &koineerr.ShapeError{Pos: frag.Start, Message: "unrecognized expr kind during shaping"}
	}
	if err != nil {
		return nil, err
	}
	sh, err := applyAst(node, expr.Ast, frag)
	if err != nil {
		return nil, err
	}
	sh.discard = sh.discard || refDiscard
	sh.promote = sh.promote || refPromote
	sh.listKind = listKind
	return sh, nil
}

// shapeExprAndApply shapes expr, then additionally applies an outer
// directive (used for Choice, whose own ast directive sits on the choice
// node itself, layered on top of whichever alternative matched). A
// promoted choice always yields its single matched alternative, never a
// flattened list, regardless of what kind that alternative happened to be.
func shapeExprAndApply(frag *peg.Fragment, expr *grammar.RuleExpr, cg *grammar.CompiledGrammar, outer *grammar.AstDirective) (*shaped, error) {
	sh, err := shapeExpr(frag, expr, cg)
	if err != nil {
		return nil, err
	}
	out, err := applyAst(sh.node, outer, frag)
	if err != nil {
		return nil, err
	}
	// The matched alternative's own discard/promote survive alongside the
	// choice-level directive, same as KRef combines rule-level and
	// occurrence-level ones.
	out.discard = out.discard || sh.discard
	out.promote = out.promote || sh.promote
	out.listKind = false
	return out, nil
}

// isListKind reports whether a promoted node of this expr kind should be
// flattened (its own children spliced in place) rather than appended as a
// single child: true for Sequence and the quantifiers, false for Choice
// and the leaf-like kinds (which never carry a meaningful child list to
// flatten anyway).
func isListKind(k grammar.Kind) bool {
	switch k {
	case grammar.KSequence, grammar.KZeroOrMore, grammar.KOneOrMore, grammar.KOptional:
		return true
	default:
		return false
	}
}

func shapeSequence(frag *peg.Fragment, expr *grammar.RuleExpr, cg *grammar.CompiledGrammar) (*Node, error) {
	if len(frag.Children) != len(expr.Parts) {
		return nil, &koineerr.ShapeError{Pos: frag.Start, Message: "sequence fragment child count does not match rule parts"}
	}
	parts := make([]*shaped, len(expr.Parts))
	for i, part := range expr.Parts {
		sh, err := shapeExpr(frag.Children[i], part, cg)
		if err != nil {
			return nil, err
		}
		parts[i] = sh
	}

	if expr.Ast != nil && expr.Ast.Structure != nil {
		return assembleStructure(frag, expr, parts, cg)
	}
	return assembleDefault(frag, expr, parts)
}

// assembleStructure builds the node for a sequence carrying an
// ast.structure directive. Its parts were already shaped generically by
// shapeSequence, but left/right_associative_op need the raw
// fragment/expr pair instead: the op and next-operand text live inside
// the repeated 4-part (filler, op, filler, base) inner sequence, not in
// the already-assembled generic shape of the ZeroOrMore/Optional part.
func assembleStructure(frag *peg.Fragment, expr *grammar.RuleExpr, parts []*shaped, cg *grammar.CompiledGrammar) (*Node, error) {
	sd := expr.Ast.Structure
	switch sd.Struct {
	case grammar.StructureLeftAssoc, grammar.StructureRightAssoc:
		return assembleAssocOp(frag, expr, parts[0].node, cg)

	case grammar.StructureMapChildren:
		named := map[string]*Node{}
		for _, key := range sd.MapChildrenOrder {
			idx := sd.MapChildren[key]
			if idx < 0 || idx >= len(parts) {
				return nil, &koineerr.ShapeError{Pos: frag.Start, Message: fmt.Sprintf("map_children index %d out of range for key %s", idx, key)}
			}
			if parts[idx].discard {
				continue
			}
			named[key] = parts[idx].node
		}
		node := NewNamed(sd.Tag, frag.Text, frag.Start.Line, frag.Start.Col, named)
		return node, nil

	default:
		return nil, &koineerr.ShapeError{Pos: frag.Start, Message: "unrecognized structure directive"}
	}
}

// assembleAssocOp folds the repeated (filler, op, filler, base) tail of a
// left/right_associative_op sequence onto base, left to right. For
// right_associative_op the tail has at most one iteration (it comes from
// an Optional); the remaining right-nesting happens for free because its
// fourth part is a reference back to this same rule, which recurses into
// this very function again through the ordinary shapeRule/KRef path.
func assembleAssocOp(frag *peg.Fragment, expr *grammar.RuleExpr, base *Node, cg *grammar.CompiledGrammar) (*Node, error) {
	repExpr := expr.Parts[1]
	innerSeq := repExpr.Child()
	repFrag := frag.Children[1]

	acc := base
	for _, iterFrag := range repFrag.Children {
		if len(iterFrag.Children) != 4 {
			return nil, &koineerr.ShapeError{Pos: iterFrag.Start, Message: "associative op tail must be a 4-part sequence"}
		}
		opFrag := iterFrag.Children[1]
		op := strings.TrimSpace(opFrag.Text)

		shRight, err := shapeExpr(iterFrag.Children[3], innerSeq.Parts[3], cg)
		if err != nil {
			return nil, err
		}
		acc = NewBinaryOp(op, acc, shRight.node, iterFrag.Start.Line, iterFrag.Start.Col)
	}
	return acc, nil
}

// assembleDefault implements the default (no ast.structure) assembly rule:
// if any surviving part carries an ast.name, the result is a keyed map of
// named parts — and every other surviving, non-promoted part must also be
// named, since a sequence can't be partly a list and partly a map. With no
// named parts at all, the result is the plain list of survivors.
func assembleDefault(frag *peg.Fragment, expr *grammar.RuleExpr, parts []*shaped) (*Node, error) {
	type survivor struct {
		sh   *shaped
		name string
	}
	var survivors []survivor
	anyNamed := false

	for i, sh := range parts {
		if sh.discard {
			continue
		}
		name := ""
		if expr.Parts[i].Ast != nil {
			name = expr.Parts[i].Ast.Name
		}
		if name != "" {
			anyNamed = true
		}
		survivors = append(survivors, survivor{sh: sh, name: name})
	}

	if anyNamed {
		named := map[string]*Node{}
		for _, s := range survivors {
			if s.sh.promote {
				continue
			}
			if s.name == "" {
				return nil, &koineerr.ShapeError{Pos: frag.Start, Message: "sequence mixes named and unnamed surviving parts"}
			}
			named[s.name] = s.sh.node
		}
		return NewNamed("", frag.Text, frag.Start.Line, frag.Start.Col, named), nil
	}

	var list []*Node
	for _, s := range survivors {
		if s.sh.promote {
			if s.sh.listKind && s.sh.node.Children.Kind == ChildrenList {
				list = append(list, s.sh.node.Children.List...)
			} else {
				list = append(list, s.sh.node)
			}
			continue
		}
		list = append(list, s.sh.node)
	}
	// The node's position is the first surviving child's — the first
	// non-discarded character it covers — not the raw sequence start,
	// which may point at discarded leading filler.
	line, col := frag.Start.Line, frag.Start.Col
	if len(list) > 0 {
		line, col = list[0].Line, list[0].Col
	}
	return NewList("", frag.Text, line, col, list), nil
}

func shapeRepeat(frag *peg.Fragment, expr *grammar.RuleExpr, cg *grammar.CompiledGrammar) (*Node, error) {
	child := expr.Child()
	list := make([]*Node, 0, len(frag.Children))
	for _, cf := range frag.Children {
		sh, err := shapeExpr(cf, child, cg)
		if err != nil {
			return nil, err
		}
		if sh.discard {
			continue
		}
		if sh.promote && sh.listKind && sh.node.Children.Kind == ChildrenList {
			list = append(list, sh.node.Children.List...)
			continue
		}
		list = append(list, sh.node)
	}
	return NewList("", frag.Text, frag.Start.Line, frag.Start.Col, list), nil
}

func shapeOptional(frag *peg.Fragment, expr *grammar.RuleExpr, cg *grammar.CompiledGrammar) (*Node, error) {
	if len(frag.Children) == 0 {
		return NewList("", "", frag.Start.Line, frag.Start.Col, nil), nil
	}
	sh, err := shapeExpr(frag.Children[0], expr.Child(), cg)
	if err != nil {
		return nil, err
	}
	if sh.discard {
		return NewList("", "", frag.Start.Line, frag.Start.Col, nil), nil
	}
	return NewList("", frag.Text, frag.Start.Line, frag.Start.Col, []*Node{sh.node}), nil
}

// applyAst applies a single ast directive to an already-built node,
// returning the shaped wrapper the parent assembly step consumes. Order
// matters: leaf collapse happens first (it rebuilds the node from the
// fragment's own text, discarding anything set before this call), then a
// value is settled — an explicit ast.type always wins, otherwise a token
// fragment's own pre-coerced value (frag.HasValue, set by the lexer
// per spec.md §3 Token.value) carries through unchanged — then tag, then
// discard/promote are recorded for the parent to act on.
func applyAst(node *Node, d *grammar.AstDirective, frag *peg.Fragment) (*shaped, error) {
	if d == nil {
		if frag.HasValue {
			node.Value = frag.Value
			node.HasValue = true
		}
		return &shaped{node: node}, nil
	}

	if d.Leaf {
		node = NewLeaf(node.Tag, frag.Text, frag.Start.Line, frag.Start.Col)
	}

	if d.Type != "" {
		if err := coerceType(node, d.Type); err != nil {
			return nil, &koineerr.ShapeError{Pos: frag.Start, Message: err.Error()}
		}
	} else if frag.HasValue {
		node.Value = frag.Value
		node.HasValue = true
	}

	if d.Tag != "" {
		node.Tag = d.Tag
	}

	return &shaped{node: node, discard: d.Discard, promote: d.Promote}, nil
}

func coerceType(node *Node, t string) error {
	v, err := token.CoerceValue(node.Text, t)
	if err != nil {
		return err
	}
	node.Value = v
	node.HasValue = true
	return nil
}
