package grammar

import "github.com/koine-lang/koine/koineerr"

// Validate checks the structural invariants spec.md §4.1 asks the
// composer to enforce beyond what compilation itself already rejects:
// every rule reachable from start (the rest are dead and flagged, not
// silently dropped — a grammar author very likely meant to wire them in),
// and the structure directives' index/key bookkeeping makes sense against
// the sequence they decorate.
func Validate(cg *CompiledGrammar) error {
	if _, ok := cg.Rules[cg.Start]; !ok {
		return &koineerr.GrammarError{Kind: koineerr.UnknownRule, Message: "start_rule does not exist: " + cg.Start, Rule: cg.Start}
	}

	reachable := map[string]bool{}
	var walk func(name string) error
	walk = func(name string) error {
		if reachable[name] {
			return nil
		}
		reachable[name] = true
		rule, ok := cg.Rules[name]
		if !ok {
			return &koineerr.GrammarError{Kind: koineerr.UnknownRule, Message: "unknown rule reference: " + name, Rule: name}
		}
		return walkExpr(rule.Body, walk)
	}
	if err := walk(cg.Start); err != nil {
		return err
	}

	for name, rule := range cg.Rules {
		if !reachable[name] {
			return &koineerr.GrammarError{Kind: koineerr.Unreachable, Message: "rule is unreachable from start_rule: " + name, Rule: name}
		}
		if cg.Lexer == nil {
			if err := rejectTokenExprs(name, rule.Body); err != nil {
				return err
			}
		}
		if err := validateStructure(name, rule.Body); err != nil {
			return err
		}
	}
	return nil
}

// rejectTokenExprs enforces spec.md §4.3's Token rule: a "token" reference
// only makes sense in lexer mode, so a grammar with no lexer block may not
// contain one anywhere.
func rejectTokenExprs(ruleName string, e *RuleExpr) error {
	if e == nil {
		return nil
	}
	if e.Kind == KToken {
		return &koineerr.GrammarError{
			Kind:    koineerr.BadStructure,
			Message: "token reference " + e.TokenName + " in a grammar with no lexer block",
			Rule:    ruleName,
		}
	}
	for _, p := range e.Parts {
		if err := rejectTokenExprs(ruleName, p); err != nil {
			return err
		}
	}
	return nil
}

func walkExpr(e *RuleExpr, visit func(string) error) error {
	if e == nil {
		return nil
	}
	if e.Kind == KRef {
		return visit(e.RefName)
	}
	for _, p := range e.Parts {
		if err := walkExpr(p, visit); err != nil {
			return err
		}
	}
	return nil
}

// validateStructure walks every node in rule's body and, for any sequence
// node whose ast.structure directive is left_associative_op,
// right_associative_op, or map_children, checks that directive against the
// sequence it actually decorates.
func validateStructure(ruleName string, e *RuleExpr) error {
	if e == nil {
		return nil
	}
	if e.Ast != nil && e.Ast.Structure != nil {
		if err := checkStructureAgainst(ruleName, e); err != nil {
			return err
		}
	}
	for _, p := range e.Parts {
		if err := validateStructure(ruleName, p); err != nil {
			return err
		}
	}
	return nil
}

func checkStructureAgainst(ruleName string, e *RuleExpr) error {
	sd := e.Ast.Structure
	switch sd.Struct {
	case StructureLeftAssoc, StructureRightAssoc:
		wantRepeat := KZeroOrMore
		if sd.Struct == StructureRightAssoc {
			wantRepeat = KOptional
		}
		if e.Kind != KSequence || len(e.Parts) != 2 {
			return &koineerr.GrammarError{
				Kind:    koineerr.BadStructure,
				Message: "left_associative_op/right_associative_op requires a 2-part sequence (base, repeat-of-op-and-base)",
				Rule:    ruleName,
			}
		}
		rep := e.Parts[1]
		if rep.Kind != wantRepeat {
			return &koineerr.GrammarError{
				Kind:    koineerr.BadStructure,
				Message: "left_associative_op requires zero_or_more, right_associative_op requires optional, as the second sequence part",
				Rule:    ruleName,
			}
		}
		tail := rep.Child()
		if tail == nil || tail.Kind != KSequence || len(tail.Parts) != 4 {
			return &koineerr.GrammarError{
				Kind:    koineerr.BadStructure,
				Message: "left/right_associative_op's repeated part must be a 4-part sequence (filler, op, filler, base)",
				Rule:    ruleName,
			}
		}
	case StructureMapChildren:
		if e.Kind != KSequence {
			return &koineerr.GrammarError{Kind: koineerr.BadStructure, Message: "structure.map_children requires a sequence", Rule: ruleName}
		}
		for _, key := range sd.MapChildrenOrder {
			idx := sd.MapChildren[key]
			if idx < 0 || idx >= len(e.Parts) {
				return &koineerr.GrammarError{
					Kind:    koineerr.BadStructure,
					Message: "structure.map_children index out of range for key " + key,
					Rule:    ruleName,
				}
			}
		}
	}
	return nil
}
