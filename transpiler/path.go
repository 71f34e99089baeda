package transpiler

import (
	"fmt"

	"github.com/koine-lang/koine/ast"
	"github.com/koine-lang/koine/internal/pathlang"
)

// resolvePath walks a dot-separated path expression against either the
// transpiler's persistent state (rooted at "state"), the current node
// itself (rooted at "node"), or — for the unrooted form state_set's own
// keys use — directly against state. A "{name}" segment is resolved
// first against the current node's already-transpiled named children,
// the same way a template placeholder would be.
func resolvePath(exprStr string, node *ast.Node, named map[string]string, state map[string]any) (any, bool) {
	expr, err := pathlang.Parse(exprStr)
	if err != nil || len(expr.Segments) == 0 {
		return nil, false
	}

	segs := expr.Segments
	var cur any
	start := 0
	switch segs[0].Name {
	case "state":
		cur = state
		start = 1
	case "node":
		cur = node
		start = 1
	default:
		cur = state
	}

	for i := start; i < len(segs); i++ {
		key, ok := segmentKey(segs[i], named)
		if !ok {
			return nil, false
		}
		switch c := cur.(type) {
		case map[string]any:
			v, ok := c[key]
			if !ok {
				return nil, false
			}
			cur = v
		case *ast.Node:
			switch key {
			case "op":
				cur = c.Op
				continue
			case "tag":
				cur = c.Tag
				continue
			case "text":
				cur = c.Text
				continue
			case "value":
				if !c.HasValue {
					return nil, false
				}
				cur = c.Value
				continue
			}
			child, ok := c.Field(key)
			if !ok {
				return nil, false
			}
			cur = child
		default:
			return nil, false
		}
	}
	return cur, true
}

func segmentKey(seg *pathlang.Segment, named map[string]string) (string, bool) {
	switch {
	case seg.Placeholder != nil:
		v, ok := named[*seg.Placeholder]
		return v, ok
	case seg.Index != nil:
		return fmt.Sprintf("%d", *seg.Index), true
	default:
		return seg.Name, true
	}
}

// setStatePath walks (creating intermediate maps as needed) and writes
// value at exprStr within state. Unlike resolvePath's "cases.path" usage,
// state_set paths are always unrooted (no leading "state."/"node.").
func setStatePath(exprStr string, value any, named map[string]string, state map[string]any) error {
	expr, err := pathlang.Parse(exprStr)
	if err != nil {
		return fmt.Errorf("invalid state_set path %q: %w", exprStr, err)
	}
	segs := expr.Segments
	if len(segs) == 0 {
		return fmt.Errorf("empty state_set path")
	}

	cur := state
	for i, seg := range segs {
		key, ok := segmentKey(seg, named)
		if !ok {
			return fmt.Errorf("unresolved placeholder in state_set path %q", exprStr)
		}
		if i == len(segs)-1 {
			cur[key] = value
			return nil
		}
		next, ok := cur[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[key] = next
		}
		cur = next
	}
	return nil
}
