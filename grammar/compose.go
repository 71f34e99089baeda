package grammar

import (
	"path/filepath"

	"github.com/koine-lang/koine/koinedata"
	"github.com/koine-lang/koine/koineerr"
)

// Loader resolves an include or subgrammar reference (an absolute,
// already-joined path) to its decoded map[string]any contents. The core
// never reads or decodes grammar files itself (spec.md §1) — callers
// supply whichever format their grammars are stored in.
type Loader func(path string) (map[string]any, error)

// rawUnit is one grammar file's contents after include-merging but before
// subgrammar expansion: bare (unprefixed), still-raw rule-body maps, plus
// the directory subgrammar/include paths inside it should resolve against.
type rawUnit struct {
	start string
	rules map[string]any
	dir   string
}

// mergeIncludes recursively loads and merges "includes", returning the
// flattened rule table for one grammar file. Conflicts are resolved in
// favor of the including file: an included file's rule is only used when
// the including file (or a file it includes later in the list) doesn't
// redefine it.
func mergeIncludes(root map[string]any, dir string, load Loader, visited map[string]bool) (*rawUnit, error) {
	merged := map[string]any{}

	if rawIncludes, ok := koinedata.SliceField(root, "includes"); ok {
		for _, inc := range rawIncludes {
			incPath, ok := koinedata.AsString(inc)
			if !ok {
				return nil, &koineerr.GrammarError{Kind: koineerr.MalformedDirective, Message: "includes entries must be strings"}
			}
			full := resolvePath(dir, incPath)
			if visited[full] {
				return nil, &koineerr.GrammarError{Kind: koineerr.IncludeCycle, Message: "include cycle detected", File: full}
			}
			if load == nil {
				return nil, &koineerr.GrammarError{Kind: koineerr.MalformedDirective, Message: "grammar has includes but no Loader was supplied", File: full}
			}
			incMap, err := load(full)
			if err != nil {
				return nil, &koineerr.GrammarError{Kind: koineerr.SubgrammarNotFound, Message: err.Error(), File: full}
			}
			nextVisited := copyVisited(visited)
			nextVisited[full] = true
			incUnit, err := mergeIncludes(incMap, filepath.Dir(full), load, nextVisited)
			if err != nil {
				return nil, err
			}
			for name, body := range incUnit.rules {
				merged[name] = body
			}
		}
	}

	if ownRules, ok := koinedata.MapField(root, "rules"); ok {
		for name, body := range ownRules {
			merged[name] = body
		}
	}

	start, _ := koinedata.StringField(root, "start_rule")
	return &rawUnit{start: start, rules: merged, dir: dir}, nil
}

// composer holds the state accumulated while expanding subgrammar
// references across an entire compile() call: every rule discovered,
// whether from the root unit or from any (transitively) referenced
// subgrammar file, ends up keyed by its final, possibly-prefixed name in
// allRules, with owningPrefix recording which namespace each belongs to
// so compileExpr can resolve the bare ref names subgrammar authors write.
type composer struct {
	load            Loader
	placeholderMode bool

	allRules     map[string]any    // final qualified name -> raw rule body map
	owningPrefix map[string]string // final qualified name -> "" (root) or "Prefix_"

	subgrammarPrefix map[string]string // resolved file path -> its prefix (dedup/cache)
	subgrammarStart  map[string]string // prefix -> that subgrammar's own start_rule name (bare)
}

func newComposer(load Loader, placeholderMode bool) *composer {
	return &composer{
		load:             load,
		placeholderMode:  placeholderMode,
		allRules:         map[string]any{},
		owningPrefix:     map[string]string{},
		subgrammarPrefix: map[string]string{},
		subgrammarStart:  map[string]string{},
	}
}

// expandUnit registers every rule in unit (already include-merged) into
// c.allRules under the given prefix ("" for the root grammar), recursively
// replacing subgrammar directives found inside rule bodies with Ref nodes
// pointing at the expanded subgrammar's entry rule.
func (c *composer) expandUnit(unit *rawUnit, prefix string) error {
	for name, rawBody := range unit.rules {
		body, ok := koinedata.AsMap(rawBody)
		if !ok {
			return &koineerr.GrammarError{Kind: koineerr.BadStructure, Message: "rule body must be a map", Rule: name}
		}
		expanded, err := c.expandBody(body, unit.dir, prefix)
		if err != nil {
			return err
		}
		qualified := prefix + name
		c.allRules[qualified] = expanded
		c.owningPrefix[qualified] = prefix
	}
	return nil
}

// expandBody walks one rule-body map (and, recursively, every nested part
// it contains), replacing any "subgrammar" directive it finds with a
// "rule" (Ref) node. dir and prefix describe the grammar unit that owns
// this body, for resolving further nested subgrammar file paths.
func (c *composer) expandBody(body map[string]any, dir, prefix string) (map[string]any, error) {
	if sub, ok := koinedata.MapField(body, "subgrammar"); ok {
		return c.expandSubgrammar(sub, dir, prefix)
	}

	for _, key := range []string{"zero_or_more", "one_or_more", "optional", "positive_lookahead", "negative_lookahead"} {
		if child, ok := koinedata.MapField(body, key); ok {
			expanded, err := c.expandBody(child, dir, prefix)
			if err != nil {
				return nil, err
			}
			out := shallowCopy(body)
			out[key] = expanded
			return out, nil
		}
	}

	for _, key := range []string{"sequence", "choice"} {
		if list, ok := koinedata.SliceField(body, key); ok {
			newList := make([]any, len(list))
			for i, item := range list {
				itemMap, ok := koinedata.AsMap(item)
				if !ok {
					return nil, &koineerr.GrammarError{Kind: koineerr.BadStructure, Message: key + " elements must be maps"}
				}
				expanded, err := c.expandBody(itemMap, dir, prefix)
				if err != nil {
					return nil, err
				}
				newList[i] = expanded
			}
			out := shallowCopy(body)
			out[key] = newList
			return out, nil
		}
	}

	// literal / regex / token / rule: nothing nested to expand.
	return body, nil
}

// expandSubgrammar implements spec.md §4.1's subgrammar step: in
// placeholder mode no file is loaded and the directive's own "placeholder"
// body stands in for it; otherwise the referenced file is loaded (once per
// resolved path — repeated references to the same file reuse the cached
// prefix and merged rules) and the directive becomes a Ref at its
// (possibly explicitly named) entry rule.
func (c *composer) expandSubgrammar(sub map[string]any, dir, prefix string) (map[string]any, error) {
	if c.placeholderMode {
		ph, ok := koinedata.MapField(sub, "placeholder")
		if !ok {
			return nil, &koineerr.GrammarError{Kind: koineerr.MalformedDirective, Message: "subgrammar has no placeholder body for placeholder-mode compilation"}
		}
		return c.expandBody(ph, dir, prefix)
	}

	fileRef, ok := koinedata.StringField(sub, "file")
	if !ok {
		return nil, &koineerr.GrammarError{Kind: koineerr.MalformedDirective, Message: "subgrammar requires a file"}
	}
	full := resolvePath(dir, fileRef)

	subPrefix, loaded := c.subgrammarPrefix[full]
	if !loaded {
		subPrefix = computePrefix(fileRef)
		c.subgrammarPrefix[full] = subPrefix

		if c.load == nil {
			return nil, &koineerr.GrammarError{Kind: koineerr.MalformedDirective, Message: "grammar references a subgrammar but no Loader was supplied", File: full}
		}
		subMap, err := c.load(full)
		if err != nil {
			return nil, &koineerr.GrammarError{Kind: koineerr.SubgrammarNotFound, Message: err.Error(), File: full}
		}
		subUnit, err := mergeIncludes(subMap, filepath.Dir(full), c.load, map[string]bool{full: true})
		if err != nil {
			return nil, err
		}
		c.subgrammarStart[subPrefix] = subUnit.start
		if err := c.expandUnit(subUnit, subPrefix); err != nil {
			return nil, err
		}
	}

	ruleName, _ := koinedata.StringField(sub, "rule")
	if ruleName == "" {
		ruleName = c.subgrammarStart[subPrefix]
	}
	if ruleName == "" {
		return nil, &koineerr.GrammarError{Kind: koineerr.SubgrammarNotFound, Message: "subgrammar has no rule and its file declares no start_rule", File: full}
	}

	return map[string]any{"rule": subPrefix + ruleName}, nil
}

// resolveRef implements the namespaced-with-fallback lookup spec.md §4.1
// describes for refs written inside an expanded subgrammar's own rule
// bodies: try this rule's own namespace first, then fall back to however
// the name resolves at the root (where root rules are stored bare).
func (c *composer) resolveRef(name, prefix string) (string, bool) {
	if prefix != "" {
		if _, ok := c.allRules[prefix+name]; ok {
			return prefix + name, true
		}
	}
	if _, ok := c.allRules[name]; ok {
		return name, true
	}
	return "", false
}

func shallowCopy(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
