package grammar

import (
	"path/filepath"
	"strings"
)

// resolvePath joins a (possibly relative) path against dir, the directory
// of the grammar file that referenced it — includes and subgrammar
// references are always resolved relative to the file containing the
// directive, never the process's working directory.
func resolvePath(dir, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Clean(filepath.Join(dir, p))
}

func copyVisited(v map[string]bool) map[string]bool {
	out := make(map[string]bool, len(v)+1)
	for k := range v {
		out[k] = true
	}
	return out
}

// computePrefix derives the PascalCase namespace prefix a subgrammar's
// rules are merged under, from its filename: "path_parser.yaml" becomes
// "PathParser_".
func computePrefix(fileRef string) string {
	base := filepath.Base(fileRef)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	words := strings.FieldsFunc(base, func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || r == ' '
	})
	var b strings.Builder
	for _, w := range words {
		if w == "" {
			continue
		}
		b.WriteString(strings.ToUpper(w[:1]))
		if len(w) > 1 {
			b.WriteString(w[1:])
		}
	}
	b.WriteString("_")
	return b.String()
}

func has(m map[string]any, key string) bool {
	v, ok := m[key]
	return ok && v != nil
}
