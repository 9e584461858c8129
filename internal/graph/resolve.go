package graph

import (
	"path"
	"strings"

	"github.com/mvp-joe/project-atlas/internal/metadata"
	"github.com/mvp-joe/project-atlas/internal/storage"
)

// resolver maps call names to target chunks. Built once per repository
// build over the full chunk set; read-only afterwards.
type resolver struct {
	// byLastSegment indexes chunks by the trailing segment of their
	// qualified name, byName by their simple name.
	byLastSegment map[string][]*storage.CodeChunk
	byName        map[string][]*storage.CodeChunk
}

func newResolver(chunks []*storage.CodeChunk) *resolver {
	r := &resolver{
		byLastSegment: make(map[string][]*storage.CodeChunk),
		byName:        make(map[string][]*storage.CodeChunk),
	}
	for _, c := range chunks {
		if c.NamePath != "" {
			last := lastSegment(c.NamePath)
			r.byLastSegment[last] = append(r.byLastSegment[last], c)
		}
		if c.Name != "" {
			r.byName[c.Name] = append(r.byName[c.Name], c)
		}
	}
	return r
}

// Resolve finds the chunk a call refers to, or nil when unresolved.
//
// Priority: qualified-name match (with same-file and nearest-scope
// disambiguation), then same-file simple-name match, then import-based
// match across the repository.
func (r *resolver) Resolve(caller *storage.CodeChunk, call string) *storage.CodeChunk {
	name := normalizeCall(call)
	if name == "" {
		return nil
	}
	if c := r.qualifiedMatch(caller, name); c != nil {
		return c
	}
	if c := r.localFileMatch(caller, name); c != nil {
		return c
	}
	return r.importMatch(caller, name)
}

// qualifiedMatch finds chunks whose qualified name equals the call or ends
// with ".<call>". One candidate wins outright; several are narrowed first
// to the caller's file, then to the candidate nearest the caller's
// enclosing scope.
func (r *resolver) qualifiedMatch(caller *storage.CodeChunk, name string) *storage.CodeChunk {
	var candidates []*storage.CodeChunk
	for _, c := range r.byLastSegment[lastSegment(name)] {
		if c.NamePath == name || strings.HasSuffix(c.NamePath, "."+name) {
			candidates = append(candidates, c)
		}
	}
	switch len(candidates) {
	case 0:
		return nil
	case 1:
		return candidates[0]
	}

	var sameFile []*storage.CodeChunk
	for _, c := range candidates {
		if c.FilePath == caller.FilePath {
			sameFile = append(sameFile, c)
		}
	}
	if len(sameFile) == 1 {
		return sameFile[0]
	}
	if len(sameFile) > 1 {
		candidates = sameFile
	}

	scope := enclosingScope(caller.NamePath)
	best := candidates[0]
	bestScore := scopeOverlap(scope, enclosingScope(best.NamePath))
	for _, c := range candidates[1:] {
		if score := scopeOverlap(scope, enclosingScope(c.NamePath)); score > bestScore {
			best, bestScore = c, score
		}
	}
	return best
}

// localFileMatch covers chunks that never got a qualified name: same file,
// same simple name.
func (r *resolver) localFileMatch(caller *storage.CodeChunk, name string) *storage.CodeChunk {
	for _, c := range r.byName[lastSegment(name)] {
		if c.FilePath == caller.FilePath {
			return c
		}
	}
	return nil
}

// importMatch resolves through the caller's import list: an import ending
// in the call name licenses any chunk with that simple name.
func (r *resolver) importMatch(caller *storage.CodeChunk, name string) *storage.CodeChunk {
	simple := lastSegment(name)
	for _, imp := range caller.Metadata.Imports {
		if imp != name && imp != simple && !strings.HasSuffix(imp, "."+simple) {
			continue
		}
		if matches := r.byName[simple]; len(matches) > 0 {
			return matches[0]
		}
	}
	return nil
}

// ResolveReExport finds the chunk a barrel re-export points at. Relative
// sources must land in the referenced module; bare package sources are
// external and never resolve.
func (r *resolver) ResolveReExport(barrel *storage.CodeChunk, re metadata.ReExport) *storage.CodeChunk {
	name := re.Original
	if name == "" {
		name = re.Symbol
	}
	if name == "" || name == "*" {
		return nil
	}
	candidates := r.byName[name]
	if len(candidates) == 0 {
		return nil
	}

	switch {
	case re.Source == "":
		// export { A } with no source: the symbol lives in the barrel's file.
		for _, c := range candidates {
			if c.FilePath == barrel.FilePath {
				return c
			}
		}
		return nil
	case strings.HasPrefix(re.Source, "."):
		want := path.Join(path.Dir(barrel.FilePath), re.Source)
		for _, c := range candidates {
			got := trimExt(c.FilePath)
			if got == want || got == want+"/index" {
				return c
			}
		}
		return nil
	default:
		return nil
	}
}

// normalizeCall strips receiver prefixes: qualified names never contain
// self/cls/this, so "self.parse" resolves as "parse".
func normalizeCall(call string) string {
	for _, prefix := range []string{"self.", "cls.", "this."} {
		if strings.HasPrefix(call, prefix) {
			return call[len(prefix):]
		}
	}
	return call
}

func lastSegment(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// enclosingScope drops the trailing simple name from a qualified name.
func enclosingScope(namePath string) string {
	if i := strings.LastIndexByte(namePath, '.'); i > 0 {
		return namePath[:i]
	}
	return ""
}

// scopeOverlap counts leading dotted segments two scopes share.
func scopeOverlap(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	n := 0
	for n < len(as) && n < len(bs) && as[n] == bs[n] {
		n++
	}
	return n
}

func trimExt(filePath string) string {
	return strings.TrimSuffix(filePath, path.Ext(filePath))
}
