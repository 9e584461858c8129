package chunker

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path"
	"strings"
)

// QualifiedName builds the dot-joined hierarchical name for a chunk:
// relative directory path (source root stripped), file stem, enclosing
// class, then the simple name. Dots inside path segments become
// underscores so the joined name stays unambiguous.
//
//	QualifiedName("save", "src/api/services/user_service.py", "", "User", "python")
//	  -> "api.services.user_service.User.save"
func QualifiedName(name, filePath, repositoryRoot, parentContext, language string) string {
	parts := pathSegments(filePath, repositoryRoot)
	if parentContext != "" {
		parts = append(parts, parentContext)
	}
	parts = append(parts, name)
	return strings.Join(parts, ".")
}

// ModulePath returns the dot-joined path for a whole-file chunk (barrel or
// config module), with no simple name appended.
func ModulePath(filePath, repositoryRoot string) string {
	return strings.Join(pathSegments(filePath, repositoryRoot), ".")
}

func pathSegments(filePath, repositoryRoot string) []string {
	rel := strings.TrimPrefix(filePath, repositoryRoot)
	rel = strings.TrimPrefix(rel, "/")
	rel = strings.TrimPrefix(rel, "src/")
	rel = strings.TrimSuffix(rel, path.Ext(rel))

	segments := strings.Split(rel, "/")
	parts := make([]string, 0, len(segments)+2)
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		parts = append(parts, strings.ReplaceAll(seg, ".", "_"))
	}
	return parts
}

// AnonymousName names a chunk whose declaration carries no identifier.
// The short id is deterministic over (file, line) so re-indexing is stable.
func AnonymousName(kind, filePath string, startLine int) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s:%d", filePath, startLine)))
	return fmt.Sprintf("anonymous_%s_%s", kind, hex.EncodeToString(sum[:])[:8])
}

// IsAnonymousName reports whether a chunk name was auto-generated. The graph
// constructor skips these to reduce noise.
func IsAnonymousName(name string) bool {
	return strings.HasPrefix(name, "anonymous_")
}
