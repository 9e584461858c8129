package cache

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Default TTLs per key family.
const (
	SearchTTL   = 30 * time.Second
	GraphTTL    = 120 * time.Second
	ChunksTTL   = 300 * time.Second
	LSPTypeTTL  = 300 * time.Second
	RepoMetaTTL = 300 * time.Second
)

// HashContent returns the hex MD5 of source text. MD5 discriminates cache
// entries by content; it plays no security role here.
func HashContent(source string) string {
	sum := md5.Sum([]byte(source))
	return hex.EncodeToString(sum[:])
}

// ShortHash shortens a content hash to 16 hex characters for key economy.
func ShortHash(hash string) string {
	if len(hash) > 16 {
		return hash[:16]
	}
	return hash
}

// SearchKey keys a serialized search response by query, repository scope,
// and result limit.
func SearchKey(query, repository string, limit int) string {
	return "search:" + HashContent(fmt.Sprintf("%s:%s:%d", query, repository, limit))
}

// GraphKey keys a traversal result. Node ids shorten to their first eight
// characters; an empty relation list keys as "all"; the direction suffix
// appears only for inbound walks.
func GraphKey(nodeID string, hops int, relations []string, direction string) string {
	short := nodeID
	if len(short) > 8 {
		short = short[:8]
	}
	rel := "all"
	if len(relations) > 0 {
		rel = strings.Join(relations, ",")
	}
	key := fmt.Sprintf("graph:%s:hops%d:%s", short, hops, rel)
	if direction != "" && direction != "outbound" {
		key += ":" + direction
	}
	return key
}

// GraphPathKey keys a shortest-path result between two nodes.
func GraphPathKey(sourceID, targetID, relation string, hops int) string {
	if relation == "" {
		relation = "all"
	}
	return fmt.Sprintf("graph:path:%s:%s:%s:hops%d", sourceID, targetID, relation, hops)
}

// ChunksKey keys a serialized chunk list for one file at one content state.
func ChunksKey(path, contentHash string) string {
	return fmt.Sprintf("chunks:%s:%s", path, ShortHash(contentHash))
}

// ChunksPattern matches every cached content state of one file.
func ChunksPattern(path string) string {
	return fmt.Sprintf("chunks:%s:*", path)
}

// LSPTypeKey keys extracted type metadata by source hash and line. The
// TypeScript family gets its own namespace so the two language servers
// never share entries.
func LSPTypeKey(language, contentHash string, line int) string {
	switch language {
	case "typescript", "tsx", "javascript", "jsx":
		return fmt.Sprintf("lsp:ts:type:%s:%d", contentHash, line)
	default:
		return fmt.Sprintf("lsp:type:%s:%d", contentHash, line)
	}
}

// RepoMetaKey keys cached repository summary metadata.
func RepoMetaKey(name string) string {
	return "repo:meta:" + name
}
