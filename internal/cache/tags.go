package cache

import "strings"

// Tag groups cache keys for bulk invalidation. Always construct tags through
// EntityTag or KindTag so every writer and invalidator agrees on the exact
// string; hand-built tag strings are how invalidation misses happen.
type Tag string

// EntityTag returns the tag covering one entity instance, e.g. one content
// row. Delimiters inside the segments are escaped to prevent collisions
// between user-controlled identifiers and adjacent tags.
func EntityTag(kind, id string) Tag {
	return Tag(sanitizeSegment(kind) + ":" + sanitizeSegment(id))
}

// KindTag returns the tag covering every entity of a kind, e.g. list views.
func KindTag(kind string) Tag {
	return Tag(sanitizeSegment(kind) + ":*")
}

func (t Tag) String() string {
	return string(t)
}

// sanitizeSegment escapes delimiter characters in tag segments so an
// identifier like "content:7" cannot be interpreted as a separate segment.
// The escape is reversible: '_' is escaped too, so "a:b" and "a_b" produce
// distinct tags.
func sanitizeSegment(s string) string {
	s = strings.ReplaceAll(s, "_", "__")
	return strings.ReplaceAll(s, ":", "_c")
}
