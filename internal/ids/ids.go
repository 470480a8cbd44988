// Package ids generates entity identifiers.
//
// Identifiers are random (v4) UUIDs rendered as text. An optional Kind
// prefixes the UUID ("block-", "page-") so identifiers are readable in
// logs and exports; the prefix does not change uniqueness.
package ids

import (
	"strings"

	"github.com/google/uuid"
)

// Kind namespaces an identifier by entity type.
type Kind string

const (
	// KindNone produces a bare UUID.
	KindNone  Kind = ""
	// KindBlock prefixes outline blocks.
	KindBlock Kind = "block"
	// KindPage prefixes pages, such as daily notes.
	KindPage  Kind = "page"
)

// New returns a fresh identifier. It never fails: uuid.NewString reads
// from crypto/rand and panics only if the OS entropy source is broken.
func New(kind Kind) string {
	id := uuid.NewString()
	if kind == KindNone {
		return id
	}
	return string(kind) + "-" + id
}

// Split separates an identifier into its kind and UUID parts.
// ok is false when the UUID part does not parse.
func Split(id string) (kind Kind, raw string, ok bool) {
	raw = id
	for _, k := range []Kind{KindBlock, KindPage} {
		if rest, found := strings.CutPrefix(id, string(k)+"-"); found {
			kind, raw = k, rest
			break
		}
	}
	if _, err := uuid.Parse(raw); err != nil {
		return KindNone, "", false
	}
	return kind, raw, true
}

// Valid reports whether id was produced by New (with or without a kind).
func Valid(id string) bool {
	_, _, ok := Split(id)
	return ok
}
