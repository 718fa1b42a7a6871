package cache

import (
	"strings"
)

// keySep joins segments into a map key. It cannot appear in dates, ids or
// enum values, so distinct tuples never collide.
const keySep = "\x1f"

// Key is an ordered tuple of segments whose first element is the domain.
// Two keys are equal iff all segments are equal in order.
type Key struct {
	parts []string
}

// NewKey builds a key from a domain and further segments.
func NewKey(domain string, segments ...string) Key {
	parts := make([]string, 0, len(segments)+1)
	parts = append(parts, domain)
	parts = append(parts, segments...)
	return Key{parts: parts}
}

// Segments returns a copy of all segments, domain first.
func (k Key) Segments() []string {
	out := make([]string, len(k.parts))
	copy(out, k.parts)
	return out
}

// Domain returns the first segment.
func (k Key) Domain() string {
	if len(k.parts) == 0 {
		return ""
	}
	return k.parts[0]
}

// Len is the number of segments.
func (k Key) Len() int { return len(k.parts) }

// IsZero reports whether the key has no segments.
func (k Key) IsZero() bool { return len(k.parts) == 0 }

// Hash is the identity used for map lookups.
func (k Key) Hash() string {
	return strings.Join(k.parts, keySep)
}

func (k Key) String() string {
	return strings.Join(k.parts, "/")
}

// Equal compares segment by segment.
func (k Key) Equal(o Key) bool {
	if len(k.parts) != len(o.parts) {
		return false
	}
	for i := range k.parts {
		if k.parts[i] != o.parts[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether the leading segments of k equal prefix.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix.parts) > len(k.parts) {
		return false
	}
	for i := range prefix.parts {
		if k.parts[i] != prefix.parts[i] {
			return false
		}
	}
	return true
}

// Append returns a new key extended by segments.
func (k Key) Append(segments ...string) Key {
	parts := make([]string, 0, len(k.parts)+len(segments))
	parts = append(parts, k.parts...)
	parts = append(parts, segments...)
	return Key{parts: parts}
}
