package tree

import (
	"fmt"
	"strings"

	"github.com/treesync/treesync.go/pkg/constants"
)

// Path is an absolute location in the synchronized tree, represented as an
// ordered sequence of key segments from the root. A Path is immutable once
// constructed; derived paths share no mutable state with their origin.
type Path struct {
	segments []string
}

// RootPath is the path of the tree root. The zero Path value is equivalent.
var RootPath = Path{}

// ParsePath parses a slash-separated path such as "users/fred/name".
// Leading and trailing slashes are ignored, so "/users/fred/" and
// "users/fred" denote the same location. Each segment must be a valid key.
func ParsePath(s string) (Path, error) {
	trimmed := strings.Trim(s, "/")
	if trimmed == "" {
		return RootPath, nil
	}

	parts := strings.Split(trimmed, "/")
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		if err := ValidateKey(part); err != nil {
			return Path{}, err
		}
		segments = append(segments, part)
	}
	return Path{segments: segments}, nil
}

// ValidateKey reports whether key is usable as a child name. Keys must be
// non-empty and must not contain any of the reserved characters . $ # [ ] /
// or control characters.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", constants.ErrInvalidPath)
	}
	for _, r := range key {
		switch r {
		case '.', '$', '#', '[', ']', '/':
			return fmt.Errorf("%w: key %q contains forbidden character %q", constants.ErrInvalidPath, key, r)
		}
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: key %q contains control character", constants.ErrInvalidPath, key)
		}
	}
	return nil
}

// IsRoot reports whether p is the root path.
func (p Path) IsRoot() bool {
	return len(p.segments) == 0
}

// Depth returns the number of segments in p.
func (p Path) Depth() int {
	return len(p.segments)
}

// Front returns the first segment, or "" for the root path.
func (p Path) Front() string {
	if p.IsRoot() {
		return ""
	}
	return p.segments[0]
}

// Pop returns p without its first segment.
func (p Path) Pop() Path {
	if p.IsRoot() {
		return p
	}
	return Path{segments: p.segments[1:]}
}

// Key returns the last segment of p, or "" for the root path.
func (p Path) Key() string {
	if p.IsRoot() {
		return ""
	}
	return p.segments[len(p.segments)-1]
}

// Parent returns p without its last segment. The parent of the root is the
// root itself.
func (p Path) Parent() Path {
	if p.IsRoot() {
		return p
	}
	return Path{segments: p.segments[:len(p.segments)-1]}
}

// Child returns p extended with the given segment. The segment is assumed to
// be a valid key; use ValidateKey when accepting caller input.
func (p Path) Child(segment string) Path {
	segments := make([]string, len(p.segments)+1)
	copy(segments, p.segments)
	segments[len(p.segments)] = segment
	return Path{segments: segments}
}

// Append returns p extended with every segment of suffix.
func (p Path) Append(suffix Path) Path {
	if suffix.IsRoot() {
		return p
	}
	segments := make([]string, 0, len(p.segments)+len(suffix.segments))
	segments = append(segments, p.segments...)
	segments = append(segments, suffix.segments...)
	return Path{segments: segments}
}

// Contains reports whether p is an ancestor of (or equal to) other.
func (p Path) Contains(other Path) bool {
	if len(p.segments) > len(other.segments) {
		return false
	}
	for i, seg := range p.segments {
		if other.segments[i] != seg {
			return false
		}
	}
	return true
}

// RelativeTo returns the remainder of p below the given ancestor. The second
// return value is false when ancestor does not contain p.
func (p Path) RelativeTo(ancestor Path) (Path, bool) {
	if !ancestor.Contains(p) {
		return Path{}, false
	}
	return Path{segments: p.segments[len(ancestor.segments):]}, true
}

// Equal reports whether two paths denote the same location.
func (p Path) Equal(other Path) bool {
	if len(p.segments) != len(other.segments) {
		return false
	}
	for i, seg := range p.segments {
		if other.segments[i] != seg {
			return false
		}
	}
	return true
}

// Compare orders paths by segment-wise lexicographic comparison, with an
// ancestor sorting before its descendants.
func (p Path) Compare(other Path) int {
	for i := 0; i < len(p.segments) && i < len(other.segments); i++ {
		if c := strings.Compare(p.segments[i], other.segments[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(p.segments) < len(other.segments):
		return -1
	case len(p.segments) > len(other.segments):
		return 1
	}
	return 0
}

// String renders p as a slash-separated absolute path. The root renders as "/".
func (p Path) String() string {
	if p.IsRoot() {
		return "/"
	}
	return "/" + strings.Join(p.segments, "/")
}
