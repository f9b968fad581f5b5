package contracts

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MaxFieldPathDepth bounds the number of segments in a FieldPath.
const MaxFieldPathDepth = 32

// FieldPath addresses a contract field with dot-separated segments,
// e.g. "runtime.timeout_ms".
type FieldPath string

// ParseFieldPath normalizes raw and validates it.
func ParseFieldPath(raw string) (FieldPath, error) {
	p := FieldPath(raw).Normalize()
	if err := p.Validate(); err != nil {
		return "", err
	}
	return p, nil
}

// MustFieldPath is ParseFieldPath for literals known to be valid.
func MustFieldPath(raw string) FieldPath {
	p, err := ParseFieldPath(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// Normalize trims surrounding space and applies NFC. Compatibility
// characters such as U+212A KELVIN SIGN fold into the ASCII segment
// alphabet.
func (p FieldPath) Normalize() FieldPath {
	return FieldPath(norm.NFC.String(strings.TrimSpace(string(p))))
}

// Validate checks segment syntax and depth.
func (p FieldPath) Validate() error {
	if p == "" {
		return fmt.Errorf("field path is empty")
	}
	segs := strings.Split(string(p), ".")
	if len(segs) > MaxFieldPathDepth {
		return fmt.Errorf("field path %q exceeds depth %d", string(p), MaxFieldPathDepth)
	}
	for i, s := range segs {
		if s == "" {
			return fmt.Errorf("field path %q has empty segment at %d", string(p), i)
		}
		for _, r := range s {
			if !validSegmentRune(r) {
				return fmt.Errorf("field path %q has invalid character %q", string(p), r)
			}
		}
	}
	return nil
}

// Segments splits the path on dots.
func (p FieldPath) Segments() []string {
	if p == "" {
		return nil
	}
	return strings.Split(string(p), ".")
}

// Parent returns the enclosing path, or "" for a top-level field.
func (p FieldPath) Parent() FieldPath {
	i := strings.LastIndexByte(string(p), '.')
	if i < 0 {
		return ""
	}
	return p[:i]
}

// HasPrefix reports whether p equals prefix or lies beneath it.
func (p FieldPath) HasPrefix(prefix FieldPath) bool {
	if p == prefix {
		return true
	}
	return strings.HasPrefix(string(p), string(prefix)+".")
}

func validSegmentRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_' || r == '-':
		return true
	}
	return false
}
