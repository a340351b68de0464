package wildcard

import (
	"fmt"
	"slices"
	"strings"
)

const (
	// Token is the sentinel subpart that satisfies an entire position.
	Token = "*"

	// PartDelimiter separates the ordered parts of a permission string.
	PartDelimiter = "."

	// SubpartDelimiter separates the alternative subparts within a part.
	SubpartDelimiter = ","
)

// Permission is a parsed wildcard permission string. The zero value is not
// usable; construct instances with New.
type Permission struct {
	source string
	parts  [][]string
}

// New parses a permission string into a Permission. It returns
// ErrNotProperlyFormatted when the string is empty or splitting by parts and
// subparts yields an empty element.
func New(permission string) (*Permission, error) {
	if permission == "" {
		return nil, fmt.Errorf("%w: empty permission string", ErrNotProperlyFormatted)
	}

	rawParts := strings.Split(permission, PartDelimiter)
	parts := make([][]string, 0, len(rawParts))

	for _, rawPart := range rawParts {
		subparts := strings.Split(rawPart, SubpartDelimiter)
		if slices.Contains(subparts, "") {
			return nil, fmt.Errorf("%w: %q", ErrNotProperlyFormatted, permission)
		}
		parts = append(parts, subparts)
	}

	return &Permission{source: permission, parts: parts}, nil
}

// MustNew is like New but panics on a malformed string. Intended for
// compile-time constant patterns.
func MustNew(permission string) *Permission {
	p, err := New(permission)
	if err != nil {
		panic(err)
	}
	return p
}

// Implies reports whether p, as the granted pattern, covers the requested
// permission. Both sides may contain wildcards.
//
// Matching walks the requested parts in order. A granted pattern with fewer
// parts than the request covers the remaining positions by omission. At each
// shared position the granted subpart set must either contain the wildcard
// token or contain every requested subpart. Granted parts trailing beyond the
// request must each contain the wildcard token.
func (p *Permission) Implies(other *Permission) bool {
	i := 0
	for _, otherPart := range other.parts {
		if i >= len(p.parts) {
			return true
		}

		if !slices.Contains(p.parts[i], Token) && !containsAll(p.parts[i], otherPart) {
			return false
		}

		i++
	}

	for ; i < len(p.parts); i++ {
		if !slices.Contains(p.parts[i], Token) {
			return false
		}
	}

	return true
}

// ImpliesString parses the requested permission string and reports whether p
// implies it. The only error is ErrNotProperlyFormatted on the requested
// string.
func (p *Permission) ImpliesString(other string) (bool, error) {
	parsed, err := New(other)
	if err != nil {
		return false, err
	}
	return p.Implies(parsed), nil
}

// Parts returns a copy of the parsed parts, each part being its subpart set
// in source order.
func (p *Permission) Parts() [][]string {
	parts := make([][]string, len(p.parts))
	for i, subparts := range p.parts {
		parts[i] = slices.Clone(subparts)
	}
	return parts
}

// String returns the original permission string.
func (p *Permission) String() string {
	return p.source
}

// containsAll reports whether part contains every subpart of otherPart.
// Comparison is exact string equality.
func containsAll(part, otherPart []string) bool {
	for _, subpart := range otherPart {
		if !slices.Contains(part, subpart) {
			return false
		}
	}
	return true
}
