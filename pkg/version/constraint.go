package version

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConstraint is the sentinel wrapped by [ConstraintError].
var ErrInvalidConstraint = errors.New("invalid version constraint")

// ConstraintError is returned when a constraint string is malformed.
type ConstraintError struct {
	Value  string
	Reason string
}

// Error implements the error interface.
func (e *ConstraintError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid version constraint %q: %s", e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid version constraint %q", e.Value)
}

// Unwrap returns ErrInvalidConstraint so callers can use errors.Is.
func (e *ConstraintError) Unwrap() error { return ErrInvalidConstraint }

// Constraint is a version interval. Either bound may be open. The zero value
// is unconstrained and satisfied by every version.
type Constraint struct {
	min, max     *Version
	minInclusive bool
	maxInclusive bool
}

// Any returns the unconstrained constraint.
func Any() Constraint {
	return Constraint{}
}

// Exact returns the single-point range [v, v].
func Exact(v Version) Constraint {
	return Constraint{min: &v, max: &v, minInclusive: true, maxInclusive: true}
}

// AtLeast returns the half-open range [v, ).
func AtLeast(v Version) Constraint {
	return Constraint{min: &v, minInclusive: true}
}

// ParseRange parses a constraint as declared by a package dependency. A bare
// version means "this version or higher".
//
//	""          any version
//	"*"         any version
//	"1.0"       1.0 <= v
//	"[1.0]"     v == 1.0
//	"(1.0,)"    1.0 < v
//	"(,2.0]"    v <= 2.0
//	"[1.0,2.0)" 1.0 <= v < 2.0
func ParseRange(s string) (Constraint, error) {
	return parse(s, AtLeast)
}

// ParseRequest parses a constraint typed by a user on the command line or in
// a manifest. Unlike [ParseRange], a bare version means exactly that version.
func ParseRequest(s string) (Constraint, error) {
	return parse(s, Exact)
}

func parse(s string, bare func(Version) Constraint) (Constraint, error) {
	raw := s
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return Any(), nil
	}

	if !strings.ContainsAny(s, "[]()") {
		v, err := Parse(s)
		if err != nil {
			return Constraint{}, &ConstraintError{Value: raw, Reason: "not a version"}
		}
		return bare(v), nil
	}

	if len(s) < 2 {
		return Constraint{}, &ConstraintError{Value: raw}
	}

	var c Constraint
	switch s[0] {
	case '[':
		c.minInclusive = true
	case '(':
	default:
		return Constraint{}, &ConstraintError{Value: raw, Reason: "must start with '[' or '('"}
	}
	switch s[len(s)-1] {
	case ']':
		c.maxInclusive = true
	case ')':
	default:
		return Constraint{}, &ConstraintError{Value: raw, Reason: "must end with ']' or ')'"}
	}

	inner := s[1 : len(s)-1]
	if strings.ContainsAny(inner, "[]()") {
		return Constraint{}, &ConstraintError{Value: raw, Reason: "unbalanced brackets"}
	}

	parts := strings.Split(inner, ",")
	switch len(parts) {
	case 1:
		if !c.minInclusive || !c.maxInclusive {
			return Constraint{}, &ConstraintError{Value: raw, Reason: "single version must use '[' and ']'"}
		}
		v, err := Parse(parts[0])
		if err != nil {
			return Constraint{}, &ConstraintError{Value: raw, Reason: "not a version"}
		}
		return Exact(v), nil
	case 2:
	default:
		return Constraint{}, &ConstraintError{Value: raw, Reason: "too many commas"}
	}

	lo, hi := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if lo == "" && hi == "" {
		return Constraint{}, &ConstraintError{Value: raw, Reason: "no bounds"}
	}
	if lo != "" {
		v, err := Parse(lo)
		if err != nil {
			return Constraint{}, &ConstraintError{Value: raw, Reason: "invalid lower bound"}
		}
		c.min = &v
	} else if c.minInclusive {
		return Constraint{}, &ConstraintError{Value: raw, Reason: "open lower bound must use '('"}
	}
	if hi != "" {
		v, err := Parse(hi)
		if err != nil {
			return Constraint{}, &ConstraintError{Value: raw, Reason: "invalid upper bound"}
		}
		c.max = &v
	} else if c.maxInclusive {
		return Constraint{}, &ConstraintError{Value: raw, Reason: "open upper bound must use ')'"}
	}

	if c.min != nil && c.max != nil {
		switch cmp := c.min.Compare(*c.max); {
		case cmp > 0:
			return Constraint{}, &ConstraintError{Value: raw, Reason: "lower bound above upper bound"}
		case cmp == 0 && !(c.minInclusive && c.maxInclusive):
			return Constraint{}, &ConstraintError{Value: raw, Reason: "empty range"}
		}
	}
	return c, nil
}

// Satisfies reports whether v lies inside the interval.
func (c Constraint) Satisfies(v Version) bool {
	if c.min != nil {
		cmp := v.Compare(*c.min)
		if cmp < 0 || (cmp == 0 && !c.minInclusive) {
			return false
		}
	}
	if c.max != nil {
		cmp := v.Compare(*c.max)
		if cmp > 0 || (cmp == 0 && !c.maxInclusive) {
			return false
		}
	}
	return true
}

// IsAny reports whether every version satisfies c.
func (c Constraint) IsAny() bool {
	return c.min == nil && c.max == nil
}

// IsExact reports whether c is a single-point range.
func (c Constraint) IsExact() bool {
	return c.min != nil && c.max != nil && c.minInclusive && c.maxInclusive && c.min.Equal(*c.max)
}

// Min returns the lower bound, if any.
func (c Constraint) Min() (Version, bool) {
	if c.min == nil {
		return Version{}, false
	}
	return *c.min, true
}

// Max returns the upper bound, if any.
func (c Constraint) Max() (Version, bool) {
	if c.max == nil {
		return Version{}, false
	}
	return *c.max, true
}

// MentionsPrerelease reports whether either bound names a prerelease. Such
// constraints admit prerelease candidates without an explicit opt-in.
func (c Constraint) MentionsPrerelease() bool {
	return (c.min != nil && c.min.IsPrerelease()) || (c.max != nil && c.max.IsPrerelease())
}

// String returns c in interval notation, or "*" when unconstrained.
func (c Constraint) String() string {
	switch {
	case c.IsAny():
		return "*"
	case c.IsExact():
		return "[" + c.min.String() + "]"
	}

	var b strings.Builder
	if c.minInclusive {
		b.WriteByte('[')
	} else {
		b.WriteByte('(')
	}
	if c.min != nil {
		b.WriteString(c.min.String())
	}
	b.WriteByte(',')
	if c.max != nil {
		b.WriteString(c.max.String())
	}
	if c.maxInclusive {
		b.WriteByte(']')
	} else {
		b.WriteByte(')')
	}
	return b.String()
}
