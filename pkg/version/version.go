// Package version implements NuGet-style package versions and version
// constraints.
//
// A [Version] has one to four numeric parts, an optional prerelease label and
// optional build metadata:
//
//	1.2
//	1.2.3.4
//	2.0.0-preview.3+build.77
//
// Versions are totally ordered following SemVer 2.0 precedence: numeric parts
// first (missing parts count as zero), then a release sorts above any
// prerelease with the same numbers, then prerelease identifiers are compared
// one by one. Build metadata never affects precedence. Prerelease labels are
// compared case-insensitively.
//
// A [Constraint] is a predicate over versions written in NuGet interval
// notation. See [ParseRange] and [ParseRequest].
package version

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidVersion is the sentinel wrapped by [VersionError].
var ErrInvalidVersion = errors.New("invalid version")

// VersionError is returned when a string is not a valid version.
type VersionError struct {
	Value string
}

// Error implements the error interface.
func (e *VersionError) Error() string {
	return fmt.Sprintf("invalid version %q", e.Value)
}

// Unwrap returns ErrInvalidVersion so callers can use errors.Is.
func (e *VersionError) Unwrap() error { return ErrInvalidVersion }

// Version is a parsed NuGet version. The zero value is 0.0.0.
type Version struct {
	Major, Minor, Patch, Revision int

	// Prerelease is the dot-separated prerelease label without the leading '-'.
	Prerelease string

	// Metadata is the build metadata without the leading '+'.
	Metadata string

	original string
}

var versionRegex = regexp.MustCompile(
	`^(\d+)(?:\.(\d+))?(?:\.(\d+))?(?:\.(\d+))?` +
		`(?:-([0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*))?` +
		`(?:\+([0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*))?$`)

// Parse parses a version string. Surrounding whitespace is ignored.
func Parse(s string) (Version, error) {
	s = strings.TrimSpace(s)
	m := versionRegex.FindStringSubmatch(s)
	if m == nil {
		return Version{}, &VersionError{Value: s}
	}

	var nums [4]int
	for i := range nums {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return Version{}, &VersionError{Value: s}
		}
		nums[i] = n
	}

	return Version{
		Major:      nums[0],
		Minor:      nums[1],
		Patch:      nums[2],
		Revision:   nums[3],
		Prerelease: m[5],
		Metadata:   m[6],
		original:   s,
	}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level literals.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the normalized form: three numeric parts, a fourth only when
// non-zero, and the prerelease label. Build metadata is omitted. Installed
// version directories are named with this form.
func (v Version) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Revision != 0 {
		fmt.Fprintf(&b, ".%d", v.Revision)
	}
	if v.Prerelease != "" {
		b.WriteByte('-')
		b.WriteString(v.Prerelease)
	}
	return b.String()
}

// Original returns the string the version was parsed from, or the normalized
// form for versions built in code.
func (v Version) Original() string {
	if v.original != "" {
		return v.original
	}
	return v.String()
}

// IsPrerelease reports whether v carries a prerelease label.
func (v Version) IsPrerelease() bool {
	return v.Prerelease != ""
}

// Compare returns -1, 0 or +1 depending on whether v sorts before, equal to
// or after other.
func (v Version) Compare(other Version) int {
	if c := cmpInt(v.Major, other.Major); c != 0 {
		return c
	}
	if c := cmpInt(v.Minor, other.Minor); c != 0 {
		return c
	}
	if c := cmpInt(v.Patch, other.Patch); c != 0 {
		return c
	}
	if c := cmpInt(v.Revision, other.Revision); c != 0 {
		return c
	}
	return comparePrerelease(v.Prerelease, other.Prerelease)
}

// Equal reports whether v and other have the same precedence.
func (v Version) Equal(other Version) bool {
	return v.Compare(other) == 0
}

// Less reports whether v sorts before other.
func (v Version) Less(other Version) bool {
	return v.Compare(other) < 0
}

// Compare is the function form of [Version.Compare], usable with slices.SortFunc.
func Compare(a, b Version) int {
	return a.Compare(b)
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func comparePrerelease(a, b string) int {
	switch {
	case a == "" && b == "":
		return 0
	case a == "":
		return 1
	case b == "":
		return -1
	}

	as := strings.Split(strings.ToLower(a), ".")
	bs := strings.Split(strings.ToLower(b), ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if c := compareIdentifier(as[i], bs[i]); c != 0 {
			return c
		}
	}
	return cmpInt(len(as), len(bs))
}

// compareIdentifier orders numeric identifiers numerically and below
// alphanumeric ones, and alphanumeric identifiers lexically. Numeric
// identifiers of any length are compared without integer conversion.
func compareIdentifier(a, b string) int {
	aNum, bNum := allDigits(a), allDigits(b)
	switch {
	case aNum && bNum:
		a, b = strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
		if c := cmpInt(len(a), len(b)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	case aNum:
		return -1
	case bNum:
		return 1
	}
	return strings.Compare(a, b)
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
