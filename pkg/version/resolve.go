package version

import (
	"errors"
	"fmt"
)

// ErrNotFound is the sentinel wrapped by [NotFoundError].
var ErrNotFound = errors.New("no version satisfies constraint")

// NotFoundError is returned by [Resolve] when no candidate qualifies.
type NotFoundError struct {
	ID         string
	Constraint Constraint
	Prerelease bool
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: no version satisfies %s", e.ID, e.Constraint)
}

// Unwrap returns ErrNotFound so callers can use errors.Is.
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// Versioned is implemented by anything that carries a package version.
type Versioned interface {
	PackageVersion() Version
}

// Resolve picks the candidate with the highest version satisfying c.
//
// Prerelease candidates are skipped unless prerelease is set or one of the
// constraint's bounds is itself a prerelease. When the feed lists the same
// version twice, the first occurrence wins. Returns a *NotFoundError when
// nothing qualifies.
func Resolve[T Versioned](id string, c Constraint, prerelease bool, candidates []T) (T, error) {
	i := Select(candidates, func(t T) Version { return t.PackageVersion() }, c, prerelease)
	if i < 0 {
		var zero T
		return zero, &NotFoundError{ID: id, Constraint: c, Prerelease: prerelease}
	}
	return candidates[i], nil
}

// Select returns the index of the best item under the same rules as
// [Resolve], or -1.
func Select[T any](items []T, versionOf func(T) Version, c Constraint, prerelease bool) int {
	allowPre := prerelease || c.MentionsPrerelease()
	best := -1
	var bestV Version
	for i, item := range items {
		v := versionOf(item)
		if v.IsPrerelease() && !allowPre {
			continue
		}
		if !c.Satisfies(v) {
			continue
		}
		// Strictly greater keeps the first of equal versions.
		if best < 0 || v.Compare(bestV) > 0 {
			best, bestV = i, v
		}
	}
	return best
}

// Max returns the highest version in vs satisfying c, ignoring prereleases
// unless prerelease is set.
func Max(vs []Version, c Constraint, prerelease bool) (Version, bool) {
	i := Select(vs, func(v Version) Version { return v }, c, prerelease)
	if i < 0 {
		return Version{}, false
	}
	return vs[i], true
}
