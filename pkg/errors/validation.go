package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// ValidatePackageName validates a package id for safety and correctness.
// Package ids become directory and file names in the package store, so
// anything that could escape the store root is rejected.
//
// Validation rules:
//   - No empty names
//   - No control characters
//   - No path separators or traversal sequences
//   - No wildcard characters (patterns are only valid for searches)
//   - Maximum length of 256 characters
func ValidatePackageName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidPackage, "package name cannot be empty")
	}

	if len(name) > 256 {
		return New(ErrCodeInvalidPackage, "package name too long (max 256 characters)")
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidPackage, "package name contains invalid control characters")
		}
	}

	dangerousPatterns := []string{
		"..",   // Parent directory
		"/",    // Path separator
		"\\",   // Backslash (Windows path)
		"\x00", // Null byte
	}

	for _, pattern := range dangerousPatterns {
		if strings.Contains(name, pattern) {
			return New(ErrCodeInvalidPackage, "package name contains invalid characters: %q", pattern).WithPackage(name)
		}
	}

	if IsPattern(name) {
		return New(ErrCodeInvalidInput, "wildcards are not allowed in package names: %q", name).WithPackage(name)
	}

	return nil
}

// IsPattern reports whether name contains glob wildcard characters.
func IsPattern(name string) bool {
	return strings.ContainsAny(name, "*?[")
}

// ValidatePath validates a relative path inside a package archive.
// It prevents archive entries from escaping the extraction directory.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 500 characters
//   - No null bytes or control characters
//   - No absolute paths (must be relative)
//   - No parent directory segments
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	const maxPathLength = 500
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}

	norm := strings.ReplaceAll(path, "\\", "/")
	if strings.HasPrefix(norm, "/") || windowsDrive.MatchString(norm) {
		return New(ErrCodeInvalidPath, "path must be relative: %q", path)
	}

	for _, seg := range strings.Split(norm, "/") {
		if seg == ".." {
			return New(ErrCodeInvalidPath, "path cannot contain path traversal sequences (..): %q", path)
		}
	}

	return nil
}

var windowsDrive = regexp.MustCompile(`^[A-Za-z]:`)

// repositoryNameRegex matches names accepted for registered repositories.
var repositoryNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateRepositoryName validates a repository registration name.
func ValidateRepositoryName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidInput, "repository name cannot be empty")
	}
	if !repositoryNameRegex.MatchString(name) {
		return New(ErrCodeInvalidInput, "invalid repository name: %q", name)
	}
	return nil
}

// ValidateURL validates a repository location.
// Remote feeds must use http or https; local folders use file:// or a plain path.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}

	if i := strings.Index(rawURL, "://"); i >= 0 {
		switch strings.ToLower(rawURL[:i]) {
		case "http", "https", "file":
			return nil
		default:
			return New(ErrCodeInvalidInput, "URL must use http, https or file scheme: %q", rawURL)
		}
	}

	return nil
}
