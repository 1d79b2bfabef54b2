// Package moduleid defines the dotted-name identifier used throughout the
// orchestrator, following the pattern of golang.org/x/tools/gopls's
// metadata package (PackageID/PackagePath/PackageName as distinct string
// types, so an ID is never accidentally used where a path belongs).
package moduleid

import (
	"path/filepath"
	"strings"
)

// ID is a dotted module name (e.g. "a.b.c"), unique within one build.
type ID string

// String implements fmt.Stringer.
func (id ID) String() string { return string(id) }

// Ancestors returns the strict-prefix packages of id, ordered from the
// top-level package down to (but excluding) id itself: for "a.b.c" that
// is ["a", "a.b"].
func Ancestors(id ID) []ID {
	parts := strings.Split(string(id), ".")
	if len(parts) <= 1 {
		return nil
	}
	out := make([]ID, 0, len(parts)-1)
	for i := 1; i < len(parts); i++ {
		out = append(out, ID(strings.Join(parts[:i], ".")))
	}
	return out
}

// Parent returns the immediate parent package of id, and whether id has
// one (a top-level module does not).
func Parent(id ID) (ID, bool) {
	s := string(id)
	i := strings.LastIndexByte(s, '.')
	if i < 0 {
		return "", false
	}
	return ID(s[:i]), true
}

// Base returns the final dotted component of id (e.g. "c" for "a.b.c").
func Base(id ID) string {
	s := string(id)
	i := strings.LastIndexByte(s, '.')
	if i < 0 {
		return s
	}
	return s[i+1:]
}

// IsPackagePath reports whether path names a package module rather than a
// plain one, by the source language's own convention (spec §6: package
// modules use "a/b/__init__.(meta|data|deps).json"): the file's base name
// starts with "__init__.". An empty path (source supplied as a literal
// string, with no file backing it) is never a package.
func IsPackagePath(path string) bool {
	if path == "" {
		return false
	}
	return strings.HasPrefix(filepath.Base(path), "__init__.")
}
