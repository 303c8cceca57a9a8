package middleware

import (
	"path"
	"strings"
)

// PathPattern is a compiled Ant-style path pattern. "*" and "?" match within a
// single segment, "**" matches zero or more whole segments.
type PathPattern struct {
	raw      string
	segments []string
}

// CompilePathPattern splits pattern into segments. It fails when a segment is not a
// valid path.Match pattern.
func CompilePathPattern(pattern string) (PathPattern, error) {
	segs := splitPath(pattern)
	for _, s := range segs {
		if s == "**" {
			continue
		}
		if _, err := path.Match(s, ""); err != nil {
			return PathPattern{}, err
		}
	}
	return PathPattern{raw: pattern, segments: segs}, nil
}

// String returns the pattern as written.
func (p PathPattern) String() string {
	return p.raw
}

// Match reports whether urlPath matches the pattern.
func (p PathPattern) Match(urlPath string) bool {
	return matchSegments(p.segments, splitPath(urlPath))
}

// MatchPath compiles pattern and matches urlPath against it.
func MatchPath(pattern, urlPath string) bool {
	p, err := CompilePathPattern(pattern)
	if err != nil {
		return false
	}
	return p.Match(urlPath)
}

func splitPath(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool { return r == '/' })
}

func matchSegments(pattern, segs []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			rest := pattern[1:]
			if len(rest) == 0 {
				return true
			}
			for i := 0; i <= len(segs); i++ {
				if matchSegments(rest, segs[i:]) {
					return true
				}
			}
			return false
		}
		if len(segs) == 0 {
			return false
		}
		if ok, err := path.Match(pattern[0], segs[0]); err != nil || !ok {
			return false
		}
		pattern, segs = pattern[1:], segs[1:]
	}
	return len(segs) == 0
}
