package route

import "strings"

// Path is an immutable URL path that always begins with "/". Composition is
// plain concatenation; segments are not validated or cleaned.
type Path struct {
	value string
}

// NewPath creates a path, prefixing "/" when s does not start with one.
func NewPath(s string) *Path {
	if !strings.HasPrefix(s, "/") {
		s = "/" + s
	}

	return &Path{value: s}
}

// Append returns a new path rendering as p followed by other. A nil other
// yields a distinct copy of p.
func (p *Path) Append(other *Path) *Path {
	if other == nil {
		return &Path{value: p.String()}
	}

	return &Path{value: p.String() + other.String()}
}

// Prepend returns a new path rendering as other followed by p. A nil other
// yields a distinct copy of p.
func (p *Path) Prepend(other *Path) *Path {
	if other == nil {
		return &Path{value: p.String()}
	}

	return &Path{value: other.String() + p.String()}
}

// String renders the path. A nil path renders as "".
func (p *Path) String() string {
	if p == nil {
		return ""
	}

	return p.value
}

// Equal reports whether both paths render the same.
func (p *Path) Equal(other *Path) bool {
	return p.String() == other.String()
}

// Join folds Append over paths starting from the first non-nil one. It
// returns "/" when every path is nil.
func Join(paths ...*Path) *Path {
	var out *Path

	for _, p := range paths {
		if p == nil {
			continue
		}

		if out == nil {
			out = NewPath(p.String())

			continue
		}

		out = out.Append(p)
	}

	if out == nil {
		return NewPath("/")
	}

	return out
}

// Paths converts strings to paths.
func Paths(values ...string) []*Path {
	out := make([]*Path, len(values))
	for i, v := range values {
		out[i] = NewPath(v)
	}

	return out
}

// Strings renders paths.
func Strings(paths []*Path) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = p.String()
	}

	return out
}
