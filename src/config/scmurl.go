package config

import "strings"

// DefaultStream is the module stream assumed when none is given.
const DefaultStream = "master"

// SCMURL is a parsed `link#ref` reference.
type SCMURL struct {
	Link string
	Ref  string // empty when the URL carries no #ref

	// Namespace and Component are only meaningful when Link follows the
	// dist-git layout (.../<namespace>/<component>).
	Namespace string
	Component string
}

// ParseSCMURL splits a `link#ref` style URL into its parts.
func ParseSCMURL(url string) SCMURL {
	link, ref, _ := strings.Cut(url, "#")
	s := SCMURL{Link: link, Ref: ref}

	parts := strings.Split(link, "/")
	s.Component = parts[len(parts)-1]
	if len(parts) >= 2 {
		s.Namespace = parts[len(parts)-2]
	}
	return s
}

// String reassembles the URL.
func (s SCMURL) String() string {
	if s.Ref == "" {
		return s.Link
	}
	return s.Link + "#" + s.Ref
}

// Module is a module name and stream pair.
type Module struct {
	Name   string
	Stream string
}

// ParseModule splits a `name:stream` module component name. Anything after
// the stream (version, context) is ignored.
func ParseModule(comp string) Module {
	parts := strings.Split(comp, ":")
	m := Module{Name: parts[0], Stream: DefaultStream}
	if len(parts) > 1 && parts[1] != "" {
		m.Stream = parts[1]
	}
	return m
}
