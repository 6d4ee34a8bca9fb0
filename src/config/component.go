package config

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Namespace is a dist-git namespace.
type Namespace string

const (
	RPMs    Namespace = "rpms"
	Modules Namespace = "modules"
)

// Namespaces lists the namespaces DistroBaker synchronizes.
var Namespaces = []Namespace{RPMs, Modules}

// StringSet is a set of strings decoded from a YAML sequence.
type StringSet map[string]struct{}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *StringSet) UnmarshalYAML(value *yaml.Node) error {
	var items []string
	if err := value.Decode(&items); err != nil {
		return err
	}
	set := make(StringSet, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	*s = set
	return nil
}

// Has reports whether name is in the set.
func (s StringSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Component is a configured component with its resolved locations.
type Component struct {
	Namespace   Namespace
	Name        string // as configured; modules use name:stream
	Source      string
	Destination string
	Cache       CachePair
}

// CachePair holds the lookaside cache names on both sides.
type CachePair struct {
	Source      string
	Destination string
}

// Components is the resolved component set, per namespace.
type Components struct {
	RPMs    map[string]Component
	Modules map[string]Component
}

// Get returns the named component from the namespace.
func (c *Components) Get(ns Namespace, name string) (Component, bool) {
	if c == nil {
		return Component{}, false
	}
	var comp Component
	var ok bool
	switch ns {
	case RPMs:
		comp, ok = c.RPMs[name]
	case Modules:
		comp, ok = c.Modules[name]
	}
	return comp, ok
}

// Len returns the total number of components.
func (c *Components) Len() int {
	if c == nil {
		return 0
	}
	return len(c.RPMs) + len(c.Modules)
}

// Names returns the sorted component names of a namespace.
func (c *Components) Names(ns Namespace) []string {
	if c == nil {
		return nil
	}
	m := c.RPMs
	if ns == Modules {
		m = c.Modules
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DeriveComponents resolves every component from the defaults templates and
// the per-component overrides. When the configuration has no components
// block, autoRPMs (the Content Resolver package list) populates the rpms
// namespace instead.
func DeriveComponents(cfg *Config, autoRPMs []string) (*Components, error) {
	comps := &Components{
		RPMs:    make(map[string]Component),
		Modules: make(map[string]Component),
	}

	spec := cfg.Components
	if spec == nil {
		if autoRPMs == nil {
			return comps, nil
		}
		spec = &ComponentsSpec{RPMs: make(map[string]*ComponentOverride, len(autoRPMs))}
		for _, name := range autoRPMs {
			spec.RPMs[name] = nil
		}
	}

	for name, o := range spec.RPMs {
		c, err := resolve(cfg.Defaults, RPMs, name, name, "", o)
		if err != nil {
			return nil, err
		}
		comps.RPMs[name] = c
	}
	for name, o := range spec.Modules {
		m := ParseModule(name)
		c, err := resolve(cfg.Defaults, Modules, name, m.Name, m.Stream, o)
		if err != nil {
			return nil, err
		}
		comps.Modules[name] = c
	}

	return comps, nil
}

func resolve(d Defaults, ns Namespace, key, component, stream string, o *ComponentOverride) (Component, error) {
	pair := d.RPMs
	if ns == Modules {
		pair = d.Modules
	}
	values := map[string]string{"component": component, "stream": stream}

	c := Component{Namespace: ns, Name: key}
	var err error
	if c.Source, err = Expand(pair.Source, values); err != nil {
		return c, fmt.Errorf("%s/%s: %w", ns, key, err)
	}
	if c.Destination, err = Expand(pair.Destination, values); err != nil {
		return c, fmt.Errorf("%s/%s: %w", ns, key, err)
	}
	if c.Cache.Source, err = Expand(d.Cache.Source, values); err != nil {
		return c, fmt.Errorf("%s/%s: %w", ns, key, err)
	}
	if c.Cache.Destination, err = Expand(d.Cache.Destination, values); err != nil {
		return c, fmt.Errorf("%s/%s: %w", ns, key, err)
	}

	if o != nil {
		if o.Source != "" {
			c.Source = o.Source
		}
		if o.Destination != "" {
			c.Destination = o.Destination
		}
		if o.Cache.Source != "" {
			c.Cache.Source = o.Cache.Source
		}
		if o.Cache.Destination != "" {
			c.Cache.Destination = o.Cache.Destination
		}
	}

	// A defaults template may be absent; the component then needs its own.
	for _, f := range []struct{ name, value string }{
		{"source", c.Source},
		{"destination", c.Destination},
		{"cache.source", c.Cache.Source},
		{"cache.destination", c.Cache.Destination},
	} {
		if f.value == "" {
			return c, fmt.Errorf("%s/%s: empty %s, the defaults template is missing and not overridden", ns, key, f.name)
		}
	}
	return c, nil
}
