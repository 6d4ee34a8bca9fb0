package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileName is the name of the configuration document inside the
// configuration repository.
const FileName = "distrobaker.yaml"

// DefaultContentResolver is used when autopackagelist omits content_resolver.
const DefaultContentResolver = "https://tiny.distro.builders"

// Config is the validated DistroBaker configuration.
//
// Every field is guaranteed to be populated once Parse returns without error.
// Components are kept in their raw form; DeriveComponents turns them into
// concrete source/destination pairs.
type Config struct {
	Source      Endpoint
	Destination Endpoint
	Trigger     Trigger
	Build       Build
	Git         Git
	Control     Control
	Defaults    Defaults

	// Components holds the explicitly configured components, or nil if the
	// document has no components block.
	Components *ComponentsSpec
}

// Endpoint describes one side of the synchronization: the dist-git
// location, its lookaside cache, the koji profile and the MBS instance.
type Endpoint struct {
	SCM     string `yaml:"scm"`
	Cache   *Cache `yaml:"cache"`
	Profile string `yaml:"profile"`
	MBS     string `yaml:"mbs"`
}

// Cache is a lookaside cache endpoint.
type Cache struct {
	URL  string `yaml:"url"`
	CGI  string `yaml:"cgi"`  // upload CGI
	Path string `yaml:"path"` // template over name, filename, hashtype, hash
}

// Trigger maps a namespace to the upstream tag whose tagging events start a sync.
type Trigger struct {
	RPMs    string `yaml:"rpms"`
	Modules string `yaml:"modules"`
}

// Build holds the downstream build settings.
type Build struct {
	Prefix   string `yaml:"prefix"` // SCMURL prefix for submitted builds
	Target   string `yaml:"target"`
	Platform string `yaml:"platform"`
	Scratch  *bool  `yaml:"scratch"`
}

// IsScratch reports whether builds are submitted as scratch builds.
func (b Build) IsScratch() bool {
	return b.Scratch != nil && *b.Scratch
}

// Git holds the identity and message template used for automated merges.
type Git struct {
	Author  string `yaml:"author"`
	Email   string `yaml:"email"`
	Message string `yaml:"message"`
}

// Control holds the feature toggles.
type Control struct {
	Build  *bool `yaml:"build"`
	Merge  *bool `yaml:"merge"`
	Strict *bool `yaml:"strict"`

	// AutoPackageList, when set, populates the rpms namespace from
	// Content Resolver whenever the document has no components block.
	AutoPackageList *AutoPackageList `yaml:"autopackagelist"`

	Exclude Exclude `yaml:"exclude"`
}

// BuildEnabled reports whether builds are submitted at all.
func (c Control) BuildEnabled() bool { return c.Build != nil && *c.Build }


// IsStrict reports whether only configured components are processed.
func (c Control) IsStrict() bool { return c.Strict != nil && *c.Strict }

// Excluded reports whether the component is listed in the namespace's
// exclusion set. The match is exact and case-sensitive.
func (c Control) Excluded(ns Namespace, name string) bool {
	switch ns {
	case RPMs:
		return c.Exclude.RPMs.Has(name)
	case Modules:
		return c.Exclude.Modules.Has(name)
	}
	return false
}

// AutoPackageList points at a Content Resolver view.
type AutoPackageList struct {
	ContentResolver string `yaml:"content_resolver"`
	View            string `yaml:"view"`
}

// Exclude lists components skipped by the sync, per namespace.
type Exclude struct {
	RPMs    StringSet `yaml:"rpms"`
	Modules StringSet `yaml:"modules"`
}

// Defaults holds the per-namespace source/destination templates.
type Defaults struct {
	Cache   *TemplatePair `yaml:"cache"`
	RPMs    *TemplatePair `yaml:"rpms"`
	Modules *TemplatePair `yaml:"modules"`
}

// TemplatePair is a source and destination template over component and stream.
type TemplatePair struct {
	Source      string `yaml:"source"`
	Destination string `yaml:"destination"`
}

// ComponentsSpec is the raw components block.
type ComponentsSpec struct {
	RPMs    map[string]*ComponentOverride `yaml:"rpms"`
	Modules map[string]*ComponentOverride `yaml:"modules"`
}

// ComponentOverride replaces derived values for a single component.
// A nil override means "use the defaults".
type ComponentOverride struct {
	Source      string `yaml:"source"`
	Destination string `yaml:"destination"`
	Cache       struct {
		Source      string `yaml:"source"`
		Destination string `yaml:"destination"`
	} `yaml:"cache"`
}

// document mirrors distrobaker.yaml. Blocks are pointers so that a missing
// block can be told apart from an empty one.
type document struct {
	Configuration *struct {
		Source      *Endpoint `yaml:"source"`
		Destination *Endpoint `yaml:"destination"`
		Trigger     *Trigger  `yaml:"trigger"`
		Build       *Build    `yaml:"build"`
		Git         *Git      `yaml:"git"`
		Control     *Control  `yaml:"control"`
		Defaults    *Defaults `yaml:"defaults"`
	} `yaml:"configuration"`
	Components *ComponentsSpec `yaml:"components"`
}

// Load reads and parses a configuration file from disk.
func Load(path string) (*Config, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return Parse(data)
}

// Parse decodes and validates a configuration document.
// Warnings are soft issues the caller should log.
func Parse(data []byte) (*Config, []string, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}

	warnings, err := validate(&doc)
	if err != nil {
		return nil, warnings, err
	}

	c := doc.Configuration
	cfg := &Config{
		Source:      *c.Source,
		Destination: *c.Destination,
		Trigger:     *c.Trigger,
		Build:       *c.Build,
		Git:         *c.Git,
		Control:     *c.Control,
		Defaults:    *c.Defaults,
		Components:  doc.Components,
	}

	if cfg.Build.Scratch == nil {
		scratch := false
		cfg.Build.Scratch = &scratch
	}
	if apl := cfg.Control.AutoPackageList; apl != nil && apl.ContentResolver == "" {
		apl.ContentResolver = DefaultContentResolver
	}

	return cfg, warnings, nil
}

// URLs returns the HTTP endpoints the configuration refers to.
func (c *Config) URLs() []string {
	urls := []string{
		c.Source.Cache.URL,
		c.Source.MBS,
		c.Destination.Cache.URL,
		c.Destination.MBS,
	}
	if c.Control.AutoPackageList != nil {
		urls = append(urls, c.Control.AutoPackageList.ContentResolver)
	}
	return urls
}
