package config

import (
	"fmt"
	"strings"
)

// templateSample holds the values every defaults template must accept.
var templateSample = map[string]string{
	"component": "component",
	"stream":    "stream",
}

// cachePathSample holds the values the cache path template must accept.
var cachePathSample = map[string]string{
	"name":     "name",
	"filename": "filename",
	"hashtype": "sha512",
	"hash":     "0",
}

// MissingError reports a required configuration field that is absent or empty.
type MissingError struct {
	Field string
}

func (e *MissingError) Error() string {
	if e.Field == "configuration" {
		return "the required configuration block is missing"
	}
	return fmt.Sprintf("configuration error: %s missing", e.Field)
}

// validate checks every required field of the document.
// Returns warnings (soft issues) and a hard error naming each missing field.
func validate(doc *document) (warnings []string, err error) {
	c := doc.Configuration
	if c == nil {
		return nil, &MissingError{Field: "configuration"}
	}

	var errs []string
	missing := func(field string) {
		errs = append(errs, (&MissingError{Field: field}).Error())
	}
	// Absent trigger keys and defaults templates are reported, not fatal.
	soft := func(field string) {
		warnings = append(warnings, (&MissingError{Field: field}).Error())
	}

	// ── Source / destination ─────────────────────────────────────────────

	for _, side := range []struct {
		name string
		ep   *Endpoint
	}{
		{"source", c.Source},
		{"destination", c.Destination},
	} {
		if side.ep == nil {
			missing(side.name)
			continue
		}
		if side.ep.SCM == "" {
			missing(side.name + ".scm")
		}
		if side.ep.Cache == nil {
			missing(side.name + ".cache")
		} else {
			if side.ep.Cache.URL == "" {
				missing(side.name + ".cache.url")
			}
			if side.ep.Cache.CGI == "" {
				missing(side.name + ".cache.cgi")
			}
			if side.ep.Cache.Path == "" {
				missing(side.name + ".cache.path")
			} else if err := checkTemplate(side.ep.Cache.Path, cachePathSample); err != nil {
				errs = append(errs, fmt.Sprintf("configuration error: %s.cache.path: %v", side.name, err))
			}
		}
		if side.ep.Profile == "" {
			missing(side.name + ".profile")
		}
		if side.ep.MBS == "" {
			missing(side.name + ".mbs")
		}
	}

	// ── Trigger ───────────────────────────────────────────────────────────

	if c.Trigger == nil {
		missing("trigger")
	} else {
		if c.Trigger.RPMs == "" {
			soft("trigger.rpms")
		}
		if c.Trigger.Modules == "" {
			soft("trigger.modules")
		}
	}

	// ── Build ─────────────────────────────────────────────────────────────

	if c.Build == nil {
		missing("build")
	} else {
		if c.Build.Prefix == "" {
			missing("build.prefix")
		}
		if c.Build.Target == "" {
			missing("build.target")
		}
		if c.Build.Platform == "" {
			missing("build.platform")
		}
		if c.Build.Scratch == nil {
			warnings = append(warnings, "configuration warning: build.scratch not defined, assuming false")
		}
	}

	// ── Git ───────────────────────────────────────────────────────────────

	if c.Git == nil {
		missing("git")
	} else {
		if c.Git.Author == "" {
			missing("git.author")
		}
		if c.Git.Email == "" {
			missing("git.email")
		}
		if c.Git.Message == "" {
			missing("git.message")
		}
	}

	// ── Control ───────────────────────────────────────────────────────────

	if c.Control == nil {
		missing("control")
	} else {
		if c.Control.Build == nil {
			missing("control.build")
		}
		if c.Control.Merge == nil {
			missing("control.merge")
		}
		if c.Control.Strict == nil {
			missing("control.strict")
		}
		if apl := c.Control.AutoPackageList; apl != nil && apl.View == "" {
			missing("control.autopackagelist.view")
		}
	}

	// ── Defaults ──────────────────────────────────────────────────────────

	if c.Defaults == nil {
		missing("defaults")
	} else {
		for _, d := range []struct {
			name string
			pair *TemplatePair
		}{
			{"cache", c.Defaults.Cache},
			{"rpms", c.Defaults.RPMs},
			{"modules", c.Defaults.Modules},
		} {
			if d.pair == nil {
				missing("defaults." + d.name)
				continue
			}
			for _, t := range []struct {
				key, value string
			}{
				{"source", d.pair.Source},
				{"destination", d.pair.Destination},
			} {
				path := "defaults." + d.name + "." + t.key
				if t.value == "" {
					soft(path)
					continue
				}
				if err := checkTemplate(t.value, templateSample); err != nil {
					errs = append(errs, fmt.Sprintf("configuration error: %s: %v", path, err))
				}
			}
		}
	}

	// ── Components ────────────────────────────────────────────────────────

	if doc.Components != nil {
		for name := range doc.Components.RPMs {
			if name == "" {
				errs = append(errs, "configuration error: components.rpms: empty component name")
			}
		}
		for name := range doc.Components.Modules {
			if ParseModule(name).Name == "" {
				errs = append(errs, fmt.Sprintf("configuration error: components.modules: %q has no module name", name))
			}
		}
	}

	if len(errs) > 0 {
		return warnings, fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return warnings, nil
}

func checkTemplate(tmpl string, sample map[string]string) error {
	_, err := Expand(tmpl, sample)
	return err
}
