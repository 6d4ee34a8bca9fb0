package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func loadTestdata(t *testing.T, name string) (*Config, []string, error) {
	t.Helper()
	return Load(filepath.Join("testdata", name))
}

func TestLoad(t *testing.T) {
	cfg, warnings, err := loadTestdata(t, "distrobaker.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v, want none", warnings)
	}

	checks := map[string]string{
		"source.scm":          cfg.Source.SCM,
		"source.cache.url":    cfg.Source.Cache.URL,
		"source.cache.cgi":    cfg.Source.Cache.CGI,
		"source.cache.path":   cfg.Source.Cache.Path,
		"source.profile":      cfg.Source.Profile,
		"source.mbs":          cfg.Source.MBS,
		"destination.scm":     cfg.Destination.SCM,
		"destination.profile": cfg.Destination.Profile,
		"trigger.rpms":        cfg.Trigger.RPMs,
		"trigger.modules":     cfg.Trigger.Modules,
		"build.prefix":        cfg.Build.Prefix,
		"build.target":        cfg.Build.Target,
		"build.platform":      cfg.Build.Platform,
		"git.author":          cfg.Git.Author,
		"git.email":           cfg.Git.Email,
		"git.message":         cfg.Git.Message,
	}
	for field, v := range checks {
		if v == "" {
			t.Errorf("%s is empty", field)
		}
	}

	if cfg.Source.Profile != "koji" || cfg.Destination.Profile != "fluff" {
		t.Errorf("profiles = %q/%q, want koji/fluff", cfg.Source.Profile, cfg.Destination.Profile)
	}
	if !cfg.Build.IsScratch() {
		t.Error("build.scratch = false, want true")
	}
	if !cfg.Control.BuildEnabled() || cfg.Control.Merge == nil || !*cfg.Control.Merge || !cfg.Control.IsStrict() {
		t.Errorf("control toggles = %+v, want all true", cfg.Control)
	}
	if !strings.HasPrefix(cfg.Git.Message, "Merged update from upstream sources\n") {
		t.Errorf("git.message = %q", cfg.Git.Message)
	}
	if cfg.Control.AutoPackageList != nil {
		t.Errorf("autopackagelist = %+v, want nil", cfg.Control.AutoPackageList)
	}
}

func TestLoadMissingSection(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		wantErr string
	}{
		{"no configuration", "distrobaker-no-configuration.yaml", "configuration block is missing"},
		{"no trigger", "distrobaker-no-trigger.yaml", "trigger missing"},
		{"no source profile", "distrobaker-no-source-profile.yaml", "source.profile missing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, _, err := loadTestdata(t, tt.file)
			if err == nil {
				t.Fatalf("Load succeeded with %+v, want error", cfg)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseMissingFields(t *testing.T) {
	base, err := os.ReadFile(filepath.Join("testdata", "distrobaker.yaml"))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		remove  string
		wantErr string
	}{
		{"scm", "    scm: ssh://pkgs.example.com/\n", "destination.scm missing"},
		{"cache cgi", "      cgi: https://pkgs.example.com/lookaside/upload.cgi\n", "destination.cache.cgi missing"},
		{"build target", "    target: fluff-42.0.0-alpha-candidate\n", "build.target missing"},
		{"git email", "    email: distrobaker@example.com\n", "git.email missing"},
		{"control strict", "    strict: true\n", "control.strict missing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := strings.Replace(string(base), tt.remove, "", 1)
			if data == string(base) {
				t.Fatalf("fixture does not contain %q", tt.remove)
			}
			_, _, err := Parse([]byte(data))
			if err == nil {
				t.Fatal("Parse succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseSoftMissingFields(t *testing.T) {
	base, err := os.ReadFile(filepath.Join("testdata", "distrobaker.yaml"))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name        string
		remove      string
		wantWarning string
	}{
		{"trigger modules", "    modules: f33-modular-updates\n", "trigger.modules missing"},
		{"defaults rpms destination", "      destination: \"%(component)s.git#fluff-42.0.0-alpha\"\n", "defaults.rpms.destination missing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := strings.Replace(string(base), tt.remove, "", 1)
			if data == string(base) {
				t.Fatalf("fixture does not contain %q", tt.remove)
			}
			cfg, warnings, err := Parse([]byte(data))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if cfg == nil {
				t.Fatal("Parse returned no configuration")
			}
			found := false
			for _, w := range warnings {
				if strings.Contains(w, tt.wantWarning) {
					found = true
				}
			}
			if !found {
				t.Errorf("warnings = %q, want one containing %q", warnings, tt.wantWarning)
			}
		})
	}
}

func TestParseDeterministicError(t *testing.T) {
	data := []byte("configuration:\n  git:\n    author: a\n")
	_, _, first := Parse(data)
	if first == nil {
		t.Fatal("Parse succeeded, want error")
	}
	for i := 0; i < 5; i++ {
		_, _, err := Parse(data)
		if err == nil || err.Error() != first.Error() {
			t.Fatalf("run %d: error = %v, want %v", i, err, first)
		}
	}
}

func TestParseScratchDefault(t *testing.T) {
	base, err := os.ReadFile(filepath.Join("testdata", "distrobaker.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	data := strings.Replace(string(base), "    scratch: true\n", "", 1)

	cfg, warnings, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Build.IsScratch() {
		t.Error("build.scratch = true, want false")
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "build.scratch not defined") {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestParseUnknownPlaceholder(t *testing.T) {
	base, err := os.ReadFile(filepath.Join("testdata", "distrobaker.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	data := strings.Replace(string(base), `"%(component)s.git#f33"`, `"%(package)s.git#f33"`, 1)

	_, _, err = Parse([]byte(data))
	if err == nil {
		t.Fatal("Parse succeeded, want error")
	}
	if !strings.Contains(err.Error(), "defaults.rpms.source") || !strings.Contains(err.Error(), "%(package)s") {
		t.Errorf("error = %q", err)
	}
}

func TestAutoPackageListDefaults(t *testing.T) {
	base, err := os.ReadFile(filepath.Join("testdata", "distrobaker.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	data := strings.Replace(string(base), "    strict: true\n", "    strict: true\n    autopackagelist:\n      view: eln\n", 1)

	cfg, _, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	apl := cfg.Control.AutoPackageList
	if apl == nil {
		t.Fatal("autopackagelist = nil")
	}
	if apl.ContentResolver != DefaultContentResolver || apl.View != "eln" {
		t.Errorf("autopackagelist = %+v", apl)
	}
	if urls := cfg.URLs(); urls[len(urls)-1] != DefaultContentResolver {
		t.Errorf("URLs() = %v, want content resolver last", urls)
	}
}

func TestExcluded(t *testing.T) {
	cfg, _, err := loadTestdata(t, "distrobaker.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		ns   Namespace
		name string
		want bool
	}{
		{RPMs, "kernel", true},
		{RPMs, "shim", true},
		{RPMs, "Kernel", false},
		{RPMs, "kernel-headers", false},
		{RPMs, "kerne", false},
		{RPMs, " kernel", false},
		{Modules, "perl-bootstrap:5.30", true},
		{Modules, "perl-bootstrap", false},
		{Modules, "kernel", false},
		{Namespace("containers"), "kernel", false},
	}
	for _, tt := range tests {
		if got := cfg.Control.Excluded(tt.ns, tt.name); got != tt.want {
			t.Errorf("Excluded(%s, %q) = %v, want %v", tt.ns, tt.name, got, tt.want)
		}
	}
}

func TestCacheObjectURL(t *testing.T) {
	cfg, _, err := loadTestdata(t, "distrobaker.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	got, err := cfg.Source.Cache.ObjectURL("gzip", "gzip-1.10.tar.xz", "sha512", "abc123")
	if err != nil {
		t.Fatalf("ObjectURL: %v", err)
	}
	want := "https://src.fedoraproject.org/repo/pkgs/gzip/gzip-1.10.tar.xz/sha512/abc123/gzip-1.10.tar.xz"
	if got != want {
		t.Errorf("ObjectURL = %q, want %q", got, want)
	}
}
