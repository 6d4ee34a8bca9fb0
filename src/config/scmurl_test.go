package config

import "testing"

func TestParseSCMURL(t *testing.T) {
	tests := []struct {
		url  string
		want SCMURL
	}{
		{"", SCMURL{}},
		{"https://example.com/distrobuildsync.git#prod", SCMURL{
			Link:      "https://example.com/distrobuildsync.git",
			Ref:       "prod",
			Namespace: "example.com",
			Component: "distrobuildsync.git",
		}},
		{"conf", SCMURL{Link: "conf", Component: "conf"}},
		{"/tmp/conf#testbranch", SCMURL{
			Link:      "/tmp/conf",
			Ref:       "testbranch",
			Namespace: "tmp",
			Component: "conf",
		}},
		{"https://src.fedoraproject.org/rpms/gzip.git#rawhide", SCMURL{
			Link:      "https://src.fedoraproject.org/rpms/gzip.git",
			Ref:       "rawhide",
			Namespace: "rpms",
			Component: "gzip.git",
		}},
		{"git+https://src.example.com/rpms/bash#abc#def", SCMURL{
			Link:      "git+https://src.example.com/rpms/bash",
			Ref:       "abc#def",
			Namespace: "rpms",
			Component: "bash",
		}},
	}

	for _, tt := range tests {
		if got := ParseSCMURL(tt.url); got != tt.want {
			t.Errorf("ParseSCMURL(%q) = %+v, want %+v", tt.url, got, tt.want)
		}
	}
}

func TestSCMURLString(t *testing.T) {
	for _, u := range []string{"conf", "/tmp/conf#main", "https://example.com/a/b.git#f33"} {
		if got := ParseSCMURL(u).String(); got != u {
			t.Errorf("String() = %q, want %q", got, u)
		}
	}
}

func TestParseModule(t *testing.T) {
	tests := []struct {
		comp string
		want Module
	}{
		{"", Module{Name: "", Stream: "master"}},
		{":", Module{Name: "", Stream: "master"}},
		{"name", Module{Name: "name", Stream: "master"}},
		{"name:stream", Module{Name: "name", Stream: "stream"}},
		{":stream", Module{Name: "", Stream: "stream"}},
		{"name:stream:version:context", Module{Name: "name", Stream: "stream"}},
	}

	for _, tt := range tests {
		if got := ParseModule(tt.comp); got != tt.want {
			t.Errorf("ParseModule(%q) = %+v, want %+v", tt.comp, got, tt.want)
		}
	}
}
