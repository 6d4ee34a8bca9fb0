package contentresolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
)

func TestListURL(t *testing.T) {
	got := ListURL("https://tiny.distro.builders/", "buildroot-source", "eln", "x86_64")
	want := "https://tiny.distro.builders/view-buildroot-source-package-name-list--view-eln--x86_64.txt"
	if got != want {
		t.Errorf("ListURL = %q, want %q", got, want)
	}
}

func TestPackages(t *testing.T) {
	lists := map[string]string{
		"/view-source-package-name-list--view-eln--x86_64.txt":           "bash\ngzip\n\n",
		"/view-buildroot-source-package-name-list--view-eln--x86_64.txt": "gcc\nbash\n",
		"/view-source-package-name-list--view-eln--aarch64.txt":          "bash\nuboot-tools\n",
		"/view-buildroot-source-package-name-list--view-eln--aarch64.txt": "  gcc  \n",
	}
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		body, ok := lists[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	}))
	defer srv.Close()

	c := New(5, zerolog.Nop())
	got, err := c.Packages(context.Background(), srv.URL, "eln", []string{"x86_64", "aarch64"}, nil)
	if err != nil {
		t.Fatalf("Packages: %v", err)
	}

	want := []string{"bash", "gcc", "gzip", "uboot-tools"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Packages = %v, want %v", got, want)
	}
	if hits.Load() != 4 {
		t.Errorf("requests = %d, want 4", hits.Load())
	}
}

func TestPackagesFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "s390x") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("bash\n"))
	}))
	defer srv.Close()

	c := New(5, zerolog.Nop())
	_, err := c.Packages(context.Background(), srv.URL, "eln", nil, nil)
	if err == nil {
		t.Fatal("Packages succeeded, want error")
	}
	if !strings.Contains(err.Error(), "status 500") {
		t.Errorf("error = %v, want status 500", err)
	}
}
