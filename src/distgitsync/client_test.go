package distgitsync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSync(t *testing.T) {
	var got syncRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/sync" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Write([]byte(`{"status": "synced", "ref": "abc123"}`))
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	res, err := c.Sync(context.Background(), "rpms", "gzip")
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if got.Namespace != "rpms" || got.Component != "gzip" {
		t.Errorf("request body = %+v", got)
	}
	if res.Status != "synced" || res.Ref != "abc123" {
		t.Errorf("result = %+v", res)
	}
}

func TestTriggerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown component", http.StatusNotFound)
	}))
	defer srv.Close()

	err := New(srv.URL).Trigger(context.Background(), "rpms", "nope")
	if err == nil || !strings.Contains(err.Error(), "404 unknown component") {
		t.Errorf("Trigger error = %v", err)
	}
}
