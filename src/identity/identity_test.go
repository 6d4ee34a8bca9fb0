package identity

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderPasswd(t *testing.T) {
	id := Identity{UID: 1000680000, GID: 0, Home: "/opt/app-root/src"}

	tests := []struct {
		name string
		tmpl string
		want string
	}{
		{"default", DefaultPasswdTemplate, "distrobaker:x:1000680000:0:DistroBaker:/opt/app-root/src:/bin/bash\n"},
		{"unknown variable kept", "${USER_ID}:${SHELL}", "1000680000:${SHELL}"},
		{"no variables", "root:x:0:0::/root:/bin/sh", "root:x:0:0::/root:/bin/sh"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderPasswd(tt.tmpl, id); got != tt.want {
				t.Errorf("RenderPasswd = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWritePasswdAndEnv(t *testing.T) {
	dir := t.TempDir()
	id := Identity{UID: 1001, GID: 1001, Home: "/home/bot"}

	path, err := WritePasswd(dir, DefaultPasswdTemplate, id)
	if err != nil {
		t.Fatalf("WritePasswd: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "distrobaker:x:1001:1001:") {
		t.Errorf("passwd = %q", data)
	}

	env := strings.Join(Env(id, path), "\n")
	for _, want := range []string{"NSS_WRAPPER_PASSWD=" + path, "LD_PRELOAD=libnss_wrapper.so", "HOME=/home/bot"} {
		if !strings.Contains(env, want) {
			t.Errorf("env missing %q:\n%s", want, env)
		}
	}
}

func TestPrepareSSH(t *testing.T) {
	home := t.TempDir()
	key := "pkgs.example.com ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIExample"

	for i := 0; i < 2; i++ {
		if err := PrepareSSH(home, "pkgs.example.com", key); err != nil {
			t.Fatalf("PrepareSSH: %v", err)
		}
	}

	info, err := os.Stat(filepath.Join(home, ".ssh"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o700 {
		t.Errorf(".ssh mode = %v", info.Mode().Perm())
	}

	cfg, _ := os.ReadFile(filepath.Join(home, ".ssh", "config"))
	if !strings.Contains(string(cfg), "Host pkgs.example.com") || !strings.Contains(string(cfg), "StrictHostKeyChecking yes") {
		t.Errorf("config = %q", cfg)
	}

	known, _ := os.ReadFile(filepath.Join(home, ".ssh", "known_hosts"))
	if strings.Count(string(known), key) != 1 {
		t.Errorf("known_hosts = %q, want the key once", known)
	}
	kinfo, _ := os.Stat(filepath.Join(home, ".ssh", "known_hosts"))
	if kinfo.Mode().Perm() != 0o600 {
		t.Errorf("known_hosts mode = %v", kinfo.Mode().Perm())
	}
}
