package repo

import (
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestConfig_RoundTrip(t *testing.T) {
	r, _ := initRepo(t)

	cfg, err := r.ReadConfig()
	if err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}
	if cfg.Core.Bare || cfg.Core.DefaultBranch != "main" {
		t.Fatalf("core = %+v", cfg.Core)
	}

	if err := r.SetRemote("origin", "git://localhost:9418/project"); err != nil {
		t.Fatalf("SetRemote: %v", err)
	}
	url, err := r.RemoteURL("origin")
	if err != nil {
		t.Fatalf("RemoteURL: %v", err)
	}
	if url != "git://localhost:9418/project" {
		t.Fatalf("RemoteURL = %q", url)
	}
	if _, err := r.RemoteURL("upstream"); err == nil {
		t.Fatal("RemoteURL for an unknown remote succeeded")
	}

	raw, err := os.ReadFile(r.configPath())
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"[core]", "default_branch = \"main\"", "[remotes.origin]"} {
		if !strings.Contains(string(raw), want) {
			t.Errorf("config.toml missing %q:\n%s", want, raw)
		}
	}

	reread, err := r.ReadConfig()
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]RemoteConfig{"origin": {URL: "git://localhost:9418/project"}}
	if diff := cmp.Diff(want, reread.Remotes); diff != "" {
		t.Fatalf("remotes (-want +got):\n%s", diff)
	}
}

func TestConfig_RejectsBadToml(t *testing.T) {
	r, _ := initRepo(t)
	if err := os.WriteFile(r.configPath(), []byte("[core\nbare = "), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := r.ReadConfig(); err == nil {
		t.Fatal("ReadConfig accepted malformed TOML")
	}
}
