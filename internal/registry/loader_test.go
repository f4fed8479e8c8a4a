package registry

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDirParsesManifests(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"walmart.yaml": "id: grocery-walmart-v2\ntype: retailer\nversion: 2.1.0\ntags: [walmart]\nartifact_path: weights/walmart.bin\n",
		"copy.json":    `{"id":"copy-gen-v1","type":"task","version":"1.0.0","tags":["copy_generation"]}`,
		"notes.txt":    "ignored",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	descs, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	if len(descs) != 2 {
		t.Fatalf("expected 2 manifests, got %d", len(descs))
	}
	byID := map[string]int{}
	for i, d := range descs {
		byID[d.ID] = i
	}
	w := descs[byID["grocery-walmart-v2"]]
	if !filepath.IsAbs(w.ArtifactPath) || filepath.Base(w.ArtifactPath) != "walmart.bin" {
		t.Fatalf("artifact path not resolved: %s", w.ArtifactPath)
	}
	c := descs[byID["copy-gen-v1"]]
	if c.Version != "1.0.0" || !c.HasTag("copy_generation") {
		t.Fatalf("unexpected descriptor: %+v", c)
	}
}

func TestLoadDirRejectsBadManifest(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(":\n:::"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadDir(dir); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadDirMissingDir(t *testing.T) {
	if _, err := LoadDir(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing dir")
	}
}
