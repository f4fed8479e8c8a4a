package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"adapterd/internal/common/fsutil"
	"adapterd/pkg/types"
)

// LoadDir scans a directory for adapter manifest files (*.yaml, *.yml,
// *.json) and parses each into a descriptor. The manifest's artifact_path is
// resolved relative to the manifest directory when not absolute.
func LoadDir(dir string) ([]types.AdapterDescriptor, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var out []types.AdapterDescriptor
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}
		p := filepath.Join(abs, name)
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read manifest %s: %w", name, err)
		}
		var d types.AdapterDescriptor
		if ext == ".json" {
			err = json.Unmarshal(b, &d)
		} else {
			err = yaml.Unmarshal(b, &d)
		}
		if err != nil {
			return nil, fmt.Errorf("parse manifest %s: %w", name, err)
		}
		if d.ArtifactPath != "" && !filepath.IsAbs(d.ArtifactPath) {
			d.ArtifactPath = filepath.Join(abs, d.ArtifactPath)
		}
		out = append(out, d)
	}
	return out, nil
}
