// Package factorydefaults loads the registration-domain defaults shipped with
// the build, optionally patched from an override directory.
package factorydefaults

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/park285/goban-state/internal/prefs"
	yaml "gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultFiles embed.FS

type Defaults struct {
	data prefs.Dict
}

// Load reads the embedded defaults and applies overrideDir, if set. Override
// files are applied in name order; the same key path in two files is an error.
func Load(overrideDir string) (*Defaults, error) {
	raw, err := fs.ReadFile(defaultFiles, "defaults.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded defaults: %w", err)
	}
	base, err := parseYAML(raw)
	if err != nil {
		return nil, fmt.Errorf("parse embedded defaults: %w", err)
	}
	d := &Defaults{data: base}
	if strings.TrimSpace(overrideDir) != "" {
		if err := d.applyDir(overrideDir); err != nil {
			return nil, err
		}
	}
	if _, ok := d.data.Int(prefs.VersionKey); !ok {
		return nil, fmt.Errorf("factory defaults: %s missing or not a number", prefs.VersionKey)
	}
	return d, nil
}

func (d *Defaults) applyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read override dir: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	seen := make(map[string]string) // key path -> file
	for _, name := range files {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		patch, err := parseYAML(b)
		if err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		for _, k := range leafPaths(patch, "") {
			if prev, ok := seen[k]; ok {
				return fmt.Errorf("duplicate override key %q in %s and %s", k, prev, name)
			}
			seen[k] = name
		}
		d.data = prefs.DeepMerge(patch, d.data)
	}
	return nil
}

func parseYAML(b []byte) (prefs.Dict, error) {
	var m map[string]any
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	return prefs.Dict(m), nil
}

// leafPaths lists dot-joined paths to every non-dictionary value.
func leafPaths(d prefs.Dict, prefix string) []string {
	var out []string
	for k, v := range d {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := prefs.AsDict(v); ok {
			out = append(out, leafPaths(sub, key)...)
			continue
		}
		out = append(out, key)
	}
	return out
}

// Dict returns a copy of the defaults.
func (d *Defaults) Dict() prefs.Dict { return d.data.Clone() }

// Version is the preferences format version the defaults describe.
func (d *Defaults) Version() int {
	v, _ := d.data.Int(prefs.VersionKey)
	return v
}

// YAML renders the effective defaults.
func (d *Defaults) YAML() ([]byte, error) {
	return yaml.Marshal(map[string]any(d.data))
}
