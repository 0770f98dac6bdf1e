package pluginhost

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// ConfiguredPlugin is a plugin entry listed directly in the worker's
// settings file.
type ConfiguredPlugin struct {
	Name    string `yaml:"name" json:"name"`
	Path    string `yaml:"path" json:"path"`
	Enabled *bool  `yaml:"enabled" json:"enabled"`
}

// pluginManifestFile is the on-disk plugin.json format read from a
// discovered plugin directory.
type pluginManifestFile struct {
	Name       string     `json:"name"`
	Version    string     `json:"version"`
	MinVersion string     `json:"minVersion"`
	Entry      string     `json:"entry"`
	Hooks      []HookName `json:"hooks"`
}

// Discover composes the three discovery mechanisms: scanning
// a dependency root for "*-plugin-*" named packages, scanning a user plugin
// directory for sub-directories carrying an entry manifest, and entries
// listed explicitly in configuration. Later sources override earlier ones by
// name. Each returned Manifest defaults Enabled to true.
func Discover(depRoot, userPluginDir string, configured []ConfiguredPlugin) ([]Manifest, error) {
	found := map[string]Manifest{}

	if depRoot != "" {
		if err := scanNamedPattern(depRoot, "*-plugin-*", found); err != nil {
			return nil, err
		}
	}
	if userPluginDir != "" {
		if err := scanNamedPattern(userPluginDir, "*", found); err != nil {
			return nil, err
		}
	}

	for _, c := range configured {
		m := found[c.Name]
		m.Name = c.Name
		if c.Path != "" {
			m.Path = c.Path
		}
		m.Enabled = c.Enabled == nil || *c.Enabled
		found[c.Name] = m
	}

	manifests := make([]Manifest, 0, len(found))
	for _, m := range found {
		manifests = append(manifests, m)
	}
	return manifests, nil
}

// scanNamedPattern walks root's immediate sub-directories matching glob,
// reads each one's plugin.json, and merges the result into found.
func scanNamedPattern(root, glob string, found map[string]Manifest) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if ok, _ := filepath.Match(glob, e.Name()); !ok {
			continue
		}

		dir := filepath.Join(root, e.Name())
		manifestPath := filepath.Join(dir, "plugin.json")
		data, err := os.ReadFile(manifestPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}

		var mf pluginManifestFile
		if err := json.Unmarshal(data, &mf); err != nil {
			continue
		}
		name := mf.Name
		if name == "" {
			name = strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		}
		entry := filepath.Join(dir, mf.Entry)
		found[name] = Manifest{
			Name:       name,
			Version:    mf.Version,
			MinVersion: mf.MinVersion,
			Path:       entry,
			Hooks:      mf.Hooks,
			Enabled:    true,
		}
	}
	return nil
}
