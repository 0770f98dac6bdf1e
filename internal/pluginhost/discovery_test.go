package pluginhost

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, name string, mf pluginManifestFile) {
	t.Helper()
	pluginDir := filepath.Join(dir, name)
	if err := os.MkdirAll(pluginDir, 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	data := []byte(`{"name":"` + mf.Name + `","version":"` + mf.Version + `","entry":"` + mf.Entry + `"}`)
	if err := os.WriteFile(filepath.Join(pluginDir, "plugin.json"), data, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func TestDiscoverFindsDependencyRootPlugins(t *testing.T) {
	depRoot := t.TempDir()
	writeManifest(t, depRoot, "github-plugin-linker", pluginManifestFile{
		Name: "github-linker", Version: "1.0.0", Entry: "run.sh",
	})

	manifests, err := Discover(depRoot, "", nil)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(manifests) != 1 {
		t.Fatalf("expected 1 discovered manifest, got %d", len(manifests))
	}
	if manifests[0].Name != "github-linker" {
		t.Errorf("expected name github-linker, got %s", manifests[0].Name)
	}
	if !manifests[0].Enabled {
		t.Error("expected discovered plugins to default to enabled")
	}
}

func TestDiscoverIgnoresNonMatchingDependencyDirs(t *testing.T) {
	depRoot := t.TempDir()
	writeManifest(t, depRoot, "unrelated-package", pluginManifestFile{
		Name: "unrelated", Version: "1.0.0", Entry: "run.sh",
	})

	manifests, err := Discover(depRoot, "", nil)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(manifests) != 0 {
		t.Fatalf("expected non-matching directory to be ignored, got %d manifests", len(manifests))
	}
}

func TestDiscoverMergesConfiguredEntries(t *testing.T) {
	userDir := t.TempDir()
	writeManifest(t, userDir, "notes", pluginManifestFile{
		Name: "notes", Version: "1.0.0", Entry: "run.sh",
	})

	enabled := false
	manifests, err := Discover("", userDir, []ConfiguredPlugin{
		{Name: "notes", Enabled: &enabled},
		{Name: "external-only", Path: "/opt/plugins/external/run.sh"},
	})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	byName := map[string]Manifest{}
	for _, m := range manifests {
		byName[m.Name] = m
	}
	if byName["notes"].Enabled {
		t.Error("expected configuration to disable the discovered 'notes' plugin")
	}
	ext, ok := byName["external-only"]
	if !ok || ext.Path != "/opt/plugins/external/run.sh" {
		t.Errorf("expected a purely configured entry to appear with its configured path, got %+v", ext)
	}
}
