package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Log.Level != "info" || cfg.Log.File.Path != "" || cfg.Log.File.MaxSizeMB != 50 {
		t.Error("log defaults: ", cfg.Log)
	}
	if cfg.GLA.StrictFrameIndex || cfg.GLA.UnitScale != 0.0254 {
		t.Error("gla defaults: ", cfg.GLA)
	}
	if cfg.Import.SamplingRate != 0 || cfg.Import.DefaultFPS != 20 {
		t.Error("import defaults: ", cfg.Import)
	}
	if cfg.Retarget.SampleRate != 30 || cfg.Retarget.Workers != 0 {
		t.Error("retarget defaults: ", cfg.Retarget)
	}
	if cfg.Export.Format != "auto" {
		t.Error("export defaults: ", cfg.Export)
	}
	if err := cfg.Validate(); err != nil {
		t.Error(err)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glaconv.yaml")
	yamlContent := `
log:
  level: debug
  file:
    path: /tmp/glaconv.log
    max_backups: 1
gla:
  strict_frame_index: true
retarget:
  workers: 4
export:
  format: glb
`
	if err := os.WriteFile(path, []byte(yamlContent), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.File.Path != "/tmp/glaconv.log" || cfg.Log.File.MaxBackups != 1 {
		t.Error("log: ", cfg.Log)
	}
	// keys missing from the file keep their defaults
	if cfg.Log.File.MaxSizeMB != 50 || cfg.GLA.UnitScale != 0.0254 || cfg.Retarget.SampleRate != 30 {
		t.Error("defaults should survive: ", cfg)
	}
	if !cfg.GLA.StrictFrameIndex || cfg.Retarget.Workers != 4 || cfg.Export.Format != "glb" {
		t.Error("overrides: ", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"format":  "export:\n  format: fbx\n",
		"workers": "retarget:\n  workers: -1\n",
		"scale":   "gla:\n  unit_scale: 0\n",
		"unknown": "gla:\n  strict: true\n",
		"syntax":  "log: [",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected error")
			}
		})
	}
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}
	if cfg, err := Load(""); err != nil || cfg.Import.DefaultFPS != 20 {
		t.Error("empty path should give defaults: ", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Default()
	cfg.Retarget.Workers = 2
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if *loaded != *cfg {
		t.Error("round trip: ", loaded)
	}
}
