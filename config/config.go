// Package config loads glaconv settings from YAML.
package config

import (
	"os"

	"github.com/binzume/glaconv/logger"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Log      LogConfig      `yaml:"log"`
	GLA      GLAConfig      `yaml:"gla"`
	Import   ImportConfig   `yaml:"import"`
	Retarget RetargetConfig `yaml:"retarget"`
	Export   ExportConfig   `yaml:"export"`
}

type LogConfig struct {
	Level string            `yaml:"level"`
	File  logger.FileConfig `yaml:"file"`
}

type GLAConfig struct {
	StrictFrameIndex bool    `yaml:"strict_frame_index"`
	UnitScale        float32 `yaml:"unit_scale"`
}

type ImportConfig struct {
	// SamplingRate is used for clips without fps. 0: DefaultFPS
	SamplingRate float32 `yaml:"sampling_rate"`
	DefaultFPS   float32 `yaml:"default_fps"`
}

type RetargetConfig struct {
	SampleRate float32 `yaml:"sample_rate"`
	Workers    int     `yaml:"workers"`
}

type ExportConfig struct {
	// Format is auto, gltf or glb.
	Format     string  `yaml:"format"`
	SampleRate float32 `yaml:"sample_rate"`
}

func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
			File:  logger.DefaultFileConfig(""),
		},
		GLA: GLAConfig{
			UnitScale: 0.0254,
		},
		Import: ImportConfig{
			DefaultFPS: 20,
		},
		Retarget: RetargetConfig{
			SampleRate: 30,
		},
		Export: ExportConfig{
			Format:     "auto",
			SampleRate: 30,
		},
	}
}

// Load returns the defaults overridden by the YAML file at path. An empty
// path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "loading config from %s", path)
	}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "loading config from %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, path)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.GLA.UnitScale <= 0:
		return errors.Errorf("gla.unit_scale must be positive: %v", c.GLA.UnitScale)
	case c.Import.SamplingRate < 0:
		return errors.Errorf("import.sampling_rate must not be negative: %v", c.Import.SamplingRate)
	case c.Import.DefaultFPS < 0:
		return errors.Errorf("import.default_fps must not be negative: %v", c.Import.DefaultFPS)
	case c.Retarget.SampleRate < 0:
		return errors.Errorf("retarget.sample_rate must not be negative: %v", c.Retarget.SampleRate)
	case c.Retarget.Workers < 0:
		return errors.Errorf("retarget.workers must not be negative: %d", c.Retarget.Workers)
	case c.Export.SampleRate < 0:
		return errors.Errorf("export.sample_rate must not be negative: %v", c.Export.SampleRate)
	}
	switch c.Export.Format {
	case "auto", "gltf", "glb":
	default:
		return errors.Errorf("unknown export.format %q", c.Export.Format)
	}
	return nil
}

// Save writes c as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
