package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFile is the optional per-project configuration inside the system
// directory.
const ConfigFile = "config.yaml"

// FileConfig is the content of .brewing/config.yaml. Zero values mean
// "not set".
type FileConfig struct {
	Adapter     string   `yaml:"adapter,omitempty"`
	APIURL      string   `yaml:"api_url,omitempty"`
	Debounce    Duration `yaml:"debounce,omitempty"`
	EventBuffer int      `yaml:"event_buffer,omitempty"`
	Versioned   *bool    `yaml:"versioned,omitempty"`
}

// Duration is a time.Duration read from YAML as "750ms" or as a number of
// milliseconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var ms int64
	if err := value.Decode(&ms); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// LoadConfig reads the config file of the project at root. A missing file
// yields a zero FileConfig.
func LoadConfig(root, systemDir string) (FileConfig, error) {
	var cfg FileConfig
	data, err := os.ReadFile(configPath(root, systemDir))
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("invalid %s: %w", ConfigFile, err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to the project at root.
func SaveConfig(root, systemDir string, cfg FileConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	path := configPath(root, systemDir)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func configPath(root, systemDir string) string {
	return filepath.Join(root, systemDir, ConfigFile)
}

// apply fills the settings that were not passed as options.
func (c FileConfig) apply(o *options) {
	if c.Adapter != "" && !o.explicit["adapter"] {
		o.adapter = c.Adapter
	}
	if c.APIURL != "" && !o.explicit["api_url"] {
		o.apiURL = c.APIURL
	}
	if c.Debounce > 0 && !o.explicit["debounce"] {
		o.debounce = time.Duration(c.Debounce)
	}
	if c.EventBuffer > 0 && !o.explicit["event_buffer"] {
		o.eventBuffer = c.EventBuffer
	}
	if c.Versioned != nil && !o.explicit["versioned"] {
		o.versioned = c.Versioned
	}
}
