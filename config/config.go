// The config package holds compld's configuration, read from a YAML
// file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	db "complgate/debug"
	"complgate/gatedev"
)

const (
	DEFAULT_NAME = "completion"
)

type Config struct {
	Name      string `yaml:"name"`      // device name
	Mount     string `yaml:"mount"`     // FUSE mount point; empty means in-process only
	Sharing   string `yaml:"sharing"`   // "global" or "per-open"
	Debug     string `yaml:"debug"`     // debug selectors, e.g., "GATE;WAITQ"
	Jaeger    string `yaml:"jaeger"`    // jaeger agent host; empty disables tracing
	FuseDebug bool   `yaml:"fusedebug"` // log FUSE protocol traffic
}

func Default() *Config {
	return &Config{
		Name:    DEFAULT_NAME,
		Sharing: gatedev.GLOBAL.String(),
	}
}

func (cfg *Config) String() string {
	return fmt.Sprintf("{name %q mount %q sharing %v debug %q jaeger %q}", cfg.Name, cfg.Mount, cfg.Sharing, cfg.Debug, cfg.Jaeger)
}

// Load reads the config in pn on top of the defaults.
func Load(pn string) (*Config, error) {
	cfg := Default()
	file, err := os.Open(pn)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	d := yaml.NewDecoder(file)
	d.KnownFields(true)
	if err := d.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode %v: %w", pn, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db.DPrintf(db.CONFIG, "load %v: %v", pn, cfg)
	return cfg, nil
}

func (cfg *Config) Validate() error {
	if cfg.Name == "" {
		return fmt.Errorf("config: empty device name")
	}
	if _, err := gatedev.ParseSharing(cfg.Sharing); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (cfg *Config) SharingMode() gatedev.Tsharing {
	s, err := gatedev.ParseSharing(cfg.Sharing)
	if err != nil {
		return gatedev.GLOBAL
	}
	return s
}
