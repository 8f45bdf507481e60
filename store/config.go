package store

import (
	"os"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

const configFile = "config.yaml"

// Config is persisted next to the records so a store can be reopened
// without repeating the setup parameters. The encryption flag is a marker
// only; the passphrase is never written to disk.
type Config struct {
	Dimension  int  `yaml:"dimension"`
	Encrypted  bool `yaml:"encrypted"`
	SoftDelete bool `yaml:"soft_delete"`
}

func DefaultConfig() Config {
	return Config{SoftDelete: true}
}

func loadConfig(fs billy.Filesystem) (Config, bool, error) {
	data, err := util.ReadFile(fs, configFile)
	if os.IsNotExist(err) {
		return DefaultConfig(), false, nil
	}
	if err != nil {
		return Config{}, false, goerr.Wrap(err, "read store config")
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, false, goerr.Wrap(err, "parse store config")
	}
	return cfg, true, nil
}

func saveConfig(fs billy.Filesystem, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return goerr.Wrap(err, "marshal store config")
	}
	if err := util.WriteFile(fs, configFile, data, 0o644); err != nil {
		return goerr.Wrap(err, "write store config")
	}
	return nil
}
