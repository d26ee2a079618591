package config

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/rxtech-lab/argo-trading/pkg/errors"
)

// ProcessConfig is the process-wide settings file (strateq.toml):
// deploy specs stay in YAML (per-strategy, structured, validated), while
// this smaller cross-cutting settings surface uses TOML, mirroring
// turbo2025-xarb's own split between a TOML process config and its
// per-exchange files.
type ProcessConfig struct {
	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`

	HTTP struct {
		ListenAddr string `toml:"listen_addr"`
	} `toml:"http"`

	Metrics struct {
		Enabled    bool   `toml:"enabled"`
		ListenAddr string `toml:"listen_addr"`
	} `toml:"metrics"`

	CredentialsPath string `toml:"credentials_path"`
	StrategiesDir   string `toml:"strategies_dir"`

	DataProviders map[string]struct {
		WsURL string `toml:"ws_url"`
	} `toml:"data_providers"`
}

// DefaultProcessConfig returns the settings used when no strateq.toml is
// present.
func DefaultProcessConfig() ProcessConfig {
	var cfg ProcessConfig
	cfg.Log.Level = "info"
	cfg.HTTP.ListenAddr = ":8080"
	cfg.Metrics.Enabled = true
	cfg.Metrics.ListenAddr = ":9090"
	cfg.CredentialsPath = "credentials.yaml"
	cfg.StrategiesDir = "strategies"

	return cfg
}

// LoadProcessConfig reads strateq.toml at path, falling back to
// DefaultProcessConfig for any field left unset in the file. A missing
// file is not an error: the daemon runs on defaults until one is added.
func LoadProcessConfig(path string) (ProcessConfig, error) {
	cfg := DefaultProcessConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return ProcessConfig{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "loading process config %s", path)
	}

	return cfg, nil
}
