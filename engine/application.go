package engine

import (
	"errors"
	"os"

	"github.com/spaghettifunk/magma/engine/config"
	"github.com/spaghettifunk/magma/engine/core"
)

type ApplicationConfig struct {
	// The engine settings file. A missing file means defaults.
	ConfigPath string
	// Applied after the file is read, for settings a game forces.
	Override func(cfg *config.EngineConfig)
}

func (a *ApplicationConfig) load() (*config.EngineConfig, error) {
	var cfg *config.EngineConfig
	if a.ConfigPath == "" {
		cfg = config.Default()
	} else {
		loaded, err := config.Load(a.ConfigPath)
		switch {
		case err == nil:
			cfg = loaded
		case errors.Is(err, os.ErrNotExist):
			core.LogWarn("settings file %s not found, using defaults", a.ConfigPath)
			cfg = config.Default()
		default:
			return nil, err
		}
	}
	if a.Override != nil {
		a.Override(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
