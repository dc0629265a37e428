package config

import (
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/turtacn/PII-Anonymizer/pkg/errors"
)

const envPrefix = "PIIANON"

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setViperDefaults(v)
	return v
}

// Load reads the YAML file at configPath, overlays PIIANON_* environment
// variables, applies defaults and validates the result.  An empty path loads
// defaults and environment only.
func Load(configPath string) (*Config, error) {
	v := newViper()
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, errors.CodeConfigLoad, "read %q", configPath)
		}
	}
	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config from defaults and environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.CodeConfigLoad, "unmarshal")
	}
	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch reloads the file whenever it changes.  Valid configurations are handed
// to onChange; invalid ones go to onError and the previous config stays live.
func Watch(configPath string, onChange func(*Config), onError func(error)) error {
	v := newViper()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, errors.CodeConfigLoad, "read %q", configPath)
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		if onChange != nil {
			onChange(cfg)
		}
	})
	v.WatchConfig()
	return nil
}

// MustLoad is Load that panics on error; for use in main.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	return cfg
}

//Personal.AI order the ending
