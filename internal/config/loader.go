package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix for every setting.
const envPrefix = "PRIORART"

// newViper builds a Viper instance with YAML file type, PRIORART_ env prefix
// and a "." → "_" key replacer, so "milvus.addr" resolves to
// PRIORART_MILVUS_ADDR.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnvKeys(v, reflect.TypeOf(Config{}), "")
	return v
}

// bindEnvKeys registers every leaf key of t with viper. AutomaticEnv alone
// only resolves keys viper already knows, so Unmarshal would otherwise miss
// settings that appear in the environment but not in a file.
func bindEnvKeys(v *viper.Viper, t reflect.Type, prefix string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		if f.Type.Kind() == reflect.Struct {
			bindEnvKeys(v, f.Type, key)
			continue
		}
		_ = v.BindEnv(key)
	}
}

// Load reads the YAML file at configPath, merges PRIORART_* environment
// overrides, applies defaults and validates the result.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config from PRIORART_* environment variables alone.
//
//	PRIORART_<SECTION>_<FIELD>   e.g.  PRIORART_MILVUS_ADDR, PRIORART_PIPELINE_TOP_N
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	ApplyDefaults(cfg)
	// ApplyDefaults cannot tell an explicit 0 from an absent key.
	if v.IsSet("pipeline.match_threshold") {
		cfg.Pipeline.MatchThreshold = v.GetInt("pipeline.match_threshold")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// Watch re-parses configPath whenever it changes on disk and hands the new
// Config to onChange. Invalid revisions are reported to onError (if set) and
// otherwise ignored. Only settings that are safe to change at runtime, such
// as the log level, should be applied by the callback.
func Watch(configPath string, onChange func(*Config), onError func(error)) {
	v := newViper()
	v.SetConfigFile(configPath)
	_ = v.ReadInConfig()

	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}
