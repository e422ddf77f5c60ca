// Package config handles configuration loading for taskloom.
// It supports XDG config paths, a working-directory config file, and
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"taskloom/pkg/models"
)

// Config holds all configuration for taskloom.
type Config struct {
	Job   JobConfig   `mapstructure:"job"`
	HTTP  HTTPConfig  `mapstructure:"http"`
	DB    DBConfig    `mapstructure:"db"`
	Spool SpoolConfig `mapstructure:"spool"`
	Log   LogConfig   `mapstructure:"log"`
}

// JobConfig holds the default safety limits applied to jobs that do not
// declare their own. There is one canonical default task cap; every entry
// point (CLI, HTTP, spool) resolves limits through this struct.
type JobConfig struct {
	MaxTasks       int           `mapstructure:"max_tasks"`
	MaxDepth       int           `mapstructure:"max_depth"`
	Timeout        time.Duration `mapstructure:"timeout"`
	AbortOnFailure bool          `mapstructure:"abort_on_failure"`
	Verbose        bool          `mapstructure:"verbose"`
	// AgentPlan and AgentReview are forwarded to handlers untouched.
	AgentPlan   bool `mapstructure:"agent_plan"`
	AgentReview bool `mapstructure:"agent_review"`
}

// HTTPConfig holds settings for the job API server.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// DBConfig holds settings for the SQLite job store.
type DBConfig struct {
	Path string `mapstructure:"path"`
}

// SpoolConfig holds settings for the spool-directory watcher.
type SpoolConfig struct {
	Dir string `mapstructure:"dir"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Debug is the path for the orchestration debug log; empty disables it.
	Debug string `mapstructure:"debug"`
}

// Options converts the configured defaults into job options.
func (jc JobConfig) Options() models.JobOptions {
	return models.JobOptions{
		MaxTasks:       jc.MaxTasks,
		MaxDepth:       jc.MaxDepth,
		Timeout:        jc.Timeout,
		AbortOnFailure: jc.AbortOnFailure,
		Verbose:        jc.Verbose,
		AgentPlan:      jc.AgentPlan,
		AgentReview:    jc.AgentReview,
	}
}

// Load loads configuration with the following precedence (highest first):
// environment variables (TASKLOOM_*), a taskloom.yaml in the current
// directory, the user config (~/.config/taskloom/config.yaml), then
// built-in defaults.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if _, err := os.Stat("taskloom.yaml"); err == nil {
		local := viper.New()
		local.SetConfigFile("taskloom.yaml")
		if err := local.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(local.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging local config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("TASKLOOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("job.max_tasks", models.DefaultMaxTasks)
	v.SetDefault("job.max_depth", models.DefaultMaxDepth)
	v.SetDefault("job.timeout", time.Duration(0))
	v.SetDefault("job.abort_on_failure", false)
	v.SetDefault("job.verbose", false)
	v.SetDefault("job.agent_plan", false)
	v.SetDefault("job.agent_review", false)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("db.path", "taskloom.db")
	v.SetDefault("spool.dir", "spool")
	v.SetDefault("log.debug", "")
}

func userConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "taskloom")
}
