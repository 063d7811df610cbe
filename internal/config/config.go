// Package config loads and persists pueued's process-wide settings from an
// INI file with two sections, `default` and `log` (spec §3/§4.2).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Defaults mirror the original daemon's: start paused until resumed
// explicitly, pause the whole queue on the first failing command, keep
// rotated logs for a week.
const (
	DefaultMaxProcesses     = 1
	DefaultStopAtError      = true
	DefaultResumeAfterStart = false
	DefaultLogTime          = 7 * 24 * 3600
)

// Config is a typed view over the persisted `pueue.ini` options.
type Config struct {
	MaxProcesses     int  `json:"maxProcesses"`
	StopAtError      bool `json:"stopAtError"`
	ResumeAfterStart bool `json:"resumeAfterStart"`
	LogTime          int  `json:"logTime"`

	path string
}

// recognizedOptions maps the `config` request's `option` field to the
// section it lives in, for validation and for writing the file back out
// in the same two-section shape it was read from.
var recognizedOptions = map[string]string{
	"maxProcesses":     "default",
	"stopAtError":      "default",
	"resumeAfterStart": "default",
	"logTime":          "log",
}

// Load reads path, or writes and returns defaults if it is missing or
// unparseable (spec §4.2: "On missing/unparseable file, defaults are
// written").
func Load(path string) (*Config, error) {
	cfg := &Config{
		MaxProcesses:     DefaultMaxProcesses,
		StopAtError:      DefaultStopAtError,
		ResumeAfterStart: DefaultResumeAfterStart,
		LogTime:          DefaultLogTime,
		path:             path,
	}

	if _, err := os.Stat(path); err != nil {
		if err := cfg.Save(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("ini")
	if err := v.ReadInConfig(); err != nil {
		// Unparseable: delete and fall back to defaults.
		os.Remove(path)
		if err := cfg.Save(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	cfg.MaxProcesses = v.GetInt("default.maxprocesses")
	cfg.StopAtError = v.GetBool("default.stopaterror")
	cfg.ResumeAfterStart = v.GetBool("default.resumeafterstart")
	cfg.LogTime = v.GetInt("log.logtime")

	if cfg.MaxProcesses <= 0 {
		cfg.MaxProcesses = DefaultMaxProcesses
	}
	if cfg.LogTime <= 0 {
		cfg.LogTime = DefaultLogTime
	}

	return cfg, nil
}

// Save writes the config back out as two-section INI, atomically.
func (c *Config) Save() error {
	body := fmt.Sprintf(
		"[default]\nmaxProcesses = %d\nstopAtError = %t\nresumeAfterStart = %t\n\n[log]\nlogTime = %d\n",
		c.MaxProcesses, c.StopAtError, c.ResumeAfterStart, c.LogTime,
	)

	dir := filepath.Dir(c.path)
	tmp, err := os.CreateTemp(dir, ".pueue-*.ini.tmp")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(body); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		return fmt.Errorf("rename temp config file: %w", err)
	}
	return nil
}

// Update applies a single `config option value` request. It validates the
// option name, parses value against the option's type, and persists. A new
// MaxProcesses takes effect through the caller reading c.MaxProcesses.
func (c *Config) Update(option, value string) error {
	if _, ok := recognizedOptions[option]; !ok {
		return fmt.Errorf("unknown config option %q", option)
	}

	switch option {
	case "maxProcesses":
		n, err := parseInt(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("maxProcesses must be a positive integer")
		}
		c.MaxProcesses = n
	case "stopAtError":
		b, err := parseBool(value)
		if err != nil {
			return err
		}
		c.StopAtError = b
	case "resumeAfterStart":
		b, err := parseBool(value)
		if err != nil {
			return err
		}
		c.ResumeAfterStart = b
	case "logTime":
		n, err := parseInt(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("logTime must be a positive integer")
		}
		c.LogTime = n
	}

	return c.Save()
}

func parseInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

func parseBool(s string) (bool, error) {
	switch s {
	case "true", "1", "yes", "True":
		return true, nil
	case "false", "0", "no", "False":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value %q", s)
	}
}
