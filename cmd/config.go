package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// fileConfig holds defaults read from --config. Flags given on the command
// line always win.
type fileConfig struct {
	Extension    string        `yaml:"extension"`
	Duration     time.Duration `yaml:"duration"`
	Wait         time.Duration `yaml:"wait"`
	PollInterval time.Duration `yaml:"poll_interval"`
	LogLevel     string        `yaml:"log_level"`
	MetricsAddr  string        `yaml:"metrics_addr"`
}

func loadConfig(path string) (fileConfig, error) {
	var cfg fileConfig

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// applyConfig copies config values into flags the user did not set.
// Flags that the running command does not define are skipped.
func applyConfig(cmd *cobra.Command, cfg fileConfig) {
	setString(cmd, "ext", cfg.Extension)
	setString(cmd, "log-level", cfg.LogLevel)
	setString(cmd, "metrics-addr", cfg.MetricsAddr)
	setDuration(cmd, "for", cfg.Duration)
	setDuration(cmd, "wait", cfg.Wait)
	setDuration(cmd, "poll", cfg.PollInterval)
}

func setString(cmd *cobra.Command, name, value string) {
	if value == "" {
		return
	}
	setFlag(cmd, name, value)
}

func setDuration(cmd *cobra.Command, name string, value time.Duration) {
	if value == 0 {
		return
	}
	setFlag(cmd, name, value.String())
}

func setFlag(cmd *cobra.Command, name, value string) {
	flag := cmd.Flags().Lookup(name)
	if flag == nil || flag.Changed {
		return
	}

	if err := flag.Value.Set(value); err != nil {
		logger.Warn("ignoring config value", "flag", name, "value", value, "error", err)
	}
}
