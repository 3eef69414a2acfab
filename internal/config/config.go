// Package config loads the patchd configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds every knob patchd exposes. All host adapters receive it
// explicitly; nothing reads it from package-level state.
type Config struct {
	Workspace struct {
		Root string `yaml:"root"`
	} `yaml:"workspace"`

	Data struct {
		// Dir holds the backup blobs, the backup index and the audit
		// database. Defaults to <workspace root>/.patchd.
		Dir string `yaml:"dir"`
	} `yaml:"data"`

	Server struct {
		// ListenAddr for the local bridge. Loopback only; the bridge is not
		// meant to be reachable off-machine.
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"server"`

	Log struct {
		Path        string `yaml:"path"` // empty disables logging
		Development bool   `yaml:"development"`
	} `yaml:"log"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.ListenAddr = "127.0.0.1:3010"
	cfg.Log.Path = "patchd.log"
	return cfg
}

// Load reads a YAML config file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Finalize resolves paths and fills derived defaults. Configs built in code
// (flags, tests) call it directly.
func (c *Config) Finalize() error {
	if c.Workspace.Root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
		c.Workspace.Root = cwd
	}
	absRoot, err := filepath.Abs(c.Workspace.Root)
	if err != nil {
		return fmt.Errorf("resolve workspace root: %w", err)
	}
	c.Workspace.Root = absRoot

	if c.Data.Dir == "" {
		c.Data.Dir = filepath.Join(c.Workspace.Root, ".patchd")
	}
	absData, err := filepath.Abs(c.Data.Dir)
	if err != nil {
		return fmt.Errorf("resolve data directory: %w", err)
	}
	c.Data.Dir = absData

	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = "127.0.0.1:3010"
	}
	return nil
}
