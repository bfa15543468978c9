// Package config handles kiln.toml project configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is a parsed kiln.toml.
type Config struct {
	Target  Target  `toml:"target"`
	Compile Compile `toml:"compile"`
	Output  Output  `toml:"output"`

	// Dir is the directory containing the kiln.toml file (set at load time).
	Dir string `toml:"-"`
}

// Target selects the code-generation target.
type Target struct {
	Arch string `toml:"arch"`
}

// Compile controls the compile pipeline.
type Compile struct {
	Workers   int  `toml:"workers"`
	DebugInfo bool `toml:"debug-info"`
}

// Output configures the produced files.
type Output struct {
	Object   string `toml:"object"`
	Artifact string `toml:"artifact"`
}

// Load parses a kiln.toml file from the given directory, applying defaults
// for anything unset.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, "kiln.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	c.Dir = dir
	c.applyDefaults()

	return &c, nil
}

// Default returns the configuration used when no kiln.toml exists.
func Default(dir string) *Config {
	c := &Config{Dir: dir}
	c.applyDefaults()

	return c
}

func (c *Config) applyDefaults() {
	if c.Target.Arch == "" {
		c.Target.Arch = "x86_64"
	}
	if c.Output.Object == "" {
		c.Output.Object = "out.o"
	}
	if c.Output.Artifact == "" {
		c.Output.Artifact = "out.kiln"
	}
}

// ObjectPath and ArtifactPath resolve output locations against the config
// directory.
func (c *Config) ObjectPath() string   { return c.resolve(c.Output.Object) }
func (c *Config) ArtifactPath() string { return c.resolve(c.Output.Artifact) }

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) || c.Dir == "" {
		return p
	}

	return filepath.Join(c.Dir, p)
}
