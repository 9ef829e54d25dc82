// Package config is used to load the configuration file
package config

import (
	"fmt"
	"strings"

	"github.com/andlibutils/andlibutils/internal/buffer"
	"github.com/spf13/viper"
)

const (
	DefaultStringSection = ".rodata"
	DefaultDataSection   = ".data"
	DefaultJobs          = 8
)

// Rename configures the JNI renamer.
type Rename struct {
	// StringSection holds the method name and signature literals.
	StringSection string `mapstructure:"string-section" json:"string-section"`
	// DataSection holds the JNINativeMethod tables.
	DataSection string `mapstructure:"data-section" json:"data-section"`
	BufferSize  int    `mapstructure:"buffer-size" json:"buffer-size"`
}

type prelink struct {
	Jobs int `mapstructure:"jobs" json:"jobs"`
}

// Config is the configuration struct
type Config struct {
	Rename  Rename  `mapstructure:"rename" json:"rename"`
	Prelink prelink `mapstructure:"prelink" json:"prelink"`
}

// Default returns the configuration used when no config file is present.
func Default() *Config {
	c := &Config{}
	c.verify()
	return c
}

func (r *Rename) verify() error {
	if r.StringSection == "" {
		r.StringSection = DefaultStringSection
	}
	if r.DataSection == "" {
		r.DataSection = DefaultDataSection
	}
	if r.BufferSize <= 0 {
		r.BufferSize = buffer.DefaultBufferSize
	}
	if !strings.HasPrefix(r.StringSection, ".") || !strings.HasPrefix(r.DataSection, ".") {
		return fmt.Errorf("config: section names must start with '.' (got %q and %q)", r.StringSection, r.DataSection)
	}
	if r.StringSection == r.DataSection {
		return fmt.Errorf("config: string and data section cannot both be %s", r.StringSection)
	}
	return nil
}

func (c *Config) verify() error {
	if c.Prelink.Jobs <= 0 {
		c.Prelink.Jobs = DefaultJobs
	}
	return c.Rename.verify()
}

// LoadConfig loads the configuration file
func LoadConfig() (*Config, error) {
	var c *Config

	if err := viper.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %v", err)
	}
	if c == nil {
		c = &Config{}
	}

	if err := c.verify(); err != nil {
		return nil, fmt.Errorf("config: failed to verify: %v", err)
	}

	return c, nil
}
