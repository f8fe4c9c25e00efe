package main

import (
	"fmt"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/calsol/fatlog"
	"github.com/calsol/fatlog/blockdev"
	"github.com/calsol/fatlog/canlog"
)

type recordConfig struct {
	Prefix       string        `yaml:"prefix"`
	Ext          string        `yaml:"ext"`
	OverflowSize int           `yaml:"overflowSize"`
	Buffers      int           `yaml:"buffers"`
	Timeout      time.Duration `yaml:"timeout"`
	Echo         bool          `yaml:"echo"`
}

type serveConfig struct {
	FTP      string `yaml:"ftp"`
	WebDAV   string `yaml:"webdav"`
	HTTP     string `yaml:"http"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type config struct {
	Image    string       `yaml:"image"`
	LogLevel string       `yaml:"logLevel"`
	Record   recordConfig `yaml:"record"`
	Serve    serveConfig  `yaml:"serve"`
}

func defaultConfig() config {
	return config{
		Image:    "datalogger.img",
		LogLevel: "info",
		Record: recordConfig{
			Prefix:       canlog.DefaultPrefix,
			Ext:          canlog.DefaultExt,
			OverflowSize: fatlog.DefaultOverflowSize,
			Buffers:      blockdev.DefaultDMABuffers,
			Timeout:      blockdev.DefaultDMATimeout,
		},
		Serve: serveConfig{
			User: "datalogger",
		},
	}
}

// loadConfig reads a YAML file on top of the defaults.
func loadConfig(fs afero.Fs, path string) (config, error) {
	c := defaultConfig()
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return c, fmt.Errorf("could not read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("could not parse config %s: %w", path, err)
	}
	if c.Record.Buffers < 2 {
		return c, fmt.Errorf("config %s: record.buffers must be at least 2", path)
	}
	return c, nil
}
