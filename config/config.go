// Package config holds the console configuration: compiled defaults, an
// optional yaml or json(c) file, then command line overrides.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/jimsnab/go-cns-console/cnserr"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvVar names a configuration file when --config is not given.
const EnvVar = "CNS_CONFIG"

const (
	DefaultHost        = "localhost"
	DefaultServerPort  = 6771
	DefaultSaveSeconds = 1
)

type (
	// Options are the initial runtime display options of a session.
	Options struct {
		Format string `yaml:"format" json:"format"`
		Indent int    `yaml:"indent" json:"indent"`
		Width  int    `yaml:"width" json:"width"`
		Color  bool   `yaml:"color" json:"color"`
	}

	Config struct {
		// Host and Port locate a remote console server for client mode.
		Host string `yaml:"host" json:"host"`
		Port int    `yaml:"port" json:"port"`

		Prefix   string `yaml:"prefix" json:"prefix"`
		DataFile string `yaml:"data_file" json:"data_file"`

		// ServerPort and Dashboard (a listen address) are off when zero.
		ServerPort  int    `yaml:"server_port" json:"server_port"`
		Dashboard   string `yaml:"dashboard" json:"dashboard"`
		Resync      bool   `yaml:"resync" json:"resync"`
		SaveSeconds int    `yaml:"save_seconds" json:"save_seconds"`

		Options Options           `yaml:"options" json:"options"`
		Schema  map[string]string `yaml:"schema" json:"schema"`

		source string
	}

	field struct {
		get func(c *Config) string
		set func(c *Config, v string) error
	}
)

func Default() *Config {
	return &Config{
		Host:        DefaultHost,
		Port:        DefaultServerPort,
		Resync:      true,
		SaveSeconds: DefaultSaveSeconds,
		Options: Options{
			Format: "tree",
			Indent: 2,
			Width:  80,
		},
		Schema: map[string]string{},
	}
}

// Resolve loads filename, or the file named by CNS_CONFIG when filename is
// empty, or returns the defaults when neither is set.
func Resolve(filename string) (*Config, error) {
	if filename == "" {
		filename = os.Getenv(EnvVar)
	}
	if filename == "" {
		return Default(), nil
	}
	return Load(filename)
}

// Load reads a configuration file over the defaults. The extension selects
// the parser: .yaml and .yml are yaml, .json and .jsonc are json with
// comments and trailing commas allowed.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, cnserr.Wrap(cnserr.KindIO, err, "can't read config %s", filename)
	}

	c := Default()
	c.source = filename

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	case ".json", ".jsonc":
		err = json.Unmarshal(jsonc.ToJSON(data), c)
	default:
		return nil, cnserr.New(cnserr.KindFormat, "unsupported config file type: %s", filename)
	}
	if err != nil {
		return nil, cnserr.Wrap(cnserr.KindFormat, err, "can't parse config %s", filename)
	}

	if c.Schema == nil {
		c.Schema = map[string]string{}
	}
	return c, nil
}

// Source is the file the configuration was loaded from, if any.
func (c *Config) Source() string {
	return c.source
}

var fields = map[string]field{
	"host": {
		get: func(c *Config) string { return c.Host },
		set: func(c *Config, v string) error { c.Host = v; return nil },
	},
	"port": {
		get: func(c *Config) string { return strconv.Itoa(c.Port) },
		set: func(c *Config, v string) error { return setInt(&c.Port, "port", v) },
	},
	"prefix": {
		get: func(c *Config) string { return c.Prefix },
		set: func(c *Config, v string) error { c.Prefix = v; return nil },
	},
	"data_file": {
		get: func(c *Config) string { return c.DataFile },
		set: func(c *Config, v string) error { c.DataFile = v; return nil },
	},
	"server_port": {
		get: func(c *Config) string { return strconv.Itoa(c.ServerPort) },
		set: func(c *Config, v string) error { return setInt(&c.ServerPort, "server_port", v) },
	},
	"dashboard": {
		get: func(c *Config) string { return c.Dashboard },
		set: func(c *Config, v string) error { c.Dashboard = v; return nil },
	},
	"resync": {
		get: func(c *Config) string { return strconv.FormatBool(c.Resync) },
		set: func(c *Config, v string) error { return setBool(&c.Resync, "resync", v) },
	},
	"save_seconds": {
		get: func(c *Config) string { return strconv.Itoa(c.SaveSeconds) },
		set: func(c *Config, v string) error { return setInt(&c.SaveSeconds, "save_seconds", v) },
	},
}

func setInt(dest *int, name, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return cnserr.New(cnserr.KindTypeMismatch, "%s expects an integer, got %q", name, v)
	}
	*dest = n
	return nil
}

func setBool(dest *bool, name, v string) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return cnserr.New(cnserr.KindTypeMismatch, "%s expects a boolean, got %q", name, v)
	}
	*dest = b
	return nil
}

// Names lists the settable configuration names in sorted order.
func Names() []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Values is the flat view used for display and variable lookup.
func (c *Config) Values() map[string]string {
	m := make(map[string]string, len(fields))
	for name, f := range fields {
		m[name] = f.get(c)
	}
	return m
}

func (c *Config) Get(name string) (string, bool) {
	f, exists := fields[strings.ToLower(name)]
	if !exists {
		return "", false
	}
	return f.get(c), true
}

func (c *Config) Set(name, value string) error {
	f, exists := fields[strings.ToLower(name)]
	if !exists {
		return cnserr.New(cnserr.KindArgument, "no such config: %s", name)
	}
	return f.set(c, value)
}

// Clone copies the configuration so that a second session can change it
// independently.
func (c *Config) Clone() *Config {
	cp := *c
	cp.Schema = make(map[string]string, len(c.Schema))
	for k, v := range c.Schema {
		cp.Schema[k] = v
	}
	return &cp
}
