// Package config loads process configuration from YAML or TOML files,
// validated and defaulted against an embedded CUE schema.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/roach88/intercall/internal/meta"
)

//go:embed schema.cue
var schemaCUE string

// Queue modes.
const (
	QueueModeLocal   = "local"
	QueueModeNetwork = "network"
)

// Format is the syntax of a config file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// Config is the process configuration.
type Config struct {
	Env         meta.Env `json:"env"`
	Cluster     Cluster  `json:"cluster"`
	Database    Database `json:"database"`
	Queue       Queue    `json:"queue"`
	InnerCookie string   `json:"inner_cookie"`
	CookieKeys  []string `json:"cookie_keys"`
	Modules     []Module `json:"modules"`
}

// Cluster holds the address other processes reach this one at.
type Cluster struct {
	Listen Listen `json:"listen"`
}

// Listen is a host and port.
type Listen struct {
	Hostname string `json:"hostname"`
	Port     int    `json:"port"`
}

// Address returns "hostname:port".
func (l Listen) Address() string {
	return fmt.Sprintf("%s:%d", l.Hostname, l.Port)
}

// Database configures the SQLite store.
type Database struct {
	Path         string `json:"path"`
	MaxOpenConns int    `json:"max_open_conns"`
}

// Queue configures task dispatch.
type Queue struct {
	// Mode is "local" (in-process emulation) or "network". When unset it
	// follows the environment: local in test environments, network
	// otherwise.
	Mode string `json:"mode"`
}

// Module registers a module and its queues.
type Module struct {
	Name   string        `json:"name"`
	Queues []QueueConfig `json:"queues"`
}

// QueueConfig registers one queue endpoint.
type QueueConfig struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// ValidationError reports a config that does not satisfy the schema.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Problems, "; ")
}

// Load reads and validates the config file at path. The format follows
// the extension: .yaml, .yml and .json are read as YAML, .toml as TOML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var format Format
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		format = FormatYAML
	case ".toml":
		format = FormatTOML
	default:
		return nil, fmt.Errorf("config %s: unsupported extension %q", path, filepath.Ext(path))
	}

	cfg, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration of an empty file.
func Default() *Config {
	cfg, err := Parse(nil, FormatYAML)
	if err != nil {
		panic(fmt.Sprintf("config schema rejects empty config: %v", err))
	}
	return cfg
}

// Parse decodes data in the given format and validates it.
func Parse(data []byte, format Format) (*Config, error) {
	raw := map[string]any{}
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	case FormatTOML:
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config format %q", format)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return fromTree(raw)
}

// fromTree unifies a decoded tree with the schema and decodes the result.
func fromTree(raw map[string]any) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	data := ctx.Encode(raw)
	if err := data.Err(); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}

	value := schema.LookupPath(cue.ParsePath("#Config")).Unify(data)
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, toValidationError(err)
	}

	var cfg Config
	if err := value.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func toValidationError(err error) *ValidationError {
	var problems []string
	for _, e := range cueerrors.Errors(err) {
		problems = append(problems, e.Error())
	}
	if len(problems) == 0 {
		problems = []string{err.Error()}
	}
	return &ValidationError{Problems: problems}
}

func (c *Config) applyDefaults() {
	if c.Queue.Mode == "" {
		if c.Env.IsTest() {
			c.Queue.Mode = QueueModeLocal
		} else {
			c.Queue.Mode = QueueModeNetwork
		}
	}
}

// Registry builds the module registry the config describes.
func (c *Config) Registry() (*meta.Registry, error) {
	reg := meta.NewRegistry()
	for _, m := range c.Modules {
		queues := make([]meta.QueueConfig, 0, len(m.Queues))
		for _, q := range m.Queues {
			queues = append(queues, meta.QueueConfig{Name: q.Name, Path: q.Path})
		}
		if _, err := reg.Add(m.Name, queues...); err != nil {
			return nil, fmt.Errorf("register module: %w", err)
		}
	}
	return reg, nil
}

// CookieKeyBytes returns the cookie keys as the byte slices the app
// signs with.
func (c *Config) CookieKeyBytes() [][]byte {
	out := make([][]byte, 0, len(c.CookieKeys))
	for _, k := range c.CookieKeys {
		out = append(out, []byte(k))
	}
	return out
}

// EnsureInnerCookie generates the inner credential when none is
// configured.
func (c *Config) EnsureInnerCookie(gen meta.IDGenerator) string {
	if c.InnerCookie == "" {
		c.InnerCookie = gen.Generate()
	}
	return c.InnerCookie
}
