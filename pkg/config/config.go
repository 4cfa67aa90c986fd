// Package config loads the dcatgraph configuration file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coolbeans/dcatgraph/pkg/errs"
	"github.com/coolbeans/dcatgraph/pkg/format"
	"github.com/coolbeans/dcatgraph/pkg/prefix"
	"github.com/coolbeans/dcatgraph/pkg/store"
)

// DefaultTimeout is the default deadline for probes, fetches and queries.
const DefaultTimeout = 30 * time.Second

// DefaultProbeCacheTTL applies to probe responses without cache headers.
const DefaultProbeCacheTTL = 10 * time.Minute

// DefaultUserAgent is sent with every HTTP request.
const DefaultUserAgent = "dcatgraph/0.1"

// Config is the complete configuration.
type Config struct {
	// LogLevel is one of debug, info, warn or error.
	LogLevel string `yaml:"log_level"`

	HTTP   HTTPConfig   `yaml:"http"`
	Loader LoaderConfig `yaml:"loader"`
	Query  QueryConfig  `yaml:"query"`

	// Prefixes are merged over the default namespaces. A null value removes
	// a default.
	Prefixes map[string]*string `yaml:"prefixes"`

	// Formats bind extra names, media types and suffixes to installed parsers.
	Formats []FormatAlias `yaml:"formats"`

	// AlignmentDir holds alignment files. Empty disables alignments.
	AlignmentDir string `yaml:"alignment_dir"`
}

// HTTPConfig configures probes and fetches.
type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	UserAgent     string        `yaml:"user_agent"`
	ProbeCacheTTL time.Duration `yaml:"probe_cache_ttl"`
}

// LoaderConfig configures catalog loading.
type LoaderConfig struct {
	// Concurrency above 1 fetches and parses distributions in parallel.
	Concurrency int `yaml:"concurrency"`

	// DeclaredFormatFallback lets a distribution's dct:format pick the
	// parser when neither the content type nor the suffix resolves.
	DeclaredFormatFallback bool `yaml:"declared_format_fallback"`
}

// QueryConfig configures query execution.
type QueryConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	Planning bool          `yaml:"planning"`
}

// FormatAlias installs Name as a format backed by the parser of the
// installed format Parser.
type FormatAlias struct {
	Name       string   `yaml:"name"`
	Parser     string   `yaml:"parser"`
	MediaType  string   `yaml:"media_type"`
	Extensions []string `yaml:"extensions"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		HTTP: HTTPConfig{
			Timeout:       DefaultTimeout,
			UserAgent:     DefaultUserAgent,
			ProbeCacheTTL: DefaultProbeCacheTTL,
		},
		Loader: LoaderConfig{
			Concurrency: 1,
		},
		Query: QueryConfig{
			Timeout:  DefaultTimeout,
			Planning: true,
		},
	}
}

// Load reads the file at path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		ce := errs.NewConfigError(errs.CodeReadFailed, path, "reading config file")
		ce.Err = err
		return nil, ce
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		ce := errs.NewConfigError(errs.CodeInvalidValue, "", "parsing YAML")
		ce.Err = err
		return nil, ce
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every setting and returns the first problem as a
// *errs.ConfigError.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.HTTP.Timeout <= 0 {
		return errs.NewConfigError(errs.CodeInvalidValue, "http.timeout", "must be positive, got %s", c.HTTP.Timeout)
	}
	if c.HTTP.ProbeCacheTTL < 0 {
		return errs.NewConfigError(errs.CodeInvalidValue, "http.probe_cache_ttl", "must not be negative")
	}
	if c.Loader.Concurrency < 1 {
		return errs.NewConfigError(errs.CodeInvalidValue, "loader.concurrency", "must be at least 1, got %d", c.Loader.Concurrency)
	}
	if c.Query.Timeout <= 0 {
		return errs.NewConfigError(errs.CodeInvalidValue, "query.timeout", "must be positive, got %s", c.Query.Timeout)
	}

	for p, ns := range c.Prefixes {
		if !prefix.ValidPrefix(p) {
			return errs.NewConfigError(errs.CodeInvalidPrefix, p, "prefix %q is not a valid name", p)
		}
		if ns != nil && *ns == "" {
			return errs.NewConfigError(errs.CodeInvalidPrefix, p, "empty namespace for prefix %q", p)
		}
	}

	seen := make(map[string]bool)
	for i, f := range c.Formats {
		key := fmt.Sprintf("formats[%d]", i)
		if f.Name == "" || f.Parser == "" {
			return errs.NewConfigError(errs.CodeInvalidValue, key, "format alias needs a name and a parser")
		}
		if seen[f.Name] {
			return errs.NewConfigError(errs.CodeConflictingFormat, key, "format %q declared twice", f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, errs.NewConfigError(errs.CodeInvalidValue, "log_level", "unknown log level %q", level)
	}
}

// ApplyPrefixes writes the configured prefixes into reg.
func (c *Config) ApplyPrefixes(reg *prefix.Registry) error {
	for p, ns := range c.Prefixes {
		if err := reg.SetPrefix(p, ns); err != nil {
			return err
		}
	}
	return nil
}

// ApplyFormats installs the configured format aliases into reg. The
// parser a format names must already be installed.
func (c *Config) ApplyFormats(reg *format.Registry) error {
	for _, alias := range c.Formats {
		base, ok := reg.Find(alias.Parser)
		if !ok {
			return errs.NewConfigError(errs.CodeUnknownParser, alias.Name, "no installed parser %q", alias.Parser)
		}
		factory := func() store.Parser { return base.Parser() }
		if err := reg.InstallFormat(alias.Name, alias.MediaType, factory, alias.Extensions...); err != nil {
			return err
		}
	}
	return nil
}
