// Package config loads generator settings from defaults, erpgen.yaml,
// ERPGEN_ environment variables and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Default values for configuration.
const (
	DefaultSchema      = "models.json"
	DefaultPrevious    = "models_bk.json"
	DefaultChanges     = "changes.yaml"
	DefaultDatabase    = "erp.db"
	DefaultSnapshotDir = ".erpgen/snapshots"
	DefaultOutput      = "models"
	DefaultPackage     = "models"
	DefaultFormat      = "text"

	// FileName is the config file looked up in the working directory.
	FileName = "erpgen.yaml"

	envPrefix = "ERPGEN_"
)

// Config holds the settings of one generator invocation.
type Config struct {
	Schema      string `koanf:"schema"`
	Previous    string `koanf:"previous"`
	Changes     string `koanf:"changes"`
	Database    string `koanf:"database"`
	External    string `koanf:"external"`
	SnapshotDir string `koanf:"snapshot_dir"`
	Output      string `koanf:"output"`
	Package     string `koanf:"package"`
	Verbose     bool   `koanf:"verbose"`
	Format      string `koanf:"format"`

	// File is the config file that was read, empty if none.
	File string `koanf:"-"`
}

// pathKeys are resolved against the config file directory when they come
// from the file, and against the working directory otherwise.
var pathKeys = []string{"schema", "previous", "changes", "database", "external", "snapshot_dir", "output"}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"schema":       DefaultSchema,
		"previous":     DefaultPrevious,
		"changes":      DefaultChanges,
		"database":     DefaultDatabase,
		"external":     "",
		"snapshot_dir": DefaultSnapshotDir,
		"output":       DefaultOutput,
		"package":      DefaultPackage,
		"verbose":      false,
		"format":       DefaultFormat,
	}
}

// findConfigFile returns the config file to use.
// Priority: explicit path > erpgen.yaml > erpgen.yml
func findConfigFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file %s: %w", explicit, err)
		}
		return explicit, nil
	}
	for _, name := range []string{FileName, "erpgen.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		}
	}
	return "", nil
}

// Load reads the configuration.
// Precedence (highest to lowest): flags > env vars > config file > defaults
//
// Only flags the user changed take part. Flag names are kebab-case and map
// to the snake_case keys (--snapshot-dir sets snapshot_dir).
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	used, err := findConfigFile(cfgFile)
	if err != nil {
		return nil, err
	}
	fromFile := map[string]string{}
	if used != "" {
		fk := koanf.New(".")
		if err := fk.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", used, err)
		}
		if err := k.Merge(fk); err != nil {
			return nil, fmt.Errorf("error merging config file %s: %w", used, err)
		}
		for _, key := range pathKeys {
			if fk.Exists(key) {
				fromFile[key] = fk.String(key)
			}
		}
	}

	// 3. Environment variables: ERPGEN_SNAPSHOT_DIR -> snapshot_dir
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = used

	// A path still holding the file's value is relative to the file.
	if used != "" {
		base, err := filepath.Abs(filepath.Dir(used))
		if err != nil {
			return nil, fmt.Errorf("resolving config dir: %w", err)
		}
		for _, key := range pathKeys {
			if v, ok := fromFile[key]; ok && k.String(key) == v {
				p := cfg.path(key)
				*p = resolvePathRelativeTo(*p, base)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) path(key string) *string {
	switch key {
	case "schema":
		return &c.Schema
	case "previous":
		return &c.Previous
	case "changes":
		return &c.Changes
	case "database":
		return &c.Database
	case "external":
		return &c.External
	case "snapshot_dir":
		return &c.SnapshotDir
	case "output":
		return &c.Output
	}
	panic("config: unknown path key " + key)
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty, absolute or an in-memory database.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// Validate checks values that cannot be caught by decoding.
func (c *Config) Validate() error {
	switch c.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid format %q: must be text or json", c.Format)
	}
	if c.Schema == "" {
		return fmt.Errorf("schema path is required")
	}
	if c.Package == "" {
		return fmt.Errorf("package name is required")
	}
	return nil
}
