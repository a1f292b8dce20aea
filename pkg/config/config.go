package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config holds all configuration for the application
type Config struct {
	Dir        string `koanf:"dir"`
	Index      string `koanf:"index"` // Metadata index directory, defaults to Dir/.index
	WebMode    bool   `koanf:"web"`
	Port       int    `koanf:"port"`
	Watch      bool   `koanf:"watch"`
	Workers    int    `koanf:"workers"`
	Verbosity  string `koanf:"verbosity"`
	VerboseCnt int    `koanf:"verbose"`
	JSON       bool   `koanf:"json"`
}

// DefaultFiles are the config files looked for in the working directory, in order
var DefaultFiles = []string{"mod-deps.toml", "mod-deps.yaml", "mod-deps.yml"}

// IndexDir returns the configured index directory or the default inside Dir
func (c *Config) IndexDir() string {
	if c.Index != "" {
		return c.Index
	}
	return filepath.Join(c.Dir, ".index")
}

// Validate reports settings that can not work
func (c *Config) Validate() error {
	if c.Dir == "" {
		return errors.New("dir must not be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	return nil
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults
// A "config" flag, when set, names the config file; otherwise DefaultFiles are tried.
func Load(f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	defaults := map[string]interface{}{
		"dir":       "mods",
		"index":     "",
		"web":       false,
		"port":      8080,
		"watch":     false,
		"workers":   runtime.NumCPU(),
		"verbosity": "",
		"verbose":   0,
		"json":      false,
	}
	if err := k.Load(makeMapProvider(defaults), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config File (optional)
	if err := loadFile(k, explicitFile(f)); err != nil {
		return nil, err
	}

	// 3. Environment Variables
	// Prefix: MOD_DEPS_ (e.g., MOD_DEPS_PORT=9090)
	if err := k.Load(env.Provider("MOD_DEPS_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(
			strings.TrimPrefix(s, "MOD_DEPS_")), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// Unmarshal into struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func explicitFile(f *pflag.FlagSet) string {
	if f == nil {
		return ""
	}
	if flag := f.Lookup("config"); flag != nil && flag.Changed {
		return flag.Value.String()
	}
	return ""
}

// loadFile loads the explicit file, which must exist, or the first default file found
func loadFile(k *koanf.Koanf, explicit string) error {
	candidates := DefaultFiles
	if explicit != "" {
		candidates = []string{explicit}
	}

	for _, path := range candidates {
		var parser koanf.Parser = toml.Parser()
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		}

		err := k.Load(file.Provider(path), parser)
		if err == nil {
			return nil
		}
		if errors.Is(err, fs.ErrNotExist) && explicit == "" {
			continue
		}
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return nil
}

// Helper to use map as a provider
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
