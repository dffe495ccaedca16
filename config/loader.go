// Package config loads service configuration from a YAML file, a .env file and
// the process environment using viper.
//
// Resolution order (later wins): defaults, config.yml, environment (including
// variables loaded from .env). Environment keys are matched against nested
// config keys, so SCRIBE_STORE_DRIVER style names are unnecessary:
// STORE_DRIVER sets store.driver.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// FileSystem abstracts the file operations the loader needs.
type FileSystem interface {
	Exists(path string) bool
	LoadEnv(path string) error
}

// OSFileSystem implements FileSystem on the real filesystem.
type OSFileSystem struct{}

func (OSFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (OSFileSystem) LoadEnv(path string) error {
	return godotenv.Load(path)
}

// Resolver finds config and env files for a service.
type Resolver struct {
	FileSystem FileSystem
}

// ResolvedFiles contains the resolved config and env file paths.
type ResolvedFiles struct {
	ConfigFile string
	EnvFile    string
}

// Resolve returns explicit paths when set, otherwise the first existing
// candidate from the standard search locations.
func (r *Resolver) Resolve(serviceName string, opts Options) ResolvedFiles {
	files := ResolvedFiles{ConfigFile: opts.ConfigFile, EnvFile: opts.EnvFile}
	if files.ConfigFile == "" {
		files.ConfigFile = r.first(configCandidates(serviceName))
	}
	if files.EnvFile == "" {
		files.EnvFile = r.first(envCandidates(serviceName))
	}
	return files
}

func (r *Resolver) first(paths []string) string {
	for _, p := range paths {
		if r.FileSystem.Exists(p) {
			return p
		}
	}
	return ""
}

func configCandidates(serviceName string) []string {
	var paths []string
	for _, prefix := range []string{".", "..", "../.."} {
		paths = append(paths, fmt.Sprintf("%s/cmd/%s/config.yml", prefix, serviceName))
	}
	return append(paths, "./config/config.yml", "./config.yml")
}

func envCandidates(serviceName string) []string {
	var paths []string
	for _, name := range []string{".env." + serviceName, ".env"} {
		for _, dir := range []string{"./cmd/" + serviceName, ".", "..", "../.."} {
			paths = append(paths, dir+"/"+name)
		}
	}
	return paths
}

// Options holds loader dependencies and optional file overrides.
type Options struct {
	FileSystem FileSystem
	ConfigFile string
	EnvFile    string
	Defaults   map[string]any
}

// Option is a functional option for LoadConfig.
type Option func(*Options)

// WithFileSystem sets a custom filesystem for the loader.
func WithFileSystem(fs FileSystem) Option {
	return func(o *Options) { o.FileSystem = fs }
}

// WithConfigFile sets an explicit config file path.
func WithConfigFile(path string) Option {
	return func(o *Options) { o.ConfigFile = path }
}

// WithEnvFile sets an explicit .env file path.
func WithEnvFile(path string) Option {
	return func(o *Options) { o.EnvFile = path }
}

// WithDefaults registers viper defaults keyed by dotted config path.
func WithDefaults(defaults map[string]any) Option {
	return func(o *Options) { o.Defaults = defaults }
}

// LoadConfig loads configuration for a service into cfg.
func LoadConfig(serviceName string, cfg any, opts ...Option) error {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	if o.FileSystem == nil {
		o.FileSystem = OSFileSystem{}
	}

	resolver := &Resolver{FileSystem: o.FileSystem}
	files := resolver.Resolve(serviceName, o)

	v := viper.New()
	for k, val := range o.Defaults {
		v.SetDefault(k, val)
	}

	if files.ConfigFile != "" && o.FileSystem.Exists(files.ConfigFile) {
		v.SetConfigFile(files.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file %s: %w", files.ConfigFile, err)
		}
	}

	if files.EnvFile != "" && o.FileSystem.Exists(files.EnvFile) {
		if err := o.FileSystem.LoadEnv(files.EnvFile); err != nil {
			return fmt.Errorf("load env file %s: %w", files.EnvFile, err)
		}
	}
	bindEnv(v, os.Environ())

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unmarshal config for service %s: %w", serviceName, err)
	}
	return nil
}

// bindEnv sets every environment variable under each nested key it could
// name, e.g. STORE_REDIS_ADDR -> store.redis.addr, store.redis_addr.
func bindEnv(v *viper.Viper, environ []string) {
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		for _, variant := range envKeyVariants(key) {
			v.Set(variant, value)
		}
	}
}

// envKeyVariants returns the candidate viper keys for an env var name.
//
//	STORE_REDIS_ADDR -> [store_redis_addr, store.redis.addr, store.redis_addr, store_redis.addr]
func envKeyVariants(envKey string) []string {
	lower := strings.ToLower(envKey)
	parts := strings.Split(lower, "_")
	if len(parts) == 1 {
		return []string{lower}
	}

	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	add(lower)
	add(strings.Join(parts, "."))
	for i := 1; i < len(parts); i++ {
		add(strings.Join(parts[:i], ".") + "." + strings.Join(parts[i:], "_"))
		add(strings.Join(parts[:i], "_") + "." + strings.Join(parts[i:], "."))
	}
	return out
}
