// Package config manages fbxctl contexts: named hub endpoints and the hub
// credentials obtained by pairing.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// EnvConfigPath overrides the config file location.
const EnvConfigPath = "FBXCTL_CONFIG"

// Config holds the CLI configuration.
type Config struct {
	// CurrentContext is the name of the active context
	CurrentContext string `mapstructure:"current-context"`
	// Contexts holds the available hub contexts
	Contexts map[string]*Context `mapstructure:"contexts"`

	path string
}

// Context is one hub endpoint.
type Context struct {
	Name         string `mapstructure:"name"`
	Server       string `mapstructure:"server"`
	Token        string `mapstructure:"token"`
	RefreshToken string `mapstructure:"refresh-token"`
}

// DefaultPath returns $FBXCTL_CONFIG or ~/.fbxctl/config.yaml.
func DefaultPath() string {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".fbxctl", "config.yaml")
	}
	return filepath.Join(home, ".fbxctl", "config.yaml")
}

// Load reads the config at path. A missing file yields an empty config that
// Save will create.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("current-context", "")
	v.SetDefault("contexts", map[string]any{})

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if cfg.Contexts == nil {
		cfg.Contexts = make(map[string]*Context)
	}
	for name, ctx := range cfg.Contexts {
		ctx.Name = name
	}
	cfg.path = path
	return cfg, nil
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string {
	return c.path
}

// Save writes the configuration to disk with owner-only permissions, since
// it holds tokens.
func (c *Config) Save() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	contexts := make(map[string]any, len(c.Contexts))
	for name, ctx := range c.Contexts {
		contexts[name] = map[string]any{
			"name":          name,
			"server":        ctx.Server,
			"token":         ctx.Token,
			"refresh-token": ctx.RefreshToken,
		}
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("current-context", c.CurrentContext)
	v.Set("contexts", contexts)
	if err := v.WriteConfigAs(c.path); err != nil {
		return fmt.Errorf("error writing config: %w", err)
	}
	return os.Chmod(c.path, 0o600)
}

// GetCurrentContext returns the active context configuration.
func (c *Config) GetCurrentContext() (*Context, error) {
	if c.CurrentContext == "" {
		return nil, errors.New("no current context set, run 'fbxctl config set-context'")
	}
	ctx, ok := c.Contexts[c.CurrentContext]
	if !ok {
		return nil, fmt.Errorf("current context %q not found", c.CurrentContext)
	}
	return ctx, nil
}

// AddContext adds or updates a context. The first context becomes current.
func (c *Config) AddContext(name string, ctx *Context) {
	if c.Contexts == nil {
		c.Contexts = make(map[string]*Context)
	}
	ctx.Name = name
	c.Contexts[name] = ctx
	if c.CurrentContext == "" {
		c.CurrentContext = name
	}
}

// SetCurrentContext sets the active context.
func (c *Config) SetCurrentContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	c.CurrentContext = name
	return nil
}

// RemoveContext removes a context, clearing CurrentContext if it was active.
func (c *Config) RemoveContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	delete(c.Contexts, name)
	if c.CurrentContext == name {
		c.CurrentContext = ""
	}
	return nil
}
