package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Empty(t, cfg.CurrentContext)
	require.Empty(t, cfg.Contexts)
	require.Equal(t, path, cfg.Path())

	_, err = cfg.GetCurrentContext()
	require.Error(t, err)
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fbxctl", "config.yaml")
	cfg, err := Load(path)
	require.NoError(t, err)

	cfg.AddContext("home", &Context{Server: "http://hub.lan:9000", Token: "access", RefreshToken: "refresh"})
	cfg.AddContext("lab", &Context{Server: "http://127.0.0.1:9000"})
	require.Equal(t, "home", cfg.CurrentContext)
	require.NoError(t, cfg.Save())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "home", reloaded.CurrentContext)
	require.Len(t, reloaded.Contexts, 2)

	current, err := reloaded.GetCurrentContext()
	require.NoError(t, err)
	require.Equal(t, "home", current.Name)
	require.Equal(t, "http://hub.lan:9000", current.Server)
	require.Equal(t, "access", current.Token)
	require.Equal(t, "refresh", current.RefreshToken)
}

func TestContexts(t *testing.T) {
	cfg := &Config{}
	cfg.AddContext("home", &Context{Server: "http://hub.lan:9000"})
	cfg.AddContext("lab", &Context{Server: "http://lab:9000"})

	require.Error(t, cfg.SetCurrentContext("missing"))
	require.NoError(t, cfg.SetCurrentContext("lab"))
	require.NoError(t, cfg.RemoveContext("lab"))
	require.Empty(t, cfg.CurrentContext)
	require.Error(t, cfg.RemoveContext("lab"))
}

func TestDefaultPath_Env(t *testing.T) {
	t.Setenv(EnvConfigPath, "/tmp/custom.yaml")
	require.Equal(t, "/tmp/custom.yaml", DefaultPath())
}
