package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "9000", cfg.Port)
	require.Equal(t, "http://mafreebox.freebox.fr", cfg.FreeboxURL)
	require.Equal(t, 5000, cfg.FreeboxTimeoutMs)
	require.Equal(t, "ctf", cfg.FreeboxAppID)
	require.Equal(t, "Cast to Freebox", cfg.FreeboxAppName)
	require.Equal(t, "1.0", cfg.FreeboxAppVersion)
	require.Equal(t, "Smartphone", cfg.FreeboxDeviceName)
	require.Equal(t, "Freebox Player", cfg.FreeboxReceiverName)
	require.Equal(t, "Cast to Freebox Service", cfg.NSDServiceName)
	require.Equal(t, "_fbx-api._tcp", cfg.NSDServiceType)
	require.True(t, cfg.NSDEnabled)
	require.Empty(t, cfg.NATSURL)
	require.Equal(t, []string{}, cfg.CORSAllowedOrigins)
}

func TestLoad_RequiresSecret(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JWT_SECRET", "short")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_RejectsLogFormat(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("LOG_FORMAT", "xml")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hub.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
JWT_SECRET: `+testSecret+`
port: 9100
FREEBOX_RECEIVER_NAME: Salon
FREEBOX_USE_HTTPS: true
CORS_ALLOWED_ORIGINS:
  - http://localhost:3000
  - http://tv.lan
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("JWT_SECRET", "")
	t.Setenv("FREEBOX_RECEIVER_NAME", "Bureau")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "9100", cfg.Port)
	require.Equal(t, "Bureau", cfg.FreeboxReceiverName)
	require.True(t, cfg.FreeboxUseHTTPS)
	require.Equal(t, []string{"http://localhost:3000", "http://tv.lan"}, cfg.CORSAllowedOrigins)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("JWT_SECRET", testSecret)

	_, err := Load()
	require.Error(t, err)
}
