package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tarun-kavipurapu/lanfetch/pkg/protocol"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadConfigEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	require.Equal(t, 5*time.Second, cfg.DiscoveryTimeout())
	require.Equal(t, 2*time.Second, cfg.AnnounceInterval())
	require.True(t, cfg.Download.AcceptSelfSigned)
	require.Empty(t, cfg.LogLevel, "an unset level defers to the environment")
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
alias: Calm Owl
deviceType: desktop
fingerprint: abc123
downloadDir: /tmp/in
discovery:
  timeoutSeconds: 10
  silent: true
download:
  maxConcurrent: 4
  verifyChecksum: true
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, "Calm Owl", cfg.Alias)
	require.Equal(t, 10*time.Second, cfg.DiscoveryTimeout())
	require.Equal(t, 2*time.Second, cfg.AnnounceInterval(), "unset keys keep their defaults")
	require.True(t, cfg.Discovery.Silent)
	require.True(t, cfg.Discovery.Respond)
	require.Equal(t, 4, cfg.Download.MaxConcurrent)
	require.True(t, cfg.Download.VerifyChecksum)
	require.Equal(t, 53317, cfg.Port)

	info := cfg.DeviceInfo()
	require.Equal(t, protocol.DeviceInfo{
		Alias:       "Calm Owl",
		DeviceModel: info.DeviceModel,
		DeviceType:  protocol.DeviceDesktop,
		Fingerprint: "abc123",
	}, info)
	require.NotEmpty(t, info.DeviceModel)
}

func TestLoadConfigValidation(t *testing.T) {
	cases := map[string]string{
		"bad device type":   "deviceType: toaster\n",
		"bad protocol":      "protocol: gopher\n",
		"bad port":          "port: 70000\n",
		"zero timeout":      "discovery:\n  timeoutSeconds: 0\n",
		"negative parallel": "download:\n  maxConcurrent: -1\n",
		"invalid yaml":      "port: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			require.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestDeviceInfoGeneratesMissingIdentity(t *testing.T) {
	cfg := Default()
	a := cfg.DeviceInfo()
	b := cfg.DeviceInfo()

	require.NotEmpty(t, a.Alias)
	require.NotEmpty(t, a.Fingerprint)
	require.Equal(t, protocol.DeviceHeadless, a.DeviceType)
	require.NotEqual(t, a.Fingerprint, b.Fingerprint, "each derivation gets a fresh fingerprint")
	require.Equal(t, protocol.ProtocolHTTP, cfg.ServeProtocol())
}
