package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indi-protocol/indi-go/pkg/wire"
)

const sample = `
server:
  address: observatory.local:7625
  devices: ["CCD Simulator", "Telescope Simulator"]
  connect_timeout: 3s
  write_timeout: 2s
backoff:
  initial: 1s
  max: 1m
  multiplier: 1.5
  jitter: 0.1
blob:
  mode: also
  max_publish_size: 65536
nats:
  url: nats://broker:4222
  prefix: obs
redis:
  addr: cache:6379
  db: 2
  ttl: 1h
log:
  level: debug
  protocol_file: /var/log/indi/bridge.ilog
  skip_frames: true
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "observatory.local:7625", cfg.Server.Address)
	assert.Equal(t, []string{"CCD Simulator", "Telescope Simulator"}, cfg.Server.Devices)
	assert.Equal(t, 3*time.Second, cfg.Server.ConnectTimeout)
	assert.Equal(t, 2*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, time.Second, cfg.Backoff.Initial)
	assert.Equal(t, time.Minute, cfg.Backoff.Max)
	assert.Equal(t, 1.5, cfg.Backoff.Multiplier)
	assert.Equal(t, wire.BLOBAlso, cfg.BLOB.Mode, "mode is normalised")
	assert.Equal(t, 65536, cfg.BLOB.MaxPublishSize)
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	assert.Equal(t, "obs", cfg.NATS.Prefix)
	assert.Equal(t, "indi-bridge", cfg.NATS.Name, "unset fields keep defaults")
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, time.Hour, cfg.Redis.TTL)
	assert.Equal(t, "indi", cfg.Redis.Prefix)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/var/log/indi/bridge.ilog", cfg.Log.ProtocolFile)
	assert.True(t, cfg.Log.SkipFrames)

	tc := cfg.TransportConfig()
	assert.Equal(t, 3*time.Second, tc.ConnectTimeout)
	assert.Equal(t, 2*time.Second, tc.WriteTimeout)
	assert.Equal(t, 16<<20, tc.MaxBufferSize)
}

func TestParseEmptyUsesDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "localhost:7624", cfg.Server.Address)
}

func TestParseBareHostGetsDefaultPort(t *testing.T) {
	cfg, err := Parse([]byte("server:\n  address: observatory.local\n"))
	require.NoError(t, err)
	assert.Equal(t, "observatory.local:7624", cfg.Server.Address)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr error
	}{
		{"UnknownKey", "server:\n  adress: x\n", nil},
		{"Syntax", "server: [\n", nil},
		{"EmptyAddress", "server:\n  address: \"\"\n", ErrMissingAddress},
		{"BadBLOBMode", "blob:\n  mode: Sometimes\n", wire.ErrInvalidAttributeValue},
		{"NegativeBLOBSize", "blob:\n  max_publish_size: -1\n", ErrInvalidValue},
		{"NegativeTimeout", "server:\n  connect_timeout: -1s\n", ErrInvalidValue},
		{"BadJitter", "backoff:\n  jitter: 2\n", ErrInvalidValue},
		{"WildcardPrefix", "nats:\n  prefix: \"indi.>\"\n", ErrInvalidValue},
		{"EmptyPrefix", "nats:\n  prefix: \"\"\n", ErrInvalidValue},
		{"NegativeTTL", "redis:\n  ttl: -1h\n", ErrInvalidValue},
		{"BadLevel", "log:\n  level: loud\n", ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestNATSDisabledSkipsPrefixCheck(t *testing.T) {
	cfg, err := Parse([]byte("nats:\n  url: \"\"\n  prefix: \"\"\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.NATS.URL)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvServerAddress: "10.0.0.5",
		EnvNATSURL:       "nats://other:4222",
		EnvRedisAddr:     "other:6379",
		EnvRedisPassword: "secret",
		EnvRedisDB:       "4",
		EnvLogLevel:      "warn",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, "10.0.0.5:7624", cfg.Server.Address)
	assert.Equal(t, "nats://other:4222", cfg.NATS.URL)
	assert.Equal(t, "other:6379", cfg.Redis.Addr)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.Equal(t, 4, cfg.Redis.DB)
	assert.Equal(t, "warn", cfg.Log.Level)

	env[EnvRedisDB] = "four"
	assert.ErrorIs(t, Default().ApplyEnv(lookup), ErrInvalidValue)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	t.Setenv(EnvLogLevel, "error")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"debug", "INFO", "", "warning", "error"} {
		_, err := ParseLevel(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseLevel("trace")
	assert.ErrorIs(t, err, ErrInvalidValue)
}
