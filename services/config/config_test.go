// services/config/config_test.go
package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/LeNguyenHoangNhan/circuitpython/bus"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	require.Error(t, Validate(nil))

	cfg := Default()
	require.NoError(t, Validate(cfg))

	cfg.LogLevel = "verbose"
	require.ErrorIs(t, Validate(cfg), errBadLogLevel)

	cfg = Default()
	cfg.Pins = []Pin{{Number: 3}, {Number: 3}}
	require.ErrorIs(t, Validate(cfg), errDuplicatePin)

	cfg.Pins = []Pin{{Number: -1}}
	require.ErrorIs(t, Validate(cfg), errNegativePin)

	cfg = Default()
	cfg.HeartbeatSeconds = 0
	require.ErrorIs(t, Validate(cfg), errBadHeartbeat)
}

func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sleepsim.yaml")
	cfg := &Config{
		LogLevel:         "debug",
		StateFile:        "wake.yaml",
		Pins:             []Pin{{Number: 4, Initial: true}, {Number: 5}},
		HeartbeatSeconds: 2,
	}

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Parallel()

	loaded, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), loaded)
}

func TestPublishRetained(t *testing.T) {
	t.Parallel()

	b := bus.NewBus(8)
	require.NoError(t, Publish(Default(), b.NewConnection("config")))

	sub := b.NewConnection("svc").Subscribe(bus.Topic{"config", "log_level"})
	select {
	case msg := <-sub.Channel():
		require.Equal(t, "info", msg.Payload)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for retained config")
	}
}
