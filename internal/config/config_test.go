package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/setevik/kmsgd/internal/event"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Instance.ID == "" {
		t.Error("default instance ID should not be empty")
	}
	if cfg.Device.Path != "/dev/kmsg" {
		t.Errorf("default device path = %q, want %q", cfg.Device.Path, "/dev/kmsg")
	}
	if cfg.Device.Framing != "kmsg" {
		t.Errorf("default framing = %q, want %q", cfg.Device.Framing, "kmsg")
	}
	if cfg.Device.BufferSize != 8192 {
		t.Errorf("default buffer size = %d, want 8192", cfg.Device.BufferSize)
	}
	if cfg.Device.MaxReopen != 10 {
		t.Errorf("default max reopen = %d, want 10", cfg.Device.MaxReopen)
	}
	if cfg.Device.ReopenDelay.Duration != time.Second {
		t.Errorf("default reopen delay = %v, want 1s", cfg.Device.ReopenDelay.Duration)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("default log level = %q, want %q", cfg.Log.Level, "info")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.toml")
	if err != nil {
		t.Fatalf("loading nonexistent config should return defaults, got error: %v", err)
	}
	if cfg.Device.Path != "/dev/kmsg" {
		t.Errorf("device.path = %q, want default", cfg.Device.Path)
	}
}

func TestLoadValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	content := `
[instance]
id = "mynas"

[device]
path = "/run/kmsgd/feed"
framing = "stream"
buffer_size = "2KB"
max_reopen = 3
reopen_delay = "250ms"

[db]
path = "/var/lib/kmsgd/records.db"
batch_limit = 64

[ntfy]
url = "https://ntfy.sh/my-topic"
priority = "max"

[log]
level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mynas", cfg.Instance.ID)
	assert.Equal(t, "/run/kmsgd/feed", cfg.Device.Path)
	assert.Equal(t, "stream", cfg.Device.Framing)
	assert.Equal(t, ByteSize(2048), cfg.Device.BufferSize)
	assert.Equal(t, 3, cfg.Device.MaxReopen)
	assert.Equal(t, 250*time.Millisecond, cfg.Device.ReopenDelay.Duration)
	assert.Equal(t, "/var/lib/kmsgd/records.db", cfg.DBPath("/ignored"))
	assert.Equal(t, 64, cfg.DB.BatchLimit)
	assert.Equal(t, "https://ntfy.sh/my-topic", cfg.Ntfy.URL)
	assert.Equal(t, "max", cfg.Ntfy.Priority)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Unset tables keep their defaults.
	assert.Equal(t, "high", cfg.NtfyPriority(event.SevErr))
}

func TestLoadInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	if err := os.WriteFile(path, []byte("not valid [[[ toml"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid TOML, got nil")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown framing", "[device]\nframing = \"udp\"\n", "device.framing"},
		{"small kmsg buffer", "[device]\nbuffer_size = \"1KB\"\n", "device.buffer_size"},
		{"bad size", "[device]\nbuffer_size = \"lots\"\n", "invalid size"},
		{"negative reopen", "[device]\nmax_reopen = -1\n", "device.max_reopen"},
		{"bad duration", "[device]\nreopen_delay = \"soon\"\n", "soon"},
		{"empty path", "[device]\npath = \"\"\n", "device.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStreamAllowsSmallBuffer(t *testing.T) {
	cfg := Default()
	cfg.Device.Framing = "stream"
	cfg.Device.BufferSize = 64
	assert.NoError(t, cfg.Validate())
}

func TestDBPathDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, filepath.Join("/data", "events.db"), cfg.DBPath("/data"))
}

func TestNtfyPriority(t *testing.T) {
	cfg := Default()

	if p := cfg.NtfyPriority(event.SevEmerg); p != "urgent" {
		t.Errorf("emerg priority = %q, want %q", p, "urgent")
	}
	if p := cfg.NtfyPriority(event.SevWarning); p != "default" {
		t.Errorf("warning priority = %q, want %q", p, "default")
	}
	if p := cfg.NtfyPriority(event.SevInfo); p != "default" {
		t.Errorf("info priority = %q, want %q", p, "default")
	}
}

func TestShouldAlert(t *testing.T) {
	cfg := Default()

	if !cfg.ShouldAlert(event.SevEmerg) {
		t.Error("emerg should be alerted by default")
	}
	if !cfg.ShouldAlert(event.SevCrit) {
		t.Error("crit should be alerted by default")
	}
	if cfg.ShouldAlert(event.SevErr) {
		t.Error("err should not be alerted by default")
	}

	cfg.Ntfy.AlertSeverity = ""
	if cfg.ShouldAlert(event.SevEmerg) {
		t.Error("nothing should be alerted when alert_severity is empty")
	}
}

func TestLoadRejectsBadAlertSeverity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[ntfy]\nalert_severity = \"loud\"\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ntfy.alert_severity")
}

func TestByteSizeText(t *testing.T) {
	tests := []struct {
		in   string
		want ByteSize
	}{
		{"4096", 4096},
		{"512B", 512},
		{"8KB", 8192},
		{"8k", 8192},
		{"16KiB", 16384},
		{"1MB", 1 << 20},
	}
	for _, tt := range tests {
		var b ByteSize
		require.NoError(t, b.UnmarshalText([]byte(tt.in)), tt.in)
		assert.Equal(t, tt.want, b, tt.in)

		out, err := b.MarshalText()
		require.NoError(t, err)
		var back ByteSize
		require.NoError(t, back.UnmarshalText(out))
		assert.Equal(t, b, back)
	}

	var b ByteSize
	assert.Error(t, b.UnmarshalText([]byte("lots")))
	assert.Equal(t, "8.0 KB", ByteSize(8192).String())
}
