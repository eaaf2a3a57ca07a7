package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func TestDefaultDataDir(t *testing.T) {
	dataDir := DefaultDataDir()
	if !strings.HasSuffix(dataDir, ".wasmbus") {
		t.Errorf("DefaultDataDir() should end with .wasmbus, got: %s", dataDir)
	}
}

func TestBindCommonFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	v := viper.New()

	BindCommonFlags(cmd, v)

	err := cmd.Flags().Parse([]string{
		"--data-dir", "/custom/dir",
		"--nats", "nats://lattice:4222",
		"--prefix", "blue",
		"--timeout", "2s",
		"--log-level", "debug",
		"--log-format", "json",
	})
	if err != nil {
		t.Fatalf("Parse flags: %v", err)
	}

	tests := []struct {
		key  string
		want string
	}{
		{"data_dir", "/custom/dir"},
		{"nats_url", "nats://lattice:4222"},
		{"prefix", "blue"},
		{"timeout", "2s"},
		{"observability.log_level", "debug"},
		{"observability.log_format", "json"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := v.GetString(tt.key); got != tt.want {
				t.Errorf("v.GetString(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestBindCommonFlags_defaults(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	v := viper.New()

	BindCommonFlags(cmd, v)
	SetCommonDefaults(v)

	if err := cmd.Flags().Parse([]string{}); err != nil {
		t.Fatalf("Parse flags: %v", err)
	}

	if got := v.GetString("data_dir"); got != Common.DataDir {
		t.Errorf("data_dir = %q, want %q", got, Common.DataDir)
	}
	if got := v.GetString("prefix"); got != Common.Prefix {
		t.Errorf("prefix = %q, want %q", got, Common.Prefix)
	}
	if got := v.GetDuration("timeout"); got != Common.Timeout {
		t.Errorf("timeout = %v, want %v", got, Common.Timeout)
	}
}

func TestBindServerFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	v := viper.New()

	BindServerFlags(cmd, v)

	err := cmd.Flags().Parse([]string{
		"--config", "/etc/wasmbus/config.yaml",
		"--metrics-addr", ":9191",
		"--otlp-endpoint", "localhost:4318",
	})
	if err != nil {
		t.Fatalf("Parse flags: %v", err)
	}

	if got := v.GetString("observability.metrics_addr"); got != ":9191" {
		t.Errorf("observability.metrics_addr = %q", got)
	}
	if got := v.GetString("observability.otlp_endpoint"); got != "localhost:4318" {
		t.Errorf("observability.otlp_endpoint = %q", got)
	}

	t.Run("config flag not bound to viper", func(t *testing.T) {
		if got := v.GetString("config"); got != "" {
			t.Errorf("config should not be in viper, got %q", got)
		}
		configVal, err := cmd.Flags().GetString("config")
		if err != nil {
			t.Fatalf("get config flag: %v", err)
		}
		if configVal != "/etc/wasmbus/config.yaml" {
			t.Errorf("config flag = %q", configVal)
		}
	})
}

func TestLoadInto_configFile(t *testing.T) {
	type cfg struct {
		BaseConfig `mapstructure:",squash"`
		Custom     string `mapstructure:"custom"`
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "wasmbus.yaml")
	content := "custom: from-file\nprefix: file-prefix\ntimeout: 3s\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	v := viper.New()
	var c cfg
	if err := LoadInto(v, "TEST_PREFIX", path, &c); err != nil {
		t.Fatalf("LoadInto() error = %v", err)
	}
	if c.Custom != "from-file" {
		t.Errorf("Custom = %q", c.Custom)
	}
	if c.Prefix != "file-prefix" {
		t.Errorf("Prefix = %q", c.Prefix)
	}
	if c.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v", c.Timeout)
	}
	if c.Observability.LogLevel != Common.LogLevel {
		t.Errorf("LogLevel = %q, want %q", c.Observability.LogLevel, Common.LogLevel)
	}
}

func TestLoadInto_missingExplicitFile(t *testing.T) {
	type cfg struct {
		BaseConfig `mapstructure:",squash"`
	}
	var c cfg
	err := LoadInto(viper.New(), "TEST", filepath.Join(t.TempDir(), "absent.yaml"), &c)
	if err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoadInto_envPrefix(t *testing.T) {
	t.Setenv("MYAPP_PREFIX", "env-prefix")
	t.Setenv("MYAPP_OBSERVABILITY_LOG_LEVEL", "warn")

	type cfg struct {
		BaseConfig `mapstructure:",squash"`
	}

	var c cfg
	if err := LoadInto(viper.New(), "MYAPP", "", &c); err != nil {
		t.Fatalf("LoadInto() error = %v", err)
	}
	if c.Prefix != "env-prefix" {
		t.Errorf("Prefix = %q, want env-prefix", c.Prefix)
	}
	if c.Observability.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", c.Observability.LogLevel)
	}
}
