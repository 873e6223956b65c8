package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := New()

	if cfg.Role != RoleBallWatch {
		t.Errorf("Role = %q, want %q", cfg.Role, RoleBallWatch)
	}
	if cfg.ExposureCount != 5 {
		t.Errorf("ExposureCount = %d, want 5", cfg.ExposureCount)
	}
	if cfg.Detector != "hough" {
		t.Errorf("Detector = %q, want hough", cfg.Detector)
	}
	if !cfg.ArmOnStart {
		t.Error("ArmOnStart = false, want true")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "ballwatch with peer url",
			mutate: func(c *Config) { c.PeerURL = "ws://cam2:9401/coord" },
		},
		{
			name:   "strobecam needs no peer url",
			mutate: func(c *Config) { c.Role = RoleStrobeCam },
		},
		{
			name:    "unknown role",
			mutate:  func(c *Config) { c.Role = "spectator" },
			wantErr: true,
		},
		{
			name:    "ballwatch without peer url",
			mutate:  func(c *Config) {},
			wantErr: true,
		},
		{
			name: "exposure count too low",
			mutate: func(c *Config) {
				c.PeerURL = "ws://cam2:9401/coord"
				c.ExposureCount = 1
			},
			wantErr: true,
		},
		{
			name: "non-positive peer timeout",
			mutate: func(c *Config) {
				c.PeerURL = "ws://cam2:9401/coord"
				c.PeerTimeoutMS = 0
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LM_CONFIG", "")
	t.Setenv("LM_ROLE", "strobecam")
	t.Setenv("LM_LISTEN_ADDR", ":7777")
	t.Setenv("LM_EXPOSURE_COUNT", "7")
	t.Setenv("LM_ARM_ON_START", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Role != RoleStrobeCam {
		t.Errorf("Role = %q, want strobecam", cfg.Role)
	}
	if cfg.ListenAddr != ":7777" {
		t.Errorf("ListenAddr = %q, want :7777", cfg.ListenAddr)
	}
	if cfg.ExposureCount != 7 {
		t.Errorf("ExposureCount = %d, want 7", cfg.ExposureCount)
	}
	if cfg.ArmOnStart {
		t.Error("ArmOnStart = true, want false from env")
	}
}

func TestLoadFileThenEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	body := []byte("role: strobecam\nlisten_addr: \":8100\"\nlog_level: debug\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("LM_CONFIG", path)
	t.Setenv("LM_LISTEN_ADDR", ":8200") // env wins over file

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Role != RoleStrobeCam {
		t.Errorf("Role = %q, want strobecam from file", cfg.Role)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug from file", cfg.LogLevel)
	}
	if cfg.ListenAddr != ":8200" {
		t.Errorf("ListenAddr = %q, want env override :8200", cfg.ListenAddr)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("LM_CONFIG", "")
	t.Setenv("LM_ROLE", "spectator")

	if _, err := Load(); err == nil {
		t.Error("Load() = nil error for invalid role, want error")
	}
}
