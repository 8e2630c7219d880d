package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Spam.LineLength != 100 {
		t.Errorf("Expected default line length 100, got %d", cfg.Spam.LineLength)
	}
	if cfg.Spam.Processes {
		t.Error("Expected process isolation off by default")
	}
	if cfg.Rotate.MaxFiles != -1 {
		t.Errorf("Expected max files disabled (-1), got %d", cfg.Rotate.MaxFiles)
	}
	if cfg.Rotate.MaxAgeDays != -1 {
		t.Errorf("Expected max age disabled (-1), got %d", cfg.Rotate.MaxAgeDays)
	}
	if cfg.Process.MaxRestarts != 0 {
		t.Errorf("Expected restarts disabled by default, got %d", cfg.Process.MaxRestarts)
	}
	if cfg.Process.RestartOnFailure {
		t.Error("Expected restart on failure off by default")
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	// Run from a temp dir so no stray config.yaml is picked up.
	origDir, _ := os.Getwd()
	tmpDir := t.TempDir()
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("Failed to chdir: %v", err)
	}
	defer os.Chdir(origDir)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	defaults := DefaultConfig()
	if cfg.Spam.LineLength != defaults.Spam.LineLength {
		t.Errorf("Expected line length %d, got %d", defaults.Spam.LineLength, cfg.Spam.LineLength)
	}
	if cfg.Buffer.MaxAge != defaults.Buffer.MaxAge {
		t.Errorf("Expected buffer max age %v, got %v", defaults.Buffer.MaxAge, cfg.Buffer.MaxAge)
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
spam:
  line_length: 42
  processes: true
process:
  restart_on_failure: true
  max_restarts: 3
rotate:
  max_files: 7
  compress: true
  scan_frequency: 2s
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Spam.LineLength != 42 {
		t.Errorf("Expected line length 42, got %d", cfg.Spam.LineLength)
	}
	if !cfg.Spam.Processes {
		t.Error("Expected processes true")
	}
	if !cfg.Process.RestartOnFailure || cfg.Process.MaxRestarts != 3 {
		t.Errorf("Unexpected process config: %+v", cfg.Process)
	}
	if cfg.Rotate.MaxFiles != 7 {
		t.Errorf("Expected max files 7, got %d", cfg.Rotate.MaxFiles)
	}
	if !cfg.Rotate.Compress {
		t.Error("Expected compress true")
	}
	if cfg.Rotate.ScanFrequency != 2*time.Second {
		t.Errorf("Expected scan frequency 2s, got %v", cfg.Rotate.ScanFrequency)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Unexpected logging config: %+v", cfg.Logging)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"negative line length", "spam:\n  line_length: -1\n"},
		{"bad log level", "logging:\n  level: loud\n"},
		{"bad log format", "logging:\n  format: xml\n"},
		{"bad buffer size", "buffer:\n  max_size: lots\n"},
		{"zero scan frequency", "rotate:\n  scan_frequency: 0s\n"},
		{"negative restarts", "process:\n  max_restarts: -2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.content), 0644); err != nil {
				t.Fatalf("Failed to write config file: %v", err)
			}

			if _, err := LoadConfig(configPath); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
		wantErr  bool
	}{
		{"5MB", 5 * 1024 * 1024, false},
		{"64KB", 64 * 1024, false},
		{"1GB", 1024 * 1024 * 1024, false},
		{"100B", 100, false},
		{"42", 42, false},
		{"1kb", 1024, false},
		{"", 0, true},
		{"abc", 0, true},
		{"1.5MB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseSize(%q): expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSize(%q): unexpected error: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("ParseSize(%q): expected %d, got %d", tt.input, tt.expected, got)
			}
		})
	}
}

func TestGetEnvVarName(t *testing.T) {
	if got := GetEnvVarName("spam.line_length"); got != "LOGSPAM_SPAM_LINE_LENGTH" {
		t.Errorf("Unexpected env var name: %s", got)
	}
}
