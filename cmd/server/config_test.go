package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/zombar/aletheia/internal/classifier"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Port != "8080" || cfg.DBPath != "aletheia.db" {
		t.Errorf("Unexpected defaults %+v", cfg)
	}
	if cfg.MinLength != classifier.DefaultMinLength || cfg.MaxLength != classifier.DefaultMaxLength {
		t.Errorf("Unexpected length bounds %d..%d", cfg.MinLength, cfg.MaxLength)
	}
	if cfg.RedisAddr != "" {
		t.Errorf("Expected queue disabled by default, got %q", cfg.RedisAddr)
	}
}

func TestLoadConfigEnvAndFlags(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("MIN_TEXT_LENGTH", "3")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("HISTORY_SIZE", "not-a-number")

	cfg, err := loadConfig([]string{"-port", "9100", "-history", "7"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Port != "9100" {
		t.Errorf("Expected flag to override env, got %s", cfg.Port)
	}
	if cfg.MinLength != 3 || cfg.RateLimit != 2.5 {
		t.Errorf("Expected env values, got %+v", cfg)
	}
	if cfg.HistorySize != 7 {
		t.Errorf("Expected history 7, got %d", cfg.HistorySize)
	}
}

func TestLoadConfigRejectsBadBounds(t *testing.T) {
	tests := [][]string{
		{"-min-length", "100", "-max-length", "10"},
		{"-min-length", "-1"},
		{"-history", "0"},
		{"-no-such-flag"},
	}
	for _, args := range tests {
		if _, err := loadConfig(args); err == nil {
			t.Errorf("Expected error for %v", args)
		}
	}
}

func TestLoadTable(t *testing.T) {
	table, err := loadTable("")
	if err != nil {
		t.Fatalf("Failed to load built-in table: %v", err)
	}
	if table.PatternCount() == 0 {
		t.Error("Expected built-in patterns")
	}

	path := filepath.Join(t.TempDir(), "custom.yaml")
	custom := `categories:
  - name: truth
    weight: 0.5
    patterns:
      - id: C001
        regex: '\bkiwi\b'
`
	if err := os.WriteFile(path, []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}
	table, err = loadTable(path)
	if err != nil {
		t.Fatalf("Failed to load custom table: %v", err)
	}
	if _, ok := table.Category("truth"); !ok {
		t.Error("Expected truth category in custom table")
	}

	if _, err := loadTable(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}
