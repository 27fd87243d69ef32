package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCfg(t *testing.T) {
	t.Run("reads the importer section", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		content := `[importer]
stagingdb = "/tmp/stage.db"
batchsize = 250
loglevel = "debug"
`
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
		cfg, err := LoadCfg(path)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if cfg.StagingDB != "/tmp/stage.db" {
			t.Errorf("expected stagingdb from file, got %q", cfg.StagingDB)
		}
		if cfg.BatchSize != 250 {
			t.Errorf("expected batchsize 250, got %d", cfg.BatchSize)
		}
		if cfg.LogLevel != "debug" {
			t.Errorf("expected loglevel debug, got %q", cfg.LogLevel)
		}
	})

	t.Run("missing keys fall back to defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(path, []byte("[importer]\nbatchsize = 10\n"), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
		cfg, err := LoadCfg(path)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		def := Defaults()
		if cfg.DataDB != def.DataDB || cfg.MaxRetries != def.MaxRetries || cfg.LogLevel != def.LogLevel {
			t.Errorf("expected defaults applied, got %+v", cfg)
		}
		if cfg.BatchSize != 10 {
			t.Errorf("expected batchsize kept, got %d", cfg.BatchSize)
		}
	})

	t.Run("missing file returns defaults with error", func(t *testing.T) {
		cfg, err := LoadCfg(filepath.Join(t.TempDir(), "nope.toml"))
		if err == nil {
			t.Error("expected error for missing config")
		}
		if cfg.BatchSize != Defaults().BatchSize {
			t.Errorf("expected default batchsize, got %d", cfg.BatchSize)
		}
	})
}
