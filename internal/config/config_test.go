package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()
	if cfg.DefaultVolume != 1.0 {
		t.Errorf("expected default volume 1.0, got %f", cfg.DefaultVolume)
	}
	if cfg.PublicDir != "public" {
		t.Errorf("expected public dir 'public', got %q", cfg.PublicDir)
	}
	if !cfg.IgnoreSilent {
		t.Error("expected ignore_silent to default to true")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("expected defaults for missing file, got error: %v", err)
	}
	if cfg.DefaultVolume != 1.0 {
		t.Errorf("expected default config, got volume %f", cfg.DefaultVolume)
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := GetDefaultConfig()
	cfg.FadeMusic = true
	cfg.DefaultVolume = 0.25
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if !loaded.FadeMusic {
		t.Error("expected fade_music to round-trip")
	}
	if loaded.DefaultVolume != 0.25 {
		t.Errorf("expected volume 0.25, got %f", loaded.DefaultVolume)
	}
}

func TestLoadConfigInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestLoadOrCreateWritesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	if _, err := LoadOrCreate(path); err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected config file to be created: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("AUDIOBRIDGE_DEFAULT_VOLUME", "0.5")
	t.Setenv("AUDIOBRIDGE_FADE", "true")

	cfg := GetDefaultConfig()
	cfg.ApplyEnv()
	if cfg.DefaultVolume != 0.5 {
		t.Errorf("expected env volume 0.5, got %f", cfg.DefaultVolume)
	}
	if !cfg.FadeMusic {
		t.Error("expected env to enable fade")
	}
}
