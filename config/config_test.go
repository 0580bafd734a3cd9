package config

import (
	"os"
	"path/filepath"
	"testing"

	"chartengine/internal/indicator"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OFFLINE_MODE", "true")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("PAGE_SIZE", "")

	cfg := Load()
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %q", cfg.RedisAddr)
	}
	if cfg.PageSize != 300 {
		t.Errorf("PageSize = %d", cfg.PageSize)
	}
	if cfg.PageCacheTTL.Seconds() != 60 {
		t.Errorf("PageCacheTTL = %v", cfg.PageCacheTTL)
	}
	if !cfg.Offline {
		t.Error("Offline not set")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("OFFLINE_MODE", "true")
	t.Setenv("REDIS_ADDR", "redis:6400")
	t.Setenv("PAGE_SIZE", "500")
	t.Setenv("PAGE_CACHE_TTL_SEC", "5")

	cfg := Load()
	if cfg.RedisAddr != "redis:6400" {
		t.Errorf("RedisAddr = %q", cfg.RedisAddr)
	}
	if cfg.PageSize != 500 {
		t.Errorf("PageSize = %d", cfg.PageSize)
	}
	if cfg.PageCacheTTL.Seconds() != 5 {
		t.Errorf("PageCacheTTL = %v", cfg.PageCacheTTL)
	}
}

func TestLoadIgnoresBadInt(t *testing.T) {
	t.Setenv("OFFLINE_MODE", "true")
	t.Setenv("PAGE_SIZE", "many")

	cfg := Load()
	if cfg.PageSize != 300 {
		t.Errorf("PageSize = %d", cfg.PageSize)
	}
}

func TestLoadPresets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	data := `default:
  - type: SMA
    period: 20
intervals:
  "1hour":
    - type: RSI
      period: 14
    - type: MACD
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadPresets(path)
	if err != nil {
		t.Fatal(err)
	}

	def := p.For("1day")
	if len(def) != 1 || def[0] != (indicator.Spec{Type: indicator.TypeSMA, Period: 20}) {
		t.Errorf("default preset = %+v", def)
	}
	hourly := p.For("1hour")
	if len(hourly) != 2 || hourly[0].Type != indicator.TypeRSI || hourly[1].Type != indicator.TypeMACD {
		t.Errorf("1hour preset = %+v", hourly)
	}
}

func TestLoadPresetsRejectsUnknownType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	data := "default:\n  - type: WAVELET\n    period: 9\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPresets(path); err == nil {
		t.Fatal("expected error for unknown indicator type")
	}
}
