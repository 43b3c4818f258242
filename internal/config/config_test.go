package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.QuoteCurrency != "BTC" {
		t.Errorf("Expected quote currency BTC, got %s", cfg.QuoteCurrency)
	}
	if cfg.Resolution != "1h" {
		t.Errorf("Expected resolution 1h, got %s", cfg.Resolution)
	}
	if cfg.Window != 21 {
		t.Errorf("Expected window 21, got %d", cfg.Window)
	}
	if cfg.MaxHalfLife != 24 {
		t.Errorf("Expected max half-life 24, got %f", cfg.MaxHalfLife)
	}
	if cfg.ZScoreThreshold != 1.5 {
		t.Errorf("Expected z-score threshold 1.5, got %f", cfg.ZScoreThreshold)
	}
	if cfg.USDPerTrade != 10 {
		t.Errorf("Expected USD per trade 10, got %f", cfg.USDPerTrade)
	}
	if !cfg.CloseAtZScoreCross {
		t.Error("Expected close-at-zscore-cross enabled by default")
	}
	if cfg.LoopDelay != time.Second {
		t.Errorf("Expected loop delay 1s, got %v", cfg.LoopDelay)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("QUOTE_CURRENCY", "USDT")
	t.Setenv("RESOLUTION", "15m")
	t.Setenv("WINDOW", "30")
	t.Setenv("ZSCORE_THRESH", "2.0")
	t.Setenv("MANAGE_EXITS", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.QuoteCurrency != "USDT" {
		t.Errorf("Expected quote currency USDT, got %s", cfg.QuoteCurrency)
	}
	if cfg.Resolution != "15m" {
		t.Errorf("Expected resolution 15m, got %s", cfg.Resolution)
	}
	if cfg.Window != 30 {
		t.Errorf("Expected window 30, got %d", cfg.Window)
	}
	if cfg.ZScoreThreshold != 2.0 {
		t.Errorf("Expected z-score threshold 2.0, got %f", cfg.ZScoreThreshold)
	}
	if !cfg.ManageExits {
		t.Error("Expected manage-exits enabled")
	}
}

func TestLoadRejectsBadWindow(t *testing.T) {
	t.Setenv("WINDOW", "1")

	if _, err := Load(); err == nil {
		t.Error("Expected error for window < 2")
	}
}

func TestParseResolution(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"1m", time.Minute, false},
		{"15m", 15 * time.Minute, false},
		{"1h", time.Hour, false},
		{"4h", 4 * time.Hour, false},
		{"1d", 24 * time.Hour, false},
		{"1M", 30 * 24 * time.Hour, false},
		{"1y", 365 * 24 * time.Hour, false},
		{"", 0, true},
		{"h", 0, true},
		{"1x", 0, true},
		{"-1h", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseResolution(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseResolution(%q) expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseResolution(%q) returned error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseResolution(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
