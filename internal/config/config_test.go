package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Driver != "sqlite" {
		t.Errorf("expected sqlite driver by default, got %q", cfg.Database.Driver)
	}
	if cfg.Pipeline.FiscalYearStartMonth != 4 {
		t.Errorf("expected fiscal year to start in April, got %d", cfg.Pipeline.FiscalYearStartMonth)
	}
	if cfg.Tax.DefaultRate != 18 {
		t.Errorf("expected default tax rate 18, got %v", cfg.Tax.DefaultRate)
	}
	if cfg.Address() != "localhost:8084" {
		t.Errorf("unexpected address %q", cfg.Address())
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_DRIVER", "memory")
	t.Setenv("TAX_HOME_STATE", " maharashtra ")
	t.Setenv("TAX_CATEGORY_RATES", "food=5, electronics=28")
	t.Setenv("FISCAL_YEAR_START_MONTH", "1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Tax.HomeState != "MAHARASHTRA" {
		t.Errorf("home state should be normalized, got %q", cfg.Tax.HomeState)
	}
	want := map[string]float64{"FOOD": 5, "ELECTRONICS": 28}
	if diff := cmp.Diff(want, cfg.Tax.CategoryRates); diff != "" {
		t.Errorf("category rates mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown driver", "DATABASE_DRIVER", "mongo"},
		{"postgres without dsn", "DATABASE_DRIVER", "postgres"},
		{"bad log level", "LOG_LEVEL", "loud"},
		{"bad fiscal month", "FISCAL_YEAR_START_MONTH", "13"},
		{"bad category rate", "TAX_CATEGORY_RATES", "FOOD"},
		{"rate out of range", "TAX_CATEGORY_RATES", "FOOD=120"},
		{"bad port", "SERVER_PORT", "70000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(tt.key, tt.value)

			if _, err := Load(); err == nil {
				t.Errorf("Load() with %s=%s should fail", tt.key, tt.value)
			}
		})
	}
}
