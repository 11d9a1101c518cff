package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewFromEnv(t *testing.T) {
	// Helper function to set environment variables for a test
	setEnv := func(t *testing.T, key, value string) {
		t.Helper()
		t.Setenv(key, value)
	}

	t.Run("Success", func(t *testing.T) {
		setEnv(t, "DINING_API_URL", "http://dining.test/api/")
		setEnv(t, "TELEGRAM_ALLOWED_USER_IDS", "11, 22")
		setEnv(t, "ADMIN_TELEGRAM_ID", "11")

		cfg, err := NewFromEnv()
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if cfg.DiningAPIURL != "http://dining.test/api" {
			t.Errorf("Expected DiningAPIURL to be 'http://dining.test/api', got '%s'", cfg.DiningAPIURL)
		}
		if cfg.MaxMealQty != 2 {
			t.Errorf("Expected MaxMealQty to default to 2, got %d", cfg.MaxMealQty)
		}
		if cfg.BreakfastCutoffHour != 10 || cfg.LunchCutoffHour != 14 || cfg.DinnerCutoffHour != 18 {
			t.Errorf("Unexpected default cutoffs: %d/%d/%d", cfg.BreakfastCutoffHour, cfg.LunchCutoffHour, cfg.DinnerCutoffHour)
		}
		if cfg.HTTPTimeout != 30*time.Second {
			t.Errorf("Expected HTTPTimeout 30s, got %v", cfg.HTTPTimeout)
		}
		if len(cfg.TelegramAllowedUserIDs) != 2 || cfg.TelegramAllowedUserIDs[1] != 22 {
			t.Errorf("Expected allowed ids [11 22], got %v", cfg.TelegramAllowedUserIDs)
		}
		if cfg.AdminTelegramID != 11 {
			t.Errorf("Expected AdminTelegramID 11, got %d", cfg.AdminTelegramID)
		}
	})

	t.Run("MissingDiningAPIURL", func(t *testing.T) {
		os.Unsetenv("DINING_API_URL")

		_, err := NewFromEnv()
		if err == nil {
			t.Fatal("Expected an error for missing DINING_API_URL, got nil")
		}
		expectedError := "DINING_API_URL environment variable not set"
		if err.Error() != expectedError {
			t.Errorf("Expected error '%s', got '%s'", expectedError, err.Error())
		}
	})

	t.Run("InvalidCutoff", func(t *testing.T) {
		setEnv(t, "DINING_API_URL", "http://dining.test")
		setEnv(t, "LUNCH_CUTOFF_HOUR", "25")

		if _, err := NewFromEnv(); err == nil {
			t.Fatal("Expected an error for out-of-range cutoff, got nil")
		}
	})

	t.Run("SettingsFileWithEnvOverride", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "meals.yaml")
		content := "max_meal_qty: 3\ncutoff_hours:\n  breakfast: 9\n  lunch: 13\n  dinner: 17\ntimezone: UTC\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write settings file: %v", err)
		}

		setEnv(t, "DINING_API_URL", "http://dining.test")
		setEnv(t, "MEAL_SETTINGS_FILE", path)
		setEnv(t, "DINNER_CUTOFF_HOUR", "19")
		setEnv(t, "LUNCH_CUTOFF_HOUR", "")

		cfg, err := NewFromEnv()
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if cfg.MaxMealQty != 3 {
			t.Errorf("Expected MaxMealQty 3 from file, got %d", cfg.MaxMealQty)
		}
		if cfg.BreakfastCutoffHour != 9 || cfg.LunchCutoffHour != 13 {
			t.Errorf("Expected file cutoffs 9/13, got %d/%d", cfg.BreakfastCutoffHour, cfg.LunchCutoffHour)
		}
		if cfg.DinnerCutoffHour != 19 {
			t.Errorf("Expected env override 19 for dinner, got %d", cfg.DinnerCutoffHour)
		}
		if cfg.Location.String() != "UTC" {
			t.Errorf("Expected UTC location, got %s", cfg.Location)
		}
	})

	t.Run("SettingsFileMidnightCutoff", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "meals.yaml")
		content := "cutoff_hours:\n  dinner: 0\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write settings file: %v", err)
		}

		setEnv(t, "DINING_API_URL", "http://dining.test")
		setEnv(t, "MEAL_SETTINGS_FILE", path)

		cfg, err := NewFromEnv()
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if cfg.DinnerCutoffHour != 0 {
			t.Errorf("Expected dinner cutoff 0 from file, got %d", cfg.DinnerCutoffHour)
		}
		if cfg.BreakfastCutoffHour != 10 || cfg.LunchCutoffHour != 14 {
			t.Errorf("Expected absent cutoffs to keep defaults 10/14, got %d/%d", cfg.BreakfastCutoffHour, cfg.LunchCutoffHour)
		}
	})
}
