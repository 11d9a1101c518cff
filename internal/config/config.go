package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultMaxMealQty         = 2
	defaultBreakfastCutoff    = 10
	defaultLunchCutoff        = 14
	defaultDinnerCutoff       = 18
	defaultHTTPTimeoutSeconds = 30
)

// Config holds the configuration for the application.
type Config struct {
	DiningAPIURL      string
	HTTPTimeout       time.Duration
	DatabasePath      string
	ReportStoragePath string
	Location          *time.Location

	// Meal Settings
	MaxMealQty          int
	BreakfastCutoffHour int
	LunchCutoffHour     int
	DinnerCutoffHour    int

	// Service account used by dining-admin for report generation
	AdminRoomNo   string
	AdminPassword string

	// Telegram Config
	TelegramBotToken       string
	TelegramWebhookURL     string
	TelegramAllowedUserIDs []int64
	AdminTelegramID        int64
}

// MealSettings is the shape of the optional YAML file named by MEAL_SETTINGS_FILE.
// Nil fields were absent from the file; 0 is a valid midnight cutoff.
type MealSettings struct {
	MaxMealQty *int `yaml:"max_meal_qty"`
	Cutoffs    struct {
		Breakfast *int `yaml:"breakfast"`
		Lunch     *int `yaml:"lunch"`
		Dinner    *int `yaml:"dinner"`
	} `yaml:"cutoff_hours"`
	Timezone string `yaml:"timezone"`
}

// NewFromEnv creates a new Config object from environment variables.
func NewFromEnv() (*Config, error) {
	apiURL := os.Getenv("DINING_API_URL")
	if apiURL == "" {
		return nil, fmt.Errorf("DINING_API_URL environment variable not set")
	}

	cfg := &Config{
		DiningAPIURL:        strings.TrimRight(apiURL, "/"),
		HTTPTimeout:         defaultHTTPTimeoutSeconds * time.Second,
		DatabasePath:        envOr("DATABASE_PATH", "data/dining.db"),
		ReportStoragePath:   envOr("REPORT_STORAGE_PATH", "data/reports"),
		Location:            time.Local,
		MaxMealQty:          defaultMaxMealQty,
		BreakfastCutoffHour: defaultBreakfastCutoff,
		LunchCutoffHour:     defaultLunchCutoff,
		DinnerCutoffHour:    defaultDinnerCutoff,
		AdminRoomNo:         os.Getenv("DINING_ADMIN_ROOM"),
		AdminPassword:       os.Getenv("DINING_ADMIN_PASSWORD"),
		TelegramBotToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramWebhookURL:  os.Getenv("TELEGRAM_WEBHOOK_URL"),
	}

	timezone := ""
	if path := os.Getenv("MEAL_SETTINGS_FILE"); path != "" {
		settings, err := LoadMealSettings(path)
		if err != nil {
			return nil, err
		}
		cfg.applyMealSettings(settings)
		timezone = settings.Timezone
	}

	// Explicit environment variables win over the settings file.
	intVars := []struct {
		key string
		dst *int
	}{
		{"MAX_MEAL_QTY", &cfg.MaxMealQty},
		{"BREAKFAST_CUTOFF_HOUR", &cfg.BreakfastCutoffHour},
		{"LUNCH_CUTOFF_HOUR", &cfg.LunchCutoffHour},
		{"DINNER_CUTOFF_HOUR", &cfg.DinnerCutoffHour},
	}
	for _, v := range intVars {
		if raw := os.Getenv(v.key); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", v.key, err)
			}
			*v.dst = n
		}
	}

	if raw := os.Getenv("HTTP_TIMEOUT_SECONDS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid HTTP_TIMEOUT_SECONDS: %w", err)
		}
		cfg.HTTPTimeout = time.Duration(n) * time.Second
	}

	if tz := os.Getenv("DINING_TIMEZONE"); tz != "" {
		timezone = tz
	}
	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
		}
		cfg.Location = loc
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Telegram Config (Optional for CLI, required for Bot)
	for _, part := range strings.Split(os.Getenv("TELEGRAM_ALLOWED_USER_IDS"), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_ALLOWED_USER_IDS entry %q: %w", part, err)
		}
		cfg.TelegramAllowedUserIDs = append(cfg.TelegramAllowedUserIDs, id)
	}
	if raw := os.Getenv("ADMIN_TELEGRAM_ID"); raw != "" {
		fmt.Sscanf(raw, "%d", &cfg.AdminTelegramID)
	}

	return cfg, nil
}

// LoadMealSettings reads the YAML meal settings file.
func LoadMealSettings(path string) (*MealSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read meal settings file: %w", err)
	}
	var settings MealSettings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse meal settings file: %w", err)
	}
	return &settings, nil
}

func (c *Config) applyMealSettings(s *MealSettings) {
	for _, v := range []struct {
		src *int
		dst *int
	}{
		{s.MaxMealQty, &c.MaxMealQty},
		{s.Cutoffs.Breakfast, &c.BreakfastCutoffHour},
		{s.Cutoffs.Lunch, &c.LunchCutoffHour},
		{s.Cutoffs.Dinner, &c.DinnerCutoffHour},
	} {
		if v.src != nil {
			*v.dst = *v.src
		}
	}
}

func (c *Config) validate() error {
	if c.MaxMealQty < 1 {
		return fmt.Errorf("MAX_MEAL_QTY must be at least 1, got %d", c.MaxMealQty)
	}
	for name, h := range map[string]int{
		"BREAKFAST_CUTOFF_HOUR": c.BreakfastCutoffHour,
		"LUNCH_CUTOFF_HOUR":     c.LunchCutoffHour,
		"DINNER_CUTOFF_HOUR":    c.DinnerCutoffHour,
	} {
		if h < 0 || h > 24 {
			return fmt.Errorf("%s must be between 0 and 24, got %d", name, h)
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
