package contribquest

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	cfg := DefaultConfig()
	if err = toml.NewDecoder(file).Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns the configuration used when a field is absent from
// the config file. The claim durations match the platform defaults the
// contribution guidelines document.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			RateLimitPerMin:  100,
			CORSAllowOrigins: "*",
		},
		Claims: ClaimsConfig{
			EasyDays:               7,
			MediumDays:             14,
			HardDays:               21,
			GracePeriodHours:       24,
			SweepIntervalMinutes:   5,
			ReminderThresholdHours: 24,
			MinExtensionDays:       1,
			MaxExtensionDays:       14,
			MinJustificationLen:    10,
			MaxJustificationLen:    1000,
		},
	}
}

type Config struct {
	Log    LogConfig    `toml:"log"`
	Server ServerConfig `toml:"server"`
	DB     DBConfig     `toml:"db"`
	Claims ClaimsConfig `toml:"claims"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	Format    string     `toml:"format"`
	AddSource bool       `toml:"add_source"`
}

type ServerConfig struct {
	Host             string `toml:"host"`
	Port             int    `toml:"port"`
	RateLimitPerMin  int    `toml:"rate_limit_per_min"`
	CORSAllowOrigins string `toml:"cors_allow_origins"`
	AdminToken       string `toml:"admin_token"`
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type DBConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	Database     string `toml:"database"`
	PoolSize     int    `toml:"pool_size"`
	MaxIdleConns int    `toml:"max_idle_conns"`
	MaxLifetime  int    `toml:"max_lifetime"`
}

// ClaimsConfig drives the claim lifecycle: per-difficulty base lease
// durations, the grace period the reaper waits out before reclaiming, and
// the bounds on deadline extension requests.
type ClaimsConfig struct {
	EasyDays               int `toml:"easy_days"`
	MediumDays             int `toml:"medium_days"`
	HardDays               int `toml:"hard_days"`
	GracePeriodHours       int `toml:"grace_period_hours"`
	SweepIntervalMinutes   int `toml:"sweep_interval_minutes"`
	ReminderThresholdHours int `toml:"reminder_threshold_hours"`
	MinExtensionDays       int `toml:"min_extension_days"`
	MaxExtensionDays       int `toml:"max_extension_days"`
	MinJustificationLen    int `toml:"min_justification_len"`
	MaxJustificationLen    int `toml:"max_justification_len"`
}

func (c ClaimsConfig) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodHours) * time.Hour
}

func (c ClaimsConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}

func (c ClaimsConfig) ReminderThreshold() time.Duration {
	return time.Duration(c.ReminderThresholdHours) * time.Hour
}
