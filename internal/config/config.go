package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"campaignflow/internal/paths"
)

// DefaultPath is the config file looked up when no --config flag is given.
// Its absence is not an error.
const DefaultPath = "config.yaml"

const envPrefix = "CAMPAIGNFLOW_"

type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Sending SendingConfig `yaml:"sending"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

type BrowserConfig struct {
	Headless            bool   `yaml:"headless"`
	ProfileDir          string `yaml:"profile_dir"`
	ChromePath          string `yaml:"chrome_path"`
	DebugPort           int    `yaml:"debug_port"`
	LoginTimeoutSeconds int    `yaml:"login_timeout_seconds"`
	PrintQR             bool   `yaml:"print_qr"`
	SkipNetworkCheck    bool   `yaml:"skip_network_check"`
}

type SendingConfig struct {
	TypingMinMillis          int `yaml:"typing_min_ms"`
	TypingMaxMillis          int `yaml:"typing_max_ms"`
	PacingMinSeconds         int `yaml:"pacing_min_seconds"`
	PacingMaxSeconds         int `yaml:"pacing_max_seconds"`
	ComposerTimeoutSeconds   int `yaml:"composer_timeout_seconds"`
	AttachTimeoutSeconds     int `yaml:"attach_timeout_seconds"`
	FileInputTimeoutSeconds  int `yaml:"file_input_timeout_seconds"`
	SendButtonTimeoutSeconds int `yaml:"send_button_timeout_seconds"`
	AttachMenuDelayMillis    int `yaml:"attach_menu_delay_ms"`
	UploadSettleMillis       int `yaml:"upload_settle_ms"`
}

type ServerConfig struct {
	Listen               string   `yaml:"listen"`
	AllowedOrigins       []string `yaml:"allowed_origins"`
	ShutdownGraceSeconds int      `yaml:"shutdown_grace_seconds"`
	MaxUploadMB          int      `yaml:"max_upload_mb"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	OutputFile string `yaml:"output_file"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	if err := cfg.applyDefaults(); err != nil {
		// only the profile dir lookup can fail; leave it empty and let the
		// browser package report it on start
		cfg.Browser.ProfileDir = ""
	}
	return cfg
}

// Load reads the YAML file at configPath, applies .env and CAMPAIGNFLOW_*
// environment overrides, fills defaults and validates the result.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	var config Config
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case os.IsNotExist(err) && configPath == DefaultPath:
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := config.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := config.applyDefaults(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(envPrefix + key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
		}
		*dst = n
		return nil
	}

	if v, ok := lookup(envPrefix + "HEADLESS"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sHEADLESS: %w", envPrefix, err)
		}
		c.Browser.Headless = b
	}
	str("PROFILE_DIR", &c.Browser.ProfileDir)
	str("CHROME_PATH", &c.Browser.ChromePath)
	str("LISTEN", &c.Server.Listen)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FILE", &c.Logging.OutputFile)
	if v, ok := lookup(envPrefix + "ALLOWED_ORIGINS"); ok && v != "" {
		c.Server.AllowedOrigins = strings.Split(v, ",")
	}

	for key, dst := range map[string]*int{
		"DEBUG_PORT":         &c.Browser.DebugPort,
		"LOGIN_TIMEOUT":      &c.Browser.LoginTimeoutSeconds,
		"PACING_MIN_SECONDS": &c.Sending.PacingMinSeconds,
		"PACING_MAX_SECONDS": &c.Sending.PacingMaxSeconds,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) applyDefaults() error {
	if c.Browser.ProfileDir == "" {
		dir, err := paths.ProfileDir()
		if err != nil {
			return fmt.Errorf("failed to resolve profile directory: %w", err)
		}
		c.Browser.ProfileDir = dir
	}
	absPath, err := filepath.Abs(c.Browser.ProfileDir)
	if err != nil {
		return fmt.Errorf("failed to resolve profile directory path: %w", err)
	}
	c.Browser.ProfileDir = absPath

	if c.Browser.ChromePath == "" {
		c.Browser.ChromePath = findChromePath()
	}
	setDefault(&c.Browser.DebugPort, 9222)
	setDefault(&c.Browser.LoginTimeoutSeconds, 60)

	if c.Sending.TypingMinMillis == 0 && c.Sending.TypingMaxMillis == 0 {
		c.Sending.TypingMinMillis, c.Sending.TypingMaxMillis = 10, 50
	}
	if c.Sending.PacingMinSeconds == 0 && c.Sending.PacingMaxSeconds == 0 {
		c.Sending.PacingMinSeconds, c.Sending.PacingMaxSeconds = 5, 15
	}
	setDefault(&c.Sending.ComposerTimeoutSeconds, 30)
	setDefault(&c.Sending.AttachTimeoutSeconds, 10)
	setDefault(&c.Sending.FileInputTimeoutSeconds, 10)
	setDefault(&c.Sending.SendButtonTimeoutSeconds, 15)
	setDefault(&c.Sending.AttachMenuDelayMillis, 1000)
	setDefault(&c.Sending.UploadSettleMillis, 2000)

	if c.Server.Listen == "" {
		c.Server.Listen = "127.0.0.1:8000"
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:5173"}
	}
	setDefault(&c.Server.ShutdownGraceSeconds, 5)
	setDefault(&c.Server.MaxUploadMB, 64)

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	return nil
}

func setDefault(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

// Validate checks value ranges that defaults cannot repair.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(&c.Browser,
		validation.Field(&c.Browser.ProfileDir, validation.Required),
		validation.Field(&c.Browser.DebugPort, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.Browser.LoginTimeoutSeconds, validation.Min(1)),
	)
	if err != nil {
		return fmt.Errorf("browser: %w", err)
	}

	err = validation.ValidateStruct(&c.Sending,
		validation.Field(&c.Sending.TypingMinMillis, validation.Min(0)),
		validation.Field(&c.Sending.TypingMaxMillis, validation.Min(c.Sending.TypingMinMillis)),
		validation.Field(&c.Sending.PacingMinSeconds, validation.Min(0)),
		validation.Field(&c.Sending.PacingMaxSeconds, validation.Min(c.Sending.PacingMinSeconds)),
		validation.Field(&c.Sending.ComposerTimeoutSeconds, validation.Min(1)),
		validation.Field(&c.Sending.AttachTimeoutSeconds, validation.Min(1)),
		validation.Field(&c.Sending.FileInputTimeoutSeconds, validation.Min(1)),
		validation.Field(&c.Sending.SendButtonTimeoutSeconds, validation.Min(1)),
	)
	if err != nil {
		return fmt.Errorf("sending: %w", err)
	}

	err = validation.ValidateStruct(&c.Server,
		validation.Field(&c.Server.Listen, validation.Required),
		validation.Field(&c.Server.ShutdownGraceSeconds, validation.Min(0)),
		validation.Field(&c.Server.MaxUploadMB, validation.Min(1)),
	)
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}

	err = validation.ValidateStruct(&c.Logging,
		validation.Field(&c.Logging.Level, validation.In("trace", "debug", "info", "warn", "warning", "error")),
	)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}

func (b BrowserConfig) LoginTimeout() time.Duration {
	return time.Duration(b.LoginTimeoutSeconds) * time.Second
}

func (s ServerConfig) ShutdownGrace() time.Duration {
	return time.Duration(s.ShutdownGraceSeconds) * time.Second
}

// findChromePath attempts to locate the Chrome executable on Windows, where
// chromedp's own lookup misses per-user installs.
func findChromePath() string {
	if runtime.GOOS != "windows" {
		return ""
	}
	candidates := []string{
		`C:\Program Files\Google\Chrome\Application\chrome.exe`,
		`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		filepath.Join(os.Getenv("LOCALAPPDATA"), `Google\Chrome\Application\chrome.exe`),
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
