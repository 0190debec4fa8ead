package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/nixxel-company-limited/todo-receipts/escpos"
	"github.com/spf13/viper"
)

// Version is written to fresh config files.
const Version = "2.0.0"

// DirName is the per-user configuration directory under $HOME.
const DirName = ".todo-receipts"

// QR rendering modes
const (
	QRModeNative = "native"
	QRModeRaster = "raster"
)

// Config holds the user settings shared by every command.
type Config struct {
	Version      string        `mapstructure:"version"`
	Printer      string        `mapstructure:"printer"`
	ServerPort   int           `mapstructure:"serverport"`
	DataDir      string        `mapstructure:"datadir"`
	LogoPath     string        `mapstructure:"logopath"`
	LogoWidth    int           `mapstructure:"logowidth"`
	CloudURL     string        `mapstructure:"cloudurl"`
	PollInterval time.Duration `mapstructure:"pollinterval"`
	RelayAddress string        `mapstructure:"relayaddress"`
	Title        string        `mapstructure:"title"`
	TerminalName string        `mapstructure:"terminalname"`
	QRMode       string        `mapstructure:"qrmode"`
	LogLevel     string        `mapstructure:"loglevel"`
}

// DatabasePath returns the SQLite file holding the to-do items.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "todos.db")
}

// Manager loads and persists the config file of one directory.
type Manager struct {
	dir string
}

// NewManager creates a manager rooted at dir. An empty dir selects DefaultDir.
func NewManager(dir string) *Manager {
	if dir == "" {
		dir = DefaultDir()
	}
	return &Manager{dir: dir}
}

// DefaultDir returns ~/.todo-receipts.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	return filepath.Join(home, DirName)
}

// Dir returns the configuration directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Path returns the config file location.
func (m *Manager) Path() string {
	return filepath.Join(m.dir, "config.json")
}

// defaults maps every settable key to its value when nothing is configured.
func defaults(dir string) map[string]any {
	return map[string]any{
		"version":      Version,
		"printer":      "",
		"serverport":   3000,
		"datadir":      dir,
		"logopath":     filepath.Join(dir, "logo.png"),
		"logowidth":    200,
		"cloudurl":     "https://todo-receipts-production.up.railway.app",
		"pollinterval": 5 * time.Second,
		"relayaddress": "localhost:9100",
		"title":        "ASHNI OPS TERMINAL",
		"terminalname": "Marlboro",
		"qrmode":       QRModeNative,
		"loglevel":     "info",
	}
}

var envBindings = map[string]string{
	"printer":      "TODO_RECEIPTS_PRINTER",
	"serverport":   "PORT",
	"datadir":      "DATA_DIR",
	"cloudurl":     "CLOUD_URL",
	"relayaddress": "SERVER_ADDRESS",
	"loglevel":     "LOG_LEVEL",
}

// newViper builds a viper instance with defaults and env bindings. File
// contents are read separately so a broken file can fall back to defaults.
func (m *Manager) newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigFile(m.Path())
	v.SetConfigType("json")
	for key, value := range defaults(m.dir) {
		v.SetDefault(key, value)
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
	return v
}

// Load reads the config file, overlays environment variables (including a
// .env file in the working directory) and fills in defaults. A missing file
// yields the defaults. A file that cannot be parsed is reported through warn
// and ignored.
func (m *Manager) Load(warn func(error)) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		notify(warn, fmt.Errorf("failed to load .env: %w", err))
	}

	v := m.newViper()
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			notify(warn, fmt.Errorf("failed to parse config file, using defaults: %w", err))
			v = m.newViper()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Set updates a single key and writes the file.
func (m *Manager) Set(key, value string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	def, ok := defaults(m.dir)[key]
	if !ok {
		return fmt.Errorf("unknown config key %q (valid keys: %s)", key, strings.Join(Keys(), ", "))
	}

	parsed, err := parseValue(def, value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	v, err := m.readFile()
	if err != nil {
		return err
	}
	v.Set(key, parsed)
	return m.write(v)
}

// Reset overwrites the file with the defaults.
func (m *Manager) Reset() error {
	v := viper.New()
	v.SetConfigType("json")
	v.Set("version", Version)
	v.Set("serverport", 3000)
	return m.write(v)
}

// Keys returns the settable keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, 16)
	for k := range defaults("") {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// readFile loads only the file contents, without defaults or environment,
// so that Set persists nothing the user did not write.
func (m *Manager) readFile() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(m.Path())
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if !v.IsSet("version") {
		v.Set("version", Version)
	}
	return v, nil
}

func (m *Manager) write(v *viper.Viper) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := v.WriteConfigAs(m.Path()); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func parseValue(def any, value string) (any, error) {
	switch def.(type) {
	case int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, err
		}
		return n, nil
	case time.Duration:
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, err
		}
		return d.String(), nil
	default:
		return value, nil
	}
}

func validate(cfg *Config) error {
	if cfg.ServerPort < 1 || cfg.ServerPort > 65535 {
		return fmt.Errorf("serverport must be between 1 and 65535")
	}
	if cfg.LogoWidth < 8 || cfg.LogoWidth > escpos.PrintableDots {
		return fmt.Errorf("logowidth must be between 8 and %d dots", escpos.PrintableDots)
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("pollinterval must be positive")
	}
	switch cfg.QRMode {
	case QRModeNative, QRModeRaster:
	default:
		return fmt.Errorf("qrmode must be %q or %q", QRModeNative, QRModeRaster)
	}
	return nil
}

func notify(warn func(error), err error) {
	if warn != nil {
		warn(err)
	}
}
