// Package config loads database credentials and translation settings.
//
// Two sources are supported:
//
//   - an OpenCart config.php, read by extracting its define() constants
//   - any file viper understands (YAML, TOML, JSON, .env), selected by extension
//
// Environment variables with the upper-cased key name (DB_HOSTNAME,
// TRANSLATION_MODEL, ...) override values from the file.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

// DefaultFile is the config file looked up when --config is not given.
const DefaultFile = "config.php"

// ErrNotFound is returned by Load when the config file does not exist.
var ErrNotFound = errors.New("config file not found")

// MissingKeyError reports a required constant absent from the config file.
type MissingKeyError struct {
	Key  string
	File string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("%s not defined in %s", e.Key, filepath.Base(e.File))
}

// RequiredKeys are the constants every config must define. A key defined
// with an empty value (typically DB_PASSWORD) still counts as present.
var RequiredKeys = []string{
	"DB_HOSTNAME",
	"DB_USERNAME",
	"DB_PASSWORD",
	"DB_DATABASE",
	"DB_PORT",
	"DB_PREFIX",
}

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// Database drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is the fully resolved configuration of a run.
type Config struct {
	// File is the path the configuration was read from.
	File        string
	DB          DBConfig
	Translation TranslationConfig
}

// DBConfig holds the connection settings of the OpenCart database.
type DBConfig struct {
	Driver   string
	Hostname string
	Username string
	Password string
	Database string
	Port     int
	// Prefix is the OpenCart table prefix, e.g. "oc_".
	Prefix string
}

// TranslationConfig holds the settings handed to the translator.
type TranslationConfig struct {
	// StoreType describes the shop for the system prompt.
	StoreType string
	// SourceLang and DestLang are language names or BCP 47 codes.
	SourceLang string
	DestLang   string
	Model      string
	// Temperature is the sampling temperature; kept low for faithful output.
	Temperature float64
	BaseURL     string
	Timeout     time.Duration
	// SystemPrompt overrides the built-in prompt template when set.
	SystemPrompt string
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the configuration at path, applies environment overrides and
// defaults, and validates the required database keys.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultFile
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrNotFound)
	}

	v := viper.New()
	setDefaults(v)

	if strings.EqualFold(filepath.Ext(path), ".php") {
		consts, err := ParsePHPFile(path)
		if err != nil {
			return nil, err
		}
		if err := v.MergeConfigMap(consts); err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	} else {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range RequiredKeys {
		if !v.IsSet(strings.ToLower(key)) {
			return nil, &MissingKeyError{Key: key, File: path}
		}
	}

	driver, err := normalizeDriver(v.GetString("db_driver"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	port, err := strconv.Atoi(strings.TrimSpace(v.GetString("db_port")))
	if err != nil {
		return nil, fmt.Errorf("%s: DB_PORT %q is not a number", filepath.Base(path), v.GetString("db_port"))
	}

	cfg := &Config{
		File: path,
		DB: DBConfig{
			Driver:   driver,
			Hostname: v.GetString("db_hostname"),
			Username: v.GetString("db_username"),
			Password: v.GetString("db_password"),
			Database: v.GetString("db_database"),
			Port:     port,
			Prefix:   v.GetString("db_prefix"),
		},
		Translation: TranslationConfig{
			StoreType:    v.GetString("translation.store_type"),
			SourceLang:   v.GetString("translation.source_lang"),
			DestLang:     v.GetString("translation.dest_lang"),
			Model:        v.GetString("translation.model"),
			Temperature:  v.GetFloat64("translation.temperature"),
			BaseURL:      v.GetString("translation.base_url"),
			Timeout:      v.GetDuration("translation.timeout"),
			SystemPrompt: v.GetString("translation.system_prompt"),
		},
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db_driver", DriverMySQL)
	v.SetDefault("translation.store_type", "sports equipment and accessories")
	v.SetDefault("translation.source_lang", "Russian")
	v.SetDefault("translation.dest_lang", "Ukrainian")
	v.SetDefault("translation.model", "gpt-4o")
	v.SetDefault("translation.temperature", 0.2)
	v.SetDefault("translation.base_url", "https://api.openai.com/v1")
	v.SetDefault("translation.timeout", 120*time.Second)
}

// normalizeDriver maps OpenCart DB_DRIVER values onto the supported drivers.
func normalizeDriver(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "mysql", "mysqli", "mpdo", "pdo":
		return DriverMySQL, nil
	case "postgres", "postgre", "pgsql", "postgresql":
		return DriverPostgres, nil
	case "sqlite", "sqlite3":
		return DriverSQLite, nil
	}
	return "", fmt.Errorf("unsupported DB_DRIVER %q (valid: mysqli, pdo, pgsql, sqlite)", name)
}

// ---------------------------------------------------------------------------
// DSN
// ---------------------------------------------------------------------------

// DSN returns the connection string for the configured driver.
func (c DBConfig) DSN() string {
	switch c.Driver {
	case DriverPostgres:
		u := &url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(c.Username, c.Password),
			Host:     net.JoinHostPort(c.Hostname, strconv.Itoa(c.Port)),
			Path:     "/" + c.Database,
			RawQuery: "sslmode=disable",
		}
		return u.String()
	case DriverSQLite:
		return c.Database
	default:
		mc := mysql.NewConfig()
		mc.User = c.Username
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(c.Hostname, strconv.Itoa(c.Port))
		mc.DBName = c.Database
		mc.ParseTime = true
		mc.Params = map[string]string{"charset": "utf8mb4"}
		return mc.FormatDSN()
	}
}

// Table returns the prefixed name of an OpenCart table.
func (c DBConfig) Table(name string) string {
	return c.Prefix + name
}
