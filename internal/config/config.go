// Package config loads the INI configuration file this service starts
// from: database connection, server bind address, proxy pool, and the
// list of venues to poll.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"candlecore/internal/kline"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

const maxNumberedSections = 256

// DatabaseConfig holds the PostgreSQL connection parameters.
type DatabaseConfig struct {
	Driver            string
	DataBase          string
	UID               string
	PWD               string
	ConnectionOptions string
	Port              int
	Host              string
}

// SystemConfig holds process-wide operational toggles.
type SystemConfig struct {
	DebugMode    bool
	LogTableName string
	LogLevel     string
}

// ServerConfig holds the HTTP query facade's bind settings.
type ServerConfig struct {
	Address  string
	Port     int
	MaxUsers int
	RootDir  string
	Name     string
}

// ProxyConfig is one entry of the round-robin outbound proxy pool.
type ProxyConfig struct {
	Host     string
	Port     int
	User     string
	Password string
}

// StockExchangeConfig is one venue this service polls.
type StockExchangeConfig struct {
	Type       string
	User       string
	Password   string
	KLineTypes []kline.Interval
	// KLineNames is a symbol-prefix filter; empty means no filtering —
	// every instrument the venue's discovery endpoint reports is polled.
	KLineNames string
}

// Config is the fully parsed, validated configuration.
type Config struct {
	Database       DatabaseConfig
	System         SystemConfig
	Server         ServerConfig
	Proxies        []ProxyConfig
	StockExchanges []StockExchangeConfig
}

// Load reads path as INI, applying `.env` then environment variable
// overrides before validating the result. A missing `.env` is not an
// error — it just means defaults and the INI file are all that apply.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("no .env file found, using config file and environment only")
	}

	iniFile, err := ini.LoadSources(ini.LoadOptions{AllowShadows: true}, path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := &Config{
		System: SystemConfig{LogLevel: "info"},
		Server: ServerConfig{Address: "0.0.0.0", Port: 8080, MaxUsers: 1000, Name: "candlewatch"},
	}

	dbSec := iniFile.Section("DATABASE")
	cfg.Database = DatabaseConfig{
		Driver:            dbSec.Key("Driver").MustString("postgres"),
		DataBase:          dbSec.Key("DataBase").String(),
		UID:               dbSec.Key("UID").String(),
		PWD:               dbSec.Key("PWD").String(),
		ConnectionOptions: dbSec.Key("ConnectionOptions").String(),
		Port:              dbSec.Key("Port").MustInt(5432),
		Host:              dbSec.Key("Host").MustString("localhost"),
	}

	sysSec := iniFile.Section("SYSTEM")
	cfg.System = SystemConfig{
		DebugMode:    sysSec.Key("DebugMode").MustBool(false),
		LogTableName: sysSec.Key("LogTableName").MustString("log"),
		LogLevel:     sysSec.Key("LogLevel").MustString("info"),
	}

	srvSec := iniFile.Section("SERVER")
	cfg.Server = ServerConfig{
		Address:  srvSec.Key("Address").MustString("0.0.0.0"),
		Port:     srvSec.Key("Port").MustInt(8080),
		MaxUsers: srvSec.Key("MaxUsers").MustInt(1000),
		RootDir:  srvSec.Key("RootDir").String(),
		Name:     srvSec.Key("Name").MustString("candlewatch"),
	}

	for i := 0; i < maxNumberedSections; i++ {
		name := fmt.Sprintf("PROXY_%d", i)
		if !iniFile.HasSection(name) {
			continue
		}
		sec := iniFile.Section(name)
		cfg.Proxies = append(cfg.Proxies, ProxyConfig{
			Host:     sec.Key("Host").String(),
			Port:     sec.Key("Port").MustInt(0),
			User:     sec.Key("User").String(),
			Password: sec.Key("Password").String(),
		})
	}

	for i := 0; i < maxNumberedSections; i++ {
		name := fmt.Sprintf("STOCK_EXCHANGE_%d", i)
		if !iniFile.HasSection(name) {
			continue
		}
		sec := iniFile.Section(name)
		sc := StockExchangeConfig{
			Type:       strings.ToUpper(sec.Key("Type").String()),
			User:       sec.Key("User").String(),
			Password:   sec.Key("Password").String(),
			KLineNames: sec.Key("KLineNames").String(),
		}
		for _, raw := range strings.Split(sec.Key("KLineTypes").String(), ",") {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			interval, err := kline.ParseInterval(raw)
			if err != nil {
				return nil, fmt.Errorf("config: %s: %w", name, err)
			}
			sc.KLineTypes = append(sc.KLineTypes, interval)
		}
		cfg.StockExchanges = append(cfg.StockExchanges, sc)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides lets CANDLEWATCH_* environment variables override the
// INI file without editing it, the same override shape the teacher's YAML
// loader applied.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CANDLEWATCH_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("CANDLEWATCH_DB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = p
		}
	}
	if v := os.Getenv("CANDLEWATCH_DB_UID"); v != "" {
		cfg.Database.UID = v
	}
	if v := os.Getenv("CANDLEWATCH_DB_PWD"); v != "" {
		cfg.Database.PWD = v
	}
	if v := os.Getenv("CANDLEWATCH_DB_NAME"); v != "" {
		cfg.Database.DataBase = v
	}
	if v := os.Getenv("CANDLEWATCH_SERVER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("CANDLEWATCH_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("CANDLEWATCH_LOG_LEVEL"); v != "" {
		cfg.System.LogLevel = v
	}
}

// Validate rejects a configuration this service cannot safely start with.
func (c *Config) Validate() error {
	if c.Database.DataBase == "" {
		return fmt.Errorf("config: [DATABASE] DataBase is required")
	}
	if c.Database.UID == "" {
		return fmt.Errorf("config: [DATABASE] UID is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("config: [DATABASE] Port must be between 1 and 65535")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: [SERVER] Port must be between 1 and 65535")
	}
	if c.Server.MaxUsers <= 0 {
		return fmt.Errorf("config: [SERVER] MaxUsers must be positive")
	}
	if len(c.StockExchanges) == 0 {
		return fmt.Errorf("config: at least one [STOCK_EXCHANGE_N] section is required")
	}
	for i, sc := range c.StockExchanges {
		valid := false
		for _, v := range supportedVenueTypes {
			if sc.Type == v {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("config: STOCK_EXCHANGE_%d has unsupported Type %q", i, sc.Type)
		}
		if len(sc.KLineTypes) == 0 {
			return fmt.Errorf("config: STOCK_EXCHANGE_%d requires at least one KLineTypes entry", i)
		}
	}
	return nil
}

var supportedVenueTypes = []string{"BINANCE", "BYBIT", "OKX", "MOEX"}

// DatabaseConnectionString builds a lib/pq connection string from the
// parsed [DATABASE] section.
func (c *Config) DatabaseConnectionString() string {
	sslMode := "disable"
	if c.Database.ConnectionOptions != "" {
		sslMode = c.Database.ConnectionOptions
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.UID, c.Database.PWD, c.Database.DataBase, sslMode,
	)
}
