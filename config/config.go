package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr           string   `yaml:"addr" env:"ADDR"`
	PublicDir      string   `yaml:"public_dir" env:"PUBLIC_DIR"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	TrustedProxies []string `yaml:"trusted_proxies" env:"TRUSTED_PROXIES" envSeparator:","`
	SetupKey       string   `yaml:"setup_key" env:"SETUP_KEY"`
	Debug          bool     `yaml:"debug" env:"DEBUG"`

	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
	Database  DatabaseConfig  `yaml:"database" envPrefix:"DB_"`
	Redis     RedisConfig     `yaml:"redis" envPrefix:"REDIS_"`
	Mail      MailConfig      `yaml:"mail" envPrefix:"MAIL_"`
	Site      SiteConfig      `yaml:"site" envPrefix:"SITE_"`
	Form      FormConfig      `yaml:"form" envPrefix:"FORM_"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envPrefix:"RATE_LIMIT_"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

type DatabaseConfig struct {
	Driver      string `yaml:"driver" env:"DRIVER"`
	Path        string `yaml:"path" env:"PATH"`
	Host        string `yaml:"host" env:"HOST"`
	Port        int    `yaml:"port" env:"PORT"`
	User        string `yaml:"user" env:"USER"`
	Password    string `yaml:"password" env:"PASSWORD"`
	Name        string `yaml:"name" env:"NAME"`
	AutoMigrate bool   `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// Complete reports whether enough connection settings are present to reach the database.
func (db DatabaseConfig) Complete() bool {
	switch db.Driver {
	case "sqlite3":
		return db.Path != ""
	case "mysql":
		return db.Host != "" && db.User != "" && db.Name != ""
	}
	return false
}

type RedisConfig struct {
	URL string `yaml:"url" env:"URL"`
}

type MailConfig struct {
	Enable     bool   `yaml:"enable" env:"ENABLE"`
	Host       string `yaml:"host" env:"HOST"`
	Port       int    `yaml:"port" env:"PORT"`
	User       string `yaml:"user" env:"USER"`
	Pass       string `yaml:"pass" env:"PASS"`
	From       string `yaml:"from" env:"FROM"`
	FromName   string `yaml:"from_name" env:"FROM_NAME"`
	AdminEmail string `yaml:"admin_email" env:"ADMIN_EMAIL"`
}

type SiteConfig struct {
	Name         string `yaml:"name" env:"NAME"`
	BaseURL      string `yaml:"base_url" env:"BASE_URL"`
	ContactEmail string `yaml:"contact_email" env:"CONTACT_EMAIL"`
}

type FormConfig struct {
	Required []string `yaml:"required" env:"REQUIRED" envSeparator:","`
}

type RateLimitConfig struct {
	Attempts int           `yaml:"attempts" env:"ATTEMPTS"`
	Window   time.Duration `yaml:"window" env:"WINDOW"`
}

func Default() Config {
	return Config{
		Addr:           "0.0.0.0:80",
		AllowedOrigins: []string{"*"},
		Log:            LogConfig{Level: "info", Format: "text"},
		Database: DatabaseConfig{
			Driver:      "sqlite3",
			Path:        "signup.sqlite",
			Port:        3306,
			AutoMigrate: true,
		},
		Mail: MailConfig{Port: 587},
		Site: SiteConfig{Name: "New Mexico Socialists"},
		Form: FormConfig{Required: []string{"name", "city"}},
		RateLimit: RateLimitConfig{
			Attempts: 10,
			Window:   time.Hour,
		},
	}
}

// ParseFlags builds the configuration from defaults, an optional YAML file (-config),
// SIGNUP_* environment variables and finally the command-line flags.
func ParseFlags(args []string) (cfg Config, err error) {
	cfg = Default()

	fs := flag.NewFlagSet("signup", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML configuration file")
	host := fs.String("host", "", "listen host name (default 0.0.0.0)")
	port := fs.Uint("port", 0, "listen port number (default 80)")
	debug := fs.Bool("debug", false, "log at DEBUG level")
	publicDir := fs.String("public-dir", "", "directory of static landing pages to serve")
	if err = fs.Parse(args); err != nil {
		return
	}

	if *configPath != "" {
		if err = loadFile(*configPath, &cfg); err != nil {
			return
		}
	}

	if err = env.ParseWithOptions(&cfg, env.Options{Prefix: "SIGNUP_"}); err != nil {
		err = fmt.Errorf("parse env: %w", err)
		return
	}

	if *host != "" || *port != 0 {
		h, p, splitErr := net.SplitHostPort(cfg.Addr)
		if splitErr != nil {
			h, p = "0.0.0.0", "80"
		}
		if *host != "" {
			h = *host
		}
		if *port != 0 {
			p = strconv.Itoa(int(*port))
		}
		cfg.Addr = net.JoinHostPort(h, p)
	}
	if *debug {
		cfg.Debug = true
	}
	if *publicDir != "" {
		cfg.PublicDir = *publicDir
	}

	err = cfg.Validate()
	return
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate rejects settings that would make the service behave unsafely.
// Missing database credentials are tolerated: the handlers report them per request.
func (cfg Config) Validate() error {
	switch cfg.Database.Driver {
	case "sqlite3", "mysql":
	default:
		return fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	if cfg.RateLimit.Attempts <= 0 || cfg.RateLimit.Window <= 0 {
		return errors.New("rate_limit.attempts and rate_limit.window must be positive")
	}
	if cfg.Site.BaseURL != "" {
		u, err := url.Parse(cfg.Site.BaseURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("site.base_url must be an absolute http(s) URL, got %q", cfg.Site.BaseURL)
		}
	}
	if _, err := cfg.TrustedProxyPrefixes(); err != nil {
		return err
	}
	if cfg.Mail.Enable && cfg.Mail.Host == "" {
		return errors.New("mail.host is required when mail is enabled")
	}
	return nil
}

// TrustedProxyPrefixes parses trusted_proxies. Entries are CIDR prefixes or single addresses.
func (cfg Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(cfg.TrustedProxies))
	for _, entry := range cfg.TrustedProxies {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if p, err := netip.ParsePrefix(entry); err == nil {
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("trusted_proxies: %q is neither an IP nor a CIDR prefix", entry)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

func (cfg Config) Url() (url string) {
	url = cfg.Addr
	url = regexp.MustCompile(`^0.0.0.0`).ReplaceAllString(url, "localhost")
	url = "http://" + url
	return
}
