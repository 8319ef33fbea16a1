// Package config assembles the server settings. Later layers override
// earlier ones: built-in defaults, an optional YAML file, a .env file and
// LEENBANK_* environment variables, then command-line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable the server reads.
const EnvPrefix = "LEENBANK_"

// Config holds the server settings.
type Config struct {
	DBPath      string        `yaml:"db"`
	Addr        string        `yaml:"addr"`
	AdminUser   string        `yaml:"admin_user"`
	LogPath     string        `yaml:"log"`
	EmailDomain string        `yaml:"email_domain"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
	ImageSize   int           `yaml:"image_size"`
	Seed        bool          `yaml:"seed"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		DBPath:      "leenbank.sqlite3",
		Addr:        ":8080",
		AdminUser:   "admin",
		EmailDomain: "vistacollege.nl",
		TokenTTL:    24 * time.Hour,
		ImageSize:   1024,
	}
}

const usage = `Usage: leenbank [flags]

Flags:
  -c, -config <path>      YAML config file (default: none)
  -d, -db <path>          SQLite database path (default: leenbank.sqlite3)
  -a, -addr <host:port>   listen address (default: :8080)
  -u, -user <name>        admin username on first run (default: admin)
  -l, -log <path>         log file path (default: no file, stdout/stderr only)
      -email-domain <d>   domain of student email addresses (default: vistacollege.nl)
      -token-ttl <dur>    lifetime of login tokens (default: 24h)
      -seed               add demo accounts and items to an empty database
  -h, -help               show this help and exit

Every flag except -config can also be set in the environment as
LEENBANK_<NAME>, e.g. LEENBANK_DB or LEENBANK_EMAIL_DOMAIN, or in a .env file.
`

// Load builds the configuration from args (without the program name).
// It returns flag.ErrHelp when help was requested.
func Load(args []string, out io.Writer) (*Config, error) {
	// First pass only finds the config file.
	var path string
	probe := newFlagSet(Default(), &path)
	if err := probe.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fmt.Fprint(out, usage)
		}
		return nil, err
	}
	if probe.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", probe.Arg(0))
	}

	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	dotenv, err := godotenv.Read()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	if err := cfg.loadEnv(env(dotenv)); err != nil {
		return nil, err
	}

	// Second pass applies flags on top of everything else.
	if err := newFlagSet(cfg, &path).Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newFlagSet(cfg *Config, configPath *string) *flag.FlagSet {
	set := flag.NewFlagSet("leenbank", flag.ContinueOnError)
	set.SetOutput(io.Discard)
	set.Usage = func() {}

	set.StringVar(configPath, "config", *configPath, "")
	set.StringVar(configPath, "c", *configPath, "")
	set.StringVar(&cfg.DBPath, "db", cfg.DBPath, "")
	set.StringVar(&cfg.DBPath, "d", cfg.DBPath, "")
	set.StringVar(&cfg.Addr, "addr", cfg.Addr, "")
	set.StringVar(&cfg.Addr, "a", cfg.Addr, "")
	set.StringVar(&cfg.AdminUser, "user", cfg.AdminUser, "")
	set.StringVar(&cfg.AdminUser, "u", cfg.AdminUser, "")
	set.StringVar(&cfg.LogPath, "log", cfg.LogPath, "")
	set.StringVar(&cfg.LogPath, "l", cfg.LogPath, "")
	set.StringVar(&cfg.EmailDomain, "email-domain", cfg.EmailDomain, "")
	set.DurationVar(&cfg.TokenTTL, "token-ttl", cfg.TokenTTL, "")
	set.IntVar(&cfg.ImageSize, "image-size", cfg.ImageSize, "")
	set.BoolVar(&cfg.Seed, "seed", cfg.Seed, "")
	return set
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv(e env) error {
	c.DBPath = e.get("DB", c.DBPath)
	c.Addr = e.get("ADDR", c.Addr)
	c.AdminUser = e.get("ADMIN_USER", c.AdminUser)
	c.LogPath = e.get("LOG", c.LogPath)
	c.EmailDomain = e.get("EMAIL_DOMAIN", c.EmailDomain)

	var err error
	if c.TokenTTL, err = e.getDuration("TOKEN_TTL", c.TokenTTL); err != nil {
		return err
	}
	if c.ImageSize, err = e.getInt("IMAGE_SIZE", c.ImageSize); err != nil {
		return err
	}
	if c.Seed, err = e.getBool("SEED", c.Seed); err != nil {
		return err
	}
	return nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.DBPath == "":
		return errors.New("config: db path is empty")
	case c.Addr == "":
		return errors.New("config: listen address is empty")
	case strings.TrimSpace(c.AdminUser) == "":
		return errors.New("config: admin username is empty")
	case c.EmailDomain == "" || strings.Contains(c.EmailDomain, "@"):
		return fmt.Errorf("config: invalid email domain %q", c.EmailDomain)
	case c.TokenTTL <= 0:
		return fmt.Errorf("config: token ttl must be positive, got %s", c.TokenTTL)
	case c.ImageSize < 16:
		return fmt.Errorf("config: image size must be at least 16, got %d", c.ImageSize)
	}
	return nil
}

// env looks variables up in the process environment first and the .env
// file second. The .env values are never exported to the process.
type env map[string]string

func (e env) lookup(key string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return e[EnvPrefix+key]
}

func (e env) get(key, defaultValue string) string {
	if value := e.lookup(key); value != "" {
		return value
	}
	return defaultValue
}

func (e env) getInt(key string, defaultValue int) (int, error) {
	value := e.lookup(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	return n, nil
}

func (e env) getBool(key string, defaultValue bool) (bool, error) {
	value := e.lookup(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	return b, nil
}

func (e env) getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := e.lookup(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	return d, nil
}
