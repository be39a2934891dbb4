package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

const EnvPrefix = "CROSSWORD"

type Config struct {
	Bind           string
	Port           int
	Store          string
	DatabaseURL    string
	PersistWorkers int
	PersistTimeout time.Duration
	InboxSize      int
	OutboxSize     int
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	MaxFrameBytes  int64
	OriginPatterns []string
	LogLevel       string
	LogFormat      string
}

func (c *Config) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// AddFlags registers every setting on flags with its default.
func (c *Config) AddFlags(flags *pflag.FlagSet) {
	flags.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	flags.StringVarP(&c.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: CROSSWORD_BIND)")
	flags.IntVarP(&c.Port, "port", "p", 8080, "port to listen on (env: CROSSWORD_PORT)")
	flags.StringVar(&c.Store, "store", "postgres", "solution store: postgres or memory (env: CROSSWORD_STORE)")
	flags.StringVar(&c.DatabaseURL, "database-url", "", "postgres connection string (env: CROSSWORD_DATABASE_URL, DATABASE_URL)")
	flags.IntVar(&c.PersistWorkers, "persist-workers", 8, "concurrent persistence calls (env: CROSSWORD_PERSIST_WORKERS)")
	flags.DurationVar(&c.PersistTimeout, "persist-timeout", 5*time.Second, "deadline for each persistence call (env: CROSSWORD_PERSIST_TIMEOUT)")
	flags.IntVar(&c.InboxSize, "inbox-size", 256, "coordinator command buffer (env: CROSSWORD_INBOX_SIZE)")
	flags.IntVar(&c.OutboxSize, "outbox-size", 64, "frames buffered per connection before it is dropped (env: CROSSWORD_OUTBOX_SIZE)")
	flags.DurationVar(&c.WriteTimeout, "write-timeout", 3*time.Second, "deadline for each websocket write (env: CROSSWORD_WRITE_TIMEOUT)")
	flags.DurationVar(&c.PingInterval, "ping-interval", 30*time.Second, "websocket keepalive interval, 0 disables (env: CROSSWORD_PING_INTERVAL)")
	flags.Int64Var(&c.MaxFrameBytes, "max-frame-bytes", 64<<10, "largest accepted inbound frame (env: CROSSWORD_MAX_FRAME_BYTES)")
	flags.StringSliceVar(&c.OriginPatterns, "origin-patterns", nil, "allowed websocket origins, empty allows any (env: CROSSWORD_ORIGIN_PATTERNS)")
	flags.StringVar(&c.LogLevel, "log-level", "info", "debug, info, warn or error (env: CROSSWORD_LOG_LEVEL)")
	flags.StringVar(&c.LogFormat, "log-format", "json", "json or console (env: CROSSWORD_LOG_FORMAT)")
}

// ApplyEnv copies environment overrides into flags the command line did not set.
func ApplyEnv(flags *pflag.FlagSet, v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("database-url", EnvPrefix+"_DATABASE_URL", "DATABASE_URL")

	flags.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		if !f.Changed && v.IsSet(f.Name) {
			_ = flags.Set(f.Name, envValue(v.Get(f.Name)))
		}
	})
}

func envValue(val any) string {
	if s, ok := val.([]string); ok {
		return strings.Join(s, ",")
	}
	return fmt.Sprintf("%v", val)
}

// LoadDotEnv reads .env style files into the process environment. Missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func (c *Config) Validate() error {
	var err error
	if c.Port < 1 || c.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port))
	}
	switch c.Store {
	case "postgres":
		if c.DatabaseURL == "" {
			err = multierr.Append(err, errors.New("--database-url is required with --store postgres"))
		}
	case "memory":
	default:
		err = multierr.Append(err, fmt.Errorf("unknown store %q (want postgres or memory)", c.Store))
	}
	if c.PersistWorkers < 1 {
		err = multierr.Append(err, fmt.Errorf("persist-workers must be positive: %d", c.PersistWorkers))
	}
	if c.PersistTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("persist-timeout must be positive: %s", c.PersistTimeout))
	}
	if c.WriteTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("write-timeout must be positive: %s", c.WriteTimeout))
	}
	if c.PingInterval < 0 {
		err = multierr.Append(err, fmt.Errorf("ping-interval cannot be negative: %s", c.PingInterval))
	}
	if c.InboxSize < 0 {
		err = multierr.Append(err, fmt.Errorf("inbox-size cannot be negative: %d", c.InboxSize))
	}
	if c.OutboxSize < 1 {
		err = multierr.Append(err, fmt.Errorf("outbox-size must be positive: %d", c.OutboxSize))
	}
	if c.MaxFrameBytes < 1 {
		err = multierr.Append(err, fmt.Errorf("max-frame-bytes must be positive: %d", c.MaxFrameBytes))
	}
	return err
}
