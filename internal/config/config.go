package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MailboxConfig holds the IMAP connection settings.
type MailboxConfig struct {
	// Host is the IMAP server hostname.
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the IMAP server port (993 for implicit TLS).
	Port string `mapstructure:"port" yaml:"port"`

	// Username is the mailbox login.
	Username string `mapstructure:"username" yaml:"username"`

	// Password is the mailbox password. When empty, the OS keyring is
	// consulted at startup.
	Password string `mapstructure:"password" yaml:"password"`

	// TLS selects implicit TLS; STARTTLS is used otherwise.
	TLS bool `mapstructure:"tls" yaml:"tls"`

	// ConnectTimeout bounds dialing and authentication.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
}

// PollConfig holds the scheduling and retry settings for the pipeline.
type PollConfig struct {
	// Interval is how often a poll cycle runs.
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`

	// FallbackWindowDays is how far back the all-messages search reaches
	// when no unread messages are found.
	FallbackWindowDays int `mapstructure:"fallback_window_days" yaml:"fallback_window_days"`

	// MaxConnectRetries bounds reconnect attempts within one cycle.
	MaxConnectRetries int `mapstructure:"max_connect_retries" yaml:"max_connect_retries"`

	// RetryDelay is the fixed wait between reconnect attempts.
	RetryDelay time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`

	// FetchLimit caps the number of messages fetched per cycle.
	FetchLimit int `mapstructure:"fetch_limit" yaml:"fetch_limit"`
}

// ExtractConfig holds tunables for the extraction engine.
type ExtractConfig struct {
	// ContextWindow is the number of characters captured on each side of
	// a matched status keyword.
	ContextWindow int `mapstructure:"context_window" yaml:"context_window"`
}

// Config is the top-level daemon configuration.
type Config struct {
	Mailbox MailboxConfig `mapstructure:"mailbox" yaml:"mailbox"`
	Poll    PollConfig    `mapstructure:"poll" yaml:"poll"`
	Extract ExtractConfig `mapstructure:"extract" yaml:"extract"`

	// DatabasePath is the SQLite database file.
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	// AttachmentDir is where saved attachments land.
	AttachmentDir string `mapstructure:"attachment_dir" yaml:"attachment_dir"`

	// ListenAddr is the admin HTTP listen address.
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`

	// LogLevel is the zap log level (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
}

// Load reads configuration from the given YAML file using Viper, applying
// defaults and environment overrides. A missing file is not an error; the
// defaults plus environment are used.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix("ordertrack")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Legacy environment names used by earlier deployments.
	bindLegacyEnv(v)

	if err := v.ReadInConfig(); err != nil {
		_, pathErr := err.(*os.PathError)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !pathErr && !notFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mailbox.host", "")
	v.SetDefault("mailbox.port", "993")
	v.SetDefault("mailbox.username", "")
	v.SetDefault("mailbox.password", "")
	v.SetDefault("mailbox.tls", true)
	v.SetDefault("mailbox.connect_timeout", 30*time.Second)

	v.SetDefault("poll.interval", 5*time.Minute)
	v.SetDefault("poll.fallback_window_days", 7)
	v.SetDefault("poll.max_connect_retries", 3)
	v.SetDefault("poll.retry_delay", 5*time.Second)
	v.SetDefault("poll.fetch_limit", 10)

	v.SetDefault("extract.context_window", 50)

	v.SetDefault("database_path", "ordertrack.db")
	v.SetDefault("attachment_dir", "uploads/invoices")
	v.SetDefault("listen_addr", ":8090")
	v.SetDefault("log_level", "info")
}

func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("mailbox.host", "ORDERTRACK_MAILBOX_HOST", "IMAP_HOST")
	_ = v.BindEnv("mailbox.port", "ORDERTRACK_MAILBOX_PORT", "IMAP_PORT")
	_ = v.BindEnv("mailbox.username", "ORDERTRACK_MAILBOX_USERNAME", "IMAP_USER")
	_ = v.BindEnv("mailbox.password", "ORDERTRACK_MAILBOX_PASSWORD", "IMAP_PASSWORD")
	_ = v.BindEnv("mailbox.tls", "ORDERTRACK_MAILBOX_TLS", "IMAP_TLS")
	_ = v.BindEnv("poll.interval", "ORDERTRACK_POLL_INTERVAL", "EMAIL_CHECK_INTERVAL")
}
