package config

import (
	"errors"
	"fmt"
	"listing-hunter/pkg/novelty"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv     = "HUNTER_CONFIG"
	noveltyDriverEnv  = "NOVELTY_DRIVER"
	noveltyDSNEnv     = "NOVELTY_DSN"
	artifactBucketEnv = "ARTIFACT_BUCKET"
	queuePathEnv      = "QUEUE_PATH"
	recipientEnv      = "RECIPIENT_EMAIL"
	senderEnv         = "SENDER_EMAIL"
	smtpHostEnv       = "SMTP_HOST"
	smtpPortEnv       = "SMTP_PORT"
	smtpUsernameEnv   = "SMTP_USERNAME"
	smtpPasswordEnv   = "SMTP_PASSWORD"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	logLevelEnv       = "LOG_LEVEL"
	httpAddrEnv       = "HTTP_ADDR"
)

type Config struct {
	LogLevel   string        `yaml:"log_level"`
	LogFormat  string        `yaml:"log_format"`
	HTTPAddr   string        `yaml:"http_addr"`
	RunTimeout time.Duration `yaml:"run_timeout"`

	Novelty   NoveltyConfig  `yaml:"novelty"`
	Artifacts ArtifactConfig `yaml:"artifacts"`
	Queue     QueueConfig    `yaml:"queue"`
	Consumer  ConsumerConfig `yaml:"consumer"`
	Mail      MailConfig     `yaml:"mail"`
	Browser   BrowserConfig  `yaml:"browser"`
	Telegram  TelegramConfig `yaml:"telegram"`
	Tickets   TicketsConfig  `yaml:"tickets"`
	Sources   []SourceConfig `yaml:"sources"`
}

// NoveltyConfig selects the deduplication backend. Driver is "sqlite"
// (DSN is a file path) or "postgres" (DSN is a connection string).
type NoveltyConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type ArtifactConfig struct {
	Bucket string `yaml:"bucket"`
}

type QueueConfig struct {
	Path              string        `yaml:"path"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	PollInterval      time.Duration `yaml:"poll_interval"`
}

type ConsumerConfig struct {
	Workers int `yaml:"workers"`
}

type MailConfig struct {
	Sender    string     `yaml:"sender"`
	Recipient string     `yaml:"recipient"`
	DryRun    bool       `yaml:"dry_run"`
	SMTP      SMTPConfig `yaml:"smtp"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	TLS      string `yaml:"tls"`
}

type BrowserConfig struct {
	ExecPath    string        `yaml:"exec_path"`
	NoSandbox   bool          `yaml:"no_sandbox"`
	DebugDir    string        `yaml:"debug_dir"`
	PageTimeout time.Duration `yaml:"page_timeout"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

type TicketsConfig struct {
	URL      string `yaml:"url"`
	Schedule string `yaml:"schedule"`
}

// SourceConfig is one catalog to watch.
type SourceConfig struct {
	Name       string            `yaml:"name"`
	Adapter    string            `yaml:"adapter"`
	SenderName string            `yaml:"sender_name"`
	Table      string            `yaml:"table"`
	Terms      []string          `yaml:"terms"`
	Settle     time.Duration     `yaml:"settle"`
	Schedule   string            `yaml:"schedule"`
	Options    map[string]string `yaml:"options"`
}

// Load reads the YAML file at path (or $HUNTER_CONFIG when path is empty)
// over the built-in defaults, then applies environment overrides. A missing
// file is only an error when a path was given explicitly.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case explicit || !errors.Is(err, os.ErrNotExist):
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return Config{}, err
	}
	cfg.fillSourceDefaults()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	set := func(env string, dst *string) {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	set(noveltyDriverEnv, &c.Novelty.Driver)
	set(noveltyDSNEnv, &c.Novelty.DSN)
	set(artifactBucketEnv, &c.Artifacts.Bucket)
	set(queuePathEnv, &c.Queue.Path)
	set(recipientEnv, &c.Mail.Recipient)
	set(senderEnv, &c.Mail.Sender)
	set(smtpHostEnv, &c.Mail.SMTP.Host)
	set(smtpUsernameEnv, &c.Mail.SMTP.Username)
	set(smtpPasswordEnv, &c.Mail.SMTP.Password)
	set(telegramTokenEnv, &c.Telegram.BotToken)
	set(logLevelEnv, &c.LogLevel)
	set(httpAddrEnv, &c.HTTPAddr)

	if v := os.Getenv(smtpPortEnv); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", smtpPortEnv, err)
		}
		c.Mail.SMTP.Port = port
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: %s: %w", telegramChatIDEnv, err)
		}
		c.Telegram.ChatID = id
	}
	return nil
}

func (c *Config) fillSourceDefaults() {
	for i := range c.Sources {
		s := &c.Sources[i]
		if s.Adapter == "" {
			s.Adapter = s.Name
		}
		if s.SenderName == "" {
			s.SenderName = s.Name
		}
		if s.Table == "" {
			s.Table = strings.ReplaceAll(s.Name, "-", "_") + "_listings"
		}
	}
}

// Source returns the configured source called name.
func (c Config) Source(name string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return SourceConfig{}, false
}

// Validate checks the settings the commands cannot recover from. adapters
// lists the registered adapter names.
func (c Config) Validate(adapters []string) error {
	var errs []error

	switch c.Novelty.Driver {
	case "", "sqlite", "postgres", "pgx":
	default:
		errs = append(errs, fmt.Errorf("novelty.driver %q is not supported", c.Novelty.Driver))
	}
	if c.Novelty.DSN == "" {
		errs = append(errs, errors.New("novelty.dsn is required"))
	}
	if c.Artifacts.Bucket == "" {
		errs = append(errs, errors.New("artifacts.bucket is required"))
	}
	if c.Queue.Path == "" {
		errs = append(errs, errors.New("queue.path is required"))
	}
	if c.Queue.VisibilityTimeout <= 0 {
		errs = append(errs, errors.New("queue.visibility_timeout must be positive"))
	}
	if c.RunTimeout <= 0 {
		errs = append(errs, errors.New("run_timeout must be positive"))
	}
	// Every run queues a digest for this pair; an unset address would make
	// the message undeliverable.
	if len(c.Sources) > 0 {
		if c.Mail.Recipient == "" {
			errs = append(errs, errors.New("mail.recipient is required (or set "+recipientEnv+")"))
		}
		if c.Mail.Sender == "" {
			errs = append(errs, errors.New("mail.sender is required (or set "+senderEnv+")"))
		}
	}

	seen := map[string]bool{}
	for _, s := range c.Sources {
		if s.Name == "" {
			errs = append(errs, errors.New("source without a name"))
			continue
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("source %s: defined twice", s.Name))
		}
		seen[s.Name] = true
		if !slices.Contains(adapters, s.Adapter) {
			errs = append(errs, fmt.Errorf("source %s: unknown adapter %q", s.Name, s.Adapter))
		}
		if len(s.Terms) == 0 {
			errs = append(errs, fmt.Errorf("source %s: no search terms", s.Name))
		}
		if !novelty.ValidTable(s.Table) {
			errs = append(errs, fmt.Errorf("source %s: invalid table %q", s.Name, s.Table))
		}
	}

	return errors.Join(errs...)
}

// terms shared by the rendered catalogs, written the way their search
// boxes expect them.
var plusTerms = []string{
	"fedeli", "zanone", "finamore", "glanshirt", "brunello+cucinelli", "sunspel",
	"lardini", "alden", "crockett+jones", "gran+sasso", "montedoro", "boglioli",
	"brioni", "loro+piana", "caruso", "etro", "aspesi", "mazzarelli", "kiton",
	"mismo", "rubato", "incotex", "zegna", "altea", "satisfy", "tumi",
}

var apiTerms = []string{
	"fedeli", "piacenza", "fioroni", "boglioli", "lardini", "zanone", "incotex",
	"glanshirt", "montedoro", "sunspel", "william lockie", "johnstons of elgin",
	"finamore", "mazzarelli", "altea", "aspesi", "rubato", "etro", "loro piana",
	"brunello cucinelli", "gran sasso", "kiton", "ermenegildo", "brioni", "caruso",
	"satisfy", "alden", "crockett & jones", "mismo", "tumi",
}

func Default() Config {
	cfg := Config{
		LogLevel:   "info",
		LogFormat:  "text",
		HTTPAddr:   ":8080",
		RunTimeout: 10 * time.Minute,
		Novelty:    NoveltyConfig{Driver: "sqlite", DSN: "data/novelty.db"},
		Artifacts:  ArtifactConfig{Bucket: "data/artifacts.db"},
		Queue: QueueConfig{
			Path:              "data/queue.db",
			VisibilityTimeout: 30 * time.Second,
			PollInterval:      5 * time.Second,
		},
		Consumer: ConsumerConfig{Workers: 1},
		Mail: MailConfig{
			SMTP: SMTPConfig{Port: 587, TLS: "starttls"},
		},
		Browser: BrowserConfig{PageTimeout: time.Minute},
		Tickets: TicketsConfig{Schedule: "*/10 * * * *"},
		Sources: []SourceConfig{
			{
				Name:       "sellpy",
				Adapter:    "sellpy",
				SenderName: "Sellpy",
				Terms:      plusTerms,
				Settle:     7 * time.Second,
				Schedule:   "0 6 * * *",
			},
			{
				Name:       "vinted-web",
				Adapter:    "vinted-web",
				SenderName: "Vinted",
				Terms:      plusTerms,
				Settle:     7 * time.Second,
				Schedule:   "30 6 * * *",
			},
			{
				Name:       "vinted",
				Adapter:    "vinted",
				SenderName: "Vinted",
				Terms:      apiTerms,
				Schedule:   "0 7 * * *",
			},
		},
	}
	cfg.fillSourceDefaults()
	return cfg
}
