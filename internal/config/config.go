package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone     = "UTC"
	configPathEnv       = "FRB_SCANNER_CONFIG"
	logLevelEnv         = "FRB_LOG_LEVEL"
	catalogPathEnv      = "FRB_CATALOG_PATH"
	statePathEnv        = "FRB_STATE_PATH"
	extractionKindEnv   = "FRB_EXTRACTION_BACKEND"
	extractionModelEnv  = "FRB_EXTRACTION_MODEL"
	extractionKeyEnv    = "FRB_EXTRACTION_API_KEY"
	openAIKeyEnv        = "OPENAI_API_KEY"
	anthropicKeyEnv     = "ANTHROPIC_API_KEY"
	confidenceEnv       = "FRB_CONFIDENCE_THRESHOLD"
	githubTokenEnv      = "GITHUB_TOKEN"
	githubRepositoryEnv = "GITHUB_REPOSITORY"
	telegramTokenEnv    = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv   = "TELEGRAM_CHAT_ID"
	httpAddrEnv         = "FRB_HTTP_ADDR"
	httpAPIKeyEnv       = "FRB_API_KEY"
)

// Extraction backends.
const (
	BackendOpenAI    = "openai"
	BackendAnthropic = "anthropic"
	BackendInference = "inference"
)

// Proposal channels.
const (
	ChannelGitHub = "github"
	ChannelOutbox = "outbox"
)

// Fetcher strategies.
const (
	FetcherATel  = "atel"
	FetcherArxiv = "arxiv"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Catalog       CatalogConfig      `yaml:"catalog"`
	State         StateConfig        `yaml:"state"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Sources       []SourceConfig     `yaml:"sources"`
	Relevance     RelevanceConfig    `yaml:"relevance"`
	Extraction    ExtractionConfig   `yaml:"extraction"`
	Validation    ValidationConfig   `yaml:"validation"`
	Dedup         DedupConfig        `yaml:"dedup"`
	Proposal      ProposalConfig     `yaml:"proposal"`
	Notifications NotificationConfig `yaml:"notifications"`
	HTTP          HTTPConfig         `yaml:"http"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// CatalogConfig points at the SQLite catalog served by the data browser.
type CatalogConfig struct {
	Path  string `yaml:"path"`
	Table string `yaml:"table"`
}

// StateConfig points at the run ledger database.
type StateConfig struct {
	Path    string        `yaml:"path"`
	LockTTL time.Duration `yaml:"lockTtl"`
}

// SchedulerConfig defines the weekly trigger.
type SchedulerConfig struct {
	Weekday  string         `yaml:"weekday"`
	Hour     int            `yaml:"hour"`
	Timezone string         `yaml:"timezone"`
	location *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// Day parses the configured weekday, defaulting to Monday.
func (s SchedulerConfig) Day() time.Weekday {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), strings.TrimSpace(s.Weekday)) {
			return d
		}
	}
	return time.Monday
}

// SourceConfig describes a single feed with its fetcher strategy.
type SourceConfig struct {
	Name     string            `yaml:"name"`
	Fetcher  string            `yaml:"fetcher"`
	URL      string            `yaml:"url"`
	Window   time.Duration     `yaml:"window"`
	PageSize int               `yaml:"pageSize"`
	MaxItems int               `yaml:"maxItems"`
	Timeout  time.Duration     `yaml:"timeout"`
	FullText bool              `yaml:"fullText"`
	Options  map[string]string `yaml:"options"`
}

// RelevanceConfig lists phrases that suggest a localization. Empty disables the screen.
type RelevanceConfig struct {
	Keywords []string `yaml:"keywords"`
}

// ExtractionConfig selects and tunes the language-model backend.
type ExtractionConfig struct {
	Backend      string        `yaml:"backend"`
	Endpoint     string        `yaml:"endpoint"`
	Model        string        `yaml:"model"`
	APIKey       string        `yaml:"apiKey"`
	SystemPrompt string        `yaml:"systemPrompt"`
	MaxTokens    int           `yaml:"maxTokens"`
	Timeout      time.Duration `yaml:"timeout"`
	Concurrency  int           `yaml:"concurrency"`
}

// ValidationConfig holds validator policy.
type ValidationConfig struct {
	ConfidenceThreshold float64 `yaml:"confidenceThreshold"`
}

// DedupConfig holds the positional-coincidence policy.
type DedupConfig struct {
	MinRadiusArcsec float64 `yaml:"minRadiusArcsec"`
	SafetyFactor    float64 `yaml:"safetyFactor"`
}

// ProposalConfig selects the review surface.
type ProposalConfig struct {
	Channel   string       `yaml:"channel"`
	OutboxDir string       `yaml:"outboxDir"`
	EmitEmpty bool         `yaml:"emitEmpty"`
	GitHub    GitHubConfig `yaml:"github"`
}

// GitHubConfig wires the pull-request channel.
type GitHubConfig struct {
	APIURL     string `yaml:"apiUrl"`
	Owner      string `yaml:"owner"`
	Repo       string `yaml:"repo"`
	BaseBranch string `yaml:"baseBranch"`
	Token      string `yaml:"token"`
	Directory  string `yaml:"directory"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	APIURL   string `yaml:"apiUrl"`
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// HTTPConfig controls the trigger/status API.
type HTTPConfig struct {
	Listen string `yaml:"listen"`
	APIKey string `yaml:"apiKey"`
}

// Load reads YAML configuration (if present) and applies .env and environment overrides.
func Load() Config {
	return LoadFrom(os.Getenv(configPathEnv))
}

// LoadFrom is Load with an explicit config file path. An empty path means defaults.
func LoadFrom(path string) Config {
	cfg := defaultConfig()

	if path != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			log.Printf("config: %v (falling back to defaults)", err)
		} else {
			cfg = fileCfg
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: cannot read .env: %v", err)
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()
	return cfg
}

// LoadFile decodes a YAML file over the defaults. Keys absent from the file keep their default.
func LoadFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cannot read %s: %w", path, err)
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("cannot parse %s: %w", path, err)
	}
	for i := range cfg.Sources {
		cfg.Sources[i] = withSourceDefaults(cfg.Sources[i])
	}
	cfg.bindTimezone()
	return cfg, nil
}

// Validate reports settings the pipeline cannot run with.
func (c Config) Validate() error {
	var errs []error
	if len(c.Sources) == 0 {
		errs = append(errs, errors.New("no sources configured"))
	}
	for _, src := range c.Sources {
		if src.Fetcher != FetcherATel && src.Fetcher != FetcherArxiv {
			errs = append(errs, fmt.Errorf("source %s: unknown fetcher %q", src.Name, src.Fetcher))
		}
		if src.URL == "" {
			errs = append(errs, fmt.Errorf("source %s: url is empty", src.Name))
		}
	}
	if t := c.Validation.ConfidenceThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("confidence threshold %v outside [0,1]", t))
	}
	if c.Dedup.MinRadiusArcsec <= 0 {
		errs = append(errs, errors.New("dedup min radius must be positive"))
	}
	if c.Dedup.SafetyFactor < 1 {
		errs = append(errs, errors.New("dedup safety factor must be at least 1"))
	}
	switch c.Extraction.Backend {
	case BackendOpenAI, BackendAnthropic, BackendInference:
	default:
		errs = append(errs, fmt.Errorf("unknown extraction backend %q", c.Extraction.Backend))
	}
	switch c.Proposal.Channel {
	case ChannelOutbox:
	case ChannelGitHub:
		if c.Proposal.GitHub.Owner == "" || c.Proposal.GitHub.Repo == "" {
			errs = append(errs, errors.New("github channel requires owner and repo"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown proposal channel %q", c.Proposal.Channel))
	}
	return errors.Join(errs...)
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(catalogPathEnv); v != "" {
		c.Catalog.Path = v
	}
	if v := os.Getenv(statePathEnv); v != "" {
		c.State.Path = v
	}

	if v := os.Getenv(extractionKindEnv); v != "" {
		c.Extraction.Backend = strings.ToLower(v)
	}
	if v := os.Getenv(extractionModelEnv); v != "" {
		c.Extraction.Model = v
	}
	switch c.Extraction.Backend {
	case BackendOpenAI:
		if v := os.Getenv(openAIKeyEnv); v != "" {
			c.Extraction.APIKey = v
		}
	case BackendAnthropic:
		if v := os.Getenv(anthropicKeyEnv); v != "" {
			c.Extraction.APIKey = v
		}
	}
	if v := os.Getenv(extractionKeyEnv); v != "" {
		c.Extraction.APIKey = v
	}

	if v := os.Getenv(confidenceEnv); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Validation.ConfidenceThreshold = f
		} else {
			log.Printf("config: ignoring %s=%q: %v", confidenceEnv, v, err)
		}
	}

	if v := os.Getenv(githubTokenEnv); v != "" {
		c.Proposal.GitHub.Token = v
	}
	if v := os.Getenv(githubRepositoryEnv); v != "" {
		if owner, repo, ok := strings.Cut(v, "/"); ok && c.Proposal.GitHub.Owner == "" {
			c.Proposal.GitHub.Owner = owner
			c.Proposal.GitHub.Repo = repo
		}
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(httpAddrEnv); v != "" {
		c.HTTP.Listen = v
	}
	if v := os.Getenv(httpAPIKeyEnv); v != "" {
		c.HTTP.APIKey = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func withSourceDefaults(src SourceConfig) SourceConfig {
	if src.Window <= 0 {
		src.Window = 7 * 24 * time.Hour
	}
	if src.Timeout <= 0 {
		src.Timeout = 30 * time.Second
	}
	if src.PageSize <= 0 {
		src.PageSize = 50
	}
	if src.Name == "" {
		src.Name = src.Fetcher
	}
	return src
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging: LoggingConfig{Level: "info"},
		Catalog: CatalogConfig{Path: "frbs.db", Table: "frbs"},
		State:   StateConfig{Path: "frbscanner-state.db", LockTTL: 2 * time.Hour},
		Scheduler: SchedulerConfig{
			Weekday:  "monday",
			Hour:     6,
			Timezone: defaultTimezone,
			location: tz,
		},
		Sources: []SourceConfig{
			withSourceDefaults(SourceConfig{
				Name:    "atel",
				Fetcher: FetcherATel,
				URL:     "https://www.astronomerstelegram.org/?rss",
			}),
			withSourceDefaults(SourceConfig{
				Name:     "arxiv",
				Fetcher:  FetcherArxiv,
				URL:      "http://export.arxiv.org/api/query",
				MaxItems: 50,
				Options: map[string]string{
					"search_query": `all:"fast radio burst" OR all:FRB AND cat:astro-ph*`,
				},
			}),
		},
		Relevance: RelevanceConfig{Keywords: []string{
			"redshift", "host galaxy", "host association", "localization", "localisation",
			"localized", "localised", "spectroscopic", "photometric redshift",
			"optical counterpart", "arcsec",
		}},
		Extraction: ExtractionConfig{
			Backend:     BackendAnthropic,
			Endpoint:    "https://api.anthropic.com/v1/messages",
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   1024,
			Timeout:     60 * time.Second,
			Concurrency: 4,
		},
		Validation: ValidationConfig{ConfidenceThreshold: 0.7},
		Dedup:      DedupConfig{MinRadiusArcsec: 10, SafetyFactor: 3},
		Proposal: ProposalConfig{
			Channel:   ChannelOutbox,
			OutboxDir: "proposals",
			GitHub: GitHubConfig{
				APIURL:     "https://api.github.com",
				BaseBranch: "main",
				Directory:  "proposals",
			},
		},
		Notifications: NotificationConfig{
			Telegram: TelegramConfig{APIURL: "https://api.telegram.org"},
		},
		HTTP: HTTPConfig{Listen: ":8080"},
	}
}
