package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application. It is loaded once at
// startup and passed explicitly to each component; nothing reads ambient
// global state after boot.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Provider ProviderConfig `yaml:"provider"`
	Research ResearchConfig `yaml:"research"`
	Policy   PolicyConfig   `yaml:"policy"`
	Sequence SequenceConfig `yaml:"sequence"`
	Worker   WorkerConfig   `yaml:"worker"`
	Storage  StorageConfig  `yaml:"storage"`
	Meeting  MeetingConfig  `yaml:"meeting"`
	AI       AIConfig       `yaml:"ai"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifeMins int    `yaml:"conn_max_life_mins"`
}

// RedisConfig holds the Redis settings for the per-domain send rate limiter.
// Disabled means sends are never rate limited (degraded, logged at boot).
type RedisConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// ProviderConfig selects and configures the outbound delivery provider.
// Exactly one provider is selected at startup; nothing downstream inspects
// the vendor type again.
type ProviderConfig struct {
	Vendor         string `yaml:"vendor"` // "smartlead" or "instantly"
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	WebhookSecret  string `yaml:"webhook_secret"`
	SenderName     string `yaml:"sender_name"`
	SenderEmail    string `yaml:"sender_email"`
}

// Timeout returns the configured timeout as a duration.
func (c ProviderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ResearchConfig holds the budget the caller enforces on research fetches.
type ResearchConfig struct {
	BudgetMS int `yaml:"budget_ms"`
	MaxPages int `yaml:"max_pages"`
}

// Budget returns the research time budget as a duration.
func (c ResearchConfig) Budget() time.Duration {
	return time.Duration(c.BudgetMS) * time.Millisecond
}

// PolicyConfig holds the content-control policy: the forbidden-phrase list,
// the item cap, the forbidden template variables, and the human-approval
// threshold for drafted responses.
type PolicyConfig struct {
	ForbiddenPhrases       []string `yaml:"forbidden_phrases"`
	ForbiddenVariables     []string `yaml:"forbidden_variables"`
	MaxItemsPerMessage     int      `yaml:"max_items_per_message"`
	HumanApprovalThreshold int      `yaml:"human_approval_threshold"`
	RatePerDomainPerDay    int      `yaml:"rate_per_domain_per_day"`
	BookingLink            string   `yaml:"booking_link"`
}

// SequenceConfig holds the touch timing table: delay offsets in hours from
// touch 1, keyed by touch number.
type SequenceConfig struct {
	TouchDelayHours map[int]int `yaml:"touch_delay_hours"`
}

// DelayFor returns the scheduled offset for a touch number.
func (c SequenceConfig) DelayFor(touch int) time.Duration {
	return time.Duration(c.TouchDelayHours[touch]) * time.Hour
}

// WorkerConfig holds the polling worker settings.
type WorkerConfig struct {
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
}

// PollInterval returns the poll interval as a duration.
func (c WorkerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// StorageConfig holds scrape-artifact storage settings.
type StorageConfig struct {
	Type      string `yaml:"type"` // "local" or "s3"
	LocalPath string `yaml:"local_path"`
	S3Bucket  string `yaml:"s3_bucket"`
	AWSRegion string `yaml:"aws_region"`
}

// MeetingConfig holds the booking details rendered into responses.
type MeetingConfig struct {
	Duration  string `yaml:"duration"`
	Days      string `yaml:"days"`
	Hours     string `yaml:"hours"`
	Organizer string `yaml:"organizer"`
}

// AIConfig selects the Bedrock model behind classification and message
// generation. An empty model id runs the deterministic offline defaults.
type AIConfig struct {
	ModelID string `yaml:"model_id"`
	Region  string `yaml:"region"`
}

// SchemaVersion tags qualification rows with the decision-logic revision.
const SchemaVersion = "2026_08_01_001"

// defaultForbiddenPhrases is the baseline information-control list. Config
// may extend it but an empty config never disables it.
var defaultForbiddenPhrases = []string{
	"cost basis",
	"invoice",
	"exclusivity",
	"exclusive deal",
	"full catalog",
	"complete catalog",
	"entire catalog",
	"detailed margin",
	"margin structure",
	"percent off",
	"% off retail",
	"wholesale price",
	"wholesale cost",
	"our cost",
	"your cost",
	"cost per unit",
	"direct authorized",
	"authorized distributor",
	"MAP violation",
	"below MAP",
	"grey market",
	"gray market",
	"diversion",
	"liquidation",
}

var defaultForbiddenVariables = []string{
	"catalog_url",
	"full_catalog",
	"price_list",
	"invoice",
}

// Load reads and parses the configuration file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifeMins == 0 {
		cfg.Database.ConnMaxLifeMins = 5
	}
	if cfg.Provider.Vendor == "" {
		cfg.Provider.Vendor = "smartlead"
	}
	if cfg.Provider.TimeoutSeconds == 0 {
		cfg.Provider.TimeoutSeconds = 30
	}
	if cfg.Provider.BaseURL == "" {
		switch cfg.Provider.Vendor {
		case "instantly":
			cfg.Provider.BaseURL = "https://api.instantly.ai/api/v1"
		default:
			cfg.Provider.BaseURL = "https://server.smartlead.ai/api/v1"
		}
	}
	if cfg.Research.BudgetMS == 0 {
		cfg.Research.BudgetMS = 25000
	}
	if cfg.Research.MaxPages == 0 {
		cfg.Research.MaxPages = 6
	}
	if len(cfg.Policy.ForbiddenPhrases) == 0 {
		cfg.Policy.ForbiddenPhrases = defaultForbiddenPhrases
	}
	if len(cfg.Policy.ForbiddenVariables) == 0 {
		cfg.Policy.ForbiddenVariables = defaultForbiddenVariables
	}
	if cfg.Policy.MaxItemsPerMessage == 0 {
		cfg.Policy.MaxItemsPerMessage = 3
	}
	if cfg.Policy.HumanApprovalThreshold == 0 {
		cfg.Policy.HumanApprovalThreshold = 200
	}
	if cfg.Policy.RatePerDomainPerDay == 0 {
		cfg.Policy.RatePerDomainPerDay = 50
	}
	if len(cfg.Sequence.TouchDelayHours) == 0 {
		cfg.Sequence.TouchDelayHours = map[int]int{
			1: 0,   // immediate
			2: 24,  // next day
			3: 96,  // 3 days later
			4: 168, // 1 week later
			5: 720, // 1 month later
		}
	}
	if cfg.Worker.PollIntervalSeconds == 0 {
		cfg.Worker.PollIntervalSeconds = 30
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "local"
	}
	if cfg.Storage.LocalPath == "" {
		cfg.Storage.LocalPath = "artifacts"
	}
	if cfg.Meeting.Duration == "" {
		cfg.Meeting.Duration = "30 min"
	}
	if cfg.Meeting.Days == "" {
		cfg.Meeting.Days = "Mon-Thu"
	}
	if cfg.Meeting.Hours == "" {
		cfg.Meeting.Hours = "11am-4pm EST"
	}
	if cfg.Meeting.Organizer == "" {
		cfg.Meeting.Organizer = "Leadflow"
	}
	if cfg.AI.Region == "" {
		cfg.AI.Region = "us-east-1"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets can
// live in .env locally and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("EMAIL_PROVIDER"); v != "" {
		cfg.Provider.Vendor = v
	}
	if v := os.Getenv("SMARTLEAD_API_KEY"); v != "" && cfg.Provider.Vendor == "smartlead" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("INSTANTLY_API_KEY"); v != "" && cfg.Provider.Vendor == "instantly" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("PROVIDER_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("WEBHOOK_SECRET"); v != "" {
		cfg.Provider.WebhookSecret = v
	}
	if v := os.Getenv("SENDER_NAME"); v != "" {
		cfg.Provider.SenderName = v
	}
	if v := os.Getenv("SENDER_EMAIL"); v != "" {
		cfg.Provider.SenderEmail = v
	}
	if v := os.Getenv("BOOKING_LINK"); v != "" {
		cfg.Policy.BookingLink = v
	}
	if v := os.Getenv("HUMAN_APPROVAL_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("HUMAN_APPROVAL_THRESHOLD: %w", err)
		}
		cfg.Policy.HumanApprovalThreshold = n
	}
	if v := os.Getenv("BEDROCK_MODEL_ID"); v != "" {
		cfg.AI.ModelID = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.AI.Region = v
	}
	if v := os.Getenv("ARTIFACTS_S3_BUCKET"); v != "" {
		cfg.Storage.Type = "s3"
		cfg.Storage.S3Bucket = v
	}

	return cfg, nil
}
