package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuongbtq/transcribe-service/internal/events"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Transcription engines
const (
	EngineOpenAI     = "openai"
	EngineWhisperCLI = "whisper-cli"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	App           AppConfig           `yaml:"app"`
	Logging       LoggingConfig       `yaml:"logging"`
	Jobs          JobsConfig          `yaml:"jobs"`
	Media         MediaConfig         `yaml:"media"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Events        EventsConfig        `yaml:"events"`
	RabbitMQ      RabbitMQConfig      `yaml:"rabbitmq"`
	Database      DatabaseConfig      `yaml:"database"`
	Archiver      ArchiverConfig      `yaml:"archiver"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// MaxUploadBytes bounds the one-shot upload body
	MaxUploadBytes int64    `yaml:"max_upload_bytes"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
	TimeFormat   string `yaml:"time_format"`
	NoColor      bool   `yaml:"no_color"`
}

// JobsConfig holds job execution and retention policy
type JobsConfig struct {
	MaxSegmentDuration   time.Duration `yaml:"max_segment_duration"`
	AcquireTimeout       time.Duration `yaml:"acquire_timeout"`
	SegmentTimeout       time.Duration `yaml:"segment_timeout"`
	TranscribeTimeout    time.Duration `yaml:"transcribe_timeout"`
	MaxActiveJobs        int           `yaml:"max_active_jobs"`
	Retention            time.Duration `yaml:"retention"`
	SweepInterval        time.Duration `yaml:"sweep_interval"`
	KeepPartialOnFailure bool          `yaml:"keep_partial_on_failure"`
	DefaultLanguage      string        `yaml:"default_language"`
	ShutdownTimeout      time.Duration `yaml:"shutdown_timeout"`
}

// MediaConfig holds source acquisition and decoding settings
type MediaConfig struct {
	WorkDir     string   `yaml:"work_dir"`
	UploadDirs  []string `yaml:"upload_dirs"`
	AllowRemote bool     `yaml:"allow_remote"`
	YTDLPPath   string   `yaml:"ytdlp_path"`
	FFmpegPath  string   `yaml:"ffmpeg_path"`
	FFprobePath string   `yaml:"ffprobe_path"`
}

// TranscriptionConfig selects and configures the speech-to-text engine
type TranscriptionConfig struct {
	Engine     string           `yaml:"engine"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	WhisperCLI WhisperCLIConfig `yaml:"whisper_cli"`
}

// OpenAIConfig holds the hosted engine settings
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// WhisperCLIConfig holds the local whisper.cpp settings
type WhisperCLIConfig struct {
	Binary   string `yaml:"binary"`
	ModelDir string `yaml:"model_dir"`
	Model    string `yaml:"model"`
}

// EventsConfig controls job event publishing
type EventsConfig struct {
	Enabled        bool          `yaml:"enabled"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host        string           `yaml:"host"`
	Port        int              `yaml:"port"`
	User        string           `yaml:"user"`
	Password    string           `yaml:"password"`
	VHost       string           `yaml:"vhost"`
	Exchange    ExchangeConfig   `yaml:"exchange"`
	Queue       QueueConfig      `yaml:"queue"`
	BindingKeys []string         `yaml:"binding_keys"`
	Connection  ConnectionConfig `yaml:"connection"`
	Publish     PublishConfig    `yaml:"publish"`
	Consumer    ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	Tag           string `yaml:"tag"`
	PrefetchCount int    `yaml:"prefetch_count"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// ArchiverConfig holds transcript archiver settings
type ArchiverConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	StoreTimeout    time.Duration `yaml:"store_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Load reads and parses the configuration file, then applies env overrides and defaults
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnv(os.Getenv)
	config.ApplyDefaults()

	return &config, nil
}

// applyEnv lets secrets live outside the config file
func (c *Config) applyEnv(getenv func(string) string) {
	overrides := []struct {
		key    string
		target *string
	}{
		{"OPENAI_API_KEY", &c.Transcription.OpenAI.APIKey},
		{"OPENAI_BASE_URL", &c.Transcription.OpenAI.BaseURL},
		{"DB_PASSWORD", &c.Database.Password},
		{"RABBITMQ_PASSWORD", &c.RabbitMQ.Password},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(getenv(o.key)); v != "" {
			*o.target = v
		}
	}
}

// ApplyDefaults fills unset fields with working values
func (c *Config) ApplyDefaults() {
	setDuration(&c.Server.ReadTimeout, 30*time.Second)
	setDuration(&c.Server.WriteTimeout, 10*time.Minute)
	setDuration(&c.Server.IdleTimeout, 2*time.Minute)
	setDuration(&c.Server.ShutdownTimeout, 30*time.Second)
	if c.Server.MaxUploadBytes <= 0 {
		c.Server.MaxUploadBytes = 512 << 20
	}

	setDuration(&c.Jobs.MaxSegmentDuration, 5*time.Minute)
	setDuration(&c.Jobs.SweepInterval, time.Minute)
	setDuration(&c.Jobs.ShutdownTimeout, 30*time.Second)

	setString(&c.Media.WorkDir, os.TempDir())
	setString(&c.Media.YTDLPPath, "yt-dlp")
	setString(&c.Media.FFmpegPath, "ffmpeg")
	setString(&c.Media.FFprobePath, "ffprobe")

	setString(&c.Transcription.Engine, EngineWhisperCLI)
	setString(&c.Transcription.OpenAI.Model, "whisper-1")
	setString(&c.Transcription.WhisperCLI.Binary, "whisper-cli")
	setString(&c.Transcription.WhisperCLI.Model, "tiny")

	setDuration(&c.Events.PublishTimeout, 5*time.Second)

	setString(&c.RabbitMQ.Exchange.Type, "topic")
	setString(&c.RabbitMQ.Consumer.Tag, "transcript-archiver")
	if len(c.RabbitMQ.BindingKeys) == 0 {
		for _, t := range events.TerminalTypes {
			c.RabbitMQ.BindingKeys = append(c.RabbitMQ.BindingKeys, string(t))
		}
	}
	if c.RabbitMQ.Consumer.PrefetchCount <= 0 {
		c.RabbitMQ.Consumer.PrefetchCount = 10
	}

	if c.Archiver.Concurrency <= 0 {
		c.Archiver.Concurrency = 4
	}
	setDuration(&c.Archiver.StoreTimeout, 10*time.Second)
	setDuration(&c.Archiver.ShutdownTimeout, 30*time.Second)
}

// DefaultModel returns the model used when a job names none
func (c *Config) DefaultModel() string {
	if c.Transcription.Engine == EngineOpenAI {
		return c.Transcription.OpenAI.Model
	}
	return c.Transcription.WhisperCLI.Model
}

// ValidateAPIConfig checks the settings the API service depends on
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Jobs.MaxSegmentDuration <= 0 {
		return fmt.Errorf("jobs max_segment_duration must be greater than 0")
	}

	if c.Jobs.MaxActiveJobs < 0 {
		return fmt.Errorf("jobs max_active_jobs must not be negative")
	}

	if !c.Media.AllowRemote && len(c.Media.UploadDirs) == 0 {
		return fmt.Errorf("media needs allow_remote or at least one upload dir")
	}

	if err := c.ValidateTranscription(); err != nil {
		return err
	}

	if c.Events.Enabled {
		if err := c.validateRabbitMQ(false); err != nil {
			return err
		}
	}

	return nil
}

// ValidateTranscription checks the engine settings, shared by the API service and the CLI
func (c *Config) ValidateTranscription() error {
	switch c.Transcription.Engine {
	case EngineOpenAI:
		if c.Transcription.OpenAI.APIKey == "" {
			return fmt.Errorf("openai api_key is required (or set OPENAI_API_KEY)")
		}
	case EngineWhisperCLI:
		if c.Transcription.WhisperCLI.ModelDir == "" {
			return fmt.Errorf("whisper_cli model_dir is required")
		}
	default:
		return fmt.Errorf("unknown transcription engine %q", c.Transcription.Engine)
	}
	return nil
}

// ValidateArchiverConfig checks the settings the archiver service depends on
func (c *Config) ValidateArchiverConfig() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if err := c.validateRabbitMQ(true); err != nil {
		return err
	}

	if c.Archiver.Concurrency <= 0 {
		return fmt.Errorf("archiver concurrency must be greater than 0")
	}

	return nil
}

func (c *Config) validateRabbitMQ(needQueue bool) error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if needQueue {
		if c.RabbitMQ.Queue.Name == "" {
			return fmt.Errorf("rabbitmq queue name is required")
		}
		if len(c.RabbitMQ.BindingKeys) == 0 {
			return fmt.Errorf("rabbitmq binding_keys are required")
		}
	}

	return nil
}

func setDuration(target *time.Duration, def time.Duration) {
	if *target <= 0 {
		*target = def
	}
}

func setString(target *string, def string) {
	if strings.TrimSpace(*target) == "" {
		*target = def
	}
}
