package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultServerAddr      = ":7860"
	DefaultGeneratedDir    = "generated_apps"
	DefaultAttachmentsDir  = "temp_attachments"
	DefaultPipelineTimeout = 10 * time.Minute
	// Margin kept back from the budget; crossing it is a warning,
	// crossing the budget itself fails the run.
	DefaultTimeoutMargin = time.Minute
)

// RetryDelays is the fixed backoff schedule for evaluation callbacks.
// Its length is the maximum attempt count.
var RetryDelays = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
}

// Config carries every environment-driven setting for the deploy server.
type Config struct {
	// Shared secret expected in incoming task requests.
	StudentSecret string

	// Generator backend.
	OpenAIAPIKey  string
	OpenAIBaseURL string

	// Publish target.
	GitHubToken    string
	GitHubUsername string
	GitHubAPIURL   string

	ServerAddr     string
	GeneratedDir   string
	AttachmentsDir string

	PipelineTimeout time.Duration
	TimeoutMargin   time.Duration
	RetryDelays     []time.Duration

	KafkaBrokers string
	EventTopic   string
}

// Load reads configuration from the environment, applying defaults.
func Load() *Config {
	cfg := &Config{
		StudentSecret:   os.Getenv("STUDENT_SECRET"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", "https://api.openai.com"),
		GitHubToken:     os.Getenv("GITHUB_TOKEN"),
		GitHubUsername:  os.Getenv("GITHUB_USERNAME"),
		GitHubAPIURL:    getEnv("GITHUB_API_URL", "https://api.github.com"),
		ServerAddr:      getEnv("SERVER_ADDR", DefaultServerAddr),
		GeneratedDir:    getEnv("GENERATED_APPS_DIR", DefaultGeneratedDir),
		AttachmentsDir:  getEnv("TEMP_ATTACHMENTS_DIR", DefaultAttachmentsDir),
		PipelineTimeout: getEnvDuration("PIPELINE_TIMEOUT_SECONDS", DefaultPipelineTimeout),
		TimeoutMargin:   DefaultTimeoutMargin,
		RetryDelays:     RetryDelays,
		KafkaBrokers:    os.Getenv("KAFKA_BROKERS"),
		EventTopic:      getEnv("EVENT_TOPIC", "task_lifecycle_events"),
	}
	return cfg
}

// Validate reports every missing required setting at once.
func (c *Config) Validate() error {
	var errs []string
	if c.StudentSecret == "" {
		errs = append(errs, "STUDENT_SECRET not set")
	}
	if c.OpenAIAPIKey == "" {
		errs = append(errs, "OPENAI_API_KEY not set")
	}
	if c.GitHubToken == "" {
		errs = append(errs, "GITHUB_TOKEN not set")
	}
	if c.GitHubUsername == "" {
		errs = append(errs, "GITHUB_USERNAME not set")
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}
