package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STUDENT_SECRET", "s3cret")
	t.Setenv("OPENAI_API_KEY", "key")
	t.Setenv("GITHUB_TOKEN", "tok")
	t.Setenv("GITHUB_USERNAME", "user")
	t.Setenv("OPENAI_BASE_URL", "")
	t.Setenv("GITHUB_API_URL", "")
	t.Setenv("SERVER_ADDR", "")
	t.Setenv("PIPELINE_TIMEOUT_SECONDS", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("EVENT_TOPIC", "")

	cfg := Load()
	assert.Equal(t, ":7860", cfg.ServerAddr)
	assert.Equal(t, "https://api.openai.com", cfg.OpenAIBaseURL)
	assert.Equal(t, "https://api.github.com", cfg.GitHubAPIURL)
	assert.Equal(t, "generated_apps", cfg.GeneratedDir)
	assert.Equal(t, "temp_attachments", cfg.AttachmentsDir)
	assert.Equal(t, 10*time.Minute, cfg.PipelineTimeout)
	assert.Equal(t, time.Minute, cfg.TimeoutMargin)
	assert.Equal(t, "task_lifecycle_events", cfg.EventTopic)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}, cfg.RetryDelays)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9000")
	t.Setenv("PIPELINE_TIMEOUT_SECONDS", "120")
	t.Setenv("OPENAI_BASE_URL", "http://localhost:8081")

	cfg := Load()
	assert.Equal(t, ":9000", cfg.ServerAddr)
	assert.Equal(t, 2*time.Minute, cfg.PipelineTimeout)
	assert.Equal(t, "http://localhost:8081", cfg.OpenAIBaseURL)
}

func TestLoad_BadTimeoutFallsBack(t *testing.T) {
	t.Setenv("PIPELINE_TIMEOUT_SECONDS", "not-a-number")
	assert.Equal(t, DefaultPipelineTimeout, Load().PipelineTimeout)

	t.Setenv("PIPELINE_TIMEOUT_SECONDS", "-5")
	assert.Equal(t, DefaultPipelineTimeout, Load().PipelineTimeout)
}

func TestValidate_ReportsAllMissingSettings(t *testing.T) {
	t.Setenv("STUDENT_SECRET", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GITHUB_USERNAME", "")

	err := Load().Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "STUDENT_SECRET not set")
	assert.Contains(t, err.Error(), "OPENAI_API_KEY not set")
	assert.Contains(t, err.Error(), "GITHUB_TOKEN not set")
	assert.Contains(t, err.Error(), "GITHUB_USERNAME not set")
}
