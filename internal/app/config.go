package app

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/manuscript-desk-poc/server/internal/agent/model"
	"github.com/manuscript-desk-poc/server/internal/core"
	logx "github.com/manuscript-desk-poc/server/pkg/logger"
	pkgredis "github.com/manuscript-desk-poc/server/pkg/redis"
)

// Config defines all configurable parameters of the desk, sourced from
// environment variables (loaded from .env for local runs).
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL"`

	// Infrastructure
	Redis pkgredis.Config
	HTTP  model.HTTPConfig

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Desk configs
	Classifier   model.ClassifierModelConfig
	Response     model.ResponseModelConfig
	LLM          model.LLMConfig
	Retrieval    model.RetrievalConfig
	Escalation   model.EscalationConfig
	Pipeline     model.PipelineConfig
	Data         model.DataConfig
	Prompt       model.ResponsePromptConfig
	Conversation model.ConversationConfig
}

// LoadConfig reads envFile when present and binds the environment.
func LoadConfig(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			logx.Debug().Err(err).Str("file", envFile).Msg("Could not load env file, using process environment")
		}
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment config: %w", err)
	}
	return cfg, nil
}

// InitLogger configures logx from the config.
func (c Config) InitLogger() {
	logx.Init(logx.LoggerOpts{
		Environment: core.ParseEnvironment(c.Environment),
		Level:       c.LogLevel,
	})
}

func (c Config) LLMTimeout() (time.Duration, error) {
	return parseDuration("LLM_TIMEOUT", c.LLM.Timeout)
}

func (c Config) ConversationTTL() (time.Duration, error) {
	return parseDuration("CONVERSATION_TTL", c.Conversation.TTL)
}

func (c Config) ShutdownTimeout() (time.Duration, error) {
	return parseDuration("HTTP_SHUTDOWN_TIMEOUT", c.HTTP.ShutdownTimeout)
}

func parseDuration(name, v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	return d, nil
}
