package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	LLMGoogleAI = "googleai"
	LLMOpenAI   = "openai"
	LLMGemini   = "gemini"

	SearchSerper     = "serper"
	SearchDuckDuckGo = "duckduckgo"
	SearchArxiv      = "arxiv"
)

type Config struct {
	GoogleApiKey    string
	OpenAIApiKey    string
	LLMProvider     string
	ReasoningModel  string
	SearchProvider  string
	SerperApiKey    string
	MaxResults      int
	MaxRounds       int
	MaxFollowUps    int
	LLMRetries      int
	ProviderRetries int
	CallTimeout     time.Duration
	SessionTimeout  time.Duration
	Port            string
	CORSOrigins     []string
}

func Load() *Config {
	return &Config{
		GoogleApiKey:    getEnv("GOOGLE_API_KEY", ""),
		OpenAIApiKey:    getEnv("OPENAI_API_KEY", ""),
		LLMProvider:     strings.ToLower(getEnv("LLM_PROVIDER", LLMGoogleAI)),
		ReasoningModel:  getEnv("REASONING_MODEL", ""),
		SearchProvider:  strings.ToLower(getEnv("SEARCH_PROVIDER", SearchSerper)),
		SerperApiKey:    getEnv("SERPER_API_KEY", ""),
		MaxResults:      getEnvAsInt("MAX_RESULTS", 10),
		MaxRounds:       getEnvAsInt("MAX_ROUNDS", 1),
		MaxFollowUps:    getEnvAsInt("MAX_FOLLOW_UPS", 3),
		LLMRetries:      getEnvAsInt("LLM_RETRIES", 3),
		ProviderRetries: getEnvAsInt("PROVIDER_RETRIES", 3),
		CallTimeout:     getEnvAsDuration("CALL_TIMEOUT", 60*time.Second),
		SessionTimeout:  getEnvAsDuration("SESSION_TIMEOUT", 10*time.Minute),
		Port:            getEnv("PORT", "3000"),
		CORSOrigins:     getEnvAsList("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
	}
}

// Model returns the configured reasoning model or the provider's default.
func (c *Config) Model() string {
	if c.ReasoningModel != "" {
		return c.ReasoningModel
	}
	if c.LLMProvider == LLMOpenAI {
		return "gpt-4o-mini"
	}
	return "gemini-2.5-flash"
}

// Validate reports settings that would make every session fail.
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case LLMGoogleAI, LLMGemini:
		if c.GoogleApiKey == "" {
			return fmt.Errorf("GOOGLE_API_KEY is required for LLM provider %q", c.LLMProvider)
		}
	case LLMOpenAI:
		if c.OpenAIApiKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for LLM provider %q", c.LLMProvider)
		}
	default:
		return fmt.Errorf("unknown LLM provider %q", c.LLMProvider)
	}

	switch c.SearchProvider {
	case SearchSerper:
		if c.SerperApiKey == "" {
			return fmt.Errorf("SERPER_API_KEY is required for search provider %q", c.SearchProvider)
		}
	case SearchDuckDuckGo, SearchArxiv:
	default:
		return fmt.Errorf("unknown search provider %q", c.SearchProvider)
	}

	if c.MaxRounds < 0 || c.MaxFollowUps < 0 {
		return fmt.Errorf("MAX_ROUNDS and MAX_FOLLOW_UPS must not be negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
