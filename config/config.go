// Package config loads the stallbot configuration surface from environment
// variables (with optional .env file) and an optional YAML file carrying the
// classification rule table. Everything is resolved once at startup; the
// resulting Config is treated as immutable afterwards.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// RuleSpec declares one ordered classification rule: keyword/pattern match to
// a fixed intent label. Patterns are Go regular expressions.
type RuleSpec struct {
	Intent   string   `yaml:"intent"`
	Keywords []string `yaml:"keywords"`
	Patterns []string `yaml:"patterns"`
}

// RulesFile is the YAML document shape for the optional rules file.
type RulesFile struct {
	Rules []RuleSpec `yaml:"classification_rules"`
}

// Config is the full recognized option surface.
type Config struct {
	// Negotiation
	FloorPercentage int // 0-100, floor = original * pct / 100
	StepCount       int // >= 1
	CurrencyScale   int32

	// Handover
	ToggleKeyword string

	// Context window handed to the classifier and experts
	ContextMaxTurns int
	ContextMaxRunes int

	// LLM collaborator
	LLMTimeout    time.Duration
	ModelProvider string // "openai" or "anthropic"
	ModelName     string

	// Classification rules (defaults used when no file is given)
	Rules []RuleSpec

	// Safety filter
	BlockedPhrases []string
	SafetyReply    string
	FallbackReply  string

	// Storage / admin surface
	SQLitePath    string
	AdminAddr     string
	AllowedOrigin string
	ActiveWindow  time.Duration

	// Prompt templates directory; embedded defaults used when empty
	PromptDir string

	// Dispatcher
	Workers        int
	MaxConcurrent  int64
	LogLevel       string
	LogFormat      string
}

// DefaultRules mirrors the rule table the original deployment shipped with:
// technical rules are checked before price rules.
func DefaultRules() []RuleSpec {
	return []RuleSpec{
		{Intent: "tech", Keywords: []string{"参数", "规格", "型号", "连接", "对比"}, Patterns: []string{`和.+比`}},
		{Intent: "price", Keywords: []string{"便宜", "价", "砍价", "少点"}, Patterns: []string{`\d+元`, `能少\d+`}},
	}
}

// Load resolves the configuration from .env (if present), the environment,
// and the optional rules file named by STALLBOT_RULES_FILE.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		FloorPercentage: getEnvIntDefault("FLOOR_PERCENTAGE", 80),
		StepCount:       getEnvIntDefault("STEP_COUNT", 3),
		CurrencyScale:   int32(getEnvIntDefault("CURRENCY_SCALE", 2)),
		ToggleKeyword:   getEnvDefault("TOGGLE_KEYWORD", "。"),
		ContextMaxTurns: getEnvIntDefault("CONTEXT_MAX_TURNS", 10),
		ContextMaxRunes: getEnvIntDefault("CONTEXT_MAX_RUNES", 0),
		LLMTimeout:      getEnvDurationDefault("LLM_TIMEOUT", 30*time.Second),
		ModelProvider:   getEnvDefault("MODEL_PROVIDER", "openai"),
		ModelName:       os.Getenv("MODEL_NAME"),
		Rules:           DefaultRules(),
		BlockedPhrases:  getEnvListDefault("BLOCKED_PHRASES", []string{"微信", "QQ", "支付宝", "银行卡", "线下"}),
		SafetyReply:     getEnvDefault("SAFETY_REPLY", "[安全提醒]请通过平台沟通"),
		FallbackReply:   getEnvDefault("FALLBACK_REPLY", "抱歉，我这边暂时没处理好，稍后回复您。"),
		SQLitePath:      getEnvDefault("SQLITE_PATH", "data/chat_history.db"),
		AdminAddr:       getEnvDefault("ADMIN_ADDR", ":8081"),
		AllowedOrigin:   getEnvDefault("ALLOWED_ORIGIN", "*"),
		ActiveWindow:    getEnvDurationDefault("ACTIVE_WINDOW", 24*time.Hour),
		PromptDir:       os.Getenv("PROMPT_DIR"),
		Workers:         getEnvIntDefault("WORKERS", 8),
		MaxConcurrent:   int64(getEnvIntDefault("MAX_CONCURRENT", 32)),
		LogLevel:        getEnvDefault("LOG_LEVEL", "info"),
		LogFormat:       getEnvDefault("LOG_FORMAT", "json"),
	}

	if path := os.Getenv("STALLBOT_RULES_FILE"); path != "" {
		rules, err := LoadRules(path)
		if err != nil {
			return Config{}, err
		}
		cfg.Rules = rules
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadRules parses the ordered classification rule table from a YAML file.
func LoadRules(path string) ([]RuleSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	var doc RulesFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	if len(doc.Rules) == 0 {
		return nil, fmt.Errorf("rules file %s declares no classification_rules", path)
	}
	return doc.Rules, nil
}

// Validate checks option ranges.
func (c Config) Validate() error {
	if c.FloorPercentage < 0 || c.FloorPercentage > 100 {
		return fmt.Errorf("floor_percentage must be within 0-100, got %d", c.FloorPercentage)
	}
	if c.StepCount < 1 {
		return fmt.Errorf("step_count must be >= 1, got %d", c.StepCount)
	}
	if c.ToggleKeyword == "" {
		return fmt.Errorf("toggle_keyword must not be empty")
	}
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("llm_timeout must be positive, got %s", c.LLMTimeout)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", c.Workers)
	}
	return nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getEnvDurationDefault(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}

func getEnvListDefault(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}
