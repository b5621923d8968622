package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the quiz service.
type Config struct {
	AppName             string
	AppEnv              string
	AppPort             string
	DatabaseURL         string
	RedisURL            string
	NATSURL             string
	JWTSecret           string
	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	CloudinaryFolder    string
	DefinitionCacheTTL  time.Duration
	EnforceTimeLimit    bool
	SubmitGracePeriod   time.Duration
	AutosaveRateLimit   int
	AutosaveRateWindow  time.Duration
	ActivitySubject     string
	OpenAIAPIKey        string
	TutorModel          string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("LUMEN")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Lumen Quiz API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("cloudinary.folder", "lumen/quizzes")
	v.SetDefault("quiz.definition_cache_ttl", "10m")
	v.SetDefault("quiz.enforce_time_limit", false)
	v.SetDefault("quiz.submit_grace", "30s")
	v.SetDefault("quiz.autosave_rate_limit", 5)
	v.SetDefault("quiz.autosave_rate_window", "1s")
	v.SetDefault("quiz.activity_subject", "lumen.quiz.attempts")
	v.SetDefault("tutor.model", "gpt-4o-mini")

	cacheTTL, err := time.ParseDuration(v.GetString("quiz.definition_cache_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid definition cache ttl: %w", err)
	}

	grace, err := time.ParseDuration(v.GetString("quiz.submit_grace"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid submit grace period: %w", err)
	}

	rateWindow, err := time.ParseDuration(v.GetString("quiz.autosave_rate_window"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid autosave rate window: %w", err)
	}

	cfg := Config{
		AppName:             v.GetString("app.name"),
		AppEnv:              v.GetString("app.env"),
		AppPort:             v.GetString("app.port"),
		DatabaseURL:         v.GetString("database.url"),
		RedisURL:            v.GetString("redis.url"),
		NATSURL:             v.GetString("nats.url"),
		JWTSecret:           v.GetString("jwt.secret"),
		CloudinaryCloudName: v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:    v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret: v.GetString("cloudinary.api_secret"),
		CloudinaryFolder:    v.GetString("cloudinary.folder"),
		DefinitionCacheTTL:  cacheTTL,
		EnforceTimeLimit:    v.GetBool("quiz.enforce_time_limit"),
		SubmitGracePeriod:   grace,
		AutosaveRateLimit:   v.GetInt("quiz.autosave_rate_limit"),
		AutosaveRateWindow:  rateWindow,
		ActivitySubject:     v.GetString("quiz.activity_subject"),
		OpenAIAPIKey:        v.GetString("openai_api_key"),
		TutorModel:          v.GetString("tutor.model"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.AutosaveRateLimit <= 0 {
		cfg.AutosaveRateLimit = 5
	}

	return cfg, nil
}
