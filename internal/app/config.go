package app

import (
	"github.com/soreniverson/shipped-backend/internal/pkg/logger"
	"github.com/soreniverson/shipped-backend/internal/utils"
)

type Config struct {
	Port string

	// Per-minute vendor call budgets, shared across workers via Redis.
	// Zero disables the cap for that class.
	ExtractPerMinute int
	EmbedPerMinute   int
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		Port:             utils.GetEnv("PORT", "8080", log),
		ExtractPerMinute: utils.GetEnvAsInt("RATE_LIMIT_EXTRACT_PER_MINUTE", 60, log),
		EmbedPerMinute:   utils.GetEnvAsInt("RATE_LIMIT_EMBED_PER_MINUTE", 120, log),
	}
}
