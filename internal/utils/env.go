package utils

import (
	"os"
	"strconv"
	"strings"

	"github.com/soreniverson/shipped-backend/internal/pkg/logger"
)

func GetEnv(key, def string, log *logger.Logger) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		if log != nil {
			log.Debug("Env var unset; using default", "key", key, "default", def)
		}
		return def
	}
	return v
}

func GetEnvAsInt(key string, def int, log *logger.Logger) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		if log != nil {
			log.Warn("Env var not an integer; using default", "key", key, "value", v, "default", def)
		}
		return def
	}
	return n
}

func GetEnvAsBool(key string, def bool, log *logger.Logger) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		if log != nil {
			log.Warn("Env var not a boolean; using default", "key", key, "value", v, "default", def)
		}
		return def
	}
}
