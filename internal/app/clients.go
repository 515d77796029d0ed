package app

import (
	"fmt"
	"os"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/soreniverson/shipped-backend/internal/pkg/logger"
	"github.com/soreniverson/shipped-backend/internal/platform/openai"
	"github.com/soreniverson/shipped-backend/internal/platform/redis"
	"github.com/soreniverson/shipped-backend/internal/temporalx"
)

type Clients struct {
	OpenAI   openai.Client
	Redis    *goredis.Client
	Temporal temporalsdkclient.Client
}

func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")

	openaiClient, err := openai.NewClient(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init openai client: %w", err)
	}

	// Redis backs the shared rate limiter; without it each worker falls
	// back to the vendor's own throttling.
	var rdb *goredis.Client
	if strings.TrimSpace(os.Getenv("REDIS_ADDR")) != "" {
		rdb, err = redis.NewClient(log)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis client: %w", err)
		}
	} else {
		log.Warn("REDIS_ADDR not set; rate limiter runs unenforced")
	}

	tc, err := temporalx.NewClient(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init temporal client: %w", err)
	}

	return Clients{
		OpenAI:   openaiClient,
		Redis:    rdb,
		Temporal: tc,
	}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
