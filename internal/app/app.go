package app

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/soreniverson/shipped-backend/internal/db"
	httpMW "github.com/soreniverson/shipped-backend/internal/http/middleware"
	"github.com/soreniverson/shipped-backend/internal/pkg/logger"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	DB       *gorm.DB
	Clients  Clients
	Repos    Repos
	Services Services
	Router   *gin.Engine
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	clients, err := wireClients(log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	reposet := wireRepos(theDB, log)

	serviceset, err := wireServices(theDB, log, cfg, clients, reposet)
	if err != nil {
		clients.Close()
		log.Sync()
		return nil, err
	}

	handlerset := wireHandlers(log, serviceset)
	router := wireRouter(log, handlerset, httpMW.NewAuthMiddleware(log))

	return &App{
		Log:      log,
		Cfg:      cfg,
		DB:       theDB,
		Clients:  clients,
		Repos:    reposet,
		Services: serviceset,
		Router:   router,
	}, nil
}

// Start brings up the background side of the process: the Temporal worker
// and the hourly App Store poll. The HTTP surface is run separately via
// Router.
func (a *App) Start(ctx context.Context) error {
	if a.Services.Worker != nil {
		if err := a.Services.Worker.Start(ctx); err != nil {
			return err
		}
		if err := a.Services.Starter.EnsureAppStorePoll(ctx); err != nil {
			a.Log.Warn("Failed to register App Store poll", "error", err.Error())
		}
	}
	return nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.Clients.Close()
	if a.Log != nil {
		a.Log.Sync()
	}
}
