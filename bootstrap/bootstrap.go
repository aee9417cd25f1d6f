// Package bootstrap builds the process-wide pieces shared by the server binary and the
// serverless entry point: configuration, logging and the Fiber app.
package bootstrap

import (
	"os"
	"strings"
	"time"

	"brokerdesk-backend/internal/config"
	"brokerdesk-backend/internal/interfaces/router"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// App is a built application with the connections it owns.
type App struct {
	Config *config.Config
	Fiber  *fiber.App
	DB     *gorm.DB
	Redis  *redis.Client
}

// New loads config, configures logging and creates the app.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	ConfigureLogging(cfg)
	app, db, rdb, err := router.CreateApp(cfg)
	if err != nil {
		return nil, err
	}
	return &App{Config: cfg, Fiber: app, DB: db, Redis: rdb}, nil
}

// ConfigureLogging sets the global zerolog level from LOG_LEVEL. Outside production the
// output is human-readable.
func ConfigureLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Env != "production" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
	}
}

// Close releases the database pool and the Redis client.
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.Warn().Err(err).Msg("redis close")
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				log.Warn().Err(err).Msg("database close")
			}
		}
	}
}
