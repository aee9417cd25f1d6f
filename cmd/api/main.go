package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"brokerdesk-backend/bootstrap"
	"brokerdesk-backend/internal/infrastructure/database"

	"github.com/rs/zerolog/log"
)

func main() {
	app, err := bootstrap.New()
	if err != nil {
		log.Fatal().Err(err).Msg("app create")
	}
	defer app.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	sqlDB, err := app.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		cancel()
		log.Fatal().Err(err).Msg("postgres connection failed")
	}
	if err := app.Redis.Ping(ctx).Err(); err != nil {
		cancel()
		log.Fatal().Err(err).Msg("redis connection failed")
	}
	cancel()
	log.Info().Msg("postgres and redis connected")

	if app.Config.AutoMigrate {
		if err := database.AutoMigrate(app.DB); err != nil {
			log.Fatal().Err(err).Msg("migrate")
		}
		log.Info().Msg("schema migrated")
	}

	go func() {
		log.Info().Str("port", app.Config.Port).Msg("server listening")
		if err := app.Fiber.Listen(":" + app.Config.Port); err != nil {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")
	if err := app.Fiber.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
}
