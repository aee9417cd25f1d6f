package bootstrap

import (
	"testing"

	"brokerdesk-backend/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestConfigureLogging_Level(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	ConfigureLogging(&config.Config{Env: "production", LogLevel: "DEBUG"})
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	ConfigureLogging(&config.Config{Env: "production", LogLevel: "nonsense"})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
