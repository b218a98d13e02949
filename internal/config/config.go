package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"guild-tracker/internal/constants"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	DBPath     string
	ServerPort string
	LogLevel   string

	// Guild identity used for upstream lookups.
	GuildName    string
	GuildRealm   string
	Region       string
	DefaultRealm string

	RaiderIOBaseURL string

	WarcraftLogsBaseURL      string
	WarcraftLogsTokenURL     string
	WarcraftLogsClientID     string
	WarcraftLogsClientSecret string

	// UploaderKeys maps a static API key to the uploader identity it
	// authenticates ("key:uploader_id" pairs, comma separated).
	UploaderKeys map[string]string

	SyncCron     string
	LogsSyncCron string

	SyncTimeout time.Duration
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		DBPath:     getEnv("DB_PATH", "guild.db"),
		ServerPort: getEnv("SERVER_PORT", "8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		GuildName:    getEnv("GUILD_NAME", ""),
		GuildRealm:   getEnv("GUILD_REALM", ""),
		Region:       getEnv("REGION", "us"),
		DefaultRealm: getEnv("DEFAULT_REALM", "Quel'Thalas"),

		RaiderIOBaseURL: getEnv("RAIDERIO_BASE_URL", "https://raider.io"),

		WarcraftLogsBaseURL:      getEnv("WCL_BASE_URL", "https://www.warcraftlogs.com"),
		WarcraftLogsTokenURL:     getEnv("WCL_TOKEN_URL", "https://www.warcraftlogs.com/oauth/token"),
		WarcraftLogsClientID:     getEnv("WCL_CLIENT_ID", ""),
		WarcraftLogsClientSecret: getEnv("WCL_CLIENT_SECRET", ""),

		UploaderKeys: parseUploaderKeys(getEnv("UPLOADER_KEYS", "")),

		SyncCron:     getEnv("SYNC_CRON", "@every 5m"),
		LogsSyncCron: getEnv("LOGS_SYNC_CRON", "@every 30m"),

		SyncTimeout: constants.SyncPassTimeout,
	}

	if len(cfg.UploaderKeys) == 0 {
		return nil, fmt.Errorf("UPLOADER_KEYS is required")
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("region", cfg.Region).
		Str("guild", cfg.GuildName).
		Int("uploader_keys", len(cfg.UploaderKeys)).
		Msg("configuration loaded")

	return cfg, nil
}

// parseUploaderKeys parses "key:uploaderID,key2:uploaderID2".
func parseUploaderKeys(raw string) map[string]string {
	keys := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, id, ok := strings.Cut(pair, ":")
		if !ok || key == "" || id == "" {
			continue
		}
		keys[key] = id
	}
	return keys
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var Module = fx.Provide(Load)
