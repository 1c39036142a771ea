package config

import (
	"encoding/base64"
	"errors"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	DBDSN    string
	RedisDSN string
	HTTPAddr string
	LogLevel string

	// OwnerUserID is the site operator's canonical account id. It doubles
	// as the infinite-points account and is exempt from automod.
	OwnerUserID string

	// raw secrets kept in-memory only; never log these
	AdminSecretKey       string
	BridgeSecret         string
	SessionEncryptionKey []byte // decoded from SESSION_ENCRYPTION_KEY

	CORSOrigins []string

	R2Endpoint  string
	R2Bucket    string
	R2PublicURL string

	ChatWorkerCount int

	// message point award per platform; zero disables awards for a platform
	MessagePoints map[string]int64
}

func Load() (Config, error) {
	cfg := Config{
		DBDSN:          os.Getenv("DB_DSN"),
		RedisDSN:       getenvDefault("REDIS_DSN", "redis://localhost:6379/0"),
		HTTPAddr:       getenvDefault("HTTP_ADDR", ":8080"),
		LogLevel:       getenvDefault("LOG_LEVEL", "info"),
		OwnerUserID:    os.Getenv("OWNER_USER_ID"),
		AdminSecretKey: getenvDefault("ADMIN_SECRET_KEY", ""),
		BridgeSecret:   os.Getenv("BRIDGE_SECRET"),
		R2Endpoint:     getenvDefault("R2_ENDPOINT", ""),
		R2Bucket:       getenvDefault("R2_BUCKET", ""),
		R2PublicURL:    getenvDefault("R2_PUBLIC_URL", ""),
	}

	if cfg.DBDSN == "" {
		return Config{}, errors.New("missing DB_DSN")
	}
	if cfg.OwnerUserID == "" {
		return Config{}, errors.New("missing OWNER_USER_ID")
	}

	// decode session encryption key (base64, must be 32 bytes)
	if raw := os.Getenv("SESSION_ENCRYPTION_KEY"); raw != "" {
		key, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return Config{}, errors.New("SESSION_ENCRYPTION_KEY must be valid base64")
		}
		if len(key) != 32 {
			return Config{}, errors.New("SESSION_ENCRYPTION_KEY must be 32 bytes (256 bits)")
		}
		cfg.SessionEncryptionKey = key
	}

	cfg.ChatWorkerCount = getenvInt("CHAT_WORKER_COUNT", 5)

	cfg.MessagePoints = map[string]int64{
		"twitch":  int64(getenvInt("MESSAGE_POINTS_TWITCH", 15)),
		"youtube": int64(getenvInt("MESSAGE_POINTS_YOUTUBE", 15)),
		"nexus":   int64(getenvInt("MESSAGE_POINTS_NEXUS", 25)),
	}

	// parse CORS origins
	corsOrigins := getenvDefault("CORS_ORIGINS", "")
	if corsOrigins != "" {
		cfg.CORSOrigins = strings.Split(corsOrigins, ",")
		for i := range cfg.CORSOrigins {
			cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
		}
	} else {
		cfg.CORSOrigins = []string{"http://localhost:3000"} // default
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
