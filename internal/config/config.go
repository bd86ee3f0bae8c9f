package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const defaultJWTSecret = "your-secret-key-change-this-in-production"

type Config struct {
	ServerAddress string
	ServerPort    int

	MaxBodyBytes  int64
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	SendQueueSize int
	FrameRate     float64
	FrameBurst    int64

	MongoURI      string
	MongoDatabase string

	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	APIKeyPepper    string

	RedisAddr string
	ServerID  string

	MetricsAddr string
	LogLevel    string
	LogJSON     bool
}

// UsingDefaultJWTSecret reports whether JWT_SECRET was left unset.
func (c Config) UsingDefaultJWTSecret() bool {
	return c.JWTSecret == defaultJWTSecret
}

// Load reads the given env files, or .env when none are named, and then the
// process environment. Only a missing default .env is tolerated.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		if len(envFiles) > 0 {
			return Config{}, fmt.Errorf("config: load %v: %w", envFiles, err)
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load .env: %w", err)
		}
	}

	var (
		c   Config
		err error
	)

	c.ServerAddress = getString("SERVER_ADDRESS", "0.0.0.0")
	if c.ServerPort, err = getInt("SERVER_PORT", 8080); err != nil {
		return Config{}, err
	}
	if c.MaxBodyBytes, err = getInt64("MAX_BODY_BYTES", 10000); err != nil {
		return Config{}, err
	}
	if c.ReadTimeout, err = getDuration("READ_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	if c.WriteTimeout, err = getDuration("WRITE_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if c.SendQueueSize, err = getInt("SEND_QUEUE_SIZE", 256); err != nil {
		return Config{}, err
	}
	if c.FrameRate, err = getFloat("FRAME_RATE", 20); err != nil {
		return Config{}, err
	}
	if c.FrameBurst, err = getInt64("FRAME_BURST", 40); err != nil {
		return Config{}, err
	}

	c.MongoURI = getString("MONGODB_URI", "mongodb://localhost:27017")
	c.MongoDatabase = getString("MONGODB_DATABASE", "ccfolio")

	c.JWTSecret = getString("JWT_SECRET", defaultJWTSecret)
	if c.AccessTokenTTL, err = getDuration("ACCESS_TOKEN_TTL", 15*time.Minute); err != nil {
		return Config{}, err
	}
	if c.RefreshTokenTTL, err = getDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour); err != nil {
		return Config{}, err
	}
	c.APIKeyPepper = getString("APIKEY_PEPPER", "ccfolio-apikey-pepper")

	c.RedisAddr = os.Getenv("REDIS_ADDR")
	c.ServerID = getString("SERVER_ID", "server-1")

	c.MetricsAddr = getString("METRICS_ADDR", ":9090")
	c.LogLevel = getString("LOG_LEVEL", "info")
	if c.LogJSON, err = getBool("LOG_JSON", false); err != nil {
		return Config{}, err
	}

	if c.ServerPort < 0 || c.ServerPort > 65535 {
		return Config{}, fmt.Errorf("config: SERVER_PORT %d out of range", c.ServerPort)
	}
	if c.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("config: MAX_BODY_BYTES must be positive")
	}
	if c.SendQueueSize <= 0 {
		return Config{}, fmt.Errorf("config: SEND_QUEUE_SIZE must be positive")
	}

	return c, nil
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func getInt64(key string, def int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return f, nil
}

func getBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}
