package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// default throttle window for coalescing persisted-state writes
const defaultWriteThrottle = 100 * time.Millisecond

// loads configuration from environment variables
func LoadEnvironmentVariables() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		_ = err // not an error - production environments may not have .env file
	}

	apiEndpoint := os.Getenv("PASSAGE_API_ENDPOINT")
	wsEndpoint := os.Getenv("PASSAGE_WS_ENDPOINT")
	stateDir := os.Getenv("PASSAGE_STATE_DIR")
	metricsAddr := os.Getenv("PASSAGE_METRICS_ADDR")
	environment := os.Getenv("ENVIRONMENT")

	if apiEndpoint == "" {
		apiEndpoint = "http://localhost:8080"
	}

	if wsEndpoint == "" {
		wsEndpoint = "ws://localhost:8080/api/v1/chat/ws"
	}

	if stateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve state directory: %w", err)
		}
		stateDir = dir
	}

	if environment == "" {
		environment = "development"
	}

	oauthPort := 8910
	if v := os.Getenv("PASSAGE_OAUTH_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("PASSAGE_OAUTH_PORT must be a port number: %w", err)
		}
		oauthPort = p
	}

	throttle := defaultWriteThrottle
	if v := os.Getenv("PASSAGE_WRITE_THROTTLE_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("PASSAGE_WRITE_THROTTLE_MS must be an integer: %w", err)
		}
		throttle = time.Duration(ms) * time.Millisecond
	}

	return &Config{
		APIEndpoint:   apiEndpoint,
		WSEndpoint:    wsEndpoint,
		StateDir:      stateDir,
		OAuthPort:     oauthPort,
		MetricsAddr:   metricsAddr,
		Environment:   environment,
		WriteThrottle: throttle,
	}, nil
}

// resolves the per-user state directory used for persisted session data
func defaultStateDir() (string, error) {
	if v := os.Getenv("XDG_STATE_HOME"); v != "" {
		return filepath.Join(v, "passage"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(home, ".local", "state", "passage"), nil
}
