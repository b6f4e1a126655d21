package config

import "time"

type Config struct {
	APIEndpoint   string
	WSEndpoint    string
	StateDir      string
	OAuthPort     int
	MetricsAddr   string
	Environment   string
	WriteThrottle time.Duration
}
