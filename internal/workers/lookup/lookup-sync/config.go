// internal/workers/lookup/lookup-sync/config.go
package lookupsync

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}
