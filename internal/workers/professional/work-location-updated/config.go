// internal/workers/professional/work-location-updated/config.go
package worklocationupdated

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
	}
}
