// internal/workers/application/payment-status-updated/config.go
package paymentstatusupdated

import "time"

type Config struct {
	Timeout   time.Duration
	UpdatedBy string
}

func LoadConfig() *Config {
	return &Config{
		Timeout:   30 * time.Second,
		UpdatedBy: "payment-service",
	}
}
