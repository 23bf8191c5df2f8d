package notify

import (
	"time"

	"kapantask/config"
)

// DefaultsFromEnv reads the fallback SMTP relay and sender used when no email
// configuration is active.
func DefaultsFromEnv() Defaults {
	return Defaults{
		SMTP: SMTPConfig{
			Host:     config.String("EMAIL_HOST", "localhost"),
			Port:     config.Int("EMAIL_PORT", 587),
			Username: config.String("EMAIL_HOST_USER", ""),
			Password: config.String("EMAIL_HOST_PASSWORD", ""),
			UseTLS:   config.Bool("EMAIL_USE_TLS", true),
		},
		FromEmail: config.String("DEFAULT_FROM_EMAIL", "noreply@kapantask.local"),
	}
}

// TransportFromEnv returns the SMTP transport with EMAIL_TIMEOUT applied.
func TransportFromEnv() SMTPTransport {
	return SMTPTransport{Timeout: config.Duration("EMAIL_TIMEOUT", 30*time.Second)}
}
