package core

import (
	"fmt"
	"strings"
	"time"
)

// Config carries the runtime settings for the checkout service. Durations
// are expressed in whole seconds so the struct round-trips cleanly through
// configuration loaders that only understand scalar values.
type Config struct {
	// ServiceName is used as the logger namespace and metric prefix.
	ServiceName string `json:"service_name" koanf:"service_name"`

	// MerchantAccount identifies the gateway merchant the service acts for.
	MerchantAccount string `json:"merchant_account" koanf:"merchant_account"`

	// Environment selects the gateway environment, "test" or "live".
	Environment string `json:"environment" koanf:"environment"`

	StateData     StateDataConfig     `json:"state_data" koanf:"state_data"`
	Notifications NotificationsConfig `json:"notifications" koanf:"notifications"`
}

// StateDataConfig controls retention of checkout state data records.
type StateDataConfig struct {
	// TTLSeconds bounds how long a state data record stays loadable after
	// its last write. Zero keeps records until they are removed explicitly.
	TTLSeconds int `json:"ttl_seconds" koanf:"ttl_seconds"`
}

// NotificationsConfig controls webhook notification processing.
type NotificationsConfig struct {
	// MaxAttempts caps delivery attempts per notification before the
	// record is parked as failed.
	MaxAttempts int `json:"max_attempts" koanf:"max_attempts"`

	// RetryBaseSeconds is the first retry delay. Subsequent delays double
	// per attempt up to RetryMaxSeconds.
	RetryBaseSeconds int `json:"retry_base_seconds" koanf:"retry_base_seconds"`

	// RetryMaxSeconds caps the exponential retry delay.
	RetryMaxSeconds int `json:"retry_max_seconds" koanf:"retry_max_seconds"`

	// ClaimLeaseSeconds is how long a processing claim on a notification
	// stays exclusive before another worker may pick the record up again.
	ClaimLeaseSeconds int `json:"claim_lease_seconds" koanf:"claim_lease_seconds"`

	// RequireHMAC rejects notifications that arrive without a verifiable
	// HMAC signature.
	RequireHMAC bool `json:"require_hmac" koanf:"require_hmac"`
}

// DefaultConfig returns the settings the service starts from before any
// loader or runtime overrides apply.
func DefaultConfig() Config {
	return Config{
		ServiceName: "checkout",
		Environment: "test",
		StateData: StateDataConfig{
			TTLSeconds: 3600,
		},
		Notifications: NotificationsConfig{
			MaxAttempts:       8,
			RetryBaseSeconds:  30,
			RetryMaxSeconds:   3600,
			ClaimLeaseSeconds: 300,
			RequireHMAC:       true,
		},
	}
}

// Validate reports the first settings problem it finds.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("core: config is nil")
	}
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: config service_name is required")
	}
	switch strings.TrimSpace(c.Environment) {
	case "test", "live":
	default:
		return fmt.Errorf("core: config environment must be %q or %q", "test", "live")
	}
	if c.StateData.TTLSeconds < 0 {
		return fmt.Errorf("core: config state_data.ttl_seconds must not be negative")
	}
	if c.Notifications.MaxAttempts < 1 {
		return fmt.Errorf("core: config notifications.max_attempts must be at least 1")
	}
	if c.Notifications.RetryBaseSeconds < 1 {
		return fmt.Errorf("core: config notifications.retry_base_seconds must be at least 1")
	}
	if c.Notifications.RetryMaxSeconds < c.Notifications.RetryBaseSeconds {
		return fmt.Errorf("core: config notifications.retry_max_seconds must not be below retry_base_seconds")
	}
	if c.Notifications.ClaimLeaseSeconds < 1 {
		return fmt.Errorf("core: config notifications.claim_lease_seconds must be at least 1")
	}
	return nil
}

// StateDataTTL returns the state data retention window as a duration.
func (c Config) StateDataTTL() time.Duration {
	if c.StateData.TTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.StateData.TTLSeconds) * time.Second
}

// RetryBase returns the first notification retry delay.
func (n NotificationsConfig) RetryBase() time.Duration {
	return time.Duration(n.RetryBaseSeconds) * time.Second
}

// RetryMax returns the notification retry delay ceiling.
func (n NotificationsConfig) RetryMax() time.Duration {
	return time.Duration(n.RetryMaxSeconds) * time.Second
}

// ClaimLease returns how long a notification processing claim stays held.
func (n NotificationsConfig) ClaimLease() time.Duration {
	return time.Duration(n.ClaimLeaseSeconds) * time.Second
}
