package spc

import (
	"fmt"
	"net"
	"time"
)

const (
	defaultPort             = "443"
	defaultScheme           = "https"
	defaultPollInterval     = 30 * time.Second
	defaultTimeout          = 10 * time.Second
	defaultFailureThreshold = 3
	defaultSessionTTL       = 10 * time.Minute
)

// Config is everything needed to talk to one panel.
type Config struct {
	Host     string
	Port     string
	Scheme   string
	Username string
	Password string

	// LegacyTLS relaxes the TLS handshake for the panel's outdated web
	// server: old protocol versions, RSA key exchange ciphers, no
	// certificate verification.
	LegacyTLS bool

	PollInterval     time.Duration
	Timeout          time.Duration
	FailureThreshold int

	// SessionTTL is how long a session is presumed valid after it was last
	// used.
	SessionTTL time.Duration
}

func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("missing host")
	}
	if c.Username == "" {
		return fmt.Errorf("missing username")
	}
	if c.Password == "" {
		return fmt.Errorf("missing password")
	}
	switch c.Scheme {
	case "", "http", "https":
	default:
		return fmt.Errorf("invalid scheme: %q", c.Scheme)
	}
	if c.PollInterval < 0 || c.Timeout < 0 || c.SessionTTL < 0 {
		return fmt.Errorf("durations can't be negative")
	}
	if c.FailureThreshold < 0 {
		return fmt.Errorf("failure threshold can't be negative")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Port == "" {
		c.Port = defaultPort
	}
	if c.Scheme == "" {
		c.Scheme = defaultScheme
	}
	if c.PollInterval == 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = defaultFailureThreshold
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = defaultSessionTTL
	}
	return c
}

func (c Config) baseURL() string {
	return c.Scheme + "://" + net.JoinHostPort(c.Host, c.Port)
}
