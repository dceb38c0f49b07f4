// Package config builds process-wide configuration from environment
// variables so main stays lean. Configuration is read once at startup and
// never mutated at runtime.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"rerfiler/internal/filing/rerx"
)

// Config is everything a deployment needs: environment selection, transport
// credentials, transmitting identity, filing policy, and storage wiring.
type Config struct {
	// Environment selects sandbox or production endpoints and forces the
	// sandbox transmission control code for anything that is not production.
	Environment string

	OpsAddr string

	// StoreBackend is "postgres" or "memory".
	StoreBackend string
	PostgresDSN  string

	// TransportBackend is "sftp" or "local".
	TransportBackend string

	SFTPHost           string
	SFTPPort           int
	SFTPUser           string
	SFTPPassword       string
	SFTPPrivateKeyPath string
	SFTPHostKeyPath    string
	OutboundDir        string
	InboundDir         string
	TransportTimeout   time.Duration

	LocalTransportDir string

	TransmitterName  string
	TransmitterTIN   string
	TransmitterTCC   string
	TransmitterPhone string
	ContactName      string
	ContactPhone     string
	ContactEmail     string

	MinFilingDate time.Time

	PollTick time.Duration
}

// FromEnv reads RERX_* variables with development defaults. Validation that
// gates actual filings (transmitter identity) is deferred to preflight so a
// half-configured dev environment can still run tooling.
func FromEnv() (Config, error) {
	cfg := Config{
		Environment:        getenv("RERX_ENVIRONMENT", "sandbox"),
		OpsAddr:            getenv("RERX_OPS_ADDR", ":9090"),
		StoreBackend:       getenv("RERX_STORE", "memory"),
		PostgresDSN:        os.Getenv("RERX_POSTGRES_DSN"),
		TransportBackend:   getenv("RERX_TRANSPORT", "local"),
		SFTPHost:           os.Getenv("RERX_SFTP_HOST"),
		SFTPUser:           os.Getenv("RERX_SFTP_USER"),
		SFTPPassword:       os.Getenv("RERX_SFTP_PASSWORD"),
		SFTPPrivateKeyPath: os.Getenv("RERX_SFTP_KEY_PATH"),
		SFTPHostKeyPath:    os.Getenv("RERX_SFTP_HOST_KEY_PATH"),
		OutboundDir:        getenv("RERX_OUTBOUND_DIR", "/submissions"),
		InboundDir:         getenv("RERX_INBOUND_DIR", "/responses"),
		LocalTransportDir:  getenv("RERX_LOCAL_DIR", "./sdtm"),
		TransmitterName:    os.Getenv("RERX_TRANSMITTER_NAME"),
		TransmitterTIN:     os.Getenv("RERX_TRANSMITTER_TIN"),
		TransmitterTCC:     os.Getenv("RERX_TRANSMITTER_TCC"),
		TransmitterPhone:   os.Getenv("RERX_TRANSMITTER_PHONE"),
		ContactName:        os.Getenv("RERX_CONTACT_NAME"),
		ContactPhone:       os.Getenv("RERX_CONTACT_PHONE"),
		ContactEmail:       os.Getenv("RERX_CONTACT_EMAIL"),
	}

	port, err := intEnv("RERX_SFTP_PORT", 22)
	if err != nil {
		return Config{}, err
	}
	cfg.SFTPPort = port

	cfg.TransportTimeout, err = durationEnv("RERX_TRANSPORT_TIMEOUT", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.PollTick, err = durationEnv("RERX_POLL_TICK", 5*time.Minute)
	if err != nil {
		return Config{}, err
	}

	minDate := getenv("RERX_MIN_FILING_DATE", "20251201")
	cfg.MinFilingDate, err = time.Parse(rerx.DateTextLayout, minDate)
	if err != nil {
		return Config{}, fmt.Errorf("RERX_MIN_FILING_DATE %q: %w", minDate, err)
	}

	return cfg, nil
}

// IsProduction reports whether this deployment files against the live
// endpoint. Everything else is treated as sandbox.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// EffectiveTCC is the transmission control code actually used on documents
// and filenames: the configured one in production, the sandbox literal
// everywhere else.
func (c Config) EffectiveTCC() string {
	if c.IsProduction() {
		return c.TransmitterTCC
	}
	return rerx.SandboxTCC
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", key, v, err)
	}
	return n, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", key, v, err)
	}
	return d, nil
}
