package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AgentConfig captures all tunable parameters for the rider agent process.
// Values are primarily loaded from environment variables with sane defaults
// so the binary can run locally without excessive setup.
type AgentConfig struct {
	APIBaseURL string
	APITimeout time.Duration

	StatusAddr string

	RiderPhone  string
	SessionFile string

	PollInterval     time.Duration // active-order refresh cadence while online
	ReportInterval   time.Duration // location report cadence while tracking
	MinMoveMeters    float64       // movement threshold before a location write
	OfflineFixMaxAge time.Duration // acceptable staleness of the offline fix

	PushURL string // websocket endpoint; empty disables the push channel

	SimRoute       string // "lat,lng;lat,lng;..." replayed by the simulated sampler
	SampleInterval time.Duration

	AutoOnline bool
	LogLevel   string
}

func defaultAgentConfig() AgentConfig {
	return AgentConfig{
		APITimeout:       10 * time.Second,
		StatusAddr:       ":8090",
		SessionFile:      "rider-session.json",
		PollInterval:     30 * time.Second,
		ReportInterval:   15 * time.Second,
		MinMoveMeters:    10,
		OfflineFixMaxAge: 30 * time.Second,
		SampleInterval:   5 * time.Second,
		LogLevel:         "info",
	}
}

func Load() (AgentConfig, error) {
	cfg := defaultAgentConfig()
	var errs []error

	cfg.APIBaseURL = strings.TrimSpace(os.Getenv("API_BASE_URL"))
	setDurationFromEnv(&cfg.APITimeout, "API_TIMEOUT", &errs)

	setStringFromEnv(&cfg.StatusAddr, "STATUS_ADDR")
	cfg.RiderPhone = strings.TrimSpace(os.Getenv("RIDER_PHONE"))
	setStringFromEnv(&cfg.SessionFile, "SESSION_FILE")

	setDurationFromEnv(&cfg.PollInterval, "ORDER_POLL_INTERVAL", &errs)
	setDurationFromEnv(&cfg.ReportInterval, "LOCATION_REPORT_INTERVAL", &errs)
	setFloatFromEnv(&cfg.MinMoveMeters, "MIN_MOVE_METERS", &errs)
	setDurationFromEnv(&cfg.OfflineFixMaxAge, "OFFLINE_FIX_MAX_AGE", &errs)

	cfg.PushURL = strings.TrimSpace(os.Getenv("PUSH_WS_URL"))

	setStringFromEnv(&cfg.SimRoute, "SIM_ROUTE")
	setDurationFromEnv(&cfg.SampleInterval, "SIM_SAMPLE_INTERVAL", &errs)

	cfg.AutoOnline = strings.EqualFold(os.Getenv("AUTO_ONLINE"), "true")
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if cfg.APIBaseURL == "" {
		errs = append(errs, fmt.Errorf("API_BASE_URL is required"))
	}
	if cfg.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("ORDER_POLL_INTERVAL must be > 0"))
	}
	if cfg.ReportInterval <= 0 {
		errs = append(errs, fmt.Errorf("LOCATION_REPORT_INTERVAL must be > 0"))
	}
	if cfg.MinMoveMeters < 0 {
		errs = append(errs, fmt.Errorf("MIN_MOVE_METERS must be >= 0"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}
